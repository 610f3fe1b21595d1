package ai

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDocument reads the grounding source document as plain text.
// Markdown and plain-text files are supported; anything else is a
// misconfiguration surfaced as ErrUnsupportedFormat.
func LoadDocument(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("document path is not configured")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown", ".txt":
	default:
		return "", fmt.Errorf("document %s: %w", path, ErrUnsupportedFormat)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading document: %w", err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("document %s is empty", path)
	}
	return string(data), nil
}
