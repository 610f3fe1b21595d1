package ai

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDocumentMarkdown(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.md")
	require.NoError(t, os.WriteFile(path, []byte("# Accounts\nCurrent and savings."), 0644))

	text, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Contains(t, text, "Accounts")
}

func TestLoadDocumentPlainText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.txt")
	require.NoError(t, os.WriteFile(path, []byte("branch opening hours"), 0644))

	text, err := LoadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "branch opening hours", text)
}

func TestLoadDocumentUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4"), 0644))

	_, err := LoadDocument(path)
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoadDocumentMissingFile(t *testing.T) {
	_, err := LoadDocument(filepath.Join(t.TempDir(), "nope.md"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadDocumentEmptyPath(t *testing.T) {
	_, err := LoadDocument("")
	require.Error(t, err)
}

func TestLoadDocumentEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.md")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	_, err := LoadDocument(path)
	require.Error(t, err)
}
