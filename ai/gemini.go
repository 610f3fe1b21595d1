package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"Gena/core"
	"Gena/lib/sl"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

const systemInstruction = "You are a helpful chatbot for the bank, answering questions " +
	"based on the provided document about the bank's products and services."

// Gemini talks to the Generative Language REST API and owns the cached
// grounding context through its CacheManager. A single instance is
// constructed by the composition root and shared by reference.
type Gemini struct {
	conf    *core.Config
	log     *slog.Logger
	client  *http.Client
	baseURL string
	cache   *CacheManager
}

// Chat is a conversational handle bound to the cached context at creation
// time. The accumulated turn history rides along with every message, so
// the handle is owned by exactly one session.
type Chat struct {
	model     string
	cacheName string

	mu      sync.Mutex
	history []Content
}

// Reply is the model's answer with its token accounting.
type Reply struct {
	Text           string
	PromptTokens   int
	ResponseTokens int
	TotalTokens    int
}

func NewGemini(conf *core.Config, log *slog.Logger) *Gemini {
	baseURL := conf.Gemini.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	g := &Gemini{
		conf:    conf,
		log:     log.With(sl.Module("gemini")),
		client:  &http.Client{Timeout: 120 * time.Second},
		baseURL: baseURL,
	}
	g.cache = newCacheManager(g, conf, log)
	return g
}

// Cache exposes the context-cache manager.
func (g *Gemini) Cache() *CacheManager {
	return g.cache
}

// Resolve ensures a usable cached context exists. Shorthand for
// Cache().Resolve.
func (g *Gemini) Resolve(ctx context.Context) (*CachedContent, error) {
	return g.cache.Resolve(ctx)
}

// NewChat binds a fresh chat handle to the currently resolved cache.
func (g *Gemini) NewChat() (*Chat, error) {
	cc := g.cache.Current()
	if cc == nil {
		return nil, ErrCacheNotResolved
	}
	return &Chat{
		model:     g.conf.Gemini.Model,
		cacheName: cc.Name,
	}, nil
}

// SendMessage sends a text turn on the chat handle.
func (g *Gemini) SendMessage(ctx context.Context, chat *Chat, text string) (*Reply, error) {
	return g.send(ctx, chat, Content{
		Role:  "user",
		Parts: []Part{{Text: text}},
	})
}

// SendAudio sends an audio turn inline, without transcription. The model
// is multimodal and answers the spoken question directly.
func (g *Gemini) SendAudio(ctx context.Context, chat *Chat, data []byte, mimeType, fileName string) (*Reply, error) {
	return g.send(ctx, chat, Content{
		Role: "user",
		Parts: []Part{
			{Text: fmt.Sprintf("Respond to the following audio message. file name is: %s", fileName)},
			{InlineData: &Blob{
				MimeType: mimeType,
				Data:     base64.StdEncoding.EncodeToString(data),
			}},
		},
	})
}

func (g *Gemini) send(ctx context.Context, chat *Chat, turn Content) (*Reply, error) {
	if chat == nil {
		return nil, fmt.Errorf("chat handle is not initialized")
	}

	chat.mu.Lock()
	defer chat.mu.Unlock()

	contents := make([]Content, 0, len(chat.history)+1)
	contents = append(contents, chat.history...)
	contents = append(contents, turn)

	var resp generateResponse
	path := fmt.Sprintf("models/%s:generateContent", chat.model)
	err := g.do(ctx, http.MethodPost, path, &generateRequest{
		Contents:      contents,
		CachedContent: chat.cacheName,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) == 0 {
		return nil, ErrEmptyResponse
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		text += part.Text
	}

	reply := &Reply{
		Text:           text,
		PromptTokens:   resp.UsageMetadata.PromptTokenCount,
		ResponseTokens: resp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:    resp.UsageMetadata.TotalTokenCount,
	}
	if reply.TotalTokens == 0 {
		reply.TotalTokens = reply.PromptTokens + reply.ResponseTokens
	}
	g.log.With(
		slog.Int("prompt_tokens", reply.PromptTokens),
		slog.Int("response_tokens", reply.ResponseTokens),
		slog.Int("total_tokens", reply.TotalTokens),
	).Debug("token usage")

	chat.history = append(chat.history, turn, Content{
		Role:  "model",
		Parts: []Part{{Text: text}},
	})
	return reply, nil
}

// ListCaches returns all cached contents on the remote side.
func (g *Gemini) ListCaches(ctx context.Context) ([]CachedContent, error) {
	var list cachedContentList
	if err := g.do(ctx, http.MethodGet, "cachedContents", nil, &list); err != nil {
		return nil, err
	}
	return list.CachedContents, nil
}

// DeleteAllCaches removes every remote cached content and forgets the
// locally resolved one.
func (g *Gemini) DeleteAllCaches(ctx context.Context) error {
	caches, err := g.ListCaches(ctx)
	if err != nil {
		return err
	}
	for _, cc := range caches {
		if err := g.do(ctx, http.MethodDelete, cc.Name, nil, nil); err != nil {
			return err
		}
	}
	g.cache.forget()
	return nil
}

func (g *Gemini) getCachedContent(ctx context.Context, name string) (*CachedContent, error) {
	var cc CachedContent
	if err := g.do(ctx, http.MethodGet, name, nil, &cc); err != nil {
		return nil, err
	}
	return &cc, nil
}

func (g *Gemini) createCachedContent(ctx context.Context, documentText string) (*CachedContent, error) {
	req := &CachedContent{
		Model:       fmt.Sprintf("models/%s", g.conf.Gemini.Model),
		DisplayName: g.conf.Gemini.CacheDisplayName,
		SystemInstruction: &Content{
			Parts: []Part{{Text: systemInstruction}},
		},
		Contents: []Content{
			{Role: "user", Parts: []Part{{Text: documentText}}},
		},
		TTL: g.conf.Gemini.CacheTTL,
	}
	var cc CachedContent
	if err := g.do(ctx, http.MethodPost, "cachedContents", req, &cc); err != nil {
		return nil, err
	}
	return &cc, nil
}

// do performs one API round trip. Any transport or non-2xx failure comes
// back as a *RemoteError.
func (g *Gemini) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		jsonBytes, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshalling request: %w", err)
		}
		body = bytes.NewReader(jsonBytes)
	}

	u, err := url.JoinPath(g.baseURL, path)
	if err != nil {
		return fmt.Errorf("building url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("making request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.conf.Gemini.ApiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return &RemoteError{Op: path, Err: err}
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			g.log.Error("closing response body", sl.Err(err))
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RemoteError{Op: path, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var ae apiError
		if err := json.Unmarshal(data, &ae); err == nil && ae.Error.Message != "" {
			return &RemoteError{Op: path, Status: resp.StatusCode, Err: fmt.Errorf("%s", ae.Error.Message)}
		}
		return &RemoteError{Op: path, Status: resp.StatusCode, Err: fmt.Errorf("unexpected status")}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &RemoteError{Op: path, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
		}
	}
	return nil
}
