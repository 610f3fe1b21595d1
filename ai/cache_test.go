package ai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Gena/core"
)

// fakeGemini imitates the cachedContents surface of the remote API and
// counts creations so tests can assert exactly-once behavior.
type fakeGemini struct {
	mu        sync.Mutex
	creates   int
	gets      int
	getStatus int // 0 means success
	server    *httptest.Server
}

func newFakeGemini(t *testing.T) *fakeGemini {
	t.Helper()
	f := &fakeGemini{}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeGemini) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/cachedContents":
		f.creates++
		var req CachedContent
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, f.cacheObject(req.Model))
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/cachedContents/"):
		f.gets++
		if f.getStatus != 0 {
			w.WriteHeader(f.getStatus)
			_, _ = io.WriteString(w, `{"error":{"code":404,"message":"CachedContent not found","status":"NOT_FOUND"}}`)
			return
		}
		writeJSON(w, f.cacheObject("models/gemini-1.5-pro-002"))
	case r.Method == http.MethodGet && r.URL.Path == "/cachedContents":
		writeJSON(w, cachedContentList{CachedContents: []CachedContent{f.cacheObject("models/gemini-1.5-pro-002")}})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeGemini) cacheObject(model string) CachedContent {
	now := time.Now().UTC()
	return CachedContent{
		Name:        "cachedContents/test-cache",
		Model:       model,
		DisplayName: "Bank Information",
		CreateTime:  now.Format(time.RFC3339),
		UpdateTime:  now.Format(time.RFC3339),
		ExpireTime:  now.Add(time.Hour).Format(time.RFC3339),
	}
}

func (f *fakeGemini) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func testConf(t *testing.T, baseURL string) *core.Config {
	t.Helper()
	dir := t.TempDir()
	docPath := filepath.Join(dir, "bank.md")
	require.NoError(t, os.WriteFile(docPath, []byte("# Bank\nProducts and services."), 0644))

	conf := &core.Config{}
	conf.Gemini.ApiKey = "test-key"
	conf.Gemini.Model = "gemini-1.5-pro-002"
	conf.Gemini.BaseURL = baseURL
	conf.Gemini.DocumentPath = docPath
	conf.Gemini.CacheTTL = "300s"
	conf.Gemini.CacheMetadataFile = filepath.Join(dir, "cache_metadata.json")
	conf.Gemini.CacheDisplayName = "Bank Information"
	return conf
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestResolveCreatesCacheAndPersistsMetadata(t *testing.T) {
	fake := newFakeGemini(t)
	conf := testConf(t, fake.server.URL)
	g := NewGemini(conf, discardLogger())

	cc, err := g.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cachedContents/test-cache", cc.Name)
	assert.Equal(t, 1, fake.createCount())

	data, err := os.ReadFile(conf.Gemini.CacheMetadataFile)
	require.NoError(t, err)
	var meta cacheMetadata
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, cc.Name, meta.Name)
	assert.Equal(t, cc.Model, meta.Model)
	assert.Equal(t, cc.ExpireTime, meta.ExpireTime)
}

func TestResolveIsIdempotentWhileValid(t *testing.T) {
	fake := newFakeGemini(t)
	g := NewGemini(testConf(t, fake.server.URL), discardLogger())

	first, err := g.Resolve(context.Background())
	require.NoError(t, err)
	second, err := g.Resolve(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, fake.createCount())
}

func TestResolveReusesPersistedMetadata(t *testing.T) {
	fake := newFakeGemini(t)
	conf := testConf(t, fake.server.URL)

	meta := cacheMetadata{
		Name:       "cachedContents/test-cache",
		Model:      "models/gemini-1.5-pro-002",
		ExpireTime: time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
	}
	data, _ := json.Marshal(meta)
	require.NoError(t, os.WriteFile(conf.Gemini.CacheMetadataFile, data, 0644))

	g := NewGemini(conf, discardLogger())
	cc, err := g.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, meta.Name, cc.Name)
	assert.Equal(t, 0, fake.createCount())
}

func TestResolveExpiredMetadataRecreates(t *testing.T) {
	fake := newFakeGemini(t)
	conf := testConf(t, fake.server.URL)

	meta := cacheMetadata{
		Name:       "cachedContents/stale-cache",
		ExpireTime: time.Now().UTC().Add(-time.Hour).Format(time.RFC3339),
	}
	data, _ := json.Marshal(meta)
	require.NoError(t, os.WriteFile(conf.Gemini.CacheMetadataFile, data, 0644))

	g := NewGemini(conf, discardLogger())
	cc, err := g.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cachedContents/test-cache", cc.Name)
	assert.Equal(t, 1, fake.createCount())

	// fresh metadata overwrites the stale record
	raw, err := os.ReadFile(conf.Gemini.CacheMetadataFile)
	require.NoError(t, err)
	var saved cacheMetadata
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, cc.Name, saved.Name)
	assert.Equal(t, cc.ExpireTime, saved.ExpireTime)
}

func TestResolveRemoteDeletionRecreates(t *testing.T) {
	fake := newFakeGemini(t)
	fake.getStatus = http.StatusNotFound
	conf := testConf(t, fake.server.URL)

	meta := cacheMetadata{
		Name:       "cachedContents/deleted-cache",
		ExpireTime: time.Now().UTC().Add(time.Hour).Format(time.RFC3339),
	}
	data, _ := json.Marshal(meta)
	require.NoError(t, os.WriteFile(conf.Gemini.CacheMetadataFile, data, 0644))

	g := NewGemini(conf, discardLogger())
	cc, err := g.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cachedContents/test-cache", cc.Name)
	assert.Equal(t, 1, fake.createCount())
}

func TestResolveCorruptMetadataTreatedAsAbsent(t *testing.T) {
	fake := newFakeGemini(t)
	conf := testConf(t, fake.server.URL)
	require.NoError(t, os.WriteFile(conf.Gemini.CacheMetadataFile, []byte("{not json"), 0644))

	g := NewGemini(conf, discardLogger())
	_, err := g.Resolve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, fake.createCount())
}

func TestConcurrentResolveCreatesOnce(t *testing.T) {
	fake := newFakeGemini(t)
	g := NewGemini(testConf(t, fake.server.URL), discardLogger())

	var wg sync.WaitGroup
	results := make([]*CachedContent, 10)
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.Resolve(context.Background())
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, 1, fake.createCount())
	for _, cc := range results {
		assert.Equal(t, "cachedContents/test-cache", cc.Name)
	}
}

func TestResolveMissingDocumentIsFatalAndNotRemote(t *testing.T) {
	fake := newFakeGemini(t)
	conf := testConf(t, fake.server.URL)
	conf.Gemini.DocumentPath = filepath.Join(t.TempDir(), "missing.md")

	g := NewGemini(conf, discardLogger())
	_, err := g.Resolve(context.Background())
	require.Error(t, err)
	assert.False(t, IsRemote(err))
	assert.Equal(t, 0, fake.createCount())
}

func TestResolveRemoteCreateFailureIsRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"code":429,"message":"rate limited","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer srv.Close()

	g := NewGemini(testConf(t, srv.URL), discardLogger())
	_, err := g.Resolve(context.Background())
	require.Error(t, err)
	assert.True(t, IsRemote(err))
	assert.Nil(t, g.Cache().Current())
}

func TestNewChatRequiresResolvedCache(t *testing.T) {
	fake := newFakeGemini(t)
	g := NewGemini(testConf(t, fake.server.URL), discardLogger())

	_, err := g.NewChat()
	require.ErrorIs(t, err, ErrCacheNotResolved)

	_, err = g.Resolve(context.Background())
	require.NoError(t, err)

	chat, err := g.NewChat()
	require.NoError(t, err)
	assert.Equal(t, "cachedContents/test-cache", chat.cacheName)
	assert.Equal(t, "gemini-1.5-pro-002", chat.model)
}
