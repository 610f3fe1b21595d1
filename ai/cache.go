package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"Gena/core"
	"Gena/lib/sl"
)

// cacheMetadata is the side-channel record persisted next to the process
// so a still-valid remote cache survives restarts.
type cacheMetadata struct {
	Name        string `json:"name"`
	Model       string `json:"model"`
	DisplayName string `json:"display_name"`
	CreateTime  string `json:"create_time"`
	UpdateTime  string `json:"update_time"`
	ExpireTime  string `json:"expire_time"`
}

// CacheManager owns the single remotely cached grounding document: it
// reuses a persisted cache while unexpired and recreates it otherwise.
// Resolve is serialized so a cold-start race creates exactly one cache.
type CacheManager struct {
	g            *Gemini
	log          *slog.Logger
	documentPath string
	metadataFile string

	mu      sync.Mutex
	current *CachedContent
}

func newCacheManager(g *Gemini, conf *core.Config, log *slog.Logger) *CacheManager {
	return &CacheManager{
		g:            g,
		log:          log.With(sl.Module("context-cache")),
		documentPath: conf.Gemini.DocumentPath,
		metadataFile: conf.Gemini.CacheMetadataFile,
	}
}

// Current returns the resolved cache, or nil if Resolve has not succeeded.
func (c *CacheManager) Current() *CachedContent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *CacheManager) forget() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = nil
}

// Resolve returns a usable cached context: the in-memory one while it is
// still valid, a persisted one if the remote side confirms it, or a newly
// created one otherwise. Document errors are fatal; remote errors come
// back as *RemoteError so the caller can treat them as transient.
func (c *CacheManager) Resolve(ctx context.Context) (*CachedContent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.current != nil && expiresAfter(c.current.ExpireTime, now) {
		return c.current, nil
	}

	if meta := c.loadMetadata(); meta != nil {
		if expiresAfter(meta.ExpireTime, now) {
			cc, err := c.g.getCachedContent(ctx, meta.Name)
			if err == nil {
				c.log.Info("using existing cache", slog.String("name", cc.Name))
				c.current = cc
				return cc, nil
			}
			c.log.Warn("retrieving cache by name, will recreate", sl.Err(err))
		} else {
			c.log.Info("cached content expired", slog.String("name", meta.Name))
		}
	}

	text, err := LoadDocument(c.documentPath)
	if err != nil {
		return nil, fmt.Errorf("loading grounding document: %w", err)
	}

	cc, err := c.g.createCachedContent(ctx, text)
	if err != nil {
		return nil, err
	}
	c.log.Info("created new cache",
		slog.String("name", cc.Name),
		slog.String("expires", cc.ExpireTime),
	)

	c.current = cc
	c.saveMetadata(cc)
	return cc, nil
}

// loadMetadata reads the persisted record. A missing, unreadable or
// malformed file means "no cache", never a failure.
func (c *CacheManager) loadMetadata() *cacheMetadata {
	data, err := os.ReadFile(c.metadataFile)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn("reading cache metadata file", sl.Err(err))
		}
		return nil
	}
	var meta cacheMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		c.log.Warn("parsing cache metadata file", sl.Err(err))
		return nil
	}
	if meta.Name == "" {
		return nil
	}
	return &meta
}

// saveMetadata overwrites the persisted record. Failure is logged and the
// in-memory handle stays usable for the process lifetime.
func (c *CacheManager) saveMetadata(cc *CachedContent) {
	meta := cacheMetadata{
		Name:        cc.Name,
		Model:       cc.Model,
		DisplayName: cc.DisplayName,
		CreateTime:  cc.CreateTime,
		UpdateTime:  cc.UpdateTime,
		ExpireTime:  cc.ExpireTime,
	}
	data, err := json.MarshalIndent(meta, "", "    ")
	if err != nil {
		c.log.Error("encoding cache metadata", sl.Err(err))
		return
	}
	if err := os.WriteFile(c.metadataFile, data, 0644); err != nil {
		c.log.Error("writing cache metadata file", sl.Err(err))
		return
	}
	c.log.Info("cache metadata saved", slog.String("file", c.metadataFile))
}

// expiresAfter reports whether the RFC 3339 expiry lies after now.
// Unparseable values count as expired.
func expiresAfter(expireTime string, now time.Time) bool {
	if expireTime == "" {
		return false
	}
	t, err := time.Parse(time.RFC3339, expireTime)
	if err != nil {
		return false
	}
	return t.After(now)
}
