// Package proxy fetches remote audio into a local cache so the playback
// element can swap a cross-origin stream for a same-origin file. A cached
// copy is what makes a direct source safe to analyze.
package proxy

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxBytes caps the cache at 512 MiB unless configured otherwise.
const DefaultMaxBytes = 512 << 20

type inflight struct {
	done chan struct{}
	path string
	err  error
}

// Cache is a disk cache of proxied audio keyed by source URL.
type Cache struct {
	log      *zap.Logger
	dir      string
	maxBytes int64
	client   *http.Client

	mu      sync.Mutex
	pending map[string]*inflight
}

// NewCache creates the cache directory if needed. maxBytes <= 0 selects
// DefaultMaxBytes.
func NewCache(log *zap.Logger, dir string, maxBytes int64) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Cache{
		log:      log,
		dir:      dir,
		maxBytes: maxBytes,
		client:   &http.Client{Timeout: 120 * time.Second},
		pending:  make(map[string]*inflight),
	}, nil
}

// keyPath maps a URL to its cache file. The extension is kept so decoders
// can pick a format by name.
func (c *Cache) keyPath(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	ext := ".mp3"
	if u, err := url.Parse(rawURL); err == nil {
		if e := strings.ToLower(filepath.Ext(u.Path)); e != "" && len(e) <= 5 {
			ext = e
		}
	}
	return filepath.Join(c.dir, hex.EncodeToString(sum[:16])+ext)
}

// IsProxied reports whether the URL already has a cached copy.
func (c *Cache) IsProxied(rawURL string) bool {
	_, ok := c.CachedPath(rawURL)
	return ok
}

// CachedPath returns the local path for a URL if its copy exists.
func (c *Cache) CachedPath(rawURL string) (string, bool) {
	p := c.keyPath(rawURL)
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// Fetch downloads the URL into the cache and returns the local path. A hit
// returns immediately; concurrent fetches of the same URL share one
// download.
func (c *Cache) Fetch(ctx context.Context, rawURL string) (string, error) {
	if p, ok := c.CachedPath(rawURL); ok {
		return p, nil
	}

	c.mu.Lock()
	if fl, ok := c.pending[rawURL]; ok {
		c.mu.Unlock()
		select {
		case <-fl.done:
			return fl.path, fl.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	fl := &inflight{done: make(chan struct{})}
	c.pending[rawURL] = fl
	c.mu.Unlock()

	fl.path, fl.err = c.download(ctx, rawURL)
	close(fl.done)

	c.mu.Lock()
	delete(c.pending, rawURL)
	c.mu.Unlock()

	return fl.path, fl.err
}

// download streams the body to a temp file in the cache dir, then renames it
// into place so readers never see a partial file.
func (c *Cache) download(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("proxy fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("proxy fetch %s: status %d", rawURL, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(c.dir, "fetch-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}

	final := c.keyPath(rawURL)
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("install cached file: %w", err)
	}

	c.log.Info("proxied remote audio",
		zap.String("url", rawURL),
		zap.Int64("bytes", n))

	c.evict()
	return final, nil
}

// evict removes the oldest cached files until the cache fits under the cap.
// Best effort; a failed removal is only logged.
func (c *Cache) evict() {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return
	}

	type cached struct {
		path string
		size int64
		mod  time.Time
	}
	var files []cached
	var total int64
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "fetch-") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, cached{
			path: filepath.Join(c.dir, e.Name()),
			size: info.Size(),
			mod:  info.ModTime(),
		})
		total += info.Size()
	}
	if total <= c.maxBytes {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	for _, f := range files {
		if total <= c.maxBytes {
			break
		}
		if err := os.Remove(f.path); err != nil {
			c.log.Warn("cache eviction failed", zap.String("path", f.path), zap.Error(err))
			continue
		}
		total -= f.size
		c.log.Info("evicted cached audio", zap.String("path", f.path))
	}
}
