package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestCache(t *testing.T, maxBytes int64) *Cache {
	t.Helper()
	c, err := NewCache(zap.NewNop(), t.TempDir(), maxBytes)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestFetchCachesAndHits(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("fake mp3 bytes"))
	}))
	defer srv.Close()

	c := newTestCache(t, 0)
	url := srv.URL + "/song.mp3"

	if c.IsProxied(url) {
		t.Fatal("URL should not be proxied before any fetch")
	}

	p1, err := c.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	data, err := os.ReadFile(p1)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "fake mp3 bytes" {
		t.Errorf("cached content = %q", data)
	}
	if filepath.Ext(p1) != ".mp3" {
		t.Errorf("cached file should keep the source extension, got %q", p1)
	}

	p2, err := c.Fetch(context.Background(), url)
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if p2 != p1 {
		t.Errorf("second fetch returned %q, want cache hit %q", p2, p1)
	}
	if hits.Load() != 1 {
		t.Errorf("origin hit %d times, want 1", hits.Load())
	}
	if !c.IsProxied(url) {
		t.Error("URL should report proxied after fetch")
	}
}

func TestFetchSharesConcurrentDownloads(t *testing.T) {
	var hits atomic.Int64
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := newTestCache(t, 0)
	url := srv.URL + "/one.ogg"

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Fetch(context.Background(), url)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("fetch %d: %v", i, err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("origin hit %d times for concurrent fetches, want 1", hits.Load())
	}
}

func TestFetchPropagatesStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestCache(t, 0)
	if _, err := c.Fetch(context.Background(), srv.URL+"/missing.mp3"); err == nil {
		t.Fatal("want error for 404 response")
	}
	if c.IsProxied(srv.URL + "/missing.mp3") {
		t.Error("failed fetch must not leave a cached file")
	}
}

func TestFetchHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := newTestCache(t, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := c.Fetch(ctx, srv.URL+"/slow.mp3"); err == nil {
		t.Fatal("want error when context expires mid-download")
	}
}

func TestEvictionKeepsNewest(t *testing.T) {
	body := strings.Repeat("x", 1000)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	defer srv.Close()

	// Cap fits two files, not three.
	c := newTestCache(t, 2500)

	urls := []string{srv.URL + "/a.mp3", srv.URL + "/b.mp3", srv.URL + "/c.mp3"}
	for i, u := range urls {
		if _, err := c.Fetch(context.Background(), u); err != nil {
			t.Fatalf("fetch %s: %v", u, err)
		}
		// Distinct mtimes so eviction order is deterministic.
		p, _ := c.CachedPath(u)
		mt := time.Now().Add(time.Duration(i-3) * time.Hour)
		os.Chtimes(p, mt, mt)
		c.evict()
	}

	if c.IsProxied(urls[0]) {
		t.Error("oldest entry should have been evicted")
	}
	if !c.IsProxied(urls[2]) {
		t.Error("newest entry must survive eviction")
	}
}

func TestKeyPathDefaultsExtension(t *testing.T) {
	c := newTestCache(t, 0)
	p := c.keyPath("https://example.com/stream?id=42")
	if filepath.Ext(p) != ".mp3" {
		t.Errorf("extensionless URL should default to .mp3, got %q", p)
	}
	if c.keyPath("https://example.com/a") == c.keyPath("https://example.com/b") {
		t.Error("distinct URLs must map to distinct cache files")
	}
}
