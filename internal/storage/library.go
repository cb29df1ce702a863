// Package storage indexes a local music directory. The scanner walks the
// tree once, reads embedded metadata where a format carries it, and exposes
// the result as playable items with owned locators. Owned refs resolve back
// to files strictly inside the library root.
package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/dhowden/tag"
	"go.uber.org/zap"

	"github.com/halcyonlabs/kaleido/internal/element"
	"github.com/halcyonlabs/kaleido/internal/media"
)

var audioExts = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".ogg":  true,
}

// Library is the scanned index of a music directory.
type Library struct {
	log  *zap.Logger
	root string

	mu    sync.RWMutex
	items []media.Item
	paths map[string]string // item ID -> ref (path relative to root)
}

// NewLibrary creates a library over root. Call Scan before use.
func NewLibrary(log *zap.Logger, root string) (*Library, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve library root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("library root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("library root %s is not a directory", abs)
	}
	return &Library{
		log:   log,
		root:  abs,
		paths: make(map[string]string),
	}, nil
}

// Scan walks the library root and rebuilds the index. Unreadable or
// undecodable files are skipped with a warning; the scan itself only fails
// on a broken walk or a cancelled context.
func (l *Library) Scan(ctx context.Context) error {
	var items []media.Item
	paths := make(map[string]string)

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !audioExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}

		item, err := l.describe(path, rel)
		if err != nil {
			l.log.Warn("skipping unreadable file", zap.String("path", rel), zap.Error(err))
			return nil
		}
		items = append(items, item)
		paths[item.ID] = rel
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan library: %w", err)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Artist != items[j].Artist {
			return items[i].Artist < items[j].Artist
		}
		return items[i].Title < items[j].Title
	})

	l.mu.Lock()
	l.items = items
	l.paths = paths
	l.mu.Unlock()

	l.log.Info("library scan complete", zap.Int("tracks", len(items)))
	return nil
}

// describe builds the item for one file: embedded tags when the format has
// them, the filename otherwise, and the decoded duration.
func (l *Library) describe(path, rel string) (media.Item, error) {
	id := itemID(rel)
	title := strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
	artist := ""

	if f, err := os.Open(path); err == nil {
		if meta, err := tag.ReadFrom(f); err == nil {
			if t := strings.TrimSpace(meta.Title()); t != "" {
				title = t
			}
			artist = strings.TrimSpace(meta.Artist())
		}
		f.Close()
	}

	src, err := element.OpenFile(path)
	if err != nil {
		return media.Item{}, err
	}
	dur := src.Duration()
	src.Close()

	item := media.NewTrack(id, title, artist, dur, media.OwnedLocator(rel))
	return item, nil
}

// itemID derives a stable ID from the relative path, so rescans keep IDs
// and queue entries valid.
func itemID(rel string) string {
	sum := sha1.Sum([]byte(filepath.ToSlash(rel)))
	return hex.EncodeToString(sum[:8])
}

// Resolve maps an owned ref to an absolute path under the library root.
// Refs that escape the root are rejected.
func (l *Library) Resolve(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || filepath.IsAbs(clean) {
		return "", fmt.Errorf("ref %q escapes the library root", ref)
	}
	path := filepath.Join(l.root, clean)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("resolve %q: %w", ref, err)
	}
	return path, nil
}

// Items returns a copy of the scanned index.
func (l *Library) Items() []media.Item {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]media.Item, len(l.items))
	copy(out, l.items)
	return out
}

// Item looks up one track by ID.
func (l *Library) Item(id string) (media.Item, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, it := range l.items {
		if it.ID == id {
			return it, true
		}
	}
	return media.Item{}, false
}

// Len returns the number of indexed tracks.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Root returns the absolute library root.
func (l *Library) Root() string {
	return l.root
}
