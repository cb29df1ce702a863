package player

import (
	"context"
	"time"

	"github.com/halcyonlabs/kaleido/internal/history"
	"github.com/halcyonlabs/kaleido/internal/media"
)

//go:generate mockgen -destination mocks/mocks.go -package mocks . Proxy,Resolver,History

// Proxy caches remote audio locally so direct sources become analyzable.
type Proxy interface {
	// CachedPath returns the local copy of a URL if one exists.
	CachedPath(url string) (string, bool)
	// Fetch downloads the URL into the cache and returns the local path.
	Fetch(ctx context.Context, url string) (string, error)
}

// Resolver maps owned storage refs to local file paths.
type Resolver interface {
	Resolve(ref string) (string, error)
}

// History records playback events. Implementations must not block.
type History interface {
	Record(kind history.EventKind, item media.Item, pos time.Duration)
	UpdatePosition(item media.Item, pos time.Duration)
}
