// Package media defines the playable items the player core operates on.
// Item kind (track vs episode) and source kind (direct URL vs owned storage)
// are explicit tags decided at construction time, never inferred from which
// fields happen to be set.
package media

import "time"

// Kind discriminates tracks from podcast episodes.
type Kind int

const (
	KindTrack Kind = iota
	KindEpisode
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTrack:
		return "track"
	case KindEpisode:
		return "episode"
	default:
		return "unknown"
	}
}

// SourceKind discriminates externally hosted audio from audio the system owns.
type SourceKind int

const (
	// SourceDirect is an external URL, potentially cross-origin. It can be
	// played immediately but is only safe to analyze once proxied.
	SourceDirect SourceKind = iota
	// SourceOwned is a reference into the system's own storage. Always
	// same-origin, always analyzable.
	SourceOwned
)

// String returns the string representation of the source kind.
func (k SourceKind) String() string {
	switch k {
	case SourceDirect:
		return "direct"
	case SourceOwned:
		return "owned"
	default:
		return "unknown"
	}
}

// Locator says where an item's audio bytes live.
type Locator struct {
	Kind SourceKind
	URL  string // set when Kind == SourceDirect
	Ref  string // set when Kind == SourceOwned, resolved by the storage layer
}

// DirectLocator builds a locator for externally hosted audio.
func DirectLocator(url string) Locator {
	return Locator{Kind: SourceDirect, URL: url}
}

// OwnedLocator builds a locator for audio in the system's own storage.
func OwnedLocator(ref string) Locator {
	return Locator{Kind: SourceOwned, Ref: ref}
}

// Empty reports whether the locator points at nothing playable.
func (l Locator) Empty() bool {
	switch l.Kind {
	case SourceDirect:
		return l.URL == ""
	case SourceOwned:
		return l.Ref == ""
	default:
		return true
	}
}

// Item is a playable queue entry. Identity is by ID; a queue never holds two
// items with the same ID.
type Item struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Artist    string        `json:"artist,omitempty"`
	PodcastID string        `json:"podcast_id,omitempty"`
	Duration  time.Duration `json:"duration"`
	Kind      Kind          `json:"kind"`
	Source    Locator       `json:"-"`
}

// NewTrack builds a track item.
func NewTrack(id, title, artist string, dur time.Duration, src Locator) Item {
	return Item{ID: id, Title: title, Artist: artist, Duration: dur, Kind: KindTrack, Source: src}
}

// NewEpisode builds a podcast episode item.
func NewEpisode(id, title, podcastID string, dur time.Duration, src Locator) Item {
	return Item{ID: id, Title: title, PodcastID: podcastID, Duration: dur, Kind: KindEpisode, Source: src}
}

// IsEpisode reports whether the item is a podcast episode.
func (it Item) IsEpisode() bool {
	return it.Kind == KindEpisode
}
