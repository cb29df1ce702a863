// Package queue implements the playback queue state machine: an ordered list
// of playable items, a current selection, and shuffle/repeat navigation.
// All operations are total -- nothing here performs I/O or returns an error.
package queue

import (
	"math/rand"
	"sync"

	"github.com/halcyonlabs/kaleido/internal/media"
)

// Repeat is the queue's repeat mode.
type Repeat int

const (
	RepeatNone Repeat = iota
	RepeatOne
	RepeatAll
)

// String returns the string representation of the repeat mode.
func (r Repeat) String() string {
	switch r {
	case RepeatNone:
		return "none"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}

// Queue is an ordered sequence of items with a nullable current selection.
//
// The current ID may reference an item that is no longer in the list: removing
// the playing item, or replacing the whole queue, deliberately does not stop
// playback. Navigation resolves a dangling current lazily by jumping to a
// queue boundary (first item for Next, last for Previous).
type Queue struct {
	mu      sync.RWMutex
	items   []media.Item
	current string // item ID; empty means no selection
	shuffle bool
	repeat  Repeat

	// intn is swappable in tests for deterministic shuffle.
	intn func(n int) int
}

// New creates an empty queue.
func New() *Queue {
	return &Queue{intn: rand.Intn}
}

// SetCurrent selects the item. If its ID is not in the queue the item is
// appended first, so the selection is always backed by a queue entry.
func (q *Queue) SetCurrent(item media.Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.indexOf(item.ID) < 0 {
		q.items = append(q.items, item)
	}
	q.current = item.ID
}

// SetQueue replaces the entire ordered sequence. The current selection is
// left untouched even if the new list no longer contains it: the dangling ID
// is resolved lazily by the next navigation call.
func (q *Queue) SetQueue(items []media.Item) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make([]media.Item, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		// First occurrence wins on duplicate IDs.
		if _, dup := seen[it.ID]; dup {
			continue
		}
		seen[it.ID] = struct{}{}
		q.items = append(q.items, it)
	}
}

// Current returns the currently selected item. The second return is false
// when nothing is selected or the selection is no longer in the queue.
func (q *Queue) Current() (media.Item, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if i := q.indexOf(q.current); i >= 0 {
		return q.items[i], true
	}
	return media.Item{}, false
}

// CurrentID returns the raw current selection ID, which may be dangling.
func (q *Queue) CurrentID() string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.current
}

// Next advances the selection and returns the new current item.
// Returns false without mutating when the queue is empty or nothing is
// selected.
func (q *Queue) Next() (media.Item, bool) {
	return q.step(1)
}

// Previous retreats the selection and returns the new current item.
// Returns false without mutating when the queue is empty or nothing is
// selected.
func (q *Queue) Previous() (media.Item, bool) {
	return q.step(-1)
}

func (q *Queue) step(dir int) (media.Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 || q.current == "" {
		return media.Item{}, false
	}

	idx := q.indexOf(q.current)
	if idx < 0 {
		// Selection was removed from the list: fall back to a boundary.
		if dir > 0 {
			idx = 0
		} else {
			idx = len(q.items) - 1
		}
		q.current = q.items[idx].ID
		return q.items[idx], true
	}

	if q.shuffle {
		if len(q.items) > 1 {
			// Uniform pick over all indices except the current one.
			next := q.intn(len(q.items) - 1)
			if next >= idx {
				next++
			}
			idx = next
		}
		q.current = q.items[idx].ID
		return q.items[idx], true
	}

	next := idx + dir
	switch {
	case next >= len(q.items):
		if q.repeat == RepeatAll {
			next = 0
		} else {
			next = len(q.items) - 1
		}
	case next < 0:
		if q.repeat == RepeatAll {
			next = len(q.items) - 1
		} else {
			next = 0
		}
	}
	q.current = q.items[next].ID
	return q.items[next], true
}

// ToggleShuffle flips shuffle mode and returns the new value.
func (q *Queue) ToggleShuffle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.shuffle = !q.shuffle
	return q.shuffle
}

// Shuffle reports whether shuffle mode is on.
func (q *Queue) Shuffle() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.shuffle
}

// CycleRepeat advances none -> one -> all -> none and returns the new mode.
func (q *Queue) CycleRepeat() Repeat {
	q.mu.Lock()
	defer q.mu.Unlock()
	switch q.repeat {
	case RepeatNone:
		q.repeat = RepeatOne
	case RepeatOne:
		q.repeat = RepeatAll
	default:
		q.repeat = RepeatNone
	}
	return q.repeat
}

// RepeatMode returns the current repeat mode.
func (q *Queue) RepeatMode() Repeat {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.repeat
}

// SetRepeat sets the repeat mode directly.
func (q *Queue) SetRepeat(r Repeat) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.repeat = r
}

// Remove deletes the item with the given ID from the list. The current
// selection is not touched: removing the playing item does not stop playback.
func (q *Queue) Remove(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i := q.indexOf(id); i >= 0 {
		q.items = append(q.items[:i], q.items[i+1:]...)
	}
}

// Clear empties the list. As with Remove, the current selection stays so the
// playing item keeps playing.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = nil
}

// Items returns a copy of the ordered list.
func (q *Queue) Items() []media.Item {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]media.Item, len(q.items))
	copy(out, q.items)
	return out
}

// Len returns the number of items in the list.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// indexOf returns the index of the first item with the given ID, or -1.
// Must be called with the lock held.
func (q *Queue) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range q.items {
		if q.items[i].ID == id {
			return i
		}
	}
	return -1
}
