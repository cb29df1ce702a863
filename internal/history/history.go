// Package history records playback events to an append-only JSONL file.
// Recording is strictly fire-and-forget: a full buffer drops the event
// rather than ever stalling the player.
package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/halcyonlabs/kaleido/internal/media"
)

// EventKind labels what happened.
type EventKind string

const (
	EventPlayed   EventKind = "played"
	EventFinished EventKind = "finished"
	EventSkipped  EventKind = "skipped"
	EventPosition EventKind = "position"
)

// Event is one line of the history log.
type Event struct {
	ID       string        `json:"id"`
	Kind     EventKind     `json:"kind"`
	ItemID   string        `json:"item_id"`
	Title    string        `json:"title,omitempty"`
	Artist   string        `json:"artist,omitempty"`
	Position time.Duration `json:"position,omitempty"`
	At       time.Time     `json:"at"`
}

// Recorder buffers events and appends them to disk from its Run loop.
type Recorder struct {
	log    *zap.Logger
	path   string
	events chan Event
}

// NewRecorder creates a recorder writing to path.
func NewRecorder(log *zap.Logger, path string) *Recorder {
	return &Recorder{
		log:    log,
		path:   path,
		events: make(chan Event, 64),
	}
}

// Record enqueues an event. Never blocks; if the buffer is full the event
// is dropped and counted against nothing.
func (r *Recorder) Record(kind EventKind, item media.Item, pos time.Duration) {
	ev := Event{
		ID:       uuid.NewString(),
		Kind:     kind,
		ItemID:   item.ID,
		Title:    item.Title,
		Artist:   item.Artist,
		Position: pos,
		At:       time.Now().UTC(),
	}
	select {
	case r.events <- ev:
	default:
		r.log.Warn("history buffer full, dropping event",
			zap.String("kind", string(kind)),
			zap.String("item", item.ID))
	}
}

// UpdatePosition records the playback offset within an item, so interrupted
// episodes can be resumed. Fire-and-forget like Record.
func (r *Recorder) UpdatePosition(item media.Item, pos time.Duration) {
	r.Record(EventPosition, item, pos)
}

// LastPosition returns the most recent recorded offset for the item, 0 when
// none exists.
func (r *Recorder) LastPosition(itemID string) (time.Duration, error) {
	events, err := r.Recent(0)
	if err != nil {
		return 0, err
	}
	for _, ev := range events {
		if ev.ItemID == itemID && (ev.Kind == EventPosition || ev.Kind == EventSkipped) {
			return ev.Position, nil
		}
	}
	return 0, nil
}

// Run drains the event buffer into the log file until ctx is cancelled.
// Blocks.
func (r *Recorder) Run(ctx context.Context) error {
	f, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)

	for {
		select {
		case <-ctx.Done():
			// Drain whatever is already buffered before shutting down.
			for {
				select {
				case ev := <-r.events:
					if err := enc.Encode(ev); err != nil {
						r.log.Error("write history event", zap.Error(err))
					}
				default:
					return w.Flush()
				}
			}
		case ev := <-r.events:
			if err := enc.Encode(ev); err != nil {
				r.log.Error("write history event", zap.Error(err))
				continue
			}
			if err := w.Flush(); err != nil {
				r.log.Error("flush history file", zap.Error(err))
			}
		}
	}
}

// Recent reads back up to limit most recent events from the log file.
func (r *Recorder) Recent(limit int) ([]Event, error) {
	f, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer f.Close()

	var all []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			// A torn last line after a crash is expected; skip it.
			continue
		}
		all = append(all, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}

	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	// Newest first.
	for i, j := 0, len(all)-1; i < j; i, j = i+1, j-1 {
		all[i], all[j] = all[j], all[i]
	}
	return all, nil
}
