// Package stream fans playback out to network listeners: Opus over WebRTC,
// chunked MP3 over HTTP, and visualization frames over SSE. All of them hang
// off broadcasters so a slow client can never stall the element.
package stream

import (
	"context"
	"sync"
)

// DefaultAudioBuffer is ~3 seconds of 20ms PCM frames.
const DefaultAudioBuffer = 150

// Broadcaster fans out values from one source channel to N listeners.
type Broadcaster[T any] struct {
	buffer    int
	mu        sync.RWMutex
	listeners map[*Listener[T]]struct{}
}

// Listener receives broadcast values.
type Listener[T any] struct {
	C    chan T
	done chan struct{}
}

// NewBroadcaster creates a broadcaster whose listeners buffer up to buffer
// values each.
func NewBroadcaster[T any](buffer int) *Broadcaster[T] {
	return &Broadcaster[T]{
		buffer:    buffer,
		listeners: make(map[*Listener[T]]struct{}),
	}
}

// Subscribe registers a new listener.
func (b *Broadcaster[T]) Subscribe() *Listener[T] {
	l := &Listener[T]{
		C:    make(chan T, b.buffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	b.mu.Unlock()
	return l
}

// Unsubscribe removes a listener and signals it to stop.
func (b *Broadcaster[T]) Unsubscribe(l *Listener[T]) {
	b.mu.Lock()
	delete(b.listeners, l)
	b.mu.Unlock()
	close(l.done)
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster[T]) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Run reads values from source and fans out to all listeners.
// Slow listeners get values dropped rather than blocking the broadcast.
func (b *Broadcaster[T]) Run(ctx context.Context, source <-chan T) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-source:
			if !ok {
				return
			}
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- v:
				default:
					// listener too slow, drop to keep the broadcast moving
				}
			}
			b.mu.RUnlock()
		}
	}
}
