// Package element implements the single audio output element: it decodes one
// source at a time and paces PCM frames onto its output channel in real time.
// Transport primitives (play/pause/seek/volume) and progress/duration/ended
// events live here; queue logic and source selection live one layer up.
package element

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrSinkAttached is returned by AttachSink when the element already has an
// analysis sink. An element can be tapped at most once for its lifetime.
var ErrSinkAttached = errors.New("element: analysis sink already attached")

// FrameSink receives a copy of every outgoing frame for analysis. The
// analyzable flag is false while the current source is a direct cross-origin
// stream; sinks see silence then, never the tainted signal.
type FrameSink interface {
	Push(frame []int16, analyzable bool)
}

// EventType discriminates element events.
type EventType int

const (
	// EventProgress fires at the element's native time-update granularity
	// (roughly every 250ms of playback).
	EventProgress EventType = iota
	// EventDuration fires when a source with a known length is loaded.
	EventDuration
	// EventEnded fires when the current source runs out.
	EventEnded
)

// Event is a transport state change.
type Event struct {
	Type     EventType
	Position time.Duration
	Duration time.Duration
}

// progressEvery is the number of frames between progress events
// (12 * 20ms = 240ms, approximating media-element timeupdate granularity).
const progressEvery = 12

// Element owns the output: one source, one frame channel, one optional
// analysis sink. All mutation goes through its methods.
type Element struct {
	log     *zap.Logger
	frameCh chan []int16
	events  chan Event

	mu        sync.Mutex
	src       *Source
	gen       int // load generation; invalidates stale background swaps
	playing   bool
	volume    float64
	posFrames int // frames emitted since the start of the current source

	sink     FrameSink
	sinkOnce bool

	// scratch buffers reused every tick
	block [][2]float64
}

// New creates an element with no source and full volume.
func New(log *zap.Logger) *Element {
	return &Element{
		log:     log,
		frameCh: make(chan []int16, 100),
		events:  make(chan Event, 32),
		volume:  1.0,
		block:   make([][2]float64, FrameSize),
	}
}

// Frames returns the channel of outgoing PCM frames (20ms each). Silence
// frames flow while paused or idle so downstream consumers keep cadence.
func (e *Element) Frames() <-chan []int16 {
	return e.frameCh
}

// Events returns the transport event channel.
func (e *Element) Events() <-chan Event {
	return e.events
}

// AttachSink wires the one-time analysis sink. A second attach is a hard
// error for this element instance; callers that already hold the sink must
// reuse it rather than attach again.
func (e *Element) AttachSink(s FrameSink) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sinkOnce {
		return ErrSinkAttached
	}
	e.sink = s
	e.sinkOnce = true
	return nil
}

// Tapped reports whether an analysis sink has ever been attached.
func (e *Element) Tapped() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sinkOnce
}

// Load replaces the current source and rewinds to zero. The element stays
// paused; call Play to start.
func (e *Element) Load(src *Source) int {
	e.mu.Lock()
	old := e.src
	e.src = src
	e.gen++
	gen := e.gen
	e.posFrames = 0
	e.playing = false
	e.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if d := src.Duration(); d > 0 {
		e.emit(Event{Type: EventDuration, Duration: d})
	}
	return gen
}

// Swap hot-swaps the source while preserving offset and play state. It only
// applies when gen still matches the load that initiated the swap, so a swap
// resolving after the user changed tracks is dropped.
func (e *Element) Swap(src *Source, gen int) error {
	e.mu.Lock()
	if gen != e.gen {
		e.mu.Unlock()
		src.Close()
		return nil
	}
	offset := time.Duration(e.posFrames) * FrameDuration
	if err := src.seekTo(offset); err != nil {
		e.mu.Unlock()
		src.Close()
		return err
	}
	old := e.src
	e.src = src
	e.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if d := src.Duration(); d > 0 {
		e.emit(Event{Type: EventDuration, Duration: d})
	}
	return nil
}

// Play starts emitting source frames. Returns an error when no source is
// loaded.
func (e *Element) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == nil {
		return errors.New("element: no source loaded")
	}
	e.playing = true
	return nil
}

// Pause stops consuming the source; silence frames keep flowing.
func (e *Element) Pause() {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
}

// Playing reports whether the element is consuming its source.
func (e *Element) Playing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// SeekTo jumps to the given offset. Progressive (unswapped remote) sources
// are not seekable and return an error.
func (e *Element) SeekTo(offset time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == nil {
		return errors.New("element: no source loaded")
	}
	if err := e.src.seekTo(offset); err != nil {
		return err
	}
	e.posFrames = int(offset / FrameDuration)
	return nil
}

// SetVolume sets linear output gain, clamped to [0, 1].
func (e *Element) SetVolume(v float64) {
	e.mu.Lock()
	e.volume = max(0, min(1, v))
	e.mu.Unlock()
}

// Volume returns the current linear gain.
func (e *Element) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

// Position returns the playback offset within the current source.
func (e *Element) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(e.posFrames) * FrameDuration
}

// Duration returns the current source duration, 0 when unknown.
func (e *Element) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src.Duration()
}

// AnalysisSafe reports whether the current source may feed the analyser:
// a local file (owned or proxied). A direct remote stream is unsafe until
// the proxy swap lands.
func (e *Element) AnalysisSafe() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.src != nil && e.src.Analyzable()
}

// Generation returns the current load generation.
func (e *Element) Generation() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen
}

// Run paces output frames in real time. Blocks until ctx is cancelled.
func (e *Element) Run(ctx context.Context) {
	defer close(e.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, analyzable, ended := e.nextFrame()
		if ended {
			e.emit(Event{Type: EventEnded, Position: e.Position()})
		}

		e.mu.Lock()
		sink := e.sink
		e.mu.Unlock()
		if sink != nil {
			sink.Push(frame, analyzable)
		}

		select {
		case e.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// nextFrame produces the next 20ms frame: source audio when playing,
// silence otherwise. The returned slice is freshly allocated; listeners
// may hold it across frames.
func (e *Element) nextFrame() (frame []int16, analyzable bool, ended bool) {
	frame = make([]int16, FrameSamples)

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.playing || e.src == nil {
		return frame, e.src != nil && e.src.Analyzable(), false
	}

	n, ok := e.src.stream.Stream(e.block)
	if n > 0 {
		frameFromFloat(e.block, n, e.volume, frame)
		e.posFrames++
		if e.posFrames%progressEvery == 0 {
			pos := time.Duration(e.posFrames) * FrameDuration
			e.emitLocked(Event{Type: EventProgress, Position: pos, Duration: e.src.Duration()})
		}
	}
	if !ok && n == 0 {
		e.playing = false
		return frame, e.src.Analyzable(), true
	}
	return frame, e.src.Analyzable(), false
}

// emit sends an event without blocking; UI consumers that fall behind lose
// intermediate progress updates, which is harmless.
func (e *Element) emit(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

func (e *Element) emitLocked(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}
