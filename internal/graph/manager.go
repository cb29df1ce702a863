// Package graph owns the analysis side of the audio graph: the one-time tap
// on the output element and the extractor that reduces its samples to
// frequency snapshots.
//
// The hard constraint mirrored here is that an element can be tapped at most
// once for its lifetime. The manager holds the resulting capability: asking
// again returns the existing tap, and tap creation is deferred until the
// element's current source is safe to analyze.
package graph

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/halcyonlabs/kaleido/internal/analysis"
	"github.com/halcyonlabs/kaleido/internal/element"
	"go.uber.org/zap"
)

// ErrUnsafeSource means the element's current source is a direct cross-origin
// stream that has not been proxied yet. Not a failure: callers retry until
// the two-phase load swaps in a safe source.
var ErrUnsafeSource = errors.New("graph: current source not safe to analyze")

// throttleInterval is how many polls pass between refreshes of the
// allocating snapshot handed to reactive UI consumers.
const throttleInterval = 4

// DefaultRetryDelay is the pause between safety re-checks while waiting for
// a proxied source.
const DefaultRetryDelay = 500 * time.Millisecond

// Manager builds and owns the single tap per output element.
type Manager struct {
	log   *zap.Logger
	retry time.Duration

	mu        sync.Mutex
	el        *element.Element
	tap       *Tap
	ext       *analysis.Extractor
	pollCount int
	throttled *analysis.Snapshot
}

// NewManager creates a manager with the default retry delay.
func NewManager(log *zap.Logger) *Manager {
	return &Manager{
		log:   log,
		retry: DefaultRetryDelay,
		ext:   analysis.NewExtractor(),
	}
}

// SetRetryDelay overrides the pause between safety re-checks.
func (m *Manager) SetRetryDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d > 0 {
		m.retry = d
	}
}

// Acquire returns the tap for the element, building it on first call.
//
// Re-acquiring for the same element returns the existing tap (the
// "already connected" race is benign). If a different element instance is
// passed, previous tap state is discarded: the old element is gone and its
// tap with it. Returns ErrUnsafeSource while the element's source must not
// be analyzed; any other attach failure is propagated.
func (m *Manager) Acquire(el *element.Element) (*Tap, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.el == el && m.tap != nil {
		return m.tap, nil
	}
	if m.el != nil && m.el != el {
		m.log.Info("output element replaced, resetting tap state")
		m.el = nil
		m.tap = nil
		m.ext = analysis.NewExtractor()
		m.throttled = nil
	}

	if !el.AnalysisSafe() {
		return nil, ErrUnsafeSource
	}

	tap := NewTap(analysis.FFTSize * 2)
	if err := el.AttachSink(tap); err != nil {
		if errors.Is(err, element.ErrSinkAttached) && m.tap != nil {
			// Benign race: the tap exists, hand it back.
			return m.tap, nil
		}
		return nil, err
	}

	m.el = el
	m.tap = tap
	m.log.Info("analysis tap attached")
	return tap, nil
}

// EnsureTap blocks until the tap exists, retrying while the source is
// unsafe. Any error other than ErrUnsafeSource is terminal: analysis
// degrades to the idle fallback and playback continues untouched.
func (m *Manager) EnsureTap(ctx context.Context, el *element.Element) error {
	for {
		_, err := m.Acquire(el)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrUnsafeSource) {
			m.log.Error("tap construction failed, visualization degrades to idle", zap.Error(err))
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.retry):
		}
	}
}

// Tapped reports whether the tap exists.
func (m *Manager) Tapped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tap != nil
}

// Snapshot polls the extractor and returns the latest frame-lived snapshot.
// Nil while no tap exists. Intended for the single render-loop consumer;
// the returned value is overwritten by the next call.
func (m *Manager) Snapshot() *analysis.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tap == nil {
		return nil
	}
	s := m.ext.Poll(m.tap)
	m.pollCount++
	if m.pollCount%throttleInterval == 0 {
		m.throttled = s.Clone()
	}
	return s
}

// Throttled returns a stable copy of a recent snapshot, refreshed every
// fourth poll. For reactive UI consumers whose re-render cost must be
// bounded; nil while no tap exists or nothing was polled yet.
func (m *Manager) Throttled() *analysis.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.throttled.Clone()
}
