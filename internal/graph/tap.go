package graph

import (
	"sync"

	"github.com/halcyonlabs/kaleido/internal/element"
)

// Tap is the analysis node of the audio graph. It mixes every outgoing
// frame down to mono and keeps the most recent samples in a ring buffer for
// the extractor to poll. Frames from a source that is not analysis-safe are
// recorded as silence: the tap never carries a cross-origin signal.
type Tap struct {
	mu   sync.Mutex
	buf  []float64
	pos  int
	size int
}

// NewTap creates a tap holding the given number of mono samples.
func NewTap(size int) *Tap {
	return &Tap{
		buf:  make([]float64, size),
		size: size,
	}
}

// Push records a mono mix of the frame into the ring buffer. Implements
// element.FrameSink.
func (t *Tap) Push(frame []int16, analyzable bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !analyzable {
		// Zero the signal rather than expose an unsafe source.
		n := len(frame) / element.Channels
		for i := 0; i < n; i++ {
			t.buf[t.pos] = 0
			t.pos = (t.pos + 1) % t.size
		}
		return
	}
	for i := 0; i+element.Channels <= len(frame); i += element.Channels {
		var sum float64
		for ch := 0; ch < element.Channels; ch++ {
			sum += float64(frame[i+ch]) / 32768.0
		}
		t.buf[t.pos] = sum / element.Channels
		t.pos = (t.pos + 1) % t.size
	}
}

// CopyInto fills dst with the most recent len(dst) samples in chronological
// order. Implements analysis.SampleSource; no allocation.
func (t *Tap) CopyInto(dst []float64) {
	n := len(dst)
	if n > t.size {
		n = t.size
	}
	t.mu.Lock()
	start := (t.pos - n + t.size) % t.size
	for i := 0; i < n; i++ {
		dst[i] = t.buf[(start+i)%t.size]
	}
	t.mu.Unlock()
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
}
