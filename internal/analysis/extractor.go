// Package analysis reduces raw tap samples to the per-frame frequency
// snapshot consumed by the visualizer and UI meters: byte-valued frequency
// bins, a time-domain waveform, and bass/mid/treble/volume scalars.
package analysis

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// FFTSize is the transform length; BinCount bins of usable spectrum.
	FFTSize  = 2048
	BinCount = FFTSize / 2

	// smoothing is the time constant blending each frame's magnitudes into
	// the previous ones, matching an analyser smoothing of 0.8.
	smoothing = 0.8

	// Byte bins map dB magnitudes from [minDB, maxDB] onto [0, 255].
	minDB = -100.0
	maxDB = -30.0

	// Band boundaries by bin index for a 2048-point transform at 48kHz:
	// bass ~0-250Hz, mid ~250Hz-4kHz, treble above.
	bassEnd = 12
	midEnd  = 186

	// sensitivity scales averaged band energy before clamping to [0, 1].
	sensitivity = 1.2
)

// Snapshot is one frame's worth of analysis output. It is frame-lived: the
// extractor reuses the backing buffers, so consumers must not retain it
// across frames. Use Clone for a stable copy.
type Snapshot struct {
	Frequencies []byte  `json:"frequencies"` // BinCount byte-valued bins
	Waveform    []byte  `json:"waveform"`    // FFTSize time-domain bytes
	Bass        float64 `json:"bass"`
	Mid         float64 `json:"mid"`
	Treble      float64 `json:"treble"`
	Volume      float64 `json:"volume"`
}

// Clone returns a deep copy safe to retain.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.Frequencies = append([]byte(nil), s.Frequencies...)
	c.Waveform = append([]byte(nil), s.Waveform...)
	return &c
}

// SampleSource supplies the most recent mono samples, newest last.
type SampleSource interface {
	CopyInto(dst []float64)
}

// Extractor performs the per-frame reduction. Not safe for concurrent use;
// it belongs to the single render-loop goroutine.
type Extractor struct {
	fft     *fourier.FFT
	window  []float64
	samples []float64
	winBuf  []float64
	coeffs  []complex128
	smooth  []float64

	snap Snapshot
}

// NewExtractor creates an extractor with a Blackman analysis window.
func NewExtractor() *Extractor {
	e := &Extractor{
		fft:     fourier.NewFFT(FFTSize),
		window:  make([]float64, FFTSize),
		samples: make([]float64, FFTSize),
		winBuf:  make([]float64, FFTSize),
		coeffs:  make([]complex128, FFTSize/2+1),
		smooth:  make([]float64, BinCount),
	}
	// Blackman window, the same shaping the browser analyser applies.
	const a0, a1, a2 = 0.42, 0.5, 0.08
	for i := range e.window {
		x := 2 * math.Pi * float64(i) / float64(FFTSize-1)
		e.window[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	e.snap.Frequencies = make([]byte, BinCount)
	e.snap.Waveform = make([]byte, FFTSize)
	return e
}

// Poll reads the source and produces the current snapshot. Returns nil when
// no source exists (no tap yet): consumers fall back to their idle state.
// The returned snapshot shares the extractor's buffers.
func (e *Extractor) Poll(src SampleSource) *Snapshot {
	if src == nil {
		return nil
	}
	src.CopyInto(e.samples)

	// Time domain: map [-1, 1] onto the byte range with 128 as silence.
	for i, s := range e.samples {
		e.snap.Waveform[i] = floatToByte(s)
	}

	for i, s := range e.samples {
		e.winBuf[i] = s * e.window[i]
	}
	e.coeffs = e.fft.Coefficients(e.coeffs, e.winBuf)

	for i := 0; i < BinCount; i++ {
		mag := cmplx.Abs(e.coeffs[i]) / float64(FFTSize)
		e.smooth[i] = smoothing*e.smooth[i] + (1-smoothing)*mag
		e.snap.Frequencies[i] = dbToByte(e.smooth[i])
	}

	e.snap.Bass = bandEnergy(e.snap.Frequencies[:bassEnd])
	e.snap.Mid = bandEnergy(e.snap.Frequencies[bassEnd:midEnd])
	e.snap.Treble = bandEnergy(e.snap.Frequencies[midEnd:])
	e.snap.Volume = bandEnergy(e.snap.Frequencies)

	return &e.snap
}

// bandEnergy averages normalized bins, applies sensitivity, clamps to [0, 1].
func bandEnergy(bins []byte) float64 {
	if len(bins) == 0 {
		return 0
	}
	var sum float64
	for _, b := range bins {
		sum += float64(b) / 255.0
	}
	v := sum / float64(len(bins)) * sensitivity
	return max(0, min(1, v))
}

// dbToByte converts a linear magnitude to the analyser byte scale.
func dbToByte(mag float64) byte {
	if mag <= 0 {
		return 0
	}
	db := 20 * math.Log10(mag)
	v := 255 * (db - minDB) / (maxDB - minDB)
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

// floatToByte maps a [-1, 1] sample to the waveform byte scale.
func floatToByte(s float64) byte {
	v := s*128 + 128
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
