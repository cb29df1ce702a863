package element

import (
	"encoding/binary"
	"time"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitDepth      = 16
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// frameFromFloat converts a block of stereo float64 samples in [-1, 1] into
// interleaved int16 with the given linear gain applied. Unwritten tail
// samples (n < FrameSize) stay zero.
func frameFromFloat(block [][2]float64, n int, gain float64, dst []int16) {
	for i := 0; i < n; i++ {
		for ch := 0; ch < Channels; ch++ {
			v := block[i][ch] * gain * 32767
			if v > 32767 {
				v = 32767
			} else if v < -32768 {
				v = -32768
			}
			dst[i*Channels+ch] = int16(v)
		}
	}
	for i := n * Channels; i < len(dst); i++ {
		dst[i] = 0
	}
}
