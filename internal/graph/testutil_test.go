package graph

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"
)

// writeTestWAV writes a short 48kHz stereo PCM16 sine wave and returns its
// path.
func writeTestWAV(t *testing.T, dir string) string {
	t.Helper()

	const (
		rate     = 48000
		channels = 2
		samples  = 4800 // 100ms
	)

	pcm := make([]byte, samples*channels*2)
	for i := 0; i < samples; i++ {
		v := int16(0.5 * 32767 * math.Sin(2*math.Pi*440*float64(i)/rate))
		for ch := 0; ch < channels; ch++ {
			binary.LittleEndian.PutUint16(pcm[(i*channels+ch)*2:], uint16(v))
		}
	}

	var buf []byte
	u32 := func(v uint32) []byte {
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, v)
		return b
	}
	u16 := func(v uint16) []byte {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, v)
		return b
	}

	buf = append(buf, []byte("RIFF")...)
	buf = append(buf, u32(uint32(36+len(pcm)))...)
	buf = append(buf, []byte("WAVE")...)
	buf = append(buf, []byte("fmt ")...)
	buf = append(buf, u32(16)...)
	buf = append(buf, u16(1)...) // PCM
	buf = append(buf, u16(channels)...)
	buf = append(buf, u32(rate)...)
	buf = append(buf, u32(rate*channels*2)...)
	buf = append(buf, u16(channels*2)...)
	buf = append(buf, u16(16)...)
	buf = append(buf, []byte("data")...)
	buf = append(buf, u32(uint32(len(pcm)))...)
	buf = append(buf, pcm...)

	path := filepath.Join(dir, "test.wav")
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("write test wav: %v", err)
	}
	return path
}
