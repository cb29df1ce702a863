package player

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"go.uber.org/zap"

	"github.com/halcyonlabs/kaleido/internal/element"
	"github.com/halcyonlabs/kaleido/internal/history"
	"github.com/halcyonlabs/kaleido/internal/media"
	"github.com/halcyonlabs/kaleido/internal/player/mocks"
)

// writeWAV writes a short 48kHz stereo PCM16 file and returns its path.
func writeWAV(t *testing.T, dir, name string) string {
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

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOwnedSource(t *testing.T) {
	mc := gomock.NewController(t)
	proxy := mocks.NewMockProxy(mc)
	resolver := mocks.NewMockResolver(mc)
	hist := mocks.NewMockHistory(mc)

	wav := writeWAV(t, t.TempDir(), "owned.wav")
	resolver.EXPECT().Resolve("owned.wav").Return(wav, nil)
	hist.EXPECT().Record(history.EventPlayed, gomock.Any(), time.Duration(0))

	el := element.New(zap.NewNop())
	c := NewController(zap.NewNop(), el, proxy, resolver, hist)

	item := media.NewTrack("t1", "Owned", "", 0, media.OwnedLocator("owned.wav"))
	if err := c.Load(context.Background(), item); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !el.Playing() {
		t.Error("element should be playing after Load")
	}
	if !el.AnalysisSafe() {
		t.Error("owned sources are always analyzable")
	}
	if el.Duration() <= 0 {
		t.Error("owned sources have a known duration")
	}
}

func TestLoadEmptyLocatorIsNoOp(t *testing.T) {
	mc := gomock.NewController(t)
	el := element.New(zap.NewNop())
	c := NewController(zap.NewNop(), el,
		mocks.NewMockProxy(mc), mocks.NewMockResolver(mc), mocks.NewMockHistory(mc))

	item := media.NewTrack("t1", "Nothing", "", 0, media.Locator{})
	if err := c.Load(context.Background(), item); err != nil {
		t.Fatalf("empty locator must not error: %v", err)
	}
	if el.Playing() {
		t.Error("empty locator must not change transport state")
	}
}

func TestLoadResolverErrorPropagates(t *testing.T) {
	mc := gomock.NewController(t)
	resolver := mocks.NewMockResolver(mc)
	resolver.EXPECT().Resolve("gone.wav").Return("", errors.New("no such ref"))

	el := element.New(zap.NewNop())
	c := NewController(zap.NewNop(), el,
		mocks.NewMockProxy(mc), resolver, mocks.NewMockHistory(mc))

	item := media.NewTrack("t1", "Gone", "", 0, media.OwnedLocator("gone.wav"))
	if err := c.Load(context.Background(), item); err == nil {
		t.Fatal("want error when the resolver fails")
	}
	if el.Playing() {
		t.Error("failed load must not start playback")
	}
}

func TestLoadDirectUsesExistingProxyCopy(t *testing.T) {
	mc := gomock.NewController(t)
	proxy := mocks.NewMockProxy(mc)
	hist := mocks.NewMockHistory(mc)

	wav := writeWAV(t, t.TempDir(), "cached.wav")
	url := "https://cdn.example.com/cached.wav"
	proxy.EXPECT().CachedPath(url).Return(wav, true)
	hist.EXPECT().Record(history.EventPlayed, gomock.Any(), time.Duration(0))

	el := element.New(zap.NewNop())
	c := NewController(zap.NewNop(), el, proxy, mocks.NewMockResolver(mc), hist)

	item := media.NewTrack("t1", "Cached", "", 0, media.DirectLocator(url))
	if err := c.Load(context.Background(), item); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !el.AnalysisSafe() {
		t.Error("a cached direct source plays from the local copy and is analyzable")
	}
}

func TestLoadDirectSwapsProxiedCopyInBackground(t *testing.T) {
	dir := t.TempDir()
	remote := writeWAV(t, dir, "remote.wav")
	data, err := os.ReadFile(remote)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(data)
	}))
	defer srv.Close()
	url := srv.URL + "/remote.wav"

	mc := gomock.NewController(t)
	proxy := mocks.NewMockProxy(mc)
	hist := mocks.NewMockHistory(mc)
	proxy.EXPECT().CachedPath(url).Return("", false)
	proxy.EXPECT().Fetch(gomock.Any(), url).Return(remote, nil)
	hist.EXPECT().Record(history.EventPlayed, gomock.Any(), time.Duration(0))

	el := element.New(zap.NewNop())
	c := NewController(zap.NewNop(), el, proxy, mocks.NewMockResolver(mc), hist)

	item := media.NewTrack("t1", "Remote", "", 0, media.DirectLocator(url))
	if err := c.Load(context.Background(), item); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !el.Playing() {
		t.Fatal("direct source must play immediately, before the proxy lands")
	}

	deadline := time.Now().Add(3 * time.Second)
	for !el.AnalysisSafe() {
		if time.Now().After(deadline) {
			t.Fatal("background swap to the proxied copy never landed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !el.Playing() {
		t.Error("swap must preserve the playing state")
	}
	if el.Duration() <= 0 {
		t.Error("the proxied copy is seekable and has a known duration")
	}
}
