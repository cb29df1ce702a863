package element

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// Origin classifies where a source's bytes came from, which decides whether
// the analysis tap may read it. Same-origin and proxied sources are safe;
// a direct cross-origin stream must never feed the analyser.
type Origin int

const (
	// OriginLocal is a same-origin file: owned storage or a proxied copy.
	OriginLocal Origin = iota
	// OriginRemote is a direct cross-origin stream, playable but not
	// analyzable until the proxy swap completes.
	OriginRemote
)

// Source is one decoded audio input for the element: a beep streamer
// resampled to the element's output rate, plus seekability and analysis
// safety metadata.
type Source struct {
	stream   beep.Streamer
	seeker   beep.StreamSeeker // nil for progressive network streams
	closer   io.Closer
	format   beep.Format
	origin   Origin
	seekable bool
	desc     string
}

// Analyzable reports whether the analysis tap may read this source.
func (s *Source) Analyzable() bool {
	return s.origin == OriginLocal
}

// Duration returns the total source duration, or 0 when unknown
// (progressive streams have no length until the proxied copy arrives).
func (s *Source) Duration() time.Duration {
	if s == nil || !s.seekable {
		return 0
	}
	return s.format.SampleRate.D(s.seeker.Len())
}

// seekTo positions the source at the given offset and rebuilds the
// resampler so stale filter state does not bleed across the jump.
func (s *Source) seekTo(offset time.Duration) error {
	if !s.seekable {
		return fmt.Errorf("source %s is not seekable", s.desc)
	}
	n := s.format.SampleRate.N(offset)
	if n < 0 {
		n = 0
	}
	if max := s.seeker.Len(); n >= max && max > 0 {
		n = max - 1
	}
	if err := s.seeker.Seek(n); err != nil {
		return fmt.Errorf("seek %s: %w", s.desc, err)
	}
	s.buildStream()
	return nil
}

// buildStream (re)wraps the raw streamer with a resampler when the source
// rate differs from the element output rate.
func (s *Source) buildStream() {
	var raw beep.Streamer = s.seeker
	if raw == nil || !s.seekable {
		raw = s.stream
	}
	if s.format.SampleRate != SampleRate {
		s.stream = beep.Resample(4, s.format.SampleRate, SampleRate, raw)
	} else {
		s.stream = raw
	}
}

// Close releases the underlying reader.
func (s *Source) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// OpenFile decodes a local audio file into a seekable, analyzable source.
func OpenFile(p string) (*Source, error) {
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	streamer, format, err := decodeByName(f, p)
	if err != nil {
		f.Close()
		return nil, err
	}

	src := &Source{
		seeker:   streamer,
		closer:   multiCloser{streamer, f},
		format:   format,
		origin:   OriginLocal,
		seekable: true,
		desc:     p,
	}
	src.buildStream()
	return src, nil
}

// OpenURL starts decoding a remote stream progressively. The result plays
// immediately but is neither seekable nor analyzable; the caller is expected
// to swap in a proxied local copy once one exists.
func OpenURL(url string) (*Source, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	streamer, format, err := decodeStream(resp.Body, url, resp.Header.Get("Content-Type"))
	if err != nil {
		resp.Body.Close()
		return nil, err
	}

	src := &Source{
		stream: streamer,
		closer: multiCloser{streamer, resp.Body},
		format: format,
		origin: OriginRemote,
		desc:   url,
	}
	src.buildStream()
	return src, nil
}

// decodeByName picks a decoder from the file extension. The reader must be
// seekable (local files always are).
func decodeByName(rsc io.ReadSeekCloser, name string) (beep.StreamSeekCloser, beep.Format, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".mp3":
		return mp3.Decode(rsc)
	case ".wav":
		return wav.Decode(rsc)
	case ".flac":
		return flac.Decode(rsc)
	case ".ogg", ".oga":
		return vorbis.Decode(rsc)
	default:
		return nil, beep.Format{}, fmt.Errorf("unsupported audio format: %s", name)
	}
}

// decodeStream decodes a network body. MP3 and Vorbis decode progressively;
// WAV and FLAC need random access, so those bodies are buffered in full
// before decoding (rare for direct URLs, which are overwhelmingly MP3).
func decodeStream(body io.ReadCloser, url, contentType string) (beep.StreamSeekCloser, beep.Format, error) {
	ext := strings.ToLower(path.Ext(strippedPath(url)))
	switch {
	case ext == ".mp3" || strings.Contains(contentType, "mpeg"):
		return mp3.Decode(body)
	case ext == ".ogg" || ext == ".oga" || strings.Contains(contentType, "ogg"):
		return vorbis.Decode(body)
	case ext == ".wav" || strings.Contains(contentType, "wav"):
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("buffer %s: %w", url, err)
		}
		return wav.Decode(bytes.NewReader(data))
	case ext == ".flac" || strings.Contains(contentType, "flac"):
		data, err := io.ReadAll(body)
		if err != nil {
			return nil, beep.Format{}, fmt.Errorf("buffer %s: %w", url, err)
		}
		return flac.Decode(bytes.NewReader(data))
	default:
		// Most direct locators are MP3 with opaque URLs.
		return mp3.Decode(body)
	}
}

// strippedPath drops the query string so extension sniffing works on URLs
// like /track.mp3?token=abc.
func strippedPath(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}

// multiCloser closes all non-nil closers, keeping the first error.
type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
