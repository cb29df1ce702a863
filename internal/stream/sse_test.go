package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonlabs/kaleido/internal/vis"
)

func TestSSEStreamsFrames(t *testing.T) {
	b := NewBroadcaster[*vis.Frame](4)
	h := NewSSEHandler(zap.NewNop(), b)

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := make(chan *vis.Frame, 4)
	go b.Run(ctx, source)

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	// Wait for the subscription before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for b.ListenerCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	want := &vis.Frame{Mode: "water", Volume: 0.7, Particles: []float32{1, 2, 3, 4, 5, 6, 7}}
	source <- want

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(line, "data: ") {
		t.Fatalf("line = %q, want data: prefix", line)
	}

	var got vis.Frame
	if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &got); err != nil {
		t.Fatalf("frame payload is not JSON: %v", err)
	}
	if got.Mode != "water" || got.Volume != 0.7 {
		t.Errorf("frame = %+v, want mode water volume 0.7", got)
	}
	if len(got.Particles) != 7 {
		t.Errorf("particles length = %d, want 7", len(got.Particles))
	}

	// The event terminator is a blank line.
	blank, err := reader.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(blank) != "" {
		t.Errorf("expected blank separator line, got %q", blank)
	}
}
