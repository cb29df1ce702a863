package stream

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/halcyonlabs/kaleido/internal/vis"
)

// SSEHandler streams visualization frames as server-sent events. Each
// connected renderer gets its own listener; frames it cannot keep up with
// are dropped upstream by the broadcaster.
type SSEHandler struct {
	log         *zap.Logger
	broadcaster *Broadcaster[*vis.Frame]
}

// NewSSEHandler creates an SSE handler over a frame broadcaster.
func NewSSEHandler(log *zap.Logger, b *Broadcaster[*vis.Frame]) *SSEHandler {
	return &SSEHandler{log: log, broadcaster: b}
}

func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	h.log.Info("vis listener connected", zap.Int("total", h.broadcaster.ListenerCount()))
	defer h.log.Info("vis listener disconnected")

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case <-listener.done:
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			if err := enc.Encode(frame); err != nil {
				return
			}
			// json.Encoder already wrote one newline; SSE needs a blank line.
			if _, err := w.Write([]byte("\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
