package main

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonlabs/kaleido/internal/config"
	"github.com/halcyonlabs/kaleido/internal/element"
	"github.com/halcyonlabs/kaleido/internal/graph"
	"github.com/halcyonlabs/kaleido/internal/history"
	"github.com/halcyonlabs/kaleido/internal/media"
	"github.com/halcyonlabs/kaleido/internal/player"
	"github.com/halcyonlabs/kaleido/internal/proxy"
	"github.com/halcyonlabs/kaleido/internal/queue"
	"github.com/halcyonlabs/kaleido/internal/storage"
	"github.com/halcyonlabs/kaleido/internal/stream"
	"github.com/halcyonlabs/kaleido/internal/vis"
)

func main() {
	cfg := config.Load()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("kaleido starting up")

	// Library
	library, err := storage.NewLibrary(log, cfg.LibraryDir)
	if err != nil {
		log.Fatal("library init failed", zap.Error(err))
	}
	if err := library.Scan(ctx); err != nil {
		log.Fatal("library scan failed", zap.Error(err))
	}

	// Proxy cache for direct URLs
	cache, err := proxy.NewCache(log, cfg.CacheDir, int64(cfg.CacheMaxMB)<<20)
	if err != nil {
		log.Fatal("proxy cache init failed", zap.Error(err))
	}

	// Playback history
	recorder := history.NewRecorder(log, cfg.HistoryFile)
	go func() {
		if err := recorder.Run(ctx); err != nil {
			log.Error("history recorder stopped", zap.Error(err))
		}
	}()

	// Output element
	el := element.New(log)
	el.SetVolume(cfg.Volume)
	go el.Run(ctx)

	// Broadcaster: fan-out PCM frames to all audio listeners
	audioBC := stream.NewBroadcaster[[]int16](stream.DefaultAudioBuffer)
	go audioBC.Run(ctx, el.Frames())

	// Analysis graph: one tap per element, attached once the source is safe
	mgr := graph.NewManager(log)
	mgr.SetRetryDelay(cfg.TapRetryDelay)
	go func() {
		if err := mgr.EnsureTap(ctx, el); err != nil && ctx.Err() == nil {
			log.Warn("analysis tap unavailable", zap.Error(err))
		}
	}()

	// Player core
	q := queue.New()
	ctrl := player.NewController(log, el, cache, library, recorder)
	session := player.NewSession(log, q, ctrl, el, recorder)
	go session.Run(ctx)

	// Visualization engine
	engine := vis.NewEngine(log, cfg.Particles, float64(cfg.CanvasW), float64(cfg.CanvasH))
	if m, err := vis.ParseMode(cfg.VisMode); err == nil {
		engine.SetMode(m)
	} else {
		log.Warn("unknown visualization mode, using default", zap.String("mode", cfg.VisMode))
	}
	go engine.Run(ctx, mgr)

	visBC := stream.NewBroadcaster[*vis.Frame](2)
	go visBC.Run(ctx, engine.Frames())

	// Stream handlers
	webrtcHandler := stream.NewWebRTCHandler(log, audioBC)

	// HTTP routes
	mux := http.NewServeMux()

	mux.Handle("/stream", stream.NewHTTPHandler(log, audioBC))
	mux.Handle("/offer", webrtcHandler)
	mux.Handle("/events/vis", stream.NewSSEHandler(log, visBC))

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		cur, _ := q.Current()
		writeJSON(w, map[string]any{
			"item_id":          cur.ID,
			"title":            cur.Title,
			"artist":           cur.Artist,
			"kind":             cur.Kind.String(),
			"playing":          el.Playing(),
			"position":         el.Position().Seconds(),
			"duration":         el.Duration().Seconds(),
			"volume":           el.Volume(),
			"shuffle":          q.Shuffle(),
			"repeat":           q.RepeatMode().String(),
			"queue_len":        q.Len(),
			"tapped":           mgr.Tapped(),
			"mode":             engine.ModeOf().String(),
			"http_listeners":   audioBC.ListenerCount(),
			"webrtc_listeners": webrtcHandler.PeerCount(),
			"vis_listeners":    visBC.ListenerCount(),
		})
	})

	mux.HandleFunc("/api/library", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, library.Items())
	})

	mux.HandleFunc("/api/scan", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		if err := library.Scan(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "tracks": library.Len()})
	})

	mux.HandleFunc("/api/play", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID  string `json:"id"`
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		var item media.Item
		switch {
		case req.ID != "":
			var ok bool
			item, ok = library.Item(req.ID)
			if !ok {
				http.Error(w, "unknown item", http.StatusNotFound)
				return
			}
		case req.URL != "":
			item = media.NewTrack(urlID(req.URL), req.URL, "", 0, media.DirectLocator(req.URL))
		default:
			http.Error(w, "id or url required", http.StatusBadRequest)
			return
		}

		if err := session.Play(context.WithoutCancel(r.Context()), item); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		// Episodes resume from their last checkpointed offset.
		if item.IsEpisode() {
			if pos, err := recorder.LastPosition(item.ID); err == nil && pos > 0 {
				if err := el.SeekTo(pos); err != nil {
					log.Warn("episode resume seek failed",
						zap.String("item", item.ID), zap.Error(err))
				}
			}
		}
		writeJSON(w, map[string]any{"ok": true, "item_id": item.ID})
	})

	mux.HandleFunc("/api/pause", postAction(func() error { session.Pause(); return nil }))
	mux.HandleFunc("/api/resume", postAction(session.Resume))
	mux.HandleFunc("/api/next", postAction(func() error {
		return session.Next(context.WithoutCancel(ctx))
	}))
	mux.HandleFunc("/api/previous", postAction(func() error {
		return session.Previous(context.WithoutCancel(ctx))
	}))

	mux.HandleFunc("/api/seek", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Position float64 `json:"position"` // seconds
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Position < 0 {
			http.Error(w, "invalid position", http.StatusBadRequest)
			return
		}
		if err := el.SeekTo(time.Duration(req.Position * float64(time.Second))); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "position": el.Position().Seconds()})
	})

	mux.HandleFunc("/api/volume", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Volume float64 `json:"volume"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		el.SetVolume(req.Volume)
		writeJSON(w, map[string]any{"ok": true, "volume": el.Volume()})
	})

	mux.HandleFunc("/api/queue", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, map[string]any{
				"items":   q.Items(),
				"current": q.CurrentID(),
			})
		case http.MethodPost:
			var req struct {
				IDs []string `json:"ids"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}
			items := make([]media.Item, 0, len(req.IDs))
			for _, id := range req.IDs {
				if it, ok := library.Item(id); ok {
					items = append(items, it)
				}
			}
			q.SetQueue(items)
			writeJSON(w, map[string]any{"ok": true, "queue_len": q.Len()})
		default:
			http.Error(w, "GET or POST required", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/queue/remove", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}
		q.Remove(req.ID)
		writeJSON(w, map[string]any{"ok": true, "queue_len": q.Len()})
	})

	mux.HandleFunc("/api/queue/clear", postAction(func() error { q.Clear(); return nil }))
	mux.HandleFunc("/api/shuffle", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "shuffle": q.ToggleShuffle()})
	})

	mux.HandleFunc("/api/repeat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, map[string]any{"ok": true, "repeat": q.CycleRepeat().String()})
	})

	mux.HandleFunc("/api/mode", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, map[string]any{"mode": engine.ModeOf().String()})
		case http.MethodPost:
			var req struct {
				Mode string `json:"mode"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid request", http.StatusBadRequest)
				return
			}
			m, err := vis.ParseMode(req.Mode)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			engine.SetMode(m)
			writeJSON(w, map[string]any{"ok": true, "mode": m.String()})
		default:
			http.Error(w, "GET or POST required", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/canvas", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Width  float64 `json:"width"`
			Height float64 `json:"height"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Width <= 0 || req.Height <= 0 {
			http.Error(w, "invalid canvas size", http.StatusBadRequest)
			return
		}
		engine.Resize(req.Width, req.Height)
		writeJSON(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/api/frequency", func(w http.ResponseWriter, r *http.Request) {
		s := mgr.Throttled()
		if s == nil {
			writeJSON(w, map[string]any{"available": false})
			return
		}
		writeJSON(w, map[string]any{
			"available": true,
			"bass":      s.Bass,
			"mid":       s.Mid,
			"treble":    s.Treble,
			"volume":    s.Volume,
		})
	})

	mux.HandleFunc("/api/history", func(w http.ResponseWriter, r *http.Request) {
		events, err := recorder.Recent(100)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, events)
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		server.Close()
	}()

	log.Info("kaleido live", zap.String("addr", addr), zap.Int("tracks", library.Len()))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal("http server error", zap.Error(err))
	}
}

// writeJSON writes v as a JSON response with permissive CORS, matching the
// stream handlers.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(v)
}

// postAction wraps a no-body POST command.
func postAction(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		if err := fn(); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	}
}

// urlID derives a stable item ID for ad-hoc direct URLs.
func urlID(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:8])
}
