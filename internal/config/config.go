package config

import (
	"os"
	"strconv"
	"time"
)

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Storage
	LibraryDir  string
	CacheDir    string
	CacheMaxMB  int
	HistoryFile string

	// Playback
	Volume float64 // initial linear gain [0,1]

	// Analysis
	TapRetryDelay time.Duration // pause between tap safety re-checks

	// Visualization
	Particles int
	VisMode   string
	CanvasW   int
	CanvasH   int
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port: envInt("KALEIDO_PORT", 8080),

		LibraryDir:  envStr("KALEIDO_LIBRARY_DIR", "./music"),
		CacheDir:    envStr("KALEIDO_CACHE_DIR", "./cache"),
		CacheMaxMB:  envInt("KALEIDO_CACHE_MAX_MB", 512),
		HistoryFile: envStr("KALEIDO_HISTORY_FILE", "./history.jsonl"),

		Volume: envFloat("KALEIDO_VOLUME", 1.0),

		TapRetryDelay: time.Duration(envInt("KALEIDO_TAP_RETRY_MS", 500)) * time.Millisecond,

		Particles: envInt("KALEIDO_PARTICLES", 600),
		VisMode:   envStr("KALEIDO_VIS_MODE", "chladni"),
		CanvasW:   envInt("KALEIDO_CANVAS_W", 1280),
		CanvasH:   envInt("KALEIDO_CANVAS_H", 720),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
