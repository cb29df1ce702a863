// Package vis renders audio-reactive particle fields. An Engine owns a fixed
// pool of particles and, each tick, pulls a frequency snapshot, computes a
// per-particle target from the active mode's field, and integrates simple
// spring physics toward it. The output is a flat render buffer per frame;
// drawing is someone else's job.
package vis

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/halcyonlabs/kaleido/internal/analysis"
)

const (
	// DefaultParticleCount is the pool size used when none is configured.
	DefaultParticleCount = 600

	// FloatsPerParticle is the render-buffer stride: x, y, size, r, g, b, a.
	FloatsPerParticle = 7

	// baseFrameTime is the reference tick the physics constants are tuned
	// for. Longer real ticks are compensated, but never beyond twice this,
	// so a stall cannot launch particles across the canvas.
	baseFrameTime = time.Second / 60

	stiffness   = 0.045
	damping     = 0.9
	maxVelocity = 28.0

	// lifeRate ramps a fresh particle to full presence in about a second.
	lifeRate = 1.2

	// bloomThreshold is the overall volume above which the frame asks the
	// renderer for a glow pass.
	bloomThreshold = 0.4
)

type particle struct {
	x, y   float64
	vx, vy float64
	life   float64
}

// Frame is one tick of render data.
type Frame struct {
	Mode          string  `json:"mode"`
	Elapsed       float64 `json:"elapsed"`
	Bass          float64 `json:"bass"`
	Mid           float64 `json:"mid"`
	Treble        float64 `json:"treble"`
	Volume        float64 `json:"volume"`
	Bloom         bool    `json:"bloom"`
	BloomStrength float64 `json:"bloomStrength"`

	// Particles packs FloatsPerParticle values per particle:
	// x, y, size, r, g, b, a.
	Particles []float32 `json:"particles"`
}

// SnapshotSource supplies the engine with frequency data. Nil means no tap is
// live yet; the engine idles.
type SnapshotSource interface {
	Snapshot() *analysis.Snapshot
}

// Engine integrates the particle pool.
type Engine struct {
	log    *zap.Logger
	frames chan *Frame

	mu        sync.Mutex
	mode      Mode
	particles []particle
	w, h      float64
	cx, cy    float64
	elapsed   float64
}

// NewEngine creates an engine with count particles on a w x h canvas.
func NewEngine(log *zap.Logger, count int, w, h float64) *Engine {
	if count <= 0 {
		count = DefaultParticleCount
	}
	e := &Engine{
		log:       log,
		frames:    make(chan *Frame, 2),
		particles: make([]particle, count),
		w:         w,
		h:         h,
		cx:        w / 2,
		cy:        h / 2,
	}
	// Seed the pool on a ring so the first frames look intentional rather
	// than a point explosion. Life starts at zero and ramps in.
	r := math.Min(w, h) * 0.2
	for i := range e.particles {
		ang := float64(i) * goldenAngle
		e.particles[i].x = e.cx + r*math.Cos(ang)
		e.particles[i].y = e.cy + r*math.Sin(ang)
	}
	return e
}

// Frames returns the channel of outgoing render frames. Frames are dropped,
// not queued, when the consumer falls behind.
func (e *Engine) Frames() <-chan *Frame {
	return e.frames
}

// SetMode switches the active field. Particle state carries over, so the
// pool glides into the new shape instead of snapping.
func (e *Engine) SetMode(m Mode) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if m != e.mode {
		e.log.Info("visualization mode changed", zap.String("mode", m.String()))
	}
	e.mode = m
}

// ModeOf returns the active mode.
func (e *Engine) ModeOf() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// Resize recenters the pool on the new canvas. Positions shift with the
// center; life and velocity are untouched, so no flicker on window resize.
func (e *Engine) Resize(w, h float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dx := w/2 - e.cx
	dy := h/2 - e.cy
	for i := range e.particles {
		e.particles[i].x += dx
		e.particles[i].y += dy
	}
	e.w, e.h = w, h
	e.cx, e.cy = w/2, h/2
}

// ParticleCount returns the pool size.
func (e *Engine) ParticleCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.particles)
}

// Run ticks the engine until ctx is cancelled, polling src for frequency
// data each frame. Blocks.
func (e *Engine) Run(ctx context.Context, src SnapshotSource) {
	defer close(e.frames)

	ticker := time.NewTicker(baseFrameTime)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last)
			last = now

			var snap *analysis.Snapshot
			if src != nil {
				snap = src.Snapshot()
			}
			frame := e.Step(snap, dt)

			select {
			case e.frames <- frame:
			default:
				// Consumer is behind; this frame is stale the moment
				// the next one exists.
			}
		}
	}
}

// Step advances the simulation by dt and returns the render frame. A nil
// snapshot means no audio is available: particles breathe on an idle ring
// and the clock keeps advancing, but no mode field is evaluated.
func (e *Engine) Step(snap *analysis.Snapshot, dt time.Duration) *Frame {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Normalize to the reference tick; a stalled tick integrates at most
	// two frames' worth of motion.
	scale := dt.Seconds() / baseFrameTime.Seconds()
	if scale > 2 {
		scale = 2
	}
	if scale < 0 {
		scale = 0
	}
	e.elapsed += baseFrameTime.Seconds() * scale

	idle := snap == nil
	var bass, mid, treble, vol float64
	if snap != nil {
		bass, mid, treble, vol = snap.Bass, snap.Mid, snap.Treble, snap.Volume
	}

	n := len(e.particles)
	damp := math.Pow(damping, scale)
	for i := range e.particles {
		p := &e.particles[i]

		var tx, ty float64
		if idle {
			tx, ty = idleTarget(i, n, math.Min(e.w, e.h), e.cx, e.cy, e.elapsed)
		} else {
			tx, ty = target(e.mode, i, n, e.w, e.h, e.cx, e.cy, snap, e.elapsed)
		}

		// Spring toward the target: acceleration proportional to the
		// full displacement vector.
		p.vx += (tx - p.x) * stiffness * scale
		p.vy += (ty - p.y) * stiffness * scale
		p.vx *= damp
		p.vy *= damp

		if speed := math.Hypot(p.vx, p.vy); speed > maxVelocity {
			p.vx = p.vx / speed * maxVelocity
			p.vy = p.vy / speed * maxVelocity
		}

		p.x += p.vx * scale
		p.y += p.vy * scale

		p.life += lifeRate * baseFrameTime.Seconds() * scale
		if p.life > 1 {
			p.life = 1
		}
	}

	return e.buildFrame(bass, mid, treble, vol)
}

// buildFrame packs the pool into a fresh render buffer. Callers hold e.mu.
func (e *Engine) buildFrame(bass, mid, treble, vol float64) *Frame {
	f := &Frame{
		Mode:      e.mode.String(),
		Elapsed:   e.elapsed,
		Bass:      bass,
		Mid:       mid,
		Treble:    treble,
		Volume:    vol,
		Particles: make([]float32, len(e.particles)*FloatsPerParticle),
	}
	if vol > bloomThreshold {
		f.Bloom = true
		f.BloomStrength = Smoothstep((vol - bloomThreshold) / (1 - bloomThreshold))
	}

	hue := baseHue(e.mode) + treble*40
	sat := 0.65 + 0.25*mid
	light := 0.45 + 0.25*vol

	for i := range e.particles {
		p := &e.particles[i]
		presence := Smoothstep(p.life)

		// A slow hue drift across the pool keeps the field from looking
		// monochrome.
		r, g, b := hslToRGB(hue+float64(i%48), sat, light)
		size := (1.5 + 3.5*vol) * (0.4 + 0.6*presence)
		alpha := presence * (0.25 + 0.75*vol)

		off := i * FloatsPerParticle
		f.Particles[off+0] = float32(p.x)
		f.Particles[off+1] = float32(p.y)
		f.Particles[off+2] = float32(size)
		f.Particles[off+3] = float32(r)
		f.Particles[off+4] = float32(g)
		f.Particles[off+5] = float32(b)
		f.Particles[off+6] = float32(alpha)
	}
	return f
}
