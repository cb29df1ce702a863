package vis

import (
	"fmt"
	"math"

	"github.com/halcyonlabs/kaleido/internal/analysis"
)

// Mode selects which geometric field drives particle targets.
type Mode int

const (
	ModeChladni Mode = iota
	ModeWater
	ModeSacred
	ModeTuring
	ModeVoronoi
	ModeHopf
)

// AllModes lists every mode in order.
var AllModes = []Mode{ModeChladni, ModeWater, ModeSacred, ModeTuring, ModeVoronoi, ModeHopf}

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeChladni:
		return "chladni"
	case ModeWater:
		return "water"
	case ModeSacred:
		return "sacred"
	case ModeTuring:
		return "turing"
	case ModeVoronoi:
		return "voronoi"
	case ModeHopf:
		return "hopf"
	default:
		return "unknown"
	}
}

// ParseMode resolves a mode name.
func ParseMode(s string) (Mode, error) {
	for _, m := range AllModes {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown visualization mode %q", s)
}

// goldenAngle distributes particle indices evenly around a circle without
// visible banding.
const goldenAngle = 2.399963229728653

// target maps one particle index to its position in the selected field.
// Pure: same inputs, same output. Every mode keeps the same relative
// relationships -- bass drives radius, treble drives jitter and fine detail,
// volume drives overall extent.
func target(mode Mode, i, n int, w, h, cx, cy float64, s *analysis.Snapshot, t float64) (float64, float64) {
	dim := math.Min(w, h)
	switch mode {
	case ModeChladni:
		return chladniTarget(i, n, dim, cx, cy, s, t)
	case ModeWater:
		return waterTarget(i, n, dim, cx, cy, s, t)
	case ModeSacred:
		return sacredTarget(i, n, dim, cx, cy, s, t)
	case ModeTuring:
		return turingTarget(i, n, w, h, s, t)
	case ModeVoronoi:
		return voronoiTarget(i, n, dim, cx, cy, s, t)
	case ModeHopf:
		return hopfTarget(i, n, dim, cx, cy, s, t)
	default:
		return cx, cy
	}
}

// chladniTarget places particles on the nodal lines of a vibrating plate:
// a polar radius scaled by bass+mid energy, with the angle perturbed by
// treble harmonics.
func chladniTarget(i, n int, dim, cx, cy float64, s *analysis.Snapshot, t float64) (float64, float64) {
	u := float64(i) / float64(n)
	ang := u*2*math.Pi + t*0.15

	m := 3 + math.Floor(s.Bass*4)
	k := 2 + math.Floor(s.Treble*5)
	nodal := math.Sin(m*ang+t) * math.Cos(k*ang-t*0.7)

	r := dim * 0.32 * (0.35 + 0.65*(0.5*s.Bass+0.5*s.Mid)) * (1 + 0.3*nodal)
	jitter := s.Treble * dim * 0.045 * math.Sin(ang*17+t*3)

	return cx + (r+jitter)*math.Cos(ang), cy + (r+jitter)*math.Sin(ang)
}

// waterTarget spreads particles over concentric ripple rings; bass pushes
// wavefronts outward, mid sets ripple height, treble spins the spiral.
func waterTarget(i, n int, dim, cx, cy float64, s *analysis.Snapshot, t float64) (float64, float64) {
	const rings = 6
	ring := float64(i % rings)
	ang := float64(i)*goldenAngle + t*0.1*(1+s.Treble)

	base := dim*0.07 + ring*dim*0.055
	wave := math.Sin(t*2+ring*1.3-s.Bass*6) * dim * 0.04 * (0.3 + 0.7*s.Mid)
	r := base + wave + s.Bass*dim*0.05

	return cx + r*math.Cos(ang), cy + r*math.Sin(ang)
}

// sacredTarget traces a rose curve whose petal count grows with mid energy,
// the flower opening with overall volume.
func sacredTarget(i, n int, dim, cx, cy float64, s *analysis.Snapshot, t float64) (float64, float64) {
	u := float64(i) / float64(n) * 2 * math.Pi
	petals := 6 + math.Floor(s.Mid*6)
	rot := t * 0.2 * (1 + s.Bass)

	r := dim * 0.3 * (0.3 + 0.7*s.Volume) * math.Abs(math.Cos(petals*u/2))
	r += dim * 0.05 * (0.5 + 0.5*math.Sin(t+u*3)) * s.Treble

	return cx + r*math.Cos(u+rot), cy + r*math.Sin(u+rot)
}

// turingTarget arranges particles on a lattice warped by traveling stripes,
// the reaction-diffusion look: bass bends rows, mid bends columns.
func turingTarget(i, n int, w, h float64, s *analysis.Snapshot, t float64) (float64, float64) {
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	rows := (n + cols - 1) / cols
	gx := float64(i%cols) + 0.5
	gy := float64(i/cols) + 0.5

	x0 := gx / float64(cols) * w
	y0 := gy / float64(rows) * h

	dx := math.Sin(y0*0.05+t*1.2) * (8 + 48*s.Mid)
	dy := math.Cos(x0*0.05-t*0.9) * (8 + 48*s.Bass)
	dx += math.Sin((x0+y0)*0.11+t*4) * 12 * s.Treble

	return x0 + dx, y0 + dy
}

// voronoiTarget clusters particles around orbiting cell seeds; mid energy
// widens the seed orbit, treble scatters particles inside each cell.
func voronoiTarget(i, n int, dim, cx, cy float64, s *analysis.Snapshot, t float64) (float64, float64) {
	const cells = 12
	cell := i % cells
	j := float64(i / cells)
	perCell := float64(n/cells + 1)

	cang := float64(cell)/cells*2*math.Pi + t*(0.1+0.3*s.Bass)
	cr := dim * 0.28 * (0.45 + 0.55*s.Mid)
	seedX := cx + cr*math.Cos(cang)
	seedY := cy + cr*math.Sin(cang)

	sang := j*goldenAngle + t*0.5
	sr := dim * 0.09 * (0.25 + 0.75*s.Treble) * math.Sqrt(j/perCell)

	return seedX + sr*math.Cos(sang), seedY + sr*math.Sin(sang)
}

// hopfTarget distributes particles over three interleaved torus knots in 3D,
// each torus rotating at a speed weighted by a different band, projected
// with a simple perspective divide.
func hopfTarget(i, n int, dim, cx, cy float64, s *analysis.Snapshot, t float64) (float64, float64) {
	const tori = 3
	torus := i % tori
	per := n / tori
	if per == 0 {
		per = 1
	}
	u := float64(i/tori) / float64(per) * 2 * math.Pi

	var weight float64
	var p, q float64
	switch torus {
	case 0:
		weight, p, q = s.Bass, 2, 3
	case 1:
		weight, p, q = s.Mid, 3, 5
	default:
		weight, p, q = s.Treble, 5, 2
	}

	major := dim * 0.22 * (0.6 + 0.4*s.Volume)
	minor := dim * 0.08 * (0.5 + 0.5*weight)
	phase := t * (0.3 + weight)

	x3 := (major + minor*math.Cos(q*u+phase)) * math.Cos(p*u)
	y3 := (major + minor*math.Cos(q*u+phase)) * math.Sin(p*u)
	z3 := minor * math.Sin(q*u+phase)

	// Rotate around the vertical axis so depth ordering keeps shifting.
	beta := phase * 0.5
	xr := x3*math.Cos(beta) + z3*math.Sin(beta)
	zr := -x3*math.Sin(beta) + z3*math.Cos(beta)

	// Perspective divide; fov comfortably exceeds the knot extent so the
	// denominator stays positive.
	fov := dim * 1.2
	scale := fov / (fov + zr)

	return cx + xr*scale, cy + y3*scale
}

// idleTarget is the cheap breathing ring used when there is no audio to
// react to. It keeps motion alive without evaluating a mode field.
func idleTarget(i, n int, dim, cx, cy, t float64) (float64, float64) {
	ang := float64(i)/float64(n)*2*math.Pi + t*0.05
	r := dim * 0.22 * (1 + 0.04*math.Sin(t*0.8+float64(i%7)))
	return cx + r*math.Cos(ang), cy + r*math.Sin(ang)
}
