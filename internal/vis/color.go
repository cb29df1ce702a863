package vis

import "math"

// baseHue is each mode's home color in degrees.
func baseHue(mode Mode) float64 {
	switch mode {
	case ModeChladni:
		return 280 // violet
	case ModeWater:
		return 200 // cyan
	case ModeSacred:
		return 45 // gold
	case ModeTuring:
		return 120 // green
	case ModeVoronoi:
		return 10 // ember
	case ModeHopf:
		return 320 // magenta
	default:
		return 0
	}
}

// hslToRGB converts hue [0,360), saturation and lightness [0,1] to RGB [0,1].
func hslToRGB(h, s, l float64) (float64, float64, float64) {
	h = math.Mod(h, 360)
	if h < 0 {
		h += 360
	}
	c := (1 - math.Abs(2*l-1)) * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return r + m, g + m, b + m
}
