// Package motion implements a cheap frame-difference gate used to skip
// detector calls on static scenes.
package motion

import (
	"image"

	"golang.org/x/image/draw"
)

// Downscaled comparison size. Differencing at 160x120 is cheap and
// still catches hand-sized movement at the reference frame scale.
const (
	gateWidth  = 160
	gateHeight = 120
)

// Gate detects inter-frame motion. One gate per session; not safe for
// concurrent use.
type Gate struct {
	diffThreshold int // per-pixel gray delta that counts as change (0-255)
	minArea       int // changed area (reference-frame px) that counts as motion
	refWidth      int
	refHeight     int

	prev *image.Gray
}

// NewGate returns a gate with the given thresholds. refWidth/refHeight
// define the frame scale minArea is expressed in.
func NewGate(diffThreshold, minArea, refWidth, refHeight int) *Gate {
	return &Gate{
		diffThreshold: diffThreshold,
		minArea:       minArea,
		refWidth:      refWidth,
		refHeight:     refHeight,
	}
}

// Observe compares img against the previous frame. It reports whether
// the scene moved and the changed area scaled to the reference frame.
// The first frame always reports motion.
func (g *Gate) Observe(img image.Image) (bool, int) {
	small := g.downscale(img)

	if g.prev == nil {
		g.prev = small
		return true, 0
	}

	changed := 0
	for i := range small.Pix {
		d := int(small.Pix[i]) - int(g.prev.Pix[i])
		if d < 0 {
			d = -d
		}
		if d > g.diffThreshold {
			changed++
		}
	}
	g.prev = small

	// Scale the changed pixel count back to reference-frame area.
	scale := float64(g.refWidth*g.refHeight) / float64(gateWidth*gateHeight)
	area := int(float64(changed) * scale)
	return area >= g.minArea, area
}

// Reset clears the previous frame, so the next Observe reports motion.
func (g *Gate) Reset() { g.prev = nil }

func (g *Gate) downscale(img image.Image) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, gateWidth, gateHeight))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}
