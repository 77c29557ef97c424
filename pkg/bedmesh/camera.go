package bedmesh

import (
	stdmath "math"
)

// Camera defaults. Distance and FOV scale combine so a typical probe
// grid fills most of a small panel canvas.
const (
	DefaultDistance = 200.0
	DefaultFOVScale = 400.0

	// perspectiveStrength controls how much depth distortion FitToGrid
	// allows: distance = grid diagonal / strength.
	perspectiveStrength = 0.4
)

// Camera holds the view transform for the projector. Yaw and pitch are
// set through the setters so their sin/cos are computed once per change
// instead of once per vertex.
type Camera struct {
	yaw   float32
	pitch float32

	sinYaw, cosYaw     float32
	sinPitch, cosPitch float32

	Distance float32
	FOVScale float32

	// CenterOffset recenters the projected mesh on the canvas;
	// LayerOffset positions it for UI animations.
	CenterOffsetX, CenterOffsetY int
	LayerOffsetX, LayerOffsetY   int
}

// NewCamera returns a camera looking straight down the view axis at the
// default distance.
func NewCamera() *Camera {
	c := &Camera{Distance: DefaultDistance, FOVScale: DefaultFOVScale}
	c.SetYaw(0)
	c.SetPitch(0)
	return c
}

// Yaw returns the spin angle in radians.
func (c *Camera) Yaw() float32 { return c.yaw }

// Pitch returns the tilt angle in radians.
func (c *Camera) Pitch() float32 { return c.pitch }

// SetYaw sets the spin around the vertical axis and refreshes the trig
// cache. Negative values spin clockwise seen from above. The angle is
// in radians; UI code that tracks the view in degrees converts before
// calling (math.Pi / 180).
func (c *Camera) SetYaw(radians float32) {
	c.yaw = radians
	s, co := stdmath.Sincos(float64(radians))
	c.sinYaw, c.cosYaw = float32(s), float32(co)
}

// SetPitch sets the tilt around the horizontal axis and refreshes the
// trig cache. Positive values tilt the far edge up the screen. The
// angle is in radians, as with SetYaw.
func (c *Camera) SetPitch(radians float32) {
	c.pitch = radians
	s, co := stdmath.Sincos(float64(radians))
	c.sinPitch, c.cosPitch = float32(s), float32(co)
}

// FitToGrid sets the camera distance from the grid's world extents so
// the whole surface stays in frame with moderate perspective.
func (c *Camera) FitToGrid(g *Grid) {
	w, d := g.Extents()
	diagonal := float32(stdmath.Sqrt(float64(w*w + d*d)))
	if diagonal <= 0 {
		c.Distance = DefaultDistance
		return
	}
	c.Distance = diagonal / perspectiveStrength
}
