package bedmesh

import (
	"github.com/pellcorp/helixscreen/pkg/math"
)

// ZOriginVerticalPos places the projected world origin at this fraction
// of the canvas height, leaving headroom above the mesh for tall peaks.
const ZOriginVerticalPos = 0.6

// nearEpsilon is the near-plane cutoff: points with projected depth at
// or below it are behind the camera and unusable.
const nearEpsilon = 1e-3

// ScreenPoint is one projected grid vertex.
type ScreenPoint struct {
	X, Y  int
	Depth float32
}

// Behind reports whether the point is at or behind the camera. A
// triangle containing such a point is dropped whole; near-plane
// clipping of partial triangles is not performed.
func (p ScreenPoint) Behind() bool { return p.Depth <= nearEpsilon }

// Project maps a world-space point to canvas coordinates: spin around
// the vertical axis, tilt around the horizontal axis, translate back by
// the camera distance, perspective-divide, then shift into the
// viewport.
func (c *Camera) Project(v math.Vec3, canvasW, canvasH int) ScreenPoint {
	rx := v.X*c.cosYaw + v.Y*c.sinYaw
	ry := -v.X*c.sinYaw + v.Y*c.cosYaw
	rz := v.Z

	fy := ry*c.cosPitch - rz*c.sinPitch
	fz := ry*c.sinPitch + rz*c.cosPitch

	fz += c.Distance
	if fz <= nearEpsilon {
		return ScreenPoint{Depth: fz}
	}

	px := rx * c.FOVScale / fz
	py := fy * c.FOVScale / fz

	return ScreenPoint{
		X:     int(float32(canvasW)/2+px) + c.CenterOffsetX + c.LayerOffsetX,
		Y:     int(float32(canvasH)*ZOriginVerticalPos+py) + c.CenterOffsetY + c.LayerOffsetY,
		Depth: fz,
	}
}
