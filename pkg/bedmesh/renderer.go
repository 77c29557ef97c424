package bedmesh

import (
	stdmath "math"
	"sort"

	"github.com/pellcorp/helixscreen/pkg/math"
)

type shadedTriangle struct {
	p        [3]ScreenPoint
	c        [3]uint32
	avgDepth float32
}

// Renderer draws a probe grid as a shaded surface. It keeps its
// triangle scratch buffer between frames, so a steady-state frame does
// not allocate.
type Renderer struct {
	Camera  *Camera
	Opacity uint8

	// Gradient disables per-vertex color interpolation when false;
	// triangles paint with their average color instead.
	Gradient bool

	// Color range for the height ramp. Zero values mean the deviation
	// defaults (±0.3 mm around nominal).
	ColorMinZ, ColorMaxZ float32

	tris []shadedTriangle
}

// NewRenderer returns a renderer with a fitted default camera and the
// standard surface opacity.
func NewRenderer() *Renderer {
	return &Renderer{
		Camera:   NewCamera(),
		Opacity:  DefaultOpacity,
		Gradient: true,
	}
}

func (r *Renderer) rampColor(z float32) uint32 {
	if r.ColorMinZ == 0 && r.ColorMaxZ == 0 {
		return DeviationColor(z)
	}
	return RampColor(z, r.ColorMinZ, r.ColorMaxZ)
}

// Render projects the grid and paints its cells back to front onto l.
// Cells touching an unprobed (NaN) point are skipped, as are triangles
// with any vertex behind the camera.
func (r *Renderer) Render(l DrawLayer, g *Grid, canvasW, canvasH int) {
	r.tris = r.tris[:0]

	// Each cell splits bottom-left/bottom-right/top-left and
	// bottom-right/top-right/top-left, emitted row-major.
	for row := 0; row < g.Rows-1; row++ {
		for col := 0; col < g.Cols-1; col++ {
			zTL := g.At(row, col)
			zTR := g.At(row, col+1)
			zBL := g.At(row+1, col)
			zBR := g.At(row+1, col+1)
			if isNaN(zTL) || isNaN(zTR) || isNaN(zBL) || isNaN(zBR) {
				continue
			}

			tl := r.vertex(g, row, col, zTL, canvasW, canvasH)
			tr := r.vertex(g, row, col+1, zTR, canvasW, canvasH)
			bl := r.vertex(g, row+1, col, zBL, canvasW, canvasH)
			br := r.vertex(g, row+1, col+1, zBR, canvasW, canvasH)

			r.pushTriangle(bl, br, tl, zBL, zBR, zTL)
			r.pushTriangle(br, tr, tl, zBR, zTR, zTL)
		}
	}

	// Painter's algorithm: furthest first.
	sort.SliceStable(r.tris, func(i, j int) bool {
		return r.tris[i].avgDepth > r.tris[j].avgDepth
	})

	for i := range r.tris {
		t := &r.tris[i]
		if r.Gradient {
			FillGradient(l, t.p[0], t.c[0], t.p[1], t.c[1], t.p[2], t.c[2], r.Opacity)
		} else {
			FillSolid(l, t.p[0], t.p[1], t.p[2], AverageColor(t.c[0], t.c[1], t.c[2]), r.Opacity)
		}
	}
}

func (r *Renderer) vertex(g *Grid, row, col int, z float32, canvasW, canvasH int) ScreenPoint {
	world := math.Vec3{X: g.WorldX(col), Y: g.WorldY(row), Z: z}
	return r.Camera.Project(world, canvasW, canvasH)
}

func (r *Renderer) pushTriangle(a, b, c ScreenPoint, za, zb, zc float32) {
	if a.Behind() || b.Behind() || c.Behind() {
		return
	}
	r.tris = append(r.tris, shadedTriangle{
		p:        [3]ScreenPoint{a, b, c},
		c:        [3]uint32{r.rampColor(za), r.rampColor(zb), r.rampColor(zc)},
		avgDepth: (a.Depth + b.Depth + c.Depth) / 3,
	})
}

func isNaN(f float32) bool { return stdmath.IsNaN(float64(f)) }
