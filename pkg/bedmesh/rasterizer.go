package bedmesh

// Gradient fill tuning. Narrow scanlines get fewer color segments;
// below the minimum width a single averaged color is cheaper and
// indistinguishable.
const (
	gradientMinLineWidth = 3

	gradientThinThreshold   = 20
	gradientMediumThreshold = 50

	gradientThinSegments   = 2
	gradientMediumSegments = 3
	gradientWideSegments   = 4

	// Segment color is sampled at this parameter of the segment span.
	gradientSamplePos = 0.5
)

// DefaultOpacity is the surface fill opacity (90%).
const DefaultOpacity = uint8(230)

// DrawLayer receives horizontal pixel runs. Implementations clip
// against their own bounds; the rasterizer never reads back.
type DrawLayer interface {
	// FillRun fills pixels [x1,x2] on row y.
	FillRun(x1, x2, y int, color uint32, opacity uint8)
}

// FillSolid scanline-fills the triangle abc with one color, emitting a
// single run per scanline.
func FillSolid(l DrawLayer, a, b, c ScreenPoint, color uint32, opacity uint8) {
	x1, y1, x2, y2, x3, y3 := sortByY(a.X, a.Y, b.X, b.Y, c.X, c.Y)
	if y1 == y3 {
		return
	}
	for y := y1; y <= y3; y++ {
		xa, xb, _ := spanAt(y, x1, y1, x2, y2, x3, y3)
		l.FillRun(xa, xb, y, color, opacity)
	}
}

// FillGradient scanline-fills the triangle with per-vertex colors.
// Each scanline is cut into a width-dependent number of segments, each
// painted with the color sampled at its midpoint. Runs narrower than
// the minimum gradient width fall back to a solid average.
func FillGradient(l DrawLayer, a ScreenPoint, ca uint32, b ScreenPoint, cb uint32, c ScreenPoint, cc uint32, opacity uint8) {
	x1, y1, x2, y2, x3, y3 := sortByY(a.X, a.Y, b.X, b.Y, c.X, c.Y)
	// Colors follow their vertices through the sort.
	c1, c2, c3 := sortColorsByY(a.Y, ca, b.Y, cb, c.Y, cc)

	if y1 == y3 {
		return
	}

	for y := y1; y <= y3; y++ {
		xa, xb, swapped := spanAt(y, x1, y1, x2, y2, x3, y3)

		// colA belongs to the long-edge end of the run.
		colA := edgeColor(y, y1, y3, c1, c3)
		var colB uint32
		if y < y2 {
			colB = edgeColor(y, y1, y2, c1, c2)
		} else {
			colB = edgeColor(y, y2, y3, c2, c3)
		}
		if swapped {
			colA, colB = colB, colA
		}

		width := xb - xa + 1
		if width < gradientMinLineWidth {
			l.FillRun(xa, xb, y, LerpColor(colA, colB, 0.5), opacity)
			continue
		}

		segments := gradientWideSegments
		switch {
		case width < gradientThinThreshold:
			segments = gradientThinSegments
		case width < gradientMediumThreshold:
			segments = gradientMediumSegments
		}

		for s := 0; s < segments; s++ {
			sx1 := xa + width*s/segments
			sx2 := xa + width*(s+1)/segments - 1
			if sx2 < sx1 {
				continue
			}
			t := (float32(s) + gradientSamplePos) / float32(segments)
			l.FillRun(sx1, sx2, y, LerpColor(colA, colB, t), opacity)
		}
	}
}

// sortByY orders three vertices top to bottom. Three-element bubble
// sort, branch-cheap.
func sortByY(x1, y1, x2, y2, x3, y3 int) (int, int, int, int, int, int) {
	if y1 > y2 {
		x1, y1, x2, y2 = x2, y2, x1, y1
	}
	if y2 > y3 {
		x2, y2, x3, y3 = x3, y3, x2, y2
	}
	if y1 > y2 {
		x1, y1, x2, y2 = x2, y2, x1, y1
	}
	return x1, y1, x2, y2, x3, y3
}

func sortColorsByY(y1 int, c1 uint32, y2 int, c2 uint32, y3 int, c3 uint32) (uint32, uint32, uint32) {
	if y1 > y2 {
		y1, c1, y2, c2 = y2, c2, y1, c1
	}
	if y2 > y3 {
		y2, c2, y3, c3 = y3, c3, y2, c2
	}
	if y1 > y2 {
		c1, c2 = c2, c1
	}
	return c1, c2, c3
}

// spanAt returns the horizontal extent of the triangle on scanline y.
// The long edge (v1→v3) provides one end, the split short edges the
// other; swapped reports that the ends traded places to keep xa <= xb.
func spanAt(y, x1, y1, x2, y2, x3, y3 int) (xa, xb int, swapped bool) {
	xa = edgeX(y, x1, y1, x3, y3)
	if y < y2 {
		xb = edgeX(y, x1, y1, x2, y2)
	} else {
		xb = edgeX(y, x2, y2, x3, y3)
	}
	if xa > xb {
		return xb, xa, true
	}
	return xa, xb, false
}

// edgeX interpolates x along the edge (xs,ys)-(xe,ye) at scanline y
// using integer deltas.
func edgeX(y, xs, ys, xe, ye int) int {
	if ye == ys {
		return xe
	}
	return xs + (xe-xs)*(y-ys)/(ye-ys)
}

func edgeColor(y, ys, ye int, cs, ce uint32) uint32 {
	if ye == ys {
		return ce
	}
	return LerpColor(cs, ce, float32(y-ys)/float32(ye-ys))
}
