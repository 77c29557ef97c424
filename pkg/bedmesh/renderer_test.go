package bedmesh

import (
	stdmath "math"
	"testing"
)

func flatGrid(rows, cols int, z float32) *Grid {
	g := NewGrid(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			g.Set(r, c, z)
		}
	}
	return g
}

func TestRenderFlatGridIsUniformGreen(t *testing.T) {
	g := flatGrid(3, 3, 0)
	r := NewRenderer()
	l := &recLayer{}
	r.Render(l, g, 600, 400)

	if len(l.runs) == 0 {
		t.Fatal("flat grid rendered nothing")
	}
	for _, rn := range l.runs {
		if rn.color != colorMid {
			t.Fatalf("run at y=%d has color %#x, want green", rn.y, rn.color)
		}
		if rn.opacity != DefaultOpacity {
			t.Fatalf("run opacity = %d, want %d", rn.opacity, DefaultOpacity)
		}
	}
}

func TestRenderSkipsUnprobedCells(t *testing.T) {
	g := flatGrid(2, 2, 0)
	g.Set(0, 1, float32(stdmath.NaN()))

	r := NewRenderer()
	l := &recLayer{}
	r.Render(l, g, 600, 400)

	// The single cell touches the NaN corner, so nothing draws.
	if len(l.runs) != 0 {
		t.Fatalf("NaN cell produced %d runs", len(l.runs))
	}
}

func TestRenderPartialGridDrawsProbedCells(t *testing.T) {
	g := flatGrid(2, 3, 0)
	g.Set(0, 2, float32(stdmath.NaN()))

	r := NewRenderer()
	l := &recLayer{}
	r.Render(l, g, 600, 400)

	// Left cell is complete and still renders.
	if len(l.runs) == 0 {
		t.Fatal("probed cell next to a hole rendered nothing")
	}
}

func TestRenderDropsTrianglesBehindCamera(t *testing.T) {
	g := flatGrid(3, 3, 0)
	r := NewRenderer()
	r.Camera.Distance = 0

	l := &recLayer{}
	r.Render(l, g, 600, 400)
	if len(l.runs) != 0 {
		t.Fatalf("grid on the near plane produced %d runs", len(l.runs))
	}
}

func TestRenderPaintsBackToFront(t *testing.T) {
	// Tilt the view so rows differ in depth, color the back cell red
	// and the front cell blue, and check paint order on a flat fill.
	g := NewGrid(3, 2)
	for c := 0; c < 2; c++ {
		g.Set(0, c, DeviationMax) // back row
		g.Set(1, c, DeviationMax) // shared middle row
		g.Set(2, c, DeviationMin) // front row
	}

	r := NewRenderer()
	r.Gradient = false
	r.Camera.SetPitch(0.5)

	l := &recLayer{}
	r.Render(l, g, 600, 400)
	if len(l.runs) == 0 {
		t.Fatal("tilted grid rendered nothing")
	}

	first := l.runs[0].color
	last := l.runs[len(l.runs)-1].color
	if first != colorHigh {
		t.Fatalf("first run = %#x, want the back cell's red", first)
	}
	if want := AverageColor(colorLow, colorLow, colorHigh); last != want {
		t.Fatalf("last run = %#x, want the front cell's %#x", last, want)
	}
}

func TestRenderCustomColorRange(t *testing.T) {
	g := flatGrid(2, 2, 5)
	r := NewRenderer()
	r.ColorMinZ, r.ColorMaxZ = 0, 10

	l := &recLayer{}
	r.Render(l, g, 600, 400)
	if len(l.runs) == 0 {
		t.Fatal("grid rendered nothing")
	}
	for _, rn := range l.runs {
		if rn.color != colorMid {
			t.Fatalf("midpoint of custom range = %#x, want green", rn.color)
		}
	}
}

func TestRenderReusesScratchBuffer(t *testing.T) {
	g := flatGrid(4, 4, 0)
	r := NewRenderer()

	l1 := &recLayer{}
	r.Render(l1, g, 600, 400)
	l2 := &recLayer{}
	r.Render(l2, g, 600, 400)

	if len(l1.runs) != len(l2.runs) {
		t.Fatalf("second frame emitted %d runs, first %d", len(l2.runs), len(l1.runs))
	}
	for i := range l1.runs {
		if l1.runs[i] != l2.runs[i] {
			t.Fatalf("frame runs diverge at %d: %+v vs %+v", i, l1.runs[i], l2.runs[i])
		}
	}
}

func TestRenderSingleRowGrid(t *testing.T) {
	// A 1xN grid has no cells and must render cleanly as empty.
	g := flatGrid(1, 5, 0)
	r := NewRenderer()
	l := &recLayer{}
	r.Render(l, g, 600, 400)
	if len(l.runs) != 0 {
		t.Fatalf("1x5 grid produced %d runs", len(l.runs))
	}
}
