package bedmesh

import "testing"

// run is one recorded FillRun call.
type run struct {
	x1, x2, y int
	color     uint32
	opacity   uint8
}

// recLayer records fill runs instead of painting them.
type recLayer struct {
	runs []run
}

func (l *recLayer) FillRun(x1, x2, y int, color uint32, opacity uint8) {
	l.runs = append(l.runs, run{x1, x2, y, color, opacity})
}

func (l *recLayer) rowRuns(y int) []run {
	var out []run
	for _, r := range l.runs {
		if r.y == y {
			out = append(out, r)
		}
	}
	return out
}

func TestFillSolidTriangle(t *testing.T) {
	l := &recLayer{}
	a := ScreenPoint{X: 0, Y: 0}
	b := ScreenPoint{X: 4, Y: 0}
	c := ScreenPoint{X: 0, Y: 4}
	FillSolid(l, a, b, c, colorMid, 200)

	wantSpans := [][2]int{{0, 4}, {0, 3}, {0, 2}, {0, 1}, {0, 0}}
	if len(l.runs) != len(wantSpans) {
		t.Fatalf("got %d runs, want %d", len(l.runs), len(wantSpans))
	}
	for y, want := range wantSpans {
		r := l.runs[y]
		if r.y != y || r.x1 != want[0] || r.x2 != want[1] {
			t.Fatalf("run %d = [%d,%d]@%d, want [%d,%d]@%d", y, r.x1, r.x2, r.y, want[0], want[1], y)
		}
		if r.color != colorMid || r.opacity != 200 {
			t.Fatalf("run %d color/opacity = %#x/%d", y, r.color, r.opacity)
		}
	}
}

func TestFillSolidVertexOrderIndependent(t *testing.T) {
	a := ScreenPoint{X: 2, Y: 1}
	b := ScreenPoint{X: 10, Y: 6}
	c := ScreenPoint{X: 0, Y: 9}

	l1 := &recLayer{}
	FillSolid(l1, a, b, c, colorHigh, DefaultOpacity)
	l2 := &recLayer{}
	FillSolid(l2, c, a, b, colorHigh, DefaultOpacity)

	if len(l1.runs) != len(l2.runs) {
		t.Fatalf("run counts differ: %d vs %d", len(l1.runs), len(l2.runs))
	}
	for i := range l1.runs {
		if l1.runs[i] != l2.runs[i] {
			t.Fatalf("run %d differs: %+v vs %+v", i, l1.runs[i], l2.runs[i])
		}
	}
}

func TestFillSolidDegenerateTriangle(t *testing.T) {
	l := &recLayer{}
	FillSolid(l, ScreenPoint{X: 0, Y: 5}, ScreenPoint{X: 3, Y: 5}, ScreenPoint{X: 7, Y: 5}, colorLow, DefaultOpacity)
	if len(l.runs) != 0 {
		t.Fatalf("degenerate triangle emitted %d runs", len(l.runs))
	}
}

func TestFillGradientMediumWidthSegments(t *testing.T) {
	l := &recLayer{}
	a := ScreenPoint{X: 0, Y: 0}
	b := ScreenPoint{X: 29, Y: 0}
	c := ScreenPoint{X: 0, Y: 29}
	FillGradient(l, a, colorHigh, b, colorLow, c, colorMid, DefaultOpacity)

	// The 30-pixel top scanline splits into three equal segments.
	top := l.rowRuns(0)
	if len(top) != gradientMediumSegments {
		t.Fatalf("got %d segments on the 30px scanline, want %d", len(top), gradientMediumSegments)
	}
	wantSpans := [][2]int{{0, 9}, {10, 19}, {20, 29}}
	for i, want := range wantSpans {
		if top[i].x1 != want[0] || top[i].x2 != want[1] {
			t.Fatalf("segment %d = [%d,%d], want [%d,%d]", i, top[i].x1, top[i].x2, want[0], want[1])
		}
	}

	// Segment colors sample the red-to-blue span at their midpoints,
	// so the ends stay close to their vertex colors.
	if got, want := top[0].color, LerpColor(colorHigh, colorLow, 0.5/3); got != want {
		t.Fatalf("first segment = %#x, want %#x", got, want)
	}
	if got, want := top[1].color, LerpColor(colorHigh, colorLow, 1.5/3); got != want {
		t.Fatalf("middle segment = %#x, want %#x", got, want)
	}
	if got, want := top[2].color, LerpColor(colorHigh, colorLow, 2.5/3); got != want {
		t.Fatalf("last segment = %#x, want %#x", got, want)
	}
}

func TestFillGradientSegmentCountByWidth(t *testing.T) {
	tests := []struct {
		name     string
		topWidth int
		want     int
	}{
		{"thin", 10, gradientThinSegments},
		{"medium", 30, gradientMediumSegments},
		{"wide", 60, gradientWideSegments},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &recLayer{}
			a := ScreenPoint{X: 0, Y: 0}
			b := ScreenPoint{X: tt.topWidth - 1, Y: 0}
			c := ScreenPoint{X: 0, Y: tt.topWidth - 1}
			FillGradient(l, a, colorLow, b, colorHigh, c, colorMid, DefaultOpacity)
			if got := len(l.rowRuns(0)); got != tt.want {
				t.Fatalf("width %d produced %d segments, want %d", tt.topWidth, got, tt.want)
			}
		})
	}
}

func TestFillGradientNarrowRunFallsBackToSolid(t *testing.T) {
	l := &recLayer{}
	a := ScreenPoint{X: 0, Y: 0}
	b := ScreenPoint{X: 1, Y: 0}
	c := ScreenPoint{X: 0, Y: 5}
	FillGradient(l, a, colorHigh, b, colorLow, c, colorMid, DefaultOpacity)

	top := l.rowRuns(0)
	if len(top) != 1 {
		t.Fatalf("got %d runs on a 2px scanline, want 1", len(top))
	}
	if got, want := top[0].color, LerpColor(colorHigh, colorLow, 0.5); got != want {
		t.Fatalf("narrow run = %#x, want averaged %#x", got, want)
	}
}

func TestFillGradientDegenerateTriangle(t *testing.T) {
	l := &recLayer{}
	FillGradient(l,
		ScreenPoint{X: 0, Y: 3}, colorLow,
		ScreenPoint{X: 5, Y: 3}, colorMid,
		ScreenPoint{X: 9, Y: 3}, colorHigh,
		DefaultOpacity)
	if len(l.runs) != 0 {
		t.Fatalf("degenerate triangle emitted %d runs", len(l.runs))
	}
}

func TestFillGradientCoversEveryPixelOnce(t *testing.T) {
	l := &recLayer{}
	a := ScreenPoint{X: 3, Y: 0}
	b := ScreenPoint{X: 40, Y: 12}
	c := ScreenPoint{X: 0, Y: 25}
	FillGradient(l, a, colorLow, b, colorMid, c, colorHigh, DefaultOpacity)

	covered := map[[2]int]int{}
	for _, r := range l.runs {
		if r.x2 < r.x1 {
			t.Fatalf("inverted run %+v", r)
		}
		for x := r.x1; x <= r.x2; x++ {
			covered[[2]int{x, r.y}]++
		}
	}
	for px, n := range covered {
		if n != 1 {
			t.Fatalf("pixel %v painted %d times", px, n)
		}
	}
	for y := 0; y <= 25; y++ {
		if len(l.rowRuns(y)) == 0 {
			t.Fatalf("scanline %d has no runs", y)
		}
	}
}
