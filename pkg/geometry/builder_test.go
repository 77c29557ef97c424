package geometry

import (
	"errors"
	stdmath "math"
	"testing"

	"github.com/pellcorp/helixscreen/pkg/gcode"
	"github.com/pellcorp/helixscreen/pkg/math"
)

func extrusion(start, end math.Vec3) gcode.MoveSegment {
	return gcode.MoveSegment{
		Start:           start,
		End:             end,
		IsExtrusion:     true,
		ExtrusionLength: 1,
	}
}

func TestBuildSingleSegment(t *testing.T) {
	b := NewBuilder()
	mesh, err := b.Build([]gcode.MoveSegment{
		extrusion(math.Vec3{X: 0, Y: 0, Z: 0.2}, math.Vec3{X: 10, Y: 0, Z: 0.2}),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if mesh.VertexCount() != 8 {
		t.Errorf("vertices = %d, want 8", mesh.VertexCount())
	}
	if mesh.TriangleCount() != 8 {
		t.Errorf("triangles = %d, want 8", mesh.TriangleCount())
	}

	// The tube cross-section extends half the width sideways and half
	// the layer height vertically around the segment axis.
	checks := []struct {
		name      string
		got, want float32
	}{
		{"min.x", mesh.Bounds.Min.X, 0},
		{"min.y", mesh.Bounds.Min.Y, -DefaultExtrusionWidth / 2},
		{"min.z", mesh.Bounds.Min.Z, 0.2 - DefaultLayerHeight/2},
		{"max.x", mesh.Bounds.Max.X, 10},
		{"max.y", mesh.Bounds.Max.Y, DefaultExtrusionWidth / 2},
		{"max.z", mesh.Bounds.Max.Z, 0.2 + DefaultLayerHeight/2},
	}
	for _, c := range checks {
		if stdmath.Abs(float64(c.got-c.want)) > 1e-5 {
			t.Errorf("bounds %s = %v, want %v", c.name, c.got, c.want)
		}
	}

	for i, idx := range mesh.Indices {
		if int(idx) >= mesh.VertexCount() {
			t.Fatalf("index %d out of range: %d", i, idx)
		}
	}
}

func TestTravelAndRetractionProduceNoGeometry(t *testing.T) {
	b := NewBuilder()
	mesh, err := b.Build([]gcode.MoveSegment{
		{Start: math.Vec3{}, End: math.Vec3{X: 10}},                     // travel
		{Start: math.Vec3{X: 10}, End: math.Vec3{X: 20}, IsRetraction: true}, // wipe
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if mesh.VertexCount() != 0 || mesh.TriangleCount() != 0 {
		t.Errorf("got %d vertices, %d triangles", mesh.VertexCount(), mesh.TriangleCount())
	}
}

func TestZeroLengthSegmentSkipped(t *testing.T) {
	b := NewBuilder()
	p := math.Vec3{X: 1, Y: 2, Z: 0.2}
	mesh, err := b.Build([]gcode.MoveSegment{extrusion(p, p)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if mesh.VertexCount() != 0 {
		t.Errorf("degenerate segment produced %d vertices", mesh.VertexCount())
	}
}

func TestAdjacentSegmentsWeldVertices(t *testing.T) {
	b := NewBuilder()
	a := math.Vec3{X: 0, Y: 0, Z: 0.2}
	m := math.Vec3{X: 10, Y: 0, Z: 0.2}
	c := math.Vec3{X: 20, Y: 0, Z: 0.2}

	mesh, err := b.Build([]gcode.MoveSegment{extrusion(a, m), extrusion(m, c)})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Collinear segments share the junction ring: 8 + 4 new vertices.
	if mesh.VertexCount() != 12 {
		t.Errorf("vertices = %d, want 12", mesh.VertexCount())
	}
	if mesh.TriangleCount() != 16 {
		t.Errorf("triangles = %d, want 16", mesh.TriangleCount())
	}
}

func TestWeldRespectsColor(t *testing.T) {
	b := NewBuilder()
	b.Mode = ColorPerTool
	b.Palette = []uint32{0xFFFF0000, 0xFF00FF00}

	a := math.Vec3{X: 0, Y: 0, Z: 0.2}
	m := math.Vec3{X: 10, Y: 0, Z: 0.2}
	c := math.Vec3{X: 20, Y: 0, Z: 0.2}

	s1 := extrusion(a, m)
	s2 := extrusion(m, c)
	s2.Tool = 1

	mesh, err := b.Build([]gcode.MoveSegment{s1, s2})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// Different colors must not share vertices across the junction.
	if mesh.VertexCount() != 16 {
		t.Errorf("vertices = %d, want 16", mesh.VertexCount())
	}
	if mesh.Vertices[0].Color != 0xFFFF0000 {
		t.Errorf("tool 0 color = %#x", mesh.Vertices[0].Color)
	}
	if mesh.Vertices[8].Color != 0xFF00FF00 {
		t.Errorf("tool 1 color = %#x", mesh.Vertices[8].Color)
	}
}

func TestWeldSnapsStoredPositions(t *testing.T) {
	b := NewBuilder()
	// The second segment starts a hair off the first one's endpoint;
	// both junctions land in the same weld cells.
	mesh, err := b.Build([]gcode.MoveSegment{
		extrusion(math.Vec3{X: 0, Y: -5, Z: 0.2}, math.Vec3{X: 10, Y: -5, Z: 0.2}),
		extrusion(math.Vec3{X: 10.0004, Y: -4.9997, Z: 0.2}, math.Vec3{X: 20, Y: -5, Z: 0.2}),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if mesh.VertexCount() != 12 {
		t.Errorf("vertices = %d, want 12 after welding jittered junction", mesh.VertexCount())
	}

	// Stored positions sit on the weld grid: snapping them again is a
	// no-op, so the mesh is independent of segment arrival order.
	for i, v := range mesh.Vertices {
		for _, c := range [3]float32{v.Position.X, v.Position.Y, v.Position.Z} {
			snapped := float32(int64(c/weldGrid+0.5*sign(c))) * weldGrid
			if snapped != c {
				t.Fatalf("vertex %d component %v is off the weld grid (snaps to %v)", i, c, snapped)
			}
		}
	}
}

func TestBuildDeterministic(t *testing.T) {
	b := NewBuilder()
	segs := []gcode.MoveSegment{
		extrusion(math.Vec3{X: 0, Y: 0, Z: 0.2}, math.Vec3{X: 10, Y: 0, Z: 0.2}),
		extrusion(math.Vec3{X: 10, Y: 0, Z: 0.2}, math.Vec3{X: 10, Y: 10, Z: 0.2}),
	}

	m1, err := b.Build(segs)
	if err != nil {
		t.Fatal(err)
	}
	m2, err := b.Build(segs)
	if err != nil {
		t.Fatal(err)
	}

	if len(m1.Vertices) != len(m2.Vertices) || len(m1.Indices) != len(m2.Indices) {
		t.Fatal("rebuild produced different sizes")
	}
	for i := range m1.Vertices {
		if m1.Vertices[i] != m2.Vertices[i] {
			t.Fatalf("vertex %d differs", i)
		}
	}
	for i := range m1.Indices {
		if m1.Indices[i] != m2.Indices[i] {
			t.Fatalf("index %d differs", i)
		}
	}
}

func TestVerticalSegmentFallbackAxis(t *testing.T) {
	b := NewBuilder()
	mesh, err := b.Build([]gcode.MoveSegment{
		extrusion(math.Vec3{X: 5, Y: 5, Z: 0}, math.Vec3{X: 5, Y: 5, Z: 10}),
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if mesh.VertexCount() != 8 {
		t.Fatalf("vertices = %d, want 8", mesh.VertexCount())
	}

	// Normals must stay finite and unit-length despite the degenerate
	// cross product with the up axis.
	for i, v := range mesh.Vertices {
		l := v.Normal.Length()
		if stdmath.IsNaN(float64(l)) || stdmath.Abs(float64(l)-1) > 1e-4 {
			t.Errorf("vertex %d normal length = %v", i, l)
		}
	}
}

func TestNormalsPointOutward(t *testing.T) {
	b := NewBuilder()
	start := math.Vec3{X: 0, Y: 0, Z: 0.2}
	end := math.Vec3{X: 10, Y: 0, Z: 0.2}
	mesh, err := b.Build([]gcode.MoveSegment{extrusion(start, end)})
	if err != nil {
		t.Fatal(err)
	}

	axis := math.Vec3{X: 5, Y: 0, Z: 0.2}
	for i, v := range mesh.Vertices {
		out := math.Vec3{X: 0, Y: v.Position.Y - axis.Y, Z: v.Position.Z - axis.Z}
		if v.Normal.Dot(out) <= 0 {
			t.Errorf("vertex %d normal %v points inward from %v", i, v.Normal, v.Position)
		}
	}
}

func TestVertexLimit(t *testing.T) {
	b := NewBuilder()
	b.MaxVertices = 10

	segs := []gcode.MoveSegment{
		extrusion(math.Vec3{X: 0, Y: 0, Z: 0.2}, math.Vec3{X: 10, Y: 0, Z: 0.2}),
		extrusion(math.Vec3{X: 0, Y: 5, Z: 0.2}, math.Vec3{X: 10, Y: 5, Z: 0.2}),
	}
	if _, err := b.Build(segs); !errors.Is(err, ErrTooLarge) {
		t.Errorf("err = %v, want ErrTooLarge", err)
	}
}

func TestBuildLayerAppliesLayerCeiling(t *testing.T) {
	b := NewBuilder()

	mesh, err := b.BuildLayer(0, []gcode.MoveSegment{
		extrusion(math.Vec3{X: 0, Y: 0, Z: 0.2}, math.Vec3{X: 10, Y: 0, Z: 0.2}),
	})
	if err != nil {
		t.Fatalf("BuildLayer: %v", err)
	}
	if mesh.VertexCount() != 8 {
		t.Errorf("vertices = %d, want 8", mesh.VertexCount())
	}

	// BuildLayer must not mutate the shared builder.
	if b.MaxVertices != 0 {
		t.Errorf("builder MaxVertices mutated to %d", b.MaxVertices)
	}
}

func TestSolidColorMode(t *testing.T) {
	b := NewBuilder()
	b.SolidColor = 0xFF123456
	seg := extrusion(math.Vec3{X: 0, Y: 0, Z: 0.2}, math.Vec3{X: 10, Y: 0, Z: 0.2})
	seg.Tool = 3 // ignored in solid mode

	mesh, err := b.Build([]gcode.MoveSegment{seg})
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range mesh.Vertices {
		if v.Color != 0xFF123456 {
			t.Errorf("vertex %d color = %#x", i, v.Color)
		}
	}
}

func TestPerToolPaletteWraps(t *testing.T) {
	b := NewBuilder()
	b.Mode = ColorPerTool
	b.Palette = []uint32{0xFF111111, 0xFF222222}

	seg := extrusion(math.Vec3{X: 0, Y: 0, Z: 0.2}, math.Vec3{X: 10, Y: 0, Z: 0.2})
	seg.Tool = 5 // 5 % 2 == 1

	mesh, err := b.Build([]gcode.MoveSegment{seg})
	if err != nil {
		t.Fatal(err)
	}
	if mesh.Vertices[0].Color != 0xFF222222 {
		t.Errorf("color = %#x, want palette[1]", mesh.Vertices[0].Color)
	}
}
