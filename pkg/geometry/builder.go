package geometry

import (
	"errors"
	"fmt"

	"github.com/pellcorp/helixscreen/pkg/gcode"
	"github.com/pellcorp/helixscreen/pkg/math"
)

// ErrTooLarge is returned when a build would exceed the vertex ceilings.
var ErrTooLarge = errors.New("geometry exceeds vertex limit")

const (
	// DefaultExtrusionWidth is the tube width used when the slicer does
	// not report one.
	DefaultExtrusionWidth = 0.4

	// DefaultLayerHeight is the tube height fallback.
	DefaultLayerHeight = 0.2

	// weldGrid is the vertex quantization step in millimeters. Two
	// vertices within the same grid cell weld into one.
	weldGrid = 0.001

	// MaxModelVertices caps a full-model build.
	MaxModelVertices = 8 * 1024 * 1024

	// MaxLayerVertices caps a single-layer build.
	MaxLayerVertices = 256 * 1024
)

// ColorMode selects how tube vertices are colored.
type ColorMode int

const (
	// ColorSolid paints every extrusion with Builder.SolidColor.
	ColorSolid ColorMode = iota

	// ColorPerTool paints each extrusion with the palette entry for its
	// tool, wrapping when the palette is shorter than the tool count.
	ColorPerTool
)

// Builder constructs quad-tube meshes from extrusion moves. Travel and
// retraction moves produce no geometry.
type Builder struct {
	ExtrusionWidth float32
	LayerHeight    float32
	Mode           ColorMode
	SolidColor     uint32
	Palette        []uint32

	// MaxVertices aborts the build with ErrTooLarge when exceeded.
	// Zero means MaxModelVertices.
	MaxVertices int
}

// NewBuilder returns a builder with the default tube dimensions and a
// solid gray color.
func NewBuilder() *Builder {
	return &Builder{
		ExtrusionWidth: DefaultExtrusionWidth,
		LayerHeight:    DefaultLayerHeight,
		Mode:           ColorSolid,
		SolidColor:     0xFFB0B0B0,
		Palette:        gcode.DefaultPalette(),
	}
}

// up is the tube's vertical reference axis.
var up = math.Vec3{X: 0, Y: 0, Z: 1}

// Build produces the tube mesh for segs. Vertices within weldGrid of
// each other (same color and layer) are shared, so rebuilding the same
// input yields an identical mesh.
func (b *Builder) Build(segs []gcode.MoveSegment) (*TriangleMesh, error) {
	limit := b.MaxVertices
	if limit <= 0 {
		limit = MaxModelVertices
	}

	width := b.ExtrusionWidth
	if width <= 0 {
		width = DefaultExtrusionWidth
	}
	height := b.LayerHeight
	if height <= 0 {
		height = DefaultLayerHeight
	}
	halfW := width / 2
	halfH := height / 2

	mesh := &TriangleMesh{Bounds: math.EmptyBox3()}
	weld := make(map[weldKey]uint32)

	for _, seg := range segs {
		if !seg.IsExtrusion {
			continue
		}
		dir := seg.End.Sub(seg.Start)
		if dir.Length() == 0 {
			continue
		}
		dir = dir.Normalize()

		// perpH lies in the layer plane; for vertical moves the plane
		// is degenerate, so fall back to the X axis.
		perpH := dir.Cross(up)
		if perpH.Length() < 1e-6 {
			perpH = math.Vec3{X: 1, Y: 0, Z: 0}
		} else {
			perpH = perpH.Normalize()
		}
		perpV := perpH.Cross(dir).Normalize()

		color := b.colorFor(seg)

		// Four corners per cross-section, matching normals pointing
		// away from the tube axis.
		var corners, normals [4]math.Vec3
		for i, s := range cornerSigns {
			off := perpH.Scale(s[0] * halfW).Add(perpV.Scale(s[1] * halfH))
			corners[i] = off
			normals[i] = perpH.Scale(s[0]).Add(perpV.Scale(s[1])).Normalize()
		}

		var ring [8]uint32
		for i := 0; i < 4; i++ {
			ring[i] = b.addVertex(mesh, weld, seg.Start.Add(corners[i]), normals[i], color, seg.Layer)
			ring[i+4] = b.addVertex(mesh, weld, seg.End.Add(corners[i]), normals[i], color, seg.Layer)
		}
		if len(mesh.Vertices) > limit {
			return nil, fmt.Errorf("%w: %d vertices (limit %d)", ErrTooLarge, len(mesh.Vertices), limit)
		}

		// Two triangles per side face, four faces, no caps.
		for i := 0; i < 4; i++ {
			j := (i + 1) % 4
			mesh.Indices = append(mesh.Indices,
				ring[i], ring[i+4], ring[j],
				ring[j], ring[i+4], ring[j+4])
		}
	}

	return mesh, nil
}

// BuildLayer implements gcode.MeshBuilder. Negative layer values mean a
// whole-model build and get the larger vertex ceiling.
func (b *Builder) BuildLayer(layer int32, segs []gcode.MoveSegment) (gcode.LayerMesh, error) {
	scoped := *b
	if scoped.MaxVertices <= 0 {
		if layer >= 0 {
			scoped.MaxVertices = MaxLayerVertices
		} else {
			scoped.MaxVertices = MaxModelVertices
		}
	}
	mesh, err := scoped.Build(segs)
	if err != nil {
		return nil, err
	}
	return mesh, nil
}

// cornerSigns walks the cross-section counter-clockwise when viewed
// along the move direction.
var cornerSigns = [4][2]float32{{1, 1}, {-1, 1}, {-1, -1}, {1, -1}}

type weldKey struct {
	x, y, z int64
	color   uint32
	layer   int32
}

func (b *Builder) addVertex(mesh *TriangleMesh, weld map[weldKey]uint32, pos, normal math.Vec3, color uint32, layer int32) uint32 {
	key := weldKey{
		x:     int64(pos.X/weldGrid + 0.5*sign(pos.X)),
		y:     int64(pos.Y/weldGrid + 0.5*sign(pos.Y)),
		z:     int64(pos.Z/weldGrid + 0.5*sign(pos.Z)),
		color: color,
		layer: layer,
	}
	if idx, ok := weld[key]; ok {
		return idx
	}
	// The stored position is snapped to the weld grid, so the vertex a
	// key resolves to does not depend on which segment arrived first.
	snapped := math.Vec3{
		X: float32(key.x) * weldGrid,
		Y: float32(key.y) * weldGrid,
		Z: float32(key.z) * weldGrid,
	}
	idx := uint32(len(mesh.Vertices))
	mesh.Vertices = append(mesh.Vertices, TubeVertex{
		Position: snapped,
		Normal:   normal,
		Color:    color,
		Layer:    layer,
	})
	mesh.Bounds.Expand(snapped)
	weld[key] = idx
	return idx
}

func sign(f float32) float32 {
	if f < 0 {
		return -1
	}
	return 1
}

func (b *Builder) colorFor(seg gcode.MoveSegment) uint32 {
	if b.Mode == ColorPerTool && len(b.Palette) > 0 {
		return b.Palette[int(seg.Tool)%len(b.Palette)]
	}
	return b.SolidColor
}
