package gcode

import "github.com/pellcorp/helixscreen/pkg/math"

// MoveSegment is one motion of the toolhead. Pure E or F changes do not
// produce segments; they only advance the modal state.
type MoveSegment struct {
	Start, End math.Vec3

	// ExtrusionLength is the filament length consumed, > 0 iff IsExtrusion.
	ExtrusionLength float32

	IsExtrusion  bool
	IsRetraction bool

	// Feedrate is in mm/min.
	Feedrate float32

	// Layer is -1 when the segment precedes the first layer boundary.
	Layer int32

	Tool uint8

	// ByteOffset is the absolute offset of the source line.
	ByteOffset uint64
}

// ModalState is the implicit G-code state that persists across lines.
// The streaming controller persists each layer's terminal state so a
// single layer can be parsed without replaying the file.
type ModalState struct {
	X, Y, Z  float32
	E        float32
	Feedrate float32

	AbsoluteMoves bool // G90 / G91
	AbsoluteE     bool // M82 / M83 (G90/G91 also switch it)
	Inches        bool // G20 / G21

	Tool uint8
}

// DefaultModalState returns the state at the top of a file: absolute
// millimeter moves, tool 0.
func DefaultModalState() ModalState {
	return ModalState{
		AbsoluteMoves: true,
		AbsoluteE:     true,
	}
}

// Position returns the current toolhead position.
func (m ModalState) Position() math.Vec3 {
	return math.Vec3{X: m.X, Y: m.Y, Z: m.Z}
}

// MaxTools bounds the per-file tool palette.
const MaxTools = 16

// Metadata aggregates per-file information collected during parsing.
type Metadata struct {
	// Bounds covers extrusion segment endpoints only; travel moves and
	// Z lifts do not grow it.
	Bounds math.Box3

	TotalExtrusion   float32
	PerToolExtrusion [MaxTools]float32

	LayerCount uint32

	// LayerHeight is the detected dominant layer Z step, or
	// DefaultLayerHeight when the file has fewer than two layers.
	LayerHeight float32

	// Palette holds one ARGB color per tool, from slicer color comments
	// or the default palette.
	Palette []uint32

	Slicer string
}

// LayerBoundary describes the start of a layer during parsing.
type LayerBoundary struct {
	Layer     int32
	Z         float32
	ByteStart uint64

	// PrevEnd is the modal state at the end of the previous layer, the
	// seed for parsing this layer in isolation.
	PrevEnd ModalState
}

// DefaultPalette returns the deterministic per-tool colors used when a
// file carries no color comments.
func DefaultPalette() []uint32 {
	return []uint32{
		0xFF2196F3, // blue
		0xFFF44336, // red
		0xFF4CAF50, // green
		0xFFFF9800, // orange
		0xFF9C27B0, // purple
		0xFF00BCD4, // cyan
		0xFFFFEB3B, // yellow
		0xFF795548, // brown
		0xFFE91E63, // pink
		0xFF8BC34A, // light green
		0xFF3F51B5, // indigo
		0xFFFF5722, // deep orange
		0xFF607D8B, // blue grey
		0xFF009688, // teal
		0xFFCDDC39, // lime
		0xFF9E9E9E, // grey
	}
}
