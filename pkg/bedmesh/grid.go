// Package bedmesh renders printer bed probe grids as a shaded 3D
// surface on a software draw layer.
package bedmesh

import (
	stdmath "math"
)

// DefaultSpacing is the world-space distance between adjacent probe
// points in millimeters.
const DefaultSpacing = 10.0

// Grid is a rectangular probe height field. Z is row-major, row 0 at
// the front edge of the bed. Unprobed points are NaN and render as
// holes.
type Grid struct {
	Rows, Cols int
	Z          []float32

	// Spacing is the world distance between adjacent points.
	Spacing float32
}

// NewGrid returns a rows×cols grid with all heights NaN.
func NewGrid(rows, cols int) *Grid {
	z := make([]float32, rows*cols)
	nan := float32(stdmath.NaN())
	for i := range z {
		z[i] = nan
	}
	return &Grid{Rows: rows, Cols: cols, Z: z, Spacing: DefaultSpacing}
}

// At returns the height at (row, col).
func (g *Grid) At(row, col int) float32 { return g.Z[row*g.Cols+col] }

// Set stores the height at (row, col).
func (g *Grid) Set(row, col int, z float32) { g.Z[row*g.Cols+col] = z }

// ZRange returns the minimum and maximum probed heights, skipping NaN.
// ok is false when no point is probed.
func (g *Grid) ZRange() (minZ, maxZ float32, ok bool) {
	for _, z := range g.Z {
		if stdmath.IsNaN(float64(z)) {
			continue
		}
		if !ok || z < minZ {
			minZ = z
		}
		if !ok || z > maxZ {
			maxZ = z
		}
		ok = true
	}
	return minZ, maxZ, ok
}

// WorldX maps a column index to a world X coordinate centered on the
// origin, so an odd grid puts its middle column at x=0.
func (g *Grid) WorldX(col int) float32 {
	return (float32(col) - float32(g.Cols-1)/2) * g.Spacing
}

// WorldY maps a row index to a world Y coordinate. Row 0 is the front
// edge, which faces the viewer, so rows map to decreasing Y.
func (g *Grid) WorldY(row int) float32 {
	return (float32(g.Rows-1)/2 - float32(row)) * g.Spacing
}

// Extents returns the world-space width and depth of the grid.
func (g *Grid) Extents() (width, depth float32) {
	return float32(g.Cols-1) * g.Spacing, float32(g.Rows-1) * g.Spacing
}
