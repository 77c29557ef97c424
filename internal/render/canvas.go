// Package render provides a software ARGB8888 canvas that the bed-mesh
// rasterizer and the viewer draw into.
package render

// Canvas is a fixed-size ARGB8888 pixel buffer. It clips all drawing to
// its bounds, which is what the rasterizer's DrawLayer contract expects.
type Canvas struct {
	W, H int
	Pix  []uint32
}

// NewCanvas returns a w×h canvas cleared to transparent black.
func NewCanvas(w, h int) *Canvas {
	return &Canvas{W: w, H: h, Pix: make([]uint32, w*h)}
}

// Clear fills the whole canvas with color.
func (c *Canvas) Clear(color uint32) {
	for i := range c.Pix {
		c.Pix[i] = color
	}
}

// At returns the pixel at (x, y), or 0 outside the canvas.
func (c *Canvas) At(x, y int) uint32 {
	if x < 0 || y < 0 || x >= c.W || y >= c.H {
		return 0
	}
	return c.Pix[y*c.W+x]
}

// FillRun fills pixels [x1,x2] on row y, blending color over the
// existing pixels at the given opacity (255 = opaque).
func (c *Canvas) FillRun(x1, x2, y int, color uint32, opacity uint8) {
	if y < 0 || y >= c.H || x2 < 0 || x1 >= c.W {
		return
	}
	if x1 < 0 {
		x1 = 0
	}
	if x2 >= c.W {
		x2 = c.W - 1
	}

	row := c.Pix[y*c.W : y*c.W+c.W]
	if opacity == 0xFF {
		for x := x1; x <= x2; x++ {
			row[x] = color
		}
		return
	}
	for x := x1; x <= x2; x++ {
		row[x] = blend(row[x], color, opacity)
	}
}

// blend mixes src over dst by alpha, per channel, keeping the
// destination alpha.
func blend(dst, src uint32, alpha uint8) uint32 {
	a := uint32(alpha)
	inv := 255 - a

	out := dst & 0xFF000000
	for _, shift := range [3]uint{16, 8, 0} {
		d := (dst >> shift) & 0xFF
		s := (src >> shift) & 0xFF
		out |= ((s*a + d*inv + 127) / 255) << shift
	}
	return out
}
