package math

// Rect2 is an axis-aligned rectangle in the XY plane.
type Rect2 struct {
	Min, Max Vec2
}

// EmptyRect2 returns a rectangle that expands to contain the first point added.
func EmptyRect2() Rect2 {
	return Rect2{
		Min: Vec2{X: 1e10, Y: 1e10},
		Max: Vec2{X: -1e10, Y: -1e10},
	}
}

// IsEmpty reports whether no point has been added.
func (r Rect2) IsEmpty() bool {
	return r.Min.X > r.Max.X || r.Min.Y > r.Max.Y
}

// Expand grows the rectangle to include p.
func (r *Rect2) Expand(p Vec2) {
	if p.X < r.Min.X {
		r.Min.X = p.X
	}
	if p.Y < r.Min.Y {
		r.Min.Y = p.Y
	}
	if p.X > r.Max.X {
		r.Max.X = p.X
	}
	if p.Y > r.Max.Y {
		r.Max.Y = p.Y
	}
}

// Box3 is an axis-aligned bounding box.
type Box3 struct {
	Min, Max Vec3
}

// EmptyBox3 returns a box that expands to contain the first point added.
func EmptyBox3() Box3 {
	return Box3{
		Min: Vec3{X: 1e10, Y: 1e10, Z: 1e10},
		Max: Vec3{X: -1e10, Y: -1e10, Z: -1e10},
	}
}

// IsEmpty reports whether no point has been added.
func (b Box3) IsEmpty() bool {
	return b.Min.X > b.Max.X
}

// Expand grows the box to include p.
func (b *Box3) Expand(p Vec3) {
	if p.X < b.Min.X {
		b.Min.X = p.X
	}
	if p.Y < b.Min.Y {
		b.Min.Y = p.Y
	}
	if p.Z < b.Min.Z {
		b.Min.Z = p.Z
	}
	if p.X > b.Max.X {
		b.Max.X = p.X
	}
	if p.Y > b.Max.Y {
		b.Max.Y = p.Y
	}
	if p.Z > b.Max.Z {
		b.Max.Z = p.Z
	}
}

// Center returns the box midpoint.
func (b Box3) Center() Vec3 {
	return Vec3{
		X: (b.Min.X + b.Max.X) / 2,
		Y: (b.Min.Y + b.Max.Y) / 2,
		Z: (b.Min.Z + b.Max.Z) / 2,
	}
}

// Size returns the box extents.
func (b Box3) Size() Vec3 {
	return b.Max.Sub(b.Min)
}
