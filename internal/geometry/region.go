package geometry

// Region is a set of non-overlapping rectangles.
type Region struct {
	rects []Rect
}

// NewRegion returns a region covering r.
func NewRegion(r Rect) Region {
	if r.Empty() {
		return Region{}
	}
	return Region{rects: []Rect{r}}
}

// Rects returns a copy of the rectangles making up the region.
func (g Region) Rects() []Rect {
	out := make([]Rect, len(g.rects))
	copy(out, g.rects)
	return out
}

// IsEmpty reports whether the region covers no area.
func (g Region) IsEmpty() bool {
	return len(g.rects) == 0
}

// Area returns the number of covered pixels.
func (g Region) Area() int {
	total := 0
	for _, r := range g.rects {
		total += r.Width * r.Height
	}
	return total
}

// Contains reports whether the point is covered by the region.
func (g Region) Contains(x, y int) bool {
	for _, r := range g.rects {
		if r.Contains(x, y) {
			return true
		}
	}
	return false
}

// Bounds returns the bounding box of the region.
func (g Region) Bounds() Rect {
	var b Rect
	for _, r := range g.rects {
		b = b.Union(r)
	}
	return b
}

// Subtract removes r from the region and reports whether anything changed.
//
// Each overlapped rectangle is split into at most four pieces: the full-width
// bands above and below the overlap, then the left and right remainders
// beside it.
func (g *Region) Subtract(r Rect) bool {
	if r.Empty() || len(g.rects) == 0 {
		return false
	}

	changed := false
	out := make([]Rect, 0, len(g.rects)+3)
	for _, a := range g.rects {
		in := a.Intersect(r)
		if in.Empty() {
			out = append(out, a)
			continue
		}
		changed = true

		if top := in.Y - a.Y; top > 0 {
			out = append(out, Rect{X: a.X, Y: a.Y, Width: a.Width, Height: top})
		}
		if bottom := a.Bottom() - in.Bottom(); bottom > 0 {
			out = append(out, Rect{X: a.X, Y: in.Bottom(), Width: a.Width, Height: bottom})
		}
		if left := in.X - a.X; left > 0 {
			out = append(out, Rect{X: a.X, Y: in.Y, Width: left, Height: in.Height})
		}
		if right := a.Right() - in.Right(); right > 0 {
			out = append(out, Rect{X: in.Right(), Y: in.Y, Width: right, Height: in.Height})
		}
	}
	g.rects = out
	return changed
}
