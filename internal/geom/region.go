package geom

// MaxRegionRects bounds the number of rectangles a Region keeps before it
// collapses to its bounding rectangle.
const MaxRegionRects = 32

// Region is a set of rectangles accumulated as damage. Rectangles may
// overlap; a rectangle added next to an existing one is merged into it when
// their bounding box is no larger than the two areas combined.
//
// The zero Region is empty and ready to use.
type Region struct {
	rects []Rect
}

// Add merges r into the region. Empty rectangles are ignored.
func (g *Region) Add(r Rect) {
	if r.Empty() {
		return
	}
	for i, cur := range g.rects {
		if cur.ContainsRect(r) {
			return
		}
		u := cur.Union(r)
		if u.Area() <= cur.Area()+r.Area() {
			g.rects[i] = u
			g.settle(i)
			return
		}
	}
	g.rects = append(g.rects, r)
	if len(g.rects) > MaxRegionRects {
		b := g.Bounds()
		g.rects = append(g.rects[:0], b)
	}
}

// settle re-merges rects[i] with any later rectangle it has grown into.
func (g *Region) settle(i int) {
	for j := 0; j < len(g.rects); j++ {
		if j == i {
			continue
		}
		u := g.rects[i].Union(g.rects[j])
		if u.Area() <= g.rects[i].Area()+g.rects[j].Area() {
			g.rects[i] = u
			g.rects = append(g.rects[:j], g.rects[j+1:]...)
			if j < i {
				i--
			}
			j = -1
		}
	}
}

// AddRegion merges every rectangle of o into g.
func (g *Region) AddRegion(o Region) {
	for _, r := range o.rects {
		g.Add(r)
	}
}

// Empty reports whether the region covers nothing.
func (g Region) Empty() bool {
	return len(g.rects) == 0
}

// Rects returns a copy of the region's rectangles.
func (g Region) Rects() []Rect {
	out := make([]Rect, len(g.rects))
	copy(out, g.rects)
	return out
}

// Bounds returns the bounding rectangle of the region.
func (g Region) Bounds() Rect {
	var b Rect
	for _, r := range g.rects {
		b = b.Union(r)
	}
	return b
}

// Clip returns the region restricted to bounds.
func (g Region) Clip(bounds Rect) Region {
	var out Region
	for _, r := range g.rects {
		out.Add(r.Intersect(bounds))
	}
	return out
}

// Translate returns the region shifted by (dx, dy).
func (g Region) Translate(dx, dy int) Region {
	out := Region{rects: make([]Rect, len(g.rects))}
	for i, r := range g.rects {
		out.rects[i] = r.Offset(dx, dy)
	}
	return out
}

// Covers reports whether every pixel of o lies inside g.
func (g Region) Covers(o Region) bool {
	for _, r := range o.rects {
		if !g.coversRect(r) {
			return false
		}
	}
	return true
}

func (g Region) coversRect(r Rect) bool {
	if r.Empty() {
		return true
	}
	for _, c := range g.rects {
		if c.ContainsRect(r) {
			return true
		}
	}
	// Split along the first rectangle that partially overlaps and check the
	// remaining pieces.
	for _, c := range g.rects {
		in := c.Intersect(r)
		if in.Empty() {
			continue
		}
		for _, piece := range subtract(r, in) {
			if !g.coversRect(piece) {
				return false
			}
		}
		return true
	}
	return false
}

// subtract returns up to four rectangles covering r minus hole, where hole
// lies inside r.
func subtract(r, hole Rect) []Rect {
	out := make([]Rect, 0, 4)
	if hole.Y > r.Y {
		out = append(out, R(r.X, r.Y, r.W, hole.Y-r.Y))
	}
	if hole.Bottom() < r.Bottom() {
		out = append(out, R(r.X, hole.Bottom(), r.W, r.Bottom()-hole.Bottom()))
	}
	if hole.X > r.X {
		out = append(out, R(r.X, hole.Y, hole.X-r.X, hole.H))
	}
	if hole.Right() < r.Right() {
		out = append(out, R(hole.Right(), hole.Y, r.Right()-hole.Right(), hole.H))
	}
	return out
}

// Reset empties the region, keeping its storage.
func (g *Region) Reset() {
	g.rects = g.rects[:0]
}
