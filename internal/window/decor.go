package window

import "github.com/bnema/orbital/internal/geom"

// Base decoration sizes at scale 1.
const (
	TitleHeight  = 28
	BorderSize   = 8
	ButtonWidth  = 18
	TitlePadding = 6
	OutlineWidth = 1
)

// Decor holds the decoration metrics for a given output scale.
type Decor struct {
	Scale int
}

// DefaultDecor is the scale-1 metrics set.
var DefaultDecor = Decor{Scale: 1}

func (d Decor) s(v int) int {
	if d.Scale <= 0 {
		return v
	}
	return v * d.Scale
}

// TitleHeight is the scaled title bar height.
func (d Decor) TitleHeight() int { return d.s(TitleHeight) }

// BorderSize is the scaled resize border thickness.
func (d Decor) BorderSize() int { return d.s(BorderSize) }

// OutlineWidth is the scaled width of the frame outline.
func (d Decor) OutlineWidth() int { return d.s(OutlineWidth) }

// Zone names the part of a window frame a point falls in.
type Zone int

const (
	ZoneNone Zone = iota
	ZoneContent
	ZoneTitle
	ZoneClose
	ZoneMaximize
	ZoneLeft
	ZoneRight
	ZoneBottom
	ZoneBottomLeft
	ZoneBottomRight
)

func (z Zone) String() string {
	switch z {
	case ZoneContent:
		return "content"
	case ZoneTitle:
		return "title"
	case ZoneClose:
		return "close"
	case ZoneMaximize:
		return "maximize"
	case ZoneLeft:
		return "left"
	case ZoneRight:
		return "right"
	case ZoneBottom:
		return "bottom"
	case ZoneBottomLeft:
		return "bottom-left"
	case ZoneBottomRight:
		return "bottom-right"
	default:
		return "none"
	}
}

// IsBorder reports whether z is one of the resize edges.
func (z Zone) IsBorder() bool {
	return z >= ZoneLeft && z <= ZoneBottomRight
}

// TitleRect is the title bar sitting directly above the content rectangle.
func (w *Window) TitleRect(d Decor) geom.Rect {
	if !w.Decorated() || !w.Visible() {
		return geom.Rect{}
	}
	return geom.R(w.Rect.X, w.Rect.Y-d.TitleHeight(), w.Rect.W, d.TitleHeight())
}

// CloseRect is the close button at the right end of the title bar.
func (w *Window) CloseRect(d Decor) geom.Rect {
	if w.Flags.Has(FlagUnclosable) {
		return geom.Rect{}
	}
	t := w.TitleRect(d)
	if t.Empty() {
		return t
	}
	x := max(t.X+d.s(TitlePadding), t.Right()-d.s(ButtonWidth))
	return geom.R(x, t.Y, t.Right()-x, t.H).Intersect(t)
}

// MaximizeRect is the maximize button left of the close button.
func (w *Window) MaximizeRect(d Decor) geom.Rect {
	if !w.Flags.Has(FlagResizable) {
		return geom.Rect{}
	}
	t := w.TitleRect(d)
	if t.Empty() {
		return t
	}
	x := max(t.X+d.s(TitlePadding), t.Right()-2*d.s(ButtonWidth))
	return geom.R(x, t.Y, d.s(ButtonWidth), t.H).Intersect(t)
}

// BorderRect returns the resize hot-zone for one of the border zones.
func (w *Window) BorderRect(d Decor, z Zone) geom.Rect {
	if !w.Decorated() || !w.Visible() || !w.Flags.Has(FlagResizable) {
		return geom.Rect{}
	}
	r, b := w.Rect, d.BorderSize()
	switch z {
	case ZoneLeft:
		return geom.R(r.X-b, r.Y, b, r.H)
	case ZoneRight:
		return geom.R(r.Right(), r.Y, b, r.H)
	case ZoneBottom:
		return geom.R(r.X, r.Bottom(), r.W, b)
	case ZoneBottomLeft:
		return geom.R(r.X-b, r.Bottom(), b, b)
	case ZoneBottomRight:
		return geom.R(r.Right(), r.Bottom(), b, b)
	}
	return geom.Rect{}
}

// SolidRect is the part of the frame that is always fully painted: the
// content and the title bar.
func (w *Window) SolidRect(d Decor) geom.Rect {
	if !w.Visible() {
		return geom.Rect{}
	}
	return w.Rect.Canon().Union(w.TitleRect(d))
}

// OutlineRect is SolidRect grown by the outline width for decorated
// windows.
func (w *Window) OutlineRect(d Decor) geom.Rect {
	s := w.SolidRect(d)
	if s.Empty() || !w.Decorated() {
		return s
	}
	o := d.OutlineWidth()
	return geom.R(s.X-o, s.Y-o, s.W+2*o, s.H+2*o)
}

var borderZones = [...]Zone{ZoneLeft, ZoneRight, ZoneBottom, ZoneBottomLeft, ZoneBottomRight}

// FrameRect is the bounding box of content, title bar, outline and
// borders: everything the window can draw or be hit in.
func (w *Window) FrameRect(d Decor) geom.Rect {
	if !w.Visible() {
		return geom.Rect{}
	}
	f := w.OutlineRect(d)
	for _, z := range borderZones {
		f = f.Union(w.BorderRect(d, z))
	}
	return f
}

// HitTest returns the zone of the frame containing p, or ZoneNone.
func (w *Window) HitTest(p geom.Point, d Decor) Zone {
	if !w.Visible() {
		return ZoneNone
	}
	if w.Rect.Contains(p) {
		return ZoneContent
	}
	if t := w.TitleRect(d); t.Contains(p) {
		if w.CloseRect(d).Contains(p) {
			return ZoneClose
		}
		if w.MaximizeRect(d).Contains(p) {
			return ZoneMaximize
		}
		return ZoneTitle
	}
	for _, z := range borderZones {
		if w.BorderRect(d, z).Contains(p) {
			return z
		}
	}
	// The outline is drawn, so it is hit. Where no resize border covers
	// it, it drags like the title bar.
	if w.OutlineRect(d).Contains(p) {
		return ZoneTitle
	}
	return ZoneNone
}
