package compositor

import (
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/pixbuf"
	"github.com/bnema/orbital/internal/window"
	"github.com/bnema/orbital/internal/wm"
)

var face = basicfont.Face7x13

// clipped restricts drawing into a buffer to a rectangle. image/draw only
// touches pixels inside Bounds.
type clipped struct {
	*pixbuf.Buffer
	clip geom.Rect
}

func (c clipped) Bounds() image.Rectangle {
	r := c.clip.Intersect(c.Buffer.Rect())
	return image.Rect(r.X, r.Y, r.Right(), r.Bottom())
}

// drawText draws s with its top-left corner at p, clipped to clip and
// truncated to maxWidth pixels.
func (c *Compositor) drawText(s string, p geom.Point, col pixbuf.Color, clip geom.Rect, maxWidth int) {
	if clip.Empty() || s == "" {
		return
	}
	d := &font.Drawer{
		Dst:  clipped{Buffer: c.fb, clip: clip},
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.P(p.X, p.Y+face.Ascent),
	}
	limit := fixed.I(p.X + maxWidth)
	for _, r := range s {
		adv, ok := face.GlyphAdvance(r)
		if !ok {
			r = '?'
			adv, _ = face.GlyphAdvance(r)
		}
		if d.Dot.X+adv > limit {
			break
		}
		d.DrawString(string(r))
	}
}

// drawDecorations paints the outline, title bar, title and buttons of w
// inside clip.
func (c *Compositor) drawDecorations(w *window.Window, clip geom.Rect) {
	d := c.decor
	outline := w.OutlineRect(d)
	solid := w.SolidRect(d)
	if o := d.OutlineWidth(); o > 0 {
		border := c.theme.Border
		for _, r := range []geom.Rect{
			geom.R(outline.X, outline.Y, outline.W, o),
			geom.R(outline.X, solid.Bottom(), outline.W, o),
			geom.R(outline.X, solid.Y, o, solid.H),
			geom.R(solid.Right(), solid.Y, o, solid.H),
		} {
			c.fb.Fill(r.Intersect(clip), border)
		}
	}

	title := w.TitleRect(d)
	tclip := title.Intersect(clip)
	if tclip.Empty() {
		return
	}
	bar, text := c.theme.Bar, c.theme.Text
	if w.Focused() {
		bar, text = c.theme.BarHighlight, c.theme.TextHighlight
	}
	c.fb.Fill(tclip, bar)

	pad := TitlePad(d)
	textTop := title.Y + (title.H-face.Height)/2
	textWidth := title.W - 2*pad
	if b := w.MaximizeRect(d); !b.Empty() {
		textWidth = b.X - title.X - 2*pad
	} else if b := w.CloseRect(d); !b.Empty() {
		textWidth = b.X - title.X - 2*pad
	}
	c.drawText(w.Title, geom.Point{X: title.X + pad, Y: textTop}, text, tclip, textWidth)

	if b := w.CloseRect(d); !b.Empty() {
		c.drawCross(b, text, tclip)
	}
	if b := w.MaximizeRect(d); !b.Empty() {
		c.drawBox(b, text, tclip)
	}
}

// TitlePad is the scaled horizontal title text padding.
func TitlePad(d window.Decor) int {
	return window.TitlePadding * max(d.Scale, 1)
}

// glyphBox is the square a button glyph is drawn in, centered in b.
func glyphBox(b geom.Rect) geom.Rect {
	s := min(b.W, b.H) / 2
	return geom.R(b.X+(b.W-s)/2, b.Y+(b.H-s)/2, s, s)
}

func (c *Compositor) drawCross(b geom.Rect, col pixbuf.Color, clip geom.Rect) {
	g := glyphBox(b)
	for i := 0; i < g.W; i++ {
		for _, p := range []geom.Point{{X: g.X + i, Y: g.Y + i}, {X: g.Right() - 1 - i, Y: g.Y + i}} {
			if clip.Contains(p) {
				c.fb.SetPixel(p.X, p.Y, col)
			}
		}
	}
}

func (c *Compositor) drawBox(b geom.Rect, col pixbuf.Color, clip geom.Rect) {
	g := glyphBox(b)
	for _, r := range []geom.Rect{
		geom.R(g.X, g.Y, g.W, 2),
		geom.R(g.X, g.Bottom()-1, g.W, 1),
		geom.R(g.X, g.Y, 1, g.H),
		geom.R(g.Right()-1, g.Y, 1, g.H),
	} {
		c.fb.Fill(r.Intersect(clip), col)
	}
}

// drawOverlay paints a manager overlay panel inside clip.
func (c *Compositor) drawOverlay(o wm.Overlay, clip geom.Rect) {
	area := o.Rect.Intersect(clip)
	if area.Empty() {
		return
	}
	c.fb.Fill(area, c.theme.Bar)
	inner := geom.R(o.Rect.X+1, o.Rect.Y+1, o.Rect.W-2, o.Rect.H-2)
	for _, r := range []geom.Rect{
		geom.R(o.Rect.X, o.Rect.Y, o.Rect.W, 1),
		geom.R(o.Rect.X, inner.Bottom(), o.Rect.W, 1),
		geom.R(o.Rect.X, o.Rect.Y, 1, o.Rect.H),
		geom.R(inner.Right(), o.Rect.Y, 1, o.Rect.H),
	} {
		c.fb.Fill(r.Intersect(clip), c.theme.BarHighlight)
	}

	x := o.Rect.X + wm.OverlayMargin
	for i, line := range o.Lines {
		y := o.Rect.Y + wm.OverlayMargin + i*wm.LineHeight
		col := c.theme.Text
		if i == o.Selected {
			row := geom.R(o.Rect.X+2, y-(wm.LineHeight-face.Height)/2, o.Rect.W-4, wm.LineHeight)
			c.fb.Fill(row.Intersect(clip), c.theme.BarHighlight)
			col = c.theme.TextHighlight
		}
		c.drawText(line, geom.Point{X: x, Y: y}, col, area, o.Rect.W-2*wm.OverlayMargin)
	}
}
