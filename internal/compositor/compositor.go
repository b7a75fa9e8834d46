// Package compositor merges the visible window buffers, their decorations,
// manager overlays and the cursor into the output framebuffer. Only damaged
// areas are recomposed; a cycle without damage does nothing.
package compositor

import (
	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/logger"
	"github.com/bnema/orbital/internal/pixbuf"
	"github.com/bnema/orbital/internal/registry"
	"github.com/bnema/orbital/internal/window"
	"github.com/bnema/orbital/internal/wm"
)

// Scene is the manager state drawn above the windows.
type Scene struct {
	Pointer    geom.Point
	Cursor     wm.Cursor
	CursorRect geom.Rect
	HideCursor bool
	Overlays   []wm.Overlay
}

// SceneOf captures the scene of a manager.
func SceneOf(m *wm.Manager) Scene {
	return Scene{
		Pointer:    m.Pointer(),
		Cursor:     m.Cursor(),
		CursorRect: m.CursorRect(),
		HideCursor: m.CursorHidden(),
		Overlays:   m.Overlays(),
	}
}

// Frame is one completed composition. Buffer is the compositor's
// framebuffer and stays valid until the next Compose call.
type Frame struct {
	Seq    uint64
	Buffer *pixbuf.Buffer
	Damage []geom.Rect
	Cursor geom.Point
	Shape  wm.Cursor
}

// Compositor owns the output framebuffer. It is its only writer.
type Compositor struct {
	theme Theme
	decor window.Decor
	fb    *pixbuf.Buffer
	seq   uint64

	// stack is reused between cycles.
	stack []*window.Window
}

// New creates a compositor with a width x height framebuffer filled with
// the background color.
func New(width, height int, theme Theme, decor window.Decor) *Compositor {
	return &Compositor{
		theme: theme,
		decor: decor,
		fb:    pixbuf.NewFilled(width, height, theme.Background),
	}
}

// Framebuffer returns the output buffer.
func (c *Compositor) Framebuffer() *pixbuf.Buffer { return c.fb }

// Bounds is the output rectangle.
func (c *Compositor) Bounds() geom.Rect { return c.fb.Rect() }

// Frames returns the number of frames produced.
func (c *Compositor) Frames() uint64 { return c.seq }

// Resize reallocates the framebuffer. The caller is expected to damage the
// whole new output.
func (c *Compositor) Resize(width, height int) {
	if width == c.fb.Width && height == c.fb.Height {
		return
	}
	c.fb = c.fb.Resize(width, height, c.theme.Background)
}

// Compose recomposes the damaged part of the output and clears the damage
// it consumed. It returns false and does nothing when there is no damage
// on screen.
func (c *Compositor) Compose(reg *registry.Registry, scene Scene) (Frame, bool) {
	bounds := c.fb.Rect()
	all := reg.Damage()
	damage := all.Clip(bounds)
	if damage.Empty() {
		if !all.Empty() {
			// Only off-screen damage: nothing to draw but it is consumed.
			reg.ClearDamage(damage, bounds)
		}
		return Frame{}, false
	}

	rects := damage.Rects()
	for _, r := range rects {
		c.composeRect(reg, r)
		for _, o := range scene.Overlays {
			c.drawOverlay(o, r)
		}
		if !scene.HideCursor {
			c.drawCursor(scene.Cursor, scene.CursorRect, r)
		}
	}
	reg.ClearDamage(damage, bounds)
	c.seq++

	logger.Debugf("frame %d: %d damage rects", c.seq, len(rects))
	return Frame{
		Seq:    c.seq,
		Buffer: c.fb,
		Damage: rects,
		Cursor: scene.Pointer,
		Shape:  scene.Cursor,
	}, true
}

// composeRect repaints clip from the z-order. Walking front to back, the
// first opaque window whose solid area covers clip hides everything behind
// it; painting then runs back to front from there.
func (c *Compositor) composeRect(reg *registry.Registry, clip geom.Rect) {
	c.stack = c.stack[:0]
	covered := false
	reg.Each(func(w *window.Window) bool {
		if !w.Visible() || !w.FrameRect(c.decor).Overlaps(clip) {
			return true
		}
		c.stack = append(c.stack, w)
		if !w.Flags.Has(window.FlagTransparent) && w.SolidRect(c.decor).ContainsRect(clip) {
			covered = true
			return false
		}
		return true
	})

	if !covered {
		c.fb.Fill(clip, c.theme.Background)
	}
	for i := len(c.stack) - 1; i >= 0; i-- {
		c.drawWindow(c.stack[i], clip)
	}
	clear(c.stack)
}

// drawWindow paints the content and decorations of w inside clip.
func (c *Compositor) drawWindow(w *window.Window, clip geom.Rect) {
	if w.Decorated() {
		c.drawDecorations(w, clip)
	}

	area := w.Rect.Intersect(clip)
	if area.Empty() {
		return
	}
	transparent := w.Flags.Has(window.FlagTransparent)
	backed := geom.Rect{}
	if w.Buffer != nil {
		backed = w.Buffer.Rect().Offset(w.Rect.X, w.Rect.Y).Intersect(area)
	}
	if backed != area {
		// Content not backed by the buffer.
		if transparent {
			c.fb.BlendFill(area, c.theme.Fallback)
		} else {
			c.fb.Fill(area, c.theme.Fallback)
		}
	}
	if backed.Empty() {
		return
	}
	sp := backed.Min().Sub(w.Rect.Min())
	if transparent {
		c.fb.Blend(backed, w.Buffer, sp)
	} else {
		c.fb.Blit(backed, w.Buffer, sp)
	}
}
