package compositor

import (
	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/pixbuf"
	"github.com/bnema/orbital/internal/wm"
)

// arrow is the 16x16 arrow cursor: 'X' outline, '.' fill.
var arrow = [...]string{
	"X               ",
	"XX              ",
	"X.X             ",
	"X..X            ",
	"X...X           ",
	"X....X          ",
	"X.....X         ",
	"X......X        ",
	"X.......X       ",
	"X........X      ",
	"X.....XXXXX     ",
	"X..X..X         ",
	"X.X X..X        ",
	"XX  X..X        ",
	"X    X..X       ",
	"     XXXX       ",
}

// drawCursor paints the cursor inside box, clipped to clip. Bitmaps are
// drawn at the box's scale.
func (c *Compositor) drawCursor(shape wm.Cursor, box geom.Rect, clip geom.Rect) {
	if !box.Overlaps(clip) {
		return
	}
	scale := max(box.W/wm.CursorSize, 1)
	outline := c.theme.Border
	fill := c.theme.Cursor

	plot := func(x, y int, col pixbuf.Color) {
		r := geom.R(box.X+x*scale, box.Y+y*scale, scale, scale).Intersect(clip)
		c.fb.Fill(r, col)
	}

	switch shape {
	case wm.CursorArrow:
		for y, row := range arrow {
			for x := 0; x < len(row); x++ {
				switch row[x] {
				case 'X':
					plot(x, y, outline)
				case '.':
					plot(x, y, fill)
				}
			}
		}
		return
	}

	// Line shapes: a two-pixel stroke through the center of the box.
	n := wm.CursorSize
	for i := 1; i < n-1; i++ {
		var pts [2][2]int
		switch shape {
		case wm.CursorResizeH:
			pts = [2][2]int{{i, n / 2}, {i, n/2 - 1}}
		case wm.CursorResizeV:
			pts = [2][2]int{{n / 2, i}, {n/2 - 1, i}}
		case wm.CursorResizeNWSE:
			pts = [2][2]int{{i, i}, {i, i - 1}}
		case wm.CursorResizeNESW:
			pts = [2][2]int{{n - 1 - i, i}, {n - 1 - i, i - 1}}
		case wm.CursorMove:
			plot(i, n/2, fill)
			plot(n/2, i, fill)
			continue
		}
		plot(pts[0][0], pts[0][1], fill)
		plot(pts[1][0], pts[1][1], outline)
	}
}
