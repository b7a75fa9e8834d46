// Package pixbuf implements the packed 32-bit pixel buffers owned by the
// window registry and the output framebuffer written by the compositor.
package pixbuf

import (
	"fmt"
	"image"
	"image/color"

	"github.com/bnema/orbital/internal/geom"
)

// Color is a packed 0xAARRGGBB value.
type Color uint32

// RGBA packs the four channels into a Color.
func RGBA(r, g, b, a uint8) Color {
	return Color(uint32(a)<<24 | uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}

// RGB packs an opaque color.
func RGB(r, g, b uint8) Color {
	return RGBA(r, g, b, 0xff)
}

// A returns the alpha channel.
func (c Color) A() uint8 { return uint8(c >> 24) }

// R returns the red channel.
func (c Color) R() uint8 { return uint8(c >> 16) }

// G returns the green channel.
func (c Color) G() uint8 { return uint8(c >> 8) }

// B returns the blue channel.
func (c Color) B() uint8 { return uint8(c) }

// RGBA implements color.Color with alpha-premultiplied channels.
func (c Color) RGBA() (r, g, b, a uint32) {
	a = uint32(c.A())
	r = uint32(c.R()) * a / 0xff
	g = uint32(c.G()) * a / 0xff
	b = uint32(c.B()) * a / 0xff
	return r * 0x101, g * 0x101, b * 0x101, a * 0x101
}

// Over composites c over dst using straight alpha.
func (c Color) Over(dst Color) Color {
	a := uint32(c.A())
	switch a {
	case 0xff:
		return c
	case 0:
		return dst
	}
	na := 0xff - a
	blend := func(s, d uint8) uint8 {
		return uint8((uint32(s)*a + uint32(d)*na) / 0xff)
	}
	outA := a + uint32(dst.A())*na/0xff
	return RGBA(blend(c.R(), dst.R()), blend(c.G(), dst.G()), blend(c.B(), dst.B()), uint8(outA))
}

func (c Color) String() string {
	return fmt.Sprintf("#%08x", uint32(c))
}

// Model converts arbitrary colors to Color.
var Model = color.ModelFunc(func(c color.Color) color.Color {
	if pc, ok := c.(Color); ok {
		return pc
	}
	r, g, b, a := c.RGBA()
	if a == 0 {
		return Color(0)
	}
	// Un-premultiply.
	r = r * 0xffff / a
	g = g * 0xffff / a
	b = b * 0xffff / a
	return RGBA(uint8(r>>8), uint8(g>>8), uint8(b>>8), uint8(a>>8))
})

// Buffer is a two-dimensional array of Colors. Pixel (x, y) lives at
// Pix[y*Stride+x]. A Buffer never reads or writes outside its bounds: every
// operation clips against (0, 0, Width, Height).
type Buffer struct {
	Width  int
	Height int
	Stride int
	Pix    []Color
}

// New allocates a zeroed w x h buffer. Negative sizes are treated as zero.
func New(w, h int) *Buffer {
	w, h = max(w, 0), max(h, 0)
	return &Buffer{Width: w, Height: h, Stride: w, Pix: make([]Color, w*h)}
}

// NewFilled allocates a w x h buffer filled with c.
func NewFilled(w, h int, c Color) *Buffer {
	b := New(w, h)
	for i := range b.Pix {
		b.Pix[i] = c
	}
	return b
}

// Rect returns the buffer bounds anchored at the origin.
func (b *Buffer) Rect() geom.Rect {
	return geom.R(0, 0, b.Width, b.Height)
}

// Len is the number of pixels the buffer holds.
func (b *Buffer) Len() int {
	return b.Width * b.Height
}

// PixelAt returns the pixel at (x, y) and false when out of bounds.
func (b *Buffer) PixelAt(x, y int) (Color, bool) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return 0, false
	}
	return b.Pix[y*b.Stride+x], true
}

// SetPixel writes c at (x, y); out-of-bounds writes are dropped.
func (b *Buffer) SetPixel(x, y int, c Color) {
	if x < 0 || y < 0 || x >= b.Width || y >= b.Height {
		return
	}
	b.Pix[y*b.Stride+x] = c
}

// Fill paints r (clipped to the buffer) with c.
func (b *Buffer) Fill(r geom.Rect, c Color) {
	r = r.Intersect(b.Rect())
	for y := r.Y; y < r.Bottom(); y++ {
		row := b.Pix[y*b.Stride+r.X : y*b.Stride+r.Right()]
		for i := range row {
			row[i] = c
		}
	}
}

// BlendFill alpha-composites c over r.
func (b *Buffer) BlendFill(r geom.Rect, c Color) {
	if c.A() == 0xff {
		b.Fill(r, c)
		return
	}
	r = r.Intersect(b.Rect())
	for y := r.Y; y < r.Bottom(); y++ {
		row := b.Pix[y*b.Stride+r.X : y*b.Stride+r.Right()]
		for i := range row {
			row[i] = c.Over(row[i])
		}
	}
}

// Blit copies the part of src starting at sp into dst rectangle r of b.
// Pixels of r that fall outside src are left untouched; the returned
// rectangle is the part of r that was actually written.
func (b *Buffer) Blit(r geom.Rect, src *Buffer, sp geom.Point) geom.Rect {
	return b.copyFrom(r, src, sp, false)
}

// Blend is Blit with source-over alpha compositing.
func (b *Buffer) Blend(r geom.Rect, src *Buffer, sp geom.Point) geom.Rect {
	return b.copyFrom(r, src, sp, true)
}

func (b *Buffer) copyFrom(r geom.Rect, src *Buffer, sp geom.Point, blend bool) geom.Rect {
	// srcArea is src placed in b's coordinates so that sp lands on r's
	// top-left corner.
	srcArea := src.Rect().Offset(r.X-sp.X, r.Y-sp.Y)
	r = r.Intersect(b.Rect()).Intersect(srcArea)
	if r.Empty() {
		return geom.Rect{}
	}
	sx := r.X - srcArea.X
	sy := r.Y - srcArea.Y
	for y := 0; y < r.H; y++ {
		d := b.Pix[(r.Y+y)*b.Stride+r.X : (r.Y+y)*b.Stride+r.Right()]
		s := src.Pix[(sy+y)*src.Stride+sx : (sy+y)*src.Stride+sx+r.W]
		if !blend {
			copy(d, s)
			continue
		}
		for i, c := range s {
			d[i] = c.Over(d[i])
		}
	}
	return r
}

// Resize returns a new w x h buffer holding the overlapping part of b, with
// the uncovered area filled with fill.
func (b *Buffer) Resize(w, h int, fill Color) *Buffer {
	nb := NewFilled(w, h, fill)
	nb.Blit(nb.Rect(), b, geom.Point{})
	return nb
}

// Clone returns a deep copy of b with a tight stride.
func (b *Buffer) Clone() *Buffer {
	nb := New(b.Width, b.Height)
	nb.Blit(nb.Rect(), b, geom.Point{})
	return nb
}

// Equal reports whether two buffers hold identical pixels.
func (b *Buffer) Equal(o *Buffer) bool {
	if b.Width != o.Width || b.Height != o.Height {
		return false
	}
	for y := 0; y < b.Height; y++ {
		br := b.Pix[y*b.Stride : y*b.Stride+b.Width]
		or := o.Pix[y*o.Stride : y*o.Stride+o.Width]
		for i := range br {
			if br[i] != or[i] {
				return false
			}
		}
	}
	return true
}

// ColorModel implements image.Image.
func (b *Buffer) ColorModel() color.Model { return Model }

// Bounds implements image.Image.
func (b *Buffer) Bounds() image.Rectangle {
	return image.Rect(0, 0, b.Width, b.Height)
}

// At implements image.Image.
func (b *Buffer) At(x, y int) color.Color {
	c, _ := b.PixelAt(x, y)
	return c
}

// Set implements draw.Image so text and shapes can be drawn straight into
// the buffer.
func (b *Buffer) Set(x, y int, c color.Color) {
	b.SetPixel(x, y, Model.Convert(c).(Color))
}

// ToRGBA converts the buffer to an *image.RGBA, e.g. for PNG encoding.
func (b *Buffer) ToRGBA() *image.RGBA {
	img := image.NewRGBA(b.Bounds())
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			r, g, bl, a := b.Pix[y*b.Stride+x].RGBA()
			i := img.PixOffset(x, y)
			img.Pix[i+0] = uint8(r >> 8)
			img.Pix[i+1] = uint8(g >> 8)
			img.Pix[i+2] = uint8(bl >> 8)
			img.Pix[i+3] = uint8(a >> 8)
		}
	}
	return img
}
