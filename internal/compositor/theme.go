package compositor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/orbital/internal/pixbuf"
)

// Theme holds the colors the compositor paints with.
type Theme struct {
	Background    pixbuf.Color
	Bar           pixbuf.Color
	BarHighlight  pixbuf.Color
	Text          pixbuf.Color
	TextHighlight pixbuf.Color
	Border        pixbuf.Color
	// Fallback fills window area not backed by buffer pixels.
	Fallback pixbuf.Color
	Cursor   pixbuf.Color
}

// DefaultTheme is a dark theme.
var DefaultTheme = Theme{
	Background:    pixbuf.RGB(0x1d, 0x20, 0x25),
	Bar:           pixbuf.RGB(0x37, 0x3b, 0x41),
	BarHighlight:  pixbuf.RGB(0x52, 0x7a, 0xb8),
	Text:          pixbuf.RGB(0xc8, 0xc8, 0xc8),
	TextHighlight: pixbuf.RGB(0xff, 0xff, 0xff),
	Border:        pixbuf.RGB(0x10, 0x10, 0x10),
	Fallback:      pixbuf.RGB(0x2b, 0x2b, 0x2b),
	Cursor:        pixbuf.RGB(0xff, 0xff, 0xff),
}

// ParseColor reads "#rrggbb" or "#aarrggbb".
func ParseColor(s string) (pixbuf.Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 && len(hex) != 8 {
		return 0, fmt.Errorf("invalid color %q: want #rrggbb or #aarrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid color %q: %w", s, err)
	}
	if len(hex) == 6 {
		v |= 0xff000000
	}
	return pixbuf.Color(v), nil
}
