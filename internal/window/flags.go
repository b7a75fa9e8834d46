package window

import (
	"fmt"
	"strings"
)

// Flags is the capability set of a window. Policy code tests flags; there
// is no per-kind window type.
type Flags uint32

const (
	// FlagAsync is accepted for compatibility and has no effect.
	FlagAsync Flags = 1 << iota
	// FlagBack keeps the window in the background band (desktop windows).
	FlagBack
	// FlagFront keeps the window in the always-on-top band.
	FlagFront
	// FlagHidden unmaps the window: it is neither drawn nor hit.
	FlagHidden
	// FlagBorderless disables decorations.
	FlagBorderless
	// FlagResizable enables resize borders and the maximize button.
	FlagResizable
	// FlagTransparent alpha-blends the window over what lies below it.
	FlagTransparent
	// FlagUnclosable hides the close button and ignores user close requests.
	FlagUnclosable
	// FlagInputTransparent lets pointer events fall through to lower windows.
	FlagInputTransparent
	// FlagHideCursor hides the cursor while it is over the window content.
	FlagHideCursor

	flagsEnd
)

// AllFlags is the mask of every defined flag.
const AllFlags = flagsEnd - 1

var flagLetters = []struct {
	flag   Flags
	letter byte
}{
	{FlagAsync, 'a'},
	{FlagBack, 'b'},
	{FlagFront, 'f'},
	{FlagHidden, 'h'},
	{FlagBorderless, 'l'},
	{FlagResizable, 'r'},
	{FlagTransparent, 't'},
	{FlagUnclosable, 'u'},
	{FlagInputTransparent, 'i'},
	{FlagHideCursor, 'c'},
}

// ParseFlags converts the letter form ("rl", "bt", ...) into Flags.
// 'm' and 'M' (maximized / fullscreen) are accepted and ignored.
func ParseFlags(s string) (Flags, error) {
	var f Flags
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == 'm' || c == 'M' {
			continue
		}
		found := false
		for _, fl := range flagLetters {
			if fl.letter == c {
				f |= fl.flag
				found = true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("unknown window flag %q", c)
		}
	}
	if f.Has(FlagBack) && f.Has(FlagFront) {
		return 0, fmt.Errorf("window flags %q: back and front are exclusive", s)
	}
	return f, nil
}

// Has reports whether every bit of g is set in f.
func (f Flags) Has(g Flags) bool {
	return f&g == g
}

// Valid reports whether f only uses defined bits and is not both back and
// front.
func (f Flags) Valid() bool {
	return f&^AllFlags == 0 && !(f.Has(FlagBack) && f.Has(FlagFront))
}

func (f Flags) String() string {
	var b strings.Builder
	for _, fl := range flagLetters {
		if f.Has(fl.flag) {
			b.WriteByte(fl.letter)
		}
	}
	return b.String()
}

// Band is a z-order band. The z-order list is always sorted Front, Normal,
// Back.
type Band int

const (
	BandBack Band = iota
	BandNormal
	BandFront
)

func (b Band) String() string {
	switch b {
	case BandBack:
		return "back"
	case BandFront:
		return "front"
	default:
		return "normal"
	}
}

// Band derives the z-order band from the flags.
func (f Flags) Band() Band {
	switch {
	case f.Has(FlagFront):
		return BandFront
	case f.Has(FlagBack):
		return BandBack
	default:
		return BandNormal
	}
}
