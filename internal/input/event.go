// Package input defines the raw events produced by a platform and the
// Router that turns them into window-scoped routing decisions.
package input

import (
	"fmt"
	"time"

	"github.com/bnema/orbital/internal/geom"
)

// Kind is the type of an input event.
type Kind int

const (
	KindPointerMove Kind = iota + 1
	KindButton
	KindKey
	KindScroll
	// KindHover is synthesized by the window manager when the pointer enters
	// or leaves a window's content; platforms never produce it.
	KindHover
	// KindResize reports a new output size.
	KindResize
	// KindQuit asks the server to shut down (terminal closed, window closed).
	KindQuit
)

func (k Kind) String() string {
	switch k {
	case KindPointerMove:
		return "pointer-move"
	case KindButton:
		return "button"
	case KindKey:
		return "key"
	case KindScroll:
		return "scroll"
	case KindHover:
		return "hover"
	case KindResize:
		return "resize"
	case KindQuit:
		return "quit"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Button identifies a pointer button.
type Button int

const (
	ButtonNone Button = iota
	ButtonLeft
	ButtonMiddle
	ButtonRight
)

func (b Button) String() string {
	switch b {
	case ButtonLeft:
		return "left"
	case ButtonMiddle:
		return "middle"
	case ButtonRight:
		return "right"
	default:
		return "none"
	}
}

// Event is a raw platform event. Only the fields relevant to Kind are set.
//
// Pos is in screen coordinates when produced by a platform; events forwarded
// to a client carry window-local coordinates instead.
type Event struct {
	Kind Kind
	Time time.Time

	Pos geom.Point

	Button Button
	// Pressed is the button or key state; for KindHover it means entered.
	Pressed bool

	Key      Key
	Rune     rune
	Scancode uint32
	Mods     Mod

	// Delta is the scroll amount.
	Delta geom.Point

	// Size is the new output size for KindResize.
	Size geom.Point
}

func (e Event) String() string {
	switch e.Kind {
	case KindPointerMove:
		return fmt.Sprintf("move %v", e.Pos)
	case KindButton:
		return fmt.Sprintf("button %v pressed=%t at %v", e.Button, e.Pressed, e.Pos)
	case KindKey:
		return fmt.Sprintf("key %v %q pressed=%t mods=%v", e.Key, e.Rune, e.Pressed, e.Mods)
	case KindScroll:
		return fmt.Sprintf("scroll %v at %v", e.Delta, e.Pos)
	case KindHover:
		return fmt.Sprintf("hover entered=%t", e.Pressed)
	case KindResize:
		return fmt.Sprintf("resize %dx%d", e.Size.X, e.Size.Y)
	default:
		return e.Kind.String()
	}
}

// PointerEvent reports whether the event is positional.
func (e Event) PointerEvent() bool {
	switch e.Kind {
	case KindPointerMove, KindButton, KindScroll:
		return true
	}
	return false
}
