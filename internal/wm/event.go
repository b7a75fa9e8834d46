package wm

import (
	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/input"
	"github.com/bnema/orbital/internal/window"
)

// EventKind classifies events pushed to clients.
type EventKind int

const (
	EventInput EventKind = iota + 1
	EventFocus
	EventResized
	EventMoved
	EventClosed
	EventScreen
	EventLauncher
	EventClipboard
)

func (k EventKind) String() string {
	switch k {
	case EventInput:
		return "input"
	case EventFocus:
		return "focus"
	case EventResized:
		return "resized"
	case EventMoved:
		return "moved"
	case EventClosed:
		return "closed"
	case EventScreen:
		return "screen"
	case EventLauncher:
		return "launcher"
	case EventClipboard:
		return "clipboard"
	default:
		return "unknown"
	}
}

// ClipboardAction is what a clipboard chord asks the focused client to do.
type ClipboardAction int

const (
	ClipboardCopy ClipboardAction = iota + 1
	ClipboardCut
	ClipboardPaste
)

// Broadcast is the Client value of events addressed to every connection.
const Broadcast window.ClientID = 0

// Event is a client-bound event produced by the policy engine. The server
// drains them with Manager.Drain and queues them per connection.
type Event struct {
	Kind   EventKind
	Client window.ClientID
	Window window.ID

	// Input is set for EventInput; positions are window-local.
	Input input.Event
	// Focused is set for EventFocus.
	Focused bool
	// Rect carries the new geometry for EventResized, EventMoved and the
	// new screen size for EventScreen.
	Rect geom.Rect
	// Clipboard is set for EventClipboard.
	Clipboard ClipboardAction
}
