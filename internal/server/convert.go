package server

import (
	"github.com/bnema/orbital/internal/input"
	"github.com/bnema/orbital/internal/protocol"
	"github.com/bnema/orbital/internal/window"
	"github.com/bnema/orbital/internal/wm"
)

var inputTypes = map[input.Kind]protocol.InputType{
	input.KindPointerMove: protocol.InputPointerMove,
	input.KindButton:      protocol.InputButton,
	input.KindKey:         protocol.InputKey,
	input.KindScroll:      protocol.InputScroll,
	input.KindHover:       protocol.InputHover,
}

// eventMessage converts a manager event into a fresh wire message. Every
// recipient gets its own value since queues merge messages in place.
func eventMessage(ev wm.Event) protocol.Message {
	id := uint32(ev.Window)
	switch ev.Kind {
	case wm.EventInput:
		return inputMessage(ev.Window, ev.Input)
	case wm.EventFocus:
		return &protocol.FocusChanged{WindowID: id, Focused: ev.Focused}
	case wm.EventResized:
		return &protocol.Resized{WindowID: id, W: int32(ev.Rect.W), H: int32(ev.Rect.H)}
	case wm.EventMoved:
		return &protocol.Moved{WindowID: id, X: int32(ev.Rect.X), Y: int32(ev.Rect.Y)}
	case wm.EventClosed:
		return &protocol.Closed{WindowID: id}
	case wm.EventScreen:
		return &protocol.ScreenChanged{W: int32(ev.Rect.W), H: int32(ev.Rect.H)}
	case wm.EventLauncher:
		return &protocol.LauncherRequested{}
	case wm.EventClipboard:
		return &protocol.ClipboardRequest{WindowID: id, Action: protocol.ClipboardAction(ev.Clipboard)}
	}
	return nil
}

func inputMessage(id window.ID, ev input.Event) protocol.Message {
	typ, ok := inputTypes[ev.Kind]
	if !ok {
		return nil
	}
	m := &protocol.Input{
		WindowID: uint32(id),
		Type:     typ,
		X:        int32(ev.Pos.X),
		Y:        int32(ev.Pos.Y),
		Pressed:  ev.Pressed,
		Mods:     uint32(ev.Mods),
	}
	if !ev.Time.IsZero() {
		m.Time = ev.Time.UnixNano()
	}
	switch ev.Kind {
	case input.KindButton:
		m.Button = uint32(ev.Button)
	case input.KindKey:
		m.Key = uint32(ev.Key)
		m.Rune = ev.Rune
		m.Scancode = ev.Scancode
	case input.KindScroll:
		m.DX, m.DY = int32(ev.Delta.X), int32(ev.Delta.Y)
	}
	return m
}

func windowInfo(w window.Info) protocol.WindowInfo {
	return protocol.WindowInfo{
		ID:      uint32(w.ID),
		Owner:   uint64(w.Owner),
		X:       int32(w.Rect.X),
		Y:       int32(w.Rect.Y),
		W:       int32(w.Rect.W),
		H:       int32(w.Rect.H),
		Flags:   uint32(w.Flags),
		Title:   w.Title,
		Focused: w.Focused,
	}
}
