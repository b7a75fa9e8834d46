// Package protocol implements the client wire protocol: length-prefixed
// frames holding protobuf-wire encoded commands, replies and pushed events.
//
// Every frame starts with field 1 (message kind) and field 2 (serial). A
// command is answered by a Reply (or WindowList) carrying the same serial;
// pushed events use serial 0.
package protocol

import (
	"fmt"

	"github.com/bnema/orbital/internal/pixbuf"
)

// Kind identifies a message type on the wire.
type Kind uint32

// Client to server.
const (
	KindCreateWindow Kind = iota + 1
	KindResizeWindow
	KindMoveWindow
	KindSetTitle
	KindBlit
	KindDestroyWindow
	KindSubscribe
	KindSetFlags
	KindListWindows
	KindSetClipboard
	KindGetClipboard
)

// Server to client.
const (
	KindReply Kind = iota + 64
	KindWindowList
	KindInput
	KindFocusChanged
	KindResized
	KindMoved
	KindClosed
	KindScreenChanged
	KindLauncherRequested
	KindClipboard
	KindClipboardRequest
)

var kindNames = map[Kind]string{
	KindCreateWindow:      "CreateWindow",
	KindResizeWindow:      "ResizeWindow",
	KindMoveWindow:        "MoveWindow",
	KindSetTitle:          "SetTitle",
	KindBlit:              "Blit",
	KindDestroyWindow:     "DestroyWindow",
	KindSubscribe:         "Subscribe",
	KindSetFlags:          "SetFlags",
	KindListWindows:       "ListWindows",
	KindReply:             "Reply",
	KindWindowList:        "WindowList",
	KindInput:             "Input",
	KindFocusChanged:      "FocusChanged",
	KindResized:           "Resized",
	KindMoved:             "Moved",
	KindClosed:            "Closed",
	KindScreenChanged:     "ScreenChanged",
	KindLauncherRequested: "LauncherRequested",
	KindSetClipboard:      "SetClipboard",
	KindGetClipboard:      "GetClipboard",
	KindClipboard:         "Clipboard",
	KindClipboardRequest:  "ClipboardRequest",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("Kind(%d)", uint32(k))
}

// IsCommand reports whether k is sent by clients.
func (k Kind) IsCommand() bool {
	return k >= KindCreateWindow && k <= KindGetClipboard
}

// Message is any protocol message.
type Message interface {
	Kind() Kind
	encode(e *encoder)
	decodeField(f *field) bool
	validate() error
}

// EventMask selects the pushed events a connection receives.
type EventMask uint32

const (
	MaskInput EventMask = 1 << iota
	MaskFocus
	MaskResized
	MaskMoved
	MaskClosed
	MaskScreen
	MaskLauncher
	MaskClipboard

	// DefaultMask is in effect until a client subscribes.
	DefaultMask = MaskInput | MaskFocus | MaskResized | MaskMoved | MaskClosed | MaskScreen | MaskClipboard
	MaskAll     = DefaultMask | MaskLauncher
)

// MaskFor returns the mask bit of a pushed event kind, or 0 for replies.
func MaskFor(k Kind) EventMask {
	switch k {
	case KindInput:
		return MaskInput
	case KindFocusChanged:
		return MaskFocus
	case KindResized:
		return MaskResized
	case KindMoved:
		return MaskMoved
	case KindClosed:
		return MaskClosed
	case KindScreenChanged:
		return MaskScreen
	case KindLauncherRequested:
		return MaskLauncher
	case KindClipboardRequest:
		return MaskClipboard
	}
	return 0
}

// Commands.

type CreateWindow struct {
	X, Y  int32
	W, H  int32
	Flags uint32
	Title string
}

type ResizeWindow struct {
	ID   uint32
	W, H int32
}

type MoveWindow struct {
	ID   uint32
	X, Y int32
}

type SetTitle struct {
	ID    uint32
	Title string
}

// Blit copies W*H row-major pixels into the window buffer at (X, Y).
type Blit struct {
	ID     uint32
	X, Y   int32
	W, H   int32
	Pixels []pixbuf.Color
}

type DestroyWindow struct {
	ID uint32
}

type Subscribe struct {
	Mask EventMask
}

type SetFlags struct {
	ID    uint32
	Set   uint32
	Clear uint32
}

type ListWindows struct{}

// SetClipboard replaces the server clipboard.
type SetClipboard struct {
	Data []byte
}

// GetClipboard is answered with a Clipboard message.
type GetClipboard struct{}

// Replies.

// Reply answers a command. WindowID is set for CreateWindow.
type Reply struct {
	Status   Status
	WindowID uint32
	Message  string
}

type WindowInfo struct {
	ID      uint32
	Owner   uint64
	X, Y    int32
	W, H    int32
	Flags   uint32
	Title   string
	Focused bool
}

type WindowList struct {
	Windows []WindowInfo
}

type Clipboard struct {
	Data []byte
}

// Pushed events.

// InputType is the kind of input carried by an Input event.
type InputType uint32

const (
	InputPointerMove InputType = iota + 1
	InputButton
	InputKey
	InputScroll
	InputHover
)

// Input is an input event routed to a window. X and Y are window-local.
type Input struct {
	WindowID uint32
	Type     InputType
	X, Y     int32
	Button   uint32
	Pressed  bool
	Key      uint32
	Rune     int32
	Scancode uint32
	Mods     uint32
	DX, DY   int32
	// Time is the platform timestamp in nanoseconds.
	Time int64
}

type FocusChanged struct {
	WindowID uint32
	Focused  bool
}

type Resized struct {
	WindowID uint32
	W, H     int32
}

type Moved struct {
	WindowID uint32
	X, Y     int32
}

type Closed struct {
	WindowID uint32
}

type ScreenChanged struct {
	W, H int32
}

type LauncherRequested struct{}

// ClipboardAction is the edit operation a clipboard chord asks for.
type ClipboardAction uint32

const (
	ClipboardCopy ClipboardAction = iota + 1
	ClipboardCut
	ClipboardPaste
)

func (a ClipboardAction) String() string {
	switch a {
	case ClipboardCopy:
		return "copy"
	case ClipboardCut:
		return "cut"
	case ClipboardPaste:
		return "paste"
	default:
		return fmt.Sprintf("ClipboardAction(%d)", uint32(a))
	}
}

// ClipboardRequest asks the owner of the focused window to copy or cut its
// selection with SetClipboard, or to paste what GetClipboard returns.
type ClipboardRequest struct {
	WindowID uint32
	Action   ClipboardAction
}

func (*CreateWindow) Kind() Kind      { return KindCreateWindow }
func (*ResizeWindow) Kind() Kind      { return KindResizeWindow }
func (*MoveWindow) Kind() Kind        { return KindMoveWindow }
func (*SetTitle) Kind() Kind          { return KindSetTitle }
func (*Blit) Kind() Kind              { return KindBlit }
func (*DestroyWindow) Kind() Kind     { return KindDestroyWindow }
func (*Subscribe) Kind() Kind         { return KindSubscribe }
func (*SetFlags) Kind() Kind          { return KindSetFlags }
func (*ListWindows) Kind() Kind       { return KindListWindows }
func (*Reply) Kind() Kind             { return KindReply }
func (*WindowList) Kind() Kind        { return KindWindowList }
func (*Input) Kind() Kind             { return KindInput }
func (*FocusChanged) Kind() Kind      { return KindFocusChanged }
func (*Resized) Kind() Kind           { return KindResized }
func (*Moved) Kind() Kind             { return KindMoved }
func (*Closed) Kind() Kind            { return KindClosed }
func (*ScreenChanged) Kind() Kind     { return KindScreenChanged }
func (*LauncherRequested) Kind() Kind { return KindLauncherRequested }
func (*SetClipboard) Kind() Kind      { return KindSetClipboard }
func (*GetClipboard) Kind() Kind      { return KindGetClipboard }
func (*Clipboard) Kind() Kind         { return KindClipboard }
func (*ClipboardRequest) Kind() Kind  { return KindClipboardRequest }

func newMessage(k Kind) Message {
	switch k {
	case KindCreateWindow:
		return &CreateWindow{}
	case KindResizeWindow:
		return &ResizeWindow{}
	case KindMoveWindow:
		return &MoveWindow{}
	case KindSetTitle:
		return &SetTitle{}
	case KindBlit:
		return &Blit{}
	case KindDestroyWindow:
		return &DestroyWindow{}
	case KindSubscribe:
		return &Subscribe{}
	case KindSetFlags:
		return &SetFlags{}
	case KindListWindows:
		return &ListWindows{}
	case KindReply:
		return &Reply{}
	case KindWindowList:
		return &WindowList{}
	case KindInput:
		return &Input{}
	case KindFocusChanged:
		return &FocusChanged{}
	case KindResized:
		return &Resized{}
	case KindMoved:
		return &Moved{}
	case KindClosed:
		return &Closed{}
	case KindScreenChanged:
		return &ScreenChanged{}
	case KindLauncherRequested:
		return &LauncherRequested{}
	case KindSetClipboard:
		return &SetClipboard{}
	case KindGetClipboard:
		return &GetClipboard{}
	case KindClipboard:
		return &Clipboard{}
	case KindClipboardRequest:
		return &ClipboardRequest{}
	}
	return nil
}
