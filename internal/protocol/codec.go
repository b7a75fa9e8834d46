package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf8"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/bnema/orbital/internal/pixbuf"
)

// Envelope field numbers.
const (
	fieldKind   protowire.Number = 1
	fieldSerial protowire.Number = 2
)

// MaxStringBytes bounds every string field.
const MaxStringBytes = 4096

type encoder struct {
	b []byte
}

func (e *encoder) uint(num protowire.Number, v uint64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, v)
}

func (e *encoder) sint(num protowire.Number, v int64) {
	if v == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, protowire.EncodeZigZag(v))
}

func (e *encoder) bool(num protowire.Number, v bool) {
	if v {
		e.uint(num, 1)
	}
}

func (e *encoder) bytes(num protowire.Number, v []byte) {
	if len(v) == 0 {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendBytes(e.b, v)
}

func (e *encoder) string(num protowire.Number, v string) {
	if v == "" {
		return
	}
	e.b = protowire.AppendTag(e.b, num, protowire.BytesType)
	e.b = protowire.AppendString(e.b, v)
}

// field is one decoded wire field. Accessors record the first type or
// range error in err.
type field struct {
	num protowire.Number
	typ protowire.Type
	v   uint64
	b   []byte
	err error
}

func (f *field) fail(format string, args ...any) {
	if f.err == nil {
		f.err = fmt.Errorf("%w: field %d: %s", ErrProtocol, f.num, fmt.Sprintf(format, args...))
	}
}

func (f *field) varint() uint64 {
	if f.typ != protowire.VarintType {
		f.fail("want varint, got wire type %d", f.typ)
		return 0
	}
	return f.v
}

func (f *field) uint32() uint32 {
	v := f.varint()
	if v > math.MaxUint32 {
		f.fail("value %d overflows uint32", v)
		return 0
	}
	return uint32(v)
}

func (f *field) uint64() uint64 { return f.varint() }

func (f *field) int32() int32 {
	v := protowire.DecodeZigZag(f.varint())
	if v < math.MinInt32 || v > math.MaxInt32 {
		f.fail("value %d overflows int32", v)
		return 0
	}
	return int32(v)
}

func (f *field) int64() int64 { return protowire.DecodeZigZag(f.varint()) }

func (f *field) bool() bool {
	v := f.varint()
	if v > 1 {
		f.fail("invalid bool %d", v)
	}
	return v == 1
}

func (f *field) bytes() []byte {
	if f.typ != protowire.BytesType {
		f.fail("want bytes, got wire type %d", f.typ)
		return nil
	}
	return f.b
}

func (f *field) string() string {
	b := f.bytes()
	if len(b) > MaxStringBytes {
		f.fail("string of %d bytes", len(b))
		return ""
	}
	if !utf8.Valid(b) {
		f.fail("invalid utf-8")
		return ""
	}
	return string(b)
}

// walk calls fn for every field of b.
func walk(b []byte, fn func(f *field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: bad tag: %v", ErrProtocol, protowire.ParseError(n))
		}
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			return fmt.Errorf("%w: field %d: unsupported wire type %d", ErrProtocol, num, typ)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d truncated: %v", ErrProtocol, num, protowire.ParseError(n))
		}
		b = b[n:]
		if err := fn(&f); err != nil {
			return err
		}
	}
	return nil
}

// Marshal encodes m with the given serial, without the length prefix.
func Marshal(serial uint32, m Message) []byte {
	e := &encoder{b: make([]byte, 0, 32)}
	e.b = protowire.AppendTag(e.b, fieldKind, protowire.VarintType)
	e.b = protowire.AppendVarint(e.b, uint64(m.Kind()))
	e.uint(fieldSerial, uint64(serial))
	m.encode(e)
	return e.b
}

// Unmarshal decodes a frame body. Any malformed input, unknown kind or
// unknown field yields an error wrapping ErrProtocol. The serial is returned
// with the error whenever it was decoded, so the fault can be answered.
// Window sizes are not checked here; the registry owns those limits.
func Unmarshal(b []byte) (uint32, Message, error) {
	var (
		serial uint32
		m      Message
	)
	err := walk(b, func(f *field) error {
		switch {
		case f.num == fieldKind:
			if m != nil {
				f.fail("duplicate kind")
				return f.err
			}
			k := Kind(f.uint32())
			if f.err != nil {
				return f.err
			}
			if m = newMessage(k); m == nil {
				return fmt.Errorf("%w: unknown message kind %d", ErrProtocol, uint32(k))
			}
		case f.num == fieldSerial:
			serial = f.uint32()
		case m == nil:
			return fmt.Errorf("%w: field %d before message kind", ErrProtocol, f.num)
		default:
			if !m.decodeField(f) {
				return fmt.Errorf("%w: unknown field %d for %v", ErrProtocol, f.num, m.Kind())
			}
		}
		return f.err
	})
	if err != nil {
		return serial, nil, err
	}
	if m == nil {
		return serial, nil, fmt.Errorf("%w: missing message kind", ErrProtocol)
	}
	if err := m.validate(); err != nil {
		return serial, nil, fmt.Errorf("%w: %v: %v", ErrProtocol, m.Kind(), err)
	}
	return serial, m, nil
}

func encodePixels(px []pixbuf.Color) []byte {
	out := make([]byte, 4*len(px))
	for i, c := range px {
		binary.LittleEndian.PutUint32(out[4*i:], uint32(c))
	}
	return out
}

func decodePixels(b []byte) ([]pixbuf.Color, bool) {
	if len(b)%4 != 0 {
		return nil, false
	}
	px := make([]pixbuf.Color, len(b)/4)
	for i := range px {
		px[i] = pixbuf.Color(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return px, true
}

func checkSize(w, h int32) error {
	if w <= 0 || h <= 0 {
		return fmt.Errorf("non-positive size %dx%d", w, h)
	}
	return nil
}

func noValidation() error { return nil }

// CreateWindow

func (m *CreateWindow) encode(e *encoder) {
	e.sint(3, int64(m.X))
	e.sint(4, int64(m.Y))
	e.sint(5, int64(m.W))
	e.sint(6, int64(m.H))
	e.uint(7, uint64(m.Flags))
	e.string(8, m.Title)
}

func (m *CreateWindow) decodeField(f *field) bool {
	switch f.num {
	case 3:
		m.X = f.int32()
	case 4:
		m.Y = f.int32()
	case 5:
		m.W = f.int32()
	case 6:
		m.H = f.int32()
	case 7:
		m.Flags = f.uint32()
	case 8:
		m.Title = f.string()
	default:
		return false
	}
	return true
}

func (m *CreateWindow) validate() error { return noValidation() }

// ResizeWindow

func (m *ResizeWindow) encode(e *encoder) {
	e.uint(3, uint64(m.ID))
	e.sint(4, int64(m.W))
	e.sint(5, int64(m.H))
}

func (m *ResizeWindow) decodeField(f *field) bool {
	switch f.num {
	case 3:
		m.ID = f.uint32()
	case 4:
		m.W = f.int32()
	case 5:
		m.H = f.int32()
	default:
		return false
	}
	return true
}

func (m *ResizeWindow) validate() error { return noValidation() }

// MoveWindow

func (m *MoveWindow) encode(e *encoder) {
	e.uint(3, uint64(m.ID))
	e.sint(4, int64(m.X))
	e.sint(5, int64(m.Y))
}

func (m *MoveWindow) decodeField(f *field) bool {
	switch f.num {
	case 3:
		m.ID = f.uint32()
	case 4:
		m.X = f.int32()
	case 5:
		m.Y = f.int32()
	default:
		return false
	}
	return true
}

func (m *MoveWindow) validate() error { return noValidation() }

// SetTitle

func (m *SetTitle) encode(e *encoder) {
	e.uint(3, uint64(m.ID))
	e.string(4, m.Title)
}

func (m *SetTitle) decodeField(f *field) bool {
	switch f.num {
	case 3:
		m.ID = f.uint32()
	case 4:
		m.Title = f.string()
	default:
		return false
	}
	return true
}

func (m *SetTitle) validate() error { return noValidation() }

// Blit

func (m *Blit) encode(e *encoder) {
	e.uint(3, uint64(m.ID))
	e.sint(4, int64(m.X))
	e.sint(5, int64(m.Y))
	e.sint(6, int64(m.W))
	e.sint(7, int64(m.H))
	e.bytes(8, encodePixels(m.Pixels))
}

func (m *Blit) decodeField(f *field) bool {
	switch f.num {
	case 3:
		m.ID = f.uint32()
	case 4:
		m.X = f.int32()
	case 5:
		m.Y = f.int32()
	case 6:
		m.W = f.int32()
	case 7:
		m.H = f.int32()
	case 8:
		px, ok := decodePixels(f.bytes())
		if !ok {
			f.fail("pixel data of %d bytes", len(f.b))
		}
		m.Pixels = px
	default:
		return false
	}
	return true
}

func (m *Blit) validate() error {
	if err := checkSize(m.W, m.H); err != nil {
		return err
	}
	if int64(len(m.Pixels)) != int64(m.W)*int64(m.H) {
		return fmt.Errorf("%d pixels for a %dx%d region", len(m.Pixels), m.W, m.H)
	}
	return nil
}

// DestroyWindow

func (m *DestroyWindow) encode(e *encoder) { e.uint(3, uint64(m.ID)) }

func (m *DestroyWindow) decodeField(f *field) bool {
	if f.num != 3 {
		return false
	}
	m.ID = f.uint32()
	return true
}

func (m *DestroyWindow) validate() error { return noValidation() }

// Subscribe

func (m *Subscribe) encode(e *encoder) { e.uint(3, uint64(m.Mask)) }

func (m *Subscribe) decodeField(f *field) bool {
	if f.num != 3 {
		return false
	}
	m.Mask = EventMask(f.uint32())
	return true
}

func (m *Subscribe) validate() error {
	if m.Mask&^MaskAll != 0 {
		return fmt.Errorf("unknown event mask bits %#x", uint32(m.Mask&^MaskAll))
	}
	return nil
}

// SetFlags

func (m *SetFlags) encode(e *encoder) {
	e.uint(3, uint64(m.ID))
	e.uint(4, uint64(m.Set))
	e.uint(5, uint64(m.Clear))
}

func (m *SetFlags) decodeField(f *field) bool {
	switch f.num {
	case 3:
		m.ID = f.uint32()
	case 4:
		m.Set = f.uint32()
	case 5:
		m.Clear = f.uint32()
	default:
		return false
	}
	return true
}

func (m *SetFlags) validate() error { return noValidation() }

// ListWindows

func (m *ListWindows) encode(*encoder)           {}
func (m *ListWindows) decodeField(f *field) bool { return false }
func (m *ListWindows) validate() error           { return noValidation() }

// Reply

func (m *Reply) encode(e *encoder) {
	e.uint(3, uint64(m.Status))
	e.uint(4, uint64(m.WindowID))
	e.string(5, m.Message)
}

func (m *Reply) decodeField(f *field) bool {
	switch f.num {
	case 3:
		m.Status = Status(f.uint32())
	case 4:
		m.WindowID = f.uint32()
	case 5:
		m.Message = f.string()
	default:
		return false
	}
	return true
}

func (m *Reply) validate() error { return noValidation() }

// WindowList

func (w *WindowInfo) encode(e *encoder) {
	e.uint(1, uint64(w.ID))
	e.uint(2, w.Owner)
	e.sint(3, int64(w.X))
	e.sint(4, int64(w.Y))
	e.sint(5, int64(w.W))
	e.sint(6, int64(w.H))
	e.uint(7, uint64(w.Flags))
	e.string(8, w.Title)
	e.bool(9, w.Focused)
}

func (w *WindowInfo) decodeField(f *field) bool {
	switch f.num {
	case 1:
		w.ID = f.uint32()
	case 2:
		w.Owner = f.uint64()
	case 3:
		w.X = f.int32()
	case 4:
		w.Y = f.int32()
	case 5:
		w.W = f.int32()
	case 6:
		w.H = f.int32()
	case 7:
		w.Flags = f.uint32()
	case 8:
		w.Title = f.string()
	case 9:
		w.Focused = f.bool()
	default:
		return false
	}
	return true
}

func (m *WindowList) encode(e *encoder) {
	for i := range m.Windows {
		sub := &encoder{}
		m.Windows[i].encode(sub)
		e.b = protowire.AppendTag(e.b, 3, protowire.BytesType)
		e.b = protowire.AppendBytes(e.b, sub.b)
	}
}

func (m *WindowList) decodeField(f *field) bool {
	if f.num != 3 {
		return false
	}
	var w WindowInfo
	err := walk(f.bytes(), func(sf *field) error {
		if !w.decodeField(sf) {
			return fmt.Errorf("%w: unknown window info field %d", ErrProtocol, sf.num)
		}
		return sf.err
	})
	if err != nil && f.err == nil {
		f.err = err
	}
	m.Windows = append(m.Windows, w)
	return true
}

func (m *WindowList) validate() error { return noValidation() }

// Input

func (m *Input) encode(e *encoder) {
	e.uint(3, uint64(m.WindowID))
	e.uint(4, uint64(m.Type))
	e.sint(5, int64(m.X))
	e.sint(6, int64(m.Y))
	e.uint(7, uint64(m.Button))
	e.bool(8, m.Pressed)
	e.uint(9, uint64(m.Key))
	e.sint(10, int64(m.Rune))
	e.uint(11, uint64(m.Scancode))
	e.uint(12, uint64(m.Mods))
	e.sint(13, int64(m.DX))
	e.sint(14, int64(m.DY))
	e.sint(15, m.Time)
}

func (m *Input) decodeField(f *field) bool {
	switch f.num {
	case 3:
		m.WindowID = f.uint32()
	case 4:
		m.Type = InputType(f.uint32())
	case 5:
		m.X = f.int32()
	case 6:
		m.Y = f.int32()
	case 7:
		m.Button = f.uint32()
	case 8:
		m.Pressed = f.bool()
	case 9:
		m.Key = f.uint32()
	case 10:
		m.Rune = f.int32()
	case 11:
		m.Scancode = f.uint32()
	case 12:
		m.Mods = f.uint32()
	case 13:
		m.DX = f.int32()
	case 14:
		m.DY = f.int32()
	case 15:
		m.Time = f.int64()
	default:
		return false
	}
	return true
}

func (m *Input) validate() error {
	if m.Type < InputPointerMove || m.Type > InputHover {
		return fmt.Errorf("unknown input type %d", m.Type)
	}
	return nil
}

// FocusChanged

func (m *FocusChanged) encode(e *encoder) {
	e.uint(3, uint64(m.WindowID))
	e.bool(4, m.Focused)
}

func (m *FocusChanged) decodeField(f *field) bool {
	switch f.num {
	case 3:
		m.WindowID = f.uint32()
	case 4:
		m.Focused = f.bool()
	default:
		return false
	}
	return true
}

func (m *FocusChanged) validate() error { return noValidation() }

// Resized

func (m *Resized) encode(e *encoder) {
	e.uint(3, uint64(m.WindowID))
	e.sint(4, int64(m.W))
	e.sint(5, int64(m.H))
}

func (m *Resized) decodeField(f *field) bool {
	switch f.num {
	case 3:
		m.WindowID = f.uint32()
	case 4:
		m.W = f.int32()
	case 5:
		m.H = f.int32()
	default:
		return false
	}
	return true
}

func (m *Resized) validate() error { return noValidation() }

// Moved

func (m *Moved) encode(e *encoder) {
	e.uint(3, uint64(m.WindowID))
	e.sint(4, int64(m.X))
	e.sint(5, int64(m.Y))
}

func (m *Moved) decodeField(f *field) bool {
	switch f.num {
	case 3:
		m.WindowID = f.uint32()
	case 4:
		m.X = f.int32()
	case 5:
		m.Y = f.int32()
	default:
		return false
	}
	return true
}

func (m *Moved) validate() error { return noValidation() }

// Closed

func (m *Closed) encode(e *encoder) { e.uint(3, uint64(m.WindowID)) }

func (m *Closed) decodeField(f *field) bool {
	if f.num != 3 {
		return false
	}
	m.WindowID = f.uint32()
	return true
}

func (m *Closed) validate() error { return noValidation() }

// ScreenChanged

func (m *ScreenChanged) encode(e *encoder) {
	e.sint(3, int64(m.W))
	e.sint(4, int64(m.H))
}

func (m *ScreenChanged) decodeField(f *field) bool {
	switch f.num {
	case 3:
		m.W = f.int32()
	case 4:
		m.H = f.int32()
	default:
		return false
	}
	return true
}

func (m *ScreenChanged) validate() error { return noValidation() }

// LauncherRequested

func (m *LauncherRequested) encode(*encoder)           {}
func (m *LauncherRequested) decodeField(f *field) bool { return false }
func (m *LauncherRequested) validate() error           { return noValidation() }

// SetClipboard

func (m *SetClipboard) encode(e *encoder) { e.bytes(3, m.Data) }

func (m *SetClipboard) decodeField(f *field) bool {
	if f.num != 3 {
		return false
	}
	m.Data = append([]byte(nil), f.bytes()...)
	return true
}

func (m *SetClipboard) validate() error { return noValidation() }

// GetClipboard

func (m *GetClipboard) encode(*encoder)           {}
func (m *GetClipboard) decodeField(f *field) bool { return false }
func (m *GetClipboard) validate() error           { return noValidation() }

// Clipboard

func (m *Clipboard) encode(e *encoder) { e.bytes(3, m.Data) }

func (m *Clipboard) decodeField(f *field) bool {
	if f.num != 3 {
		return false
	}
	m.Data = append([]byte(nil), f.bytes()...)
	return true
}

func (m *Clipboard) validate() error { return noValidation() }

// ClipboardRequest

func (m *ClipboardRequest) encode(e *encoder) {
	e.uint(3, uint64(m.WindowID))
	e.uint(4, uint64(m.Action))
}

func (m *ClipboardRequest) decodeField(f *field) bool {
	switch f.num {
	case 3:
		m.WindowID = f.uint32()
	case 4:
		m.Action = ClipboardAction(f.uint32())
	default:
		return false
	}
	return true
}

func (m *ClipboardRequest) validate() error {
	if m.Action < ClipboardCopy || m.Action > ClipboardPaste {
		return fmt.Errorf("unknown clipboard action %d", m.Action)
	}
	return nil
}
