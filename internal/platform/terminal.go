package platform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/bnema/orbital/internal/compositor"
	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/input"
	"github.com/bnema/orbital/internal/pixbuf"
)

// upperHalf draws the top pixel of a cell in the foreground color and the
// bottom one in the background color.
const upperHalf = '▀'

// Terminal presents frames in a terminal with half-block cells, two
// framebuffer rows per cell row, scaled to fit. Keyboard and mouse input
// come from tcell.
type Terminal struct {
	screen tcell.Screen
	width  int
	height int

	mu      sync.Mutex
	cols    int
	rows    int
	buttons tcell.ButtonMask

	// drawMu guards last and serializes drawing.
	drawMu sync.Mutex
	last   *pixbuf.Buffer

	closeOnce sync.Once
}

// NewTerminal creates a terminal platform with a width x height
// framebuffer. A nil screen opens the controlling terminal.
func NewTerminal(screen tcell.Screen, width, height int) (*Terminal, error) {
	if screen == nil {
		s, err := tcell.NewScreen()
		if err != nil {
			return nil, fmt.Errorf("failed to open terminal: %w", err)
		}
		screen = s
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}
	screen.EnableMouse()
	screen.HideCursor()
	screen.Clear()

	t := &Terminal{screen: screen, width: width, height: height}
	t.cols, t.rows = screen.Size()
	return t, nil
}

func (t *Terminal) Size() (int, int) { return t.width, t.height }

// toPixel maps a cell to the framebuffer pixel at its top-left.
func (t *Terminal) toPixel(col, row int) geom.Point {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cols <= 0 || t.rows <= 0 {
		return geom.Point{}
	}
	return geom.Point{
		X: col * t.width / t.cols,
		Y: row * t.height / t.rows,
	}
}

func (t *Terminal) Run(ctx context.Context, events chan<- input.Event) error {
	polled := make(chan tcell.Event, 16)
	go func() {
		defer close(polled)
		for {
			ev := t.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case polled <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	defer t.interrupt()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-polled:
			if !ok {
				return nil
			}
			for _, out := range t.translate(ev) {
				select {
				case events <- out:
				case <-ctx.Done():
					return nil
				}
			}
		}
	}
}

// translate converts a tcell event into raw input events.
func (t *Terminal) translate(ev tcell.Event) []input.Event {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return t.translateKey(ev)
	case *tcell.EventMouse:
		return t.translateMouse(ev)
	case *tcell.EventResize:
		t.mu.Lock()
		t.cols, t.rows = ev.Size()
		t.mu.Unlock()
		t.screen.Sync()
		t.drawMu.Lock()
		if t.last != nil {
			t.draw(t.last)
		}
		t.drawMu.Unlock()
	}
	return nil
}

func convertMods(m tcell.ModMask) input.Mod {
	var out input.Mod
	if m&tcell.ModShift != 0 {
		out |= input.ModShift
	}
	if m&tcell.ModCtrl != 0 {
		out |= input.ModCtrl
	}
	if m&tcell.ModAlt != 0 {
		out |= input.ModAlt
	}
	if m&tcell.ModMeta != 0 {
		out |= input.ModSuper
	}
	return out
}

var keyMap = map[tcell.Key]input.Key{
	tcell.KeyEscape:     input.KeyEscape,
	tcell.KeyEnter:      input.KeyEnter,
	tcell.KeyTab:        input.KeyTab,
	tcell.KeyBacktab:    input.KeyTab,
	tcell.KeyBackspace:  input.KeyBackspace,
	tcell.KeyBackspace2: input.KeyBackspace,
	tcell.KeyDelete:     input.KeyDelete,
	tcell.KeyUp:         input.KeyUp,
	tcell.KeyDown:       input.KeyDown,
	tcell.KeyLeft:       input.KeyLeft,
	tcell.KeyRight:      input.KeyRight,
	tcell.KeyHome:       input.KeyHome,
	tcell.KeyEnd:        input.KeyEnd,
	tcell.KeyPgUp:       input.KeyPageUp,
	tcell.KeyPgDn:       input.KeyPageDown,
}

// translateKey reports a press and a release; terminals only send presses.
func (t *Terminal) translateKey(ev *tcell.EventKey) []input.Event {
	if ev.Key() == tcell.KeyCtrlC {
		return []input.Event{{Kind: input.KindQuit, Time: ev.When()}}
	}
	out := input.Event{Kind: input.KindKey, Time: ev.When(), Mods: convertMods(ev.Modifiers())}
	if ev.Key() == tcell.KeyRune {
		out.Key = input.KeyRune
		out.Rune = ev.Rune()
		if out.Rune == ' ' {
			out.Key = input.KeySpace
		}
	} else if k, ok := keyMap[ev.Key()]; ok {
		out.Key = k
		if k == input.KeyTab && ev.Key() == tcell.KeyBacktab {
			out.Mods |= input.ModShift
		}
	} else {
		out.Key = input.KeyUnknown
	}
	out.Scancode = uint32(ev.Key())

	press, release := out, out
	press.Pressed = true
	return []input.Event{press, release}
}

var buttonMap = []struct {
	mask   tcell.ButtonMask
	button input.Button
}{
	{tcell.Button1, input.ButtonLeft},
	{tcell.Button3, input.ButtonMiddle},
	{tcell.Button2, input.ButtonRight},
}

// translateMouse diffs the button mask against the previous event to
// produce press and release events.
func (t *Terminal) translateMouse(ev *tcell.EventMouse) []input.Event {
	col, row := ev.Position()
	pos := t.toPixel(col, row)
	mods := convertMods(ev.Modifiers())
	when := ev.When()
	buttons := ev.Buttons()

	out := []input.Event{{Kind: input.KindPointerMove, Time: when, Pos: pos, Mods: mods}}

	t.mu.Lock()
	prev := t.buttons
	t.buttons = buttons & (tcell.Button1 | tcell.Button2 | tcell.Button3)
	t.mu.Unlock()

	for _, b := range buttonMap {
		was, is := prev&b.mask != 0, buttons&b.mask != 0
		if was != is {
			out = append(out, input.Event{Kind: input.KindButton, Time: when, Pos: pos, Button: b.button, Pressed: is, Mods: mods})
		}
	}

	var delta geom.Point
	switch {
	case buttons&tcell.WheelUp != 0:
		delta.Y = -1
	case buttons&tcell.WheelDown != 0:
		delta.Y = 1
	case buttons&tcell.WheelLeft != 0:
		delta.X = -1
	case buttons&tcell.WheelRight != 0:
		delta.X = 1
	}
	if delta != (geom.Point{}) {
		out = append(out, input.Event{Kind: input.KindScroll, Time: when, Pos: pos, Delta: delta, Mods: mods})
	}
	return out
}

func (t *Terminal) Present(f compositor.Frame) error {
	t.drawMu.Lock()
	defer t.drawMu.Unlock()
	if t.last == nil || t.last.Width != f.Buffer.Width || t.last.Height != f.Buffer.Height {
		t.last = f.Buffer.Clone()
	} else {
		copy(t.last.Pix, f.Buffer.Pix)
	}
	t.draw(t.last)
	return nil
}

// draw samples the framebuffer at each half cell. Callers hold drawMu.
func (t *Terminal) draw(fb *pixbuf.Buffer) {
	t.mu.Lock()
	cols, rows := t.cols, t.rows
	t.mu.Unlock()
	if cols <= 0 || rows <= 0 {
		return
	}

	sample := func(col, half int) tcell.Color {
		x := col * fb.Width / cols
		y := half * fb.Height / (rows * 2)
		c, ok := fb.PixelAt(x, y)
		if !ok {
			return tcell.ColorBlack
		}
		return tcell.NewRGBColor(int32(c.R()), int32(c.G()), int32(c.B()))
	}

	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			style := tcell.StyleDefault.
				Foreground(sample(col, row*2)).
				Background(sample(col, row*2+1))
			t.screen.SetContent(col, row, upperHalf, nil, style)
		}
	}
	t.screen.Show()
}

func (t *Terminal) Close() error {
	t.closeOnce.Do(func() {
		t.screen.Fini()
	})
	return nil
}

// interrupt wakes a blocked PollEvent.
func (t *Terminal) interrupt() {
	_ = t.screen.PostEvent(tcell.NewEventInterrupt(time.Now()))
}
