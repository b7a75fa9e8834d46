package input

import (
	"fmt"
	"strings"
)

// Mod is a bitmask of held modifier keys.
type Mod uint8

const (
	ModShift Mod = 1 << iota
	ModCtrl
	ModAlt
	ModSuper
)

func (m Mod) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	for _, n := range modNames {
		if m&n.mod != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "+")
}

var modNames = []struct {
	mod  Mod
	name string
}{
	{ModShift, "shift"},
	{ModCtrl, "ctrl"},
	{ModAlt, "alt"},
	{ModSuper, "super"},
}

// ParseMod converts a modifier name as used in the configuration.
func ParseMod(s string) (Mod, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "super", "meta", "logo", "win":
		return ModSuper, nil
	case "alt":
		return ModAlt, nil
	case "ctrl", "control":
		return ModCtrl, nil
	case "shift":
		return ModShift, nil
	}
	return 0, fmt.Errorf("unknown modifier %q", s)
}

// Key is a platform-independent key code. Printable keys use KeyRune and
// carry the character in Event.Rune.
type Key int

const (
	KeyUnknown Key = iota
	KeyRune
	KeyEscape
	KeyEnter
	KeyTab
	KeyBackspace
	KeyDelete
	KeySpace
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyHome
	KeyEnd
	KeyPageUp
	KeyPageDown
	KeyShift
	KeyCtrl
	KeyAlt
	KeySuper
)

var keyNames = map[Key]string{
	KeyUnknown:   "unknown",
	KeyRune:      "rune",
	KeyEscape:    "escape",
	KeyEnter:     "enter",
	KeyTab:       "tab",
	KeyBackspace: "backspace",
	KeyDelete:    "delete",
	KeySpace:     "space",
	KeyUp:        "up",
	KeyDown:      "down",
	KeyLeft:      "left",
	KeyRight:     "right",
	KeyHome:      "home",
	KeyEnd:       "end",
	KeyPageUp:    "pageup",
	KeyPageDown:  "pagedown",
	KeyShift:     "shift",
	KeyCtrl:      "ctrl",
	KeyAlt:       "alt",
	KeySuper:     "super",
}

func (k Key) String() string {
	if n, ok := keyNames[k]; ok {
		return n
	}
	return fmt.Sprintf("key(%d)", int(k))
}

// ModifierMask returns the modifier bit a modifier key controls, or 0.
func (k Key) ModifierMask() Mod {
	switch k {
	case KeyShift:
		return ModShift
	case KeyCtrl:
		return ModCtrl
	case KeyAlt:
		return ModAlt
	case KeySuper:
		return ModSuper
	}
	return 0
}

// ModState tracks held modifiers from key press and release events.
type ModState struct {
	held Mod
}

// Update folds a key event into the state and returns the modifiers in
// effect for it. Platforms that report modifiers on each event (ev.Mods)
// and platforms that only send modifier key transitions are both handled.
func (s *ModState) Update(ev Event) Mod {
	if ev.Kind == KindKey {
		if m := ev.Key.ModifierMask(); m != 0 {
			if ev.Pressed {
				s.held |= m
			} else {
				s.held &^= m
			}
		}
	}
	return s.held | ev.Mods
}

// Held returns the modifiers currently held.
func (s *ModState) Held() Mod { return s.held }
