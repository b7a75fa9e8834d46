package input

import (
	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/logger"
	"github.com/bnema/orbital/internal/registry"
	"github.com/bnema/orbital/internal/window"
)

// Target says who receives a routed event.
type Target int

const (
	// TargetNone drops the event: a pointer miss.
	TargetNone Target = iota
	// TargetWindow delivers to Routed.Window (content or decoration).
	TargetWindow
	// TargetManager hands the event to the window manager: chords and
	// keyboard input with no focused window.
	TargetManager
)

func (t Target) String() string {
	switch t {
	case TargetWindow:
		return "window"
	case TargetManager:
		return "manager"
	default:
		return "none"
	}
}

// Hit is the result of a pointer hit-test.
type Hit struct {
	Window window.ID
	Zone   window.Zone
	// Local is the point relative to the content origin. It may be negative
	// for decoration zones.
	Local geom.Point
}

// Routed is a routing decision for one raw event.
type Routed struct {
	Event  Event
	Target Target
	Hit
	// Mods are the modifiers in effect for the event.
	Mods Mod
	// Chord is set when the window-manager modifier was held: the event
	// must never reach a client as ordinary input.
	Chord bool
}

// Router hit-tests pointer events against the registry's z-order and sends
// keyboard input to the focused window. It reads the registry only, so a
// routing pass always sees the geometry of the last completed mutation.
type Router struct {
	reg      *registry.Registry
	modifier Mod
	mods     ModState
}

// NewRouter creates a router over reg. modifier is the window-manager
// chord modifier.
func NewRouter(reg *registry.Registry, modifier Mod) *Router {
	if modifier == 0 {
		modifier = ModSuper
	}
	return &Router{reg: reg, modifier: modifier}
}

// Modifier returns the window-manager chord modifier.
func (r *Router) Modifier() Mod { return r.modifier }

// Mods returns the modifiers currently held.
func (r *Router) Mods() Mod { return r.mods.Held() }

// HitTest returns the front-most visible window whose frame contains p,
// skipping input-transparent windows.
func (r *Router) HitTest(p geom.Point) (Hit, bool) {
	var hit Hit
	found := false
	d := r.reg.Decor()
	r.reg.Each(func(w *window.Window) bool {
		if !w.Visible() || w.Flags.Has(window.FlagInputTransparent) {
			return true
		}
		z := w.HitTest(p, d)
		if z == window.ZoneNone {
			return true
		}
		hit = Hit{Window: w.ID, Zone: z, Local: p.Sub(w.Rect.Min())}
		found = true
		return false
	})
	return hit, found
}

// Route produces the routing decision for ev given the currently focused
// window (0 for none).
func (r *Router) Route(ev Event, focused window.ID) Routed {
	mods := r.mods.Update(ev)
	chord := mods&r.modifier != 0
	out := Routed{Event: ev, Mods: mods, Chord: chord}

	switch ev.Kind {
	case KindKey:
		if chord || ev.Key.ModifierMask() == r.modifier {
			out.Chord = true
			out.Target = TargetManager
			break
		}
		if focused != 0 {
			if _, err := r.reg.Get(focused); err == nil {
				out.Target = TargetWindow
				out.Window = focused
				break
			}
		}
		out.Target = TargetManager

	case KindPointerMove, KindButton, KindScroll:
		hit, ok := r.HitTest(ev.Pos)
		if !ok {
			out.Target = TargetNone
			break
		}
		out.Hit = hit
		out.Target = TargetWindow

	default:
		out.Target = TargetManager
	}

	logger.Debugf("route %v -> %v window=%d zone=%v chord=%t", ev, out.Target, out.Window, out.Zone, out.Chord)
	return out
}
