// Package registry holds the authoritative table of windows and the single
// z-order list used for both hit-testing and compositing.
//
// A Registry is owned by the coordinating goroutine and is not safe for
// concurrent use. Every exported mutation is applied whole or not at all.
package registry

import (
	"fmt"
	"slices"
	"unicode/utf8"

	"github.com/bnema/orbital/internal/geom"
	"github.com/bnema/orbital/internal/logger"
	"github.com/bnema/orbital/internal/pixbuf"
	"github.com/bnema/orbital/internal/window"
)

// MaxTitleBytes bounds window titles.
const MaxTitleBytes = 1024

// Limits are the resource ceilings enforced by the registry.
type Limits struct {
	MaxWindows   int // total live windows
	MaxDimension int // per-axis size of a single window
	MaxPixels    int // sum of all window buffer sizes
}

// DefaultLimits are used when a zero Limits is passed to New.
var DefaultLimits = Limits{
	MaxWindows:   256,
	MaxDimension: 8192,
	MaxPixels:    64 << 20,
}

// Spec describes a window to create.
type Spec struct {
	Owner window.ClientID
	Rect  geom.Rect
	Flags window.Flags
	Title string
}

// Registry is the window table.
type Registry struct {
	limits Limits
	decor  window.Decor
	fill   pixbuf.Color

	windows map[window.ID]*window.Window
	order   []window.ID // front to back
	nextID  window.ID
	pixels  int

	// exposed is screen-space damage that no live window owns: areas
	// uncovered by moves and destroys, cursor and overlay changes.
	exposed geom.Region
}

// New creates an empty registry. fill is the color given to freshly
// allocated buffer areas.
func New(limits Limits, decor window.Decor, fill pixbuf.Color) *Registry {
	if limits.MaxWindows <= 0 {
		limits.MaxWindows = DefaultLimits.MaxWindows
	}
	if limits.MaxDimension <= 0 {
		limits.MaxDimension = DefaultLimits.MaxDimension
	}
	if limits.MaxPixels <= 0 {
		limits.MaxPixels = DefaultLimits.MaxPixels
	}
	return &Registry{
		limits:  limits,
		decor:   decor,
		fill:    fill,
		windows: make(map[window.ID]*window.Window),
		nextID:  1,
	}
}

// Decor returns the decoration metrics the registry damages frames with.
func (r *Registry) Decor() window.Decor { return r.decor }

// Limits returns the configured ceilings.
func (r *Registry) Limits() Limits { return r.limits }

// Len returns the number of live windows.
func (r *Registry) Len() int { return len(r.windows) }

// Pixels returns the number of buffer pixels currently allocated.
func (r *Registry) Pixels() int { return r.pixels }

func (r *Registry) checkSize(w, h int) error {
	if w <= 0 || h <= 0 || w > r.limits.MaxDimension || h > r.limits.MaxDimension {
		return fmt.Errorf("%w: size %dx%d", ErrInvalid, w, h)
	}
	return nil
}

func checkTitle(title string) error {
	if len(title) > MaxTitleBytes || !utf8.ValidString(title) {
		return fmt.Errorf("%w: title", ErrInvalid)
	}
	return nil
}

// Create allocates a window and places it at the front of its band.
func (r *Registry) Create(spec Spec) (window.ID, error) {
	if err := r.checkSize(spec.Rect.W, spec.Rect.H); err != nil {
		return 0, err
	}
	if !spec.Flags.Valid() {
		return 0, fmt.Errorf("%w: flags %#x", ErrInvalid, uint32(spec.Flags))
	}
	if err := checkTitle(spec.Title); err != nil {
		return 0, err
	}
	if len(r.windows) >= r.limits.MaxWindows {
		return 0, fmt.Errorf("%w: %d windows", ErrResourceExhausted, len(r.windows))
	}
	need := spec.Rect.W * spec.Rect.H
	if r.pixels+need > r.limits.MaxPixels {
		return 0, fmt.Errorf("%w: pixel budget", ErrResourceExhausted)
	}

	id := r.allocID()
	w := &window.Window{
		ID:     id,
		Owner:  spec.Owner,
		Rect:   spec.Rect,
		Buffer: pixbuf.NewFilled(spec.Rect.W, spec.Rect.H, r.fill),
		Flags:  spec.Flags,
		Title:  spec.Title,
		State:  window.StateMapped,
	}
	r.windows[id] = w
	r.pixels += need
	r.insert(id, w.Band(), w.Band() == window.BandBack)
	w.MarkAllDamaged()
	r.exposed.Add(w.FrameRect(r.decor))

	logger.Debug("window created", "id", id, "owner", spec.Owner, "rect", spec.Rect, "flags", spec.Flags)
	return id, nil
}

// allocID returns the next unused id, skipping zero on wrap-around and any
// id that is still live.
func (r *Registry) allocID() window.ID {
	for {
		id := r.nextID
		r.nextID++
		if r.nextID == 0 {
			r.nextID = 1
		}
		if _, live := r.windows[id]; !live && id != 0 {
			return id
		}
	}
}

// insert places id in the order list at the front (or back) of its band.
func (r *Registry) insert(id window.ID, band window.Band, atBack bool) {
	i := 0
	if atBack {
		// After the last window whose band is >= band.
		for i < len(r.order) && r.windows[r.order[i]].Band() >= band {
			i++
		}
	} else {
		// Before the first window whose band is <= band.
		for i < len(r.order) && r.windows[r.order[i]].Band() > band {
			i++
		}
	}
	r.order = slices.Insert(r.order, i, id)
}

func (r *Registry) remove(id window.ID) {
	if i := slices.Index(r.order, id); i >= 0 {
		r.order = slices.Delete(r.order, i, i+1)
	}
}

// Destroy removes a window, releasing its buffer and exposing its frame.
func (r *Registry) Destroy(id window.ID) error {
	w, ok := r.windows[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	r.exposed.Add(w.FrameRect(r.decor))
	r.remove(id)
	delete(r.windows, id)
	r.pixels -= w.Buffer.Len()
	w.State = window.StateClosing
	w.Buffer = nil

	logger.Debug("window destroyed", "id", id, "owner", w.Owner)
	return nil
}

// Get returns the live window for id. The returned pointer must not be
// retained past the current coordinator step, and must only be changed
// through the registry's mutators.
func (r *Registry) Get(id window.ID) (*window.Window, error) {
	w, ok := r.windows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return w, nil
}

// Mutate applies fn to a copy of the window and commits the copy only when
// fn succeeds and the result is valid. Geometry changes made by fn go
// through the same checks as SetGeometry. fn must not write to the pixel
// buffer before returning an error.
func (r *Registry) Mutate(id window.ID, fn func(w *window.Window) error) error {
	w, ok := r.windows[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	cp := *w
	cp.Damage = geom.Region{}
	cp.Damage.AddRegion(w.Damage)
	if err := fn(&cp); err != nil {
		return err
	}
	if cp.ID != w.ID || cp.Owner != w.Owner || cp.Buffer != w.Buffer {
		return fmt.Errorf("%w: mutate changed window identity", ErrInvariantViolation)
	}
	if !cp.Flags.Valid() {
		return fmt.Errorf("%w: flags %#x", ErrInvalid, uint32(cp.Flags))
	}
	if err := checkTitle(cp.Title); err != nil {
		return err
	}
	sizeChanged := cp.Rect.W != w.Rect.W || cp.Rect.H != w.Rect.H
	if sizeChanged {
		if err := r.checkSize(cp.Rect.W, cp.Rect.H); err != nil {
			return err
		}
		if err := r.checkBudget(w, cp.Rect.W, cp.Rect.H); err != nil {
			return err
		}
	}

	oldFrame := w.FrameRect(r.decor)
	bandChanged := cp.Band() != w.Band()
	visual := cp.Rect != w.Rect || cp.Flags != w.Flags || cp.Title != w.Title || cp.Focused() != w.Focused()

	*w = cp
	if sizeChanged {
		r.reallocate(w)
	}
	if bandChanged {
		r.remove(id)
		r.insert(id, w.Band(), false)
	}
	if visual {
		r.exposed.Add(oldFrame)
		r.exposed.Add(w.FrameRect(r.decor))
	}
	return nil
}

func (r *Registry) checkBudget(w *window.Window, nw, nh int) error {
	if r.pixels-w.Buffer.Len()+nw*nh > r.limits.MaxPixels {
		return fmt.Errorf("%w: pixel budget", ErrResourceExhausted)
	}
	return nil
}

// reallocate resizes the buffer of w to match its rectangle, keeping the
// overlapping pixels.
func (r *Registry) reallocate(w *window.Window) {
	old := w.Buffer.Len()
	w.Buffer = w.Buffer.Resize(w.Rect.W, w.Rect.H, r.fill)
	r.pixels += w.Buffer.Len() - old
	w.Damage.Reset()
	w.MarkAllDamaged()
}

// SetGeometry moves and/or resizes a window. Off-screen and negative
// positions are legal.
func (r *Registry) SetGeometry(id window.ID, rect geom.Rect) error {
	w, ok := r.windows[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err := r.checkSize(rect.W, rect.H); err != nil {
		return err
	}
	if rect == w.Rect {
		return nil
	}
	sizeChanged := rect.W != w.Rect.W || rect.H != w.Rect.H
	if sizeChanged {
		if err := r.checkBudget(w, rect.W, rect.H); err != nil {
			return err
		}
	}
	r.exposed.Add(w.FrameRect(r.decor))
	w.Rect = rect
	if sizeChanged {
		r.reallocate(w)
	}
	r.exposed.Add(w.FrameRect(r.decor))
	return nil
}

// Raise moves a window to the front of its band.
func (r *Registry) Raise(id window.ID) error {
	w, ok := r.windows[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if len(r.order) > 0 && r.order[0] == id {
		return nil
	}
	r.remove(id)
	r.insert(id, w.Band(), false)
	r.exposed.Add(w.FrameRect(r.decor))
	return nil
}

// Lower moves a window to the back of its band.
func (r *Registry) Lower(id window.ID) error {
	w, ok := r.windows[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	r.remove(id)
	r.insert(id, w.Band(), true)
	r.exposed.Add(w.FrameRect(r.decor))
	return nil
}

// ZOrder returns a copy of the window ids, front to back.
func (r *Registry) ZOrder() []window.ID {
	return slices.Clone(r.order)
}

// Each calls fn for every window front to back until fn returns false.
func (r *Registry) Each(fn func(w *window.Window) bool) {
	for _, id := range r.order {
		if !fn(r.windows[id]) {
			return
		}
	}
}

// MarkDamaged adds a window-local rectangle to a window's damage.
func (r *Registry) MarkDamaged(id window.ID, rect geom.Rect) error {
	w, ok := r.windows[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	w.MarkDamaged(rect)
	return nil
}

// Expose adds screen-space damage not owned by any window.
func (r *Registry) Expose(rect geom.Rect) {
	r.exposed.Add(rect)
}

// Blit copies pixels (row-major, stride = rect.W) into the window buffer at
// the window-local rectangle and damages it. The rectangle must lie inside
// the buffer.
func (r *Registry) Blit(id window.ID, rect geom.Rect, pixels []pixbuf.Color) error {
	w, ok := r.windows[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if rect.Empty() || !w.Buffer.Rect().ContainsRect(rect) {
		return fmt.Errorf("%w: %v not in %v", ErrOutOfBounds, rect, w.Buffer.Rect())
	}
	if len(pixels) != rect.W*rect.H {
		return fmt.Errorf("%w: %d pixels for %v", ErrInvalid, len(pixels), rect)
	}
	src := &pixbuf.Buffer{Width: rect.W, Height: rect.H, Stride: rect.W, Pix: pixels}
	w.Buffer.Blit(rect, src, geom.Point{})
	w.MarkDamaged(rect)
	return nil
}

// OwnedBy returns the ids of the windows owned by a client, front to back.
func (r *Registry) OwnedBy(owner window.ClientID) []window.ID {
	var ids []window.ID
	for _, id := range r.order {
		if r.windows[id].Owner == owner {
			ids = append(ids, id)
		}
	}
	return ids
}

// DestroyOwned removes every window owned by a client in one step and
// returns their ids.
func (r *Registry) DestroyOwned(owner window.ClientID) []window.ID {
	ids := r.OwnedBy(owner)
	for _, id := range ids {
		// Cannot fail: ids were just read from the live table.
		_ = r.Destroy(id)
	}
	return ids
}

// Damage returns the union of every visible window's damage (screen space)
// and the exposed region.
func (r *Registry) Damage() geom.Region {
	var d geom.Region
	d.AddRegion(r.exposed)
	for _, id := range r.order {
		w := r.windows[id]
		if w.Visible() {
			d.AddRegion(w.ScreenDamage())
		}
	}
	return d
}

// ClearDamage empties the exposed region and the damage of every window
// whose on-screen damage is covered by composed. Damage of windows that
// are hidden is dropped as well since it cannot be shown.
func (r *Registry) ClearDamage(composed geom.Region, bounds geom.Rect) {
	r.exposed.Reset()
	for _, id := range r.order {
		w := r.windows[id]
		if !w.Visible() {
			w.Damage.Reset()
			continue
		}
		sd := w.ScreenDamage()
		onScreen := sd.Clip(bounds)
		if composed.Covers(onScreen) {
			w.Damage.Reset()
		}
	}
}

// Windows returns snapshots of every window, front to back.
func (r *Registry) Windows() []window.Info {
	out := make([]window.Info, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.windows[id].Snapshot())
	}
	return out
}

// Check verifies the registry invariants: the z-order list and the window
// table are a bijection, bands are sorted, and at most one visible window
// is focused.
func (r *Registry) Check() error {
	if len(r.order) != len(r.windows) {
		return fmt.Errorf("%w: %d ids in z-order, %d windows", ErrInvariantViolation, len(r.order), len(r.windows))
	}
	seen := make(map[window.ID]struct{}, len(r.order))
	focused := 0
	prev := window.BandFront
	pixels := 0
	for _, id := range r.order {
		w, ok := r.windows[id]
		if !ok {
			return fmt.Errorf("%w: z-order id %d has no window", ErrInvariantViolation, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: id %d twice in z-order", ErrInvariantViolation, id)
		}
		seen[id] = struct{}{}
		if w.Band() > prev {
			return fmt.Errorf("%w: band order broken at %d", ErrInvariantViolation, id)
		}
		prev = w.Band()
		if w.Focused() {
			focused++
			if !w.Visible() {
				return fmt.Errorf("%w: hidden window %d holds focus", ErrInvariantViolation, id)
			}
		}
		if w.Buffer == nil {
			return fmt.Errorf("%w: window %d has no buffer", ErrInvariantViolation, id)
		}
		pixels += w.Buffer.Len()
	}
	if focused > 1 {
		return fmt.Errorf("%w: %d focused windows", ErrInvariantViolation, focused)
	}
	if pixels != r.pixels {
		return fmt.Errorf("%w: pixel accounting %d != %d", ErrInvariantViolation, pixels, r.pixels)
	}
	return nil
}
