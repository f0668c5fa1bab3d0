package voxpro

import (
	"errors"
	"sort"

	"voxpro/model"
)

// Minimum window size; keeps the transport controls usable.
const (
	MinWindowWidth  = 400
	MinWindowHeight = 300
)

var ErrUnknownWindow = errors.New("unknown playback window")

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) floor() Size {
	if s.Width < MinWindowWidth {
		s.Width = MinWindowWidth
	}
	if s.Height < MinWindowHeight {
		s.Height = MinWindowHeight
	}
	return s
}

// PlaybackWindow is one open floating player. Assignment is the snapshot
// taken when the window opened.
type PlaybackWindow struct {
	ID              int64            `json:"window_id"`
	KeySlot         string           `json:"key_slot"`
	Assignment      model.Assignment `json:"assignment"`
	Position        Point            `json:"position"`
	Size            Size             `json:"size"`
	Minimized       bool             `json:"is_minimized"`
	Maximized       bool             `json:"is_maximized"`
	RestorePosition *Point           `json:"restore_position,omitempty"`
	RestoreSize     *Size            `json:"restore_size,omitempty"`
}

// WindowOptions configures placement and the multi-window mode.
type WindowOptions struct {
	// MultiWindow keeps windows of other keys open when a new key is
	// pressed. A key still never has more than one window.
	MultiWindow bool
	Viewport    Size
	// Margin is kept free around a maximized window.
	Margin      int
	DefaultSize Size
	Origin      Point
	// Cascade offsets each additional open window.
	Cascade Point
}

// DefaultWindowOptions matches a 1280x800 viewport.
func DefaultWindowOptions() WindowOptions {
	return WindowOptions{
		Viewport:    Size{Width: 1280, Height: 800},
		Margin:      20,
		DefaultSize: Size{Width: 640, Height: 420},
		Origin:      Point{X: 80, Y: 80},
		Cascade:     Point{X: 32, Y: 32},
	}
}

// PressOutcome says what a key press did.
type PressOutcome string

const (
	PressOpened     PressOutcome = "opened"
	PressClosed     PressOutcome = "closed"
	PressUnassigned PressOutcome = "unassigned"
)

type PressResult struct {
	Outcome PressOutcome    `json:"outcome"`
	Opened  *PlaybackWindow `json:"opened,omitempty"`
	Closed  []int64         `json:"closed,omitempty"`
}

// WindowManager owns the active key and the set of open windows. It is not
// safe for concurrent use.
type WindowManager struct {
	opts      WindowOptions
	active    string
	hasActive bool
	windows   map[int64]*PlaybackWindow
	nextID    int64
	drag      *interaction
}

func NewWindowManager(opts WindowOptions) *WindowManager {
	opts.DefaultSize = opts.DefaultSize.floor()
	return &WindowManager{
		opts:    opts,
		windows: make(map[int64]*PlaybackWindow),
	}
}

// Press handles a click on key keySlot. assigned reports whether a is the
// key's current assignment.
func (wm *WindowManager) Press(keySlot string, a model.Assignment, assigned bool) PressResult {
	if wm.hasActive && wm.active == keySlot {
		closed := wm.closeWhere(func(w *PlaybackWindow) bool { return w.KeySlot == keySlot })
		wm.hasActive = false
		wm.active = ""
		return PressResult{Outcome: PressClosed, Closed: closed}
	}

	if !assigned {
		return PressResult{Outcome: PressUnassigned}
	}

	var closed []int64
	if wm.opts.MultiWindow {
		closed = wm.closeWhere(func(w *PlaybackWindow) bool { return w.KeySlot == keySlot })
	} else {
		closed = wm.closeWhere(func(*PlaybackWindow) bool { return true })
	}

	w := wm.open(keySlot, a)
	wm.active = keySlot
	wm.hasActive = true

	opened := *w
	return PressResult{Outcome: PressOpened, Opened: &opened, Closed: closed}
}

func (wm *WindowManager) open(keySlot string, a model.Assignment) *PlaybackWindow {
	wm.nextID++
	n := len(wm.windows)
	w := &PlaybackWindow{
		ID:         wm.nextID,
		KeySlot:    keySlot,
		Assignment: a,
		Position: Point{
			X: wm.opts.Origin.X + n*wm.opts.Cascade.X,
			Y: wm.opts.Origin.Y + n*wm.opts.Cascade.Y,
		},
		Size: wm.opts.DefaultSize,
	}
	wm.windows[w.ID] = w
	return w
}

func (wm *WindowManager) closeWhere(match func(*PlaybackWindow) bool) []int64 {
	var ids []int64
	for id, w := range wm.windows {
		if match(w) {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		wm.remove(id)
	}
	return ids
}

func (wm *WindowManager) remove(id int64) {
	delete(wm.windows, id)
	if wm.drag != nil && wm.drag.windowID == id {
		wm.drag = nil
	}
}

func (wm *WindowManager) get(id int64) (*PlaybackWindow, error) {
	w, ok := wm.windows[id]
	if !ok {
		return nil, ErrUnknownWindow
	}
	return w, nil
}

// Move shifts a window by a delta. Positions are not clamped.
func (wm *WindowManager) Move(id int64, dx, dy int) error {
	w, err := wm.get(id)
	if err != nil {
		return err
	}
	w.Position.X += dx
	w.Position.Y += dy
	return nil
}

// Resize grows or shrinks a window, never below the minimum size.
func (wm *WindowManager) Resize(id int64, dw, dh int) error {
	w, err := wm.get(id)
	if err != nil {
		return err
	}
	w.Size = Size{Width: w.Size.Width + dw, Height: w.Size.Height + dh}.floor()
	return nil
}

// Minimize collapses or expands the chrome. Playback is not affected.
func (wm *WindowManager) Minimize(id int64, minimized bool) error {
	w, err := wm.get(id)
	if err != nil {
		return err
	}
	w.Minimized = minimized
	return nil
}

// Maximize saves the restore point and fills the viewport minus the margin.
func (wm *WindowManager) Maximize(id int64) error {
	w, err := wm.get(id)
	if err != nil {
		return err
	}
	if w.Maximized {
		return nil
	}
	pos, size := w.Position, w.Size
	w.RestorePosition = &pos
	w.RestoreSize = &size
	w.Maximized = true
	w.Minimized = false
	if wm.drag != nil && wm.drag.windowID == id {
		wm.drag = nil
	}
	wm.fit(w)
	return nil
}

// Restore re-applies the saved restore point verbatim.
func (wm *WindowManager) Restore(id int64) error {
	w, err := wm.get(id)
	if err != nil {
		return err
	}
	if !w.Maximized {
		return nil
	}
	if w.RestorePosition != nil {
		w.Position = *w.RestorePosition
	}
	if w.RestoreSize != nil {
		w.Size = *w.RestoreSize
	}
	w.RestorePosition = nil
	w.RestoreSize = nil
	w.Maximized = false
	return nil
}

func (wm *WindowManager) fit(w *PlaybackWindow) {
	m := wm.opts.Margin
	w.Position = Point{X: m, Y: m}
	w.Size = Size{
		Width:  wm.opts.Viewport.Width - 2*m,
		Height: wm.opts.Viewport.Height - 2*m,
	}.floor()
}

// Close removes a window. Closing the active key's window makes the
// manager idle.
func (wm *WindowManager) Close(id int64) error {
	w, err := wm.get(id)
	if err != nil {
		return err
	}
	wm.remove(id)
	if wm.hasActive && w.KeySlot == wm.active {
		wm.hasActive = false
		wm.active = ""
	}
	return nil
}

// SetViewport records a new viewport and refits maximized windows.
func (wm *WindowManager) SetViewport(s Size) {
	wm.opts.Viewport = s
	for _, w := range wm.windows {
		if w.Maximized {
			wm.fit(w)
		}
	}
}

// Active returns the active key, if any.
func (wm *WindowManager) Active() (string, bool) {
	return wm.active, wm.hasActive
}

// Windows returns copies of the open windows ordered by id.
func (wm *WindowManager) Windows() []PlaybackWindow {
	out := make([]PlaybackWindow, 0, len(wm.windows))
	for _, w := range wm.windows {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (wm *WindowManager) Window(id int64) (PlaybackWindow, bool) {
	w, ok := wm.windows[id]
	if !ok {
		return PlaybackWindow{}, false
	}
	return *w, true
}
