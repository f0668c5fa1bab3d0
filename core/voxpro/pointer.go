package voxpro

import "fmt"

// PointerTarget is the part of a window chrome a pointer went down on.
type PointerTarget string

const (
	TargetTitle   PointerTarget = "title"
	TargetResize  PointerTarget = "resize"
	TargetControl PointerTarget = "control"
)

type interaction struct {
	windowID int64
	target   PointerTarget
	// title: pointer minus window origin.
	// resize: bottom-right corner minus pointer.
	offset Point
}

// PointerDown starts a drag (title bar) or resize (bottom-right handle).
// It reports whether an interaction started; control buttons and maximized
// windows never start one.
func (wm *WindowManager) PointerDown(id int64, target PointerTarget, p Point) (bool, error) {
	w, err := wm.get(id)
	if err != nil {
		return false, err
	}

	switch target {
	case TargetControl:
		return false, nil
	case TargetTitle, TargetResize:
	default:
		return false, fmt.Errorf("unknown pointer target %q", target)
	}
	if w.Maximized {
		return false, nil
	}

	in := &interaction{windowID: id, target: target}
	if target == TargetTitle {
		in.offset = Point{X: p.X - w.Position.X, Y: p.Y - w.Position.Y}
	} else {
		in.offset = Point{
			X: w.Position.X + w.Size.Width - p.X,
			Y: w.Position.Y + w.Size.Height - p.Y,
		}
	}
	wm.drag = in
	return true, nil
}

// PointerMove recomputes the window from the captured offset rather than
// accumulating deltas. It reports whether a window changed.
func (wm *WindowManager) PointerMove(p Point) bool {
	if wm.drag == nil {
		return false
	}
	w, ok := wm.windows[wm.drag.windowID]
	if !ok || w.Maximized {
		wm.drag = nil
		return false
	}

	switch wm.drag.target {
	case TargetTitle:
		w.Position = Point{X: p.X - wm.drag.offset.X, Y: p.Y - wm.drag.offset.Y}
	case TargetResize:
		w.Size = Size{
			Width:  p.X + wm.drag.offset.X - w.Position.X,
			Height: p.Y + wm.drag.offset.Y - w.Position.Y,
		}.floor()
	}
	return true
}

// PointerUp ends the current interaction.
func (wm *WindowManager) PointerUp() bool {
	active := wm.drag != nil
	wm.drag = nil
	return active
}

// Interacting returns the window being dragged or resized.
func (wm *WindowManager) Interacting() (int64, PointerTarget, bool) {
	if wm.drag == nil {
		return 0, "", false
	}
	return wm.drag.windowID, wm.drag.target, true
}
