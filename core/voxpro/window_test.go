package voxpro

import (
	"math/rand"
	"testing"

	"voxpro/model"
)

func newTestManager(multi bool) *WindowManager {
	opts := DefaultWindowOptions()
	opts.MultiWindow = multi
	return NewWindowManager(opts)
}

func TestPressTransitions(t *testing.T) {
	wm := newTestManager(false)
	a1 := assignment("a1", "1", 0, "one.mp4")
	a2 := assignment("a2", "2", 0, "two.mp3")

	// idle + assigned: open
	res := wm.Press("1", a1, true)
	if res.Outcome != PressOpened || res.Opened == nil || res.Opened.KeySlot != "1" {
		t.Fatalf("press 1 = %+v", res)
	}
	if active, ok := wm.Active(); !ok || active != "1" {
		t.Fatalf("active = %q, %v", active, ok)
	}
	first := res.Opened.ID

	// unassigned key: no-op
	res = wm.Press("3", model.Assignment{}, false)
	if res.Outcome != PressUnassigned {
		t.Fatalf("press unassigned = %+v", res)
	}
	if active, _ := wm.Active(); active != "1" || len(wm.Windows()) != 1 {
		t.Fatal("unassigned press must not change state")
	}

	// other key: replace
	res = wm.Press("2", a2, true)
	if res.Outcome != PressOpened || len(res.Closed) != 1 || res.Closed[0] != first {
		t.Fatalf("press 2 = %+v", res)
	}
	if res.Opened.ID <= first {
		t.Errorf("window id %d not greater than %d", res.Opened.ID, first)
	}

	// same key: close
	res = wm.Press("2", a2, true)
	if res.Outcome != PressClosed {
		t.Fatalf("re-press 2 = %+v", res)
	}
	if _, ok := wm.Active(); ok {
		t.Error("expected idle")
	}
	if n := len(wm.Windows()); n != 0 {
		t.Errorf("open windows = %d, want 0", n)
	}
}

func TestPressSameKeyTwiceReturnsToIdle(t *testing.T) {
	wm := newTestManager(false)
	a := assignment("a", "B", 0, "b.png")
	wm.Press("B", a, true)
	wm.Press("B", a, true)
	if _, ok := wm.Active(); ok || len(wm.Windows()) != 0 {
		t.Fatalf("expected idle with no windows, got %+v", wm.Windows())
	}
}

func TestSingleWindowInvariantUnderRandomPresses(t *testing.T) {
	wm := newTestManager(false)
	slots := []string{"1", "2", "3", "A", "B"}
	assigned := map[string]bool{"1": true, "2": true, "A": true}

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		slot := slots[r.Intn(len(slots))]
		wm.Press(slot, assignment("x"+slot, slot, 0, "x.mp3"), assigned[slot])

		windows := wm.Windows()
		if len(windows) > 1 {
			t.Fatalf("step %d: %d windows open", i, len(windows))
		}
		active, ok := wm.Active()
		if ok && (len(windows) != 1 || windows[0].KeySlot != active) {
			t.Fatalf("step %d: active %q with windows %+v", i, active, windows)
		}
		if !ok && len(windows) != 0 {
			t.Fatalf("step %d: idle with windows %+v", i, windows)
		}
	}
}

func TestMultiWindowModeKeepsOtherWindows(t *testing.T) {
	wm := newTestManager(true)
	wm.Press("1", assignment("a", "1", 0, "a.mp3"), true)
	wm.Press("2", assignment("b", "2", 0, "b.mp3"), true)

	windows := wm.Windows()
	if len(windows) != 2 {
		t.Fatalf("open windows = %d, want 2", len(windows))
	}
	if windows[1].Position == windows[0].Position {
		t.Error("second window should cascade")
	}

	// pressing 1 again while 2 is active replaces 1's window
	res := wm.Press("1", assignment("a2", "1", 0, "a2.mp3"), true)
	if len(res.Closed) != 1 || res.Closed[0] != windows[0].ID {
		t.Fatalf("press 1 = %+v", res)
	}
	perSlot := map[string]int{}
	for _, w := range wm.Windows() {
		perSlot[w.KeySlot]++
	}
	if perSlot["1"] != 1 || perSlot["2"] != 1 {
		t.Errorf("windows per slot = %v", perSlot)
	}
}

func TestWindowIDsNeverReused(t *testing.T) {
	wm := newTestManager(false)
	a := assignment("a", "1", 0, "a.mp3")
	seen := map[int64]bool{}
	for i := 0; i < 10; i++ {
		res := wm.Press("1", a, true)
		if res.Opened == nil {
			continue
		}
		if seen[res.Opened.ID] {
			t.Fatalf("window id %d reused", res.Opened.ID)
		}
		seen[res.Opened.ID] = true
	}
}

func TestResizeFloor(t *testing.T) {
	wm := newTestManager(false)
	id := wm.Press("1", assignment("a", "1", 0, "a.mp4"), true).Opened.ID

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		dw := r.Intn(4000) - 3000
		dh := r.Intn(4000) - 3000
		if err := wm.Resize(id, dw, dh); err != nil {
			t.Fatal(err)
		}
		w, _ := wm.Window(id)
		if w.Size.Width < MinWindowWidth || w.Size.Height < MinWindowHeight {
			t.Fatalf("step %d: size %+v below minimum", i, w.Size)
		}
	}
}

func TestMoveIsUnclamped(t *testing.T) {
	wm := newTestManager(false)
	id := wm.Press("1", assignment("a", "1", 0, "a.mp4"), true).Opened.ID
	before, _ := wm.Window(id)

	if err := wm.Move(id, -5000, 9000); err != nil {
		t.Fatal(err)
	}
	w, _ := wm.Window(id)
	if w.Position.X != before.Position.X-5000 || w.Position.Y != before.Position.Y+9000 {
		t.Errorf("position = %+v", w.Position)
	}
}

func TestMaximizeRestore(t *testing.T) {
	wm := newTestManager(false)
	id := wm.Press("1", assignment("a", "1", 0, "a.mp4"), true).Opened.ID
	_ = wm.Move(id, 13, 17)
	_ = wm.Resize(id, 50, 60)
	before, _ := wm.Window(id)

	if err := wm.Maximize(id); err != nil {
		t.Fatal(err)
	}
	w, _ := wm.Window(id)
	if !w.Maximized || w.Position != (Point{X: 20, Y: 20}) || w.Size != (Size{Width: 1240, Height: 760}) {
		t.Fatalf("maximized window = %+v", w)
	}

	// a second maximize must not overwrite the restore point
	_ = wm.Maximize(id)
	wm.SetViewport(Size{Width: 1920, Height: 1080})
	w, _ = wm.Window(id)
	if w.Size != (Size{Width: 1880, Height: 1040}) {
		t.Errorf("size after viewport change = %+v", w.Size)
	}

	if err := wm.Restore(id); err != nil {
		t.Fatal(err)
	}
	w, _ = wm.Window(id)
	if w.Maximized || w.Position != before.Position || w.Size != before.Size {
		t.Errorf("restored %+v, want position %+v size %+v", w, before.Position, before.Size)
	}
	if w.RestorePosition != nil || w.RestoreSize != nil {
		t.Error("restore point should be cleared")
	}
}

func TestMaximizeTinyViewportKeepsFloor(t *testing.T) {
	opts := DefaultWindowOptions()
	opts.Viewport = Size{Width: 320, Height: 240}
	wm := NewWindowManager(opts)
	id := wm.Press("1", assignment("a", "1", 0, "a.mp4"), true).Opened.ID
	_ = wm.Maximize(id)
	w, _ := wm.Window(id)
	if w.Size.Width < MinWindowWidth || w.Size.Height < MinWindowHeight {
		t.Errorf("size = %+v", w.Size)
	}
}

func TestMinimizeKeepsWindowActive(t *testing.T) {
	wm := newTestManager(false)
	id := wm.Press("1", assignment("a", "1", 0, "a.mp3"), true).Opened.ID
	if err := wm.Minimize(id, true); err != nil {
		t.Fatal(err)
	}
	w, _ := wm.Window(id)
	if !w.Minimized {
		t.Error("expected minimized")
	}
	if active, _ := wm.Active(); active != "1" {
		t.Errorf("active = %q", active)
	}
	_ = wm.Minimize(id, false)
	if w, _ := wm.Window(id); w.Minimized {
		t.Error("expected expanded")
	}
}

func TestCloseActiveWindowGoesIdle(t *testing.T) {
	wm := newTestManager(true)
	first := wm.Press("1", assignment("a", "1", 0, "a.mp3"), true).Opened.ID
	second := wm.Press("2", assignment("b", "2", 0, "b.mp3"), true).Opened.ID

	// closing a non-active window keeps the active key
	if err := wm.Close(first); err != nil {
		t.Fatal(err)
	}
	if active, ok := wm.Active(); !ok || active != "2" {
		t.Fatalf("active = %q, %v", active, ok)
	}

	if err := wm.Close(second); err != nil {
		t.Fatal(err)
	}
	if _, ok := wm.Active(); ok {
		t.Error("expected idle after closing the active window")
	}
}

func TestUnknownWindow(t *testing.T) {
	wm := newTestManager(false)
	for name, err := range map[string]error{
		"move":     wm.Move(99, 1, 1),
		"resize":   wm.Resize(99, 1, 1),
		"minimize": wm.Minimize(99, true),
		"maximize": wm.Maximize(99),
		"restore":  wm.Restore(99),
		"close":    wm.Close(99),
	} {
		if err != ErrUnknownWindow {
			t.Errorf("%s: err = %v", name, err)
		}
	}
}
