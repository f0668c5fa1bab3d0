package voxpro

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"voxpro/logger"
)

// CommandType names a UI event sent to a console.
type CommandType string

const (
	CmdKeyPress    CommandType = "key_press"
	CmdPointerDown CommandType = "pointer_down"
	CmdPointerMove CommandType = "pointer_move"
	CmdPointerUp   CommandType = "pointer_up"
	CmdMove        CommandType = "move"
	CmdResize      CommandType = "resize"
	CmdMinimize    CommandType = "minimize"
	CmdMaximize    CommandType = "maximize"
	CmdRestore     CommandType = "restore"
	CmdClose       CommandType = "close"
	CmdViewport    CommandType = "viewport"
	CmdMediaLoaded CommandType = "media_loaded"
	CmdMediaError  CommandType = "media_error"
	CmdRetry       CommandType = "retry"
	CmdPlay        CommandType = "play"
	CmdPlayFailed  CommandType = "play_failed"
	CmdPause       CommandType = "pause"
	CmdTick        CommandType = "tick"
	CmdEnded       CommandType = "ended"
	CmdSeek        CommandType = "seek"
	CmdVolume      CommandType = "volume"
	CmdMute        CommandType = "mute"
	CmdRefresh     CommandType = "refresh"
)

var ErrUnknownCommand = errors.New("unknown console command")

// Command is one UI event. Which fields are read depends on Type.
type Command struct {
	Type     CommandType   `json:"type"`
	Key      string        `json:"key,omitempty"`
	WindowID int64         `json:"window_id,omitempty"`
	DX       int           `json:"dx,omitempty"`
	DY       int           `json:"dy,omitempty"`
	X        int           `json:"x,omitempty"`
	Y        int           `json:"y,omitempty"`
	Width    int           `json:"width,omitempty"`
	Height   int           `json:"height,omitempty"`
	Target   PointerTarget `json:"target,omitempty"`
	// Value carries the duration, time, seek fraction or volume.
	Value   float64 `json:"value,omitempty"`
	Flag    bool    `json:"flag,omitempty"`
	Message string  `json:"message,omitempty"`
}

type KeyState struct {
	KeySlot  string    `json:"key_slot"`
	Assigned bool      `json:"assigned"`
	Active   bool      `json:"active"`
	Title    string    `json:"title,omitempty"`
	Mode     MediaMode `json:"mode,omitempty"`
}

type WindowState struct {
	PlaybackWindow
	Player PlayerView `json:"player"`
}

// State is the full widget state sent to the browser.
type State struct {
	Connection      ConnectionStatus `json:"connection"`
	ConnectionError string           `json:"connection_error,omitempty"`
	Active          string           `json:"active,omitempty"`
	Keys            []KeyState       `json:"keys"`
	Windows         []WindowState    `json:"windows"`
	LastPress       *PressResult     `json:"last_press,omitempty"`
}

// Console is one browser session of the widget: a key model, a window
// manager and a player per open window. Handle is safe for concurrent use.
type Console struct {
	mu      sync.Mutex
	keys    []string
	model   *KeyModel
	windows *WindowManager
	players map[int64]*Player
	last    *PressResult

	// OnPress is called with every key press outcome.
	OnPress func(PressOutcome)
}

func NewConsole(model *KeyModel, keySlots []string, opts WindowOptions) *Console {
	keys := make([]string, len(keySlots))
	copy(keys, keySlots)
	return &Console{
		keys:    keys,
		model:   model,
		windows: NewWindowManager(opts),
		players: make(map[int64]*Player),
	}
}

// Model returns the console's key model.
func (c *Console) Model() *KeyModel { return c.model }

// Handle applies cmd and returns the resulting state. The state is returned
// even when the command fails.
func (c *Console) Handle(cmd Command) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.apply(cmd)
	if err != nil {
		logger.Debug("console command rejected",
			logger.String("type", string(cmd.Type)),
			logger.ErrorField(err))
	}
	return c.stateLocked(), err
}

func (c *Console) apply(cmd Command) error {
	wm := c.windows
	switch cmd.Type {
	case CmdKeyPress:
		return c.press(cmd.Key)
	case CmdPointerDown:
		_, err := wm.PointerDown(cmd.WindowID, cmd.Target, Point{X: cmd.X, Y: cmd.Y})
		return err
	case CmdPointerMove:
		wm.PointerMove(Point{X: cmd.X, Y: cmd.Y})
		return nil
	case CmdPointerUp:
		wm.PointerUp()
		return nil
	case CmdMove:
		return wm.Move(cmd.WindowID, cmd.DX, cmd.DY)
	case CmdResize:
		return wm.Resize(cmd.WindowID, cmd.DX, cmd.DY)
	case CmdMinimize:
		return wm.Minimize(cmd.WindowID, cmd.Flag)
	case CmdMaximize:
		return wm.Maximize(cmd.WindowID)
	case CmdRestore:
		return wm.Restore(cmd.WindowID)
	case CmdClose:
		if err := wm.Close(cmd.WindowID); err != nil {
			return err
		}
		delete(c.players, cmd.WindowID)
		return nil
	case CmdViewport:
		wm.SetViewport(Size{Width: cmd.Width, Height: cmd.Height})
		return nil
	case CmdRefresh:
		// the result shows up through the model's status
		go func() { _ = c.model.Refresh(context.Background()) }()
		return nil
	}

	p, ok := c.players[cmd.WindowID]
	if !ok {
		if !isPlayerCommand(cmd.Type) {
			return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
		}
		return ErrUnknownWindow
	}
	switch cmd.Type {
	case CmdMediaLoaded:
		return p.Loaded(cmd.Value)
	case CmdMediaError:
		return p.LoadFailed(cmd.Message)
	case CmdRetry:
		return p.Retry()
	case CmdPlay:
		return p.Play()
	case CmdPlayFailed:
		return p.PlayFailed(cmd.Message)
	case CmdPause:
		return p.Pause()
	case CmdTick:
		return p.Tick(cmd.Value)
	case CmdEnded:
		return p.Ended()
	case CmdSeek:
		return p.SeekFraction(cmd.Value)
	case CmdVolume:
		return p.SetVolume(cmd.Value)
	case CmdMute:
		return p.SetMuted(cmd.Flag)
	}
	return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type)
}

func isPlayerCommand(t CommandType) bool {
	switch t {
	case CmdMediaLoaded, CmdMediaError, CmdRetry, CmdPlay, CmdPlayFailed, CmdPause,
		CmdTick, CmdEnded, CmdSeek, CmdVolume, CmdMute:
		return true
	}
	return false
}

func (c *Console) press(keySlot string) error {
	if !c.hasKey(keySlot) {
		return fmt.Errorf("unknown key slot %q", keySlot)
	}

	a, ok := c.model.Lookup(keySlot)
	res := c.windows.Press(keySlot, a, ok)
	for _, id := range res.Closed {
		delete(c.players, id)
	}
	if res.Opened != nil {
		c.players[res.Opened.ID] = NewPlayer(res.Opened.ID, res.Opened.Assignment)
	}
	c.last = &res

	if c.OnPress != nil {
		c.OnPress(res.Outcome)
	}
	return nil
}

func (c *Console) hasKey(keySlot string) bool {
	for _, k := range c.keys {
		if k == keySlot {
			return true
		}
	}
	return false
}

// State returns the current widget state.
func (c *Console) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stateLocked()
}

func (c *Console) stateLocked() State {
	st := State{
		Connection: c.model.Status(),
		Keys:       make([]KeyState, 0, len(c.keys)),
		Windows:    []WindowState{},
		LastPress:  c.last,
	}
	if err := c.model.LastError(); err != nil {
		st.ConnectionError = err.Error()
	}
	active, hasActive := c.windows.Active()
	if hasActive {
		st.Active = active
	}

	rows := LatestBySlot(c.model.Snapshot())
	for _, k := range c.keys {
		ks := KeyState{KeySlot: k, Active: hasActive && active == k}
		if a, ok := rows[k]; ok {
			ks.Assigned = true
			ks.Title = a.Title
			ks.Mode = Classify(a.MediaURL, a.MediaType)
		}
		st.Keys = append(st.Keys, ks)
	}

	for _, w := range c.windows.Windows() {
		ws := WindowState{PlaybackWindow: w}
		if p, ok := c.players[w.ID]; ok {
			ws.Player = p.View()
		}
		st.Windows = append(st.Windows, ws)
	}
	return st
}

// Close releases the key model.
func (c *Console) Close() error {
	return c.model.Close()
}
