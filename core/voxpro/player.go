package voxpro

import (
	"errors"
	"math"
	"net/url"

	"voxpro/model"
)

// TransportState is a player's playback state.
type TransportState string

const (
	StateLoading TransportState = "loading"
	StateReady   TransportState = "ready"
	StatePlaying TransportState = "playing"
	StatePaused  TransportState = "paused"
	StateError   TransportState = "error"
	// StateStatic is used by image, document and unknown players, which
	// have no transport.
	StateStatic TransportState = "static"
)

var (
	ErrNoTransport = errors.New("media has no transport controls")
	ErrNotReady    = errors.New("media is not ready")
	ErrNoDuration  = errors.New("media duration is not known yet")
)

// MediaLoadError is a load fault for one window's media.
type MediaLoadError struct {
	Message string
}

func (e *MediaLoadError) Error() string { return "media load failed: " + e.Message }

// PlaybackError is a refused play request. The transport stays where it was.
type PlaybackError struct {
	Message string
}

func (e *PlaybackError) Error() string { return "playback failed: " + e.Message }

// DocumentViewerURL is prefixed to the escaped media URL for documents the
// browser cannot display natively.
var DocumentViewerURL = "https://docs.google.com/viewer?embedded=true&url="

// Player is the transport state of one window's media.
type Player struct {
	windowID   int64
	mode       MediaMode
	assignment model.Assignment

	state    TransportState
	resume   TransportState // state to fall back to when play is refused
	duration float64
	position float64
	volume   float64
	muted    bool
	err      error
}

// NewPlayer classifies a and starts in loading (or static). Volume starts
// at 1 unmuted.
func NewPlayer(windowID int64, a model.Assignment) *Player {
	p := &Player{
		windowID:   windowID,
		mode:       Classify(a.MediaURL, a.MediaType),
		assignment: a,
		volume:     1,
	}
	if p.mode.HasTransport() {
		p.state = StateLoading
	} else {
		p.state = StateStatic
	}
	return p
}

func (p *Player) Mode() MediaMode { return p.mode }
func (p *Player) State() TransportState { return p.state }
func (p *Player) Position() float64 { return p.position }
func (p *Player) Duration() float64 { return p.duration }
func (p *Player) Volume() float64 { return p.volume }
func (p *Player) Muted() bool { return p.muted }
func (p *Player) Err() error { return p.err }

// Loaded moves loading to ready once the media element can play.
func (p *Player) Loaded(duration float64) error {
	if p.state == StateStatic {
		return ErrNoTransport
	}
	if p.state != StateLoading {
		return nil
	}
	if duration < 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		duration = 0
	}
	p.duration = duration
	p.state = StateReady
	return nil
}

// LoadFailed records a load fault. Only this window is affected.
func (p *Player) LoadFailed(msg string) error {
	if p.state == StateStatic {
		return ErrNoTransport
	}
	p.state = StateError
	p.err = &MediaLoadError{Message: msg}
	return nil
}

// Retry reloads media after a load fault. Position and duration start over.
func (p *Player) Retry() error {
	if p.state == StateStatic {
		return ErrNoTransport
	}
	if p.state != StateError {
		return nil
	}
	p.state = StateLoading
	p.position = 0
	p.duration = 0
	p.err = nil
	return nil
}

// Play starts playback from ready or paused.
func (p *Player) Play() error {
	switch p.state {
	case StateStatic:
		return ErrNoTransport
	case StateReady, StatePaused:
		p.resume = p.state
		p.state = StatePlaying
		p.err = nil
		return nil
	case StatePlaying:
		return nil
	default:
		return ErrNotReady
	}
}

// PlayFailed reverts an optimistic Play and keeps the message inline.
func (p *Player) PlayFailed(msg string) error {
	if p.state == StateStatic {
		return ErrNoTransport
	}
	if p.state == StatePlaying {
		p.state = p.resume
		if p.state == "" {
			p.state = StateReady
		}
	}
	p.err = &PlaybackError{Message: msg}
	return nil
}

func (p *Player) Pause() error {
	if p.state == StateStatic {
		return ErrNoTransport
	}
	if p.state == StatePlaying {
		p.state = StatePaused
	}
	return nil
}

// Tick records the media element's current time while playing.
func (p *Player) Tick(t float64) error {
	if p.state == StateStatic {
		return ErrNoTransport
	}
	if p.state == StatePlaying {
		p.position = p.clamp(t)
	}
	return nil
}

// Ended resets the transport to time 0 and ready. Volume and mute are kept.
func (p *Player) Ended() error {
	switch p.state {
	case StateStatic:
		return ErrNoTransport
	case StatePlaying, StatePaused:
		p.position = 0
		p.state = StateReady
	}
	return nil
}

// Seek jumps to t seconds, clamped to the media. It needs a known duration.
func (p *Player) Seek(t float64) error {
	if p.state == StateStatic {
		return ErrNoTransport
	}
	if p.state == StateLoading || p.duration <= 0 {
		return ErrNoDuration
	}
	p.position = p.clamp(t)
	return nil
}

// SeekFraction seeks to f of the duration; a progress bar click passes
// clickX / barWidth.
func (p *Player) SeekFraction(f float64) error {
	if math.IsNaN(f) {
		f = 0
	}
	f = math.Max(0, math.Min(1, f))
	return p.Seek(f * p.duration)
}

func (p *Player) SetVolume(v float64) error {
	if p.state == StateStatic {
		return ErrNoTransport
	}
	if math.IsNaN(v) {
		return nil
	}
	p.volume = math.Max(0, math.Min(1, v))
	return nil
}

func (p *Player) SetMuted(muted bool) error {
	if p.state == StateStatic {
		return ErrNoTransport
	}
	p.muted = muted
	return nil
}

func (p *Player) clamp(t float64) float64 {
	if math.IsNaN(t) || t < 0 {
		return 0
	}
	if p.duration > 0 && t > p.duration {
		return p.duration
	}
	return t
}

// Element is the HTML element a player view renders with.
type Element string

const (
	ElementVideo    Element = "video"
	ElementAudio    Element = "audio"
	ElementImage    Element = "img"
	ElementEmbed    Element = "iframe"
	ElementDownload Element = "a"
)

// InlineError is an error shown inside one player.
type InlineError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// PlayerView describes how to render a player.
type PlayerView struct {
	WindowID    int64          `json:"window_id,omitempty"`
	Mode        MediaMode      `json:"mode"`
	Element     Element        `json:"element"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	SubmittedBy string         `json:"submitted_by,omitempty"`
	URL         string         `json:"url"`
	EmbedURL    string         `json:"embed_url,omitempty"`
	Download    bool           `json:"download"`
	State       TransportState `json:"state"`
	Duration    float64        `json:"duration,omitempty"`
	Position    float64        `json:"position"`
	Volume      float64        `json:"volume"`
	Muted       bool           `json:"muted"`
	Error       *InlineError   `json:"error,omitempty"`
}

// View builds the render descriptor for the player's current state.
func (p *Player) View() PlayerView {
	a := p.assignment
	v := PlayerView{
		WindowID:    p.windowID,
		Mode:        p.mode,
		Title:       a.Title,
		Description: a.Description,
		SubmittedBy: a.SubmittedBy,
		URL:         a.MediaURL,
		State:       p.state,
		Duration:    p.duration,
		Position:    p.position,
		Volume:      p.volume,
		Muted:       p.muted,
	}

	switch p.mode {
	case ModeVideo:
		v.Element = ElementVideo
	case ModeAudio:
		v.Element = ElementAudio
	case ModeImage:
		v.Element = ElementImage
	case ModeDocument:
		v.Element = ElementEmbed
		v.Download = true
		v.EmbedURL = documentEmbedURL(a.MediaURL, a.MediaType)
	default:
		v.Element = ElementDownload
		v.Download = true
	}

	var loadErr *MediaLoadError
	var playErr *PlaybackError
	switch {
	case errors.As(p.err, &loadErr):
		v.Error = &InlineError{Kind: "media_load", Message: loadErr.Message}
		v.Download = true
	case errors.As(p.err, &playErr):
		v.Error = &InlineError{Kind: "playback", Message: playErr.Message}
	}
	return v
}

// documentEmbedURL returns the URL itself for formats browsers show natively
// and a viewer URL for everything else.
func documentEmbedURL(mediaURL, declared string) string {
	switch Extension(mediaURL) {
	case "pdf", "txt":
		return mediaURL
	}
	switch declared {
	case "application/pdf", "text/plain", "pdf", "txt":
		return mediaURL
	}
	return DocumentViewerURL + url.QueryEscape(mediaURL)
}
