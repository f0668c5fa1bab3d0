package server

import (
	"context"
	"encoding/json"
	"net/http"

	"voxpro/core/realtime"
	"voxpro/core/voxpro"
	"voxpro/logger"
)

const consoleTopic = "console"

// ConsoleMessage is every frame the console websocket sends.
type ConsoleMessage struct {
	Type  string       `json:"type"`
	State voxpro.State `json:"state"`
	Error string       `json:"error,omitempty"`
}

func (s *Server) newConsole() *voxpro.Console {
	model := voxpro.NewKeyModel(s.store, voxpro.KeyModelOptions{
		RefreshInterval: s.cfg.RefreshInterval,
		OnFetchError:    func(error) { s.metrics.fetchFailures.Inc() },
	})
	opts := voxpro.DefaultWindowOptions()
	opts.MultiWindow = s.cfg.MultiWindow

	console := voxpro.NewConsole(model, s.cfg.KeySlots, opts)
	console.OnPress = func(outcome voxpro.PressOutcome) {
		s.metrics.keyPresses.WithLabelValues(string(outcome)).Inc()
	}
	return console
}

// ConsoleHandler runs one VoxPro widget session over a websocket. Every
// command is answered with the full state; assignment and connection
// changes push a fresh state unprompted.
func (s *Server) ConsoleHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := realtime.NewClient(s.hub, conn, consoleTopic)
	s.hub.Register(client)
	go client.WritePump()

	console := s.newConsole()
	model := console.Model()
	unsubscribe := model.OnChange(func() {
		client.SendJSON(ConsoleMessage{Type: "state", State: console.State()})
	})
	defer func() {
		unsubscribe()
		if err := console.Close(); err != nil {
			logger.Warn("close console failed", logger.ErrorField(err))
		}
		logger.Debug("console session closed", logger.String("client", client.ID))
	}()

	ctx := r.Context()
	model.Start(ctx)
	client.SendJSON(ConsoleMessage{Type: "state", State: console.State()})

	client.ReadPump(ctx, func(ctx context.Context, c *realtime.Client, message []byte) {
		var cmd voxpro.Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			c.SendJSON(ConsoleMessage{Type: "state", State: console.State(), Error: "invalid command"})
			return
		}
		state, err := console.Handle(cmd)
		reply := ConsoleMessage{Type: "state", State: state}
		if err != nil {
			reply.Error = err.Error()
		}
		c.SendJSON(reply)
	})
}
