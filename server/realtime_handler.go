package server

import (
	"net/http"

	"voxpro/core/realtime"
	"voxpro/logger"
)

// RealtimeHandler upgrades to a websocket that receives every change event
// of one table. media_files requires an admin token.
func (s *Server) RealtimeHandler(w http.ResponseWriter, r *http.Request) {
	table := r.URL.Query().Get("table")
	if table == "" {
		table = realtime.TableAssignments
	}

	switch table {
	case realtime.TableAssignments, realtime.TableEvents:
	case realtime.TableMediaFiles:
		authed, err := s.authenticate(r)
		if err != nil {
			http.Error(w, "invalid or missing token", http.StatusUnauthorized)
			return
		}
		r = authed
	default:
		http.Error(w, "unknown table", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", logger.ErrorField(err))
		return
	}

	client := realtime.NewClient(s.hub, conn, table)
	s.hub.Register(client)
	logger.Debug("realtime client connected",
		logger.String("table", table),
		logger.String("client", client.ID))

	go client.WritePump()
	// 只推送, 客户端消息丢弃
	client.ReadPump(r.Context(), nil)
}
