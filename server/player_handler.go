package server

import (
	"bytes"
	"errors"
	"net/http"
	"strings"

	"voxpro/core/voxpro"
	"voxpro/logger"
	"voxpro/model"
	"voxpro/repository"
)

type playerPage struct {
	Key    string
	Player voxpro.PlayerView
}

// PlayerResponse is the JSON form of the standalone player.
type PlayerResponse struct {
	Key        string            `json:"key"`
	Assignment model.Assignment  `json:"assignment"`
	Player     voxpro.PlayerView `json:"player"`
}

// currentAssignment resolves ?key= to the key's current assignment and
// writes the error response itself when it cannot.
func (s *Server) currentAssignment(w http.ResponseWriter, r *http.Request, html bool) (string, *model.Assignment, bool) {
	key := strings.TrimSpace(r.URL.Query().Get("key"))
	if key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return "", nil, false
	}

	a, err := s.assignments.Latest(r.Context(), key)
	if errors.Is(err, repository.ErrNotFound) {
		if html {
			s.renderPage(w, http.StatusNotFound, notFoundTemplate, playerPage{Key: key})
		} else {
			writeError(w, http.StatusNotFound, "key is not assigned")
		}
		return key, nil, false
	}
	if err != nil {
		logger.Error("load assignment for player failed", logger.String("key", key), logger.ErrorField(err))
		http.Error(w, "assignments unavailable", http.StatusServiceUnavailable)
		return key, nil, false
	}
	return key, a, true
}

// PlayerPageHandler renders only the player surface for one key.
func (s *Server) PlayerPageHandler(w http.ResponseWriter, r *http.Request) {
	key, a, ok := s.currentAssignment(w, r, true)
	if !ok {
		return
	}
	view := voxpro.NewPlayer(0, *a).View()
	s.renderPage(w, http.StatusOK, playerTemplate, playerPage{Key: key, Player: view})
}

// PlayerJSONHandler returns the assignment and its render descriptor.
func (s *Server) PlayerJSONHandler(w http.ResponseWriter, r *http.Request) {
	key, a, ok := s.currentAssignment(w, r, false)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, PlayerResponse{
		Key:        key,
		Assignment: *a,
		Player:     voxpro.NewPlayer(0, *a).View(),
	})
}

func (s *Server) renderPage(w http.ResponseWriter, status int, name string, data playerPage) {
	var buf bytes.Buffer
	if err := s.templates.Execute(&buf, name, data); err != nil {
		logger.Error("render template failed", logger.String("template", name), logger.ErrorField(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
