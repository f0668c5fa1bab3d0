package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"voxpro/core/events"
	"voxpro/logger"
	"voxpro/model"
)

// CreateEventRequest 创建活动请求
type CreateEventRequest struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	StartsAt    time.Time `json:"starts_at"`
}

type SetCurrentEventRequest struct {
	ID string `json:"id"`
}

// eventStatus maps store errors to HTTP status codes.
func eventStatus(err error) int {
	switch {
	case errors.Is(err, events.ErrEventNotFound), errors.Is(err, events.ErrNoCurrentEvent):
		return http.StatusNotFound
	case errors.Is(err, events.ErrEventArchived):
		return http.StatusConflict
	case errors.Is(err, events.ErrInvalidEvent):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeEventError(w http.ResponseWriter, op string, err error) {
	status := eventStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("event operation failed", logger.String("op", op), logger.ErrorField(err))
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// ListEventsHandler 获取所有活动
func (s *Server) ListEventsHandler(w http.ResponseWriter, r *http.Request) {
	list, err := s.events.List(r.Context())
	if err != nil {
		s.writeEventError(w, "list", err)
		return
	}
	if list == nil {
		list = []model.Event{}
	}
	writeJSON(w, http.StatusOK, list)
}

// CurrentEventHandler 获取当前活动
func (s *Server) CurrentEventHandler(w http.ResponseWriter, r *http.Request) {
	e, err := s.events.Current(r.Context())
	if err != nil {
		s.writeEventError(w, "current", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// CreateEventHandler 创建活动（管理员）
func (s *Server) CreateEventHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	e := &model.Event{
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    req.StartsAt,
	}
	if err := s.events.Create(r.Context(), e); err != nil {
		s.writeEventError(w, "create", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// SetCurrentEventHandler makes the event in the body current (admin).
func (s *Server) SetCurrentEventHandler(w http.ResponseWriter, r *http.Request) {
	var req SetCurrentEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	e, err := s.events.SetCurrent(r.Context(), req.ID)
	if err != nil {
		s.writeEventError(w, "set_current", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// ArchiveCurrentEventHandler archives the current event (admin).
func (s *Server) ArchiveCurrentEventHandler(w http.ResponseWriter, r *http.Request) {
	e, err := s.events.ArchiveCurrent(r.Context())
	if err != nil {
		s.writeEventError(w, "archive", err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}
