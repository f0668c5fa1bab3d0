package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"voxpro/cache"
	"voxpro/core/realtime"
	"voxpro/logger"
	"voxpro/model"
	"voxpro/repository"

	"github.com/gorilla/mux"
)

// staleHeader marks a list answered from the last good snapshot while the
// database is unavailable.
const staleHeader = "X-VoxPro-Stale"

// ListAssignmentsHandler returns every assignment, newest first.
func (s *Server) ListAssignmentsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// 版本号必须在查库之前读取
	var version int64
	cacheable := false
	if s.cache != nil {
		if rows, ok, err := s.cache.Get(ctx); err != nil {
			logger.Warn("read assignment cache failed", logger.ErrorField(err))
		} else if ok {
			writeJSON(w, http.StatusOK, rows)
			return
		}
		if v, err := s.cache.Version(ctx); err != nil {
			logger.Warn("read assignment cache version failed", logger.ErrorField(err))
		} else {
			version, cacheable = v, true
		}
	}

	rows, err := s.assignments.List(ctx)
	if err != nil {
		logger.Error("list assignments failed", logger.ErrorField(err))
		if stale, ok := s.lastGood(ctx); ok {
			w.Header().Set(staleHeader, "true")
			writeJSON(w, http.StatusOK, stale)
			return
		}
		writeError(w, http.StatusServiceUnavailable, "assignments unavailable")
		return
	}
	if rows == nil {
		rows = []model.Assignment{}
	}

	if cacheable {
		err := s.cache.Set(ctx, version, rows)
		switch {
		case errors.Is(err, cache.ErrStaleSnapshot):
			logger.Debug("assignments changed during list; not cached")
		case err != nil:
			logger.Warn("write assignment cache failed", logger.ErrorField(err))
		}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) lastGood(ctx context.Context) ([]model.Assignment, bool) {
	if s.cache == nil {
		return nil, false
	}
	rows, ok, err := s.cache.LastGood(ctx)
	if err != nil {
		logger.Warn("read last good assignments failed", logger.ErrorField(err))
		return nil, false
	}
	return rows, ok
}

// CreateAssignmentRequest binds an already hosted media URL to a key.
type CreateAssignmentRequest struct {
	KeySlot     string `json:"key_slot"`
	Title       string `json:"title"`
	Description string `json:"description"`
	MediaURL    string `json:"media_url"`
	MediaType   string `json:"media_type"`
}

// CreateAssignmentHandler inserts an assignment row (admin).
func (s *Server) CreateAssignmentHandler(w http.ResponseWriter, r *http.Request) {
	var req CreateAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.KeySlot = strings.TrimSpace(req.KeySlot)
	req.Title = strings.TrimSpace(req.Title)
	req.MediaURL = strings.TrimSpace(req.MediaURL)

	if !s.cfg.HasKeySlot(req.KeySlot) {
		writeError(w, http.StatusBadRequest, "unknown key slot")
		return
	}
	if req.Title == "" || req.MediaURL == "" {
		writeError(w, http.StatusBadRequest, "title and media_url are required")
		return
	}

	username, _ := GetUsernameFromContext(r.Context())
	a := &model.Assignment{
		KeySlot:     req.KeySlot,
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		MediaURL:    req.MediaURL,
		MediaType:   strings.TrimSpace(req.MediaType),
		SubmittedBy: username,
	}
	if err := s.store.Insert(r.Context(), a); err != nil {
		logger.Error("create assignment failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to create assignment")
		return
	}

	logger.Info("assignment created",
		logger.String("key_slot", a.KeySlot),
		logger.String("id", a.ID),
		logger.String("by", username))
	writeJSON(w, http.StatusCreated, a)
}

// DeleteAssignmentHandler removes an assignment (admin). The key falls back
// to its previous assignment, if any.
func (s *Server) DeleteAssignmentHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	old, err := s.assignments.Delete(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "assignment not found")
		return
	}
	if err != nil {
		logger.Error("delete assignment failed", logger.String("id", id), logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to delete assignment")
		return
	}

	if err := realtime.Publish(r.Context(), s.notifier, realtime.TableAssignments, realtime.EventDelete, nil, old); err != nil {
		logger.Warn("publish assignment delete failed", logger.ErrorField(err))
	}
	w.WriteHeader(http.StatusNoContent)
}
