package server

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"voxpro/logger"
	"voxpro/model"
	"voxpro/storage"
)

// MediaHandler 代理媒体存储中的文件
func (s *Server) MediaHandler(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), "/media/"))
	if err != nil || key == "" || strings.Contains(key, "..") {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	obj, err := s.blobs.Get(ctx, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		http.Error(w, "File not found", http.StatusNotFound)
		return
	}
	if err != nil {
		logger.Error("Error reading media object", logger.String("object", key), logger.ErrorField(err))
		http.Error(w, "storage unavailable", http.StatusBadGateway)
		return
	}
	defer obj.Body.Close()

	contentType := obj.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(path.Ext(key)); byExt != "" {
			contentType = byExt
		} else {
			contentType = "application/octet-stream"
		}
	}
	w.Header().Set("Content-Type", contentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	if !obj.LastModified.IsZero() {
		w.Header().Set("Last-Modified", obj.LastModified.UTC().Format(http.TimeFormat))
	}
	// 对象键含 uuid, 内容不会变化
	w.Header().Set("Cache-Control", "public, max-age=31536000")

	if r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		logger.Warn("Error serving media object", logger.String("object", key), logger.ErrorField(err))
	}
}

// ListMediaHandler lists uploaded media files (admin). ?limit= and ?offset=.
func (s *Server) ListMediaHandler(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	files, err := s.mediaFiles.List(r.Context(), limit, offset)
	if err != nil {
		logger.Error("list media files failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if files == nil {
		files = []model.MediaFile{}
	}
	writeJSON(w, http.StatusOK, files)
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
