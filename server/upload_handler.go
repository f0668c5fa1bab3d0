package server

import (
	"errors"
	"net/http"
	"time"

	"voxpro/core/upload"
	"voxpro/logger"
)

// multipart overhead allowed on top of the file limit
const uploadSlack = 1 << 20

// UploadHandler stores a media file and assigns it to a key (admin).
// Form fields: file, key_slot, title, description.
func (s *Server) UploadHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	maxBytes := int64(s.cfg.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+uploadSlack)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	username, _ := GetUsernameFromContext(r.Context())
	res, err := s.uploads.Upload(r.Context(), upload.Request{
		File:        file,
		Size:        header.Size,
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		KeySlot:     r.FormValue("key_slot"),
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		SubmittedBy: username,
	})
	s.metrics.uploadDuration.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, res)
	case errors.Is(err, upload.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, upload.ErrInvalidKeySlot), errors.Is(err, upload.ErrTitleRequired),
		errors.Is(err, upload.ErrEmptyFile):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("upload failed",
			logger.String("file", header.Filename),
			logger.String("by", username),
			logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "upload failed")
	}
}
