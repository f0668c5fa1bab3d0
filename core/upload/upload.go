// Package upload stores a media file and binds it to a key slot.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"voxpro/core/realtime"
	"voxpro/core/voxpro"
	"voxpro/logger"
	"voxpro/model"
	"voxpro/repository"
	"voxpro/storage"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxTitleLength is the rune limit applied to titles.
const MaxTitleLength = 120

var (
	ErrInvalidKeySlot = errors.New("invalid key slot")
	ErrTitleRequired  = errors.New("title is required")
	ErrEmptyFile      = errors.New("file is empty")
	ErrFileTooLarge   = errors.New("file is too large")
)

type Options struct {
	KeySlots      []string
	MaxBytes      int64
	PublicBaseURL string
}

// Request is one upload. Size must be the exact byte count of File.
type Request struct {
	File        io.Reader
	Size        int64
	FileName    string
	ContentType string
	KeySlot     string
	Title       string
	Description string
	SubmittedBy string
}

type Result struct {
	Assignment model.Assignment `json:"assignment"`
	MediaFile  model.MediaFile  `json:"media_file"`
	PublicURL  string           `json:"public_url"`
}

// Service runs the upload flow: blob put, row inserts in one transaction,
// change publish. A failed insert deletes the blob again.
type Service struct {
	db          *gorm.DB
	blobs       storage.BlobStore
	assignments repository.AssignmentRepository
	media       repository.MediaFileRepository
	notifier    realtime.Notifier
	opts        Options
	slots       map[string]bool

	// OnResult, when set, is called with "ok" or a failure reason.
	OnResult func(result string)
}

func NewService(gdb *gorm.DB, blobs storage.BlobStore, notifier realtime.Notifier, opts Options) *Service {
	slots := make(map[string]bool, len(opts.KeySlots))
	for _, s := range opts.KeySlots {
		slots[s] = true
	}
	return &Service{
		db:          gdb,
		blobs:       blobs,
		assignments: repository.NewGormAssignmentRepository(gdb),
		media:       repository.NewGormMediaFileRepository(gdb),
		notifier:    notifier,
		opts:        opts,
		slots:       slots,
	}
}

// Upload validates req and stores it. Nothing is visible to the key model
// unless every step succeeds.
func (s *Service) Upload(ctx context.Context, req Request) (*Result, error) {
	res, err := s.upload(ctx, req)
	s.report(err)
	return res, err
}

func (s *Service) upload(ctx context.Context, req Request) (*Result, error) {
	title, err := s.validate(&req)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(path.Ext(req.FileName))
	key := fmt.Sprintf("voxpro/%s/%s%s", req.KeySlot, uuid.NewString(), ext)
	contentType := detectContentType(req.ContentType, ext)

	if err := s.blobs.Put(ctx, key, req.File, req.Size, contentType); err != nil {
		return nil, fmt.Errorf("failed to store %s: %w", key, err)
	}

	publicURL := storage.PublicURL(s.opts.PublicBaseURL, key)
	file := model.MediaFile{
		ObjectKey:   key,
		FileName:    path.Base(req.FileName),
		ContentType: contentType,
		SizeBytes:   req.Size,
		PublicURL:   publicURL,
		UploadedBy:  req.SubmittedBy,
	}
	a := model.Assignment{
		KeySlot:     req.KeySlot,
		Title:       title,
		Description: strings.TrimSpace(req.Description),
		MediaURL:    publicURL,
		MediaType:   mediaType(contentType, ext),
		SubmittedBy: strings.TrimSpace(req.SubmittedBy),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.media.WithTx(tx).Create(ctx, &file); err != nil {
			return err
		}
		return s.assignments.WithTx(tx).Create(ctx, &a)
	})
	if err != nil {
		s.compensate(key)
		return nil, err
	}

	if err := realtime.Publish(ctx, s.notifier, realtime.TableMediaFiles, realtime.EventInsert, &file, nil); err != nil {
		logger.Warn("publish media file insert failed", logger.ErrorField(err))
	}
	if err := realtime.Publish(ctx, s.notifier, realtime.TableAssignments, realtime.EventInsert, &a, nil); err != nil {
		logger.Warn("publish assignment insert failed", logger.ErrorField(err))
	}

	logger.Info("media uploaded",
		logger.String("key_slot", a.KeySlot),
		logger.String("object", key),
		logger.Int64("size", req.Size))
	return &Result{Assignment: a, MediaFile: file, PublicURL: publicURL}, nil
}

func (s *Service) validate(req *Request) (string, error) {
	if !s.slots[req.KeySlot] {
		return "", fmt.Errorf("%w: %q", ErrInvalidKeySlot, req.KeySlot)
	}
	title := truncateRunes(strings.TrimSpace(req.Title), MaxTitleLength)
	if title == "" {
		return "", ErrTitleRequired
	}
	if req.File == nil || req.Size <= 0 {
		return "", ErrEmptyFile
	}
	if s.opts.MaxBytes > 0 && req.Size > s.opts.MaxBytes {
		return "", fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, req.Size, s.opts.MaxBytes)
	}
	return title, nil
}

// compensate removes a blob whose rows could not be written.
func (s *Service) compensate(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil {
		logger.Error("orphaned blob left behind", logger.String("object", key), logger.ErrorField(err))
		return
	}
	logger.Warn("deleted blob after failed insert", logger.String("object", key))
}

func (s *Service) report(err error) {
	if s.OnResult == nil {
		return
	}
	switch {
	case err == nil:
		s.OnResult("ok")
	case errors.Is(err, ErrInvalidKeySlot), errors.Is(err, ErrTitleRequired),
		errors.Is(err, ErrEmptyFile), errors.Is(err, ErrFileTooLarge):
		s.OnResult("rejected")
	default:
		s.OnResult("failed")
	}
}

func detectContentType(declared, ext string) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	if declared != "" {
		return declared
	}
	return "application/octet-stream"
}

// mediaType keeps a content type the classifier understands and falls back
// to the bare extension otherwise.
func mediaType(contentType, ext string) string {
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if voxpro.Classify("", contentType) != voxpro.ModeUnknown {
		return contentType
	}
	return strings.TrimPrefix(ext, ".")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}
