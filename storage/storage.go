package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"voxpro/config"
)

// ErrObjectNotFound is returned by Get when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// Object is an open blob; callers must close Body.
type Object struct {
	Body         io.ReadCloser
	ContentType  string
	Size         int64
	LastModified time.Time
}

// ObjectInfo 文件信息
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
}

// BlobStore is the media bucket used by uploads and the /media proxy.
type BlobStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Name identifies the backend in logs and CLI output.
	Name() string
}

// New selects the backend named by STORAGE_PROVIDER.
func New(ctx context.Context, cfg *config.Config) (BlobStore, error) {
	switch cfg.StorageProvider {
	case "local":
		return NewLocalStore(cfg.LocalStorageDir)
	case "s3":
		return NewS3Store(ctx, S3Options{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
		})
	case "minio", "":
		return NewMinioStore(ctx, MinioOptions{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Region:    cfg.MinioRegion,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported STORAGE_PROVIDER %q", cfg.StorageProvider)
	}
}

// PublicURL is the address under which the server's /media/ proxy serves key.
func PublicURL(baseURL, key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(baseURL, "/") + "/media/" + strings.Join(segments, "/")
}
