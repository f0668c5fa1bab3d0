package upload

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"voxpro/core/realtime"
	"voxpro/model"
	"voxpro/storage"
	"voxpro/testsupport"

	"gorm.io/gorm"
)

type fixture struct {
	svc     *Service
	db      *gorm.DB
	blobs   *storage.LocalStore
	changes []realtime.ChangeEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := testsupport.NewDB(t)
	blobs, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	n := realtime.NewMemoryNotifier()

	f := &fixture{db: gdb, blobs: blobs}
	n.Subscribe(context.Background(), realtime.TableAssignments, func(ev realtime.ChangeEvent) {
		f.changes = append(f.changes, ev)
	})
	f.svc = NewService(gdb, blobs, n, Options{
		KeySlots:      []string{"1", "2", "A"},
		MaxBytes:      1024,
		PublicBaseURL: "https://example.org",
	})
	return f
}

func request(slot, title, name, body string) Request {
	return Request{
		File:     strings.NewReader(body),
		Size:     int64(len(body)),
		FileName: name,
		KeySlot:  slot,
		Title:    title,
	}
}

func TestUploadStoresBlobAndRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := request("A", "  Theme Song ", "theme.MP3", "ID3-data")
	req.ContentType = "audio/mpeg"
	req.SubmittedBy = "Volunteer"
	res, err := f.svc.Upload(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	key := res.MediaFile.ObjectKey
	if !strings.HasPrefix(key, "voxpro/A/") || !strings.HasSuffix(key, ".mp3") {
		t.Errorf("object key = %q", key)
	}
	if res.PublicURL != "https://example.org/media/"+key || res.Assignment.MediaURL != res.PublicURL {
		t.Errorf("public url = %q", res.PublicURL)
	}
	if res.Assignment.Title != "Theme Song" || res.Assignment.MediaType != "audio/mpeg" || res.Assignment.ID == "" {
		t.Errorf("assignment = %+v", res.Assignment)
	}

	obj, err := f.blobs.Get(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(obj.Body)
	obj.Body.Close()
	if string(data) != "ID3-data" {
		t.Errorf("blob = %q", data)
	}

	var count int64
	f.db.Model(&model.Assignment{}).Where("key_slot = ?", "A").Count(&count)
	if count != 1 {
		t.Errorf("assignment rows = %d", count)
	}
	if len(f.changes) != 1 || f.changes[0].Event != realtime.EventInsert {
		t.Errorf("changes = %+v", f.changes)
	}
}

func TestUploadValidation(t *testing.T) {
	f := newFixture(t)
	var results []string
	f.svc.OnResult = func(r string) { results = append(results, r) }

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"unknown slot", request("Z", "t", "a.mp3", "x"), ErrInvalidKeySlot},
		{"blank title", request("1", "   ", "a.mp3", "x"), ErrTitleRequired},
		{"empty file", request("1", "t", "a.mp3", ""), ErrEmptyFile},
		{"too large", request("1", "t", "a.mp3", strings.Repeat("x", 2048)), ErrFileTooLarge},
	}
	for _, tt := range tests {
		if _, err := f.svc.Upload(context.Background(), tt.req); !errors.Is(err, tt.want) {
			t.Errorf("%s: err = %v, want %v", tt.name, err, tt.want)
		}
	}

	objs, _ := f.blobs.List(context.Background(), "voxpro/")
	if len(objs) != 0 {
		t.Errorf("rejected uploads left %d blobs", len(objs))
	}
	for _, r := range results {
		if r != "rejected" {
			t.Errorf("result = %q", r)
		}
	}
}

func TestUploadTruncatesTitle(t *testing.T) {
	f := newFixture(t)
	long := strings.Repeat("é", MaxTitleLength+30)
	res, err := f.svc.Upload(context.Background(), request("1", long, "doc.pdf", "%PDF"))
	if err != nil {
		t.Fatal(err)
	}
	if n := len([]rune(res.Assignment.Title)); n != MaxTitleLength {
		t.Errorf("title runes = %d", n)
	}
	if res.Assignment.MediaType != "application/pdf" {
		t.Errorf("media type = %q", res.Assignment.MediaType)
	}
}

func TestUploadDeletesBlobWhenInsertFails(t *testing.T) {
	f := newFixture(t)
	var results []string
	f.svc.OnResult = func(r string) { results = append(results, r) }

	if err := f.db.Migrator().DropTable(&model.Assignment{}); err != nil {
		t.Fatal(err)
	}

	_, err := f.svc.Upload(context.Background(), request("2", "Clip", "clip.mp4", "data"))
	if err == nil {
		t.Fatal("expected the insert to fail")
	}

	objs, _ := f.blobs.List(context.Background(), "voxpro/")
	if len(objs) != 0 {
		t.Errorf("blob not cleaned up: %+v", objs)
	}
	var files int64
	f.db.Model(&model.MediaFile{}).Count(&files)
	if files != 0 {
		t.Errorf("media_files rows = %d, transaction should roll back", files)
	}
	if len(f.changes) != 0 {
		t.Errorf("no change should be published, got %+v", f.changes)
	}
	if len(results) != 1 || results[0] != "failed" {
		t.Errorf("results = %v", results)
	}
}

type failingStore struct{ storage.BlobStore }

func (failingStore) Put(context.Context, string, io.Reader, int64, string) error {
	return errors.New("bucket unavailable")
}

func TestUploadBlobFailureWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.svc.blobs = failingStore{}

	if _, err := f.svc.Upload(context.Background(), request("1", "t", "a.png", "png")); err == nil {
		t.Fatal("expected an error")
	}
	var count int64
	f.db.Model(&model.Assignment{}).Count(&count)
	if count != 0 {
		t.Errorf("assignment rows = %d", count)
	}
}

func TestMediaTypeFallsBackToExtension(t *testing.T) {
	tests := []struct {
		ct, ext, want string
	}{
		{"video/mp4", ".mp4", "video/mp4"},
		{"audio/ogg; codecs=opus", ".ogg", "audio/ogg"},
		{"application/octet-stream", ".ogg", "ogg"},
		{"application/zip", ".zip", "zip"},
	}
	for _, tt := range tests {
		if got := mediaType(tt.ct, tt.ext); got != tt.want {
			t.Errorf("mediaType(%q, %q) = %q, want %q", tt.ct, tt.ext, got, tt.want)
		}
	}
}
