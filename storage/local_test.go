package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	body := "\x89PNG fake"
	if err := store.Put(ctx, "voxpro/1/cover.png", strings.NewReader(body), int64(len(body)), "image/png"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	obj, err := store.Get(ctx, "voxpro/1/cover.png")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(obj.Body)
	obj.Body.Close()
	if string(data) != body || obj.Size != int64(len(body)) {
		t.Errorf("Get = %q (%d bytes)", data, obj.Size)
	}
	if obj.ContentType != "image/png" {
		t.Errorf("ContentType = %q", obj.ContentType)
	}

	if err := store.Delete(ctx, "voxpro/1/cover.png"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "voxpro/1/cover.png"); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("Get after delete err = %v", err)
	}
	if err := store.Delete(ctx, "voxpro/1/cover.png"); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())
	for _, key := range []string{"../etc/passwd", "/abs/path", "."} {
		if err := store.Put(context.Background(), key, strings.NewReader("x"), 1, ""); err == nil {
			t.Errorf("Put(%q) should fail", key)
		}
	}
}

func TestAdminHelpers(t *testing.T) {
	store, _ := NewLocalStore(t.TempDir())
	ctx := context.Background()
	for _, key := range []string{"voxpro/1/a.mp3", "voxpro/2/b.MP4", "voxpro/2/c.pdf", "misc/readme"} {
		store.Put(ctx, key, strings.NewReader("1234"), 4, "")
	}

	stats, err := Stats(ctx, store, "voxpro/")
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalObjects != 3 || stats.TotalSize != 12 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ByExtension["mp4"] != 1 || stats.ByExtension["mp3"] != 1 {
		t.Errorf("ByExtension = %v", stats.ByExtension)
	}

	tree, err := Tree(ctx, store, "voxpro/")
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	if !strings.Contains(tree, "voxpro/\n") || !strings.Contains(tree, "    b.MP4 (4 B)") {
		t.Errorf("unexpected tree:\n%s", tree)
	}

	n, err := DeletePrefix(ctx, store, "voxpro/2/")
	if err != nil || n != 2 {
		t.Fatalf("DeletePrefix = %d, %v", n, err)
	}
	if _, err := DeletePrefix(ctx, store, ""); err == nil {
		t.Error("empty prefix should be refused")
	}
}

func TestFormatSizeAndPublicURL(t *testing.T) {
	if got := FormatSize(1536); got != "1.5 KB" {
		t.Errorf("FormatSize = %q", got)
	}
	if got := PublicURL("https://example.org/", "voxpro/A/my clip.mp3"); got != "https://example.org/media/voxpro/A/my%20clip.mp3" {
		t.Errorf("PublicURL = %q", got)
	}
}
