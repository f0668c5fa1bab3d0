package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxpro/config"
	"voxpro/core/auth"
	"voxpro/core/realtime"
	"voxpro/core/voxpro"
	"voxpro/model"
	"voxpro/repository"
	"voxpro/storage"
	"voxpro/testsupport"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

type testEnv struct {
	srv      *Server
	ts       *httptest.Server
	db       *gorm.DB
	notifier *realtime.MemoryNotifier
	token    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newCachedTestEnv(t, nil)
}

func newCachedTestEnv(t *testing.T, snapshot AssignmentCache) *testEnv {
	t.Helper()

	webDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(webDir, "index.html"), []byte("<h1>home</h1>"), 0644); err != nil {
		t.Fatal(err)
	}
	blobs, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		WebAppDir:   webDir,
		KeySlots:    []string{"1", "2", "A", "B"},
		JWTSecret:   "test-secret",
		JWTTTL:      time.Hour,
		MaxUploadMB: 1,
	}
	gdb := testsupport.NewDB(t)
	notifier := realtime.NewMemoryNotifier()

	srv, err := New(context.Background(), Deps{
		Config:   cfg,
		DB:       gdb,
		Blobs:    blobs,
		Notifier: notifier,
		Cache:    snapshot,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	env := &testEnv{srv: srv, ts: ts, db: gdb, notifier: notifier}
	env.token = env.login(t)
	return env
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	hash, err := auth.HashPassword("secret-pass")
	if err != nil {
		t.Fatal(err)
	}
	users := repository.NewGormUserRepository(e.db)
	if err := users.Create(context.Background(), &model.User{Username: "admin", PasswordHash: hash}); err != nil {
		t.Fatal(err)
	}

	resp := e.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"admin","password":"secret-pass"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var out LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out.Token == "" || out.User.Username != "admin" {
		t.Fatalf("login response = %+v", out)
	}
	return out.Token
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.ts.URL+path, r)
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func (e *testEnv) assign(t *testing.T, slot, title, url, mediaType string) model.Assignment {
	t.Helper()
	body, _ := json.Marshal(CreateAssignmentRequest{KeySlot: slot, Title: title, MediaURL: url, MediaType: mediaType})
	resp := e.do(t, http.MethodPost, "/api/assignments", e.token, string(body))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create assignment status = %d", resp.StatusCode)
	}
	var a model.Assignment
	if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
		t.Fatal(err)
	}
	return a
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"admin","password":"nope"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAssignmentsCRUD(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/assignments", "", `{"key_slot":"1","title":"x","media_url":"https://cdn/x.mp4"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated create status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/assignments", env.token, `{"key_slot":"Z","title":"x","media_url":"https://cdn/x.mp4"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown slot status = %d", resp.StatusCode)
	}

	first := env.assign(t, "1", "Intro", "https://cdn/intro.mp4", "video/mp4")
	time.Sleep(5 * time.Millisecond)
	second := env.assign(t, "1", "Outro", "https://cdn/outro.mp3", "")
	if second.SubmittedBy != "admin" {
		t.Errorf("submitted_by = %q", second.SubmittedBy)
	}

	var rows []model.Assignment
	decode(t, env.do(t, http.MethodGet, "/api/assignments", "", ""), &rows)
	if len(rows) != 2 || rows[0].ID != second.ID || rows[1].ID != first.ID {
		t.Fatalf("rows = %+v, want newest first", rows)
	}

	resp = env.do(t, http.MethodDelete, "/api/assignments/"+second.ID, env.token, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	resp = env.do(t, http.MethodDelete, "/api/assignments/"+second.ID, env.token, "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status = %d", resp.StatusCode)
	}

	// the key falls back to the earlier assignment
	var pr PlayerResponse
	decode(t, env.do(t, http.MethodGet, "/api/voxpro/player?key=1", "", ""), &pr)
	if pr.Assignment.ID != first.ID || pr.Player.Mode != voxpro.ModeVideo {
		t.Errorf("player = %+v", pr)
	}
}

func TestPlayerPage(t *testing.T) {
	env := newTestEnv(t)
	env.assign(t, "A", "Jingle", "https://cdn/jingle.ogg", "")
	env.assign(t, "B", "Rundown", "https://cdn/rundown.docx", "")

	cases := []struct {
		path   string
		status int
		want   string
	}{
		{"/player?key=A", http.StatusOK, "<audio"},
		{"/player?key=B", http.StatusOK, "docs.google.com/viewer"},
		{"/player?key=2", http.StatusNotFound, "Nothing is assigned"},
		{"/player", http.StatusBadRequest, "key is required"},
	}
	for _, tc := range cases {
		resp := env.do(t, http.MethodGet, tc.path, "", "")
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != tc.status {
			t.Errorf("%s: status = %d, want %d", tc.path, resp.StatusCode, tc.status)
		}
		if !strings.Contains(string(body), tc.want) {
			t.Errorf("%s: body missing %q", tc.path, tc.want)
		}
	}

	resp := env.do(t, http.MethodGet, "/api/voxpro/player?key=2", "", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("json unassigned status = %d", resp.StatusCode)
	}
}

func TestPlayerTemplateOverride(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, notFoundTemplate), []byte("custom {{.Key}}"), 0644); err != nil {
		t.Fatal(err)
	}
	tpl, err := NewPlayerTemplates(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer tpl.Close()

	var buf bytes.Buffer
	if err := tpl.Execute(&buf, notFoundTemplate, playerPage{Key: "9"}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "custom 9" {
		t.Errorf("override = %q", buf.String())
	}

	if err := os.WriteFile(filepath.Join(dir, notFoundTemplate), []byte("reloaded {{.Key}}"), 0644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		buf.Reset()
		return tpl.Execute(&buf, notFoundTemplate, playerPage{Key: "9"}) == nil && buf.String() == "reloaded 9"
	})
}

func multipartUpload(t *testing.T, fields map[string]string, fileName, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestUploadAndServeMedia(t *testing.T) {
	env := newTestEnv(t)

	body, ct := multipartUpload(t, map[string]string{"key_slot": "2", "title": "Poster"}, "poster.png", "image/png", []byte("PNG fake image"))
	req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/api/voxpro/upload", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("Authorization", "Bearer "+env.token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	var res struct {
		Assignment model.Assignment `json:"assignment"`
		PublicURL  string           `json:"public_url"`
	}
	decode(t, resp, &res)
	if res.Assignment.KeySlot != "2" || !strings.HasPrefix(res.PublicURL, "/media/voxpro/2/") {
		t.Fatalf("upload result = %+v", res)
	}

	resp = env.do(t, http.MethodGet, res.PublicURL, "", "")
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(data) != "PNG fake image" {
		t.Fatalf("media status = %d body = %q", resp.StatusCode, data)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Errorf("content type = %q", got)
	}

	resp = env.do(t, http.MethodGet, "/media/voxpro/2/missing.mp3", "", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing media status = %d", resp.StatusCode)
	}

	var files []model.MediaFile
	decode(t, env.do(t, http.MethodGet, "/api/media", env.token, ""), &files)
	if len(files) != 1 || files[0].UploadedBy != "admin" {
		t.Errorf("media files = %+v", files)
	}
}

func TestUploadRejections(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name   string
		fields map[string]string
		data   []byte
		status int
	}{
		{"unknown slot", map[string]string{"key_slot": "Z", "title": "x"}, []byte("x"), http.StatusBadRequest},
		{"missing title", map[string]string{"key_slot": "1", "title": "  "}, []byte("x"), http.StatusBadRequest},
		{"too large", map[string]string{"key_slot": "1", "title": "big"}, bytes.Repeat([]byte("a"), 3<<19), http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, ct := multipartUpload(t, tc.fields, "clip.mp4", "video/mp4", tc.data)
			req, _ := http.NewRequest(http.MethodPost, env.ts.URL+"/api/voxpro/upload", body)
			req.Header.Set("Content-Type", ct)
			req.Header.Set("Authorization", "Bearer "+env.token)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.status)
			}
		})
	}

	var rows []model.Assignment
	decode(t, env.do(t, http.MethodGet, "/api/assignments", "", ""), &rows)
	if len(rows) != 0 {
		t.Errorf("rejected uploads created rows: %+v", rows)
	}
}

func TestEventsFlow(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/events/current", "", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("no current status = %d", resp.StatusCode)
	}

	var first, second model.Event
	resp = env.do(t, http.MethodPost, "/api/events", env.token, `{"title":"Open Mic"}`)
	decode(t, resp, &first)
	resp = env.do(t, http.MethodPost, "/api/events", env.token, `{"title":"Quiz Night"}`)
	decode(t, resp, &second)
	if first.Status != model.EventStatusUpcoming {
		t.Fatalf("new event status = %q", first.Status)
	}

	for _, id := range []string{first.ID, second.ID} {
		resp = env.do(t, http.MethodPut, "/api/events/current", env.token, `{"id":"`+id+`"}`)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("set current status = %d", resp.StatusCode)
		}
	}

	var current model.Event
	decode(t, env.do(t, http.MethodGet, "/api/events/current", "", ""), &current)
	if current.ID != second.ID {
		t.Fatalf("current = %s, want %s", current.ID, second.ID)
	}

	var archived model.Event
	decode(t, env.do(t, http.MethodPost, "/api/events/current/archive", env.token, ""), &archived)
	if archived.Status != model.EventStatusArchived || archived.ArchivedAt == nil {
		t.Fatalf("archived = %+v", archived)
	}

	resp = env.do(t, http.MethodPut, "/api/events/current", env.token, `{"id":"`+second.ID+`"}`)
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("reviving archived event status = %d", resp.StatusCode)
	}
}

func dialWS(t *testing.T, env *testEnv, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.ts.URL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRealtimePushesAssignmentChanges(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/api/realtime?table=media_files", "", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("media_files without token status = %d", resp.StatusCode)
	}

	conn := dialWS(t, env, "/api/realtime?table=assignments")
	waitFor(t, func() bool { return env.srv.hub.TopicCount(realtime.TableAssignments) == 1 })

	a := env.assign(t, "1", "Live", "https://cdn/live.mp4", "")

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev realtime.ChangeEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.Table != realtime.TableAssignments || ev.Event != realtime.EventInsert {
		t.Fatalf("event = %+v", ev)
	}
	var row model.Assignment
	if err := json.Unmarshal(ev.New, &row); err != nil || row.ID != a.ID {
		t.Fatalf("new row = %s", ev.New)
	}
}

func readState(t *testing.T, conn *websocket.Conn, match func(ConsoleMessage) bool) ConsoleMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var msg ConsoleMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatal(err)
		}
		if match(msg) {
			return msg
		}
	}
}

func TestConsoleSession(t *testing.T) {
	env := newTestEnv(t)
	env.assign(t, "A", "Bed", "https://cdn/bed.mp3", "")

	conn := dialWS(t, env, "/api/voxpro/console")
	readState(t, conn, func(m ConsoleMessage) bool { return m.State.Connection == voxpro.StatusConnected })

	send := func(cmd voxpro.Command) {
		if err := conn.WriteJSON(cmd); err != nil {
			t.Fatal(err)
		}
	}

	send(voxpro.Command{Type: voxpro.CmdKeyPress, Key: "1"})
	msg := readState(t, conn, func(m ConsoleMessage) bool { return m.State.LastPress != nil })
	if msg.State.LastPress.Outcome != voxpro.PressUnassigned || len(msg.State.Windows) != 0 {
		t.Fatalf("unassigned press state = %+v", msg.State)
	}

	send(voxpro.Command{Type: voxpro.CmdKeyPress, Key: "A"})
	msg = readState(t, conn, func(m ConsoleMessage) bool { return len(m.State.Windows) == 1 })
	w := msg.State.Windows[0]
	if msg.State.Active != "A" || w.Player.Mode != voxpro.ModeAudio || w.Player.State != voxpro.StateLoading {
		t.Fatalf("opened state = %+v", msg.State)
	}

	send(voxpro.Command{Type: voxpro.CmdPlay, WindowID: w.ID})
	msg = readState(t, conn, func(m ConsoleMessage) bool { return m.Error != "" })
	if !strings.Contains(msg.Error, voxpro.ErrNotReady.Error()) {
		t.Errorf("play before load error = %q", msg.Error)
	}

	// a new assignment is pushed without a command
	env.assign(t, "2", "News", "https://cdn/news.png", "")
	readState(t, conn, func(m ConsoleMessage) bool {
		for _, k := range m.State.Keys {
			if k.KeySlot == "2" && k.Assigned {
				return true
			}
		}
		return false
	})

	send(voxpro.Command{Type: voxpro.CmdKeyPress, Key: "A"})
	msg = readState(t, conn, func(m ConsoleMessage) bool {
		return m.State.LastPress != nil && m.State.LastPress.Outcome == voxpro.PressClosed
	})
	if len(msg.State.Windows) != 0 || msg.State.Active != "" {
		t.Errorf("closed state = %+v", msg.State)
	}

	conn.Close()
	waitFor(t, func() bool { return env.notifier.SubscriberCount(realtime.TableAssignments) == 1 })
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/healthz", "", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	env.srv.metrics.keyPresses.WithLabelValues(string(voxpro.PressOpened)).Inc()
	resp = env.do(t, http.MethodGet, "/metrics", "", "")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `voxpro_key_presses_total{outcome="opened"} 1`) {
		t.Errorf("metrics missing key press counter")
	}

	resp = env.do(t, http.MethodGet, "/", "", "")
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "home") {
		t.Errorf("static site not served")
	}
}
