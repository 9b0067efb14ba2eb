package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dshills/mdsync/internal/channel"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	return Options{
		ConfigPath:    filepath.Join(dir, "settings.toml"),
		StatePath:     filepath.Join(dir, "state.json"),
		WorkspacePath: dir,
		LogOutput:     io.Discard,
	}
}

func newTestApp(t *testing.T, opts Options) *Application {
	t.Helper()
	app, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = app.Shutdown() })
	return app
}

// syncBuffer is a log sink safe for the logger's background writers.
type syncBuffer struct {
	mu sync.Mutex
	b  strings.Builder
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func (s *syncBuffer) Reset() {
	s.mu.Lock()
	s.b.Reset()
	s.mu.Unlock()
}

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestNew(t *testing.T) {
	app := newTestApp(t, testOptions(t))

	if app.Config() == nil || app.Controller() == nil || app.Commands() == nil {
		t.Fatal("components not initialized")
	}
	if app.Registry().Len() == 0 {
		t.Error("expected features in the registry")
	}
	if !app.Commands().Has("vsc-markdown.insertBold") {
		t.Error("feature commands not registered")
	}
	if app.opts.Addr != DefaultAddr {
		t.Errorf("Addr = %q, want %q", app.opts.Addr, DefaultAddr)
	}
}

func TestNew_BrokenSettingsFallsBack(t *testing.T) {
	opts := testOptions(t)
	if err := os.WriteFile(opts.ConfigPath, []byte("not = [toml"), 0o644); err != nil {
		t.Fatal(err)
	}

	app := newTestApp(t, opts)
	if got := app.Config().Theme(); got != "dark" {
		t.Errorf("Theme() = %q, want default", got)
	}
}

func TestNew_BadStateFile(t *testing.T) {
	opts := testOptions(t)
	if err := os.WriteFile(opts.StatePath, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := New(opts)
	var cerr *ComponentError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ComponentError, got %v", err)
	}
	if cerr.Component != "state" {
		t.Errorf("Component = %q, want state", cerr.Component)
	}
}

func TestLogLevelFollowsSettings(t *testing.T) {
	opts := testOptions(t)
	if err := os.WriteFile(opts.ConfigPath, []byte("[logging]\nlevel = \"debug\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var buf syncBuffer
	opts.LogOutput = &buf

	app := newTestApp(t, opts)
	app.Logger().Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug line missing after logging.level = debug")
	}

	if err := app.Config().Set("logging.level", "error"); err != nil {
		t.Fatal(err)
	}
	buf.Reset()
	app.Logger().Warn("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("warn line logged at error level")
	}
}

func TestLogLevelPinned(t *testing.T) {
	opts := testOptions(t)
	opts.LogLevel = "error"
	var buf syncBuffer
	opts.LogOutput = &buf

	app := newTestApp(t, opts)
	if err := app.Config().Set("logging.level", "debug"); err != nil {
		t.Fatal(err)
	}
	app.Logger().Info("hidden")
	if strings.Contains(buf.String(), "hidden") {
		t.Error("pinned level changed by setting")
	}
	buf.Reset()
	newLogger(Options{Debug: true, LogLevel: "error", LogOutput: &buf}).Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Error("Debug option should enable debug logging")
	}
}

func TestOpen(t *testing.T) {
	opts := testOptions(t)
	app := newTestApp(t, opts)
	path := writeDoc(t, opts.WorkspacePath, "a.md", "# A\n")

	hostEnd, surfaceEnd := channel.Pipe()
	s, err := app.Open(path, hostEnd)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if s.Snapshot() != "# A\n" {
		t.Errorf("Snapshot() = %q", s.Snapshot())
	}
	if got := app.Metrics().Snapshot().SessionsOpened; got != 1 {
		t.Errorf("SessionsOpened = %d, want 1", got)
	}

	_ = surfaceEnd.Close()
	<-s.Done()
	deadline := time.Now().Add(2 * time.Second)
	for app.Metrics().Snapshot().ActiveSessions() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session close not recorded")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOpen_Errors(t *testing.T) {
	app := newTestApp(t, testOptions(t))
	hostEnd, _ := channel.Pipe()

	if _, err := app.Open("", hostEnd); !errors.Is(err, ErrMissingPath) {
		t.Errorf("expected ErrMissingPath, got %v", err)
	}

	_, err := app.Open(filepath.Join(t.TempDir(), "missing.md"), hostEnd)
	var oerr *OperationError
	if !errors.As(err, &oerr) || oerr.Op != "open" {
		t.Fatalf("expected open OperationError, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("expected wrapped ErrNotExist")
	}
	if got := app.Metrics().Snapshot().ResolveFailures; got != 1 {
		t.Errorf("ResolveFailures = %d, want 1", got)
	}

	if err := app.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := app.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	if _, err := app.Open("x.md", hostEnd); !errors.Is(err, ErrNotRunning) {
		t.Errorf("expected ErrNotRunning, got %v", err)
	}
}

func TestHandler_Endpoints(t *testing.T) {
	opts := testOptions(t)
	app := newTestApp(t, opts)
	path := writeDoc(t, opts.WorkspacePath, "doc.md", "# Hello\n\n![pic](file:///tmp/pic.png)\n")

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	get := func(p string) (*http.Response, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + p)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp, string(body)
	}

	resp, body := get("/healthz")
	if resp.StatusCode != http.StatusOK || body != "ok\n" {
		t.Errorf("healthz = %d %q", resp.StatusCode, body)
	}

	resp, body = get("/preview?path=" + url.QueryEscape(path))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("preview status = %d: %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, `<h1 id="hello">Hello</h1>`) {
		t.Errorf("preview missing heading: %s", body)
	}
	if !strings.Contains(body, `src="https://file+.vscode-resource.vscode-cdn.net/tmp/pic.png"`) {
		t.Errorf("preview image not rewritten: %s", body)
	}

	resp, _ = get("/preview?path=" + url.QueryEscape(filepath.Join(opts.WorkspacePath, "nope.md")))
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing preview status = %d", resp.StatusCode)
	}
	resp, _ = get("/preview")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("pathless preview status = %d", resp.StatusCode)
	}

	resp, body = get("/metrics")
	var snap MetricsSnapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		t.Fatalf("metrics body: %v", err)
	}
	if resp.StatusCode != http.StatusOK || snap.RenderCount != 1 {
		t.Errorf("metrics = %d %+v", resp.StatusCode, snap)
	}
}

func TestHandler_WebSocketSession(t *testing.T) {
	opts := testOptions(t)
	app := newTestApp(t, opts)
	path := writeDoc(t, opts.WorkspacePath, "live.md", "first\r\n")

	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?path=" + url.QueryEscape(path)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(channel.Message{Type: channel.TypeInit}); err != nil {
		t.Fatal(err)
	}
	var m channel.Message
	if err := conn.ReadJSON(&m); err != nil {
		t.Fatalf("read open: %v", err)
	}
	p, err := channel.Decode(m)
	if err != nil {
		t.Fatal(err)
	}
	open, ok := p.(channel.Open)
	if !ok {
		t.Fatalf("expected open, got %s", m.Type)
	}
	if open.Title != "live.md" || open.Content != "first\n" {
		t.Errorf("open = %q %q", open.Title, open.Content)
	}

	save, err := channel.Encode(channel.DoSave{Content: "second\n"})
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteJSON(save); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		data, _ := os.ReadFile(path)
		if string(data) == "second\n" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("doSave not written, file = %q", data)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHandler_WebSocketMissingFile(t *testing.T) {
	app := newTestApp(t, testOptions(t))
	srv := httptest.NewServer(app.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?path=" + url.QueryEscape("/does/not/exist.md")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %v", resp)
	}
}

func TestServeListener(t *testing.T) {
	app := newTestApp(t, testOptions(t))
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.ServeListener(ctx, ln) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err == nil {
			resp.Body.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server not reachable: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	ln2, _ := net.Listen("tcp", "127.0.0.1:0")
	if err := app.ServeListener(context.Background(), ln2); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("ServeListener() error = %v", err)
		}
	case <-time.After(shutdownGrace + time.Second):
		t.Fatal("ServeListener did not return")
	}
	if !app.IsShutdown() {
		t.Error("expected application shut down after serve")
	}
}
