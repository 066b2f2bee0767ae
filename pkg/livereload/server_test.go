package livereload

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestInjectClient(t *testing.T) {
	tests := []struct {
		page string
		want string
	}{
		{"<html><body><p>x</p></body></html>", `<html><body><p>x</p><script src="/__assets/client.js"></script></body></html>`},
		{"<HTML><BODY></BODY></HTML>", `<HTML><BODY><script src="/__assets/client.js"></script></BODY></HTML>`},
		{"<p>fragment</p>", `<p>fragment</p><script src="/__assets/client.js"></script>`},
	}

	for _, test := range tests {
		got := string(injectClient([]byte(test.page)))
		if got != test.want {
			t.Errorf("injectClient(%q) = %q, want %q", test.page, got, test.want)
		}
	}
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	root := t.TempDir()
	files := map[string]string{
		"index.html":        "<html><body>home</body></html>",
		"about.html":        "<html><body>about</body></html>",
		"css/style.min.css": "body{color:red}",
	}
	for name, content := range files {
		target := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	srv := New(Options{Root: root, Metrics: true})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return srv, ts
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	return resp, string(body)
}

func TestServeStatic(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := get(t, ts.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / returned %d", resp.StatusCode)
	}
	if !strings.Contains(body, "home") || !strings.Contains(body, clientPath) {
		t.Errorf("index page is missing content or client script: %q", body)
	}

	_, body = get(t, ts.URL+"/about.html")
	if !strings.Contains(body, "about") || !strings.Contains(body, clientPath) {
		t.Errorf("about page is missing content or client script: %q", body)
	}

	resp, body = get(t, ts.URL+"/css/style.min.css")
	if body != "body{color:red}" {
		t.Errorf("stylesheet was modified: %q", body)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers are missing")
	}

	resp, _ = get(t, ts.URL+"/missing.html")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET /missing.html returned %d, want 404", resp.StatusCode)
	}

	resp, body = get(t, ts.URL+clientPath)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "WebSocket") {
		t.Errorf("client script not served (status %d)", resp.StatusCode)
	}

	resp, body = get(t, ts.URL+metricsPath)
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, "assets_livereload_clients") {
		t.Errorf("metrics not served (status %d)", resp.StatusCode)
	}
}

func waitForClients(t *testing.T, srv *Server, want int) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for srv.Clients() != want {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", want, srv.Clients())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcast(t *testing.T) {
	srv, ts := newTestServer(t)

	// notifications without any browsers go nowhere
	srv.Reload()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + socketPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	waitForClients(t, srv, 1)

	srv.ReloadCSS("css/style.min.css")
	srv.Reload()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Command != CommandCSS || msg.Path != "css/style.min.css" {
		t.Errorf("unexpected first message %+v", msg)
	}

	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg.Command != CommandReload {
		t.Errorf("unexpected second message %+v", msg)
	}

	conn.Close()
	waitForClients(t, srv, 0)
}

func TestServeShutdown(t *testing.T) {
	srv := New(Options{Root: t.TempDir(), Address: "127.0.0.1:0"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ctx)
	}()

	select {
	case <-srv.Ready():
	case err := <-done:
		t.Fatalf("Serve returned early: %v", err)
	}

	resp, _ := get(t, "http://"+srv.Addr().String()+clientPath)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("client script returned %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve failed: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
