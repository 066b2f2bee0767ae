// Package livereload implements the development server: it serves the source tree, injects a
// small client into HTML pages and tells connected browsers to reload over a websocket.
package livereload

import (
	"bytes"
	"context"
	_ "embed"
	"io"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/unrolled/secure"

	"github.com/Den107/gulp-plus-webpack/pkg/buildsys"
)

const (
	socketPath  = "/__assets/ws"
	clientPath  = "/__assets/client.js"
	metricsPath = "/__assets/metrics"
)

//go:embed client.js
var clientScript []byte

var clientTag = []byte(`<script src="` + clientPath + `"></script>`)

// Options configure a Server.
type Options struct {
	// Root is the directory served at "/".
	Root string
	// Address is the TCP address to listen on, e.g. 127.0.0.1:3000.
	Address string
	// Metrics enables the Prometheus endpoint.
	Metrics bool
}

// Server is a live-reload development server. The zero value is not usable; call New.
type Server struct {
	opts     Options
	hub      *hub
	upgrader websocket.Upgrader
	files    http.Handler

	addrLock  sync.Mutex
	addr      net.Addr
	ready     chan struct{}
	readyOnce sync.Once
}

// New creates a server for the given options. Nothing is started until Serve is called.
func New(opts Options) *Server {
	return &Server{
		opts:  opts,
		hub:   newHub(),
		files: http.FileServer(http.Dir(opts.Root)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ready: make(chan struct{}),
	}
}

// Handler returns the HTTP handler including all middlewares.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc(socketPath, s.serveSocket)
	r.HandleFunc(clientPath, serveClient).Methods(http.MethodGet, http.MethodHead)
	if s.opts.Metrics {
		r.Handle(metricsPath, promhttp.Handler())
	}
	r.PathPrefix("/").HandlerFunc(s.serveStatic)

	sm := secure.New(secure.Options{
		IsDevelopment:      true,
		BrowserXssFilter:   true,
		ContentTypeNosniff: true,
	})

	return sm.Handler(logMiddleware(r))
}

// Serve listens on the configured address and blocks until ctx is cancelled or the listener
// fails. Connected browsers are disconnected on shutdown.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return eris.Wrapf(err, "failed to listen on %s", s.opts.Address)
	}

	s.addrLock.Lock()
	s.addr = listener.Addr()
	s.addrLock.Unlock()
	s.readyOnce.Do(func() { close(s.ready) })

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	errs := make(chan error, 1)
	go func() {
		errs <- srv.Serve(listener)
	}()

	buildsys.Log(ctx).Info().Msgf("Serving %s on http://%s", s.opts.Root, listener.Addr())

	select {
	case err = <-errs:
		s.hub.closeAll()
		return eris.Wrap(err, "development server failed")
	case <-ctx.Done():
	}

	s.hub.closeAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err = srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "failed to stop development server")
	}

	return nil
}

// Ready is closed once Serve is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the address Serve listens on or nil if it hasn't started yet.
func (s *Server) Addr() net.Addr {
	s.addrLock.Lock()
	defer s.addrLock.Unlock()

	return s.addr
}

// Clients returns the number of connected browsers.
func (s *Server) Clients() int {
	return s.hub.count()
}

// Reload asks all browsers to reload the page. It never blocks; browsers that can't keep up
// miss the notification.
func (s *Server) Reload(paths ...string) {
	msg := Message{Command: CommandReload}
	if len(paths) > 0 {
		msg.Path = paths[0]
	}

	s.hub.broadcast(msg)
}

// ReloadCSS asks all browsers to swap the given stylesheets without a page reload. Browsers
// which don't link any of them reload the page instead.
func (s *Server) ReloadCSS(paths ...string) {
	if len(paths) == 0 {
		s.hub.broadcast(Message{Command: CommandCSS})
		return
	}

	for _, item := range paths {
		s.hub.broadcast(Message{Command: CommandCSS, Path: item})
	}
}

func (s *Server) serveSocket(rw http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		// Upgrade already responded with an error
		buildsys.Log(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan Message, sendBuffer)}
	if !s.hub.add(c) {
		conn.Close()
		return
	}

	go c.writeLoop()

	// The client never sends anything; reading only processes control frames until the
	// connection goes away.
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}

	s.hub.remove(c)
}

func serveClient(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	rw.Header().Set("Cache-Control", "no-cache")
	http.ServeContent(rw, r, "client.js", time.Time{}, bytes.NewReader(clientScript))
}

func (s *Server) serveStatic(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Cache-Control", "no-cache")

	name := path.Clean("/" + r.URL.Path)
	if strings.HasSuffix(r.URL.Path, "/") {
		name = path.Join(name, "index.html")
	}

	if path.Ext(name) != ".html" {
		s.files.ServeHTTP(rw, r)
		return
	}

	f, err := http.Dir(s.opts.Root).Open(name)
	if err != nil {
		s.files.ServeHTTP(rw, r)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		s.files.ServeHTTP(rw, r)
		return
	}

	content, err := io.ReadAll(f)
	if err != nil {
		buildsys.Log(r.Context()).Error().Err(err).Str("path", name).Msg("failed to read page")
		http.Error(rw, "failed to read page", http.StatusInternalServerError)
		return
	}

	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	http.ServeContent(rw, r, name, info.ModTime(), bytes.NewReader(injectClient(content)))
}

// injectClient inserts the client script before the closing body tag or appends it if the page
// has none.
func injectClient(page []byte) []byte {
	pos := bytes.LastIndex(bytes.ToLower(page), []byte("</body>"))
	if pos == -1 {
		return append(page, clientTag...)
	}

	result := make([]byte, 0, len(page)+len(clientTag))
	result = append(result, page[:pos]...)
	result = append(result, clientTag...)
	return append(result, page[pos:]...)
}
