package livereload

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Commands understood by the browser client.
const (
	CommandReload = "reload"
	CommandCSS    = "css"
)

// Message is sent to every connected browser.
type Message struct {
	Command string `json:"command"`
	Path    string `json:"path,omitempty"`
}

var (
	clientGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "assets_livereload_clients",
		Help: "Number of connected live-reload clients",
	})
	broadcastCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "assets_livereload_broadcasts_total",
		Help: "Reload notifications sent to browsers",
	}, []string{"command"})
	droppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "assets_livereload_dropped_total",
		Help: "Notifications dropped because a client was too slow",
	})
)

const (
	sendBuffer   = 16
	writeTimeout = 5 * time.Second
)

type client struct {
	conn *websocket.Conn
	send chan Message
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

// writeLoop owns all writes to the connection.
func (c *client) writeLoop() {
	defer c.conn.Close()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(time.Second))
}

type hub struct {
	lock    sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

func newHub() *hub {
	return &hub{clients: make(map[*client]struct{})}
}

func (h *hub) add(c *client) bool {
	h.lock.Lock()
	defer h.lock.Unlock()

	if h.closed {
		return false
	}

	h.clients[c] = struct{}{}
	clientGauge.Inc()
	return true
}

func (h *hub) remove(c *client) {
	h.lock.Lock()
	defer h.lock.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		clientGauge.Dec()
		c.close()
	}
}

func (h *hub) count() int {
	h.lock.Lock()
	defer h.lock.Unlock()

	return len(h.clients)
}

// broadcast queues msg for every client without blocking and returns the number of clients
// that received it.
func (h *hub) broadcast(msg Message) int {
	h.lock.Lock()
	defer h.lock.Unlock()

	broadcastCounter.WithLabelValues(msg.Command).Inc()
	sent := 0
	for c := range h.clients {
		select {
		case c.send <- msg:
			sent++
		default:
			droppedCounter.Inc()
		}
	}

	return sent
}

func (h *hub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		clientGauge.Dec()
		c.close()
	}
}
