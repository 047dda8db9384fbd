package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Suraj-creation/Sysmind-CLI/internal/engine"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// queueLen is how many frames may wait for a slow client before it is
	// dropped.
	queueLen = 8
)

// Event names carried in Message.Event.
const (
	EventReport  = "report"
	EventPending = "pending"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  512,
	WriteBufferSize: 8192,
	// Origin checks belong to the reverse proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// Source provides the report to broadcast.
type Source interface {
	Latest() (*engine.Report, bool)
}

// Message is the JSON envelope sent to clients. Data is nil while no report
// has been published yet.
type Message struct {
	Event string         `json:"event"`
	Data  *engine.Report `json:"data,omitempty"`
}

// Hub streams engine reports to websocket clients.
//
// Every client receives the current state on connect. After that the hub
// polls its Source every interval and pushes a frame only when a different
// report has been published. Clients never write; their reads serve only to
// process control frames.
type Hub struct {
	src      Source
	interval time.Duration

	mu    sync.Mutex
	peers map[*peer]struct{}
}

type peer struct {
	conn  *websocket.Conn
	queue chan *websocket.PreparedMessage
	once  sync.Once
	last  *engine.Report // guarded by Hub.mu
}

func (p *peer) close() { p.once.Do(func() { close(p.queue) }) }

// New creates a Hub that reads from src every interval.
func New(src Source, interval time.Duration) *Hub {
	return &Hub{src: src, interval: interval, peers: make(map[*peer]struct{})}
}

// Run pushes new reports until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	t := time.NewTicker(h.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for p := range h.peers {
				p.close()
				delete(h.peers, p)
			}
			h.mu.Unlock()
			return
		case <-t.C:
			h.publish()
		}
	}
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return // the upgrader has replied
	}

	rep, _ := h.src.Latest()
	p := &peer{conn: conn, queue: make(chan *websocket.PreparedMessage, queueLen), last: rep}
	first, err := frame(rep)
	if err != nil {
		slog.Warn("ws: encode report failed", "err", err)
		conn.Close()
		return
	}
	p.queue <- first

	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
	slog.Debug("ws: client connected", "remote", conn.RemoteAddr().String())

	go p.write()
	p.read()

	h.drop(p)
	slog.Debug("ws: client disconnected", "remote", conn.RemoteAddr().String())
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *Hub) drop(p *peer) {
	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
	p.close()
}

// publish sends the latest report to every client that has not received it.
// Clients whose queue is full are disconnected.
func (h *Hub) publish() {
	rep, ok := h.src.Latest()
	if !ok {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var msg *websocket.PreparedMessage
	for p := range h.peers {
		if p.last == rep {
			continue
		}
		if msg == nil {
			var err error
			if msg, err = frame(rep); err != nil {
				slog.Warn("ws: encode report failed", "err", err)
				return
			}
		}
		select {
		case p.queue <- msg:
			p.last = rep
		default:
			slog.Debug("ws: slow client dropped", "remote", p.conn.RemoteAddr().String())
			delete(h.peers, p)
			p.close()
		}
	}
}

// frame encodes rep once for all recipients. A nil rep yields a pending
// message.
func frame(rep *engine.Report) (*websocket.PreparedMessage, error) {
	msg := Message{Event: EventPending}
	if rep != nil {
		msg = Message{Event: EventReport, Data: rep}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("ws: encode: %w", err)
	}
	return websocket.NewPreparedMessage(websocket.TextMessage, data)
}

// write forwards queued frames and keeps the connection alive with pings.
// It closes the connection when the queue is closed or a write fails.
func (p *peer) write() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.queue:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := p.conn.WritePreparedMessage(msg); err != nil {
				return
			}
		case <-ping.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait)) //nolint:errcheck
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// read discards client frames and returns once the connection fails or the
// peer stops answering pings.
func (p *peer) read() {
	p.conn.SetReadLimit(512)
	p.conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			return
		}
	}
}
