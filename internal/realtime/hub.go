// Package realtime pushes notification and reminder events to connected
// viewers over websockets.
package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	appErrors "github.com/charlesng35/learnhub/pkg/errors"
	"github.com/charlesng35/learnhub/pkg/logger"
	"github.com/charlesng35/learnhub/pkg/metrics"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = pongWait * 9 / 10

	// Clients only send small control frames.
	maxControlFrame = 4 << 10

	defaultSendBuffer = 64
)

// ErrHubClosed is returned by Serve once Close has been called.
var ErrHubClosed = errors.New("realtime: hub closed")

// Message is the JSON frame delivered to clients.
type Message struct {
	Stream string         `json:"stream"`
	Event  string         `json:"event"`
	Data   any            `json:"data,omitempty"`
	Meta   map[string]any `json:"meta,omitempty"`
}

// controlFrame is what clients send to change their subscriptions.
type controlFrame struct {
	Action  string   `json:"action"`
	Streams []string `json:"streams,omitempty"`
}

// Session identifies the viewer behind a connection and its initial streams.
type Session struct {
	UserID  string
	Streams []string
}

// route addresses the connections of one viewer on one stream.
type route struct {
	stream string
	userID string
}

// Option configures a Hub.
type Option func(*Hub)

// WithStreams replaces the set of streams clients may subscribe to.
func WithStreams(streams ...string) Option {
	return func(h *Hub) {
		h.streams = make(map[string]struct{}, len(streams))
		for _, stream := range NormalizeStreams(streams) {
			h.streams[stream] = struct{}{}
		}
	}
}

// WithAllowedOrigins admits browser upgrades from these origins in addition
// to the server's own host. Entries are origins such as
// "https://learn.example.edu".
func WithAllowedOrigins(origins ...string) Option {
	return func(h *Hub) {
		for _, origin := range origins {
			if host := originHost(origin); host != "" {
				h.origins[host] = struct{}{}
			}
		}
	}
}

// WithSendBuffer sets how many frames may queue per connection before the
// connection is dropped as too slow.
func WithSendBuffer(size int) Option {
	return func(h *Hub) {
		if size > 0 {
			h.buffer = size
		}
	}
}

// Hub tracks websocket connections by viewer and stream.
type Hub struct {
	mu     sync.RWMutex
	routes map[route]map[*conn]struct{}
	conns  map[*conn]struct{}
	closed bool

	streams  map[string]struct{}
	origins  map[string]struct{}
	buffer   int
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub constructs a hub publishing DefaultStreams.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		routes:  make(map[route]map[*conn]struct{}),
		conns:   make(map[*conn]struct{}),
		origins: make(map[string]struct{}),
		buffer:  defaultSendBuffer,
		log:     logger.WithModule("realtime"),
	}
	WithStreams(DefaultStreams...)(h)
	for _, opt := range opts {
		opt(h)
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Known reports whether clients may subscribe to stream.
func (h *Hub) Known(stream string) bool {
	_, ok := h.streams[NormalizeStream(stream)]
	return ok
}

// Serve upgrades the request and blocks until the connection ends. Unknown
// streams are rejected with appErrors.ErrUnknownStream before the upgrade,
// so the caller can still write an HTTP error.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, session Session) error {
	streams := NormalizeStreams(session.Streams)
	for _, stream := range streams {
		if !h.Known(stream) {
			return appErrors.ErrUnknownStream.WithMessage(fmt.Sprintf("unknown realtime stream %q", stream))
		}
	}
	if h.isClosed() {
		return ErrHubClosed
	}

	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Debug("websocket upgrade failed", zap.String("user_id", session.UserID), zap.Error(err))
		return nil
	}

	c := &conn{
		hub:     h,
		socket:  socket,
		userID:  session.UserID,
		streams: make(map[string]struct{}),
		out:     make(chan Message, h.buffer),
		done:    make(chan struct{}),
	}
	if !h.attach(c) {
		_ = socket.Close()
		return ErrHubClosed
	}
	metrics.RealtimeConnections.Inc()
	h.join(c, streams)

	go c.writePump()
	c.readPump()
	return nil
}

// BroadcastToUser sends message to userID's connections on stream.
func (h *Hub) BroadcastToUser(stream, userID string, message Message) {
	stream = NormalizeStream(stream)
	if stream == "" || userID == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.routes[route{stream: stream, userID: userID}] {
		h.deliver(c, message)
	}
}

// BroadcastStream sends message to every connection on stream.
func (h *Hub) BroadcastStream(stream string, message Message) {
	stream = NormalizeStream(stream)
	if stream == "" {
		return
	}
	message.Stream = stream

	h.mu.RLock()
	defer h.mu.RUnlock()
	for key, conns := range h.routes {
		if key.stream != stream {
			continue
		}
		for c := range conns {
			h.deliver(c, message)
		}
	}
}

// Subscribers counts userID's connections on stream.
func (h *Hub) Subscribers(stream, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.routes[route{stream: NormalizeStream(stream), userID: userID}])
}

// Connections counts open connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close disconnects every client and rejects new ones. http.Server.Shutdown
// does not track hijacked connections, so the server calls this itself.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	open := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		open = append(open, c)
	}
	h.mu.Unlock()

	for _, c := range open {
		c.shutdown()
	}
}

func (h *Hub) isClosed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

func (h *Hub) attach(c *conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.conns[c] = struct{}{}
	return true
}

func (h *Hub) join(c *conn, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, stream := range streams {
		if _, on := c.streams[stream]; on {
			continue
		}
		key := route{stream: stream, userID: c.userID}
		if h.routes[key] == nil {
			h.routes[key] = make(map[*conn]struct{})
		}
		h.routes[key][c] = struct{}{}
		c.streams[stream] = struct{}{}
	}
}

func (h *Hub) leave(c *conn, streams []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, stream := range streams {
		h.leaveLocked(c, stream)
	}
}

func (h *Hub) detach(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for stream := range c.streams {
		h.leaveLocked(c, stream)
	}
	delete(h.conns, c)
}

func (h *Hub) leaveLocked(c *conn, stream string) {
	delete(c.streams, stream)
	key := route{stream: stream, userID: c.userID}
	if conns := h.routes[key]; conns != nil {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.routes, key)
		}
	}
}

// deliver runs under h.mu; a connection whose buffer is full is shut down
// from another goroutine because shutdown needs the write lock.
func (h *Hub) deliver(c *conn, message Message) {
	if c.offer(message) {
		return
	}
	h.log.Warn("dropping slow realtime client", zap.String("user_id", c.userID), zap.String("stream", message.Stream))
	go c.shutdown()
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Native clients do not send an origin.
		return true
	}
	host := originHost(origin)
	if host == "" {
		return false
	}
	if strings.EqualFold(host, r.Host) {
		return true
	}
	_, ok := h.origins[host]
	return ok
}

func originHost(origin string) string {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host)
}

// conn is one websocket client. streams is guarded by hub.mu.
type conn struct {
	hub     *Hub
	socket  *websocket.Conn
	userID  string
	streams map[string]struct{}

	out      chan Message
	done     chan struct{}
	stopOnce sync.Once
}

// offer queues message without blocking. It reports false only when the
// buffer is full; frames for a stopped connection are discarded.
func (c *conn) offer(message Message) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.out <- message:
		return true
	case <-c.done:
		return true
	default:
		return false
	}
}

// shutdown stops delivery. The write pump then sends a close frame and
// releases the socket, which also unblocks the read pump.
func (c *conn) shutdown() {
	c.stopOnce.Do(func() {
		close(c.done)
		c.hub.detach(c)
		metrics.RealtimeConnections.Dec()
	})
}

func (c *conn) readPump() {
	defer c.shutdown()

	c.socket.SetReadLimit(maxControlFrame)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.hub.log.Debug("websocket closed", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if len(payload) > 0 {
			c.handleControl(payload)
		}
	}
}

func (c *conn) handleControl(payload []byte) {
	var frame controlFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		c.offer(Message{Event: EventError, Data: "malformed control frame"})
		return
	}

	streams := NormalizeStreams(frame.Streams)
	switch strings.ToLower(strings.TrimSpace(frame.Action)) {
	case "subscribe":
		for _, stream := range streams {
			if !c.hub.Known(stream) {
				c.offer(Message{Event: EventError, Data: fmt.Sprintf("unknown stream %q", stream)})
				return
			}
		}
		c.hub.join(c, streams)
		c.offer(Message{Event: EventSubscribed, Data: streams})
	case "unsubscribe":
		c.hub.leave(c, streams)
		c.offer(Message{Event: EventUnsubscribed, Data: streams})
	case "ping":
		c.offer(Message{Event: EventPong})
	default:
		c.offer(Message{Event: EventError, Data: fmt.Sprintf("unsupported action %q", frame.Action)})
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.shutdown()
		_ = c.socket.Close()
	}()

	for {
		select {
		case message := <-c.out:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.socket.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
				time.Now().Add(writeWait))
			return
		}
	}
}
