package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/tapline/internal/infrastructure/config"
	"github.com/nerrad567/tapline/internal/infrastructure/logging"
	"github.com/nerrad567/tapline/internal/status"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"
)

// Channels are board sections with a prefix: session.connection,
// session.timers and so on. ChannelAll matches every section.
const (
	ChannelPrefix = "session."
	ChannelAll    = "session.*"
)

// clientQueueSize bounds the frames waiting for one client. A client that
// lets it fill up is disconnected.
const clientQueueSize = 64

// WSMessage is the envelope for every frame in both directions.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload lists channels for subscribe and unsubscribe.
type WSSubscribePayload struct {
	Channels []string `json:"channels"`
}

// inbound is the client-side view of WSMessage with the payload left raw.
type inbound struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Hub fans board updates out to WebSocket clients. It implements
// status.Sink.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Publish never blocks on a
//     client.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	closed  bool
}

// WSClient is one connected WebSocket peer.
type WSClient struct {
	hub   *Hub
	conn  *websocket.Conn
	board *status.Board

	mu       sync.RWMutex
	out      chan []byte
	dropped  bool
	sections map[status.Section]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The API listens on a local interface; browsers from any origin may
	// watch the board.
	CheckOrigin: func(*http.Request) bool { return true },
}

// NewHub creates a hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     wsDefaults(cfg),
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	clients := h.snapshotLocked()
	h.mu.Unlock()

	for _, c := range clients {
		c.drop()
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) snapshotLocked() []*WSClient {
	out := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) add(c *WSClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) remove(c *WSClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Publish sends one board update to the clients watching its section.
// Frame bytes are not sent; clients fetch GET /screenshot when the
// screenshot counter moves.
func (h *Hub) Publish(u status.Update) {
	h.mu.RLock()
	clients := h.snapshotLocked()
	h.mu.RUnlock()
	if len(clients) == 0 {
		return
	}

	data, err := eventFrame(u.Section, u.Snapshot.Part(u.Section))
	if err != nil {
		h.logger.Error("encoding websocket event", "section", u.Section, "error", err)
		return
	}

	sent := 0
	for _, c := range clients {
		if c.watches(u.Section) && c.enqueue(data) {
			sent++
		}
	}
	if sent > 0 {
		h.logger.Debug("board update pushed", "section", u.Section, "clients", sent)
	}
}

func eventFrame(section status.Section, payload any) ([]byte, error) {
	return json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: ChannelPrefix + string(section),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
}

// handleWebSocket upgrades the request and starts the client pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &WSClient{
		hub:      s.hub,
		conn:     conn,
		board:    s.board,
		out:      make(chan []byte, clientQueueSize),
		sections: make(map[status.Section]struct{}),
	}
	if !s.hub.add(c) {
		conn.Close()
		return
	}
	s.logger.Debug("websocket client connected",
		"remote", r.RemoteAddr,
		"clients", s.hub.ClientCount(),
	)

	go c.writeLoop()
	go c.readLoop()
}

// wsDefaults fills zero settings so the keepalive ticker never runs at 0.
func wsDefaults(cfg config.WebSocketConfig) config.WebSocketConfig {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 8192
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10
	}
	return cfg
}

func (h *Hub) pingInterval() time.Duration {
	return time.Duration(h.cfg.PingInterval) * time.Second
}

func (h *Hub) pongWait() time.Duration {
	return time.Duration(h.cfg.PongTimeout) * time.Second
}

// drop disconnects the client. Closing the queue stops writeLoop, which
// closes the socket and so ends readLoop.
func (c *WSClient) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.dropped {
		c.dropped = true
		close(c.out)
	}
}

// enqueue queues one frame. A full queue drops the client.
func (c *WSClient) enqueue(data []byte) bool {
	c.mu.Lock()
	if c.dropped {
		c.mu.Unlock()
		return false
	}
	select {
	case c.out <- data:
		c.mu.Unlock()
		return true
	default:
	}
	c.mu.Unlock()

	c.hub.logger.Warn("websocket client too slow, disconnecting")
	c.drop()
	return false
}

func (c *WSClient) readLoop() {
	defer func() {
		c.hub.remove(c)
		c.drop()
	}()

	deadline := c.hub.pingInterval() + c.hub.pongWait()
	extend := func() error { return c.conn.SetReadDeadline(time.Now().Add(deadline)) }

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	_ = extend() //nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Browsers that ignore protocol pings stay alive by talking.
		_ = extend() //nolint:errcheck // as above
		c.handle(data)
	}
}

func (c *WSClient) writeLoop() {
	ticker := time.NewTicker(c.hub.pingInterval())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		//nolint:errcheck // a failed deadline surfaces as a write error
		c.conn.SetWriteDeadline(time.Now().Add(c.hub.pongWait()))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case data, ok := <-c.out:
			if !ok {
				_ = write(websocket.CloseMessage, nil) //nolint:errcheck // closing anyway
				return
			}
			if err := write(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handle(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply("", WSTypeError, errorPayload("invalid JSON message"))
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.reply(msg.ID, WSTypePong, nil)
	case WSTypeSubscribe, WSTypeUnsubscribe:
		sections, err := parseChannels(msg.Payload)
		if err != nil {
			c.reply(msg.ID, WSTypeError, errorPayload(err.Error()))
			return
		}
		if msg.Type == WSTypeSubscribe {
			c.subscribe(msg.ID, sections)
		} else {
			c.unsubscribe(msg.ID, sections)
		}
	default:
		c.reply(msg.ID, WSTypeError, errorPayload("unknown message type: "+msg.Type))
	}
}

// subscribe adds sections and answers with their current content, so a
// new client needs no separate GET /state.
func (c *WSClient) subscribe(id string, sections []status.Section) {
	c.mu.Lock()
	for _, s := range sections {
		c.sections[s] = struct{}{}
	}
	c.mu.Unlock()

	state := make(map[string]any, len(sections))
	if c.board != nil {
		snap := c.board.Snapshot()
		for _, s := range sections {
			state[ChannelPrefix+string(s)] = snap.Part(s)
		}
	}
	c.reply(id, WSTypeResponse, map[string]any{
		"subscribed": channelNames(sections),
		"state":      state,
	})
}

func (c *WSClient) unsubscribe(id string, sections []status.Section) {
	c.mu.Lock()
	for _, s := range sections {
		delete(c.sections, s)
	}
	c.mu.Unlock()

	c.reply(id, WSTypeResponse, map[string]any{"unsubscribed": channelNames(sections)})
}

func (c *WSClient) watches(section status.Section) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.sections[section]
	return ok
}

func (c *WSClient) reply(id, kind string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      kind,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.enqueue(data)
}

func errorPayload(msg string) map[string]string {
	return map[string]string{"message": msg}
}

// parseChannels maps channel names to board sections. ChannelAll expands
// to every section.
func parseChannels(raw json.RawMessage) ([]status.Section, error) {
	var sub WSSubscribePayload
	if len(raw) == 0 {
		return nil, errInvalidChannels("channels required")
	}
	if err := json.Unmarshal(raw, &sub); err != nil || len(sub.Channels) == 0 {
		return nil, errInvalidChannels("channels required")
	}

	known := make(map[status.Section]bool)
	for _, s := range status.Sections() {
		known[s] = true
	}

	seen := make(map[status.Section]bool)
	var out []status.Section
	for _, ch := range sub.Channels {
		if ch == ChannelAll {
			for _, s := range status.Sections() {
				if !seen[s] {
					seen[s] = true
					out = append(out, s)
				}
			}
			continue
		}
		s := status.Section(strings.TrimPrefix(ch, ChannelPrefix))
		if !strings.HasPrefix(ch, ChannelPrefix) || !known[s] {
			return nil, errInvalidChannels("unknown channel: " + ch)
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}

type errInvalidChannels string

func (e errInvalidChannels) Error() string { return string(e) }

func channelNames(sections []status.Section) []string {
	out := make([]string, len(sections))
	for i, s := range sections {
		out[i] = ChannelPrefix + string(s)
	}
	return out
}
