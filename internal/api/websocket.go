package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/time/rate"

	"arena-brawl/internal/game"
)

const (
	// MaxWSConnectionsPerIP is the maximum WebSocket connections per IP
	MaxWSConnectionsPerIP = 10

	// maxPendingEvents caps game events buffered between broadcasts.
	maxPendingEvents = 1024

	wsWriteWait      = 5 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = wsPongWait * 9 / 10
	wsMaxMessageSize = 4096
	wsSendBuffer     = 32

	// Inbound frame budget per connection.
	wsInputRate  = 120
	wsInputBurst = 120
)

// Outbound event names.
const (
	EventGameState = "game:state"
	EventGameLog   = "game:events"
	EventGameOver  = "game:over"
	EventJoined    = "player:joined"
	EventError     = "error"
)

// wsFormat is the wire encoding negotiated per connection.
type wsFormat uint8

const (
	formatJSON wsFormat = iota
	formatMsgpack
)

// wsEnvelope wraps every outbound message.
type wsEnvelope struct {
	Event string      `json:"event" msgpack:"event"`
	Data  interface{} `json:"data" msgpack:"data"`
}

// wsInbound is a client frame, JSON text or msgpack binary.
type wsInbound struct {
	Type   string `json:"type" msgpack:"type"`
	Name   string `json:"name,omitempty" msgpack:"name,omitempty"`
	Player int    `json:"player" msgpack:"player"`
	Left   bool   `json:"left" msgpack:"left"`
	Right  bool   `json:"right" msgpack:"right"`
	Jump   bool   `json:"jump" msgpack:"jump"`
	Attack bool   `json:"attack" msgpack:"attack"`
}

// eventBatch is the payload of a game:events message.
type eventBatch struct {
	MatchID string       `json:"matchId" msgpack:"matchId"`
	Events  []game.Event `json:"events" msgpack:"events"`
}

// outbound holds one message encoded for each format in use.
type outbound struct {
	json    []byte
	msgpack []byte
}

// wsClient tracks a WebSocket connection with its source IP. A client
// drives only the player it joined, unless it connected with admin rights.
type wsClient struct {
	conn   *websocket.Conn
	ip     string
	format wsFormat
	send   chan outbound

	admin bool
	slot  int // joined player, owned by readPump
}

// WebSocketHub manages all WebSocket connections with DoS protection
type WebSocketHub struct {
	engine EngineInterface

	clients    map[*wsClient]bool
	formats    [2]int
	broadcast  chan outbound
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex

	upgrader   websocket.Upgrader
	origins    *OriginPolicy
	maxClients int
	wsLimiter  *WebSocketRateLimiter
	sessions   *SessionManager

	pendingMu      sync.Mutex
	pending        []eventBatch
	pendingCount   int
	pendingDropped uint64

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewWebSocketHub creates a hub serving engine. maxClients <= 0 means no
// total cap. Connections authorized by sessions may drive any player; a
// nil sessions allows none of them to.
func NewWebSocketHub(engine EngineInterface, origins *OriginPolicy, sessions *SessionManager, maxClients int) *WebSocketHub {
	if origins == nil {
		origins = NewOriginPolicy([]string{"*"})
	}
	h := &WebSocketHub{
		engine:     engine,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan outbound, 256),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		origins:    origins,
		maxClients: maxClients,
		wsLimiter:  NewWebSocketRateLimiter(MaxWSConnectionsPerIP),
		sessions:   sessions,
		stopChan:   make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *WebSocketHub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if h.origins.Allowed(origin) {
		return true
	}
	log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
	RecordConnectionRejected("origin")
	return false
}

// Run starts the hub. It returns after Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.stopChan:
			h.mu.Lock()
			for c := range h.clients {
				h.dropLocked(c)
			}
			h.mu.Unlock()
			UpdateWSConnections(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.formats[client.format]++
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client connected from %s (%d total)", client.ip, count)
			UpdateWSConnections(count)

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				h.dropLocked(client)
			}
			count := len(h.clients)
			h.mu.Unlock()

			log.Printf("📱 Client disconnected (%d remaining)", count)
			UpdateWSConnections(count)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client, skip this frame (backpressure)
				}
			}
			h.mu.RUnlock()
			IncrementWSMessages("out")
		}
	}
}

// dropLocked removes c. The write pump closes the connection when send
// is closed. Caller holds h.mu.
func (h *WebSocketHub) dropLocked(c *wsClient) {
	delete(h.clients, c)
	h.formats[c.format]--
	h.wsLimiter.Release(c.ip)
	close(c.send)
}

// Stop disconnects every client and ends Run and the broadcast loop.
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

// Broadcast sends a message to all connected clients
func (h *WebSocketHub) Broadcast(event string, data interface{}) {
	msg, ok := h.encode(wsEnvelope{Event: event, Data: data})
	if !ok {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		// Channel full, skip (backpressure)
	}
}

// encode marshals env once per format that has at least one client.
func (h *WebSocketHub) encode(env wsEnvelope) (outbound, bool) {
	h.mu.RLock()
	needJSON, needMsgpack := h.formats[formatJSON] > 0, h.formats[formatMsgpack] > 0
	h.mu.RUnlock()

	var msg outbound
	var err error
	if needJSON {
		if msg.json, err = json.Marshal(env); err != nil {
			log.Printf("⚠️ WebSocket JSON encode failed for %s: %v", env.Event, err)
			return msg, false
		}
	}
	if needMsgpack {
		if msg.msgpack, err = msgpack.Marshal(env); err != nil {
			log.Printf("⚠️ WebSocket msgpack encode failed for %s: %v", env.Event, err)
			return msg, false
		}
	}
	return msg, needJSON || needMsgpack
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// PushEvents buffers game events for the next broadcast. Wired as the
// engine's OnEvents callback; events are copied.
func (h *WebSocketHub) PushEvents(matchID string, events []game.Event) {
	if len(events) == 0 {
		return
	}

	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()

	room := maxPendingEvents - h.pendingCount
	if room <= 0 {
		h.pendingDropped += uint64(len(events))
		return
	}
	if len(events) > room {
		h.pendingDropped += uint64(len(events) - room)
		events = events[:room]
	}

	n := len(h.pending)
	if n == 0 || h.pending[n-1].MatchID != matchID {
		h.pending = append(h.pending, eventBatch{MatchID: matchID})
		n++
	}
	h.pending[n-1].Events = append(h.pending[n-1].Events, events...)
	h.pendingCount += len(events)
}

// takePending returns and clears buffered events.
func (h *WebSocketHub) takePending() []eventBatch {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	batches := h.pending
	h.pending = nil
	h.pendingCount = 0
	return batches
}

// StartBroadcastLoop broadcasts the snapshot and buffered events every
// interval until Stop.
func (h *WebSocketHub) StartBroadcastLoop(interval time.Duration) {
	if interval <= 0 {
		interval = 100 * time.Millisecond // 10 updates per second
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.stopChan:
				return
			case <-ticker.C:
				h.broadcastOnce()
			}
		}
	}()
}

func (h *WebSocketHub) broadcastOnce() {
	if stats := h.engine.EventLogStats(); stats != nil {
		total, _ := stats["total"].(uint64)
		dropped, _ := stats["dropped"].(uint64)
		UpdateEventLogStats(total, dropped)
	}

	batches := h.takePending()
	if h.ClientCount() == 0 {
		return
	}

	h.Broadcast(EventGameState, h.engine.Snapshot())
	for _, b := range batches {
		h.Broadcast(EventGameLog, b)
	}
}

// HandleWebSocket handles incoming WebSocket connections with DoS protection.
// "?format=msgpack" selects binary msgpack frames.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if h.maxClients > 0 && h.ClientCount() >= h.maxClients {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", h.maxClients)
		RecordConnectionRejected("ws_total_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}

	if !h.wsLimiter.Allow(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	format := formatJSON
	if r.URL.Query().Get("format") == "msgpack" {
		format = formatMsgpack
	}
	admin := h.sessions != nil && h.sessions.Enabled() && h.sessions.Authorized(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.wsLimiter.Release(ip) // Release the slot we reserved
		return
	}

	client := &wsClient{
		conn:   conn,
		ip:     ip,
		format: format,
		send:   make(chan outbound, wsSendBuffer),
		admin:  admin,
		slot:   game.NoPlayer,
	}

	select {
	case h.register <- client:
	case <-h.stopChan:
		h.wsLimiter.Release(ip)
		conn.Close()
		return
	}

	go h.writePump(client)
	go h.readPump(client)
}

// writePump is the only writer on c.conn.
func (h *WebSocketHub) writePump(c *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) write(msg outbound) error {
	if c.format == formatMsgpack {
		if msg.msgpack == nil {
			return nil
		}
		return c.conn.WriteMessage(websocket.BinaryMessage, msg.msgpack)
	}
	if msg.json == nil {
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, msg.json)
}

// readPump applies frames from c until the connection closes. The player
// c joined leaves with it.
func (h *WebSocketHub) readPump(c *wsClient) {
	defer func() {
		if c.slot != game.NoPlayer {
			if err := h.engine.RemovePlayer(c.slot); err == nil {
				log.Printf("👋 Player %d left with its connection", c.slot)
			}
		}
		select {
		case h.unregister <- c:
		case <-h.stopChan:
		}
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	limiter := rate.NewLimiter(wsInputRate, wsInputBurst)
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		IncrementWSMessages("in")

		if !limiter.Allow() {
			continue
		}
		if err := h.handleInbound(c, kind, data); err != nil {
			h.reply(c, EventError, errorBody{Error: err.Error()})
		}
	}
}

var (
	errBadFrame     = errors.New("malformed frame")
	errUnknownFrame = errors.New("unknown frame type")
	errJoined       = errors.New("connection already joined a player")
	errForeignSlot  = errors.New("player not controlled by this connection")
)

func (h *WebSocketHub) handleInbound(c *wsClient, kind int, data []byte) error {
	var in wsInbound
	var err error
	if kind == websocket.BinaryMessage {
		err = msgpack.Unmarshal(data, &in)
	} else {
		err = json.Unmarshal(data, &in)
	}
	if err != nil {
		return errBadFrame
	}

	switch in.Type {
	case "join":
		if c.slot != game.NoPlayer {
			return errJoined
		}
		req := joinRequest{Name: in.Name}
		if err := req.validate(); err != nil {
			return err
		}
		slot, err := h.engine.AddPlayer(req.Name, false, "")
		if err != nil {
			return err
		}
		c.slot = slot
		h.reply(c, EventJoined, map[string]interface{}{"slot": slot, "name": req.Name})
		return nil
	case "input":
		if !c.admin && (c.slot == game.NoPlayer || in.Player != c.slot) {
			return errForeignSlot
		}
		return h.engine.SetInput(in.Player, game.InputState{
			Left:   in.Left,
			Right:  in.Right,
			Jump:   in.Jump,
			Attack: in.Attack,
		})
	default:
		return errUnknownFrame
	}
}

// reply sends one message to c only.
func (h *WebSocketHub) reply(c *wsClient, event string, data interface{}) {
	env := wsEnvelope{Event: event, Data: data}
	var msg outbound
	var err error
	if c.format == formatMsgpack {
		msg.msgpack, err = msgpack.Marshal(env)
	} else {
		msg.json, err = json.Marshal(env)
	}
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}
