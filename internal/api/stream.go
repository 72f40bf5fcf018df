package api

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingEvery        = 45 * time.Second
	maxInboundBytes  = 4 * 1024

	// evictAfterDrops bounds how far a stalled consumer may lag the feed:
	// at the default 100ms snapshot cadence this is roughly three seconds
	// of sustained backpressure before the connection is cut.
	evictAfterDrops = 32
)

// filterRequest is the only frame a dashboard client may send: a market
// filter. An operator watching one market should not receive signal and
// fill pushes for every market the taker scans; an empty list clears the
// filter. Snapshot and hard-stop frames are delivered regardless.
type filterRequest struct {
	Type    string   `json:"type"` // "filter"
	Markets []string `json:"markets"`
}

// Hub is the set of live dashboard connections. Unlike the trading-side
// channels, fan-out here is lossy: a slow browser drops frames and is
// eventually evicted; it never backpressures the process.
type Hub struct {
	logger *slog.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger.With("component", "ws-hub"),
		clients: make(map[*Client]struct{}),
	}
}

// ClientCount returns the number of connected dashboard clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast marshals evt once and offers it to every connection whose
// market filter admits it. Snapshot and hard-stop frames bypass the filter:
// they carry process-wide state an operator must always see. Clients that
// have dropped evictAfterDrops consecutive frames are evicted here, so a
// consumer that never reads again still gets cut.
func (h *Hub) Broadcast(evt DashboardEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("failed to marshal dashboard event", "error", err, "type", evt.Type)
		return
	}
	critical := evt.Type == "snapshot" || evt.Type == "hard_stop"

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !critical && !c.wants(evt.Market) {
			continue
		}
		if c.offer(data) {
			continue
		}
		if c.drops >= evictAfterDrops {
			delete(h.clients, c)
			c.shut()
			h.logger.Warn("evicting stalled dashboard client", "dropped_frames", c.drops)
		}
	}
}

// ServeClient attaches an upgraded connection to the hub and blocks until
// it disconnects or is evicted. initial, if non-empty, is queued as the
// first frame (the connect-time snapshot).
func (h *Hub) ServeClient(conn *websocket.Conn, initial []byte) {
	c := &Client{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		done: make(chan struct{}),
	}
	if len(initial) > 0 {
		c.send <- initial
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("dashboard client connected", "count", n)

	go c.writeLoop()
	go func() {
		// An eviction closes done while the read loop is parked inside
		// ReadMessage; closing the socket is what unblocks it.
		<-c.done
		conn.Close()
	}()

	c.readLoop(h.logger)
	c.shut()

	h.mu.Lock()
	delete(h.clients, c)
	n = len(h.clients)
	h.mu.Unlock()
	h.logger.Info("dashboard client disconnected", "count", n)
}

// Client is one dashboard connection plus its market filter.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	drops int // consecutive offer failures, guarded by the hub mutex

	mu      sync.Mutex
	markets map[string]struct{} // nil admits every market
}

func (c *Client) shut() { c.once.Do(func() { close(c.done) }) }

// offer enqueues a frame without blocking; a full buffer counts a drop.
// Called only under the hub mutex.
func (c *Client) offer(data []byte) bool {
	select {
	case c.send <- data:
		c.drops = 0
		return true
	default:
		c.drops++
		return false
	}
}

// wants reports whether the client's filter admits a market. Frames with no
// market attached always pass.
func (c *Client) wants(market string) bool {
	if market == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.markets == nil {
		return true
	}
	_, ok := c.markets[market]
	return ok
}

func (c *Client) setFilter(markets []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(markets) == 0 {
		c.markets = nil
		return
	}
	c.markets = make(map[string]struct{}, len(markets))
	for _, m := range markets {
		c.markets[m] = struct{}{}
	}
}

// writeLoop drains the send buffer to the socket and keepalive-pings it.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.shut()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shut()
				return
			}
		}
	}
}

// readLoop consumes inbound frames, accepting only filter requests;
// anything else is ignored. Returns once the socket drops.
func (c *Client) readLoop(logger *slog.Logger) {
	defer c.shut()

	c.conn.SetReadLimit(maxInboundBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn("dashboard websocket error", "error", err)
			}
			return
		}
		var req filterRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Type != "filter" {
			logger.Debug("ignoring unrecognized dashboard frame")
			continue
		}
		c.setFilter(req.Markets)
	}
}
