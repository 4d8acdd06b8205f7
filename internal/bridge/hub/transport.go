package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
)

// upgrader is shared across connections; grounded on
// bhandras-delight/server/internal/websocket/simple.go's upgrader setup.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one connected websocket peer: a serialized writer task reading
// from a buffered channel (spec §5 "writes to each client socket are
// serialized per client"), fed by the hub's broadcast.
type client struct {
	id   int
	conn *websocket.Conn
	out  chan []byte
	done chan struct{}
}

func (c *client) send(data []byte, logger interface{ Warn(string, ...any) }) {
	select {
	case c.out <- data:
		return
	default:
	}
	// Buffer full: drop the oldest queued frame with a diagnostic, then retry
	// once; the client itself stays connected (grounded on
	// bramble/remote/broadcaster.go's broadcast backpressure).
	select {
	case <-c.out:
		logger.Warn("hub: dropping oldest queued frame for slow client", "clientId", c.id)
	default:
	}
	select {
	case c.out <- data:
	default:
		logger.Warn("hub: could not deliver frame to client", "clientId", c.id)
	}
}

// ServeHTTP upgrades the connection, replays history per the query
// parameters, then runs the read and write pumps until either side closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("hub: websocket upgrade failed", "error", err)
		return
	}

	h.clientMu.Lock()
	id := h.nextClientID
	h.nextClientID++
	c := &client{id: id, conn: conn, out: make(chan []byte, clientBufferSize), done: make(chan struct{})}
	h.clients[id] = c
	h.clientMu.Unlock()

	// writePump must be draining c.out before replayTo queues anything: c.send
	// is a non-blocking drop-oldest path, and a replay slice longer than
	// clientBufferSize would otherwise have its oldest frames silently
	// dropped before anything reads them (spec §8 "the replay slice equals
	// the full retained ring, in order").
	go h.writePump(c)

	h.replayTo(c, parseReplayQuery(r))
	if h.sup.AuthPending() {
		h.sendAuthURL(c)
	}

	h.readPump(r.Context(), c)

	h.clientMu.Lock()
	delete(h.clients, id)
	h.clientMu.Unlock()
	close(c.done)
}

func (h *Hub) writePump(c *client) {
	for {
		select {
		case data, ok := <-c.out:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (h *Hub) readPump(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			_ = c.conn.Close()
			return
		}
		h.HandleInbound(ctx, c.id, data)
	}
}

// parseReplayQuery reads limit/since/before from the connection URL (spec
// §6 "Replay query").
func parseReplayQuery(r *http.Request) ReplayQuery {
	q := r.URL.Query()
	var rq ReplayQuery
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			rq.Limit, rq.HasLimit = n, true
		}
	}
	if v := q.Get("since"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			rq.Since, rq.HasSince = n, true
		}
	}
	if v := q.Get("before"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			rq.Before, rq.HasBefore = n, true
		}
	}
	return rq
}

// replayTo sends the computed replay slice to a newly connected client
// (spec §4.4 "Replay on connection").
func (h *Hub) replayTo(c *client, q ReplayQuery) {
	h.mu.Lock()
	snap := h.ring.snapshot()
	h.mu.Unlock()

	entries := computeReplay(snap, q)
	for i, e := range entries {
		env, err := buildEnvelope(e, i)
		if err != nil {
			h.logger.Warn("hub: build replay envelope failed", "error", err)
			continue
		}
		data, err := json.Marshal(env)
		if err != nil {
			h.logger.Warn("hub: marshal replay envelope failed", "error", err)
			continue
		}
		c.send(data, h.logger)
	}
}

func (h *Hub) sendAuthURL(c *client) {
	url := h.sup.AuthURL()
	if url == "" {
		return
	}
	f, err := newAuthURLFrame(url)
	if err != nil {
		return
	}
	data, err := json.Marshal(f)
	if err != nil {
		return
	}
	c.send(data, h.logger)
}
