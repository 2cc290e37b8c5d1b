// Package gateway serves the REST API and fans pipeline updates out to
// WebSocket clients.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"aurelius-engine/internal/metrics"
	"aurelius-engine/internal/model"
	"aurelius-engine/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// Hub manages WebSocket clients. Every broadcast is stamped with a global
// and a per-channel sequence number; the last envelopes of each channel are
// kept for gap backfill via /api/missed.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer

	// Quote-to-socket latency
	Latency *LatencyTracker

	Broadcaster *Broadcaster

	prom *metrics.Metrics
	log  *slog.Logger
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates a Hub. prom may be nil.
func NewHub(prom *metrics.Metrics) *Hub {
	h := &Hub{
		clients:     make(map[*Client]struct{}),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		Latency:     NewLatencyTracker(10000),
		prom:        prom,
		log:         slog.Default().With("component", "gateway"),
	}
	h.Broadcaster = NewBroadcaster(h)
	return h
}

// Run broadcasts updates until ctx is cancelled or updates is closed.
func (h *Hub) Run(ctx context.Context, updates <-chan pipeline.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			h.Publish(u)
		}
	}
}

// Publish broadcasts one pipeline update: the stock snapshot on its quote
// channel, the latest point of each ready indicator, and any alert events.
func (h *Hub) Publish(u pipeline.Update) {
	sym := u.Stock.Key()
	stock := u.Stock
	stock.History = nil
	if b, err := json.Marshal(stock); err == nil {
		h.Broadcaster.Broadcast(QuoteChannel(sym), b, u.Stock.AsOf)
	}

	for i := range u.Indicators {
		ind := &u.Indicators[i]
		v, ok := ind.Latest()
		if !ok {
			continue
		}
		b, err := json.Marshal(IndicatorPoint{Value: v, TS: ind.TS, Ready: true})
		if err != nil {
			continue
		}
		h.Broadcaster.Broadcast(IndicatorChannel(ind.Name, ind.TF, sym), b, time.Time{})
	}

	for _, ev := range u.Events {
		if b, err := json.Marshal(ev); err == nil {
			h.Broadcaster.Broadcast(AlertChannel(sym), b, time.Time{})
		}
	}
}

// HandleWS upgrades an HTTP connection to WebSocket and registers the client.
// A last_ts query parameter limits the initial state to newer entries.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	h.register(conn, r.URL.Query().Get("last_ts"))
}

func (h *Hub) register(conn *websocket.Conn, lastTS string) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 256),
		hub:  h,
		subs: make(map[string]struct{}),
	}

	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	if h.prom != nil {
		h.prom.WSClients.Set(float64(count))
	}
	h.log.Info("ws client connected", "clients", count)

	go client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	close(c.send)

	if h.prom != nil {
		h.prom.WSClients.Set(float64(count))
	}
}

// CloseAll disconnects every client. Their read pumps unregister them.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.conn.Close()
	}
}

// LatestAll returns a snapshot of the latest data on every channel.
func (h *Hub) LatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// ReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) ReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	result := make([][]byte, len(entries))
	for i, e := range entries {
		result[i] = e.Data
	}
	return result
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// StartStatsBroadcast sends runtime stats to all WS clients every interval.
func (h *Hub) StartStatsBroadcast(ctx context.Context, start time.Time, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := CollectStats(start)
			s.LatencyP50, s.LatencyP95, s.LatencyP99 = h.Latency.Percentiles()
			envelope, _ := json.Marshal(map[string]interface{}{
				"type":  "stats",
				"stats": s,
			})
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- envelope:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

// QuoteChannel names the WS channel carrying a symbol's snapshots.
func QuoteChannel(symbol string) string { return "quote:" + symbol }

// IndicatorChannel names the WS channel carrying one indicator line.
func IndicatorChannel(name string, tf model.Timeframe, symbol string) string {
	return "ind:" + name + ":" + string(tf) + ":" + symbol
}

// AlertChannel names the WS channel carrying a symbol's alert events.
func AlertChannel(symbol string) string { return "alert:" + symbol }
