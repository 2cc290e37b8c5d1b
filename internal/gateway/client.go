package gateway

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscribed symbols; empty means everything.
	subMu sync.RWMutex
	subs  map[string]struct{}
}

// ClientMsg is an inbound control message.
//
//	{"type":"subscribe","symbols":["AAPL","MSFT"]}
//	{"type":"unsubscribe","symbols":["MSFT"]}
//	{"type":"ping","ping":1700000000000}
type ClientMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols,omitempty"`
	Ping    int64    `json:"ping,omitempty"`
}

func (c *Client) sendInitialState(lastTS string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()
	if _, ok := c.hub.clients[c]; !ok {
		return // already disconnected, send is closed
	}

	var cutoff time.Time
	if lastTS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, lastTS); err == nil {
			cutoff = parsed
		}
	}

	for channel, entry := range c.hub.latest {
		if !cutoff.IsZero() && !entry.TS.After(cutoff) {
			continue
		}

		envelope, _ := json.Marshal(map[string]interface{}{
			"channel":     channel,
			"data":        entry.Data,
			"ts":          entry.TS.Format(time.RFC3339Nano),
			"channel_seq": entry.Seq,
			"initial":     true,
		})
		select {
		case c.send <- envelope:
		default:
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Coalesce queued messages into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		c.hub.log.Info("ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var msg ClientMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}

		switch strings.ToLower(msg.Type) {
		case "subscribe":
			c.subscribe(msg.Symbols)
			c.reply(map[string]interface{}{"type": "subscribed", "symbols": c.Subscriptions()})
		case "unsubscribe":
			c.unsubscribe(msg.Symbols)
			c.reply(map[string]interface{}{"type": "subscribed", "symbols": c.Subscriptions()})
		case "ping":
			c.reply(map[string]interface{}{
				"type":      "pong",
				"ping":      msg.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
		}
	}
}

func (c *Client) reply(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- b:
	default:
	}
}

func (c *Client) subscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range symbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			c.subs[s] = struct{}{}
		}
	}
}

func (c *Client) unsubscribe(symbols []string) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, s := range symbols {
		delete(c.subs, strings.ToUpper(strings.TrimSpace(s)))
	}
}

// Subscriptions returns the subscribed symbols.
func (c *Client) Subscriptions() []string {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	out := make([]string, 0, len(c.subs))
	for s := range c.subs {
		out = append(out, s)
	}
	return out
}

// matchesChannel reports whether the client should receive a message on
// channel. Clients without subscriptions receive everything.
func (c *Client) matchesChannel(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	if len(c.subs) == 0 {
		return true
	}
	sym, ok := channelSymbol(channel)
	if !ok {
		return true
	}
	_, hit := c.subs[sym]
	return hit
}

// channelSymbol extracts the symbol from quote:SYM, alert:SYM and
// ind:NAME:TF:SYM channels.
func channelSymbol(channel string) (string, bool) {
	parts := strings.Split(channel, ":")
	switch {
	case len(parts) == 2 && (parts[0] == "quote" || parts[0] == "alert"):
		return parts[1], true
	case len(parts) == 4 && parts[0] == "ind":
		return parts[3], true
	}
	return "", false
}
