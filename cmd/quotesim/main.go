// cmd/quotesim is a demo WebSocket quote server. It broadcasts random-walk
// quotes for the demo universe so analyticsd can be run against a stream
// (QUOTE_WS_URL=ws://localhost:9001/ws) without a market data vendor.
//
// Quote JSON shape is model.Quote:
//
//	{"symbol":"AAPL","price":185.92,"percent_change":1.25,"volume":1200,"ts":"..."}
//
// Config (env vars):
//
//	QUOTESIM_ADDR      listen address (default ":9001")
//	QUOTESIM_SYMBOLS   comma-separated symbols (default: whole demo universe)
//	QUOTESIM_INTERVAL  broadcast interval (default "500ms")
//	QUOTESIM_SEED      random seed (default 7)
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"aurelius-engine/config"
	"aurelius-engine/internal/logger"
	"aurelius-engine/internal/marketdata"
)

type hub struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]chan []byte
}

func newHub() *hub {
	return &hub{clients: make(map[*websocket.Conn]chan []byte)}
}

func (h *hub) register(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		close(ch)
		delete(h.clients, conn)
	}
	h.mu.Unlock()
}

func (h *hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.clients {
		select {
		case ch <- msg:
		default: // slow client, drop quote
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("upgrade failed", "error", err)
			return
		}
		slog.Info("client connected", "remote", r.RemoteAddr)

		ch := h.register(conn)
		defer func() {
			h.unregister(conn)
			conn.Close()
			slog.Info("client disconnected", "remote", r.RemoteAddr)
		}()

		// Reader only drains control frames; a read error means the peer left.
		go func() {
			for {
				if _, _, err := conn.NextReader(); err != nil {
					h.unregister(conn)
					return
				}
			}
		}()

		for msg := range ch {
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}
}

func runGenerator(ctx context.Context, h *hub, cat *marketdata.Catalog, symbols []string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, sym := range symbols {
			stock, err := cat.FetchQuote(ctx, sym)
			if err != nil {
				slog.Warn("quote failed", "symbol", sym, "error", err)
				continue
			}
			b, err := json.Marshal(stock.Quote())
			if err != nil {
				continue
			}
			h.broadcast(b)
		}
	}
}

func main() {
	logger.Init("quotesim", logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	addr := envOrDefault("QUOTESIM_ADDR", ":9001")
	interval := config.ParseDuration("QUOTESIM_INTERVAL", envOrDefault("QUOTESIM_INTERVAL", "500ms"), 500*time.Millisecond)
	seed := envIntOrDefault("QUOTESIM_SEED", 7)

	cat := marketdata.NewCatalog(int64(seed))
	symbols := config.ParseSymbols(os.Getenv("QUOTESIM_SYMBOLS"))
	if len(symbols) == 0 {
		symbols = cat.Symbols()
	}
	for _, s := range symbols {
		if _, err := cat.Lookup(s); err != nil {
			slog.Error("unknown symbol", "symbol", s)
			os.Exit(1)
		}
	}
	slog.Info("starting quote simulator", "symbols", symbols, "interval", interval.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := newHub()
	go runGenerator(ctx, h, cat, symbols, interval)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(h))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"quotesim"}`)
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	slog.Info("listening", "addr", addr, "ws", "ws://localhost"+addr+"/ws")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
