package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aurelius-engine/internal/model"
	"aurelius-engine/internal/pipeline"
)

func dialHub(t *testing.T, h *Hub, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readMessages reads one frame and splits coalesced messages.
func readMessages(t *testing.T, conn *websocket.Conn) [][]byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	return bytes.Split(raw, []byte{'\n'})
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.ClientCount() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestWS_SubscribeFiltersBySymbol(t *testing.T) {
	h := NewHub(nil)
	conn := dialHub(t, h, "")
	waitClients(t, h, 1)

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "subscribe", Symbols: []string{"AAPL"}}))
	msgs := readMessages(t, conn)
	var ack struct {
		Type    string   `json:"type"`
		Symbols []string `json:"symbols"`
	}
	require.NoError(t, json.Unmarshal(msgs[0], &ack))
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, []string{"AAPL"}, ack.Symbols)

	h.Publish(pipeline.Update{Stock: model.Stock{ID: "MSFT", Symbol: "MSFT", Price: 330}})
	h.Publish(pipeline.Update{Stock: model.Stock{ID: "AAPL", Symbol: "AAPL", Price: 190}})

	msgs = readMessages(t, conn)
	var env envelope
	require.NoError(t, json.Unmarshal(msgs[0], &env))
	assert.Equal(t, "quote:AAPL", env.Channel)

	var stock model.Stock
	require.NoError(t, json.Unmarshal(env.Data, &stock))
	assert.Equal(t, 190.0, stock.Price)
}

func TestWS_InitialStateAndPing(t *testing.T) {
	h := NewHub(nil)
	h.Publish(pipeline.Update{Stock: model.Stock{ID: "NVDA", Symbol: "NVDA", Price: 480}})

	conn := dialHub(t, h, "")
	msgs := readMessages(t, conn)
	var initial struct {
		Channel string `json:"channel"`
		Initial bool   `json:"initial"`
	}
	require.NoError(t, json.Unmarshal(msgs[0], &initial))
	assert.Equal(t, "quote:NVDA", initial.Channel)
	assert.True(t, initial.Initial)

	require.NoError(t, conn.WriteJSON(ClientMsg{Type: "ping", Ping: 99}))
	msgs = readMessages(t, conn)
	var pong struct {
		Type string `json:"type"`
		Ping int64  `json:"ping"`
	}
	require.NoError(t, json.Unmarshal(msgs[0], &pong))
	assert.Equal(t, "pong", pong.Type)
	assert.Equal(t, int64(99), pong.Ping)
}

func TestWS_DisconnectUnregisters(t *testing.T) {
	h := NewHub(nil)
	conn := dialHub(t, h, "")
	waitClients(t, h, 1)
	conn.Close()
	waitClients(t, h, 0)
}

func TestWS_CloseAll(t *testing.T) {
	h := NewHub(nil)
	dialHub(t, h, "")
	dialHub(t, h, "")
	waitClients(t, h, 2)
	h.CloseAll()
	waitClients(t, h, 0)
}
