package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialTestHub(t *testing.T) (*ChangeHub, *websocket.Conn) {
	t.Helper()
	hub := NewChangeHub()
	go hub.Run()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.HandleWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)
	return hub, conn
}

func TestChangeHub_BroadcastsChanges(t *testing.T) {
	hub, conn := dialTestHub(t)

	hub.NotifyChange("receipt", "create", "rc-1")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, WSTypeChange, msg.Type)

	data, err := json.Marshal(msg.Payload)
	require.NoError(t, err)
	var payload ChangePayload
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, ChangePayload{Entity: "receipt", Action: "create", ID: "rc-1"}, payload)
}

func TestChangeHub_PingPong(t *testing.T) {
	_, conn := dialTestHub(t)

	require.NoError(t, conn.WriteJSON(WSMessage{Type: WSTypePing}))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, WSTypePong, msg.Type)
}

func TestChangeHub_ClientCountDropsOnDisconnect(t *testing.T) {
	hub, conn := dialTestHub(t)

	conn.Close()
	assert.Eventually(t, func() bool { return hub.ClientCount() == 0 },
		2*time.Second, 10*time.Millisecond)
}
