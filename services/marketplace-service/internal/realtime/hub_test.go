package realtime

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversRoomEvents(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, r.URL.Query().Get("room"))
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	c1, _, err := websocket.DefaultDialer.Dial(wsURL+"?room=c1", nil)
	require.NoError(t, err)
	defer c1.Close()
	c2, _, err := websocket.DefaultDialer.Dial(wsURL+"?room=c2", nil)
	require.NoError(t, err)
	defer c2.Close()

	require.Eventually(t, func() bool { return hub.Clients("c1") == 1 && hub.Clients("c2") == 1 }, time.Second, 5*time.Millisecond)

	hub.Publish("c1", "typing", map[string]any{"user_id": "p1", "active": true})

	_ = c1.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt struct {
		Type string         `json:"type"`
		Data map[string]any `json:"data"`
	}
	require.NoError(t, c1.ReadJSON(&evt))
	assert.Equal(t, "typing", evt.Type)
	assert.Equal(t, "p1", evt.Data["user_id"])
	assert.Equal(t, true, evt.Data["active"])

	_ = c2.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err = c2.ReadMessage()
	assert.Error(t, err, "client in another room must not receive the event")
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Serve(w, r, "c1")
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Clients("c1") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients("c1") == 0 }, 2*time.Second, 5*time.Millisecond)
}
