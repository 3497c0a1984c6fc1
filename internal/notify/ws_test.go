package notify

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerRegisterAndPush(t *testing.T) {
	hub := NewHub()
	srv := NewServer(hub, echo.New().Logger)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(map[string]any{"type": "register", "userId": 17}))
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ack map[string]any
	require.NoError(t, ws.ReadJSON(&ack))
	assert.Equal(t, "registered", ack["type"])
	assert.EqualValues(t, 17, ack["userId"])
	assert.True(t, hub.Online(17))

	assert.True(t, hub.Send(17, []byte(`{"type":"reservation"}`)))
	_, data, err := ws.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reservation"}`, string(data))

	require.NoError(t, ws.Close())
	assert.Eventually(t, func() bool { return !hub.Online(17) }, 2*time.Second, 20*time.Millisecond)
}

func TestServerRejectsBadMessage(t *testing.T) {
	hub := NewHub()
	ts := httptest.NewServer(NewServer(hub, echo.New().Logger))
	defer ts.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"hello"}`)))
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var reply map[string]any
	require.NoError(t, ws.ReadJSON(&reply))
	assert.Equal(t, "error", reply["type"])
	assert.Equal(t, 0, hub.Len())
}

func TestServerRegisterRequiresToken(t *testing.T) {
	hub := NewHub()
	srv := NewServer(hub, echo.New().Logger)
	srv.Authenticate = func(token string) (uint64, error) {
		if token == "tok-17" {
			return 17, nil
		}
		return 0, errors.New("bad token")
	}
	ts := httptest.NewServer(srv)
	defer ts.Close()
	base := "ws" + strings.TrimPrefix(ts.URL, "http")

	register := func(t *testing.T, url string, msg map[string]any) map[string]any {
		t.Helper()
		ws, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = ws.Close() })
		require.NoError(t, ws.WriteJSON(msg))
		_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		var reply map[string]any
		require.NoError(t, ws.ReadJSON(&reply))
		return reply
	}

	reply := register(t, base, map[string]any{"type": "register", "userId": 17})
	assert.Equal(t, "error", reply["type"], "no token")
	reply = register(t, base, map[string]any{"type": "register", "userId": 18, "token": "tok-17"})
	assert.Equal(t, "error", reply["type"], "token of another user")
	assert.False(t, hub.Online(18))

	reply = register(t, base, map[string]any{"type": "register", "userId": 17, "token": "tok-17"})
	assert.Equal(t, "registered", reply["type"])
	reply = register(t, base+"?token=tok-17", map[string]any{"type": "register", "userId": 17})
	assert.Equal(t, "registered", reply["type"])
	assert.True(t, hub.Online(17))
}
