package live

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, h *Hub, eventID string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.Serve(w, r, eventID)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return h.Watchers(eventID) > 0 }, time.Second, 10*time.Millisecond)
	return conn
}

func TestHub_PublishReachesSubscribers(t *testing.T) {
	h := NewHub(nil)
	conn := dial(t, h, "ev1")

	h.Publish("ev1", map[string]string{"type": "checkin", "ticketid": "FEL-ABC"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"checkin","ticketid":"FEL-ABC"}`, string(msg))
}

func TestHub_OtherEventsAreIsolated(t *testing.T) {
	h := NewHub(nil)
	conn := dial(t, h, "ev1")

	h.Publish("ev2", map[string]string{"type": "checkin"})
	h.Publish("ev1", map[string]string{"type": "mine"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"mine"}`, string(msg))
}

func TestHub_UnregistersOnClose(t *testing.T) {
	h := NewHub(nil)
	conn := dial(t, h, "ev1")
	require.NoError(t, conn.Close())

	assert.Eventually(t, func() bool { return h.Watchers("ev1") == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishWithoutWatchers(t *testing.T) {
	h := NewHub(nil)
	assert.NotPanics(t, func() { h.Publish("nobody", map[string]int{"n": 1}) })
}
