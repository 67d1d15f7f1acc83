package alerthub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"SetupScan/internal/domain/models"
)

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/alerts" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHubDeliversFilteredEvents(t *testing.T) {
	h := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h.ServeWS(w, r)
	}))
	defer srv.Close()

	all := dial(t, srv, "")
	eur := dial(t, srv, "?pair=EURUSD")
	require.Eventually(t, func() bool { return h.Clients() == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Emit(ctx,
		models.PhaseEvent{ID: "1", Type: models.EventPhaseCompleted, Pair: "GBPUSD"},
		models.PhaseEvent{ID: "2", Type: models.EventPhaseCompleted, Pair: "EURUSD"},
	))

	read := func(c *websocket.Conn) models.PhaseEvent {
		_ = c.SetReadDeadline(time.Now().Add(time.Second))
		_, b, err := c.ReadMessage()
		require.NoError(t, err)
		var ev models.PhaseEvent
		require.NoError(t, json.Unmarshal(b, &ev))
		return ev
	}
	assert.Equal(t, "1", read(all).ID)
	assert.Equal(t, "2", read(all).ID)
	assert.Equal(t, "2", read(eur).ID)
}

func TestFilterMatch(t *testing.T) {
	ev := models.PhaseEvent{ModelID: "m", Pair: "EURUSD"}
	assert.True(t, filter{}.match(ev))
	assert.True(t, filter{modelID: "m"}.match(ev))
	assert.False(t, filter{pair: "GBPUSD"}.match(ev))
}
