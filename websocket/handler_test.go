package websocket

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

	"batchchat/config"
	"batchchat/database"
	"batchchat/models"
)

func newTestServer(t *testing.T) (*httptest.Server, *Relay, database.MessageStore) {
	t.Helper()
	db, err := database.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := database.NewBadgerMessageStore(db)
	relay := NewRelay(NewRegistry(), store, nil, time.Second)
	h := NewHandler(relay, config.WebSocketConfig{
		PingInterval:   time.Second,
		PongWait:       2 * time.Second,
		WriteWait:      time.Second,
		MaxMessageSize: 4096,
		SendBuffer:     16,
	}, []string{"http://allowed.example"})

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv, relay, store
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	raw, err := models.NewEnvelope(event, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

// expectEvent 讀到指定事件為止，略過其他事件
func expectEvent(t *testing.T, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", event)
		var env models.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Event == event {
			return env.Data
		}
	}
}

func expectSilence(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %s", raw)
}

// joinAndSync 送出 joinBatch 後以 activeRooms 確認伺服器已處理完畢
func joinAndSync(t *testing.T, conn *websocket.Conn, batchID, userID string) {
	t.Helper()
	emit(t, conn, models.EventJoinBatch, models.JoinBatch{BatchID: batchID, UserID: userID})
	emit(t, conn, models.EventActiveRooms, nil)
	rooms := decode[models.ActiveRooms](t, expectEvent(t, conn, models.EventActiveRooms))
	require.Contains(t, rooms.BatchIDs, batchID)
}

func TestHandlerBatchScenario(t *testing.T) {
	srv, relay, store := newTestServer(t)
	a := dial(t, srv, nil)
	b := dial(t, srv, nil)
	c := dial(t, srv, nil)

	joinAndSync(t, a, "batch-1", "user-a")
	joinAndSync(t, b, "batch-1", "user-b")
	joinAndSync(t, c, "batch-2", "user-c")

	emit(t, a, models.EventSendBatchMessage, models.SendBatchMessage{
		BatchID: "batch-1", UserID: "user-a", Name: "Alice", Message: "hello batch",
	})

	fromA := decode[models.BatchMessage](t, expectEvent(t, a, models.EventBatchMessage))
	fromB := decode[models.BatchMessage](t, expectEvent(t, b, models.EventBatchMessage))
	assert.Equal(t, fromA, fromB)
	assert.Equal(t, "hello batch", fromB.Message)
	assert.Equal(t, "Alice", fromB.Name)
	assert.NotEmpty(t, fromB.ID)

	ack := decode[models.MessageAccepted](t, expectEvent(t, a, models.EventBatchMessageAccepted))
	assert.Equal(t, fromA.ID, ack.ID)

	expectSilence(t, c, 200*time.Millisecond)

	page, err := store.ListByBatch(context.Background(), "batch-1", models.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, fromA.ID, page.Messages[0].ID)

	assert.Equal(t, 2, relay.Rooms().RoomCount())
}

func TestHandlerBlankMessageRejected(t *testing.T) {
	srv, _, store := newTestServer(t)
	a := dial(t, srv, nil)
	b := dial(t, srv, nil)
	joinAndSync(t, a, "batch-1", "user-a")
	joinAndSync(t, b, "batch-1", "user-b")

	emit(t, a, models.EventSendBatchMessage, models.SendBatchMessage{
		BatchID: "batch-1", UserID: "user-a", Message: "   ",
	})

	rej := decode[models.Rejection](t, expectEvent(t, a, models.EventBatchMessageRejected))
	assert.Equal(t, "message", rej.Field)
	expectSilence(t, b, 200*time.Millisecond)

	page, err := store.ListByBatch(context.Background(), "batch-1", models.HistoryQuery{})
	require.NoError(t, err)
	assert.Empty(t, page.Messages)
}

func TestHandlerDisconnectCleansUpRooms(t *testing.T) {
	srv, relay, _ := newTestServer(t)
	a := dial(t, srv, nil)
	joinAndSync(t, a, "batch-1", "user-a")
	joinAndSync(t, a, "batch-2", "user-a")
	require.Equal(t, 1, relay.Rooms().ConnectionCount())

	require.NoError(t, a.Close())

	assert.Eventually(t, func() bool {
		return relay.Rooms().ConnectionCount() == 0 && relay.Rooms().RoomCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandlerCountsIdleConnections(t *testing.T) {
	srv, relay, _ := newTestServer(t)
	a := dial(t, srv, nil)
	dial(t, srv, nil)

	assert.Eventually(t, func() bool {
		return relay.Rooms().ConnectionCount() == 2
	}, 2*time.Second, 10*time.Millisecond, "connections that joined no room are still live")
	assert.Zero(t, relay.Rooms().RoomCount())

	require.NoError(t, a.Close())
	assert.Eventually(t, func() bool {
		return relay.Rooms().ConnectionCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandlerCheckOrigin(t *testing.T) {
	srv, _, _ := newTestServer(t)
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://allowed.example"}})
	require.NoError(t, err)
	_ = conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": {"http://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCheckOriginWildcard(t *testing.T) {
	check := checkOrigin([]string{"*"})
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "http://anything.example")
	assert.True(t, check(r))
}
