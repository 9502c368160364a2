package websocket

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"batchchat/models"
	"batchchat/utils"
)

// fakeConn 記錄送出的 envelope，full 為 true 時模擬緩衝已滿
type fakeConn struct {
	id       string
	identity utils.Identity

	mu     sync.Mutex
	sent   [][]byte
	full   bool
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string               { return c.id }
func (c *fakeConn) Identity() utils.Identity { return c.identity }

func (c *fakeConn) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full || c.closed {
		return false
	}
	c.sent = append(c.sent, payload)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) envelopes(t *testing.T) []models.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Envelope, 0, len(c.sent))
	for _, raw := range c.sent {
		var env models.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		out = append(out, env)
	}
	return out
}

// eventsNamed 回傳指定事件的 data
func (c *fakeConn) eventsNamed(t *testing.T, event string) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	for _, env := range c.envelopes(t) {
		if env.Event == event {
			out = append(out, env.Data)
		}
	}
	return out
}

func decode[T any](t *testing.T, data json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}
