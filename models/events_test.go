package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name      string
		payload   any
		wantField string
	}{
		{name: "valid send", payload: SendBatchMessage{BatchID: "b", UserID: "u", Message: "hi"}},
		{name: "blank message", payload: SendBatchMessage{BatchID: "b", UserID: "u", Message: "  \n"}, wantField: "message"},
		{name: "missing batch", payload: SendBatchMessage{UserID: "u", Message: "hi"}, wantField: "batchId"},
		{name: "missing user on join", payload: JoinBatch{BatchID: "b"}, wantField: "userId"},
		{name: "leave without user", payload: LeaveBatch{BatchID: "b"}},
		{name: "name is optional", payload: SendBatchMessage{BatchID: "b", UserID: "u", Message: "hi", Name: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			field, err := ValidatePayload(tt.payload)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, tt.wantField, field)
		})
	}
}

func TestNewEnvelope(t *testing.T) {
	sentAt := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	raw, err := NewEnvelope(EventBatchMessage, NewBatchMessage(ChatMessage{
		ID: "m1", BatchID: "b1", AuthorID: "u1", AuthorDisplayName: "Alice", Body: "hi", SentAt: sentAt,
	}))
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"event": "batchMessage",
		"data": {"id":"m1","batchId":"b1","userId":"u1","name":"Alice","message":"hi","timestamp":"2026-01-01T12:00:00Z"}
	}`, string(raw))

	pong, err := NewEnvelope(EventPong, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"pong"}`, string(pong))
}

func TestSendBatchMessageAcceptsClientTimestamp(t *testing.T) {
	var req SendBatchMessage
	err := json.Unmarshal([]byte(`{"batchId":"b","userId":"u","name":"A","message":"hi","timestamp":1714557000000}`), &req)

	require.NoError(t, err)
	assert.Equal(t, "1714557000000", string(req.Timestamp))
}
