package models

import (
	"encoding/json"
	"time"
)

// 客戶端 -> 伺服器事件
const (
	EventJoinBatch        = "joinBatch"
	EventLeaveBatch       = "leaveBatch"
	EventSendBatchMessage = "sendBatchMessage"
	EventActiveRooms      = "activeRooms" // 同名事件也用於回覆
	EventPing             = "ping"
)

// 伺服器 -> 客戶端事件
const (
	EventBatchMessage         = "batchMessage"
	EventBatchMessageAccepted = "batchMessageAccepted"
	EventBatchMessageRejected = "batchMessageRejected"
	EventJoinRejected         = "joinRejected"
	EventError                = "error"
	EventPong                 = "pong"
)

// 拒絕原因
const (
	ReasonRequired              = "required"
	ReasonMalformed             = "malformed"
	ReasonIdentityMismatch      = "identity_mismatch"
	ReasonNotJoined             = "not_joined"
	ReasonNotMember             = "not_member"
	ReasonMembershipUnavailable = "membership_unavailable"
	ReasonPersistFailed         = "persist_failed"
	ReasonUnknownEvent          = "unknown_event"
)

// Envelope 是 WebSocket 上雙向傳輸的外層結構
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope 將 payload 序列化後包進 Envelope
func NewEnvelope(event string, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// JoinBatch 是 joinBatch 事件的內容
type JoinBatch struct {
	BatchID string `json:"batchId" validate:"notblank"`
	UserID  string `json:"userId" validate:"notblank"`
}

// LeaveBatch 是 leaveBatch 事件的內容，userId 僅供紀錄
type LeaveBatch struct {
	BatchID string `json:"batchId" validate:"notblank"`
	UserID  string `json:"userId"`
}

// SendBatchMessage 是 sendBatchMessage 事件的內容
type SendBatchMessage struct {
	BatchID   string          `json:"batchId" validate:"notblank"`
	UserID    string          `json:"userId" validate:"notblank"`
	Name      string          `json:"name"`
	Message   string          `json:"message" validate:"notblank"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"` // 客戶端時間，不作為排序依據
}

// BatchMessage 是廣播給房間成員的訊息
type BatchMessage struct {
	ID        string    `json:"id"`
	BatchID   string    `json:"batchId"`
	UserID    string    `json:"userId"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBatchMessage 由已持久化的訊息建立廣播內容
func NewBatchMessage(msg ChatMessage) BatchMessage {
	return BatchMessage{
		ID:        msg.ID,
		BatchID:   msg.BatchID,
		UserID:    msg.AuthorID,
		Name:      msg.AuthorDisplayName,
		Message:   msg.Body,
		Timestamp: msg.SentAt,
	}
}

// MessageAccepted 只回給送出者
type MessageAccepted struct {
	ID      string `json:"id"`
	BatchID string `json:"batchId"`
}

// Rejection 用於 batchMessageRejected 與 joinRejected
type Rejection struct {
	BatchID string `json:"batchId,omitempty"`
	Field   string `json:"field,omitempty"`
	Reason  string `json:"reason"`
}

type ActiveRooms struct {
	BatchIDs []string `json:"batchIds"`
}

type ErrorEvent struct {
	Reason string `json:"reason"`
}
