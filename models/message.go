package models

import "time"

// ChatMessage 代表一個已持久化的批次討論訊息
type ChatMessage struct {
	ID                string    `json:"id"`
	BatchID           string    `json:"batchId"`
	AuthorID          string    `json:"authorId"`
	AuthorDisplayName string    `json:"authorDisplayName"` // 傳送當下的顯示名稱，不會事後重新解析
	Body              string    `json:"body"`
	SentAt            time.Time `json:"sentAt"`
}

// HistoryQuery 描述一次歷史訊息分頁查詢
type HistoryQuery struct {
	Limit  int
	Before string // 上一頁回傳的 cursor，空字串代表從最新一則開始
}

// HistoryPage 是一頁由新到舊排序的歷史訊息
type HistoryPage struct {
	Messages   []ChatMessage `json:"messages"`
	NextCursor string        `json:"nextCursor,omitempty"`
	HasMore    bool          `json:"hasMore"`
}

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// Normalize 將 limit 限制在 [1, MaxHistoryLimit]，未指定時使用預設值
func (q HistoryQuery) Normalize() HistoryQuery {
	if q.Limit <= 0 {
		q.Limit = DefaultHistoryLimit
	}
	if q.Limit > MaxHistoryLimit {
		q.Limit = MaxHistoryLimit
	}
	return q
}
