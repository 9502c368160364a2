//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package database

import (
	"context"

	"batchchat/models"
)

// MessageStore 是批次訊息的持久化介面
// Append 必須是原子寫入；ListByBatch 為純讀取，依新到舊排序
type MessageStore interface {
	Append(ctx context.Context, msg models.ChatMessage) (models.ChatMessage, error)
	ListByBatch(ctx context.Context, batchID string, q models.HistoryQuery) (models.HistoryPage, error)
}

// MembershipChecker 確認使用者能否加入某個批次的聊天室
type MembershipChecker interface {
	CanJoin(ctx context.Context, batchID, userID string) (bool, error)
}

// OpenMembership 不做任何檢查，授權交由上游處理
type OpenMembership struct{}

func (OpenMembership) CanJoin(context.Context, string, string) (bool, error) {
	return true, nil
}

// buildPage 將多查一筆的結果裁切成一頁，並算出下一頁的 cursor
func buildPage(msgs []models.ChatMessage, limit int) models.HistoryPage {
	page := models.HistoryPage{Messages: msgs}
	if len(msgs) > limit {
		page.Messages = msgs[:limit]
		page.HasMore = true
	}
	if page.Messages == nil {
		page.Messages = []models.ChatMessage{}
	}
	if page.HasMore {
		page.NextCursor = models.EncodeCursor(page.Messages[len(page.Messages)-1])
	}
	return page
}
