package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EncodeCursor 將訊息的 (sentAt, id) 編碼為歷史分頁用的 cursor
// 格式為 "%019d:%s"，補零讓字典序與時間順序一致
func EncodeCursor(msg ChatMessage) string {
	return fmt.Sprintf("%019d:%s", msg.SentAt.UnixNano(), msg.ID)
}

// DecodeCursor 解析 EncodeCursor 產生的字串
func DecodeCursor(cursor string) (time.Time, string, error) {
	nanosPart, id, ok := strings.Cut(cursor, ":")
	if !ok || id == "" {
		return time.Time{}, "", fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	nanos, err := strconv.ParseInt(nanosPart, 10, 64)
	if err != nil || nanos < 0 {
		return time.Time{}, "", fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	return time.Unix(0, nanos).UTC(), id, nil
}
