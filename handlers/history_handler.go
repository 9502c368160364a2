package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"batchchat/database"
	"batchchat/logger"
	"batchchat/models"
)

// HistoryHandler 提供批次聊天室的歷史訊息查詢
type HistoryHandler struct {
	store database.MessageStore
}

func NewHistoryHandler(store database.MessageStore) *HistoryHandler {
	return &HistoryHandler{store: store}
}

// GetBatchMessages 處理 GET /batches/{batchId}/messages?limit=&before=
// 回傳由新到舊的一頁訊息，nextCursor 可作為下一頁的 before
func (h *HistoryHandler) GetBatchMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := strings.TrimSpace(mux.Vars(r)["batchId"])
	if batchID == "" {
		sendJSONError(ctx, w, "Batch ID is required", http.StatusBadRequest)
		return
	}

	q := models.HistoryQuery{Before: r.URL.Query().Get("before")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			sendJSONError(ctx, w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		q.Limit = limit
	}

	page, err := h.store.ListByBatch(ctx, batchID, q)
	if err != nil {
		if errors.Is(err, models.ErrInvalidCursor) {
			sendJSONError(ctx, w, "Invalid cursor", http.StatusBadRequest)
			return
		}
		l := logger.Ctx(ctx)
		l.Error().Err(err).Str(logger.FieldBatchID, batchID).Msg("Error getting chat history")
		sendJSONError(ctx, w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(ctx, w, http.StatusOK, page)
}
