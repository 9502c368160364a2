package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"batchchat/logger"
)

// ErrorResponse 是所有錯誤回應的格式
type ErrorResponse struct {
	Message string `json:"message"`
}

// sendJSONError 統一發送 JSON 格式錯誤響應
func sendJSONError(ctx context.Context, w http.ResponseWriter, message string, statusCode int) {
	writeJSON(ctx, w, statusCode, ErrorResponse{Message: message})
}

func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		l := logger.Ctx(ctx)
		l.Error().Err(err).Msg("Failed to write response")
	}
}
