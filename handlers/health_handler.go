package handlers

import (
	"net/http"
)

// RoomStats 由 websocket.Registry 實作
type RoomStats interface {
	RoomCount() int
	ConnectionCount() int
}

type healthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

// Health 健康檢查，同時回報目前的聊天室與連線數
func Health(stats RoomStats) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(r.Context(), w, http.StatusOK, healthResponse{
			Status:      "ok",
			Rooms:       stats.RoomCount(),
			Connections: stats.ConnectionCount(),
		})
	}
}
