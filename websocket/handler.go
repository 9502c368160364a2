package websocket

import (
	"context"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"batchchat/config"
	"batchchat/logger"
	"batchchat/utils"
)

// Handler 將 HTTP 連線升級為 WebSocket 並交給 Relay
type Handler struct {
	relay    *Relay
	cfg      config.WebSocketConfig
	upgrader websocket.Upgrader
}

// NewHandler allowedOrigins 含 "*" 時允許所有來源
func NewHandler(relay *Relay, cfg config.WebSocketConfig, allowedOrigins []string) *Handler {
	return &Handler{
		relay: relay,
		cfg:   withDefaults(cfg),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	allowAll := slices.Contains(allowed, "*")
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if allowAll || origin == "" {
			return true // 非瀏覽器客戶端不帶 Origin
		}
		return slices.Contains(allowed, origin)
	}
}

// ServeHTTP 處理 WebSocket 連線請求
// 身分由 JWT middleware 放入 context，未啟用時連線不綁定身分
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, _ := utils.GetIdentityFromContext(r.Context())
	connID := uuid.NewString()

	// 連線的生命週期比這個 request 長，不沿用 request 的取消訊號
	ctx, l := logger.WithConnection(context.WithoutCancel(r.Context()), connID, identity.UserID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		l.Warn().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}

	client := newClient(connID, identity, conn, h.cfg)
	h.relay.Connect(ctx, client)

	go client.writePump(ctx)
	client.readPump(ctx, h.relay) // readPump 會在連線關閉時自動清除聊天室成員資格
}
