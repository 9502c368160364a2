package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"batchchat/config"
	"batchchat/logger"
	"batchchat/utils"
)

// Client 代表一個 WebSocket 客戶端
type Client struct {
	id       string
	identity utils.Identity
	conn     *websocket.Conn // WebSocket 連線物件，透過它來讀寫訊息
	send     chan []byte     // 已序列化的 envelope
	done     chan struct{}   // 關閉後 writePump 結束；send 本身永不關閉
	once     sync.Once
	cfg      config.WebSocketConfig
}

func newClient(id string, identity utils.Identity, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	cfg = withDefaults(cfg)
	return &Client{
		id:       id,
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, cfg.SendBuffer),
		done:     make(chan struct{}),
		cfg:      cfg,
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Identity() utils.Identity { return c.identity }

// Send 不會阻塞：緩衝已滿或連線已關閉時回傳 false
func (c *Client) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close 可以重複呼叫
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump 讀取用戶傳來的事件並交給 Relay，依序處理以維持單一連線內的順序
func (c *Client) readPump(ctx context.Context, relay *Relay) {
	l := logger.Ctx(ctx)
	defer func() {
		relay.Disconnect(ctx, c)
		c.Close()
	}()

	if c.cfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, p, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				l.Warn().Err(err).Msg("Error reading message")
			} else {
				l.Debug().Msg("Client disconnected gracefully.")
			}
			return
		}
		relay.HandleEvent(ctx, c, p)
	}
}

// writePump 把 send 緩衝的訊息寫給前端，並定期送出 ping 保持連線
func (c *Client) writePump(ctx context.Context) {
	l := logger.Ctx(ctx)
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(c.cfg.WriteWait))
			return
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				l.Debug().Err(err).Msg("Error writing message")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// withDefaults 補上未設定的參數，避免 ticker 與 deadline 收到零值
func withDefaults(cfg config.WebSocketConfig) config.WebSocketConfig {
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingInterval <= 0 || cfg.PingInterval >= cfg.PongWait {
		cfg.PingInterval = (cfg.PongWait * 9) / 10 // 必須小於 pongWait
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = 10 * time.Second
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 256
	}
	return cfg
}
