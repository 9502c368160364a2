package logger

import (
	"context"
	"io"
	stdlog "log"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// 結構化日誌的欄位名稱
const (
	FieldService      = "service"
	FieldRequestID    = "request_id"
	FieldMethod       = "method"
	FieldPath         = "path"
	FieldStatus       = "status"
	FieldLatency      = "latency_ms"
	FieldClientIP     = "client_ip"
	FieldConnectionID = "connection_id"
	FieldBatchID      = "batch_id"
	FieldUserID       = "user_id"
	FieldMessageID    = "message_id"
	FieldEvent        = "event"
	FieldSession      = "session_ms"
)

// Config 日誌設定
type Config struct {
	Level       string
	Pretty      bool
	ServiceName string
}

// Init 之前使用的預設 logger
var global = zerolog.New(os.Stdout).With().Timestamp().Logger()

// New 依設定建立 zerolog.Logger，無法辨識的等級視為 info
func New(cfg Config) zerolog.Logger {
	var w io.Writer = os.Stdout
	if cfg.Pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str(FieldService, cfg.ServiceName)
	}
	return ctx.Logger()
}

// Init 在啟動時設定全域 logger，並把標準庫 log（例如 net/http 的錯誤）導向它
func Init(cfg Config) zerolog.Logger {
	global = New(cfg)
	stdlog.SetFlags(0)
	stdlog.SetOutput(global.With().Str("source", "stdlog").Logger())
	return global
}

// L 回傳全域 logger
func L() zerolog.Logger {
	return global
}

type ctxKey struct{}

// WithLogger 將 logger 存入 context
func WithLogger(ctx context.Context, l zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// Ctx 從 context 取出 logger，找不到時回傳全域 logger
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// WithConnection 為一條 WebSocket 連線建立 logger，之後這條連線上的事件都會帶著 connection_id
// userID 為空字串代表連線未綁定身分
func WithConnection(ctx context.Context, connID, userID string) (context.Context, zerolog.Logger) {
	lc := Ctx(ctx).With().Str(FieldConnectionID, connID)
	if userID != "" {
		lc = lc.Str(FieldUserID, userID)
	}
	l := lc.Logger()
	return WithLogger(ctx, l), l
}

// ForBatch 在連線 logger 上加上批次 ID
func ForBatch(ctx context.Context, batchID string) zerolog.Logger {
	return Ctx(ctx).With().Str(FieldBatchID, batchID).Logger()
}
