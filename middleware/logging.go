package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"batchchat/logger"
)

const headerRequestID = "X-Request-ID"

// RequestLogger 為每個請求產生 request id，並把子 logger 放入 context
// /ws 升級後的請求要等連線結束才回來，記錄成一次 session 而不是一次請求
// /health 會被監控頻繁呼叫，只記在 debug
func RequestLogger(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqID := r.Header.Get(headerRequestID)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(headerRequestID, reqID)

			child := base.With().
				Str(logger.FieldRequestID, reqID).
				Str(logger.FieldMethod, r.Method).
				Str(logger.FieldPath, r.URL.Path).
				Str(logger.FieldClientIP, clientIP(r)).
				Logger()

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(logger.WithLogger(r.Context(), child)))

			elapsed := time.Since(start).Milliseconds()
			switch {
			case rec.hijacked:
				child.Info().Int64(logger.FieldSession, elapsed).Msg("websocket session closed")
			case r.URL.Path == "/health":
				child.Debug().Int(logger.FieldStatus, rec.status).Msg("health check")
			default:
				child.Info().
					Int(logger.FieldStatus, rec.status).
					Int64(logger.FieldLatency, elapsed).
					Msg("request completed")
			}
		})
	}
}

// statusRecorder 記錄回應狀態碼；WebSocket 升級需要 Hijack
type statusRecorder struct {
	http.ResponseWriter
	status   int
	hijacked bool
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not implement http.Hijacker")
	}
	conn, rw, err := h.Hijack()
	if err == nil {
		r.hijacked = true
		r.status = http.StatusSwitchingProtocols
	}
	return conn, rw, err
}

// clientIP 反向代理的 X-Forwarded-For 第一個位址優先
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip, _, _ := strings.Cut(xff, ","); strings.TrimSpace(ip) != "" {
			return strings.TrimSpace(ip)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
