package middleware

import (
	"net/http"
	"strings"

	"batchchat/logger"
	"batchchat/utils"
)

// JWTMiddleware 驗證 JWT Token 並將使用者身分放入 context
// jwtSecret 為空字串時不做任何檢查，連線不綁定身分
// 瀏覽器的 WebSocket 無法自訂標頭，因此也接受 ?token= 查詢參數
func JWTMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if jwtSecret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := tokenFromRequest(r)
			if !ok {
				http.Error(w, "Authorization token required", http.StatusUnauthorized)
				return
			}

			identity, err := utils.GetIdentityFromToken(tokenString, jwtSecret)
			if err != nil {
				l := logger.Ctx(r.Context())
				l.Info().Err(err).Msg("Invalid JWT token")
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(utils.WithIdentity(r.Context(), identity)))
		})
	}
}

// tokenFromRequest Authorization: Bearer <token> 優先，其次是 token 查詢參數
func tokenFromRequest(r *http.Request) (string, bool) {
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || parts[1] == "" {
			return "", false
		}
		return parts[1], true
	}
	if token := r.URL.Query().Get("token"); token != "" {
		return token, true
	}
	return "", false
}
