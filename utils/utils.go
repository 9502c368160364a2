package utils

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityKey 是儲存在 context 中的使用者身分的鍵
type contextKey string

const IdentityKey contextKey = "identity"

var (
	ErrNoIdentity        = errors.New("identity not found in context")
	ErrInvalidClaims     = errors.New("invalid token claims")
	ErrUserIDNotInClaims = errors.New("user ID not found in token claims")
)

// Identity 是經過 JWT 驗證的連線身分；零值代表未驗證
type Identity struct {
	UserID   string
	Username string
}

// IsZero 回報身分是否未經驗證
func (i Identity) IsZero() bool {
	return i.UserID == ""
}

// WithIdentity 將身分存入 context
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// GetIdentityFromContext 從 context 中提取使用者身分
func GetIdentityFromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(IdentityKey).(Identity)
	if !ok || id.IsZero() {
		return Identity{}, ErrNoIdentity
	}
	return id, nil
}

// GetIdentityFromToken 從 JWT token 中提取使用者身分
// userId 為必要欄位，username 可有可無
func GetIdentityFromToken(tokenString string, jwtSecret string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return Identity{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, ErrInvalidClaims
	}

	userID, ok := claims["userId"].(string)
	if !ok || userID == "" {
		return Identity{}, ErrUserIDNotInClaims
	}
	username, _ := claims["username"].(string)

	return Identity{UserID: userID, Username: username}, nil
}

// GenerateJWT 簽發 ValidateJWT 可驗證的 Token；服務本身只驗證，目前由測試產生 Token 使用
func GenerateJWT(userID, username, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"userId":   userID,
		"username": username,
		"exp":      time.Now().Add(ttl).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", errors.New("failed to sign token")
	}
	return tokenString, nil
}
