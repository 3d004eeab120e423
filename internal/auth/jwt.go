package auth

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Claims - полезная нагрузка access токена
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

var (
	mu        sync.RWMutex
	secretKey = []byte("change-me")
	tokenTTL  = 24 * time.Hour
)

// Configure выставляет секрет и время жизни токенов. Вызывается один раз при старте.
func Configure(secret string, ttl time.Duration) {
	mu.Lock()
	defer mu.Unlock()
	if secret != "" {
		secretKey = []byte(secret)
	}
	if ttl > 0 {
		tokenTTL = ttl
	}
}

func settings() ([]byte, time.Duration) {
	mu.RLock()
	defer mu.RUnlock()
	return secretKey, tokenTTL
}

// GenerateToken создает подписанный HS256 access токен
func GenerateToken(userID, role string) (string, error) {
	key, ttl := settings()
	now := time.Now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}

// ParseToken проверяет подпись и срок действия токена
func ParseToken(tokenStr string) (*Claims, error) {
	key, _ := settings()
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// TokenTTL - текущее время жизни токена, отдается клиенту в expires_in
func TokenTTL() time.Duration {
	_, ttl := settings()
	return ttl
}
