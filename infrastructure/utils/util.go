package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"

	"video-gateway/infrastructure/logger"
)

func GetCurrentTime() time.Time {
	return time.Now().UTC()
}

// GenerateToken signs payload with HS256. A positive ttl adds exp and iat claims.
func GenerateToken(payload map[string]interface{}, secretKey string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{}
	for k, v := range payload {
		claims[k] = v
	}
	if ttl > 0 {
		now := GetCurrentTime()
		claims["iat"] = now.Unix()
		claims["exp"] = now.Add(ttl).Unix()
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(secretKey))
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while generate token")
		return "", err
	}
	return tokenString, nil
}

// ParseToken validates an HS256 token and returns its claims.
func ParseToken(tokenString, secretKey string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}
