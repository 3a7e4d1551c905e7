// Package auth issues and checks the bearer tokens field workers send with
// meter photos.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// WorkerKey is the gin context key holding the authenticated worker id.
const WorkerKey = "worker"

// ErrMissingWorker is returned when a token carries no worker claim.
var ErrMissingWorker = errors.New("token has no worker claim")

// SignWorkerToken issues an HS256 token for a field worker.
func SignWorkerToken(secret []byte, worker string, ttl time.Duration) (string, error) {
	worker = strings.TrimSpace(worker)
	if worker == "" {
		return "", fmt.Errorf("worker id required")
	}
	if len(secret) == 0 {
		return "", fmt.Errorf("signing secret required")
	}
	claims := jwt.MapClaims{
		"worker": worker,
		"iat":    time.Now().Unix(),
	}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseWorkerToken validates a token and returns its worker id.
func ParseWorkerToken(secret []byte, tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKeyType
		}
		return secret, nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", jwt.ErrTokenInvalidClaims
	}
	worker, _ := claims["worker"].(string)
	if worker == "" {
		return "", ErrMissingWorker
	}
	return worker, nil
}

// Middleware rejects requests without a valid "Bearer" token and stores
// the worker id under WorkerKey.
func Middleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid Authorization header"})
			return
		}
		worker, err := ParseWorkerToken(secret, authHeader[7:])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(WorkerKey, worker)
		c.Next()
	}
}

// Worker returns the authenticated worker id, "" when auth is disabled.
func Worker(c *gin.Context) string {
	return c.GetString(WorkerKey)
}
