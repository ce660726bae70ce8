package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/akshitverma317/diagnoai/internal/security"
)

// NonceStore remembers webhook nonces so a signed request cannot be replayed.
type NonceStore interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

var signatureErrors = map[error]string{
	security.ErrSignatureMissing:  "signature_required",
	security.ErrSignatureDate:     "invalid_date",
	security.ErrSignatureExpired:  "request_expired",
	security.ErrSignatureMismatch: "invalid_signature",
}

// Signature authenticates server-to-server callbacks signed with the shared secret.
// Dates further than skew from now are refused, and each nonce is accepted once.
func Signature(secret string, skew time.Duration, nonces NonceStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawBody, err := c.GetRawData()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(rawBody))

		cb, err := security.ReadCallback(c.Request, rawBody)
		if err == nil {
			err = cb.Verify(secret, skew, time.Now())
		}
		if err != nil {
			code := "invalid_signature"
			for target, name := range signatureErrors {
				if errors.Is(err, target) {
					code = name
				}
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": code})
			return
		}

		fresh, err := nonces.SetNX(c.Request.Context(), cb.NonceKey(), "1", 2*skew).Result()
		if err != nil {
			_ = c.Error(err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "signature_unavailable"})
			return
		}
		if !fresh {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "replay_detected"})
			return
		}

		c.Next()
	}
}
