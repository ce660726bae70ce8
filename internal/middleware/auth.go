package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/akshitverma317/diagnoai/internal/models"
	"github.com/akshitverma317/diagnoai/internal/quota"
	"github.com/akshitverma317/diagnoai/internal/security"
)

const identityKey = "identity"

// IdentityEnsurer creates the usage record of a newly seen identity.
type IdentityEnsurer interface {
	EnsureIdentity(ctx context.Context, email, displayName string) (models.UsageRecord, error)
}

// Auth verifies the identity token from the Authorization header or the token
// query parameter and makes sure the identity has a usage record.
func Auth(secret string, accounts IdentityEnsurer) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}

		identity, err := security.ParseIdentityToken(tokenStr, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		if _, err := accounts.EnsureIdentity(c.Request.Context(), identity.Email, identity.DisplayName); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, quota.ErrPersistence) {
				status = http.StatusServiceUnavailable
			}
			_ = c.Error(err)
			c.AbortWithStatusJSON(status, gin.H{"error": "usage_unavailable"})
			return
		}

		c.Set("access_token", tokenStr)
		c.Set(identityKey, identity)

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return strings.TrimSpace(c.Query("token"))
}

func CurrentIdentity(c *gin.Context) (security.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return security.Identity{}, false
	}
	identity, ok := value.(security.Identity)
	return identity, ok
}
