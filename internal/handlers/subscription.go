package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akshitverma317/diagnoai/internal/repository"
	"github.com/akshitverma317/diagnoai/internal/service"
)

func (h HandlerSet) Checkout(c *gin.Context) {
	token := c.GetString("access_token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	checkoutURL, err := h.subscriptions.CheckoutURL(token)
	if err != nil {
		if errors.Is(err, service.ErrCheckoutUnavailable) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "checkout_unavailable"})
			return
		}
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"checkoutUrl": checkoutURL})
}

type confirmRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ConfirmSubscription is the payment provider's callback. It is authenticated by
// the request signature, not by an identity token.
func (h HandlerSet) ConfirmSubscription(c *gin.Context) {
	var req confirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	confirmation, err := h.subscriptions.Confirm(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account_not_found"})
			return
		}
		h.writeError(c, err)
		return
	}

	h.log.Info().Str("email", confirmation.Email).Time("expires_at", confirmation.ExpiresAt).Msg("premium subscription confirmed")
	c.JSON(http.StatusOK, gin.H{"subscription": confirmation})
}
