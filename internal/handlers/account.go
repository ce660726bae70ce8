package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akshitverma317/diagnoai/internal/middleware"
)

func (h HandlerSet) Me(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	status, err := h.accounts.Status(c.Request.Context(), identity.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"email":       identity.Email,
		"displayName": identity.DisplayName,
		"usage":       status,
	})
}

func (h HandlerSet) Usage(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	status, err := h.accounts.Status(c.Request.Context(), identity.Email)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"usage": status})
}
