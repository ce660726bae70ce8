package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/akshitverma317/diagnoai/internal/classifier"
	"github.com/akshitverma317/diagnoai/internal/imaging"
	"github.com/akshitverma317/diagnoai/internal/quota"
	"github.com/akshitverma317/diagnoai/internal/service"
)

const retryAfterSeconds = "5"

// writeError maps a service error onto its HTTP status and error code.
func (h HandlerSet) writeError(c *gin.Context, err error) {
	var notXray *service.NotXrayError
	var exceeded *service.QuotaExceededError

	switch {
	case errors.Is(err, imaging.ErrDecode):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_image",
			"message": "Please upload a valid JPEG, PNG or DICOM image.",
		})
	case errors.As(err, &notXray):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "not_an_xray",
			"message": "The uploaded image does not look like a chest X-ray.",
			"reason":  notXray.Verdict.Reason,
		})
	case errors.Is(err, quota.ErrQuotaExceeded):
		body := gin.H{
			"error":   "quota_exceeded",
			"message": "You have used all of your diagnoses. Subscribe to premium for more.",
			"upgrade": "/api/v1/subscription/checkout",
		}
		if errors.As(err, &exceeded) {
			body["usage"] = exceeded.Status
		}
		c.JSON(http.StatusPaymentRequired, body)
	case errors.Is(err, quota.ErrPersistence):
		h.log.Error().Err(err).Msg("usage store unavailable")
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "usage_unavailable",
			"message": "Usage could not be recorded. Please try again.",
		})
	case errors.Is(err, classifier.ErrClassifierFailure):
		h.log.Error().Err(err).Msg("classifier unavailable")
		c.Header("Retry-After", retryAfterSeconds)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "classifier_unavailable",
			"message": "The diagnosis service is busy. Please try again.",
		})
	default:
		h.log.Error().Err(err).Msg("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
	}
}
