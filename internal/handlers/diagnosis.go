package handlers

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/akshitverma317/diagnoai/internal/ids"
	"github.com/akshitverma317/diagnoai/internal/imaging"
	"github.com/akshitverma317/diagnoai/internal/media/sniffer"
	"github.com/akshitverma317/diagnoai/internal/middleware"
	"github.com/akshitverma317/diagnoai/internal/models"
	"github.com/akshitverma317/diagnoai/internal/repository"
	"github.com/akshitverma317/diagnoai/internal/security"
	"github.com/akshitverma317/diagnoai/internal/service"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

func (h HandlerSet) CreateDiagnosis(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if c.Request.ContentLength > h.cfg.HTTP.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.HTTP.MaxUploadBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file_too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_required"})
		return
	}
	defer file.Close()

	var declared imaging.Format
	if ext := strings.ToLower(filepath.Ext(header.Filename)); ext != "" {
		declared = imaging.ParseFormat(ext)
		if declared == "" {
			unsupportedFormat(c)
			return
		}
	}

	detected, head, err := sniffer.Detect(file)
	if err != nil && !errors.Is(err, sniffer.ErrUnknownType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_unreadable"})
		return
	}
	if err == nil && !detected.Supported() {
		h.log.Debug().
			Str("detected", detected.MIME).
			Str("declared", sniffer.MimeTypeFromHTTP(http.Header(header.Header))).
			Msg("unsupported upload type")
		unsupportedFormat(c)
		return
	}

	data, err := io.ReadAll(io.MultiReader(bytes.NewReader(head), file))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file_unreadable"})
		return
	}

	result, err := h.diagnoses.Diagnose(c.Request.Context(), service.DiagnoseInput{
		Identity: identity,
		Data:     data,
		Declared: declared,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"diagnosis": result})
}

func unsupportedFormat(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "unsupported_format",
		"message": "Supported formats are JPG, JPEG, PNG and DCM.",
	})
}

type studyResponse struct {
	ID                  string      `json:"id"`
	Format              string      `json:"format"`
	SizeBytes           int64       `json:"sizeBytes"`
	ClassName           string      `json:"className"`
	Confidence          float64     `json:"confidence"`
	SecondaryClass      *string     `json:"secondaryClass,omitempty"`
	SecondaryConfidence *float64    `json:"secondaryConfidence,omitempty"`
	Specialist          bool        `json:"specialist"`
	Tier                models.Tier `json:"tier"`
	CreatedAt           time.Time   `json:"createdAt"`
	Verified            *bool       `json:"verified,omitempty"`
}

func toStudyResponse(study models.Study) studyResponse {
	return studyResponse{
		ID:                  study.ID,
		Format:              study.Format,
		SizeBytes:           study.SizeBytes,
		ClassName:           study.ClassName,
		Confidence:          study.Confidence,
		SecondaryClass:      study.SecondaryClass,
		SecondaryConfidence: study.SecondaryConfidence,
		Specialist:          study.Specialist,
		Tier:                study.Tier,
		CreatedAt:           study.CreatedAt,
	}
}

func (h HandlerSet) ListDiagnoses(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	limit := defaultPageSize
	offset := 0
	page := 1
	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= maxPageSize {
			limit = v
		}
	}
	if p := c.Query("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 1 {
			page = v
			offset = (v - 1) * limit
		}
	}

	studies, err := h.studies.ListByEmail(c.Request.Context(), identity.Email, limit, offset)
	if err != nil {
		h.log.Error().Err(err).Str("email", identity.Email).Msg("list studies failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}
	total, err := h.studies.CountByEmail(c.Request.Context(), identity.Email)
	if err != nil {
		h.log.Error().Err(err).Str("email", identity.Email).Msg("count studies failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}

	items := make([]studyResponse, 0, len(studies))
	for _, study := range studies {
		items = append(items, toStudyResponse(study))
	}

	c.JSON(http.StatusOK, gin.H{
		"items":   items,
		"page":    page,
		"perPage": limit,
		"total":   total,
	})
}

// GetDiagnosis returns one of the caller's studies and whether its stored
// signature still matches the row.
func (h HandlerSet) GetDiagnosis(c *gin.Context) {
	identity, ok := middleware.CurrentIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if !ids.Valid(c.Param("id")) {
		c.JSON(http.StatusNotFound, gin.H{"error": "study_not_found"})
		return
	}

	study, err := h.studies.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrStudyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "study_not_found"})
			return
		}
		h.log.Error().Err(err).Str("study_id", c.Param("id")).Msg("get study failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_server_error"})
		return
	}
	if study.Email != identity.Email {
		c.JSON(http.StatusNotFound, gin.H{"error": "study_not_found"})
		return
	}

	verified := security.VerifyResource(h.cfg.Security.SignatureSecret, study.Signature, study.ID, study.ObjectKey)
	if !verified {
		h.log.Warn().Str("study_id", study.ID).Msg("study signature mismatch")
	}

	resp := toStudyResponse(study)
	resp.Verified = &verified
	c.JSON(http.StatusOK, gin.H{"study": resp})
}
