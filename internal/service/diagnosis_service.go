package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/akshitverma317/diagnoai/internal/classifier"
	"github.com/akshitverma317/diagnoai/internal/imaging"
	"github.com/akshitverma317/diagnoai/internal/models"
	"github.com/akshitverma317/diagnoai/internal/quota"
	"github.com/akshitverma317/diagnoai/internal/security"
	"github.com/akshitverma317/diagnoai/internal/xray"
)

var ErrNotXray = errors.New("image is not a plausible chest x-ray")

// NotXrayError carries the gate verdict of a rejected upload.
type NotXrayError struct {
	Verdict xray.Verdict
}

func (e *NotXrayError) Error() string {
	return fmt.Sprintf("%s: failed %s check", ErrNotXray, e.Verdict.Reason)
}

func (e *NotXrayError) Is(target error) bool { return target == ErrNotXray }

// QuotaExceededError carries the usage status of an identity that is out of uses.
type QuotaExceededError struct {
	Status quota.Status
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s: %d of %d %s uses spent", quota.ErrQuotaExceeded, e.Status.Used, e.Status.Limit, e.Status.Tier)
}

func (e *QuotaExceededError) Unwrap() error { return quota.ErrQuotaExceeded }

type Classifier interface {
	Classify(ctx context.Context, img imaging.PixelImage) (classifier.Prediction, error)
}

// Archiver keeps a copy of each charged study. Failures never reach the caller.
type Archiver interface {
	Archive(ctx context.Context, input ArchiveInput) (models.Study, error)
}

type DiagnoseInput struct {
	Identity security.Identity
	Data     []byte
	Declared imaging.Format
}

type DiagnosisResult struct {
	StudyID    string                `json:"studyId,omitempty"`
	Prediction classifier.Prediction `json:"prediction"`
	Verdict    xray.Verdict          `json:"verdict"`
	Usage      quota.Status          `json:"usage"`
}

type DiagnosisService struct {
	quota      *quota.Controller
	classifier Classifier
	archive    Archiver
	log        zerolog.Logger
}

func NewDiagnosisService(quotas *quota.Controller, classifier Classifier, archive Archiver, log zerolog.Logger) *DiagnosisService {
	return &DiagnosisService{
		quota:      quotas,
		classifier: classifier,
		archive:    archive,
		log:        log,
	}
}

// Diagnose runs normalize, gate, quota check, classify and charge, in that order.
// Nothing is charged unless a prediction exists, and no prediction is returned
// unless the charge was persisted.
func (s *DiagnosisService) Diagnose(ctx context.Context, input DiagnoseInput) (DiagnosisResult, error) {
	email := input.Identity.Email

	img, err := imaging.Normalize(input.Data, input.Declared)
	if err != nil {
		return DiagnosisResult{}, err
	}

	verdict := xray.Evaluate(img)
	if !verdict.Plausible {
		s.log.Info().Str("email", email).Str("reason", string(verdict.Reason)).Msg("upload rejected by x-ray gate")
		return DiagnosisResult{}, &NotXrayError{Verdict: verdict}
	}

	allowed, err := s.quota.CheckAllowed(ctx, email)
	if err != nil {
		return DiagnosisResult{}, err
	}
	if !allowed {
		status, err := s.quota.Status(ctx, email)
		if err != nil {
			return DiagnosisResult{}, err
		}
		return DiagnosisResult{}, &QuotaExceededError{Status: status}
	}

	prediction, err := s.classifier.Classify(ctx, img)
	if err != nil {
		return DiagnosisResult{}, fmt.Errorf("classify: %w", err)
	}

	record, err := s.quota.RecordUsage(ctx, email)
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			status, statusErr := s.quota.Status(ctx, email)
			if statusErr == nil {
				return DiagnosisResult{}, &QuotaExceededError{Status: status}
			}
		}
		return DiagnosisResult{}, err
	}

	result := DiagnosisResult{
		Prediction: prediction,
		Verdict:    verdict,
		Usage:      s.quota.StatusOf(record),
	}

	if s.archive != nil {
		study, err := s.archive.Archive(ctx, ArchiveInput{
			Email:      email,
			Data:       input.Data,
			Prediction: prediction,
			Tier:       record.Tier(),
		})
		if err != nil {
			s.log.Error().Err(err).Str("email", email).Msg("archive study failed")
		} else {
			result.StudyID = study.ID
		}
	}

	s.log.Info().
		Str("email", email).
		Str("class", prediction.ClassName).
		Float64("confidence", prediction.Confidence).
		Int("remaining", result.Usage.Remaining).
		Msg("diagnosis delivered")

	return result, nil
}
