package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/akshitverma317/diagnoai/internal/classifier"
	"github.com/akshitverma317/diagnoai/internal/ids"
	"github.com/akshitverma317/diagnoai/internal/media/sniffer"
	"github.com/akshitverma317/diagnoai/internal/models"
	"github.com/akshitverma317/diagnoai/internal/repository"
	"github.com/akshitverma317/diagnoai/internal/security"
	"github.com/akshitverma317/diagnoai/internal/storage"
)

type ArchiveInput struct {
	Email      string
	Data       []byte
	Prediction classifier.Prediction
	Tier       models.Tier
}

// ArchiveService stores the original upload in the object store and its result in postgres.
type ArchiveService struct {
	studies *repository.StudyRepository
	store   *storage.ObjectStore
	secret  string
	log     zerolog.Logger
}

func NewArchiveService(studies *repository.StudyRepository, store *storage.ObjectStore, signatureSecret string, log zerolog.Logger) *ArchiveService {
	return &ArchiveService{
		studies: studies,
		store:   store,
		secret:  signatureSecret,
		log:     log,
	}
}

func (s *ArchiveService) Archive(ctx context.Context, input ArchiveInput) (models.Study, error) {
	detected, err := sniffer.DetectHead(input.Data)
	if err != nil {
		return models.Study{}, fmt.Errorf("detect type: %w", err)
	}

	studyID := ids.New()
	objectKey := storage.StudyKey(studyID, detected.Extension(), time.Now())

	size, err := s.store.PutStudy(ctx, objectKey, input.Data, detected.MIME)
	if err != nil {
		return models.Study{}, err
	}

	study := models.Study{
		ID:         studyID,
		Email:      input.Email,
		Bucket:     s.store.Bucket(),
		ObjectKey:  objectKey,
		Format:     string(detected.Type),
		SizeBytes:  size,
		Checksum:   storage.Checksum(input.Data),
		Signature:  security.SignResource(s.secret, studyID, objectKey),
		ClassName:  input.Prediction.ClassName,
		Confidence: input.Prediction.Confidence,
		Specialist: input.Prediction.Specialist,
		Tier:       input.Tier,
		CreatedAt:  time.Now().UTC(),
	}
	if second := input.Prediction.Secondary; second != nil {
		study.SecondaryClass = &second.ClassName
		study.SecondaryConfidence = &second.Confidence
	}

	if err := s.studies.Create(ctx, study); err != nil {
		if rmErr := s.store.RemoveStudy(ctx, study.Bucket, objectKey); rmErr != nil {
			s.log.Warn().Err(rmErr).Str("object_key", objectKey).Msg("remove orphaned study failed")
		}
		return models.Study{}, fmt.Errorf("save study: %w", err)
	}
	return study, nil
}
