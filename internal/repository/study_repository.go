package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akshitverma317/diagnoai/internal/models"
)

var ErrStudyNotFound = errors.New("study not found")

type StudyRepository struct {
	pool *pgxpool.Pool
}

func NewStudyRepository(pool *pgxpool.Pool) *StudyRepository {
	return &StudyRepository{pool: pool}
}

const studyColumns = `
	id, email, bucket, object_key, format, size_bytes, checksum, signature, class_name,
	confidence, secondary_class, secondary_confidence, specialist, tier, created_at
`

func scanStudy(row rowScanner) (models.Study, error) {
	var study models.Study
	if err := row.Scan(
		&study.ID,
		&study.Email,
		&study.Bucket,
		&study.ObjectKey,
		&study.Format,
		&study.SizeBytes,
		&study.Checksum,
		&study.Signature,
		&study.ClassName,
		&study.Confidence,
		&study.SecondaryClass,
		&study.SecondaryConfidence,
		&study.Specialist,
		&study.Tier,
		&study.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Study{}, ErrStudyNotFound
		}
		return models.Study{}, err
	}
	return study, nil
}

func (r *StudyRepository) Create(ctx context.Context, study models.Study) error {
	const query = `
		INSERT INTO studies (
			id, email, bucket, object_key, format, size_bytes, checksum, signature, class_name,
			confidence, secondary_class, secondary_confidence, specialist, tier, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9,
			$10, $11, $12, $13, $14, NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		study.ID,
		study.Email,
		study.Bucket,
		study.ObjectKey,
		study.Format,
		study.SizeBytes,
		study.Checksum,
		study.Signature,
		study.ClassName,
		study.Confidence,
		study.SecondaryClass,
		study.SecondaryConfidence,
		study.Specialist,
		study.Tier,
	)
	return err
}

func (r *StudyRepository) GetByID(ctx context.Context, id string) (models.Study, error) {
	const query = `SELECT ` + studyColumns + ` FROM studies WHERE id = $1`

	return scanStudy(r.pool.QueryRow(ctx, query, id))
}

func (r *StudyRepository) ListByEmail(ctx context.Context, email string, limit, offset int) ([]models.Study, error) {
	const query = `
		SELECT ` + studyColumns + `
		FROM studies
		WHERE email = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, email, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var studies []models.Study
	for rows.Next() {
		study, err := scanStudy(rows)
		if err != nil {
			return nil, err
		}
		studies = append(studies, study)
	}
	return studies, rows.Err()
}

func (r *StudyRepository) CountByEmail(ctx context.Context, email string) (int, error) {
	const query = `SELECT COUNT(*) FROM studies WHERE email = $1`

	var total int
	if err := r.pool.QueryRow(ctx, query, email).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// ListCreatedBefore returns the oldest studies archived before cutoff, at most limit rows.
func (r *StudyRepository) ListCreatedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Study, error) {
	const query = `
		SELECT ` + studyColumns + `
		FROM studies
		WHERE created_at < $1
		ORDER BY created_at ASC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var studies []models.Study
	for rows.Next() {
		study, err := scanStudy(rows)
		if err != nil {
			return nil, err
		}
		studies = append(studies, study)
	}
	return studies, rows.Err()
}

func (r *StudyRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM studies WHERE id = $1`

	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrStudyNotFound
	}
	return nil
}
