package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/cv-evaluation-pipeline/internal/models"
)

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobTerminal = errors.New("job already in a terminal state")
	ErrLeaseHeld   = errors.New("job lease held by another worker")
	ErrLeaseLost   = errors.New("job lease no longer owned")
)

type JobRepository interface {
	Create(ctx context.Context, cvID, submissionID uuid.UUID, title string) (*models.Job, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// Claim takes a time-bounded lease on a processing job and counts the attempt.
	Claim(ctx context.Context, id uuid.UUID, owner string, ttl time.Duration) (*models.Job, error)
	// Complete stores the raw result and moves the job to completed. Only the lease owner may do so.
	Complete(ctx context.Context, id uuid.UUID, owner string, result string) error
	// Fail moves a processing job to failed regardless of lease ownership.
	Fail(ctx context.Context, id uuid.UUID, errorMsg string) error
}

type jobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewJobRepository(db *gorm.DB) JobRepository {
	return &jobRepository{db: db, now: time.Now}
}

func (r *jobRepository) Create(ctx context.Context, cvID, submissionID uuid.UUID, title string) (*models.Job, error) {
	now := r.now()
	job := &models.Job{
		ID:           uuid.New(),
		CVID:         cvID,
		SubmissionID: submissionID,
		Title:        title,
		Status:       models.StatusProcessing,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

func (r *jobRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
		}
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return &job, nil
}

func (r *jobRepository) Claim(ctx context.Context, id uuid.UUID, owner string, ttl time.Duration) (*models.Job, error) {
	now := r.now()

	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.StatusProcessing).
		Where("(lease_owner IS NULL OR lease_owner = ? OR lease_expires_at < ?)", owner, now).
		Updates(map[string]interface{}{
			"lease_owner":      owner,
			"lease_expires_at": now.Add(ttl),
			"attempts":         gorm.Expr("attempts + 1"),
			"updated_at":       now,
		})

	if result.Error != nil {
		return nil, fmt.Errorf("failed to claim job: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return nil, r.explainMiss(ctx, id, ErrLeaseHeld)
	}

	return r.FindByID(ctx, id)
}

func (r *jobRepository) Complete(ctx context.Context, id uuid.UUID, owner string, output string) error {
	now := r.now()

	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ? AND lease_owner = ?", id, models.StatusProcessing, owner).
		Updates(map[string]interface{}{
			"status":           models.StatusCompleted,
			"result":           output,
			"lease_owner":      nil,
			"lease_expires_at": nil,
			"updated_at":       now,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update result: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return r.explainMiss(ctx, id, ErrLeaseLost)
	}

	return nil
}

func (r *jobRepository) Fail(ctx context.Context, id uuid.UUID, errorMsg string) error {
	result := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.StatusProcessing).
		Updates(map[string]interface{}{
			"status":           models.StatusFailed,
			"error_message":    errorMsg,
			"lease_owner":      nil,
			"lease_expires_at": nil,
			"updated_at":       r.now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update error: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return r.explainMiss(ctx, id, ErrLeaseLost)
	}

	return nil
}

// explainMiss turns a conditional update that touched no rows into the
// reason it did not apply.
func (r *jobRepository) explainMiss(ctx context.Context, id uuid.UUID, fallback error) error {
	job, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrJobTerminal, id, job.Status)
	}
	return fmt.Errorf("%w: %s", fallback, id)
}
