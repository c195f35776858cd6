package jobs

import (
	"context"
	"time"

	"assessment-backend/internal/assessments"
)

// Repo defines persistence operations for generation jobs.
type Repo interface {
	Create(ctx context.Context, job Job) error
	GetByID(ctx context.Context, jobID string) (Job, error)
	UpdateProgress(ctx context.Context, jobID string, progress int, currentStep string) error
	UpdateStatus(ctx context.Context, jobID string, status Status, result *assessments.Document, errorCode, errorMessage *string, startedAt, completedAt *time.Time) error
	List(ctx context.Context, limit, offset int) ([]Job, error)
}
