package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"assessment-backend/internal/assessments"
)

// MemoryRepo stores jobs in memory and is safe for concurrent use.
type MemoryRepo struct {
	mu   sync.RWMutex
	byID map[string]Job
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{byID: make(map[string]Job)}
}

// Create stores the job.
func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[job.ID] = job
	return nil
}

// GetByID returns a job by its ID.
func (r *MemoryRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.byID[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

// UpdateProgress advances the progress percentage and step label. Progress
// never moves backwards; a lower value than the stored one is ignored.
func (r *MemoryRepo) UpdateProgress(ctx context.Context, jobID string, progress int, currentStep string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok {
		return ErrNotFound
	}
	if progress > job.Progress {
		job.Progress = progress
	}
	if currentStep != "" {
		job.CurrentStep = currentStep
	}
	job.UpdatedAt = time.Now().UTC()
	r.byID[jobID] = job
	return nil
}

// UpdateStatus updates status, result, and error fields plus timestamps.
func (r *MemoryRepo) UpdateStatus(ctx context.Context, jobID string, status Status, result *assessments.Document, errorCode, errorMessage *string, startedAt, completedAt *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.byID[jobID]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	if result != nil {
		job.Result = result
		job.Progress = 100
	}
	if errorCode != nil {
		job.ErrorCode = errorCode
	}
	if errorMessage != nil {
		job.ErrorMessage = errorMessage
	}
	if startedAt != nil {
		job.StartedAt = startedAt
	} else if status == StatusProcessing && job.StartedAt == nil {
		now := time.Now().UTC()
		job.StartedAt = &now
	}
	if completedAt != nil {
		job.CompletedAt = completedAt
	} else if status.Terminal() && job.CompletedAt == nil {
		now := time.Now().UTC()
		job.CompletedAt = &now
	}
	job.UpdatedAt = time.Now().UTC()
	r.byID[jobID] = job
	return nil
}

// List returns jobs newest first, with limit/offset.
func (r *MemoryRepo) List(ctx context.Context, limit, offset int) ([]Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	if limit < 0 {
		limit = 0
	}

	r.mu.RLock()
	all := make([]Job, 0, len(r.byID))
	for _, job := range r.byID {
		all = append(all, job)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []Job{}, nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end], nil
}

var _ Repo = (*MemoryRepo)(nil)
