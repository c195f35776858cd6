package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"assessment-backend/internal/assessments"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new job.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO jobs (
    id,
    query,
    work_type,
    project_name,
    location,
    client_name,
    status,
    progress,
    current_step,
    result,
    error_code,
    error_message,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL, NULL, NULL, $10, $10)`

	_, err := r.DB.ExecContext(
		ctx,
		query,
		job.ID,
		job.Query,
		string(job.WorkType),
		nullString(job.ProjectInfo.ProjectName),
		nullString(job.ProjectInfo.Location),
		nullString(job.ProjectInfo.ClientName),
		string(job.Status),
		job.Progress,
		nullString(job.CurrentStep),
		job.CreatedAt,
	)
	return err
}

// GetByID returns a job by its ID.
func (r *PGRepo) GetByID(ctx context.Context, jobID string) (Job, error) {
	const query = `
SELECT id, query, work_type, project_name, location, client_name, status, progress, current_step, result, error_code, error_message, created_at, started_at, completed_at, updated_at
FROM jobs
WHERE id = $1`
	row := r.DB.QueryRowContext(ctx, query, jobID)
	return scanJob(row)
}

// UpdateProgress advances progress and step label. Progress is kept monotonic
// in SQL via GREATEST so a stale writer cannot move it backwards.
func (r *PGRepo) UpdateProgress(ctx context.Context, jobID string, progress int, currentStep string) error {
	const query = `
UPDATE jobs
SET progress = GREATEST(progress, $2),
    current_step = COALESCE(NULLIF($3, ''), current_step),
    updated_at = NOW()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, jobID, progress, currentStep)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateStatus updates status, result, and error fields plus timestamps.
func (r *PGRepo) UpdateStatus(ctx context.Context, jobID string, status Status, result *assessments.Document, errorCode, errorMessage *string, startedAt, completedAt *time.Time) error {
	var resultJSON any
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		resultJSON = data
	}

	const query = `
UPDATE jobs
SET status = $2,
    result = COALESCE($3, result),
    progress = CASE WHEN $3 IS NOT NULL THEN 100 ELSE progress END,
    error_code = COALESCE($4, error_code),
    error_message = COALESCE($5, error_message),
    started_at = COALESCE($6, started_at, CASE WHEN $2 = 'processing' THEN NOW() END),
    completed_at = COALESCE($7, completed_at, CASE WHEN $2 IN ('complete', 'failed', 'cancelled') THEN NOW() END),
    updated_at = NOW()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, jobID, string(status), resultJSON, errorCode, errorMessage, startedAt, completedAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// List returns jobs newest first, with limit/offset.
func (r *PGRepo) List(ctx context.Context, limit, offset int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `
SELECT id, query, work_type, project_name, location, client_name, status, progress, current_step, result, error_code, error_message, created_at, started_at, completed_at, updated_at
FROM jobs
ORDER BY created_at DESC
LIMIT $1 OFFSET $2`
	rows, err := r.DB.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (Job, error) {
	var (
		job          Job
		workType     string
		status       string
		projectName  sql.NullString
		location     sql.NullString
		clientName   sql.NullString
		currentStep  sql.NullString
		resultJSON   []byte
		errorCode    sql.NullString
		errorMessage sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
	)
	err := row.Scan(
		&job.ID,
		&job.Query,
		&workType,
		&projectName,
		&location,
		&clientName,
		&status,
		&job.Progress,
		&currentStep,
		&resultJSON,
		&errorCode,
		&errorMessage,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	job.WorkType = assessments.WorkType(workType)
	job.Status = Status(status)
	job.ProjectInfo = ProjectInfo{
		ProjectName: projectName.String,
		Location:    location.String,
		ClientName:  clientName.String,
	}
	if currentStep.Valid {
		job.CurrentStep = currentStep.String
	}
	if len(resultJSON) > 0 {
		var doc assessments.Document
		if err := json.Unmarshal(resultJSON, &doc); err != nil {
			return Job{}, fmt.Errorf("unmarshal result: %w", err)
		}
		job.Result = &doc
	}
	if errorCode.Valid {
		job.ErrorCode = &errorCode.String
	}
	if errorMessage.Valid {
		job.ErrorMessage = &errorMessage.String
	}
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

func requireRow(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

var _ Repo = (*PGRepo)(nil)
