package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"assessment-backend/internal/assessments"
	"assessment-backend/internal/llm"
	"assessment-backend/internal/queue"
	"assessment-backend/internal/shared/metrics"
	"assessment-backend/internal/shared/telemetry"
)

const maxQueryLen = 4000

// Generation stages reported through progress/currentStep while processing.
var stages = []struct {
	progress int
	step     string
}{
	{10, "Analysing requirements"},
	{35, "Identifying hazards and controls"},
	{70, "Validating assessment"},
	{90, "Finalising assessment"},
}

// errCancelled aborts the pipeline quietly when the user cancelled mid-run.
var errCancelled = errors.New("job cancelled")

// Service contains business logic for generation jobs.
type Service struct {
	Repo     Repo
	LLM      llm.Client
	JobQueue queue.Client
	Provider string
	Model    string
}

// CreateInput is the submission payload for a new job.
type CreateInput struct {
	Query       string
	WorkType    assessments.WorkType
	ProjectInfo ProjectInfo
}

// Create validates the submission, persists a pending job, and kicks off
// asynchronous generation (via the queue when configured, otherwise in-process).
func (s *Service) Create(ctx context.Context, input CreateInput) (Job, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return Job{}, fmt.Errorf("%w: query must not be empty", ErrValidation)
	}
	if len(query) > maxQueryLen {
		return Job{}, fmt.Errorf("%w: query exceeds %d characters", ErrValidation, maxQueryLen)
	}
	if !input.WorkType.Valid() {
		return Job{}, fmt.Errorf("%w: unknown work type %q", ErrValidation, input.WorkType)
	}

	job := Job{
		ID:          uuid.NewString(),
		Query:       query,
		WorkType:    input.WorkType,
		ProjectInfo: input.ProjectInfo,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	if err := s.Repo.Create(ctx, job); err != nil {
		return Job{}, err
	}

	if s.JobQueue != nil {
		msg := queue.Message{
			JobID:      job.ID,
			RequestID:  requestIDFromContext(ctx),
			EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
			Version:    1,
		}
		if err := s.JobQueue.Send(ctx, msg); err != nil {
			s.failJob(ctx, job.ID, fmt.Errorf("enqueue job: %w", err), nil)
			return Job{}, err
		}
	} else {
		go func() {
			_ = s.ProcessJob(backgroundWithRequestID(ctx), job.ID)
		}()
	}

	return job, nil
}

// Get returns a job by ID.
func (s *Service) Get(ctx context.Context, jobID string) (Job, error) {
	if jobID == "" {
		return Job{}, errors.New("jobID is required")
	}
	return s.Repo.GetByID(ctx, jobID)
}

// List returns jobs ordered newest-first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Job, error) {
	return s.Repo.List(ctx, limit, offset)
}

// Cancel marks a pending or processing job cancelled. Cancelling a job that
// already reached a terminal state is a no-op and reports cancelled=false.
// The remote generation may still finish; its result is discarded because
// the status row is already terminal.
func (s *Service) Cancel(ctx context.Context, jobID string) (Job, bool, error) {
	job, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return Job{}, false, err
	}
	if job.Status.Terminal() {
		return job, false, nil
	}

	completedAt := time.Now().UTC()
	if err := s.Repo.UpdateStatus(ctx, jobID, StatusCancelled, nil, nil, nil, nil, &completedAt); err != nil {
		return Job{}, false, err
	}
	metrics.IncJobCancelled()
	telemetry.Info("job.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"job_id":            jobID,
		"status":            StatusCancelled,
		"status_transition": string(job.Status) + "->cancelled",
	})

	job, err = s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return Job{}, false, err
	}
	return job, true, nil
}

// ProcessJob runs the generation pipeline for a job. It is the entry point
// used by both the queue worker and the in-process fallback.
func (s *Service) ProcessJob(ctx context.Context, jobID string) error {
	defer func() {
		if r := recover(); r != nil {
			s.failJob(ctx, jobID, fmt.Errorf("panic: %v", r), nil)
		}
	}()

	startedAt := time.Now().UTC()
	if err := s.Repo.UpdateStatus(ctx, jobID, StatusProcessing, nil, nil, nil, &startedAt, nil); err != nil {
		s.failJob(ctx, jobID, fmt.Errorf("set processing failed: %w", err), &startedAt)
		return err
	}

	job, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		s.failJob(ctx, jobID, fmt.Errorf("job lookup: %w", err), &startedAt)
		return err
	}
	metrics.IncJobStarted()
	telemetry.Info("job.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"job_id":            jobID,
		"status":            StatusProcessing,
		"status_transition": "pending->processing",
	})

	if s.LLM == nil {
		err := errors.New("missing llm client")
		s.failJob(ctx, jobID, err, &startedAt)
		return err
	}

	if err := s.advance(ctx, jobID, 0); err != nil {
		return s.finishEarly(ctx, jobID, err, &startedAt)
	}

	input := llm.GenerateInput{
		Query:       job.Query,
		WorkType:    string(job.WorkType),
		ProjectName: job.ProjectInfo.ProjectName,
		Location:    job.ProjectInfo.Location,
		ClientName:  job.ProjectInfo.ClientName,
	}

	if err := s.advance(ctx, jobID, 1); err != nil {
		return s.finishEarly(ctx, jobID, err, &startedAt)
	}

	raw, err := s.LLM.GenerateAssessment(ctx, input)
	if err != nil {
		s.failJob(ctx, jobID, fmt.Errorf("llm generate: %w", err), &startedAt)
		return err
	}

	if err := s.advance(ctx, jobID, 2); err != nil {
		return s.finishEarly(ctx, jobID, err, &startedAt)
	}

	doc, err := parseGenerated(raw)
	if err != nil {
		// one repair round-trip before giving up on the payload
		rawRetry, retryErr := s.LLM.GenerateAssessment(llm.WithFixJSON(ctx, string(raw)), input)
		if retryErr != nil {
			s.failJob(ctx, jobID, fmt.Errorf("llm generate retry: %w", retryErr), &startedAt)
			return retryErr
		}
		doc, err = parseGenerated(rawRetry)
		if err != nil {
			s.failJob(ctx, jobID, fmt.Errorf("llm output invalid: %w", err), &startedAt)
			return err
		}
	}

	if err := s.advance(ctx, jobID, 3); err != nil {
		return s.finishEarly(ctx, jobID, err, &startedAt)
	}

	doc.ProjectMeta = assessments.NewProjectMeta(
		job.ProjectInfo.ProjectName,
		job.ProjectInfo.Location,
		job.ProjectInfo.ClientName,
		job.WorkType,
		time.Now(),
	)
	normalized := doc.Normalize()

	completedAt := time.Now().UTC()
	if err := s.Repo.UpdateStatus(ctx, jobID, StatusComplete, &normalized, nil, nil, nil, &completedAt); err != nil {
		s.failJob(ctx, jobID, fmt.Errorf("set job result failed: %w", err), &startedAt)
		return err
	}
	metrics.IncJobCompleted()
	metrics.ObserveJobDurationMs(durationMs(&startedAt, &completedAt))
	telemetry.Info("job.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"job_id":            jobID,
		"status":            StatusComplete,
		"status_transition": "processing->complete",
		"duration_ms":       durationMs(&startedAt, &completedAt),
		"hazards":           len(normalized.Hazards),
	})
	return nil
}

// advance moves the job to the given stage unless the user cancelled.
func (s *Service) advance(ctx context.Context, jobID string, stage int) error {
	job, err := s.Repo.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == StatusCancelled {
		return errCancelled
	}
	st := stages[stage]
	return s.Repo.UpdateProgress(ctx, jobID, st.progress, st.step)
}

// finishEarly handles an advance failure: cancellation stops the pipeline
// quietly, anything else is a storage failure.
func (s *Service) finishEarly(ctx context.Context, jobID string, err error, startedAt *time.Time) error {
	if errors.Is(err, errCancelled) {
		telemetry.Info("job.status", map[string]any{
			"request_id": requestIDFromContext(ctx),
			"job_id":     jobID,
			"status":     StatusCancelled,
			"note":       "pipeline stopped after user cancel",
		})
		return nil
	}
	s.failJob(ctx, jobID, fmt.Errorf("advance stage: %w", err), startedAt)
	return err
}

func (s *Service) failJob(ctx context.Context, jobID string, err error, startedAt *time.Time) {
	code, _ := classifyFailure(err)
	msg := sanitizeError(err)
	completedAt := time.Now().UTC()
	if updateErr := s.Repo.UpdateStatus(context.Background(), jobID, StatusFailed, nil, &code, &msg, nil, &completedAt); updateErr != nil {
		fmt.Printf("failJob: update failed id=%s err=%v orig=%v\n", jobID, updateErr, err)
	}
	metrics.IncJobFailed()
	if startedAt != nil {
		metrics.ObserveJobDurationMs(durationMs(startedAt, &completedAt))
	}
	telemetry.Info("job.status", map[string]any{
		"request_id":        requestIDFromContext(ctx),
		"job_id":            jobID,
		"status":            StatusFailed,
		"status_transition": "processing->failed",
		"error_code":        code,
		"duration_ms":       durationMs(startedAt, &completedAt),
	})
}

func durationMs(startedAt, completedAt *time.Time) float64 {
	if startedAt == nil || completedAt == nil {
		return 0
	}
	return float64(completedAt.Sub(*startedAt).Microseconds()) / 1000.0
}

func classifyFailure(err error) (string, bool) {
	if err == nil {
		return ErrorCodeInternal, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeLLMTimeout, true
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "openai request timeout"):
		return ErrorCodeLLMTimeout, true
	case strings.Contains(msg, "timeout") && strings.Contains(msg, "llm"):
		return ErrorCodeLLMTimeout, true
	case strings.Contains(msg, "llm output invalid"), strings.Contains(msg, "llm generate"):
		return ErrorCodeLLMSchemaMismatch, false
	case strings.Contains(msg, "validation"):
		return ErrorCodeValidation, false
	case strings.Contains(msg, "job lookup"), strings.Contains(msg, "set processing"),
		strings.Contains(msg, "set job result"), strings.Contains(msg, "advance stage"),
		strings.Contains(msg, "enqueue job"):
		return ErrorCodeStorage, true
	default:
		return ErrorCodeInternal, false
	}
}

func sanitizeError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ReplaceAll(err.Error(), "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", " ")
	msg = strings.TrimSpace(msg)
	const maxLen = 500
	if len(msg) > maxLen {
		msg = msg[:maxLen]
	}
	return msg
}

// generatedPayload is the JSON shape the LLM is prompted to return.
type generatedPayload struct {
	Hazards             []assessments.Hazard  `json:"hazards"`
	PPEItems            []assessments.PPEItem `json:"ppeItems"`
	EmergencyProcedures []string              `json:"emergencyProcedures"`
	Notes               string                `json:"notes"`
}

func parseGenerated(raw json.RawMessage) (assessments.Document, error) {
	var payload generatedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return assessments.Document{}, fmt.Errorf("decode payload: %w", err)
	}
	if len(payload.Hazards) == 0 {
		return assessments.Document{}, errors.New("no hazards in payload")
	}
	return assessments.Document{
		Hazards:             payload.Hazards,
		PPEItems:            payload.PPEItems,
		EmergencyProcedures: payload.EmergencyProcedures,
		Notes:               payload.Notes,
	}, nil
}
