// Package poller tracks an in-flight generation job against the backend. It
// owns the polling loop, the job's local state machine, and the one-shot
// terminal side effects.
package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	jitterbug "github.com/lthibault/jitterbug/v2"

	"assessment-backend/internal/assessments"
	"assessment-backend/internal/client"
	"assessment-backend/internal/jobs"
	"assessment-backend/internal/session"
	"assessment-backend/internal/shared/telemetry"
)

const (
	defaultInterval = 2 * time.Second
	maxQueryLen     = 4000
)

var (
	// ErrValidation rejects a submission before any network call.
	ErrValidation = errors.New("validation error")
	// ErrNoRememberedInputs means Retry has nothing to re-submit; the caller
	// should return the user to the input view.
	ErrNoRememberedInputs = errors.New("no remembered inputs")
)

// State is the poller's lifecycle state, distinct from the job status the
// server reports.
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StateComplete  State = "complete"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions are expected.
func (s State) Terminal() bool {
	switch s {
	case StateComplete, StateFailed, StateCancelled:
		return true
	case StateIdle, StatePolling:
		return false
	default:
		return false
	}
}

// Backend is the subset of the API client the poller needs.
type Backend interface {
	CreateJob(ctx context.Context, in client.CreateJobInput) (client.CreateJobResult, error)
	GetJobStatus(ctx context.Context, jobID string) (client.JobStatus, error)
	CancelJob(ctx context.Context, jobID string) (client.CancelResult, error)
}

// Hooks are the poller's side-effect callbacks. OnComplete and OnFailed fire
// at most once per job even if the same terminal payload arrives twice.
type Hooks struct {
	OnUpdate   func(Snapshot)
	OnComplete func(assessments.Document)
	OnFailed   func(message string)
}

// Snapshot is a point-in-time view for the UI.
type Snapshot struct {
	State       State
	JobID       string
	Progress    int
	CurrentStep string
	Result      *assessments.Document
	Error       string
}

// SubmitInput is a job submission, remembered for Retry.
type SubmitInput struct {
	Query       string
	WorkType    string
	ProjectInfo jobs.ProjectInfo
}

// Poller drives one job at a time through idle -> polling -> terminal.
type Poller struct {
	backend  Backend
	store    *session.Store
	hooks    Hooks
	interval time.Duration

	mu            sync.Mutex
	state         State
	jobID         string
	progress      int
	currentStep   string
	result        *assessments.Document
	errMsg        string
	remembered    *SubmitInput
	terminalFired bool

	stopLoop context.CancelFunc
	inFlight bool
	nextSeq  uint64
	applied  uint64
}

// Option tweaks poller construction.
type Option func(*Poller)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// New constructs an idle poller.
func New(backend Backend, store *session.Store, hooks Hooks, opts ...Option) *Poller {
	p := &Poller{
		backend:  backend,
		store:    store,
		hooks:    hooks,
		interval: defaultInterval,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit validates and creates a job, persists the resume record, and starts
// polling. The session is written after creation succeeds and before the
// first poll so a restart mid-flight can resume.
func (p *Poller) Submit(ctx context.Context, in SubmitInput) (string, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return "", fmt.Errorf("%w: query must not be empty", ErrValidation)
	}
	if len(query) > maxQueryLen {
		return "", fmt.Errorf("%w: query exceeds %d characters", ErrValidation, maxQueryLen)
	}

	created, err := p.backend.CreateJob(ctx, client.CreateJobInput{
		Query:       query,
		WorkType:    in.WorkType,
		ProjectInfo: in.ProjectInfo,
	})
	if err != nil {
		// A failed submission must not look resumable.
		_ = p.store.Clear()
		return "", err
	}

	if err := p.store.Save(session.State{JobID: created.JobID, Active: true}); err != nil {
		telemetry.Error("poller.session_save_failed", map[string]any{
			"job_id": created.JobID,
			"error":  err.Error(),
		})
	}

	p.mu.Lock()
	p.remembered = &in
	p.mu.Unlock()

	p.Start(created.JobID)
	return created.JobID, nil
}

// Resume restarts polling from a persisted session, if one exists. It reports
// whether a session was found.
func (p *Poller) Resume() bool {
	state, ok := p.store.Load()
	if !ok {
		return false
	}
	p.Start(state.JobID)
	return true
}

// Start begins polling the given job. Starting an already-polled job is a
// no-op; starting a different job replaces the current loop.
func (p *Poller) Start(jobID string) {
	p.mu.Lock()
	if p.state == StatePolling && p.jobID == jobID {
		p.mu.Unlock()
		return
	}
	if p.stopLoop != nil {
		p.stopLoop()
		p.stopLoop = nil
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	p.stopLoop = cancel
	p.state = StatePolling
	p.jobID = jobID
	p.progress = 0
	p.currentStep = ""
	p.result = nil
	p.errMsg = ""
	p.terminalFired = false
	p.inFlight = false
	p.applied = p.nextSeq
	p.mu.Unlock()

	go p.loop(loopCtx, jobID)
}

// Stop tears the polling loop down without a state transition. Used on
// shutdown; a stopped poller can be resumed from the session later.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopLoop != nil {
		p.stopLoop()
		p.stopLoop = nil
	}
	if p.state == StatePolling {
		p.state = StateIdle
	}
}

// Cancel asks the backend to cancel and stops polling locally. It is a no-op
// in any terminal state, without side effects or a network call. If the
// backend call fails the local state is left unchanged so the user may retry.
func (p *Poller) Cancel(ctx context.Context) error {
	p.mu.Lock()
	if p.state.Terminal() || p.state == StateIdle {
		p.mu.Unlock()
		return nil
	}
	jobID := p.jobID
	p.mu.Unlock()

	if _, err := p.backend.CancelJob(ctx, jobID); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.jobID != jobID || p.state.Terminal() {
		return nil
	}
	if p.stopLoop != nil {
		p.stopLoop()
		p.stopLoop = nil
	}
	p.state = StateCancelled
	if err := p.store.Clear(); err != nil {
		telemetry.Error("poller.session_clear_failed", map[string]any{"job_id": jobID, "error": err.Error()})
	}
	return nil
}

// Retry re-submits with the inputs remembered from the original submission.
func (p *Poller) Retry(ctx context.Context) (string, error) {
	p.mu.Lock()
	remembered := p.remembered
	p.mu.Unlock()
	if remembered == nil {
		return "", ErrNoRememberedInputs
	}
	return p.Submit(ctx, *remembered)
}

// Snapshot returns the current view for rendering.
func (p *Poller) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Poller) snapshotLocked() Snapshot {
	return Snapshot{
		State:       p.state,
		JobID:       p.jobID,
		Progress:    p.progress,
		CurrentStep: p.currentStep,
		Result:      p.result,
		Error:       p.errMsg,
	}
}

func (p *Poller) loop(ctx context.Context, jobID string) {
	ticker := jitterbug.New(p.interval, &jitterbug.Norm{Stdev: 30 * time.Millisecond, Mean: 0})
	defer ticker.Stop()

	// Poll immediately so a resume shows fresh state without waiting a tick.
	p.pollOnce(ctx, jobID)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx, jobID)
		}
	}
}

// pollOnce issues at most one status fetch. Replies are tagged with a
// sequence number taken at request time; anything at or below the last
// applied sequence is stale and discarded.
func (p *Poller) pollOnce(ctx context.Context, jobID string) {
	p.mu.Lock()
	if p.inFlight || p.state != StatePolling || p.jobID != jobID {
		p.mu.Unlock()
		return
	}
	p.inFlight = true
	p.nextSeq++
	seq := p.nextSeq
	p.mu.Unlock()

	status, err := p.backend.GetJobStatus(ctx, jobID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.jobID != jobID || p.state != StatePolling {
		// A replaced loop owns the in-flight flag now; leave it alone.
		return
	}
	p.inFlight = false
	if ctx.Err() != nil {
		return
	}
	if seq <= p.applied {
		return
	}
	p.applied = seq

	if err != nil {
		// Transient fetch errors and job-level failures are presented the
		// same way.
		p.transitionLocked(StateFailed, "", err.Error(), nil)
		return
	}
	p.applyLocked(status)
}

func (p *Poller) applyLocked(status client.JobStatus) {
	// Displayed progress never decreases, whatever the server says.
	if status.Progress > p.progress {
		p.progress = status.Progress
	}
	if status.CurrentStep != "" {
		p.currentStep = status.CurrentStep
	}

	switch status.Status {
	case jobs.StatusPending, jobs.StatusProcessing:
		if p.hooks.OnUpdate != nil {
			p.hooks.OnUpdate(p.snapshotLocked())
		}
	case jobs.StatusComplete:
		p.progress = 100
		p.transitionLocked(StateComplete, "", "", status.Result)
	case jobs.StatusFailed:
		msg := status.Error
		if msg == "" {
			msg = "generation failed"
		}
		p.transitionLocked(StateFailed, status.ErrorCode, msg, nil)
	case jobs.StatusCancelled:
		p.transitionLocked(StateCancelled, "", "", nil)
	}
}

// transitionLocked stops the loop, records the terminal outcome, clears the
// resume record, and fires the matching hook exactly once.
func (p *Poller) transitionLocked(next State, errorCode, errMsg string, result *assessments.Document) {
	if p.stopLoop != nil {
		p.stopLoop()
		p.stopLoop = nil
	}
	p.state = next
	p.result = result
	p.errMsg = errMsg

	if err := p.store.Clear(); err != nil {
		telemetry.Error("poller.session_clear_failed", map[string]any{"job_id": p.jobID, "error": err.Error()})
	}

	if p.terminalFired {
		return
	}
	p.terminalFired = true

	telemetry.Info("poller.terminal", map[string]any{
		"job_id":     p.jobID,
		"state":      string(next),
		"error_code": errorCode,
	})

	switch next {
	case StateComplete:
		if p.hooks.OnComplete != nil && result != nil {
			p.hooks.OnComplete(*result)
		}
	case StateFailed:
		if p.hooks.OnFailed != nil {
			p.hooks.OnFailed(errMsg)
		}
	case StateIdle, StatePolling, StateCancelled:
	}
}
