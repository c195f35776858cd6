package poller

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"assessment-backend/internal/assessments"
	"assessment-backend/internal/client"
	"assessment-backend/internal/jobs"
	"assessment-backend/internal/session"
)

type fakeBackend struct {
	mu          sync.Mutex
	createCalls int
	cancelCalls int
	createErr   error
	cancelErr   error
	statuses    []client.JobStatus
	statusIdx   int
}

func (f *fakeBackend) CreateJob(ctx context.Context, in client.CreateJobInput) (client.CreateJobResult, error) {
	_ = ctx
	_ = in
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createErr != nil {
		return client.CreateJobResult{}, f.createErr
	}
	return client.CreateJobResult{JobID: "job-1", Status: jobs.StatusPending}, nil
}

func (f *fakeBackend) GetJobStatus(ctx context.Context, jobID string) (client.JobStatus, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.statuses) == 0 {
		return client.JobStatus{JobID: jobID, Status: jobs.StatusProcessing}, nil
	}
	status := f.statuses[f.statusIdx]
	if f.statusIdx < len(f.statuses)-1 {
		f.statusIdx++
	}
	status.JobID = jobID
	return status, nil
}

func (f *fakeBackend) CancelJob(ctx context.Context, jobID string) (client.CancelResult, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls++
	if f.cancelErr != nil {
		return client.CancelResult{}, f.cancelErr
	}
	return client.CancelResult{JobID: jobID, Status: jobs.StatusCancelled, Cancelled: true}, nil
}

func (f *fakeBackend) calls() (created, cancelled int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.cancelCalls
}

func newTestStore(t *testing.T) *session.Store {
	t.Helper()
	return session.NewStore(filepath.Join(t.TempDir(), "session.json"))
}

func TestSubmitRejectsInvalidQuery(t *testing.T) {
	backend := &fakeBackend{}
	p := New(backend, newTestStore(t), Hooks{})

	if _, err := p.Submit(context.Background(), SubmitInput{Query: "   "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := p.Submit(context.Background(), SubmitInput{Query: strings.Repeat("x", 4001)}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for long query, got %v", err)
	}
	if created, _ := backend.calls(); created != 0 {
		t.Fatalf("validation failures must not reach the backend, got %d calls", created)
	}
}

func TestSubmitPollsToCompletion(t *testing.T) {
	doc := &assessments.Document{
		Hazards: []assessments.Hazard{{Text: "Live conductors", Likelihood: 4, Severity: 5, RiskScore: 20}},
	}
	backend := &fakeBackend{statuses: []client.JobStatus{
		{Status: jobs.StatusProcessing, Progress: 35, CurrentStep: "Identifying hazards and controls"},
		{Status: jobs.StatusComplete, Progress: 100, Result: doc},
	}}
	store := newTestStore(t)

	done := make(chan assessments.Document, 1)
	p := New(backend, store, Hooks{
		OnComplete: func(d assessments.Document) { done <- d },
	}, WithInterval(5*time.Millisecond))

	jobID, err := p.Submit(context.Background(), SubmitInput{Query: "rewire kitchen", WorkType: "domestic"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if jobID != "job-1" {
		t.Fatalf("unexpected job id %q", jobID)
	}

	select {
	case got := <-done:
		if len(got.Hazards) != 1 {
			t.Fatalf("unexpected result: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
	}

	snap := p.Snapshot()
	if snap.State != StateComplete || snap.Progress != 100 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if _, ok := store.Load(); ok {
		t.Fatal("session must be cleared after a terminal state")
	}
}

func TestSubmitPersistsResumableSession(t *testing.T) {
	backend := &fakeBackend{statuses: []client.JobStatus{
		{Status: jobs.StatusProcessing, Progress: 10},
	}}
	store := newTestStore(t)
	p := New(backend, store, Hooks{}, WithInterval(time.Hour))

	jobID, err := p.Submit(context.Background(), SubmitInput{Query: "rewire kitchen", WorkType: "domestic"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	state, ok := store.Load()
	if !ok {
		t.Fatal("expected a resumable session right after submit")
	}
	if state.JobID != jobID || !state.Active {
		t.Fatalf("unexpected session state: %+v", state)
	}
	if got := p.Snapshot().State; got != StatePolling {
		t.Fatalf("expected polling, got %s", got)
	}

	// Stopping tears the loop down but keeps the session for a later resume.
	p.Stop()
	if _, ok := store.Load(); !ok {
		t.Fatal("session must survive Stop")
	}
}

func TestSubmitBackendErrorClearsSession(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(session.State{JobID: "stale", Active: true}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	backend := &fakeBackend{createErr: errors.New("boom")}
	p := New(backend, store, Hooks{})

	if _, err := p.Submit(context.Background(), SubmitInput{Query: "rewire kitchen"}); err == nil {
		t.Fatal("expected submit error")
	}
	if _, ok := store.Load(); ok {
		t.Fatal("failed submission must not leave a resumable session")
	}
	if p.Snapshot().State != StateIdle {
		t.Fatalf("expected idle, got %s", p.Snapshot().State)
	}
}

func TestResumeFromSavedSession(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(session.State{JobID: "job-9", Active: true}); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	backend := &fakeBackend{statuses: []client.JobStatus{
		{Status: jobs.StatusComplete, Progress: 100, Result: &assessments.Document{}},
	}}
	done := make(chan assessments.Document, 1)
	p := New(backend, store, Hooks{
		OnComplete: func(d assessments.Document) { done <- d },
	}, WithInterval(5*time.Millisecond))

	if !p.Resume() {
		t.Fatal("expected Resume to find the session")
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion")
	}
	if got := p.Snapshot().JobID; got != "job-9" {
		t.Fatalf("unexpected job id %q", got)
	}
}

func TestResumeWithoutSession(t *testing.T) {
	p := New(&fakeBackend{}, newTestStore(t), Hooks{})
	if p.Resume() {
		t.Fatal("expected no session to resume")
	}
}

func TestProgressNeverDecreases(t *testing.T) {
	p := New(&fakeBackend{}, newTestStore(t), Hooks{})
	p.mu.Lock()
	p.state = StatePolling
	p.jobID = "job-1"
	p.applyLocked(client.JobStatus{Status: jobs.StatusProcessing, Progress: 70, CurrentStep: "Validating assessment"})
	p.applyLocked(client.JobStatus{Status: jobs.StatusProcessing, Progress: 35, CurrentStep: "Identifying hazards and controls"})
	snap := p.snapshotLocked()
	p.mu.Unlock()

	if snap.Progress != 70 {
		t.Fatalf("progress must not move backwards, got %d", snap.Progress)
	}
	if snap.CurrentStep != "Identifying hazards and controls" {
		t.Fatalf("step label should still follow the server, got %q", snap.CurrentStep)
	}
}

func TestTerminalHookFiresOnce(t *testing.T) {
	completions := 0
	p := New(&fakeBackend{}, newTestStore(t), Hooks{
		OnComplete: func(assessments.Document) { completions++ },
	})

	payload := client.JobStatus{Status: jobs.StatusComplete, Progress: 100, Result: &assessments.Document{}}
	p.mu.Lock()
	p.state = StatePolling
	p.jobID = "job-1"
	p.applyLocked(payload)
	p.applyLocked(payload)
	p.mu.Unlock()

	if completions != 1 {
		t.Fatalf("expected one completion callback, got %d", completions)
	}
}

func TestStaleReplyDiscarded(t *testing.T) {
	backend := &fakeBackend{statuses: []client.JobStatus{
		{Status: jobs.StatusComplete, Progress: 100, Result: &assessments.Document{}},
	}}
	p := New(backend, newTestStore(t), Hooks{})
	p.mu.Lock()
	p.state = StatePolling
	p.jobID = "job-1"
	p.applied = 5
	p.nextSeq = 3
	p.mu.Unlock()

	// The reply carries a terminal status but a stale sequence; it must not
	// transition the state machine.
	p.pollOnce(context.Background(), "job-1")

	if got := p.Snapshot().State; got != StatePolling {
		t.Fatalf("stale reply must be discarded, state is %s", got)
	}
}

// gateBackend blocks status fetches until the test releases them, so replies
// can be delivered out of order across a job replacement.
type gateBackend struct {
	started chan string
	release chan client.JobStatus
}

func (g *gateBackend) CreateJob(ctx context.Context, in client.CreateJobInput) (client.CreateJobResult, error) {
	_ = ctx
	_ = in
	return client.CreateJobResult{JobID: "job-1", Status: jobs.StatusPending}, nil
}

func (g *gateBackend) GetJobStatus(ctx context.Context, jobID string) (client.JobStatus, error) {
	_ = ctx
	g.started <- jobID
	status := <-g.release
	status.JobID = jobID
	return status, nil
}

func (g *gateBackend) CancelJob(ctx context.Context, jobID string) (client.CancelResult, error) {
	_ = ctx
	return client.CancelResult{JobID: jobID, Status: jobs.StatusCancelled, Cancelled: true}, nil
}

func TestLateReplyFromReplacedJobKeepsInFlightFlag(t *testing.T) {
	backend := &gateBackend{started: make(chan string), release: make(chan client.JobStatus)}
	p := New(backend, newTestStore(t), Hooks{})
	p.mu.Lock()
	p.state = StatePolling
	p.jobID = "job-old"
	p.mu.Unlock()

	oldDone := make(chan struct{})
	go func() {
		p.pollOnce(context.Background(), "job-old")
		close(oldDone)
	}()
	<-backend.started

	// Replace the job while the old request is still outstanding, the way
	// Start does, and issue the new loop's request.
	p.mu.Lock()
	p.jobID = "job-new"
	p.inFlight = false
	p.applied = p.nextSeq
	p.mu.Unlock()

	newDone := make(chan struct{})
	go func() {
		p.pollOnce(context.Background(), "job-new")
		close(newDone)
	}()
	<-backend.started

	// Deliver the old job's reply first. It must neither apply nor release
	// the in-flight flag the new request owns.
	backend.release <- client.JobStatus{Status: jobs.StatusProcessing, Progress: 99}
	<-oldDone

	p.mu.Lock()
	inFlight := p.inFlight
	progress := p.progress
	p.mu.Unlock()
	if !inFlight {
		t.Fatal("late reply from a replaced job must not clear the in-flight flag")
	}
	if progress != 0 {
		t.Fatalf("late reply must not apply, progress is %d", progress)
	}

	backend.release <- client.JobStatus{Status: jobs.StatusComplete, Progress: 100, Result: &assessments.Document{}}
	<-newDone
	if got := p.Snapshot().State; got != StateComplete {
		t.Fatalf("expected complete after the current job's reply, got %s", got)
	}
}

func TestCancelIsNoOpInTerminalStates(t *testing.T) {
	for _, state := range []State{StateComplete, StateFailed, StateCancelled, StateIdle} {
		backend := &fakeBackend{}
		p := New(backend, newTestStore(t), Hooks{})
		p.mu.Lock()
		p.state = state
		p.mu.Unlock()

		if err := p.Cancel(context.Background()); err != nil {
			t.Fatalf("%s: Cancel: %v", state, err)
		}
		if _, cancelled := backend.calls(); cancelled != 0 {
			t.Fatalf("%s: cancel must not reach the backend", state)
		}
		if got := p.Snapshot().State; got != state {
			t.Fatalf("%s: state changed to %s", state, got)
		}
	}
}

func TestCancelBackendErrorLeavesStateUnchanged(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(session.State{JobID: "job-1", Active: true}); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	backend := &fakeBackend{cancelErr: errors.New("network down")}
	p := New(backend, store, Hooks{})
	p.mu.Lock()
	p.state = StatePolling
	p.jobID = "job-1"
	p.mu.Unlock()

	if err := p.Cancel(context.Background()); err == nil {
		t.Fatal("expected cancel error")
	}
	if got := p.Snapshot().State; got != StatePolling {
		t.Fatalf("failed cancel must leave state unchanged, got %s", got)
	}
	if _, ok := store.Load(); !ok {
		t.Fatal("failed cancel must keep the session")
	}
}

func TestCancelStopsPollingAndClearsSession(t *testing.T) {
	store := newTestStore(t)
	backend := &fakeBackend{statuses: []client.JobStatus{
		{Status: jobs.StatusProcessing, Progress: 10},
	}}
	p := New(backend, store, Hooks{}, WithInterval(5*time.Millisecond))

	if _, err := p.Submit(context.Background(), SubmitInput{Query: "rewire kitchen"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := p.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if got := p.Snapshot().State; got != StateCancelled {
		t.Fatalf("expected cancelled, got %s", got)
	}
	if _, ok := store.Load(); ok {
		t.Fatal("cancel must clear the session")
	}
}

func TestRetryNeedsRememberedInputs(t *testing.T) {
	backend := &fakeBackend{statuses: []client.JobStatus{
		{Status: jobs.StatusProcessing, Progress: 10},
	}}
	p := New(backend, newTestStore(t), Hooks{}, WithInterval(time.Hour))

	if _, err := p.Retry(context.Background()); !errors.Is(err, ErrNoRememberedInputs) {
		t.Fatalf("expected ErrNoRememberedInputs, got %v", err)
	}

	if _, err := p.Submit(context.Background(), SubmitInput{Query: "rewire kitchen", WorkType: "domestic"}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := p.Retry(context.Background()); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if created, _ := backend.calls(); created != 2 {
		t.Fatalf("expected retry to re-submit, got %d create calls", created)
	}
	p.Stop()
}
