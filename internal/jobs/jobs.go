// Package jobs decouples slow ingestion and query work from the synchronous
// request path.
//
// Submit registers a job as processing and schedules the work on its own
// goroutine; callers poll Status until they observe a terminal state. A
// terminal entry is consumed by its first successful read: the second poll
// for the same job reports ErrNotFound rather than replaying the result.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound signals an unknown or already-consumed job ID.
var ErrNotFound = errors.New("job not found")

// State is a job's lifecycle state. A job transitions exactly once from
// StateProcessing to one of the terminal states.
type State string

const (
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// Status is the caller-visible snapshot of a job.
type Status struct {
	ID     uuid.UUID `json:"jobId"`
	State  State     `json:"status"`
	Result any       `json:"result,omitempty"`
	Error  string    `json:"error,omitempty"`
}

// Work is a unit of background work. The context is the tracker's background
// context, which outlives the submitting request.
type Work func(ctx context.Context) (any, error)

type job struct {
	state  State
	result any
	errMsg string
}

// Tracker runs submitted work in the background and records outcomes for
// polling. All operations are linearizable per job ID: a job is never
// visible before Submit returns, and the terminal-read-then-delete in
// Status is atomic.
//
// There is no cancellation: once submitted, work runs to completion or
// failure. Close waits for in-flight work before returning.
type Tracker struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*job

	bgCtx  context.Context
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewTracker creates a tracker whose background work runs under bgCtx.
// bgCtx should be the application lifecycle context, not a request context.
func NewTracker(bgCtx context.Context, logger *slog.Logger) *Tracker {
	if bgCtx == nil {
		bgCtx = context.Background()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		jobs:   make(map[uuid.UUID]*job),
		bgCtx:  bgCtx,
		logger: logger,
	}
}

// Submit registers a processing job, schedules work outside the caller's
// path, and returns the job ID without waiting.
func (t *Tracker) Submit(work Work) uuid.UUID {
	id := uuid.New()

	t.mu.Lock()
	t.jobs[id] = &job{state: StateProcessing}
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(id, work)
	}()

	t.logger.Debug("job submitted", "job_id", id)
	return id
}

// run executes work and records the single terminal transition.
func (t *Tracker) run(id uuid.UUID, work Work) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("job panicked", "job_id", id, "panic", r)
			t.finish(id, nil, fmt.Errorf("job panicked: %v", r))
		}
	}()

	result, err := work(t.bgCtx)
	t.finish(id, result, err)
}

// finish records the terminal state. A job already terminal (or consumed)
// is never updated again.
func (t *Tracker) finish(id uuid.UUID, result any, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok || j.state != StateProcessing {
		return
	}
	if err != nil {
		j.state = StateError
		j.errMsg = err.Error()
		t.logger.Warn("job failed", "job_id", id, "error", err)
		return
	}
	j.state = StateCompleted
	j.result = result
	t.logger.Debug("job completed", "job_id", id)
}

// Status returns the job's current state. The first read that observes a
// terminal state removes the entry under the same lock, so exactly one
// caller consumes each result; later reads get ErrNotFound.
func (t *Tracker) Status(id uuid.UUID) (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs[id]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	st := Status{ID: id, State: j.state, Result: j.result, Error: j.errMsg}
	if j.state != StateProcessing {
		delete(t.jobs, id)
	}
	return st, nil
}

// Close waits for all in-flight work to finish.
func (t *Tracker) Close() {
	t.wg.Wait()
}
