package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Shyp/go-types"
)

const Prefix = "job_"

// JobStatus tracks a job through its lifecycle. Transitions are monotone:
// waiting -> running -> one of the terminal states.
type JobStatus string

const StatusWaiting = JobStatus("waiting")
const StatusRunning = JobStatus("running")
const StatusSuccess = JobStatus("success")
const StatusError = JobStatus("error")
const StatusCancelled = JobStatus("cancelled")

// Terminal reports whether no further transitions are permitted.
func (s JobStatus) Terminal() bool {
	return s == StatusSuccess || s == StatusError || s == StatusCancelled
}

// ErrCancelled is the outcome of a job cancelled by a client or an admin.
var ErrCancelled = errors.New("queue: job cancelled")

// ErrTimeout is the outcome of a job that exceeded its timeout while
// running.
var ErrTimeout = errors.New("queue: job timed out")

// A Result is the successful outcome of one job.
type Result struct {
	ContentType string
	Body        []byte
}

// A Runner does the real work for one job. It must honour ctx: when the
// context is cancelled any in-flight request should be aborted.
type Runner func(ctx context.Context) (*Result, error)

// A Job is one query attempt. It is created by the HTTP front-end, its
// state is driven by the Queue, and its outcome is produced by the Runner.
type Job struct {
	ID      types.PrefixUUID
	Token   string
	Query   string
	IP      string
	Timeout time.Duration

	run Runner
	seq uint64

	mu        sync.Mutex
	status    JobStatus
	createdAt time.Time
	startedAt types.NullTime
	doneAt    types.NullTime
	result    *Result
	err       error
	cancelled bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewJob creates a job in the waiting state. query should be the canonical
// query text; token may be empty.
func NewJob(query, token, ip string, timeout time.Duration, run Runner) (*Job, error) {
	id, err := types.GenerateUUID(Prefix)
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:        id,
		Token:     token,
		Query:     query,
		IP:        ip,
		Timeout:   timeout,
		run:       run,
		status:    StatusWaiting,
		createdAt: time.Now().UTC(),
		done:      make(chan struct{}),
	}, nil
}

// Done is closed once the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Status returns the job's current state.
func (j *Job) Status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Outcome returns the job's result or error. Only valid after Done is
// closed.
func (j *Job) Outcome() (*Result, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result, j.err
}

// Cancel requests cancellation. Idempotent; safe in any state. A waiting
// job is finished by the queue instead, so this only has to abort running
// work.
func (j *Job) Cancel() {
	j.mu.Lock()
	j.cancelled = true
	cancel := j.cancel
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// start transitions the job to running. Returns false if the job is no
// longer waiting or cancellation was requested before a worker picked it
// up.
func (j *Job) start(cancel context.CancelFunc) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != StatusWaiting || j.cancelled {
		return false
	}
	j.status = StatusRunning
	j.startedAt = types.NullTime{Valid: true, Time: time.Now().UTC()}
	j.cancel = cancel
	return true
}

// finish records the job's terminal state exactly once. ctx is the
// context the Runner ran under, used to tell a timeout from a
// cancellation.
func (j *Job) finish(res *Result, err error, ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.doneAt = types.NullTime{Valid: true, Time: time.Now().UTC()}
	switch {
	case j.cancelled:
		j.status = StatusCancelled
		j.err = ErrCancelled
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded):
		j.status = StatusError
		j.err = ErrTimeout
	case err != nil:
		j.status = StatusError
		j.err = err
	default:
		j.status = StatusSuccess
		j.result = res
	}
	close(j.done)
}

// finishCancelled terminates a job that never ran.
func (j *Job) finishCancelled() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return
	}
	j.status = StatusCancelled
	j.cancelled = true
	j.doneAt = types.NullTime{Valid: true, Time: time.Now().UTC()}
	j.err = ErrCancelled
	close(j.done)
}

// A JobSummary is the observer-safe view of a job: everything but the
// result body.
type JobSummary struct {
	ID        string         `json:"id"`
	Token     string         `json:"token,omitempty"`
	State     JobStatus      `json:"state"`
	Query     string         `json:"query"`
	IP        string         `json:"ip,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	StartedAt types.NullTime `json:"started_at"`
	DoneAt    types.NullTime `json:"done_at"`
	Error     string         `json:"error,omitempty"`
}

// Summary snapshots the job. Safe to call from any goroutine.
func (j *Job) Summary() JobSummary {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := JobSummary{
		ID:        j.ID.String(),
		Token:     j.Token,
		State:     j.status,
		Query:     j.Query,
		IP:        j.IP,
		CreatedAt: j.createdAt,
		StartedAt: j.startedAt,
		DoneAt:    j.doneAt,
	}
	if j.err != nil {
		s.Error = j.err.Error()
	}
	return s
}
