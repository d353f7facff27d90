// Package queue admits query jobs under a bounded concurrency and waiting
// discipline, and broadcasts its state to observers.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	godebug "github.com/Shyp/go-debug"
	metrics "github.com/Shyp/go-simple-metrics"
)

var debug = godebug.Debug("sparql-proxy:queue")

// ErrQueueFull is returned by Enqueue when the waiting list is at capacity.
var ErrQueueFull = errors.New("queue: too many waiting jobs")

// State is an immutable snapshot of the queue, emitted to subscribers on
// every transition.
type State struct {
	Waiting []JobSummary `json:"waiting"`
	Running []JobSummary `json:"running"`
	Recent  []JobSummary `json:"recent"`
}

// Queue runs up to MaxConcurrency jobs in parallel and holds up to
// MaxWaiting more in FIFO order. A MaxWaiting of zero means unlimited
// admission.
type Queue struct {
	MaxConcurrency int
	MaxWaiting     int

	mu      sync.Mutex
	seq     uint64
	waiting []*Job
	running map[string]*Job
	recent  []*Job
	subs    map[chan State]bool
}

func New(maxConcurrency, maxWaiting int) *Queue {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &Queue{
		MaxConcurrency: maxConcurrency,
		MaxWaiting:     maxWaiting,
		running:        make(map[string]*Job),
		subs:           make(map[chan State]bool),
	}
}

// Enqueue admits the job and blocks until it reaches a terminal state,
// returning its outcome. Fails immediately with ErrQueueFull when the
// waiting list is at capacity.
func (q *Queue) Enqueue(job *Job) (*Result, error) {
	q.mu.Lock()
	if q.MaxWaiting > 0 && len(q.waiting) >= q.MaxWaiting {
		q.mu.Unlock()
		go metrics.Increment("queue.full")
		return nil, ErrQueueFull
	}
	job.seq = q.seq
	q.seq++
	q.waiting = append(q.waiting, job)
	debug("job %s admitted (waiting %d, running %d)", job.ID.String(), len(q.waiting), len(q.running))
	q.schedule()
	state := q.snapshot()
	q.mu.Unlock()
	go metrics.Increment("queue.admitted")
	q.publish(state)

	<-job.Done()
	return job.Outcome()
}

// schedule starts waiting jobs while slots are free. Callers must hold
// q.mu.
func (q *Queue) schedule() {
	for len(q.running) < q.MaxConcurrency && len(q.waiting) > 0 {
		job := q.waiting[0]
		q.waiting = q.waiting[1:]
		q.running[job.ID.String()] = job
		go q.work(job)
	}
}

// work runs one job to its terminal state, then frees the slot.
func (q *Queue) work(job *Job) {
	ctx, cancel := context.WithTimeout(context.Background(), job.Timeout)
	defer cancel()
	if !job.start(cancel) {
		// Cancelled after admission but before the slot freed up.
		job.finishCancelled()
		q.retire(job)
		return
	}
	debug("job %s started", job.ID.String())
	q.publishLockedSnapshot()
	start := time.Now()
	res, err := job.run(ctx)
	job.finish(res, err, ctx)
	go metrics.Time("queue.job.latency", time.Since(start))
	go metrics.Increment("queue.job." + string(job.Status()))
	debug("job %s finished: %s", job.ID.String(), job.Status())
	q.retire(job)
}

// retire moves a terminal job from running to recent and wakes the next
// waiting job.
func (q *Queue) retire(job *Job) {
	q.mu.Lock()
	delete(q.running, job.ID.String())
	q.recent = append(q.recent, job)
	q.schedule()
	state := q.snapshot()
	q.mu.Unlock()
	q.publish(state)
}

// Cancel marks a waiting or running job cancelled. It reports whether a
// transition occurred. Cancelling a waiting job removes it from the queue
// and releases its requester.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	for i, job := range q.waiting {
		if job.ID.String() == id {
			q.waiting = append(q.waiting[:i], q.waiting[i+1:]...)
			q.recent = append(q.recent, job)
			job.finishCancelled()
			state := q.snapshot()
			q.mu.Unlock()
			go metrics.Increment("queue.cancel.waiting")
			q.publish(state)
			return true
		}
	}
	if job, ok := q.running[id]; ok {
		q.mu.Unlock()
		job.Cancel()
		go metrics.Increment("queue.cancel.running")
		return true
	}
	q.mu.Unlock()
	return false
}

// JobStatus returns the most recently created job carrying the given
// token, or nil.
func (q *Queue) JobStatus(token string) *JobSummary {
	if token == "" {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	var found *Job
	consider := func(job *Job) {
		if job.Token == token && (found == nil || job.seq > found.seq) {
			found = job
		}
	}
	for _, job := range q.waiting {
		consider(job)
	}
	for _, job := range q.running {
		consider(job)
	}
	for _, job := range q.recent {
		consider(job)
	}
	if found == nil {
		return nil
	}
	s := found.Summary()
	return &s
}

// State returns the current snapshot.
func (q *Queue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.snapshot()
}

// snapshot builds a State. Callers must hold q.mu.
func (q *Queue) snapshot() State {
	state := State{
		Waiting: make([]JobSummary, 0, len(q.waiting)),
		Running: make([]JobSummary, 0, len(q.running)),
		Recent:  make([]JobSummary, 0, len(q.recent)),
	}
	for _, job := range q.waiting {
		state.Waiting = append(state.Waiting, job.Summary())
	}
	for _, job := range q.running {
		state.Running = append(state.Running, job.Summary())
	}
	for _, job := range q.recent {
		state.Recent = append(state.Recent, job.Summary())
	}
	return state
}

// SweepOldItems drops terminal jobs finished before the threshold from the
// recent list. Returns the number dropped.
func (q *Queue) SweepOldItems(threshold time.Time) int {
	q.mu.Lock()
	kept := q.recent[:0]
	dropped := 0
	for _, job := range q.recent {
		s := job.Summary()
		if s.DoneAt.Valid && s.DoneAt.Time.Before(threshold) {
			dropped++
			continue
		}
		kept = append(kept, job)
	}
	q.recent = kept
	var state State
	if dropped > 0 {
		state = q.snapshot()
	}
	q.mu.Unlock()
	if dropped > 0 {
		debug("swept %d old jobs", dropped)
		q.publish(state)
	}
	return dropped
}

// Subscribe registers a channel that receives a State snapshot on every
// queue transition. Slow subscribers miss intermediate snapshots rather
// than blocking the queue; every snapshot is complete, so a missed frame
// is only a missed refresh.
func (q *Queue) Subscribe() chan State {
	ch := make(chan State, 8)
	q.mu.Lock()
	q.subs[ch] = true
	q.mu.Unlock()
	return ch
}

func (q *Queue) Unsubscribe(ch chan State) {
	q.mu.Lock()
	delete(q.subs, ch)
	q.mu.Unlock()
}

func (q *Queue) publishLockedSnapshot() {
	q.mu.Lock()
	state := q.snapshot()
	q.mu.Unlock()
	q.publish(state)
}

func (q *Queue) publish(state State) {
	q.mu.Lock()
	subs := make([]chan State, 0, len(q.subs))
	for ch := range q.subs {
		subs = append(subs, ch)
	}
	q.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- state:
		default:
		}
	}
}
