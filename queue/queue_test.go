package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/reika0717/sparql-proxy/test"
)

func instantRunner(body string) Runner {
	return func(ctx context.Context) (*Result, error) {
		return &Result{ContentType: "text/plain", Body: []byte(body)}, nil
	}
}

func blockingRunner(release <-chan struct{}) Runner {
	return func(ctx context.Context) (*Result, error) {
		select {
		case <-release:
			return &Result{ContentType: "text/plain", Body: []byte("done")}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func newTestJob(t *testing.T, token string, run Runner) *Job {
	t.Helper()
	job, err := NewJob("SELECT ?s WHERE { ?s ?p ?o }", token, "127.0.0.1", time.Minute, run)
	test.AssertNotError(t, err, "creating job")
	return job
}

func TestEnqueueReturnsResult(t *testing.T) {
	t.Parallel()
	q := New(1, 0)
	job := newTestJob(t, "", instantRunner("hello"))
	res, err := q.Enqueue(job)
	test.AssertNotError(t, err, "enqueue")
	test.AssertEquals(t, string(res.Body), "hello")
	test.AssertEquals(t, job.Status(), StatusSuccess)
}

func TestJobErrorPropagates(t *testing.T) {
	t.Parallel()
	q := New(1, 0)
	boom := errors.New("backend exploded")
	job := newTestJob(t, "", func(ctx context.Context) (*Result, error) {
		return nil, boom
	})
	_, err := q.Enqueue(job)
	test.AssertEquals(t, err, boom)
	test.AssertEquals(t, job.Status(), StatusError)
}

func TestQueueFull(t *testing.T) {
	t.Parallel()
	q := New(1, 1)
	release := make(chan struct{})

	first := newTestJob(t, "", blockingRunner(release))
	second := newTestJob(t, "", blockingRunner(release))
	third := newTestJob(t, "", instantRunner("nope"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		q.Enqueue(first)
	}()
	// Wait for the first job to occupy the running slot.
	waitFor(t, func() bool { return first.Status() == StatusRunning })
	go func() {
		defer wg.Done()
		q.Enqueue(second)
	}()
	waitFor(t, func() bool { return len(q.State().Waiting) == 1 })

	_, err := q.Enqueue(third)
	test.AssertEquals(t, err, ErrQueueFull)
	close(release)
	wg.Wait()
}

func TestFIFOStartOrder(t *testing.T) {
	t.Parallel()
	q := New(1, 0)
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string

	gate := newTestJob(t, "", blockingRunner(release))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.Enqueue(gate)
	}()
	waitFor(t, func() bool { return gate.Status() == StatusRunning })

	for _, name := range []string{"a", "b", "c"} {
		name := name
		job := newTestJob(t, "", func(ctx context.Context) (*Result, error) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return &Result{}, nil
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(job)
		}()
		waitFor(t, func() bool {
			state := q.State()
			for _, s := range state.Waiting {
				if s.ID == job.ID.String() {
					return true
				}
			}
			return false
		})
	}

	close(release)
	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	test.AssertDeepEquals(t, order, []string{"a", "b", "c"})
}

func TestCancelWaitingJob(t *testing.T) {
	t.Parallel()
	q := New(1, 0)
	release := make(chan struct{})
	defer close(release)

	gate := newTestJob(t, "", blockingRunner(release))
	go q.Enqueue(gate)
	waitFor(t, func() bool { return gate.Status() == StatusRunning })

	victim := newTestJob(t, "tok", instantRunner("never"))
	errs := make(chan error, 1)
	go func() {
		_, err := q.Enqueue(victim)
		errs <- err
	}()
	waitFor(t, func() bool { return len(q.State().Waiting) == 1 })

	test.Assert(t, q.Cancel(victim.ID.String()), "expected cancel to transition the job")
	test.AssertEquals(t, <-errs, ErrCancelled)
	test.AssertEquals(t, victim.Status(), StatusCancelled)
	test.AssertEquals(t, len(q.State().Waiting), 0)

	summary := q.JobStatus("tok")
	test.Assert(t, summary != nil, "expected a summary for the cancelled job")
	test.AssertEquals(t, summary.State, StatusCancelled)
}

func TestCancelRunningJob(t *testing.T) {
	t.Parallel()
	q := New(1, 0)
	release := make(chan struct{})
	defer close(release)

	job := newTestJob(t, "", blockingRunner(release))
	errs := make(chan error, 1)
	go func() {
		_, err := q.Enqueue(job)
		errs <- err
	}()
	waitFor(t, func() bool { return job.Status() == StatusRunning })

	test.Assert(t, q.Cancel(job.ID.String()), "expected cancel to transition the job")
	test.AssertEquals(t, <-errs, ErrCancelled)
	test.AssertEquals(t, job.Status(), StatusCancelled)
}

func TestCancelUnknownJob(t *testing.T) {
	t.Parallel()
	q := New(1, 0)
	test.Assert(t, !q.Cancel("job_missing"), "cancel of an unknown job should be a no-op")
}

func TestJobTimeout(t *testing.T) {
	t.Parallel()
	q := New(1, 0)
	job, err := NewJob("SELECT ?s WHERE { ?s ?p ?o }", "", "", 10*time.Millisecond, func(ctx context.Context) (*Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	test.AssertNotError(t, err, "creating job")
	_, err = q.Enqueue(job)
	test.AssertEquals(t, err, ErrTimeout)
	test.AssertEquals(t, job.Status(), StatusError)
}

func TestTerminalStateIsMonotone(t *testing.T) {
	t.Parallel()
	q := New(1, 0)
	job := newTestJob(t, "", instantRunner("ok"))
	_, err := q.Enqueue(job)
	test.AssertNotError(t, err, "enqueue")
	job.Cancel()
	test.AssertEquals(t, job.Status(), StatusSuccess)
}

func TestConcurrencyBound(t *testing.T) {
	t.Parallel()
	q := New(2, 0)
	release := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		job := newTestJob(t, "", blockingRunner(release))
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Enqueue(job)
		}()
	}
	waitFor(t, func() bool { return len(q.State().Running) == 2 })
	state := q.State()
	test.AssertEquals(t, len(state.Running), 2)
	test.AssertEquals(t, len(state.Waiting), 3)
	close(release)
	wg.Wait()
	test.AssertEquals(t, len(q.State().Running), 0)
}

func TestSweepOldItems(t *testing.T) {
	t.Parallel()
	q := New(1, 0)
	job := newTestJob(t, "tok", instantRunner("ok"))
	_, err := q.Enqueue(job)
	test.AssertNotError(t, err, "enqueue")
	test.AssertEquals(t, len(q.State().Recent), 1)

	// A threshold in the past keeps the job.
	test.AssertEquals(t, q.SweepOldItems(time.Now().Add(-time.Hour)), 0)
	test.Assert(t, q.JobStatus("tok") != nil, "job should survive the sweep")

	// A threshold in the future drops it.
	test.AssertEquals(t, q.SweepOldItems(time.Now().Add(time.Hour)), 1)
	test.Assert(t, q.JobStatus("tok") == nil, "job should be swept")
	test.AssertEquals(t, len(q.State().Recent), 0)
}

func TestJobStatusPicksMostRecent(t *testing.T) {
	t.Parallel()
	q := New(1, 0)
	first := newTestJob(t, "tok", instantRunner("one"))
	_, err := q.Enqueue(first)
	test.AssertNotError(t, err, "enqueue")
	second := newTestJob(t, "tok", instantRunner("two"))
	_, err = q.Enqueue(second)
	test.AssertNotError(t, err, "enqueue")

	summary := q.JobStatus("tok")
	test.Assert(t, summary != nil, "expected a summary")
	test.AssertEquals(t, summary.ID, second.ID.String())
}

func TestSubscribeReceivesTransitions(t *testing.T) {
	t.Parallel()
	q := New(1, 0)
	ch := q.Subscribe()
	defer q.Unsubscribe(ch)

	job := newTestJob(t, "", instantRunner("ok"))
	_, err := q.Enqueue(job)
	test.AssertNotError(t, err, "enqueue")

	// At minimum the terminal transition must be published.
	deadline := time.After(time.Second)
	for {
		select {
		case state := <-ch:
			if len(state.Recent) == 1 {
				test.AssertEquals(t, state.Recent[0].State, StatusSuccess)
				return
			}
		case <-deadline:
			t.Fatal("never saw the terminal state event")
		}
	}
}

// waitFor polls cond for up to one second.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition never became true")
}
