package group

import (
	"context"
	"sync"
)

type laneJob struct {
	fn       func()
	finished chan struct{}
}

// Lane is a single-consumer FIFO work queue. Every mutation and render for
// one group runs on its lane, so jobs never interleave and run in the order
// they were submitted. Distinct lanes run in parallel.
type Lane struct {
	jobs   chan laneJob
	quit   chan struct{}
	exited chan struct{}
	once   sync.Once
}

// NewLane starts a lane whose queue holds up to buffer pending jobs.
func NewLane(buffer int) *Lane {
	if buffer < 1 {
		buffer = 1
	}
	l := &Lane{
		jobs:   make(chan laneJob, buffer),
		quit:   make(chan struct{}),
		exited: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Lane) run() {
	defer close(l.exited)
	for {
		select {
		case <-l.quit:
			return
		default:
		}

		select {
		case <-l.quit:
			return
		case job := <-l.jobs:
			job.fn()
			close(job.finished)
		}
	}
}

// Submit enqueues fn without waiting for it to run. The returned wait
// function blocks until fn finished, the lane stopped, or ctx ended.
func (l *Lane) Submit(ctx context.Context, fn func()) (func(context.Context) error, error) {
	job := laneJob{fn: fn, finished: make(chan struct{})}
	select {
	case <-l.quit:
		return nil, ErrLaneStopped
	default:
	}
	select {
	case l.jobs <- job:
	case <-l.quit:
		return nil, ErrLaneStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	wait := func(ctx context.Context) error {
		select {
		case <-job.finished:
			return nil
		case <-l.exited:
			select {
			case <-job.finished:
				return nil
			default:
				return ErrLaneStopped
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return wait, nil
}

// Do runs fn on the lane and waits for it. It must not be called from a job
// running on the same lane.
func (l *Lane) Do(ctx context.Context, fn func()) error {
	wait, err := l.Submit(ctx, fn)
	if err != nil {
		return err
	}
	return wait(ctx)
}

// Stop stops accepting work. A job already running finishes; queued jobs are
// dropped. Safe to call from inside a job.
func (l *Lane) Stop() {
	l.once.Do(func() { close(l.quit) })
}

// Done is closed once the lane's worker exited.
func (l *Lane) Done() <-chan struct{} {
	return l.exited
}
