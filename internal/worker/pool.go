package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"modelmine/internal/model"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/logger"
)

// ErrPoolStopped is returned by Enqueue after Stop.
var ErrPoolStopped = errors.New("worker pool stopped")

// Pool is the in-process job queue: a FIFO of job ids drained by a fixed
// number of goroutines, so at most size handlers run at once. An id already
// waiting in the FIFO is not queued twice.
type Pool struct {
	size int

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []string
	queued  map[string]struct{}
	running int
	started bool
	stopped bool
	wg      sync.WaitGroup
}

// NewPool creates a pool with size workers
func NewPool(size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{size: size, queued: make(map[string]struct{})}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Enqueue appends jobID to the FIFO unless it is already waiting there
func (p *Pool) Enqueue(ctx context.Context, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	if _, ok := p.queued[jobID]; ok {
		logger.DebugCtx(ctx, "job already queued, job_id: %s", jobID)
		return nil
	}
	p.queued[jobID] = struct{}{}
	p.queue = append(p.queue, jobID)
	p.cond.Signal()
	logger.DebugCtx(ctx, "job enqueued, job_id: %s, pending: %d", jobID, len(p.queue))
	return nil
}

// Start launches the workers
func (p *Pool) Start(handler interfaces.JobHandler) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	if p.started {
		return fmt.Errorf("worker pool already started")
	}
	p.started = true

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.work(handler)
	}
	logger.InfoCtx(context.Background(), "worker pool started, size: %d", p.size)
	return nil
}

func (p *Pool) work(handler interfaces.JobHandler) {
	defer p.wg.Done()
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if p.stopped {
			p.mu.Unlock()
			return
		}
		jobID := p.queue[0]
		p.queue = p.queue[1:]
		delete(p.queued, jobID)
		p.running++
		p.mu.Unlock()

		p.run(handler, jobID)

		p.mu.Lock()
		p.running--
		p.mu.Unlock()
	}
}

func (p *Pool) run(handler interfaces.JobHandler, jobID string) {
	ctx := logger.WithTraceID(context.Background(), jobID)
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorCtx(ctx, "job handler panicked, job_id: %s, panic: %v", jobID, r)
		}
	}()

	err := handler(ctx, jobID)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrAlreadyDispatched):
		logger.DebugCtx(ctx, "skipping job already dispatched, job_id: %s", jobID)
	default:
		logger.ErrorCtx(ctx, "job execution failed, job_id: %s, error: %v", jobID, err)
	}
}

// Stop stops taking work and waits for running handlers. Queued ids that
// never started are dropped; they stay PENDING in the store.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	dropped := len(p.queue)
	p.queue = nil
	p.queued = make(map[string]struct{})
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	logger.InfoCtx(context.Background(), "worker pool stopped, dropped %d queued jobs", dropped)
}

// Pending returns the number of queued job ids
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Running returns the number of handlers currently executing
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
