package jobs

import (
	"context"
	"sync"
	"time"

	"modelmine/pkg/interfaces"
	"modelmine/pkg/logger"
)

// Job is a periodic background task.
type Job interface {
	Name() string
	Interval() time.Duration
	Run(ctx context.Context) error
}

// Manager runs registered jobs on their intervals until stopped.
type Manager struct {
	ctx     context.Context
	cancel  context.CancelFunc
	jobs    []Job
	started bool

	mu sync.Mutex
	wg sync.WaitGroup
}

// NewManager creates a job manager bound to the provided context.
func NewManager(parent context.Context) *Manager {
	ctx, cancel := context.WithCancel(parent)
	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make([]Job, 0),
	}
}

// Register adds a job to the manager.
func (m *Manager) Register(job Job) {
	if job == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, job)
}

// Start launches all registered jobs. Each runs once immediately.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	jobs := append([]Job(nil), m.jobs...)
	m.mu.Unlock()

	for _, job := range jobs {
		m.wg.Add(1)
		go m.runJob(job)
	}
}

// Stop signals all jobs to stop.
func (m *Manager) Stop() {
	m.cancel()
}

// Wait blocks until all jobs exit.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) runJob(job Job) {
	defer m.wg.Done()

	interval := job.Interval()
	if interval <= 0 {
		interval = time.Minute
	}

	m.executeJob(job)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.executeJob(job)
		}
	}
}

func (m *Manager) executeJob(job Job) {
	if err := job.Run(m.ctx); err != nil {
		logger.WarnCtx(m.ctx, "background job %s failed: %v", job.Name(), err)
	}
}

// Locked wraps a job so that one replica at a time runs each cycle.
// A cycle whose lock is taken elsewhere is skipped.
func Locked(job Job, lock interfaces.DistributedLock) Job {
	if lock == nil {
		return job
	}
	return &lockedJob{Job: job, lock: lock}
}

type lockedJob struct {
	Job
	lock interfaces.DistributedLock
}

func (j *lockedJob) Run(ctx context.Context) error {
	acquired, err := j.lock.TryLock(ctx)
	if err != nil || !acquired {
		logger.DebugCtx(ctx, "another instance is running %s, skipping this cycle", j.Name())
		return nil
	}
	defer j.lock.Unlock(context.WithoutCancel(ctx))

	return j.Job.Run(ctx)
}

// Func adapts a function into a Job.
func Func(name string, interval time.Duration, run func(ctx context.Context) error) Job {
	return &funcJob{name: name, interval: interval, run: run}
}

type funcJob struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Interval() time.Duration       { return j.interval }
func (j *funcJob) Run(ctx context.Context) error { return j.run(ctx) }
