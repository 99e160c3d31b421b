package interfaces

import "context"

// JobHandler executes one dequeued job.
type JobHandler func(ctx context.Context, jobID string) error

// JobQueue hands job ids from the scheduler to a bounded set of workers.
// Implementations: the in-process worker pool and the Redis-backed asynq queue.
type JobQueue interface {
	// Enqueue schedules jobID for execution.
	Enqueue(ctx context.Context, jobID string) error

	// Start begins consuming with at most the configured number of concurrent handlers.
	Start(handler JobHandler) error

	// Stop stops consuming and waits for running handlers.
	Stop()
}
