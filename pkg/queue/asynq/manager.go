package asynq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"modelmine/internal/model"
	"modelmine/pkg/config"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/logger"

	"github.com/hibiken/asynq"
)

const (
	TypeJobExecute = "job:execute"
	queueName      = "default"
)

// JobPayload is the task body; the job record itself stays in the store
type JobPayload struct {
	JobID string `json:"jobId"`
}

// Manager Redis-backed job queue
type Manager struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
}

// NewManager creates queue manager
func NewManager(cfg *config.Config) (*Manager, error) {
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("asynq queue requires redis.addr")
	}
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues: map[string]int{
				queueName: 10,
			},
			Logger:   asynqLogger{},
			LogLevel: asynq.WarnLevel,
		},
	)

	return &Manager{
		client:    asynq.NewClient(redisOpt),
		server:    server,
		mux:       asynq.NewServeMux(),
		inspector: asynq.NewInspector(redisOpt),
	}, nil
}

// Enqueue enqueues a job id. The task id is the job id, so a job that is
// already queued is not queued twice.
func (m *Manager) Enqueue(ctx context.Context, jobID string) error {
	task, err := newJobTask(jobID)
	if err != nil {
		return err
	}

	opts := []asynq.Option{
		asynq.TaskID(jobID),
		asynq.Queue(queueName),
		// Failures are settled by the executor, never retried
		asynq.MaxRetry(0),
	}

	info, err := m.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		logger.InfoCtx(ctx, "job already queued, job_id: %s", jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	logger.InfoCtx(ctx, "job enqueued, job_id: %s, queue: %s", jobID, info.Queue)
	return nil
}

// Start starts queue processor
func (m *Manager) Start(handler interfaces.JobHandler) error {
	m.mux.HandleFunc(TypeJobExecute, taskHandler(handler))
	logger.InfoCtx(context.Background(), "starting queue server")
	return m.server.Start(m.mux)
}

// Stop stops queue processor and closes the client
func (m *Manager) Stop() {
	logger.InfoCtx(context.Background(), "stopping queue server")
	m.server.Stop()
	m.server.Shutdown()
	m.client.Close()
	m.inspector.Close()
}

// GetPendingCount retrieves the number of queued jobs
func (m *Manager) GetPendingCount() (int, error) {
	info, err := m.inspector.GetQueueInfo(queueName)
	if err != nil {
		return 0, err
	}
	return info.Pending, nil
}

func newJobTask(jobID string) (*asynq.Task, error) {
	payload, err := json.Marshal(JobPayload{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job payload: %w", err)
	}
	return asynq.NewTask(TypeJobExecute, payload), nil
}

func taskHandler(handler interfaces.JobHandler) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload JobPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.JobID == "" {
			return fmt.Errorf("invalid job payload: %v: %w", err, asynq.SkipRetry)
		}

		err := handler(ctx, payload.JobID)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, model.ErrAlreadyDispatched):
			return nil
		default:
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
	}
}

// asynqLogger routes asynq's own logs through the zap logger
type asynqLogger struct{}

func (asynqLogger) Debug(args ...interface{}) {
	logger.DebugCtx(context.Background(), "asynq: %s", fmt.Sprint(args...))
}
func (asynqLogger) Info(args ...interface{}) {
	logger.InfoCtx(context.Background(), "asynq: %s", fmt.Sprint(args...))
}
func (asynqLogger) Warn(args ...interface{}) {
	logger.WarnCtx(context.Background(), "asynq: %s", fmt.Sprint(args...))
}
func (asynqLogger) Error(args ...interface{}) {
	logger.ErrorCtx(context.Background(), "asynq: %s", fmt.Sprint(args...))
}
func (asynqLogger) Fatal(args ...interface{}) {
	logger.FatalCtx(context.Background(), "asynq: %s", fmt.Sprint(args...))
}
