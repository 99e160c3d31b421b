package queue

import (
	"fmt"

	"modelmine/internal/worker"
	"modelmine/pkg/config"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/queue/asynq"
)

// CreateJobQueue creates the job queue selected by queue.provider
func CreateJobQueue(cfg *config.Config) (interfaces.JobQueue, error) {
	switch cfg.Queue.Provider {
	case "memory", "":
		return worker.NewPool(cfg.Queue.Concurrency), nil
	case "asynq":
		return asynq.NewManager(cfg)
	default:
		return nil, fmt.Errorf("unsupported queue provider type: %s", cfg.Queue.Provider)
	}
}
