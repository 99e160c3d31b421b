package main

import (
	"context"
	"time"

	"modelmine/internal/jobs"
	"modelmine/pkg/lock"
	"modelmine/pkg/logger"

	"github.com/go-redis/redis/v8"
)

const (
	pendingRecoveryBatch   = 100
	metricsRefreshInterval = 15 * time.Second
)

func (app *Application) initJobs() error {
	if app.jobService == nil || app.statisticsService == nil {
		logger.WarnCtx(app.ctx, "Service layer not fully initialized yet, skipping background task registration")
		return nil
	}

	manager := jobs.NewManager(app.ctx)

	// Locks keep replicas from running the same cycle; without Redis they degrade to single-instance mode
	var redisClient *redis.Client
	if app.redisClient != nil {
		redisClient = app.redisClient.GetClient()
	}

	grace := app.config.Node.Grace()
	manager.Register(jobs.Locked(
		jobs.Func("pending-job-recovery", grace, func(ctx context.Context) error {
			n, err := app.jobService.RecoverPending(ctx, time.Now().Add(-grace), pendingRecoveryBatch)
			if n > 0 {
				logger.InfoCtx(ctx, "re-enqueued %d pending jobs older than %v", n, grace)
			}
			return err
		}),
		lock.NewRedisDistributedLock(redisClient, "jobs:pending-recovery-lock"),
	))

	// Gauges are per process, every replica refreshes its own
	manager.Register(jobs.Func("metrics-refresh", metricsRefreshInterval, app.statisticsService.RefreshGauges))

	app.jobsManager = manager
	return nil
}
