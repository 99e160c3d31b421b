package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"modelmine/app/handler"
	"modelmine/internal/jobs"
	"modelmine/internal/service"
	"modelmine/internal/worker"
	"modelmine/pkg/broadcast"
	"modelmine/pkg/config"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/logger"
	redisstore "modelmine/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// Application manages the lifecycle of the entire application
type Application struct {
	// Infrastructure components
	config      *config.Config
	repos       interfaces.Repositories
	redisClient *redisstore.RedisClient

	// Progress fan-out and job queue
	hub         *broadcast.Hub
	broadcaster interfaces.ProgressBroadcaster
	queue       interfaces.JobQueue
	ledgerLock  interfaces.DistributedLock

	// Service layer
	tokenLedger       *service.TokenLedger
	nodeService       *service.NodeService
	auditLedger       *service.AuditLedger
	jobService        *service.JobService
	userService       *service.UserService
	statisticsService *service.StatisticsService
	executor          *worker.Executor

	// Handler layer
	jobHandler        *handler.JobHandler
	nodeHandler       *handler.NodeHandler
	ledgerHandler     *handler.LedgerHandler
	userHandler       *handler.UserHandler
	statisticsHandler *handler.StatisticsHandler
	progressHandler   *handler.ProgressHandler

	// HTTP server
	httpServer *http.Server
	ginEngine  *gin.Engine

	// Background tasks
	jobsManager *jobs.Manager

	// Context management
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Background task cleanup functions
	cleanupFuncs []func()
}

// NewApplication creates a new Application instance
func NewApplication() *Application {
	ctx, cancel := context.WithCancel(context.Background())
	return &Application{
		ctx:          ctx,
		cancel:       cancel,
		cleanupFuncs: make([]func(), 0),
	}
}

// Initialize initializes all application components
func (app *Application) Initialize() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"Configuration", app.initConfig},
		{"Logging", app.initLogger},
		{"Store", app.initStore},
		{"Redis", app.initRedis},
		{"Progress Broadcaster", app.initBroadcaster},
		{"Job Queue", app.initQueue},
		{"Service Layer", app.initServices},
		{"Background Tasks", app.initJobs},
		{"Handler Layer", app.initHandlers},
		{"HTTP Server", app.initHTTPServer},
	}

	for _, step := range steps {
		logger.InfoCtx(app.ctx, "Initializing %s...", step.name)
		if err := step.fn(); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", step.name, err)
		}
		logger.InfoCtx(app.ctx, "%s initialized successfully", step.name)
	}

	logger.InfoCtx(app.ctx, "Application initialization completed")
	return nil
}

// Start starts all application components
func (app *Application) Start() error {
	logger.InfoCtx(app.ctx, "Starting application components...")

	// 1. Start consuming jobs
	if err := app.queue.Start(app.executor.Execute); err != nil {
		return fmt.Errorf("failed to start job queue: %w", err)
	}
	logger.InfoCtx(app.ctx, "Job queue started (provider: %s, concurrency: %d)",
		app.config.Queue.Provider, app.config.Queue.Concurrency)

	// 2. Start background tasks
	if app.jobsManager != nil {
		logger.InfoCtx(app.ctx, "Starting background task manager")
		app.jobsManager.Start()
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.jobsManager.Wait()
		}()
	}

	// 3. Start HTTP server
	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		logger.InfoCtx(app.ctx, "HTTP server listening on: %s", app.httpServer.Addr)
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FatalCtx(app.ctx, "HTTP server error: %v", err)
		}
	}()

	logger.InfoCtx(app.ctx, "All components started successfully")
	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown(timeout time.Duration) error {
	logger.InfoCtx(app.ctx, "Starting graceful shutdown (timeout: %v)...", timeout)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 1. Cancel all background tasks
	logger.InfoCtx(app.ctx, "Canceling background tasks...")
	app.cancel()
	if app.jobsManager != nil {
		app.jobsManager.Stop()
	}

	// 2. Stop HTTP server (stop accepting new requests)
	logger.InfoCtx(app.ctx, "Shutting down HTTP server...")
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.ErrorCtx(app.ctx, "HTTP server shutdown error: %v", err)
	}

	// 3. Stop the queue; running jobs finish, queued ones stay PENDING for recovery
	logger.InfoCtx(app.ctx, "Stopping job queue...")
	queueDone := make(chan struct{})
	go func() {
		app.queue.Stop()
		close(queueDone)
	}()

	// 4. Wait for all background tasks to complete
	logger.InfoCtx(app.ctx, "Waiting for background tasks to complete...")
	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		<-queueDone
		close(done)
	}()

	select {
	case <-done:
		logger.InfoCtx(app.ctx, "All background tasks completed")
	case <-shutdownCtx.Done():
		logger.WarnCtx(app.ctx, "Shutdown timeout, some tasks may not have completed")
	}

	// 5. Execute all cleanup functions (in reverse registration order)
	logger.InfoCtx(app.ctx, "Executing cleanup functions...")
	for i := len(app.cleanupFuncs) - 1; i >= 0; i-- {
		app.cleanupFuncs[i]()
	}

	logger.Sync()
	return nil
}

// registerCleanup registers cleanup function
func (app *Application) registerCleanup(cleanup func()) {
	app.cleanupFuncs = append(app.cleanupFuncs, cleanup)
}
