package main

import (
	"fmt"
	"net/http"
	"time"

	"modelmine/app/handler"
	"modelmine/app/router"
	"modelmine/internal/service"
	"modelmine/internal/worker"
	"modelmine/pkg/broadcast"
	"modelmine/pkg/config"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/lock"
	"modelmine/pkg/logger"
	"modelmine/pkg/notification"
	"modelmine/pkg/queue"
	"modelmine/pkg/store/memory"
	mysqlstore "modelmine/pkg/store/mysql"
	redisstore "modelmine/pkg/store/redis"

	"github.com/gin-gonic/gin"
)

// initConfig initializes configuration
func (app *Application) initConfig() error {
	if err := config.Init(); err != nil {
		return err
	}
	app.config = config.GlobalConfig
	return nil
}

// initLogger initializes logging
func (app *Application) initLogger() error {
	if err := logger.Init(app.config.Logger); err != nil {
		return err
	}
	app.registerCleanup(func() {
		logger.InfoCtx(app.ctx, "Logging system has been closed")
		logger.Sync()
	})
	return nil
}

// initStore initializes the repository backend selected by store.backend
func (app *Application) initStore() error {
	if app.config.Store.Backend != "mysql" {
		app.repos = memory.NewRepositories()
		logger.InfoCtx(app.ctx, "Using in-memory store, state is lost on restart")
		return nil
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		app.config.MySQL.User,
		app.config.MySQL.Password,
		app.config.MySQL.Host,
		app.config.MySQL.Port,
		app.config.MySQL.Database,
	)

	repo, err := mysqlstore.NewRepository(app.ctx, dsn)
	if err != nil {
		return err
	}

	app.repos = repo.Repositories()
	app.registerCleanup(func() {
		repo.Close()
		logger.InfoCtx(app.ctx, "MySQL connection has been closed")
	})
	return nil
}

// initRedis initializes Redis when enabled
func (app *Application) initRedis() error {
	if !app.config.Redis.Enabled {
		logger.InfoCtx(app.ctx, "Redis disabled, running in single-instance mode")
		return nil
	}

	client, err := redisstore.NewRedisClient(app.ctx, app.config.Redis)
	if err != nil {
		return err
	}

	app.redisClient = client
	app.ledgerLock = lock.NewRedisDistributedLock(client.GetClient(), app.config.Ledger.LockKey)
	app.registerCleanup(func() {
		client.Close()
		logger.InfoCtx(app.ctx, "Redis connection has been closed")
	})
	return nil
}

// initBroadcaster initializes the progress broadcaster; Redis relays across replicas
func (app *Application) initBroadcaster() error {
	app.hub = broadcast.NewHub(broadcast.DefaultBufferSize)
	if app.redisClient == nil {
		app.broadcaster = app.hub
		return nil
	}

	rb := broadcast.NewRedisBroadcaster(app.redisClient.GetClient(), app.hub)
	if err := rb.Start(app.ctx); err != nil {
		return err
	}
	app.broadcaster = rb
	app.registerCleanup(func() {
		rb.Close()
		logger.InfoCtx(app.ctx, "Progress relay has been closed")
	})
	return nil
}

// initQueue initializes the job queue selected by queue.provider
func (app *Application) initQueue() error {
	q, err := queue.CreateJobQueue(app.config)
	if err != nil {
		return err
	}
	app.queue = q
	return nil
}

// initServices initializes service layer
func (app *Application) initServices() error {
	app.tokenLedger = service.NewTokenLedger(app.repos.User, app.repos.Node)

	var presence interfaces.NodePresenceCache
	if app.redisClient != nil {
		presence = redisstore.NewPresenceRepository(app.redisClient, app.config.Node.Window())
	}
	app.nodeService = service.NewNodeService(app.repos.Node, presence, app.config.Node.Window())

	app.auditLedger = service.NewAuditLedger(app.repos.Ledger, app.ledgerLock)

	app.jobService = service.NewJobService(
		app.repos.Job,
		app.repos.Contribution,
		app.tokenLedger,
		app.nodeService,
		app.queue,
		app.config.Token,
	)

	app.userService = service.NewUserService(app.repos.User, app.config.Token.BootstrapGrant)
	app.statisticsService = service.NewStatisticsService(app.repos.Job, app.nodeService, app.auditLedger)

	app.executor = worker.NewExecutor(
		app.repos.Job,
		app.repos.Contribution,
		app.tokenLedger,
		app.auditLedger,
		app.broadcaster,
		worker.SimulatedWorkload{Interval: app.config.Execution.StepInterval()},
		worker.ExecutorConfig{
			TotalSteps:  app.config.Execution.TotalSteps,
			StepTimeout: app.config.Execution.StepTimeout(),
		},
	)
	app.executor.SetAlarm(notification.NewFeishuNotifier(app.config.Notification.FeishuWebhookURL))
	return nil
}

// initHandlers initializes handler layer
func (app *Application) initHandlers() error {
	app.jobHandler = handler.NewJobHandler(app.jobService)
	app.nodeHandler = handler.NewNodeHandler(app.nodeService)
	app.ledgerHandler = handler.NewLedgerHandler(app.auditLedger)
	app.userHandler = handler.NewUserHandler(app.userService)
	app.statisticsHandler = handler.NewStatisticsHandler(app.statisticsService)
	app.progressHandler = handler.NewProgressHandler(app.jobService, app.broadcaster)
	return nil
}

// initHTTPServer initializes HTTP server
func (app *Application) initHTTPServer() error {
	r := router.NewRouter(app.config.Server.APIKey, router.Handlers{
		Job:        app.jobHandler,
		Node:       app.nodeHandler,
		Ledger:     app.ledgerHandler,
		User:       app.userHandler,
		Statistics: app.statisticsHandler,
		Progress:   app.progressHandler,
	})

	gin.SetMode(app.config.Server.Mode)
	app.ginEngine = gin.New()
	r.Setup(app.ginEngine)

	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           app.ginEngine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}
