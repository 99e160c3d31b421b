package router

import (
	"modelmine/app/handler"
	"modelmine/app/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router Router
type Router struct {
	apiKey            string
	jobHandler        *handler.JobHandler
	nodeHandler       *handler.NodeHandler
	ledgerHandler     *handler.LedgerHandler
	userHandler       *handler.UserHandler
	statisticsHandler *handler.StatisticsHandler
	progressHandler   *handler.ProgressHandler
}

// Handlers groups the handlers mounted by the router
type Handlers struct {
	Job        *handler.JobHandler
	Node       *handler.NodeHandler
	Ledger     *handler.LedgerHandler
	User       *handler.UserHandler
	Statistics *handler.StatisticsHandler
	Progress   *handler.ProgressHandler
}

// NewRouter creates a new Router. apiKey guards node and admin routes.
func NewRouter(apiKey string, h Handlers) *Router {
	return &Router{
		apiKey:            apiKey,
		jobHandler:        h.Job,
		nodeHandler:       h.Node,
		ledgerHandler:     h.Ledger,
		userHandler:       h.User,
		statisticsHandler: h.Statistics,
		progressHandler:   h.Progress,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Logger())

	engine.GET("/health", r.statisticsHandler.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")
	{
		// Jobs
		jobs := api.Group("/jobs")
		{
			jobs.POST("", r.jobHandler.Submit)
			jobs.GET("", r.jobHandler.ListBySubmitter) // ?userId=
			jobs.GET("/:id", r.jobHandler.Get)
			jobs.GET("/:id/ws", r.progressHandler.WebSocket)
			jobs.GET("/:id/events", r.progressHandler.Events)
		}
		api.GET("/events", r.progressHandler.AllEvents)

		// Nodes: agents authenticate with the API key
		nodes := api.Group("/nodes")
		{
			nodes.GET("", r.nodeHandler.List)
			nodes.GET("/active", r.nodeHandler.ListActive)
			nodes.GET("/presence", r.nodeHandler.Presence)
			nodes.POST("/register", middleware.AuthMiddleware(r.apiKey), r.nodeHandler.Register)
			nodes.POST("/heartbeat", middleware.AuthMiddleware(r.apiKey), r.nodeHandler.Heartbeat)
		}

		// Ledger
		ledger := api.Group("/ledger")
		{
			ledger.GET("", r.ledgerHandler.Recent) // ?limit=
			ledger.GET("/verify", r.ledgerHandler.Verify)
			ledger.GET("/:id", r.ledgerHandler.Get)
		}

		// Users
		users := api.Group("/users")
		{
			users.GET("/:id/balance", r.userHandler.Balance)
			users.POST("", middleware.AuthMiddleware(r.apiKey), r.userHandler.Create)
			users.POST("/initialize-balances", middleware.AuthMiddleware(r.apiKey), r.userHandler.InitializeBalances)
		}

		api.GET("/network", r.statisticsHandler.Network)
	}
}
