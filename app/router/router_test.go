package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"modelmine/app/handler"
	"modelmine/internal/service"
	"modelmine/pkg/broadcast"
	"modelmine/pkg/config"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/store/memory"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type nopQueue struct{}

func (nopQueue) Enqueue(context.Context, string) error { return nil }
func (nopQueue) Start(interfaces.JobHandler) error     { return nil }
func (nopQueue) Stop()                                 {}

func newEngine(apiKey string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := config.DefaultConfig()
	repos := memory.NewRepositories()

	tokens := service.NewTokenLedger(repos.User, repos.Node)
	nodes := service.NewNodeService(repos.Node, nil, cfg.Node.Window())
	ledger := service.NewAuditLedger(repos.Ledger, nil)
	jobs := service.NewJobService(repos.Job, repos.Contribution, tokens, nodes, nopQueue{}, cfg.Token)

	r := NewRouter(apiKey, Handlers{
		Job:        handler.NewJobHandler(jobs),
		Node:       handler.NewNodeHandler(nodes),
		Ledger:     handler.NewLedgerHandler(ledger),
		User:       handler.NewUserHandler(service.NewUserService(repos.User, cfg.Token.BootstrapGrant)),
		Statistics: handler.NewStatisticsHandler(service.NewStatisticsService(repos.Job, nodes, ledger)),
		Progress:   handler.NewProgressHandler(jobs, broadcast.NewHub(4)),
	})
	engine := gin.New()
	r.Setup(engine)
	return engine
}

func serve(engine *gin.Engine, method, path, body, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestRouter_PublicRoutes(t *testing.T) {
	engine := newEngine("secret")

	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/health", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/nodes/active", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/ledger/verify", "", "").Code)
	assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v1/network", "", "").Code)

	w := serve(engine, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "modelmine_")
}

func TestRouter_NodeAndAdminRoutesRequireKey(t *testing.T) {
	engine := newEngine("secret")

	tests := []struct {
		path string
		body string
	}{
		{"/api/v1/nodes/register", `{"name":"gpu"}`},
		{"/api/v1/users", `{"id":"bob"}`},
		{"/api/v1/users/initialize-balances", ``},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodPost, tt.path, tt.body, "").Code)
			w := serve(engine, http.MethodPost, tt.path, tt.body, "Bearer secret")
			assert.Less(t, w.Code, 300, w.Body.String())
		})
	}
}

func TestRouter_OpenWhenNoKey(t *testing.T) {
	engine := newEngine("")
	w := serve(engine, http.MethodPost, "/api/v1/nodes/register", `{"name":"gpu"}`, "")
	assert.Equal(t, http.StatusCreated, w.Code)
}
