package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/logger"
)

// DefaultHeartbeatInterval keeps a node well inside the coordinator's liveness window
const DefaultHeartbeatInterval = 5 * time.Second

var errNodeNotFound = errors.New("node not known to coordinator")

// Config node agent configuration
type Config struct {
	APIURL   string        // Coordinator base URL, e.g. http://localhost:4000/api/v1
	APIKey   string        // Sent as a bearer token when set
	Name     string        // Node name
	Interval time.Duration // Heartbeat period
}

// Agent registers a node and keeps it alive with periodic heartbeats.
type Agent struct {
	cfg     Config
	client  *http.Client
	collect func() map[string]interface{}

	mu     sync.Mutex
	nodeID string
}

// New creates an agent. A nil client uses a client with a 10s timeout.
func New(cfg Config, client *http.Client) *Agent {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultHeartbeatInterval
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Agent{cfg: cfg, client: client, collect: CollectMetrics}
}

// NodeID returns the id assigned at the latest registration.
func (a *Agent) NodeID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nodeID
}

// Run registers, then heartbeats until ctx is done. Only the first
// registration is fatal; later failures are logged and retried.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.Register(ctx); err != nil {
		return err
	}

	a.Beat(ctx)

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.Beat(ctx)
		}
	}
}

// Register creates the node on the coordinator and remembers its id.
func (a *Agent) Register(ctx context.Context) error {
	var node model.Node
	if err := a.post(ctx, "/nodes/register", model.RegisterNodeRequest{Name: a.cfg.Name}, &node); err != nil {
		return fmt.Errorf("failed to register node %s: %w", a.cfg.Name, err)
	}

	a.mu.Lock()
	a.nodeID = node.ID
	a.mu.Unlock()

	logger.InfoCtx(ctx, "node registered, node_id: %s, name: %s", node.ID, a.cfg.Name)
	return nil
}

// Beat sends one heartbeat, re-registering when the coordinator no longer knows the node.
func (a *Agent) Beat(ctx context.Context) {
	nodeID := a.NodeID()
	if nodeID == "" {
		if err := a.Register(ctx); err != nil {
			logger.WarnCtx(ctx, "skipping heartbeat: %v", err)
			return
		}
		nodeID = a.NodeID()
	}

	req := model.HeartbeatRequest{NodeID: nodeID, Metrics: a.collect()}
	err := a.post(ctx, "/nodes/heartbeat", req, nil)
	switch {
	case err == nil:
		logger.DebugCtx(ctx, "heartbeat sent, node_id: %s", nodeID)
	case errors.Is(err, errNodeNotFound):
		logger.WarnCtx(ctx, "node %s not found, re-registering", nodeID)
		a.mu.Lock()
		a.nodeID = ""
		a.mu.Unlock()
		if err := a.Register(ctx); err != nil {
			logger.WarnCtx(ctx, "re-registration failed: %v", err)
		}
	default:
		logger.WarnCtx(ctx, "heartbeat error, node_id: %s, error: %v", nodeID, err)
	}
}

func (a *Agent) post(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.APIURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if a.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.cfg.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errNodeNotFound
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("coordinator returned %d: %s", resp.StatusCode, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
