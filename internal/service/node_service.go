package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/constants"
	"modelmine/pkg/interfaces"
	"modelmine/pkg/logger"

	"github.com/google/uuid"
)

// NodeService Node registry service
type NodeService struct {
	nodes    interfaces.NodeRepository
	presence interfaces.NodePresenceCache
	window   time.Duration
	now      func() time.Time
}

// NewNodeService creates a new node service. presence may be nil.
func NewNodeService(nodes interfaces.NodeRepository, presence interfaces.NodePresenceCache, window time.Duration) *NodeService {
	if window <= 0 {
		window = constants.DefaultLivenessWindow
	}
	return &NodeService{
		nodes:    nodes,
		presence: presence,
		window:   window,
		now:      time.Now,
	}
}

// SetClock replaces the time source
func (s *NodeService) SetClock(now func() time.Time) {
	s.now = now
}

// Window returns the liveness window
func (s *NodeService) Window() time.Duration {
	return s.window
}

// Register creates an ONLINE node seen now
func (s *NodeService) Register(ctx context.Context, name string) (*model.Node, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.Validationf("node name is required")
	}

	now := s.now()
	node := &model.Node{
		ID:         uuid.New().String(),
		Name:       name,
		Status:     constants.NodeStatusOnline,
		LastSeenAt: &now,
		Metrics:    map[string]interface{}{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.nodes.Create(ctx, node); err != nil {
		return nil, fmt.Errorf("failed to register node: %w", err)
	}

	s.publishPresence(ctx, node)
	logger.InfoCtx(ctx, "node registered, node_id: %s, name: %s", node.ID, node.Name)
	return node, nil
}

// Heartbeat marks the node ONLINE, seen now, and stores its metrics verbatim
func (s *NodeService) Heartbeat(ctx context.Context, nodeID string, metrics map[string]interface{}) (*model.Node, error) {
	if nodeID == "" {
		return nil, model.Validationf("node id is required")
	}
	node, err := s.nodes.UpdateHeartbeat(ctx, nodeID, metrics, s.now())
	if err != nil {
		return nil, err
	}

	s.publishPresence(ctx, node)
	logger.DebugCtx(ctx, "heartbeat received, node_id: %s", nodeID)
	return node, nil
}

// ListActive returns live nodes, oldest registration first
func (s *NodeService) ListActive(ctx context.Context) ([]*model.Node, error) {
	now := s.now()
	candidates, err := s.nodes.ListActive(ctx, now.Add(-s.window))
	if err != nil {
		return nil, fmt.Errorf("failed to list active nodes: %w", err)
	}

	// Re-check with the domain predicate so both stores agree on the boundary
	active := make([]*model.Node, 0, len(candidates))
	for _, n := range candidates {
		if n.IsActive(now, s.window) {
			active = append(active, n)
		}
	}
	return active, nil
}

// PickOldestActive returns the assignment target, nil when no node is live
func (s *NodeService) PickOldestActive(ctx context.Context) (*model.Node, error) {
	active, err := s.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(active) == 0 {
		return nil, nil
	}
	return active[0], nil
}

// List returns all nodes, newest first
func (s *NodeService) List(ctx context.Context) ([]*model.Node, error) {
	return s.nodes.List(ctx)
}

// Get returns a node or ErrNotFound
func (s *NodeService) Get(ctx context.Context, nodeID string) (*model.Node, error) {
	node, err := s.nodes.Get(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	if node == nil {
		return nil, model.NotFoundf("node %s", nodeID)
	}
	return node, nil
}

// IsActive applies the liveness predicate at the current time
func (s *NodeService) IsActive(node *model.Node) bool {
	return node.IsActive(s.now(), s.window)
}

// Presence returns the nodes in the shared presence cache, nil when disabled
func (s *NodeService) Presence(ctx context.Context) ([]*model.Node, error) {
	if s.presence == nil {
		return nil, nil
	}
	return s.presence.GetAll(ctx)
}

func (s *NodeService) publishPresence(ctx context.Context, node *model.Node) {
	if s.presence == nil {
		return
	}
	if err := s.presence.Save(ctx, node); err != nil {
		logger.WarnCtx(ctx, "failed to update node presence, node_id: %s, error: %v", node.ID, err)
	}
}
