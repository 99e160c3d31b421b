package mysql

import (
	"context"
	"fmt"
	"time"

	"modelmine/internal/model"
	"modelmine/pkg/constants"

	"gorm.io/gorm"
)

// NodeRepository handles compute node persistence in MySQL
type NodeRepository struct {
	ds *Datastore
}

// NewNodeRepository creates a new node repository
func NewNodeRepository(ds *Datastore) *NodeRepository {
	return &NodeRepository{ds: ds}
}

// Create creates a new node
func (r *NodeRepository) Create(ctx context.Context, node *model.Node) error {
	row := FromNodeDomain(node)
	now := time.Now()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	if err := r.ds.DB(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	return nil
}

// Get retrieves a node by ID
func (r *NodeRepository) Get(ctx context.Context, nodeID string) (*model.Node, error) {
	var node Node
	err := r.ds.DB(ctx).Where("node_id = ?", nodeID).First(&node).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get node: %w", err)
	}
	return ToNodeDomain(&node), nil
}

// List retrieves all nodes, newest first
func (r *NodeRepository) List(ctx context.Context) ([]*model.Node, error) {
	var rows []*Node
	if err := r.ds.DB(ctx).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list nodes: %w", err)
	}
	return toNodes(rows), nil
}

// ListActive retrieves ONLINE nodes seen after since, oldest registration first
func (r *NodeRepository) ListActive(ctx context.Context, since time.Time) ([]*model.Node, error) {
	var rows []*Node
	err := r.ds.DB(ctx).
		Where("status = ? AND last_seen_at > ?", string(constants.NodeStatusOnline), since).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active nodes: %w", err)
	}
	return toNodes(rows), nil
}

// UpdateHeartbeat records a heartbeat and returns the updated node
func (r *NodeRepository) UpdateHeartbeat(ctx context.Context, nodeID string, metrics map[string]interface{}, at time.Time) (*model.Node, error) {
	result := r.ds.DB(ctx).Model(&Node{}).
		Where("node_id = ?", nodeID).
		Updates(map[string]interface{}{
			"status":       string(constants.NodeStatusOnline),
			"last_seen_at": at,
			"metrics":      JSONMap(metrics),
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update heartbeat: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, model.NotFoundf("node %s", nodeID)
	}
	return r.Get(ctx, nodeID)
}

// CreditReward adds amount to the node's balance and lifetime earnings
func (r *NodeRepository) CreditReward(ctx context.Context, nodeID string, amount int64) error {
	result := r.ds.DB(ctx).Model(&Node{}).
		Where("node_id = ?", nodeID).
		Updates(map[string]interface{}{
			"token_balance": gorm.Expr("token_balance + ?", amount),
			"total_earned":  gorm.Expr("total_earned + ?", amount),
			"updated_at":    time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to credit node: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return model.NotFoundf("node %s", nodeID)
	}
	return nil
}

func toNodes(rows []*Node) []*model.Node {
	nodes := make([]*model.Node, 0, len(rows))
	for _, row := range rows {
		nodes = append(nodes, ToNodeDomain(row))
	}
	return nodes
}
