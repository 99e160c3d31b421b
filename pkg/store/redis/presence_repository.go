package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"modelmine/internal/model"

	"github.com/go-redis/redis/v8"
)

const (
	nodeKeyPrefix = "node:presence:" // Last heartbeat snapshot per node
	nodeSetKey    = "nodes:presence" // Node ids that heartbeated recently
)

// PresenceRepository caches the latest heartbeat of every node in Redis.
// Entries expire after the liveness window, so the cache only ever holds
// nodes that are live from some replica's point of view.
type PresenceRepository struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewPresenceRepository creates a presence cache whose entries live for ttl
func NewPresenceRepository(redisClient *RedisClient, ttl time.Duration) *PresenceRepository {
	return &PresenceRepository{
		redis: redisClient.GetClient(),
		ttl:   ttl,
	}
}

// Save stores a node heartbeat snapshot
func (r *PresenceRepository) Save(ctx context.Context, node *model.Node) error {
	data, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("failed to marshal node: %w", err)
	}

	pipe := r.redis.Pipeline()
	pipe.Set(ctx, nodeKeyPrefix+node.ID, data, r.ttl)
	pipe.SAdd(ctx, nodeSetKey, node.ID)
	pipe.Expire(ctx, nodeSetKey, r.ttl*2)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save node presence: %w", err)
	}
	return nil
}

// Get retrieves a node snapshot, nil when it expired or never existed
func (r *PresenceRepository) Get(ctx context.Context, nodeID string) (*model.Node, error) {
	data, err := r.redis.Get(ctx, nodeKeyPrefix+nodeID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get node presence: %w", err)
	}

	var node model.Node
	if err := json.Unmarshal([]byte(data), &node); err != nil {
		return nil, fmt.Errorf("failed to unmarshal node: %w", err)
	}
	return &node, nil
}

// GetAll retrieves every node snapshot that has not expired
func (r *PresenceRepository) GetAll(ctx context.Context) ([]*model.Node, error) {
	nodeIDs, err := r.redis.SMembers(ctx, nodeSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get node list: %w", err)
	}
	if len(nodeIDs) == 0 {
		return []*model.Node{}, nil
	}

	pipe := r.redis.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(nodeIDs))
	for _, nodeID := range nodeIDs {
		cmds = append(cmds, pipe.Get(ctx, nodeKeyPrefix+nodeID))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to fetch node presence: %w", err)
	}

	nodes := make([]*model.Node, 0, len(nodeIDs))
	var expired []interface{}
	for i, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil {
			// Expired, prune from the set below
			expired = append(expired, nodeIDs[i])
			continue
		}

		var node model.Node
		if err := json.Unmarshal([]byte(data), &node); err != nil {
			continue
		}
		nodes = append(nodes, &node)
	}

	if len(expired) > 0 {
		_ = r.redis.SRem(ctx, nodeSetKey, expired...).Err()
	}
	return nodes, nil
}

// Delete removes a node snapshot
func (r *PresenceRepository) Delete(ctx context.Context, nodeID string) error {
	pipe := r.redis.Pipeline()
	pipe.Del(ctx, nodeKeyPrefix+nodeID)
	pipe.SRem(ctx, nodeSetKey, nodeID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete node presence: %w", err)
	}
	return nil
}
