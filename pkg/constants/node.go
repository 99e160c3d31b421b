package constants

import "time"

// Node status constants
type NodeStatus string

const (
	NodeStatusOnline  NodeStatus = "ONLINE"  // Heartbeating
	NodeStatusOffline NodeStatus = "OFFLINE" // Declared, never set automatically
	NodeStatusBusy    NodeStatus = "BUSY"    // Declared, not produced by the coordinator
)

func (s NodeStatus) String() string {
	return string(s)
}

const (
	// DefaultLivenessWindow is how recent a heartbeat must be for a node to receive new jobs.
	DefaultLivenessWindow = 30 * time.Second

	// DefaultHeartbeatInterval is the node agent's heartbeat period.
	DefaultHeartbeatInterval = 5 * time.Second
)
