package interfaces

import "context"

// DistributedLock is a lock shared across coordinator replicas.
type DistributedLock interface {
	// TryLock attempts to acquire the lock without waiting.
	TryLock(ctx context.Context) (bool, error)

	// Unlock releases the lock.
	Unlock(ctx context.Context) error

	// IsHeld reports whether this instance holds the lock.
	IsHeld() bool
}
