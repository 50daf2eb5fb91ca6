package lock

import "context"

// DistributedLockManager serializes work across dagsync instances sharing one database.
type DistributedLockManager interface {
	Acquire(ctx context.Context, lockID int64) error
	Release(ctx context.Context, lockID int64) error
	Close() error
}
