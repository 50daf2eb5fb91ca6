package lock

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresDistributedLockManager holds session-level advisory locks. Postgres ties
// them to the connection that took them, so every call goes through one pinned conn.
type PostgresDistributedLockManager struct {
	conn *sql.Conn
}

func NewPostgresDistributedLockManager(ctx context.Context, db *sql.DB) (*PostgresDistributedLockManager, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve lock connection: %w", err)
	}
	return &PostgresDistributedLockManager{conn: conn}, nil
}

func (l *PostgresDistributedLockManager) Acquire(ctx context.Context, lockID int64) error {
	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockID); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

func (l *PostgresDistributedLockManager) Release(ctx context.Context, lockID int64) error {
	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", lockID); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Conn is the connection holding the locks.
func (l *PostgresDistributedLockManager) Conn() *sql.Conn {
	return l.conn
}

func (l *PostgresDistributedLockManager) Close() error {
	return l.conn.Close()
}

// WithLock runs fn on the lock connection while lockID is held.
func WithLock(ctx context.Context, db *sql.DB, lockID int64, fn func(conn *sql.Conn) error) (err error) {
	locker, err := NewPostgresDistributedLockManager(ctx, db)
	if err != nil {
		return err
	}
	defer locker.Close()

	if err := locker.Acquire(ctx, lockID); err != nil {
		return err
	}
	defer func() {
		if releaseErr := locker.Release(context.WithoutCancel(ctx), lockID); releaseErr != nil && err == nil {
			err = releaseErr
		}
	}()
	return fn(locker.Conn())
}
