package store

import "context"

// FavoriteStore keeps the local-only favorite flag of jobs across restarts.
// It is never consulted for anything the remote API owns.
type FavoriteStore interface {
	// List returns the ids of every job marked as favorite.
	List(ctx context.Context) (map[string]bool, error)

	// Set marks or unmarks a job as favorite.
	Set(ctx context.Context, jobID string, favorite bool) error

	// Close releases the underlying connection.
	Close() error
}
