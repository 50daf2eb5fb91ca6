package postgres

import (
	"context"
	"dagsync/internal/constants"
	"dagsync/internal/lock"
	"dagsync/internal/store"
	"database/sql"
	"fmt"
)

const schemaDDL = `
	CREATE SCHEMA IF NOT EXISTS dagsync_schema;
	CREATE TABLE IF NOT EXISTS dagsync_schema.favorites (
		instance   TEXT NOT NULL,
		job_id     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (instance, job_id)
	);
`

type postgresFavoriteStore struct {
	db       *sql.DB
	instance string
}

// NewPostgresFavoriteStore creates a FavoriteStore scoped to one dagsync instance.
func NewPostgresFavoriteStore(db *sql.DB, instance string) store.FavoriteStore {
	return &postgresFavoriteStore{db: db, instance: instance}
}

// EnsureSchema creates the favorites table when it does not exist yet. Instances
// starting together take turns through the migration advisory lock.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	return lock.WithLock(ctx, db, constants.MigrationLock, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, schemaDDL); err != nil {
			return fmt.Errorf("create favorites schema: %w", err)
		}
		return nil
	})
}

func (r *postgresFavoriteStore) List(ctx context.Context) (map[string]bool, error) {
	query := `SELECT job_id FROM dagsync_schema.favorites WHERE instance = $1`
	rows, err := r.db.QueryContext(ctx, query, r.instance)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	favorites := make(map[string]bool)
	for rows.Next() {
		var jobID string
		if err := rows.Scan(&jobID); err != nil {
			return nil, err
		}
		favorites[jobID] = true
	}
	return favorites, rows.Err()
}

func (r *postgresFavoriteStore) Set(ctx context.Context, jobID string, favorite bool) error {
	var err error
	if favorite {
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO dagsync_schema.favorites (instance, job_id)
			VALUES ($1, $2)
			ON CONFLICT (instance, job_id) DO NOTHING`, r.instance, jobID)
	} else {
		_, err = r.db.ExecContext(ctx,
			`DELETE FROM dagsync_schema.favorites WHERE instance = $1 AND job_id = $2`, r.instance, jobID)
	}
	if err != nil {
		return fmt.Errorf("set favorite %s: %w", jobID, err)
	}
	return nil
}

func (r *postgresFavoriteStore) Close() error {
	return r.db.Close()
}
