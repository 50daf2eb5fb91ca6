package postgres

import (
	"context"
	"dagsync/internal/constants"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("SELECT pg_advisory_lock").
		WithArgs(constants.MigrationLock).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE SCHEMA IF NOT EXISTS dagsync_schema").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(constants.MigrationLock).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, EnsureSchema(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFavoriteStore_List(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresFavoriteStore(db, "west")
	mock.ExpectQuery("SELECT job_id FROM dagsync_schema.favorites").
		WithArgs("west").
		WillReturnRows(sqlmock.NewRows([]string{"job_id"}).AddRow("etl_daily").AddRow("reporting"))

	favorites, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"etl_daily": true, "reporting": true}, favorites)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresFavoriteStore_List_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresFavoriteStore(db, "west")
	mock.ExpectQuery("SELECT job_id FROM dagsync_schema.favorites").
		WillReturnError(errors.New("connection refused"))

	_, err = store.List(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "list favorites")
}

func TestPostgresFavoriteStore_Set(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresFavoriteStore(db, "west")
	mock.ExpectExec("INSERT INTO dagsync_schema.favorites").
		WithArgs("west", "etl_daily").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("DELETE FROM dagsync_schema.favorites").
		WithArgs("west", "etl_daily").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Set(context.Background(), "etl_daily", true))
	require.NoError(t, store.Set(context.Background(), "etl_daily", false))
	assert.NoError(t, mock.ExpectationsWereMet())
}
