package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMockDB(t *testing.T) (*DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	logger := zerolog.Nop()
	return newFromSQL(sqlDB, "mock", &logger), mock
}

func TestGetDelRollsBackWhenDeleteFails(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT value FROM kv_store").
		WithArgs("queue").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`[]`)))
	mock.ExpectExec("DELETE FROM kv_store").
		WithArgs("queue").
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	val, ok, err := db.GetDel(context.Background(), "queue")
	assert.ErrorContains(t, err, "disk I/O error")
	assert.False(t, ok)
	assert.Nil(t, val)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDelCommitFailure(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT value FROM kv_store").
		WithArgs("queue").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`[]`)))
	mock.ExpectExec("DELETE FROM kv_store").
		WithArgs("queue").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	_, ok, err := db.GetDel(context.Background(), "queue")
	assert.ErrorContains(t, err, "commit getdel")
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDelMissingKeyDeletesNothing(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT value FROM kv_store").
		WithArgs("queue").
		WillReturnRows(sqlmock.NewRows([]string{"value"}))
	mock.ExpectRollback()

	_, ok, err := db.GetDel(context.Background(), "queue")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetWrapsExecError(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectExec("INSERT INTO kv_store").
		WithArgs("queue", []byte(`[]`), sqlmock.AnyArg()).
		WillReturnError(errors.New("readonly database"))

	err := db.Set(context.Background(), "queue", []byte(`[]`))
	assert.ErrorContains(t, err, "failed to set queue")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRollsBackWhenWriteFails(t *testing.T) {
	db, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT value FROM kv_store").
		WithArgs("queue").
		WillReturnRows(sqlmock.NewRows([]string{"value"}).AddRow([]byte(`[]`)))
	mock.ExpectExec("INSERT INTO kv_store").
		WithArgs("queue", []byte(`[1]`), sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := db.Update(context.Background(), "queue", func(current []byte, ok bool) ([]byte, error) {
		return []byte(`[1]`), nil
	})
	assert.ErrorContains(t, err, "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}
