package docstore

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMySQLStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewMySQLStore(db), mock
}

func TestMySQLStoreGet(t *testing.T) {
	s, mock := newMySQLStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT data FROM documents WHERE collection = ? AND id = ?`)).
		WithArgs("profiles", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"data"}).AddRow(`{"name":"Ann","points":20}`))

	doc, err := s.Get(context.Background(), "profiles", "u1")
	require.NoError(t, err)
	assert.Equal(t, "Ann", doc["name"])
	assert.EqualValues(t, 20, doc["points"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreGetNotFound(t *testing.T) {
	s, mock := newMySQLStore(t)
	mock.ExpectQuery(`SELECT data FROM documents`).WillReturnError(sql.ErrNoRows)

	_, err := s.Get(context.Background(), "profiles", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMySQLStoreGetFailure(t *testing.T) {
	s, mock := newMySQLStore(t)
	mock.ExpectQuery(`SELECT data FROM documents`).WillReturnError(errors.New("connection reset"))

	_, err := s.Get(context.Background(), "profiles", "u1")
	assert.ErrorIs(t, err, ErrLookupFailed)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestMySQLStoreMergeUsesJSONMergePatch(t *testing.T) {
	s, mock := newMySQLStore(t)
	mock.ExpectExec(`INSERT INTO documents .* ON DUPLICATE KEY UPDATE data = JSON_MERGE_PATCH`).
		WithArgs("profiles", "u1", `{"notifications":{"telegram":true}}`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := s.Merge(context.Background(), "profiles", "u1", Document{
		"notifications": map[string]any{"telegram": true},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreMergeFailure(t *testing.T) {
	s, mock := newMySQLStore(t)
	mock.ExpectExec(`INSERT INTO documents`).WillReturnError(errors.New("deadlock"))

	err := s.Merge(context.Background(), "profiles", "u1", Document{"a": 1})
	assert.ErrorIs(t, err, ErrWriteFailed)
}

func TestMySQLStoreQuery(t *testing.T) {
	s, mock := newMySQLStore(t)
	mock.ExpectQuery(`SELECT id, data FROM documents`).
		WithArgs("profiles", "$.authKey", `"pk_1"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "data"}).
			AddRow("u1", `{"authKey":"pk_1"}`))

	snaps, err := s.Query(context.Background(), "profiles", "authKey", "pk_1")
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "u1", snaps[0].ID)
	assert.Equal(t, "pk_1", snaps[0].Data["authKey"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLStoreQueryRejectsBadField(t *testing.T) {
	s, _ := newMySQLStore(t)
	_, err := s.Query(context.Background(), "profiles", "authKey') OR 1=1 --", "x")
	assert.Error(t, err)
}
