package fleet

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func TestBuildSet(t *testing.T) {
	set, args := buildSet(map[string]any{"status": "online"}, 2)
	require.Equal(t, "status = $2", set)
	require.Equal(t, []any{"online"}, args)
}

func TestBuildSetCoalesceNow(t *testing.T) {
	set, args := buildSet(map[string]any{"started_at": sqlCoalesceNow{}}, 2)
	require.Equal(t, "started_at = COALESCE(started_at, now())", set)
	require.Empty(t, args)
}

func TestPageBoundsDefaults(t *testing.T) {
	limit, offset := pageBounds(0, 0)
	require.Equal(t, 50, limit)
	require.Equal(t, 0, offset)

	limit, offset = pageBounds(3, 10)
	require.Equal(t, 10, limit)
	require.Equal(t, 20, offset)
}

func TestNonEmpty(t *testing.T) {
	require.Equal(t, HostOffline, nonEmpty(HostStatus(""), HostOffline))
	require.Equal(t, HostOnline, nonEmpty(HostOnline, HostOffline))
}

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreFromDB(db), mock
}

func TestCreateHost(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	cols := []string{"id", "number", "address", "label", "location", "max_devices", "status", "last_heartbeat"}
	mock.ExpectQuery(`INSERT INTO hosts`).
		WithArgs("HOST01", "10.0.0.1", "", "", 8, HostOffline).
		WillReturnRows(sqlmock.NewRows(cols).AddRow("h1", "HOST01", "10.0.0.1", "", "", 8, "offline", now))

	h, err := store.CreateHost(context.Background(), Host{Number: "HOST01", Address: "10.0.0.1", MaxDevices: 8})
	require.NoError(t, err)
	require.Equal(t, "h1", h.ID)
	require.Equal(t, HostStatus("offline"), h.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHeartbeatIdempotent(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE hosts SET last_heartbeat`).
		WithArgs("HOST01", HostOnline).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE hosts SET last_heartbeat`).
		WithArgs("HOST01", HostOnline).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx := context.Background()
	require.NoError(t, store.Heartbeat(ctx, "HOST01"))
	require.NoError(t, store.Heartbeat(ctx, "HOST01"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetHostNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT id, number`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := store.GetHost(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIncrementTaskRetryAtomic(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`UPDATE tasks SET retries = retries \+ 1`).
		WithArgs("t1", TaskRetrying).
		WillReturnRows(sqlmock.NewRows([]string{"retries"}).AddRow(1))

	n, err := store.IncrementTaskRetry(context.Background(), "t1")
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, mock.ExpectationsWereMet())
}
