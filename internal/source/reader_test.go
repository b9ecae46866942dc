package source

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openFixtureDB backs the reader with an in-process SQLite database; the
// reader's queries use only portable SQL.
func openFixtureDB(t *testing.T, rows ...[8]int64) *Reader {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "source.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE payments_invoices (
			ID INTEGER PRIMARY KEY,
			OPERATION_ID INTEGER,
			PAYMENT_TERMINAL_ID INTEGER,
			ENTRY_TIME INTEGER,
			PAYMENT_TIME INTEGER,
			PAYMENT_MONEY INTEGER,
			DISCOUNT INTEGER,
			TYPE_PAY INTEGER
		)
	`)
	require.NoError(t, err)

	for _, r := range rows {
		_, err := db.Exec(
			"INSERT INTO payments_invoices VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			r[0], r[1], r[2], r[3], r[4], r[5], r[6], r[7],
		)
		require.NoError(t, err)
	}

	return NewReader(db)
}

func TestFetchAfter_StrictlyAboveCursorAscending(t *testing.T) {
	r := openFixtureDB(t,
		[8]int64{103, 3, 1, 100, 200, 5000, 0, 0},
		[8]int64{101, 1, 1, 100, 200, 5000, 0, 0},
		[8]int64{102, 2, 1, 100, 200, 5000, 0, 0},
	)

	records, err := r.FetchAfter(context.Background(), 101, 10)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, int64(102), records[0].ID)
	assert.Equal(t, int64(103), records[1].ID)
}

func TestFetchAfter_RespectsLimit(t *testing.T) {
	r := openFixtureDB(t,
		[8]int64{101, 1, 1, 100, 200, 5000, 0, 0},
		[8]int64{102, 2, 1, 100, 200, 5000, 0, 0},
		[8]int64{103, 3, 1, 100, 200, 5000, 0, 0},
	)

	records, err := r.FetchAfter(context.Background(), 0, 2)
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, int64(101), records[0].ID)
	assert.Equal(t, int64(102), records[1].ID)
}

func TestFetchAfter_EmptyWhenCaughtUp(t *testing.T) {
	r := openFixtureDB(t, [8]int64{101, 1, 1, 100, 200, 5000, 0, 0})

	records, err := r.FetchAfter(context.Background(), 101, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestFetchByID(t *testing.T) {
	r := openFixtureDB(t, [8]int64{108213, 17, 3, 1710490000, 1710496300, 15000, 500, 1})

	rec, err := r.FetchByID(context.Background(), 108213)
	require.NoError(t, err)

	assert.Equal(t, int64(17), rec.OperationID)
	assert.Equal(t, int64(3), rec.TerminalID)
	assert.Equal(t, int64(15000), rec.Amount)
	assert.Equal(t, int64(500), rec.Discount)
	assert.Equal(t, 1, rec.PayCode)
}

func TestFetchByID_NotFound(t *testing.T) {
	r := openFixtureDB(t)

	_, err := r.FetchByID(context.Background(), 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}
