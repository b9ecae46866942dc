package source

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// Reader reads payment rows from the upstream MySQL store.
//
// The reader is read-only: it never mutates upstream state. Progress
// tracking lives entirely in the local checkpoint store.
type Reader struct {
	db *sql.DB
}

// Open connects to the upstream store and verifies the connection works.
// Fails fast so a misconfigured DSN is caught at startup, not mid-cycle.
func Open(dsn string) (*Reader, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open source store: %w", err)
	}

	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to source store: %w", err)
	}

	return &Reader{db: db}, nil
}

// NewReader wraps an existing database handle. Used by tests to back the
// reader with an in-process database.
func NewReader(db *sql.DB) *Reader {
	return &Reader{db: db}
}

// Close releases the underlying connections.
func (r *Reader) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// FetchAfter returns up to limit rows with ID strictly greater than afterID,
// ordered ascending by ID. An empty result means the cursor has caught up.
func (r *Reader) FetchAfter(ctx context.Context, afterID int64, limit int) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ID, OPERATION_ID, PAYMENT_TERMINAL_ID, ENTRY_TIME, PAYMENT_TIME,
		       PAYMENT_MONEY, DISCOUNT, TYPE_PAY
		FROM payments_invoices
		WHERE ID > ?
		ORDER BY ID ASC
		LIMIT ?
	`, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch after %d: %w", afterID, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		err := rows.Scan(
			&rec.ID,
			&rec.OperationID,
			&rec.TerminalID,
			&rec.EntryTime,
			&rec.PaymentTime,
			&rec.Amount,
			&rec.Discount,
			&rec.PayCode,
		)
		if err != nil {
			return nil, fmt.Errorf("scan payment row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payment rows: %w", err)
	}

	return records, nil
}

// FetchByID returns a single row by its identifier, or sql.ErrNoRows
// (wrapped) when absent. Backs the ad-hoc `lookup` command.
func (r *Reader) FetchByID(ctx context.Context, id int64) (Record, error) {
	var rec Record
	err := r.db.QueryRowContext(ctx, `
		SELECT ID, OPERATION_ID, PAYMENT_TERMINAL_ID, ENTRY_TIME, PAYMENT_TIME,
		       PAYMENT_MONEY, DISCOUNT, TYPE_PAY
		FROM payments_invoices
		WHERE ID = ?
	`, id).Scan(
		&rec.ID,
		&rec.OperationID,
		&rec.TerminalID,
		&rec.EntryTime,
		&rec.PaymentTime,
		&rec.Amount,
		&rec.Discount,
		&rec.PayCode,
	)
	if err != nil {
		return Record{}, fmt.Errorf("fetch row %d: %w", id, err)
	}
	return rec, nil
}
