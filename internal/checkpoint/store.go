package checkpoint

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Store provides durable storage for sync progress: the checkpoint cursor,
// the delivered set, and the terminal -> facility association table.
//
// The delivered set and the association table are cached in memory. Both
// caches are owned by the store: they are hydrated once in Open and updated
// only through MarkDelivered and RegisterTerminal. The engine never touches
// them directly.
//
// Not safe for concurrent mutation. The scheduler guarantees a single
// active cycle, which is the sole writer.
type Store struct {
	db *sql.DB

	delivered map[int64]bool
	terminals map[int64]Terminal
}

// Terminal is one row of the static terminal -> facility association.
type Terminal struct {
	Description string // human label used in receipt descriptions
	Parking     string // facility (parking zone) code, keys the token table
}

// Checkpoint is the singleton cursor over the source ID column.
//
// SourceID never decreases across the process lifetime or restarts.
type Checkpoint struct {
	SourceID     int64
	OperationID  int64
	AdvancedAt   string // CURRENT_TIMESTAMP text, as stored
	AdvanceCount int64
}

// Open creates or opens the SQLite state database at the given path and
// hydrates the in-memory caches.
//
// The database is configured with WAL mode, NORMAL synchronous mode, a
// 5-second busy timeout, and a single-connection pool (one writer avoids
// SQLITE_BUSY). The embedded schema is applied idempotently and the cursor
// row is seeded on first run.
//
// Any failure here is fatal to the caller: the synchronizer cannot operate
// without checkpoint state.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open state database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to state database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	s := &Store{
		db:        db,
		delivered: make(map[int64]bool),
		terminals: make(map[int64]Terminal),
	}

	if err := s.hydrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	return nil
}

// hydrate loads the delivered set and the association table into memory.
// Must reflect every prior successful MarkDelivered, across restarts.
func (s *Store) hydrate() error {
	rows, err := s.db.Query("SELECT id FROM sent_checks")
	if err != nil {
		return fmt.Errorf("load delivered set: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan delivered id: %w", err)
		}
		s.delivered[id] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate delivered set: %w", err)
	}

	trows, err := s.db.Query(`
		SELECT payment_terminal_id, terminal_description, parking_number
		FROM terminal_parking_associations
	`)
	if err != nil {
		return fmt.Errorf("load terminal associations: %w", err)
	}
	defer trows.Close()

	for trows.Next() {
		var id int64
		var t Terminal
		if err := trows.Scan(&id, &t.Description, &t.Parking); err != nil {
			return fmt.Errorf("scan terminal association: %w", err)
		}
		s.terminals[id] = t
	}
	if err := trows.Err(); err != nil {
		return fmt.Errorf("iterate terminal associations: %w", err)
	}

	return nil
}

// LoadCheckpoint returns the current cursor. The row always exists: the
// schema seeds it with zero values on first run.
func (s *Store) LoadCheckpoint(ctx context.Context) (Checkpoint, error) {
	var cp Checkpoint
	err := s.db.QueryRowContext(ctx, `
		SELECT mysql_id, operation_id, computed_timestamp, computed_count
		FROM last_processed_operation WHERE id = 1
	`).Scan(&cp.SourceID, &cp.OperationID, &cp.AdvancedAt, &cp.AdvanceCount)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("load checkpoint: %w", err)
	}
	return cp, nil
}

// IsDelivered reports whether the source record was already confirmed
// delivered. O(1) against the hydrated cache.
func (s *Store) IsDelivered(sourceID int64) bool {
	return s.delivered[sourceID]
}

// DeliveredCount returns the number of records confirmed delivered.
func (s *Store) DeliveredCount() int {
	return len(s.delivered)
}

// MarkDelivered records a confirmed delivery. In one transaction it inserts
// the (sourceID, operationID) pair into the delivered set and, when
// advanceCursor is set, advances the checkpoint to sourceID.
//
// The insert is idempotent (INSERT OR IGNORE on the primary key). The
// cursor update is guarded by mysql_id < sourceID, so the checkpoint can
// only move forward. The engine passes advanceCursor per the contiguity
// rule: only records that extend the unbroken confirmed run from the prior
// checkpoint advance the cursor.
func (s *Store) MarkDelivered(ctx context.Context, sourceID, operationID int64, advanceCursor bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mark delivered: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO sent_checks (id, check_id) VALUES (?, ?)
	`, sourceID, operationID)
	if err != nil {
		return fmt.Errorf("mark delivered: insert %d: %w", sourceID, err)
	}

	if advanceCursor {
		_, err = tx.ExecContext(ctx, `
			UPDATE last_processed_operation
			SET mysql_id = ?, operation_id = ?,
			    computed_timestamp = CURRENT_TIMESTAMP,
			    computed_count = computed_count + 1
			WHERE id = 1 AND mysql_id < ?
		`, sourceID, operationID, sourceID)
		if err != nil {
			return fmt.Errorf("mark delivered: advance cursor to %d: %w", sourceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mark delivered: commit: %w", err)
	}

	s.delivered[sourceID] = true
	return nil
}

// AdvanceCursor moves the checkpoint to the given position if it is ahead
// of the current one. Used when the contiguous confirmed frontier lands on
// a record that was already delivered in a previous cycle, so no
// MarkDelivered call carries the advance this cycle.
//
// Idempotent: a no-op when the cursor is already at or past sourceID.
func (s *Store) AdvanceCursor(ctx context.Context, sourceID, operationID int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE last_processed_operation
		SET mysql_id = ?, operation_id = ?,
		    computed_timestamp = CURRENT_TIMESTAMP,
		    computed_count = computed_count + 1
		WHERE id = 1 AND mysql_id < ?
	`, sourceID, operationID, sourceID)
	if err != nil {
		return fmt.Errorf("advance cursor to %d: %w", sourceID, err)
	}
	return nil
}

// RegisterTerminal upserts one association-table entry. Idempotent:
// an existing terminal keeps its stored association.
func (s *Store) RegisterTerminal(ctx context.Context, terminalID int64, description, parking string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO terminal_parking_associations
		(terminal_description, parking_number, payment_terminal_id)
		VALUES (?, ?, ?)
	`, description, parking, terminalID)
	if err != nil {
		return fmt.Errorf("register terminal %d: %w", terminalID, err)
	}

	if _, exists := s.terminals[terminalID]; !exists {
		s.terminals[terminalID] = Terminal{Description: description, Parking: parking}
	}
	return nil
}

// Resolve returns the association for a terminal. Unknown terminals return
// ok=false with empty fields, never an error: a missing association is a
// data-quality condition, not a pipeline failure.
//
// Satisfies transform.TerminalLookup.
func (s *Store) Resolve(terminalID int64) (description, parking string, ok bool) {
	t, ok := s.terminals[terminalID]
	return t.Description, t.Parking, ok
}
