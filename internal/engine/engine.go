// Package engine orchestrates one synchronization cycle: fetch the next
// slice of payment rows after the checkpoint, drop already-delivered rows,
// transform, deliver, and commit progress.
//
// The central correctness invariant is the contiguity rule: the checkpoint
// cursor advances only through an unbroken run of confirmed records
// starting at the prior cursor. A record that fails delivery holds the
// cursor below it, so the next cycle refetches it; confirmed records above
// the gap are remembered in the delivered set and skipped on refetch.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/parkops/billsync/internal/checkpoint"
	"github.com/parkops/billsync/internal/source"
	"github.com/parkops/billsync/internal/transform"
)

// SourceReader fetches the next unprocessed slice from the upstream store.
// Implemented by source.Reader.
type SourceReader interface {
	FetchAfter(ctx context.Context, afterID int64, limit int) ([]source.Record, error)
}

// Deliverer submits transformed records and returns the confirmed subset.
// Implemented by bills.Client.
type Deliverer interface {
	Deliver(ctx context.Context, batch []transform.Record) []transform.Record
}

// DefaultBatchLimit bounds one cycle's fetch and delivery chunk size.
const DefaultBatchLimit = 5000

// Engine runs synchronization cycles. It is the sole writer of checkpoint
// state; the scheduler guarantees only one cycle is active at a time, so
// no internal locking is needed.
type Engine struct {
	store    *checkpoint.Store
	src      SourceReader
	client   Deliverer
	limit    int
	tokenGen CycleTokenGenerator
}

// Option configures engine parameters.
type Option func(*Engine)

// WithBatchLimit sets the per-cycle fetch and delivery chunk limit.
func WithBatchLimit(limit int) Option {
	return func(e *Engine) { e.limit = limit }
}

// WithTokenGenerator overrides the cycle token generator. Tests use
// NewFixedGenerator for deterministic logs.
func WithTokenGenerator(g CycleTokenGenerator) Option {
	return func(e *Engine) { e.tokenGen = g }
}

// New creates an engine over the given store, source, and delivery client.
func New(store *checkpoint.Store, src SourceReader, client Deliverer, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		src:      src,
		client:   client,
		limit:    DefaultBatchLimit,
		tokenGen: UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Poll runs one cycle: Fetching -> Transforming -> Delivering -> Committing.
//
// A source fault aborts the cycle with the checkpoint untouched. A
// checkpoint write fault aborts after the last successful per-record mark;
// prior-committed state stays intact and the next cycle resumes from it.
// Delivery faults never abort: unconfirmed records simply stay above the
// cursor and are refetched next cycle.
func (e *Engine) Poll(ctx context.Context) error {
	cycle := e.tokenGen.Generate()
	log := slog.With("cycle", cycle)

	cp, err := e.store.LoadCheckpoint(ctx)
	if err != nil {
		return fmt.Errorf("cycle %s: %w", cycle, err)
	}

	// Fetching
	fetched, err := e.src.FetchAfter(ctx, cp.SourceID, e.limit)
	if err != nil {
		return fmt.Errorf("cycle %s: %w", cycle, err)
	}
	if len(fetched) == 0 {
		log.Debug("no new records", "cursor", cp.SourceID)
		return nil
	}

	// Transforming: skip rows already confirmed in a previous cycle.
	var pending []transform.Record
	for _, rec := range fetched {
		if e.store.IsDelivered(rec.ID) {
			continue
		}
		pending = append(pending, transform.Transform(rec, e.store))
	}

	// Delivering, in chunks no larger than the batch limit.
	confirmed := make(map[int64]bool, len(pending))
	confirmedCount := 0
	for start := 0; start < len(pending); start += e.limit {
		end := min(start+e.limit, len(pending))
		for _, rec := range e.client.Deliver(ctx, pending[start:end]) {
			confirmed[rec.SourceID] = true
			confirmedCount++
		}
	}

	// Committing: find the contiguous confirmed frontier, then mark.
	frontier := contiguousFrontier(cp, fetched, confirmed, e.store)

	for _, rec := range pending {
		if !confirmed[rec.SourceID] {
			continue
		}
		advance := rec.SourceID <= frontier.SourceID
		if err := e.store.MarkDelivered(ctx, rec.SourceID, rec.OperationID, advance); err != nil {
			return fmt.Errorf("cycle %s: %w", cycle, err)
		}
	}

	// The frontier can land on a record delivered in an earlier cycle; no
	// mark carried the advance then, so push the cursor explicitly.
	if frontier.SourceID > cp.SourceID {
		if err := e.store.AdvanceCursor(ctx, frontier.SourceID, frontier.OperationID); err != nil {
			return fmt.Errorf("cycle %s: %w", cycle, err)
		}
	}

	log.Info("cycle complete",
		"fetched", len(fetched),
		"attempted", len(pending),
		"confirmed", confirmedCount,
		"failed", len(pending)-confirmedCount,
		"cursor_before", cp.SourceID,
		"cursor_after", frontier.SourceID,
	)
	return nil
}

// frontierPos is the highest contiguously confirmed position.
type frontierPos struct {
	SourceID    int64
	OperationID int64
}

// contiguousFrontier walks the fetched batch in ascending ID order from the
// prior checkpoint and returns the last position whose every predecessor in
// the batch is confirmed - either delivered this cycle or already in the
// delivered set. The walk stops at the first unconfirmed record, which
// pins the cursor below it.
func contiguousFrontier(
	cp checkpoint.Checkpoint,
	fetched []source.Record,
	confirmed map[int64]bool,
	store *checkpoint.Store,
) frontierPos {
	frontier := frontierPos{SourceID: cp.SourceID, OperationID: cp.OperationID}

	for _, rec := range fetched {
		if !confirmed[rec.ID] && !store.IsDelivered(rec.ID) {
			break
		}
		frontier = frontierPos{SourceID: rec.ID, OperationID: rec.OperationID}
	}

	return frontier
}
