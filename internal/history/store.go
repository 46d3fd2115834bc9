// Package history persists finished batches to Postgres so dispatchers can
// look up what a past paste produced.
//
// The store is optional: without a database the service runs fine, batches
// are just forgotten once their retention window passes. Recording is best
// effort and never affects a batch outcome.
package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/akl-logistics/dispatchdesk/internal/dispatch"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS dispatch_batches (
	id          UUID PRIMARY KEY,
	status      TEXT NOT NULL,
	total_lines INT NOT NULL,
	succeeded   INT NOT NULL,
	failed      INT NOT NULL,
	cancelled   BOOLEAN NOT NULL DEFAULT FALSE,
	error       TEXT NOT NULL DEFAULT '',
	duration_ms BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS dispatch_batch_lines (
	batch_id    UUID NOT NULL REFERENCES dispatch_batches(id) ON DELETE CASCADE,
	position    INT NOT NULL,
	line_number INT NOT NULL,
	state       TEXT NOT NULL,
	success     BOOLEAN NOT NULL,
	order_code  TEXT NOT NULL DEFAULT '',
	order_id    TEXT NOT NULL DEFAULT '',
	driver_id   TEXT NOT NULL DEFAULT '',
	driver_name TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (batch_id, position)
);

CREATE INDEX IF NOT EXISTS dispatch_batches_created_at_idx
	ON dispatch_batches (created_at DESC);
`

const insertBatchSQL = `
INSERT INTO dispatch_batches
	(id, status, total_lines, succeeded, failed, cancelled, error, duration_ms)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (id) DO NOTHING
`

const insertLineSQL = `
INSERT INTO dispatch_batch_lines
	(batch_id, position, line_number, state, success, order_code, order_id, driver_id, driver_name, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (batch_id, position) DO NOTHING
`

const selectRecentSQL = `
SELECT id, status, total_lines, succeeded, failed, cancelled, error, duration_ms, created_at
FROM dispatch_batches
ORDER BY created_at DESC
LIMIT $1
`

const selectBatchSQL = `
SELECT id, status, total_lines, succeeded, failed, cancelled, error, duration_ms, created_at
FROM dispatch_batches
WHERE id = $1
`

const selectLinesSQL = `
SELECT line_number, state, success, order_code, order_id, driver_id, driver_name, error
FROM dispatch_batch_lines
WHERE batch_id = $1
ORDER BY position
`

// BatchSummary is one row of batch history.
type BatchSummary struct {
	ID         string               `json:"id"`
	Status     dispatch.BatchStatus `json:"status"`
	TotalLines int                  `json:"totalLines"`
	Succeeded  int                  `json:"succeeded"`
	Failed     int                  `json:"failed"`
	Cancelled  bool                 `json:"cancelled"`
	Error      string               `json:"error,omitempty"`
	DurationMs int64                `json:"durationMs"`
	CreatedAt  time.Time            `json:"createdAt"`
}

// BatchRecord is a stored batch with its per-line outcomes.
type BatchRecord struct {
	BatchSummary
	Lines []dispatch.LineResult `json:"lines"`
}

// Result rebuilds the batch result this record was stored from, so report
// endpoints can serve batches already evicted from memory.
func (r *BatchRecord) Result() dispatch.BatchResult {
	return dispatch.BatchResult{
		BatchID:    r.ID,
		TotalLines: r.TotalLines,
		Succeeded:  r.Succeeded,
		Failed:     r.Failed,
		Cancelled:  r.Cancelled,
		Error:      r.Error,
		DurationMs: r.DurationMs,
		Lines:      r.Lines,
	}
}

// Store reads and writes batch history.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore wraps a connection pool. The pool stays owned by the caller.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// EnsureSchema creates the history tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// RecordBatch stores a finished batch and its lines in one transaction.
// Re-recording the same batch id is a no-op.
func (s *Store) RecordBatch(ctx context.Context, result dispatch.BatchResult) error {
	var id pgtype.UUID
	if err := id.Scan(result.BatchID); err != nil {
		return fmt.Errorf("parse batch id %q: %w", result.BatchID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin history transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, insertBatchSQL,
		id,
		string(result.Status()),
		result.TotalLines,
		result.Succeeded,
		result.Failed,
		result.Cancelled,
		result.Error,
		result.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	lines := &pgx.Batch{}
	for position, ln := range result.Lines {
		lines.Queue(insertLineSQL,
			id,
			position,
			ln.LineNumber,
			string(ln.State),
			ln.Success,
			ln.OrderCode,
			ln.OrderID,
			ln.DriverID,
			ln.DriverName,
			ln.Error,
		)
	}
	if err := tx.SendBatch(ctx, lines).Close(); err != nil {
		return fmt.Errorf("insert batch lines: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit history transaction: %w", err)
	}

	s.logger.Debug("batch recorded",
		"batch_id", result.BatchID,
		"lines", len(result.Lines),
	)
	return nil
}

// ListRecent returns the newest batches, most recent first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]BatchSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, selectRecentSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	var summaries []BatchSummary
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch row: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	return summaries, nil
}

// GetBatch loads one stored batch with its lines. Unknown ids map to
// dispatch.ErrBatchNotFound, malformed ids included.
func (s *Store) GetBatch(ctx context.Context, batchID string) (*BatchRecord, error) {
	var id pgtype.UUID
	if err := id.Scan(batchID); err != nil {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrBatchNotFound, batchID)
	}

	summary, err := scanSummary(s.pool.QueryRow(ctx, selectBatchSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", dispatch.ErrBatchNotFound, batchID)
		}
		return nil, fmt.Errorf("load batch: %w", err)
	}

	rows, err := s.pool.Query(ctx, selectLinesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("load batch lines: %w", err)
	}
	defer rows.Close()

	record := &BatchRecord{BatchSummary: summary}
	for rows.Next() {
		var ln dispatch.LineResult
		var state string
		if err := rows.Scan(&ln.LineNumber, &state, &ln.Success, &ln.OrderCode,
			&ln.OrderID, &ln.DriverID, &ln.DriverName, &ln.Error); err != nil {
			return nil, fmt.Errorf("scan line row: %w", err)
		}
		ln.State = dispatch.LineState(state)
		record.Lines = append(record.Lines, ln)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load batch lines: %w", err)
	}
	return record, nil
}

// scanSummary reads one dispatch_batches row.
func scanSummary(row pgx.Row) (BatchSummary, error) {
	var (
		summary   BatchSummary
		id        pgtype.UUID
		status    string
		createdAt pgtype.Timestamptz
	)
	err := row.Scan(&id, &status, &summary.TotalLines, &summary.Succeeded,
		&summary.Failed, &summary.Cancelled, &summary.Error, &summary.DurationMs, &createdAt)
	if err != nil {
		return BatchSummary{}, err
	}

	idText, err := id.Value()
	if err != nil {
		return BatchSummary{}, err
	}
	if s, ok := idText.(string); ok {
		summary.ID = s
	}
	summary.Status = dispatch.BatchStatus(status)
	summary.CreatedAt = createdAt.Time
	return summary, nil
}
