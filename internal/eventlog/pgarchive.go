// Domain-stack extension (SPEC_FULL.md §3.2): a durable off-box archive of
// event log entries for long-term query, grounded on
// control_plane/store/postgres.go's pgx pool idiom.
package eventlog

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Aurora-energy/R-EMS/internal/metrics"
)

// PostgresArchiver mirrors every appended entry into a jsonb-backed table.
// It never gates Append's return value: archive failures are logged (no
// metric counts them), and the in-process log file remains the single
// source of truth.
type PostgresArchiver struct {
	pool *pgxpool.Pool
	log  zerolog.Logger
}

// NewPostgresArchiver connects to dsn and ensures the archive table exists.
func NewPostgresArchiver(ctx context.Context, dsn string, log zerolog.Logger) (*PostgresArchiver, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	a := &PostgresArchiver{pool: pool, log: log}
	if _, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS r_ems_event_log (
			grid_id    TEXT NOT NULL,
			sequence   BIGINT NOT NULL,
			ts         TIMESTAMPTZ NOT NULL,
			payload    JSONB NOT NULL,
			PRIMARY KEY (grid_id, sequence)
		)`); err != nil {
		pool.Close()
		return nil, err
	}
	return a, nil
}

// Archive inserts e asynchronously-to-the-caller (fire-and-forget with a
// bounded timeout) so the controller tick loop is never blocked on the
// archive sink.
func (a *PostgresArchiver) Archive(grid string, e Entry) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err := a.pool.Exec(ctx,
			`INSERT INTO r_ems_event_log (grid_id, sequence, ts, payload) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (grid_id, sequence) DO NOTHING`,
			grid, e.Sequence, e.Timestamp, []byte(e.Payload))
		if err != nil {
			a.log.Warn().Err(err).Str("grid", grid).Uint64("sequence", e.Sequence).Msg("postgres archive insert failed")
			metrics.EventLogBytesTotal.WithLabelValues(grid, "").Add(0) // no dedicated failure metric; transient and non-authoritative
		}
	}()
}

// Close releases the connection pool.
func (a *PostgresArchiver) Close() {
	a.pool.Close()
}
