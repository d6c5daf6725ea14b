// Package history is a durable, append-only audit trail of completed
// and failed transfer jobs, backed by SQLite. It is purely additive
// observability: nothing here is ever consulted by the registry, the
// queue, or the dispatcher, so the in-memory-only nature of sync
// state (spec.md's "not durable across restarts" non-goal) holds
// exactly as before — this package cannot make a restart remember
// which pairs were active.
package history

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/google/uuid"
)

// Record is one completed or failed transfer, as appended by the
// worker pool after each transfer.Execute call.
type Record struct {
	JobID       uuid.UUID
	SourceDir   string
	SourceHost  string
	SourcePort  int
	TargetDir   string
	TargetHost  string
	TargetPort  int
	Filename    string
	Bytes       int64
	StartedAt   time.Time
	EndedAt     time.Time
	Outcome     string // "success" or "error"
	ErrorDetail string
}

// Ledger wraps the sqlite-backed job history table.
type Ledger struct {
	db *sql.DB
}

// Open opens (creating if absent) the sqlite database at path and
// ensures the schema exists. A single connection is used throughout,
// matching the teacher's store: this is a low-write-rate audit log,
// not a high-concurrency store, so serializing writes through one
// connection is simpler than pooling and just as fast in practice.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", "file:"+path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	const schema = `
CREATE TABLE IF NOT EXISTS job_history (
  job_id       TEXT PRIMARY KEY,
  source_dir   TEXT NOT NULL,
  source_host  TEXT NOT NULL,
  source_port  INTEGER NOT NULL,
  target_dir   TEXT NOT NULL,
  target_host  TEXT NOT NULL,
  target_port  INTEGER NOT NULL,
  filename     TEXT NOT NULL,
  bytes        INTEGER NOT NULL DEFAULT 0,
  started_at   INTEGER NOT NULL,
  ended_at     INTEGER NOT NULL,
  outcome      TEXT NOT NULL,
  error_detail TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS job_history_pair_idx
  ON job_history(source_host, source_port, source_dir);
`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// Close closes the underlying database handle.
func (l *Ledger) Close() error { return l.db.Close() }

// Append records one finished job. Called by the worker pool after
// transfer.Execute returns, whether it succeeded or failed; callers
// should not let a history write failure affect the transfer outcome
// it is recording, since this ledger has no bearing on sync
// correctness.
func (l *Ledger) Append(ctx context.Context, r Record) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO job_history(
  job_id, source_dir, source_host, source_port,
  target_dir, target_host, target_port, filename,
  bytes, started_at, ended_at, outcome, error_detail
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id) DO NOTHING
`,
		r.JobID.String(), r.SourceDir, r.SourceHost, r.SourcePort,
		r.TargetDir, r.TargetHost, r.TargetPort, r.Filename,
		r.Bytes, r.StartedAt.Unix(), r.EndedAt.Unix(), r.Outcome, r.ErrorDetail,
	)
	return err
}

// Recent returns the most recent limit records, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT job_id, source_dir, source_host, source_port,
       target_dir, target_host, target_port, filename,
       bytes, started_at, ended_at, outcome, error_detail
FROM job_history
ORDER BY ended_at DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var jobID string
		var started, ended int64
		if err := rows.Scan(&jobID, &r.SourceDir, &r.SourceHost, &r.SourcePort,
			&r.TargetDir, &r.TargetHost, &r.TargetPort, &r.Filename,
			&r.Bytes, &started, &ended, &r.Outcome, &r.ErrorDetail); err != nil {
			return nil, err
		}
		if id, err := uuid.Parse(jobID); err == nil {
			r.JobID = id
		}
		r.StartedAt = time.Unix(started, 0)
		r.EndedAt = time.Unix(ended, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}
