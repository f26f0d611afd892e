package lib

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const ledgerSchema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    variant TEXT NOT NULL,
    dataset_root TEXT NOT NULL,
    dataset_version TEXT NOT NULL,
    output_dir TEXT NOT NULL,
    started_at TEXT NOT NULL,
    finished_at TEXT,
    succeeded INTEGER NOT NULL DEFAULT 0,
    degraded INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0,
    cancelled INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS frame_outcomes (
    run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    frame_index INTEGER NOT NULL,
    frame_id TEXT NOT NULL,
    status TEXT NOT NULL,
    output_path TEXT,
    error_text TEXT,
    skipped_layers TEXT,
    failed_layers TEXT,
    duration_ms INTEGER NOT NULL,
    PRIMARY KEY (run_id, frame_index)
);
`

// Ledger records batch runs and their frame outcomes in sqlite.
type Ledger struct {
	db   *sql.DB
	path string
}

type RunRecord struct {
	RunID          string
	Variant        string
	DatasetRoot    string
	DatasetVersion string
	OutputDir      string
	Started        time.Time
	Finished       time.Time
	Succeeded      int
	Degraded       int
	Failed         int
	Cancelled      bool
}

type FrameRecord struct {
	Index         int
	FrameID       string
	Status        FrameStatus
	Path          string
	Err           string
	SkippedLayers []string
	FailedLayers  []string
	Duration      time.Duration
}

func OpenLedger(path string) (*Ledger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("ledger dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(ledgerSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger schema: %w", err)
	}
	return &Ledger{db: db, path: path}, nil
}

func (l *Ledger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

func (l *Ledger) StartRun(ctx context.Context, summary *RunSummary, datasetRoot, datasetVersion string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, variant, dataset_root, dataset_version, output_dir, started_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		summary.RunID,
		summary.Variant,
		datasetRoot,
		datasetVersion,
		summary.OutputDir,
		summary.Started.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (l *Ledger) RecordFrame(ctx context.Context, runID string, o FrameOutcome) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO frame_outcomes (
            run_id, frame_index, frame_id, status, output_path, error_text,
            skipped_layers, failed_layers, duration_ms
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID,
		o.Index,
		o.FrameID,
		string(o.Status()),
		nullableString(o.Path),
		nullableString(o.Err),
		nullableString(strings.Join(o.LayersWith(LayerSkipped), ",")),
		nullableString(strings.Join(o.LayersWith(LayerFailed), ",")),
		o.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("insert frame outcome %s: %w", o.FrameID, err)
	}
	return nil
}

func (l *Ledger) FinishRun(ctx context.Context, summary *RunSummary) error {
	res, err := l.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, succeeded = ?, degraded = ?, failed = ?, cancelled = ?
        WHERE run_id = ?`,
		summary.Finished.UTC().Format(time.RFC3339Nano),
		summary.Frames[FrameSucceeded],
		summary.Frames[FrameDegraded],
		summary.Frames[FrameFailed],
		boolToInt(summary.Cancelled),
		summary.RunID,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update run: run %s not found", summary.RunID)
	}
	return nil
}

// Runs lists recorded runs, newest first.
func (l *Ledger) Runs(ctx context.Context) ([]RunRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT run_id, variant, dataset_root, dataset_version, output_dir, started_at,
            finished_at, succeeded, degraded, failed, cancelled
        FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			r        RunRecord
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.RunID, &r.Variant, &r.DatasetRoot, &r.DatasetVersion, &r.OutputDir,
			&started, &finished, &r.Succeeded, &r.Degraded, &r.Failed, &r.Cancelled); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Started = parseTimestamp(started)
		if finished.Valid {
			r.Finished = parseTimestamp(finished.String)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (l *Ledger) FrameOutcomes(ctx context.Context, runID string) ([]FrameRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT frame_index, frame_id, status, output_path, error_text,
            skipped_layers, failed_layers, duration_ms
        FROM frame_outcomes WHERE run_id = ? ORDER BY frame_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("query frame outcomes: %w", err)
	}
	defer rows.Close()

	var records []FrameRecord
	for rows.Next() {
		var (
			r               FrameRecord
			status          string
			path, errText   sql.NullString
			skipped, failed sql.NullString
			durationMs      int64
		)
		if err := rows.Scan(&r.Index, &r.FrameID, &status, &path, &errText, &skipped, &failed, &durationMs); err != nil {
			return nil, fmt.Errorf("scan frame outcome: %w", err)
		}
		r.Status = FrameStatus(status)
		r.Path = path.String
		r.Err = errText.String
		r.SkippedLayers = splitList(skipped.String)
		r.FailedLayers = splitList(failed.String)
		r.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, r)
	}
	return records, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, ",")
}

func parseTimestamp(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
