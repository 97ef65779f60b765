package checkpoint

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// StageCounts summarizes one stage of a run.
type StageCounts struct {
	Units        int   `json:"units"`
	Skipped      int   `json:"skipped"`
	Failed       int   `json:"failed"`
	Rows         int64 `json:"rows"`
	DedupDropped int64 `json:"dedup_dropped"`
}

// StageStatus is one row of the status report.
type StageStatus struct {
	Stage string `json:"stage"`
	Done  int    `json:"done"`
	Rows  int64  `json:"rows"`
}

// StartRun records the beginning of a pipeline run and returns its id.
func (r *Registry) StartRun(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := uuid.NewString()
	_, err := r.db.ExecContext(ctx, `INSERT INTO runs (id) VALUES (?)`, id)
	if err != nil {
		return "", eris.Wrap(err, "checkpoint: start run")
	}
	return id, nil
}

// CompleteStage records per-stage counters for a run.
func (r *Registry) CompleteStage(ctx context.Context, runID, stage string, c StageCounts) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO run_stages (run_id, stage, units, skipped, failed, rows, dedup_dropped)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (run_id, stage) DO UPDATE SET
			units = excluded.units, skipped = excluded.skipped, failed = excluded.failed,
			rows = excluded.rows, dedup_dropped = excluded.dedup_dropped,
			completed_at = datetime('now')`,
		runID, stage, c.Units, c.Skipped, c.Failed, c.Rows, c.DedupDropped,
	)
	return eris.Wrapf(err, "checkpoint: complete stage %s", stage)
}

// CompleteRun stamps the run as finished.
func (r *Registry) CompleteRun(ctx context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`UPDATE runs SET completed_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339), runID,
	)
	return eris.Wrap(err, "checkpoint: complete run")
}

// Status returns per-stage completion counts and row totals.
func (r *Registry) Status(ctx context.Context) ([]StageStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx,
		`SELECT stage, COUNT(*), COALESCE(SUM(rows), 0) FROM units GROUP BY stage ORDER BY stage`)
	if err != nil {
		return nil, eris.Wrap(err, "checkpoint: status")
	}
	defer rows.Close()

	var out []StageStatus
	for rows.Next() {
		var s StageStatus
		if err := rows.Scan(&s.Stage, &s.Done, &s.Rows); err != nil {
			return nil, eris.Wrap(err, "checkpoint: scan status")
		}
		out = append(out, s)
	}
	return out, eris.Wrap(rows.Err(), "checkpoint: iterate status")
}
