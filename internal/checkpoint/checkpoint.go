// Package checkpoint tracks per-unit completion in a SQLite registry and
// reconciles it against the output tree on startup. A finalized output
// file is always sufficient evidence of completion; the filesystem wins
// over the registry on any conflict.
package checkpoint

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/meridian-data/secmerge/internal/tabular"
)

// Registry is the durable per-unit completion store. Safe for use from
// concurrent unit workers; writes are serialized.
type Registry struct {
	db *sql.DB
	mu sync.Mutex
}

const migration = `
CREATE TABLE IF NOT EXISTS units (
	stage        TEXT NOT NULL,
	unit         TEXT NOT NULL,
	rows         INTEGER NOT NULL DEFAULT 0,
	completed_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (stage, unit)
);

CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE TABLE IF NOT EXISTS run_stages (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	stage         TEXT NOT NULL,
	units         INTEGER NOT NULL,
	skipped       INTEGER NOT NULL,
	failed        INTEGER NOT NULL,
	rows          INTEGER NOT NULL,
	dedup_dropped INTEGER NOT NULL,
	completed_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (run_id, stage)
);
`

// Open opens (or creates) the registry database and applies migrations.
func Open(path string) (*Registry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "checkpoint: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "checkpoint: exec %s", pragma)
		}
	}
	if _, err := db.Exec(migration); err != nil {
		db.Close()
		return nil, eris.Wrap(err, "checkpoint: migrate")
	}
	return &Registry{db: db}, nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// IsDone reports whether the unit has completed for the given stage.
func (r *Registry) IsDone(ctx context.Context, stage, unit string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM units WHERE stage = ? AND unit = ?`,
		stage, unit,
	).Scan(&n)
	if err != nil {
		return false, eris.Wrapf(err, "checkpoint: is done %s/%s", stage, unit)
	}
	return n > 0, nil
}

// MarkDone records unit completion. Callers must invoke this only after
// the unit's output has been durably finalized.
func (r *Registry) MarkDone(ctx context.Context, stage, unit string, rows int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO units (stage, unit, rows) VALUES (?, ?, ?)
		 ON CONFLICT (stage, unit) DO UPDATE SET rows = excluded.rows, completed_at = datetime('now')`,
		stage, unit, rows,
	)
	return eris.Wrapf(err, "checkpoint: mark done %s/%s", stage, unit)
}

// forget drops a registry entry so the unit is reprocessed.
func (r *Registry) forget(ctx context.Context, stage, unit string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM units WHERE stage = ? AND unit = ?`, stage, unit)
	return eris.Wrapf(err, "checkpoint: forget %s/%s", stage, unit)
}

func (r *Registry) doneUnits(ctx context.Context, stage string) (map[string]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.QueryContext(ctx, `SELECT unit FROM units WHERE stage = ?`, stage)
	if err != nil {
		return nil, eris.Wrapf(err, "checkpoint: list units for %s", stage)
	}
	defer rows.Close()

	done := make(map[string]bool)
	for rows.Next() {
		var unit string
		if err := rows.Scan(&unit); err != nil {
			return nil, eris.Wrap(err, "checkpoint: scan unit")
		}
		done[unit] = true
	}
	return done, eris.Wrap(rows.Err(), "checkpoint: iterate units")
}

// ReconcileDir aligns the registry for one stage with the contents of
// its output directory:
//   - a finalized <unit>.csv marks the unit done regardless of registry state;
//   - a registry entry without a final file is dropped;
//   - leftover temp artifacts of undone units are deleted.
//
// The directory is created if absent.
func (r *Registry) ReconcileDir(ctx context.Context, stage, dir string) error {
	log := zap.L().With(zap.String("component", "checkpoint"), zap.String("stage", stage))

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "checkpoint: create %s", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return eris.Wrapf(err, "checkpoint: read %s", dir)
	}

	onDisk := make(map[string]bool)
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(name, tabular.TempSuffix) {
			log.Warn("removing stale temp artifact", zap.String("file", name))
			if err := os.Remove(filepath.Join(dir, name)); err != nil {
				return eris.Wrapf(err, "checkpoint: remove stale temp %s", name)
			}
			continue
		}
		if strings.HasSuffix(name, ".csv") {
			onDisk[strings.TrimSuffix(name, ".csv")] = true
		}
	}

	recorded, err := r.doneUnits(ctx, stage)
	if err != nil {
		return err
	}

	for unit := range onDisk {
		if !recorded[unit] {
			log.Info("adopting finalized output missing from registry", zap.String("unit", unit))
			if err := r.MarkDone(ctx, stage, unit, 0); err != nil {
				return err
			}
		}
	}
	for unit := range recorded {
		if !onDisk[unit] {
			log.Warn("registry entry has no final output, unit will be reprocessed", zap.String("unit", unit))
			if err := r.forget(ctx, stage, unit); err != nil {
				return err
			}
		}
	}
	return nil
}

// CleanupTemp removes the temp artifact for one unit's output path, if present.
func CleanupTemp(finalPath string) {
	os.Remove(finalPath + tabular.TempSuffix)
}
