// Package store archives tracking runs in a SQLite database.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	"github.com/LdDl/ctc-tracker-go/celltrack"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// schema.sql holds tables for runs, their lineage, resolved events, merge
// artifacts and data-quality warnings.
//
//go:embed schema.sql
var schemaSQL string

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// ErrRunNotFound is returned for unknown run identifiers
var ErrRunNotFound = errors.New("run not found")

// Store is a run archive
type Store struct {
	db *sql.DB
}

// RunInfo is a summary row of an archived run
type RunInfo struct {
	RunID           uuid.UUID
	CreatedAt       time.Time
	Frames          int
	Tracks          int
	Divisions       int
	Merges          int
	Warnings        int
	MeanTrackLength float64
	Elapsed         time.Duration
}

// Open opens (and creates if needed) archive database
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	// SQLite allows one writer; a single connection keeps PRAGMAs applied
	db.SetMaxOpenConns(1)
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "apply %q", pragma)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initialize schema")
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun stores the complete run in a single transaction
func (s *Store) SaveRun(ctx context.Context, result *celltrack.Result) error {
	config, err := result.Config.EncodeTOML()
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback()

	runID := result.RunID.String()
	summary := result.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, created_at, frames, tracks, divisions, merges, warnings, mean_track_length, elapsed_ms, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, time.Now().UnixNano(), summary.Frames, summary.Tracks, summary.Divisions, summary.Merges, summary.Warnings,
		summary.MeanTrackLength, result.Elapsed.Milliseconds(), string(config),
	)
	if err != nil {
		return errors.Wrap(err, "insert run")
	}

	trackStmt, err := tx.PrepareContext(ctx, `INSERT INTO tracks (run_id, track_id, start_frame, end_frame, parent_id) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare tracks")
	}
	defer trackStmt.Close()
	for _, row := range result.Lineage {
		if _, err := trackStmt.ExecContext(ctx, runID, row.TrackID, row.Start, row.End, row.Parent); err != nil {
			return errors.Wrapf(err, "insert track %d", row.TrackID)
		}
	}

	eventStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, frame, seq, kind, prev_label, lost_label, next_label, second_label)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare events")
	}
	defer eventStmt.Close()
	for _, res := range result.History {
		for seq, e := range res.Events {
			prev, lost, next, second := eventLabels(e)
			if _, err := eventStmt.ExecContext(ctx, runID, res.NextFrame, seq, e.Kind.String(), prev, lost, next, second); err != nil {
				return errors.Wrapf(err, "insert event %s", e)
			}
		}
	}

	for _, rec := range result.Merges {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO merges (run_id, frame, instance_label, survivor, absorbed, recovered, recovered_as)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, rec.Frame, rec.Instance.Label, rec.Survivor, rec.Absorbed, rec.Recovered, rec.RecoveredAs,
		)
		if err != nil {
			return errors.Wrap(err, "insert merge")
		}
	}
	for _, w := range result.Warnings {
		if _, err := tx.ExecContext(ctx, `INSERT INTO warnings (run_id, frame, message) VALUES (?, ?, ?)`, runID, w.Frame, w.Message); err != nil {
			return errors.Wrap(err, "insert warning")
		}
	}
	return errors.Wrap(tx.Commit(), "commit run")
}

// eventLabels returns labels of the event, nil for fields the kind does not use
func eventLabels(e celltrack.Event) (prev, lost, next, second any) {
	switch e.Kind {
	case celltrack.Continuation:
		return e.Prev.Label, nil, e.Next.Label, nil
	case celltrack.Division, celltrack.MergeRecovery:
		return e.Prev.Label, nil, e.Next.Label, e.Second.Label
	case celltrack.MergeArtifact:
		return e.Prev.Label, e.Lost.Label, e.Next.Label, nil
	case celltrack.Appearance:
		return nil, nil, e.Next.Label, nil
	case celltrack.Disappearance:
		return e.Prev.Label, nil, nil, nil
	default:
		return nil, nil, nil, nil
	}
}

// ListRuns returns archived runs, newest first
func (s *Store) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, created_at, frames, tracks, divisions, merges, warnings, mean_track_length, elapsed_ms
		FROM runs
		ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var info RunInfo
		var runID string
		var createdAt, elapsedMs int64
		err := rows.Scan(&runID, &createdAt, &info.Frames, &info.Tracks, &info.Divisions,
			&info.Merges, &info.Warnings, &info.MeanTrackLength, &elapsedMs)
		if err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		info.RunID, err = uuid.Parse(runID)
		if err != nil {
			return nil, errors.Wrapf(err, "run id %q", runID)
		}
		info.CreatedAt = time.Unix(0, createdAt)
		info.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		runs = append(runs, info)
	}
	return runs, errors.Wrap(rows.Err(), "iterate runs")
}

// Lineage returns lineage table of archived run ordered by track id
func (s *Store) Lineage(ctx context.Context, runID uuid.UUID) ([]celltrack.LineageRow, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE run_id = ?`, runID.String()).Scan(&exists)
	if err != nil {
		return nil, errors.Wrap(err, "query run")
	}
	if exists == 0 {
		return nil, errors.Wrap(ErrRunNotFound, runID.String())
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT track_id, start_frame, end_frame, parent_id
		FROM tracks
		WHERE run_id = ?
		ORDER BY track_id`, runID.String())
	if err != nil {
		return nil, errors.Wrap(err, "query tracks")
	}
	defer rows.Close()

	lineage := make([]celltrack.LineageRow, 0)
	for rows.Next() {
		var row celltrack.LineageRow
		if err := rows.Scan(&row.TrackID, &row.Start, &row.End, &row.Parent); err != nil {
			return nil, errors.Wrap(err, "scan track")
		}
		lineage = append(lineage, row)
	}
	return lineage, errors.Wrap(rows.Err(), "iterate tracks")
}

// EventCounts returns number of archived events per kind for the run
func (s *Store) EventCounts(ctx context.Context, runID uuid.UUID) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM events WHERE run_id = ? GROUP BY kind`, runID.String())
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var count int
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, errors.Wrap(err, "scan event count")
		}
		counts[kind] = count
	}
	return counts, errors.Wrap(rows.Err(), "iterate events")
}
