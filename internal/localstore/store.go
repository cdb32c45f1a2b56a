// Package localstore persists planner state in a SQLite file for the
// single-user command line planner.
package localstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/planner"
	"github.com/benvon/family-planner/internal/syncer"
	_ "modernc.org/sqlite"
)

// Store manages planner state in SQLite
type Store struct {
	Path string
	db   *sql.DB
}

var _ syncer.Persister = (*Store)(nil)

// Open opens or creates the state database
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve state path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	// one writer; the dispatcher serializes anyway
	db.SetMaxOpenConns(1)

	s := &Store{Path: absPath, db: db}
	if err := s.ensureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS activity_statuses (
	plan_id TEXT NOT NULL,
	activity_id TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('none', 'want', 'done')),
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (plan_id, activity_id)
);

CREATE TABLE IF NOT EXISTS itinerary_days (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL,
	label TEXT NOT NULL,
	date TEXT,
	sort_order INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	items_updated_at INTEGER NOT NULL,
	deleted_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_days_plan ON itinerary_days(plan_id, sort_order);

CREATE TABLE IF NOT EXISTS itinerary_items (
	day_id TEXT NOT NULL,
	activity_id TEXT NOT NULL,
	sort_order INTEGER NOT NULL,
	PRIMARY KEY (day_id, activity_id)
);

CREATE TABLE IF NOT EXISTS activity_notes (
	plan_id TEXT NOT NULL,
	activity_id TEXT NOT NULL,
	note TEXT NOT NULL,
	deleted INTEGER NOT NULL DEFAULT 0,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (plan_id, activity_id)
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create state schema: %w", err)
	}
	return nil
}

// LoadState reads the stored state of a plan
func (s *Store) LoadState(ctx context.Context, planID string) (models.PlannerState, error) {
	state := models.NewPlannerState()

	rows, err := s.db.QueryContext(ctx, `SELECT activity_id, status FROM activity_statuses WHERE plan_id = ? AND status <> 'none'`, planID)
	if err != nil {
		return state, fmt.Errorf("query statuses: %w", err)
	}
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			_ = rows.Close()
			return state, fmt.Errorf("scan status: %w", err)
		}
		state.Statuses[id] = models.ActivityStatus(status)
	}
	if err := closeRows(rows); err != nil {
		return state, fmt.Errorf("read statuses: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT d.id, d.label, d.date, i.activity_id
		FROM itinerary_days d
		LEFT JOIN itinerary_items i ON i.day_id = d.id
		WHERE d.plan_id = ? AND d.deleted_at IS NULL
		ORDER BY d.sort_order, d.created_at, d.id, i.sort_order
	`, planID)
	if err != nil {
		return state, fmt.Errorf("query itinerary: %w", err)
	}
	index := map[string]int{}
	for rows.Next() {
		var dayID, label string
		var date, activityID sql.NullString
		if err := rows.Scan(&dayID, &label, &date, &activityID); err != nil {
			_ = rows.Close()
			return state, fmt.Errorf("scan itinerary: %w", err)
		}
		i, ok := index[dayID]
		if !ok {
			day := models.ItineraryDay{ID: dayID, Label: label, ActivityIDs: []string{}}
			if date.Valid && date.String != "" {
				d := date.String
				day.Date = &d
			}
			state.Itinerary = append(state.Itinerary, day)
			i = len(state.Itinerary) - 1
			index[dayID] = i
		}
		if activityID.Valid {
			state.Itinerary[i].ActivityIDs = append(state.Itinerary[i].ActivityIDs, activityID.String)
		}
	}
	if err := closeRows(rows); err != nil {
		return state, fmt.Errorf("read itinerary: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT activity_id, note FROM activity_notes WHERE plan_id = ? AND deleted = 0`, planID)
	if err != nil {
		return state, fmt.Errorf("query notes: %w", err)
	}
	for rows.Next() {
		var id, note string
		if err := rows.Scan(&id, &note); err != nil {
			_ = rows.Close()
			return state, fmt.Errorf("scan note: %w", err)
		}
		state.Notes[id] = note
	}
	if err := closeRows(rows); err != nil {
		return state, fmt.Errorf("read notes: %w", err)
	}

	return state, nil
}

func closeRows(rows *sql.Rows) error {
	err := rows.Err()
	if closeErr := rows.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Apply persists one planner command. Writes older than the stored version
// are skipped and deletes leave tombstones, so replays never undo newer state.
func (s *Store) Apply(ctx context.Context, cmd planner.Command) error {
	issued := cmd.IssuedAt.UnixNano()

	var err error
	switch cmd.Kind {
	case planner.CmdUpsertStatus, planner.CmdDeleteStatus:
		status := string(cmd.Status)
		if cmd.Kind == planner.CmdDeleteStatus {
			status = string(models.StatusNone)
		}
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO activity_statuses (plan_id, activity_id, status, updated_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (plan_id, activity_id) DO UPDATE SET
				status = excluded.status,
				updated_at = excluded.updated_at
			WHERE activity_statuses.updated_at <= excluded.updated_at
		`, cmd.PlanID, cmd.ActivityID, status, issued)

	case planner.CmdInsertDay:
		err = s.inTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO itinerary_days (id, plan_id, label, date, sort_order, created_at, updated_at, items_updated_at)
				SELECT ?, ?, ?, ?, MAX(?, COALESCE(MAX(sort_order) + 1, 0)), ?, ?, ?
				FROM itinerary_days WHERE plan_id = ?
				ON CONFLICT (id) DO NOTHING
			`, cmd.DayID, cmd.PlanID, cmd.Label, cmd.Date, cmd.SortOrder, issued, issued, issued, cmd.PlanID)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil || n == 0 {
				return err
			}
			return writeItems(ctx, tx, cmd.DayID, cmd.ActivityIDs)
		})

	case planner.CmdUpdateDay:
		_, err = s.db.ExecContext(ctx, `
			UPDATE itinerary_days SET label = ?, date = ?, updated_at = ?
			WHERE id = ? AND plan_id = ? AND deleted_at IS NULL AND updated_at <= ?
		`, cmd.Label, cmd.Date, issued, cmd.DayID, cmd.PlanID, issued)

	case planner.CmdDeleteDay:
		err = s.inTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				UPDATE itinerary_days SET deleted_at = ? WHERE id = ? AND plan_id = ? AND deleted_at IS NULL
			`, issued, cmd.DayID, cmd.PlanID); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `DELETE FROM itinerary_items WHERE day_id = ?`, cmd.DayID)
			return err
		})

	case planner.CmdInsertItem, planner.CmdDeleteItem, planner.CmdReorderDay:
		err = s.inTx(ctx, func(tx *sql.Tx) error {
			return replaceItems(ctx, tx, cmd, issued)
		})

	case planner.CmdUpsertNote, planner.CmdDeleteNote:
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO activity_notes (plan_id, activity_id, note, deleted, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (plan_id, activity_id) DO UPDATE SET
				note = excluded.note,
				deleted = excluded.deleted,
				updated_at = excluded.updated_at
			WHERE activity_notes.updated_at <= excluded.updated_at
		`, cmd.PlanID, cmd.ActivityID, cmd.Note, cmd.Kind == planner.CmdDeleteNote, issued)

	default:
		return fmt.Errorf("unknown command kind %q: %w", cmd.Kind, syncer.ErrPermanent)
	}

	if err != nil {
		return fmt.Errorf("apply %s %s: %w", cmd.Kind, cmd.Key(), err)
	}
	return nil
}

// replaceItems rewrites a day's items to cmd.ActivityIDs unless the day holds
// a newer sequence or is deleted
func replaceItems(ctx context.Context, tx *sql.Tx, cmd planner.Command, issued int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE itinerary_days SET items_updated_at = ?
		WHERE id = ? AND plan_id = ? AND deleted_at IS NULL AND items_updated_at <= ?
	`, issued, cmd.DayID, cmd.PlanID, issued)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM itinerary_days WHERE id = ? AND plan_id = ?)`, cmd.DayID, cmd.PlanID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("day %s not stored yet", cmd.DayID)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM itinerary_items WHERE day_id = ?`, cmd.DayID); err != nil {
		return err
	}
	return writeItems(ctx, tx, cmd.DayID, cmd.ActivityIDs)
}

func writeItems(ctx context.Context, tx *sql.Tx, dayID string, sequence []string) error {
	for i, id := range sequence {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO itinerary_items (day_id, activity_id, sort_order) VALUES (?, ?, ?)
			ON CONFLICT (day_id, activity_id) DO UPDATE SET sort_order = excluded.sort_order
		`, dayID, id, i); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	return tx.Commit()
}
