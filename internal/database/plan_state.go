package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/benvon/family-planner/internal/models"
	"github.com/benvon/family-planner/internal/planner"
	"github.com/benvon/family-planner/internal/syncer"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

var errDayNotPersisted = errors.New("itinerary day not persisted yet")

// PlanStateRepository loads and persists the planner state of a plan.
// It implements syncer.Persister.
type PlanStateRepository struct {
	db *DB
}

// NewPlanStateRepository creates a new plan state repository
func NewPlanStateRepository(db *DB) *PlanStateRepository {
	return &PlanStateRepository{db: db}
}

// LoadState reads statuses, days with their items, and notes in parallel
func (r *PlanStateRepository) LoadState(ctx context.Context, planID uuid.UUID) (models.PlannerState, error) {
	state := models.NewPlannerState()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		statuses, err := r.loadStatuses(gctx, planID)
		state.Statuses = statuses
		return err
	})
	g.Go(func() error {
		days, err := r.loadDays(gctx, planID)
		state.Itinerary = days
		return err
	})
	g.Go(func() error {
		notes, err := r.loadNotes(gctx, planID)
		state.Notes = notes
		return err
	})
	if err := g.Wait(); err != nil {
		return models.PlannerState{}, err
	}
	return state, nil
}

func (r *PlanStateRepository) loadStatuses(ctx context.Context, planID uuid.UUID) (map[string]models.ActivityStatus, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT activity_id, status FROM plan_activity_statuses WHERE plan_id = $1 AND status <> 'none'`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query statuses: %w", err)
	}
	defer closeRows(rows)

	out := map[string]models.ActivityStatus{}
	for rows.Next() {
		var id, raw string
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		if st, ok := mapStatus(raw); ok {
			out[id] = st
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating statuses: %w", err)
	}
	return out, nil
}

func (r *PlanStateRepository) loadDays(ctx context.Context, planID uuid.UUID) ([]models.ItineraryDay, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.id, d.label, d.date, i.activity_id
		FROM plan_itinerary_days d
		LEFT JOIN plan_itinerary_items i ON i.day_id = d.id
		WHERE d.plan_id = $1 AND d.deleted_at IS NULL
		ORDER BY d.sort_order, d.created_at, d.id, i.sort_order
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query itinerary: %w", err)
	}
	defer closeRows(rows)

	var raw []dayItemRow
	for rows.Next() {
		var row dayItemRow
		if err := rows.Scan(&row.DayID, &row.Label, &row.Date, &row.ActivityID); err != nil {
			return nil, fmt.Errorf("failed to scan itinerary row: %w", err)
		}
		raw = append(raw, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating itinerary: %w", err)
	}
	return assembleDays(raw), nil
}

func (r *PlanStateRepository) loadNotes(ctx context.Context, planID uuid.UUID) (map[string]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT activity_id, note FROM plan_notes WHERE plan_id = $1 AND NOT deleted`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query notes: %w", err)
	}
	defer closeRows(rows)

	out := map[string]string{}
	for rows.Next() {
		var id, note string
		if err := rows.Scan(&id, &note); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		out[id] = note
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notes: %w", err)
	}
	return out, nil
}

// Apply persists one planner command. Every write is versioned by the
// command's IssuedAt: a command older than what is stored is skipped, and
// deletes leave tombstones so a late replay cannot resurrect a row.
func (r *PlanStateRepository) Apply(ctx context.Context, cmd planner.Command) error {
	planID, err := uuid.Parse(cmd.PlanID)
	if err != nil {
		return fmt.Errorf("invalid plan id %q: %w", cmd.PlanID, syncer.ErrPermanent)
	}

	switch cmd.Kind {
	case planner.CmdUpsertStatus:
		if _, ok := mapStatus(string(cmd.Status)); !ok {
			return fmt.Errorf("invalid stored status %q: %w", cmd.Status, syncer.ErrPermanent)
		}
		err = r.writeStatus(ctx, planID, cmd.ActivityID, string(cmd.Status), cmd.IssuedAt)

	case planner.CmdDeleteStatus:
		err = r.writeStatus(ctx, planID, cmd.ActivityID, string(models.StatusNone), cmd.IssuedAt)

	case planner.CmdInsertDay:
		err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
			res, err := tx.ExecContext(ctx, `
				INSERT INTO plan_itinerary_days (id, plan_id, label, date, sort_order, created_at, updated_at, items_updated_at)
				SELECT $1, $2, $3, $4, GREATEST($5, COALESCE(MAX(sort_order) + 1, 0)), $6, $6, $6
				FROM plan_itinerary_days WHERE plan_id = $2
				ON CONFLICT (id) DO NOTHING
			`, cmd.DayID, planID, cmd.Label, cmd.Date, cmd.SortOrder, cmd.IssuedAt)
			if err != nil {
				return err
			}
			if n, err := res.RowsAffected(); err != nil || n == 0 {
				return err
			}
			return writeItems(ctx, tx, cmd.DayID, cmd.ActivityIDs)
		})

	case planner.CmdUpdateDay:
		_, err = r.db.ExecContext(ctx, `
			UPDATE plan_itinerary_days SET label = $3, date = $4, updated_at = $5
			WHERE id = $1 AND plan_id = $2 AND deleted_at IS NULL AND updated_at <= $5
		`, cmd.DayID, planID, cmd.Label, cmd.Date, cmd.IssuedAt)

	case planner.CmdDeleteDay:
		err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `
				UPDATE plan_itinerary_days SET deleted_at = $3
				WHERE id = $1 AND plan_id = $2 AND deleted_at IS NULL
			`, cmd.DayID, planID, cmd.IssuedAt); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `DELETE FROM plan_itinerary_items WHERE day_id = $1`, cmd.DayID)
			return err
		})

	case planner.CmdInsertItem, planner.CmdDeleteItem, planner.CmdReorderDay:
		err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
			return replaceItems(ctx, tx, planID, cmd)
		})

	case planner.CmdUpsertNote, planner.CmdDeleteNote:
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO plan_notes (plan_id, activity_id, note, deleted, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (plan_id, activity_id) DO UPDATE SET
				note = EXCLUDED.note,
				deleted = EXCLUDED.deleted,
				updated_at = EXCLUDED.updated_at
			WHERE plan_notes.updated_at <= EXCLUDED.updated_at
		`, planID, cmd.ActivityID, cmd.Note, cmd.Kind == planner.CmdDeleteNote, cmd.IssuedAt)

	default:
		return fmt.Errorf("unknown command kind %q: %w", cmd.Kind, syncer.ErrPermanent)
	}

	if err != nil {
		return classifyWriteError(cmd, err)
	}
	return nil
}

// writeStatus upserts a status row; status none is the tombstone of a cleared status
func (r *PlanStateRepository) writeStatus(ctx context.Context, planID uuid.UUID, activityID, status string, issuedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO plan_activity_statuses (plan_id, activity_id, status, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (plan_id, activity_id) DO UPDATE SET
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		WHERE plan_activity_statuses.updated_at <= EXCLUDED.updated_at
	`, planID, activityID, status, issuedAt)
	return err
}

// replaceItems makes the stored items of a day equal cmd.ActivityIDs, unless
// the day already holds a newer sequence or has been deleted
func replaceItems(ctx context.Context, tx *sql.Tx, planID uuid.UUID, cmd planner.Command) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE plan_itinerary_days SET items_updated_at = $3
		WHERE id = $1 AND plan_id = $2 AND deleted_at IS NULL AND items_updated_at <= $3
	`, cmd.DayID, planID, cmd.IssuedAt)
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
			`SELECT EXISTS (SELECT 1 FROM plan_itinerary_days WHERE id = $1 AND plan_id = $2)`,
			cmd.DayID, planID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			// the insert_day for this day has not landed yet; retry later
			return fmt.Errorf("day %s: %w", cmd.DayID, errDayNotPersisted)
		}
		return nil
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM plan_itinerary_items WHERE day_id = $1 AND activity_id <> ALL($2::text[])
	`, cmd.DayID, pq.Array(cmd.ActivityIDs)); err != nil {
		return err
	}
	return writeItems(ctx, tx, cmd.DayID, cmd.ActivityIDs)
}

// writeItems stores each activity of sequence with its index as the order
func writeItems(ctx context.Context, tx *sql.Tx, dayID string, sequence []string) error {
	if len(sequence) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO plan_itinerary_items (day_id, activity_id, sort_order)
		SELECT $1, s.activity_id, s.ord - 1
		FROM unnest($2::text[]) WITH ORDINALITY AS s(activity_id, ord)
		ON CONFLICT (day_id, activity_id) DO UPDATE SET sort_order = EXCLUDED.sort_order
	`, dayID, pq.Array(sequence))
	return err
}

// classifyWriteError marks constraint violations as permanent: replaying the
// same command would fail the same way.
func classifyWriteError(cmd planner.Command, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "23" {
		return fmt.Errorf("failed to apply %s %s: %v: %w", cmd.Kind, cmd.Key(), err, syncer.ErrPermanent)
	}
	return fmt.Errorf("failed to apply %s %s: %w", cmd.Kind, cmd.Key(), err)
}

