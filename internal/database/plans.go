package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benvon/family-planner/internal/models"
	"github.com/google/uuid"
)

const planColumns = `id, owner_id, destination_id, name, travel_month, travel_year, is_active, share_code, created_at, updated_at`

// PlanRepository handles plans, their members and their message threads
type PlanRepository struct {
	db *DB
}

// NewPlanRepository creates a new plan repository
func NewPlanRepository(db *DB) *PlanRepository {
	return &PlanRepository{db: db}
}

func scanPlan(row interface{ Scan(...any) error }) (*models.Plan, error) {
	p := &models.Plan{}
	var month, year sql.NullInt64
	err := row.Scan(&p.ID, &p.OwnerID, &p.DestinationID, &p.Name, &month, &year, &p.IsActive, &p.ShareCode, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if month.Valid {
		m := int(month.Int64)
		p.TravelMonth = &m
	}
	if year.Valid {
		y := int(year.Int64)
		p.TravelYear = &y
	}
	return p, nil
}

// NewShareCode returns a short random code used in plan share links
func NewShareCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// Create inserts a plan and its owner membership. An active plan deactivates
// the owner's other plans in the same transaction.
func (r *PlanRepository) Create(ctx context.Context, plan *models.Plan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	if plan.ShareCode == "" {
		plan.ShareCode = NewShareCode()
	}
	now := time.Now().UTC()
	plan.CreatedAt, plan.UpdatedAt = now, now

	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if plan.IsActive {
			if _, err := tx.ExecContext(ctx, `UPDATE plans SET is_active = FALSE, updated_at = $2 WHERE owner_id = $1 AND is_active`, plan.OwnerID, now); err != nil {
				return fmt.Errorf("failed to deactivate plans: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO plans (`+planColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		`, plan.ID, plan.OwnerID, plan.DestinationID, plan.Name, plan.TravelMonth, plan.TravelYear, plan.IsActive, plan.ShareCode, now); err != nil {
			return fmt.Errorf("failed to create plan: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO plan_members (plan_id, user_id, role, invited_at, accepted_at)
			VALUES ($1, $2, $3, $4, $4)
		`, plan.ID, plan.OwnerID, models.RoleOwner, now); err != nil {
			return fmt.Errorf("failed to add plan owner: %w", err)
		}
		return nil
	})
}

// GetByID retrieves a plan by id
func (r *PlanRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	p, err := scanPlan(r.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	return p, nil
}

// GetByShareCode retrieves a plan by its share code
func (r *PlanRepository) GetByShareCode(ctx context.Context, code string) (*models.Plan, error) {
	p, err := scanPlan(r.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE share_code = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan with share code %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan by share code: %w", err)
	}
	return p, nil
}

// GetActive retrieves the user's active plan
func (r *PlanRepository) GetActive(ctx context.Context, ownerID uuid.UUID) (*models.Plan, error) {
	p, err := scanPlan(r.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans WHERE owner_id = $1 AND is_active`, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("active plan for %s: %w", ownerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active plan: %w", err)
	}
	return p, nil
}

// ListForUser returns the plans a user owns or is a member of, newest first
func (r *PlanRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*models.Plan, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+prefixColumns("p", planColumns)+`
		FROM plans p
		WHERE p.owner_id = $1
		   OR EXISTS (SELECT 1 FROM plan_members m WHERE m.plan_id = p.id AND m.user_id = $1)
		ORDER BY p.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plans: %w", err)
	}
	defer closeRows(rows)

	plans := []*models.Plan{}
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plans: %w", err)
	}
	return plans, nil
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// Activate makes planID the owner's only active plan
func (r *PlanRepository) Activate(ctx context.Context, ownerID, planID uuid.UUID) error {
	now := time.Now().UTC()
	return r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE plans SET is_active = FALSE, updated_at = $3 WHERE owner_id = $1 AND is_active AND id <> $2`, ownerID, planID, now); err != nil {
			return fmt.Errorf("failed to deactivate plans: %w", err)
		}
		result, err := tx.ExecContext(ctx, `UPDATE plans SET is_active = TRUE, updated_at = $3 WHERE id = $2 AND owner_id = $1`, ownerID, planID, now)
		if err != nil {
			return fmt.Errorf("failed to activate plan: %w", err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("plan %s: %w", planID, ErrNotFound)
		}
		return nil
	})
}

// MemberRole returns the user's role on a plan
func (r *PlanRepository) MemberRole(ctx context.Context, planID, userID uuid.UUID) (models.MemberRole, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `SELECT role FROM plan_members WHERE plan_id = $1 AND user_id = $2`, planID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("member %s of plan %s: %w", userID, planID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get member role: %w", err)
	}
	return models.MemberRole(role), nil
}

// AddMember invites a user to a plan, or changes the role of an existing member
func (r *PlanRepository) AddMember(ctx context.Context, planID, userID uuid.UUID, role models.MemberRole) (*models.PlanMember, error) {
	m := &models.PlanMember{}
	var accepted sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO plan_members (plan_id, user_id, role, invited_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (plan_id, user_id) DO UPDATE SET role = EXCLUDED.role
		RETURNING plan_id, user_id, role, invited_at, accepted_at
	`, planID, userID, role).Scan(&m.PlanID, &m.UserID, &m.Role, &m.InvitedAt, &accepted)
	if err != nil {
		return nil, fmt.Errorf("failed to add plan member: %w", err)
	}
	if accepted.Valid {
		m.AcceptedAt = &accepted.Time
	}
	return m, nil
}

// ListMembers returns the members of a plan
func (r *PlanRepository) ListMembers(ctx context.Context, planID uuid.UUID) ([]models.PlanMember, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pm.plan_id, pm.user_id, pm.role, pm.invited_at, pm.accepted_at, u.email, u.name
		FROM plan_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.plan_id = $1
		ORDER BY pm.invited_at
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan members: %w", err)
	}
	defer closeRows(rows)

	members := []models.PlanMember{}
	for rows.Next() {
		var m models.PlanMember
		var accepted sql.NullTime
		u := models.User{}
		if err := rows.Scan(&m.PlanID, &m.UserID, &m.Role, &m.InvitedAt, &accepted, &u.Email, &u.Name); err != nil {
			return nil, fmt.Errorf("failed to scan plan member: %w", err)
		}
		m.Email, m.Name = u.Email, u.DisplayName()
		if accepted.Valid {
			t := accepted.Time
			m.AcceptedAt = &t
		}
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plan members: %w", err)
	}
	return members, nil
}

// AddMessage appends a message to a plan's thread
func (r *PlanRepository) AddMessage(ctx context.Context, msg *models.PlanMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO plan_messages (id, plan_id, user_id, content, is_ai)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, msg.ID, msg.PlanID, msg.UserID, msg.Content, msg.IsAI).Scan(&msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add plan message: %w", err)
	}
	return nil
}

// ListMessages returns up to limit of the most recent messages, oldest first
func (r *PlanRepository) ListMessages(ctx context.Context, planID uuid.UUID, limit int) ([]models.PlanMessage, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, plan_id, user_id, content, is_ai, created_at FROM (
			SELECT id, plan_id, user_id, content, is_ai, created_at
			FROM plan_messages WHERE plan_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		) recent
		ORDER BY created_at
	`, planID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan messages: %w", err)
	}
	defer closeRows(rows)

	messages := []models.PlanMessage{}
	for rows.Next() {
		var m models.PlanMessage
		if err := rows.Scan(&m.ID, &m.PlanID, &m.UserID, &m.Content, &m.IsAI, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating plan messages: %w", err)
	}
	return messages, nil
}
