package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dmitrymomot/billing/pkg/catalog"
	"github.com/dmitrymomot/billing/pkg/pg"
)

const planColumns = `code, name, amount, currency, interval_unit, interval_count, trial_days, active, created_at, updated_at`

// PlanStore implements catalog.Store.
type PlanStore struct {
	db DB
}

func NewPlanStore(db DB) *PlanStore {
	return &PlanStore{db: db}
}

var _ catalog.Store = (*PlanStore)(nil)

func scanPlan(row pgx.Row) (catalog.Plan, error) {
	var p catalog.Plan
	err := row.Scan(&p.Code, &p.Name, &p.Amount, &p.Currency, &p.IntervalUnit,
		&p.IntervalCount, &p.TrialDays, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PlanStore) CreatePlan(ctx context.Context, p catalog.Plan) error {
	_, err := s.db.Exec(ctx, `INSERT INTO plans (`+planColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.Code, p.Name, p.Amount, p.Currency, p.IntervalUnit, p.IntervalCount, p.TrialDays, p.Active, p.CreatedAt, p.UpdatedAt)
	if pg.IsDuplicateKeyError(err) {
		return catalog.ErrDuplicatePlanCode
	}
	return err
}

func (s *PlanStore) GetPlan(ctx context.Context, code string) (catalog.Plan, error) {
	p, err := scanPlan(s.db.QueryRow(ctx, `SELECT `+planColumns+` FROM plans WHERE code = $1`, code))
	if pg.IsNotFoundError(err) {
		return catalog.Plan{}, catalog.ErrPlanNotFound
	}
	return p, err
}

func (s *PlanStore) ListPlans(ctx context.Context, activeOnly bool) ([]catalog.Plan, error) {
	rows, err := s.db.Query(ctx, `SELECT `+planColumns+` FROM plans WHERE active OR NOT $1 ORDER BY code`, activeOnly)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Plan, error) {
		return scanPlan(row)
	})
}

func (s *PlanStore) SetPlanActive(ctx context.Context, code string, active bool, at time.Time) error {
	tag, err := s.db.Exec(ctx, `UPDATE plans SET active = $2, updated_at = $3 WHERE code = $1`, code, active, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrPlanNotFound
	}
	return nil
}

func (s *PlanStore) DeletePlan(ctx context.Context, code string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM plans WHERE code = $1`, code)
	if pg.IsForeignKeyViolationError(err) {
		return errors.Join(catalog.ErrPlanInUse, err)
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrPlanNotFound
	}
	return nil
}
