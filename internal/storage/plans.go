package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"gymbill/internal/stories/plans"
)

const plansTable = "membership_plans"

var planRowFields = fields(planRow{})

type planRow struct {
	ID           int64     `db:"id"`
	Name         string    `db:"name"`
	DurationDays int       `db:"duration_days"`
	Price        float64   `db:"price"`
	Currency     string    `db:"currency"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (p planRow) ToModel() *plans.Plan {
	return &plans.Plan{
		ID:           p.ID,
		Name:         p.Name,
		DurationDays: p.DurationDays,
		Price:        p.Price,
		Currency:     p.Currency,
		IsActive:     p.IsActive,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (p *planRow) scan(row interface{ Scan(...any) error }) error {
	return row.Scan(&p.ID, &p.Name, &p.DurationDays, &p.Price, &p.Currency,
		&p.IsActive, &p.CreatedAt, &p.UpdatedAt)
}

func (s *storageImpl) CreatePlan(ctx context.Context, plan plans.Plan) (*plans.Plan, error) {
	params := map[string]interface{}{
		"name":          plan.Name,
		"duration_days": plan.DurationDays,
		"price":         plan.Price,
		"currency":      plan.Currency,
		"is_active":     plan.IsActive,
		"created_at":    s.now(),
		"updated_at":    s.now(),
	}

	q, args, err := s.stmpBuilder().
		Insert(plansTable).
		SetMap(params).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	result, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("result.LastInsertId: %w", err)
	}

	return s.GetPlan(ctx, plans.GetCriteria{ID: &id})
}

func (s *storageImpl) GetPlan(ctx context.Context, criteria plans.GetCriteria) (*plans.Plan, error) {
	query := s.stmpBuilder().
		Select(planRowFields).
		From(plansTable).
		Limit(1)

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.Name != nil {
		query = query.Where(sq.Eq{"name": *criteria.Name})
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, q, args...)

	var p planRow
	if err := p.scan(row); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return p.ToModel(), nil
}

func (s *storageImpl) UpdatePlan(ctx context.Context, criteria plans.GetCriteria, params plans.UpdateParams) (*plans.Plan, error) {
	query := s.stmpBuilder().
		Update(plansTable).
		Set("updated_at", s.now())

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.Name != nil {
		query = query.Where(sq.Eq{"name": *criteria.Name})
	}

	if params.Name != nil {
		query = query.Set("name", *params.Name)
	}
	if params.DurationDays != nil {
		query = query.Set("duration_days", *params.DurationDays)
	}
	if params.Price != nil {
		query = query.Set("price", *params.Price)
	}
	if params.Currency != nil {
		query = query.Set("currency", *params.Currency)
	}
	if params.IsActive != nil {
		query = query.Set("is_active", *params.IsActive)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	_, err = s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetPlan(ctx, criteria)
}

func (s *storageImpl) ListPlans(ctx context.Context, criteria plans.ListCriteria) ([]*plans.Plan, error) {
	query := s.stmpBuilder().
		Select(planRowFields).
		From(plansTable)

	if criteria.IsActive != nil {
		query = query.Where(sq.Eq{"is_active": *criteria.IsActive})
	}

	if criteria.Limit > 0 {
		query = query.Limit(uint64(criteria.Limit))
	}
	if criteria.Offset > 0 {
		query = query.Offset(uint64(criteria.Offset))
	}

	query = query.OrderBy("price ASC")

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.QueryContext: %w", err)
	}
	defer rows.Close()

	var result []*plans.Plan
	for rows.Next() {
		var p planRow
		if err := p.scan(rows); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		result = append(result, p.ToModel())
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return result, nil
}
