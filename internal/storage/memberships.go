package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"gymbill/internal/stories/memberships"
)

const membershipsTable = "memberships"

var membershipRowFields = fields(membershipRow{})

type membershipRow struct {
	ID            int64     `db:"id"`
	UserID        int64     `db:"user_id"`
	PlanID        int64     `db:"plan_id"`
	TransactionID string    `db:"transaction_id"`
	StartDate     time.Time `db:"start_date"`
	EndDate       time.Time `db:"end_date"`
	Status        string    `db:"status"`
	AutoRenew     bool      `db:"auto_renew"`
	Notes         *string   `db:"notes"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (m membershipRow) ToModel() *memberships.Membership {
	return &memberships.Membership{
		ID:            m.ID,
		UserID:        m.UserID,
		PlanID:        m.PlanID,
		TransactionID: m.TransactionID,
		StartDate:     m.StartDate,
		EndDate:       m.EndDate,
		Status:        memberships.Status(m.Status),
		AutoRenew:     m.AutoRenew,
		Notes:         m.Notes,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func (m *membershipRow) scan(row interface{ Scan(...any) error }) error {
	return row.Scan(&m.ID, &m.UserID, &m.PlanID, &m.TransactionID,
		&m.StartDate, &m.EndDate, &m.Status, &m.AutoRenew, &m.Notes,
		&m.CreatedAt, &m.UpdatedAt)
}

func (s *storageImpl) CreateMembership(ctx context.Context, membership memberships.Membership) (*memberships.Membership, error) {
	params := map[string]interface{}{
		"user_id":        membership.UserID,
		"plan_id":        membership.PlanID,
		"transaction_id": membership.TransactionID,
		"start_date":     membership.StartDate,
		"end_date":       membership.EndDate,
		"status":         string(membership.Status),
		"auto_renew":     membership.AutoRenew,
		"notes":          membership.Notes,
		"created_at":     s.now(),
		"updated_at":     s.now(),
	}

	q, args, err := s.stmpBuilder().
		Insert(membershipsTable).
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

	return s.GetMembership(ctx, memberships.GetCriteria{ID: &id})
}

func (s *storageImpl) GetMembership(ctx context.Context, criteria memberships.GetCriteria) (*memberships.Membership, error) {
	query := s.stmpBuilder().
		Select(membershipRowFields).
		From(membershipsTable).
		Limit(1)

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.TransactionID != nil {
		query = query.Where(sq.Eq{"transaction_id": *criteria.TransactionID})
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, q, args...)

	var m membershipRow
	if err := m.scan(row); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return m.ToModel(), nil
}

func (s *storageImpl) ListMemberships(ctx context.Context, criteria memberships.ListCriteria) ([]*memberships.Membership, error) {
	query := s.stmpBuilder().
		Select(membershipRowFields).
		From(membershipsTable)

	if criteria.UserID != nil {
		query = query.Where(sq.Eq{"user_id": *criteria.UserID})
	}
	if criteria.Status != nil {
		query = query.Where(sq.Eq{"status": string(*criteria.Status)})
	}

	if criteria.Limit > 0 {
		query = query.Limit(uint64(criteria.Limit))
	}
	if criteria.Offset > 0 {
		query = query.Offset(uint64(criteria.Offset))
	}

	query = query.OrderBy("created_at DESC")

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.QueryContext: %w", err)
	}
	defer rows.Close()

	var result []*memberships.Membership
	for rows.Next() {
		var m membershipRow
		if err := m.scan(rows); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		result = append(result, m.ToModel())
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return result, nil
}
