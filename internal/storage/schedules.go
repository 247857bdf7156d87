package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"gymbill/internal/stories/schedules"
)

const schedulesTable = "recurring_schedules"

var scheduleRowFields = fields(scheduleRow{})

type scheduleRow struct {
	ID              int64      `db:"id"`
	UserID          int64      `db:"user_id"`
	Amount          float64    `db:"amount"`
	Currency        string     `db:"currency"`
	Frequency       string     `db:"frequency"`
	NextPaymentDate time.Time  `db:"next_payment_date"`
	PaymentToken    *string    `db:"payment_token"`
	Status          string     `db:"status"`
	FailureCount    int        `db:"failure_count"`
	MaxFailures     int        `db:"max_failures"`
	LastPaymentDate *time.Time `db:"last_payment_date"`
	LastPaymentID   *string    `db:"last_payment_id"`
	RelatedType     string     `db:"related_type"`
	RelatedID       *int64     `db:"related_id"`
	CreatedAt       time.Time  `db:"created_at"`
	UpdatedAt       time.Time  `db:"updated_at"`
}

func (r scheduleRow) ToModel() *schedules.Schedule {
	return &schedules.Schedule{
		ID:              r.ID,
		UserID:          r.UserID,
		Amount:          r.Amount,
		Currency:        r.Currency,
		Frequency:       schedules.Frequency(r.Frequency),
		NextPaymentDate: r.NextPaymentDate,
		PaymentToken:    r.PaymentToken,
		Status:          schedules.Status(r.Status),
		FailureCount:    r.FailureCount,
		MaxFailures:     r.MaxFailures,
		LastPaymentDate: r.LastPaymentDate,
		LastPaymentID:   r.LastPaymentID,
		RelatedType:     schedules.RelatedType(r.RelatedType),
		RelatedID:       r.RelatedID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (r *scheduleRow) scan(row interface{ Scan(...any) error }) error {
	return row.Scan(&r.ID, &r.UserID, &r.Amount, &r.Currency, &r.Frequency,
		&r.NextPaymentDate, &r.PaymentToken, &r.Status, &r.FailureCount,
		&r.MaxFailures, &r.LastPaymentDate, &r.LastPaymentID,
		&r.RelatedType, &r.RelatedID, &r.CreatedAt, &r.UpdatedAt)
}

func (s *storageImpl) CreateSchedule(ctx context.Context, schedule schedules.Schedule) (*schedules.Schedule, error) {
	params := map[string]interface{}{
		"user_id":           schedule.UserID,
		"amount":            schedule.Amount,
		"currency":          schedule.Currency,
		"frequency":         string(schedule.Frequency),
		"next_payment_date": schedule.NextPaymentDate,
		"payment_token":     schedule.PaymentToken,
		"status":            string(schedule.Status),
		"failure_count":     schedule.FailureCount,
		"max_failures":      schedule.MaxFailures,
		"last_payment_date": schedule.LastPaymentDate,
		"last_payment_id":   schedule.LastPaymentID,
		"related_type":      string(schedule.RelatedType),
		"related_id":        schedule.RelatedID,
		"created_at":        s.now(),
		"updated_at":        s.now(),
	}

	q, args, err := s.stmpBuilder().
		Insert(schedulesTable).
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

	return s.GetSchedule(ctx, schedules.GetCriteria{ID: &id})
}

func (s *storageImpl) GetSchedule(ctx context.Context, criteria schedules.GetCriteria) (*schedules.Schedule, error) {
	query := s.stmpBuilder().
		Select(scheduleRowFields).
		From(schedulesTable).
		Limit(1)

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	row := s.db.QueryRowContext(ctx, q, args...)

	var r scheduleRow
	if err := r.scan(row); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return r.ToModel(), nil
}

func (s *storageImpl) UpdateSchedule(ctx context.Context, criteria schedules.GetCriteria, params schedules.UpdateParams) (*schedules.Schedule, error) {
	query := s.stmpBuilder().
		Update(schedulesTable).
		Set("updated_at", s.now())

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}

	if params.Status != nil {
		query = query.Set("status", string(*params.Status))
	}
	if params.NextPaymentDate != nil {
		query = query.Set("next_payment_date", *params.NextPaymentDate)
	}
	if params.PaymentToken != nil {
		query = query.Set("payment_token", *params.PaymentToken)
	}
	if params.FailureCount != nil {
		query = query.Set("failure_count", *params.FailureCount)
	}
	if params.LastPaymentDate != nil {
		query = query.Set("last_payment_date", *params.LastPaymentDate)
	}
	if params.LastPaymentID != nil {
		query = query.Set("last_payment_id", *params.LastPaymentID)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	_, err = s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetSchedule(ctx, criteria)
}

func (s *storageImpl) ListSchedules(ctx context.Context, criteria schedules.ListCriteria) ([]*schedules.Schedule, error) {
	query := s.stmpBuilder().
		Select(scheduleRowFields).
		From(schedulesTable)

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

	return s.querySchedules(ctx, query)
}

// ListDueSchedules returns active schedules whose due date has passed,
// oldest due first to bound staleness under load.
func (s *storageImpl) ListDueSchedules(ctx context.Context, now time.Time) ([]*schedules.Schedule, error) {
	query := s.stmpBuilder().
		Select(scheduleRowFields).
		From(schedulesTable).
		Where(sq.Eq{"status": string(schedules.StatusActive)}).
		Where(sq.LtOrEq{"next_payment_date": now}).
		OrderBy("next_payment_date ASC")

	return s.querySchedules(ctx, query)
}

// RecordScheduleFailure increments failure_count and cancels the schedule
// when the cap is reached, in a single statement. Two concurrent failure
// recordings can therefore never both observe a count below the cap and
// leave the schedule active.
func (s *storageImpl) RecordScheduleFailure(ctx context.Context, scheduleID int64) (*schedules.Schedule, error) {
	q := fmt.Sprintf(`UPDATE %s
		SET failure_count = failure_count + 1,
		    status = CASE WHEN failure_count + 1 >= max_failures THEN '%s' ELSE status END,
		    updated_at = ?
		WHERE id = ?`, schedulesTable, schedules.StatusCancelled)

	_, err := s.db.ExecContext(ctx, q, s.now(), scheduleID)
	if err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetSchedule(ctx, schedules.GetCriteria{ID: &scheduleID})
}

func (s *storageImpl) querySchedules(ctx context.Context, query sq.SelectBuilder) ([]*schedules.Schedule, error) {
	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.QueryContext: %w", err)
	}
	defer rows.Close()

	var result []*schedules.Schedule
	for rows.Next() {
		var r scheduleRow
		if err := r.scan(rows); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		result = append(result, r.ToModel())
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return result, nil
}
