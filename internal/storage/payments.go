package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"gymbill/internal/stories/payments"
)

const paymentsTable = "payments"

var paymentRowFields = fields(paymentRow{})

type paymentRow struct {
	ID                   int64      `db:"id"`
	TransactionID        string     `db:"transaction_id"`
	UserID               int64      `db:"user_id"`
	Amount               float64    `db:"amount"`
	Currency             string     `db:"currency"`
	Type                 string     `db:"type"`
	Status               string     `db:"status"`
	Method               string     `db:"method"`
	RelatedType          string     `db:"related_type"`
	RelatedID            *int64     `db:"related_id"`
	GatewayTransactionID *string    `db:"gateway_transaction_id"`
	GatewayResponse      []byte     `db:"gateway_response"`
	FailureReason        *string    `db:"failure_reason"`
	RefundedAmount       float64    `db:"refunded_amount"`
	MembershipPending    bool       `db:"membership_pending"`
	ProcessedAt          *time.Time `db:"processed_at"`
	CreatedAt            time.Time  `db:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at"`
}

func (p paymentRow) ToModel() *payments.Payment {
	return &payments.Payment{
		ID:                   p.ID,
		TransactionID:        p.TransactionID,
		UserID:               p.UserID,
		Amount:               p.Amount,
		Currency:             p.Currency,
		Type:                 payments.Type(p.Type),
		Status:               payments.Status(p.Status),
		Method:               payments.Method(p.Method),
		RelatedType:          payments.RelatedType(p.RelatedType),
		RelatedID:            p.RelatedID,
		GatewayTransactionID: p.GatewayTransactionID,
		GatewayResponse:      json.RawMessage(p.GatewayResponse),
		FailureReason:        p.FailureReason,
		RefundedAmount:       p.RefundedAmount,
		MembershipPending:    p.MembershipPending,
		ProcessedAt:          p.ProcessedAt,
		CreatedAt:            p.CreatedAt,
		UpdatedAt:            p.UpdatedAt,
	}
}

func (p *paymentRow) scan(row interface{ Scan(...any) error }) error {
	return row.Scan(&p.ID, &p.TransactionID, &p.UserID, &p.Amount, &p.Currency,
		&p.Type, &p.Status, &p.Method, &p.RelatedType, &p.RelatedID,
		&p.GatewayTransactionID, &p.GatewayResponse, &p.FailureReason,
		&p.RefundedAmount, &p.MembershipPending, &p.ProcessedAt,
		&p.CreatedAt, &p.UpdatedAt)
}

func (s *storageImpl) CreatePayment(ctx context.Context, paymentEntity payments.Payment) (*payments.Payment, error) {
	params := map[string]interface{}{
		"transaction_id":         paymentEntity.TransactionID,
		"user_id":                paymentEntity.UserID,
		"amount":                 paymentEntity.Amount,
		"currency":               paymentEntity.Currency,
		"type":                   string(paymentEntity.Type),
		"status":                 string(paymentEntity.Status),
		"method":                 string(paymentEntity.Method),
		"related_type":           string(paymentEntity.RelatedType),
		"related_id":             paymentEntity.RelatedID,
		"gateway_transaction_id": paymentEntity.GatewayTransactionID,
		"gateway_response":       []byte(paymentEntity.GatewayResponse),
		"failure_reason":         paymentEntity.FailureReason,
		"refunded_amount":        paymentEntity.RefundedAmount,
		"membership_pending":     paymentEntity.MembershipPending,
		"processed_at":           paymentEntity.ProcessedAt,
		"created_at":             s.now(),
		"updated_at":             s.now(),
	}

	q, args, err := s.stmpBuilder().
		Insert(paymentsTable).
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

	return s.GetPayment(ctx, payments.GetCriteria{ID: &id})
}

func (s *storageImpl) GetPayment(ctx context.Context, criteria payments.GetCriteria) (*payments.Payment, error) {
	query := s.stmpBuilder().
		Select(paymentRowFields).
		From(paymentsTable).
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

	var p paymentRow
	if err := p.scan(row); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return p.ToModel(), nil
}

func (s *storageImpl) UpdatePayment(ctx context.Context, criteria payments.GetCriteria, params payments.UpdateParams) (*payments.Payment, error) {
	query := s.stmpBuilder().
		Update(paymentsTable).
		Set("updated_at", s.now())

	if criteria.ID != nil {
		query = query.Where(sq.Eq{"id": *criteria.ID})
	}
	if criteria.TransactionID != nil {
		query = query.Where(sq.Eq{"transaction_id": *criteria.TransactionID})
	}

	if params.Status != nil {
		query = query.Set("status", string(*params.Status))
	}
	if params.GatewayTransactionID != nil {
		query = query.Set("gateway_transaction_id", *params.GatewayTransactionID)
	}
	if params.GatewayResponse != nil {
		query = query.Set("gateway_response", []byte(params.GatewayResponse))
	}
	if params.FailureReason != nil {
		query = query.Set("failure_reason", *params.FailureReason)
	}
	if params.RefundedAmount != nil {
		query = query.Set("refunded_amount", *params.RefundedAmount)
	}
	if params.MembershipPending != nil {
		query = query.Set("membership_pending", *params.MembershipPending)
	}
	if params.ProcessedAt != nil {
		query = query.Set("processed_at", *params.ProcessedAt)
	}

	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	_, err = s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.ExecContext: %w", err)
	}

	return s.GetPayment(ctx, criteria)
}

func (s *storageImpl) ListPayments(ctx context.Context, criteria payments.ListCriteria) ([]*payments.Payment, error) {
	query := s.stmpBuilder().
		Select(paymentRowFields).
		From(paymentsTable)

	if criteria.UserID != nil {
		query = query.Where(sq.Eq{"user_id": *criteria.UserID})
	}
	if criteria.Status != nil {
		query = query.Where(sq.Eq{"status": string(*criteria.Status)})
	}
	if criteria.Type != nil {
		query = query.Where(sq.Eq{"type": string(*criteria.Type)})
	}

	if criteria.Limit > 0 {
		query = query.Limit(uint64(criteria.Limit))
	}
	if criteria.Offset > 0 {
		query = query.Offset(uint64(criteria.Offset))
	}

	query = query.OrderBy("created_at DESC")

	return s.queryPayments(ctx, query)
}

func (s *storageImpl) ListMembershipPendingPayments(ctx context.Context) ([]*payments.Payment, error) {
	query := s.stmpBuilder().
		Select(paymentRowFields).
		From(paymentsTable).
		Where(sq.Eq{"status": string(payments.StatusCompleted)}).
		Where(sq.Eq{"membership_pending": true}).
		OrderBy("created_at ASC")

	return s.queryPayments(ctx, query)
}

func (s *storageImpl) queryPayments(ctx context.Context, query sq.SelectBuilder) ([]*payments.Payment, error) {
	q, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build sql query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("db.QueryContext: %w", err)
	}
	defer rows.Close()

	var result []*payments.Payment
	for rows.Next() {
		var p paymentRow
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
