package httpapi

import (
	"context"
	"time"

	"gymbill/internal/infra/payhere"
	"gymbill/internal/stories/payments"
	"gymbill/internal/stories/recurring"
	"gymbill/internal/stories/schedules"
)

type (
	// Reconciler settles gateway notifications
	Reconciler interface {
		HandleNotification(ctx context.Context, n payhere.Notification) (*payments.Payment, error)
	}

	// PaymentService answers payment status queries
	PaymentService interface {
		GetPayment(ctx context.Context, criteria payments.GetCriteria) (*payments.Payment, error)
	}

	// RecurringProcessor runs charge attempts on demand
	RecurringProcessor interface {
		ProcessSchedule(ctx context.Context, scheduleID int64) (*recurring.Result, error)
		GetDueSchedules(ctx context.Context) ([]*schedules.Schedule, error)
	}

	// ScheduleService manages schedule lifecycle from operator requests
	ScheduleService interface {
		CreateSchedule(ctx context.Context, req schedules.CreateScheduleRequest) (*schedules.Schedule, error)
		GetSchedule(ctx context.Context, scheduleID int64) (*schedules.Schedule, error)
		Pause(ctx context.Context, scheduleID int64) (*schedules.Schedule, error)
		Resume(ctx context.Context, scheduleID int64) (*schedules.Schedule, error)
		Cancel(ctx context.Context, scheduleID int64) (*schedules.Schedule, error)
	}
)

// scheduleView is the JSON shape returned for schedules
type scheduleView struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"user_id"`
	Amount          float64    `json:"amount"`
	Currency        string     `json:"currency"`
	Frequency       string     `json:"frequency"`
	NextPaymentDate time.Time  `json:"next_payment_date"`
	Status          string     `json:"status"`
	FailureCount    int        `json:"failure_count"`
	MaxFailures     int        `json:"max_failures"`
	LastPaymentDate *time.Time `json:"last_payment_date,omitempty"`
	LastPaymentID   *string    `json:"last_payment_id,omitempty"`
	HasPaymentToken bool       `json:"has_payment_token"`
}

func toScheduleView(s *schedules.Schedule) scheduleView {
	return scheduleView{
		ID:              s.ID,
		UserID:          s.UserID,
		Amount:          s.Amount,
		Currency:        s.Currency,
		Frequency:       string(s.Frequency),
		NextPaymentDate: s.NextPaymentDate,
		Status:          string(s.Status),
		FailureCount:    s.FailureCount,
		MaxFailures:     s.MaxFailures,
		LastPaymentDate: s.LastPaymentDate,
		LastPaymentID:   s.LastPaymentID,
		HasPaymentToken: s.PaymentToken != nil && *s.PaymentToken != "",
	}
}

// paymentView is the JSON shape returned for payments. The raw gateway
// payload stays server-side; clients only need the settled state.
type paymentView struct {
	TransactionID        string     `json:"transaction_id"`
	UserID               int64      `json:"user_id"`
	Amount               float64    `json:"amount"`
	Currency             string     `json:"currency"`
	Type                 string     `json:"type"`
	Status               string     `json:"status"`
	Method               string     `json:"method"`
	GatewayTransactionID *string    `json:"gateway_transaction_id,omitempty"`
	FailureReason        *string    `json:"failure_reason,omitempty"`
	RefundedAmount       float64    `json:"refunded_amount"`
	ProcessedAt          *time.Time `json:"processed_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

func toPaymentView(p *payments.Payment) paymentView {
	return paymentView{
		TransactionID:        p.TransactionID,
		UserID:               p.UserID,
		Amount:               p.Amount,
		Currency:             p.Currency,
		Type:                 string(p.Type),
		Status:               string(p.Status),
		Method:               string(p.Method),
		GatewayTransactionID: p.GatewayTransactionID,
		FailureReason:        p.FailureReason,
		RefundedAmount:       p.RefundedAmount,
		ProcessedAt:          p.ProcessedAt,
		CreatedAt:            p.CreatedAt,
	}
}
