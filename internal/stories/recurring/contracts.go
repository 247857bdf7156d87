package recurring

import (
	"context"
	"time"

	"gymbill/internal/infra/payhere"
	"gymbill/internal/stories/payments"
	"gymbill/internal/stories/schedules"
)

type (
	// ScheduleService provides recurring schedule operations
	ScheduleService interface {
		GetSchedule(ctx context.Context, scheduleID int64) (*schedules.Schedule, error)
		ListDue(ctx context.Context, now time.Time) ([]*schedules.Schedule, error)
		RecordFailure(ctx context.Context, scheduleID int64) (*schedules.Schedule, error)
		Advance(ctx context.Context, scheduleID int64, previousDueDate time.Time, frequency schedules.Frequency, paymentID string) (*schedules.Schedule, error)
		Cancel(ctx context.Context, scheduleID int64) (*schedules.Schedule, error)
	}

	// PaymentService provides payment ledger operations
	PaymentService interface {
		CreatePayment(ctx context.Context, req payments.CreatePaymentRequest) (*payments.Payment, error)
	}

	// GatewayClient provides the gateway's recurring charge API
	GatewayClient interface {
		ChargeToken(ctx context.Context, token, orderID string, amount float64, currency string) (*payhere.ChargeResult, error)
	}
)
