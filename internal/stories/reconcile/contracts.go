package reconcile

import (
	"context"
	"encoding/json"

	"gymbill/internal/infra/payhere"
	"gymbill/internal/stories/memberships"
	"gymbill/internal/stories/payments"
	"gymbill/internal/stories/schedules"
)

type (
	// PaymentService provides ledger settlement operations
	PaymentService interface {
		ApplyGatewayResult(ctx context.Context, transactionID string, outcome payments.Outcome, gatewayTransactionID *string, gatewayResponse json.RawMessage, failureReason string) (*payments.Payment, bool, error)
		MarkMembershipPending(ctx context.Context, transactionID string) error
		ClearMembershipPending(ctx context.Context, transactionID string) error
	}

	// MembershipService provisions the entity a settled payment paid for
	MembershipService interface {
		CreateMembership(ctx context.Context, req memberships.CreateMembershipRequest) (*memberships.Membership, error)
	}

	// ScheduleService resolves and updates the schedule a recurring payment
	// belongs to
	ScheduleService interface {
		GetSchedule(ctx context.Context, scheduleID int64) (*schedules.Schedule, error)
		SetPaymentToken(ctx context.Context, scheduleID int64, token string) (*schedules.Schedule, error)
	}

	// SignatureVerifier authenticates inbound gateway notifications
	SignatureVerifier interface {
		VerifyNotificationSignature(n payhere.Notification) bool
	}

	// Alerter notifies operators about conditions needing manual follow-up
	Alerter interface {
		Alert(ctx context.Context, text string) error
	}
)
