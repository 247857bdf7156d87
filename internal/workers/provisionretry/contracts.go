package provisionretry

import (
	"context"

	"gymbill/internal/stories/memberships"
	"gymbill/internal/stories/payments"
	"gymbill/internal/stories/schedules"
)

type (
	// PaymentService provides access to payments still owing a membership
	PaymentService interface {
		ListMembershipPending(ctx context.Context) ([]*payments.Payment, error)
		ClearMembershipPending(ctx context.Context, transactionID string) error
	}

	// MembershipService provides membership provisioning
	MembershipService interface {
		CreateMembership(ctx context.Context, req memberships.CreateMembershipRequest) (*memberships.Membership, error)
	}

	// ScheduleService resolves the plan behind recurring payments
	ScheduleService interface {
		GetSchedule(ctx context.Context, scheduleID int64) (*schedules.Schedule, error)
	}

	// Alerter notifies operators about payments that keep failing to provision
	Alerter interface {
		Alert(ctx context.Context, text string) error
	}
)
