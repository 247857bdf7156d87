package payments

import "context"

type (
	// Storage provides database operations for payments
	Storage interface {
		CreatePayment(ctx context.Context, payment Payment) (*Payment, error)
		GetPayment(ctx context.Context, criteria GetCriteria) (*Payment, error)
		UpdatePayment(ctx context.Context, criteria GetCriteria, params UpdateParams) (*Payment, error)
		ListPayments(ctx context.Context, criteria ListCriteria) ([]*Payment, error)
		ListMembershipPendingPayments(ctx context.Context) ([]*Payment, error)
	}
)
