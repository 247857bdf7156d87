package memberships

import (
	"context"

	"gymbill/internal/stories/plans"
)

type (
	// Storage provides database operations for memberships
	Storage interface {
		CreateMembership(ctx context.Context, membership Membership) (*Membership, error)
		GetMembership(ctx context.Context, criteria GetCriteria) (*Membership, error)
		ListMemberships(ctx context.Context, criteria ListCriteria) ([]*Membership, error)
	}

	// PlanService resolves plan details for membership dates
	PlanService interface {
		GetPlan(ctx context.Context, planID int64) (*plans.Plan, error)
	}
)
