package memberships

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

type Membership struct {
	ID            int64
	UserID        int64
	PlanID        int64
	TransactionID string
	StartDate     time.Time
	EndDate       time.Time
	Status        Status
	AutoRenew     bool
	Notes         *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type GetCriteria struct {
	ID            *int64
	TransactionID *string
}

type ListCriteria struct {
	UserID *int64
	Status *Status
	Limit  int
	Offset int
}

type CreateMembershipRequest struct {
	UserID        int64
	PlanID        int64
	TransactionID string
	AutoRenew     bool
	Notes         *string
}
