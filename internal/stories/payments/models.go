package payments

import (
	"encoding/json"
	"time"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusRefunded  Status = "refunded"
)

// IsTerminal reports whether the status is one the webhook path must not
// overwrite. A refund is a separate explicit operation, not a transition
// the reconciler may apply.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusRefunded
}

type Type string

const (
	TypeMembership Type = "membership"
	TypeInventory  Type = "inventory"
	TypeBooking    Type = "booking"
	TypeOther      Type = "other"
)

type Method string

const (
	MethodCard         Method = "card"
	MethodBankTransfer Method = "bank_transfer"
	MethodCash         Method = "cash"
)

// RelatedType tags what entity a payment pays for, so consumers switch on
// a closed set instead of guessing from an untyped reference.
type RelatedType string

const (
	RelatedMembershipPlan    RelatedType = "membership_plan"
	RelatedInventoryOrder    RelatedType = "inventory_order"
	RelatedBooking           RelatedType = "booking"
	RelatedRecurringSchedule RelatedType = "recurring_schedule"
	RelatedOther             RelatedType = "other"
)

type Payment struct {
	ID                   int64
	TransactionID        string
	UserID               int64
	Amount               float64
	Currency             string
	Type                 Type
	Status               Status
	Method               Method
	RelatedType          RelatedType
	RelatedID            *int64
	GatewayTransactionID *string
	GatewayResponse      json.RawMessage
	FailureReason        *string
	RefundedAmount       float64
	MembershipPending    bool
	ProcessedAt          *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

type GetCriteria struct {
	ID            *int64
	TransactionID *string
}

type ListCriteria struct {
	UserID *int64
	Status *Status
	Type   *Type
	Limit  int
	Offset int
}

type UpdateParams struct {
	Status               *Status
	GatewayTransactionID *string
	GatewayResponse      json.RawMessage
	FailureReason        *string
	RefundedAmount       *float64
	MembershipPending    *bool
	ProcessedAt          *time.Time
}

type CreatePaymentRequest struct {
	TransactionID string
	UserID        int64
	Amount        float64
	Currency      string
	Type          Type
	Method        Method
	RelatedType   RelatedType
	RelatedID     *int64
}

// Outcome is the settlement result mapped from a gateway status code.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

func validType(t Type) bool {
	switch t {
	case TypeMembership, TypeInventory, TypeBooking, TypeOther:
		return true
	}
	return false
}

func validMethod(m Method) bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodCash:
		return true
	}
	return false
}

func validRelatedType(r RelatedType) bool {
	switch r {
	case RelatedMembershipPlan, RelatedInventoryOrder, RelatedBooking,
		RelatedRecurringSchedule, RelatedOther:
		return true
	}
	return false
}
