package schedules

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

// IsTerminal reports whether a schedule can never be charged again
func (s Status) IsTerminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

type Frequency string

const (
	FrequencyWeekly    Frequency = "weekly"
	FrequencyMonthly   Frequency = "monthly"
	FrequencyQuarterly Frequency = "quarterly"
	FrequencyYearly    Frequency = "yearly"
)

// RelatedType tags what the recurring charge pays for
type RelatedType string

const (
	RelatedMembershipPlan RelatedType = "membership_plan"
	RelatedOther          RelatedType = "other"
)

type Schedule struct {
	ID              int64
	UserID          int64
	Amount          float64
	Currency        string
	Frequency       Frequency
	NextPaymentDate time.Time
	PaymentToken    *string
	Status          Status
	FailureCount    int
	MaxFailures     int
	LastPaymentDate *time.Time
	LastPaymentID   *string
	RelatedType     RelatedType
	RelatedID       *int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type GetCriteria struct {
	ID *int64
}

type ListCriteria struct {
	UserID *int64
	Status *Status
	Limit  int
	Offset int
}

type UpdateParams struct {
	Status          *Status
	NextPaymentDate *time.Time
	PaymentToken    *string
	FailureCount    *int
	LastPaymentDate *time.Time
	LastPaymentID   *string
}

type CreateScheduleRequest struct {
	UserID          int64
	Amount          float64
	Currency        string
	Frequency       Frequency
	NextPaymentDate time.Time
	PaymentToken    *string
	MaxFailures     int
	RelatedType     RelatedType
	RelatedID       *int64
}

// NextPaymentDate advances a due date by exactly one cadence unit from the
// previous due date, keeping the billing calendar fixed no matter how late
// the charge actually ran. Month-based cadences use time.AddDate, which
// normalizes overflow (Jan 31 + 1 month lands in early March); that shift is
// accepted rather than clamped. An unrecognized frequency bills monthly.
func NextPaymentDate(previous time.Time, frequency Frequency) time.Time {
	switch frequency {
	case FrequencyWeekly:
		return previous.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return previous.AddDate(0, 1, 0)
	case FrequencyQuarterly:
		return previous.AddDate(0, 3, 0)
	case FrequencyYearly:
		return previous.AddDate(1, 0, 0)
	default:
		return previous.AddDate(0, 1, 0)
	}
}

func validFrequency(f Frequency) bool {
	switch f {
	case FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyYearly:
		return true
	}
	return false
}
