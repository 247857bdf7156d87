package schedules

import (
	"context"
	"time"
)

type (
	// Storage provides database operations for recurring schedules
	Storage interface {
		CreateSchedule(ctx context.Context, schedule Schedule) (*Schedule, error)
		GetSchedule(ctx context.Context, criteria GetCriteria) (*Schedule, error)
		UpdateSchedule(ctx context.Context, criteria GetCriteria, params UpdateParams) (*Schedule, error)
		ListSchedules(ctx context.Context, criteria ListCriteria) ([]*Schedule, error)
		ListDueSchedules(ctx context.Context, now time.Time) ([]*Schedule, error)
		// RecordScheduleFailure must increment the failure counter and flip
		// the schedule to cancelled when the counter reaches max_failures in
		// one statement, so concurrent failure recordings cannot both observe
		// a count below the cap.
		RecordScheduleFailure(ctx context.Context, scheduleID int64) (*Schedule, error)
	}
)
