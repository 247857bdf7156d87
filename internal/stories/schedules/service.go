package schedules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

var (
	ErrNotFound   = errors.New("schedule not found")
	ErrValidation = errors.New("schedule validation failed")
	ErrConflict   = errors.New("illegal schedule transition")
)

const defaultMaxFailures = 5

// Service provides business logic for recurring billing schedules
type Service struct {
	storage        Storage
	logger         *slog.Logger
	now            func() time.Time
	defaultMaxFail int
}

// NewService creates a new schedule service. defaultMaxFail caps consecutive
// charge failures for schedules created without an explicit limit.
func NewService(storage Storage, defaultMaxFail int, logger *slog.Logger) *Service {
	if defaultMaxFail <= 0 {
		defaultMaxFail = defaultMaxFailures
	}
	return &Service{
		storage:        storage,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
		defaultMaxFail: defaultMaxFail,
	}
}

// CreateSchedule registers a subscriber for recurring billing
func (s *Service) CreateSchedule(ctx context.Context, req CreateScheduleRequest) (*Schedule, error) {
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive, got %.2f", ErrValidation, req.Amount)
	}
	if req.Currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrValidation)
	}
	if !validFrequency(req.Frequency) {
		return nil, fmt.Errorf("%w: unknown frequency %q", ErrValidation, req.Frequency)
	}
	if req.NextPaymentDate.IsZero() {
		return nil, fmt.Errorf("%w: next payment date is required", ErrValidation)
	}

	maxFailures := req.MaxFailures
	if maxFailures <= 0 {
		maxFailures = s.defaultMaxFail
	}

	relatedType := req.RelatedType
	if relatedType == "" {
		relatedType = RelatedOther
	}

	created, err := s.storage.CreateSchedule(ctx, Schedule{
		UserID:          req.UserID,
		Amount:          req.Amount,
		Currency:        req.Currency,
		Frequency:       req.Frequency,
		NextPaymentDate: req.NextPaymentDate,
		PaymentToken:    req.PaymentToken,
		Status:          StatusActive,
		MaxFailures:     maxFailures,
		RelatedType:     relatedType,
		RelatedID:       req.RelatedID,
	})
	if err != nil {
		return nil, fmt.Errorf("create schedule in storage: %w", err)
	}

	s.logger.Info("Recurring schedule created",
		"schedule_id", created.ID,
		"user_id", created.UserID,
		"frequency", created.Frequency,
		"next_payment_date", created.NextPaymentDate)

	return created, nil
}

// GetSchedule returns the schedule matching the criteria
func (s *Service) GetSchedule(ctx context.Context, scheduleID int64) (*Schedule, error) {
	schedule, err := s.storage.GetSchedule(ctx, GetCriteria{ID: &scheduleID})
	if err != nil {
		return nil, fmt.Errorf("get schedule from storage: %w", err)
	}
	if schedule == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, scheduleID)
	}
	return schedule, nil
}

// ListDue returns active schedules whose next payment date has passed,
// oldest due first so the longest-overdue subscribers are charged before
// fresher ones under load.
func (s *Service) ListDue(ctx context.Context, now time.Time) ([]*Schedule, error) {
	return s.storage.ListDueSchedules(ctx, now)
}

// Pause suspends billing for an active schedule
func (s *Service) Pause(ctx context.Context, scheduleID int64) (*Schedule, error) {
	return s.transition(ctx, scheduleID, StatusActive, StatusPaused)
}

// Resume reactivates a paused schedule
func (s *Service) Resume(ctx context.Context, scheduleID int64) (*Schedule, error) {
	return s.transition(ctx, scheduleID, StatusPaused, StatusActive)
}

func (s *Service) transition(ctx context.Context, scheduleID int64, from, to Status) (*Schedule, error) {
	schedule, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	if schedule.Status != from {
		return nil, fmt.Errorf("%w: schedule %d is %s, expected %s",
			ErrConflict, scheduleID, schedule.Status, from)
	}

	updated, err := s.storage.UpdateSchedule(ctx, GetCriteria{ID: &scheduleID}, UpdateParams{
		Status: lo.ToPtr(to),
	})
	if err != nil {
		return nil, fmt.Errorf("update schedule in storage: %w", err)
	}

	s.logger.Info("Schedule transitioned",
		"schedule_id", scheduleID,
		"from", from,
		"to", to)

	return updated, nil
}

// Cancel terminates a schedule. Cancellation is a status flag; the row stays
// for the audit trail.
func (s *Service) Cancel(ctx context.Context, scheduleID int64) (*Schedule, error) {
	schedule, err := s.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	if schedule.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: schedule %d already %s",
			ErrConflict, scheduleID, schedule.Status)
	}

	updated, err := s.storage.UpdateSchedule(ctx, GetCriteria{ID: &scheduleID}, UpdateParams{
		Status: lo.ToPtr(StatusCancelled),
	})
	if err != nil {
		return nil, fmt.Errorf("update schedule in storage: %w", err)
	}

	s.logger.Info("Schedule cancelled", "schedule_id", scheduleID)
	return updated, nil
}

// RecordFailure bumps the failure counter, cancelling the schedule in the
// same update when the counter hits its cap.
func (s *Service) RecordFailure(ctx context.Context, scheduleID int64) (*Schedule, error) {
	updated, err := s.storage.RecordScheduleFailure(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("record schedule failure in storage: %w", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, scheduleID)
	}

	if updated.Status == StatusCancelled {
		s.logger.Warn("Schedule cancelled after reaching max failures",
			"schedule_id", scheduleID,
			"failure_count", updated.FailureCount,
			"max_failures", updated.MaxFailures)
	} else {
		s.logger.Info("Schedule failure recorded",
			"schedule_id", scheduleID,
			"failure_count", updated.FailureCount,
			"max_failures", updated.MaxFailures)
	}

	return updated, nil
}

// Advance moves the billing calendar forward after a successful charge
// submission: next due date is previousDueDate plus one cadence unit, never
// "now" plus one unit, and the failure counter resets.
func (s *Service) Advance(ctx context.Context, scheduleID int64, previousDueDate time.Time, frequency Frequency, paymentID string) (*Schedule, error) {
	next := NextPaymentDate(previousDueDate, frequency)

	updated, err := s.storage.UpdateSchedule(ctx, GetCriteria{ID: &scheduleID}, UpdateParams{
		NextPaymentDate: &next,
		LastPaymentDate: lo.ToPtr(s.now()),
		LastPaymentID:   &paymentID,
		FailureCount:    lo.ToPtr(0),
	})
	if err != nil {
		return nil, fmt.Errorf("update schedule in storage: %w", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, scheduleID)
	}

	s.logger.Info("Schedule advanced",
		"schedule_id", scheduleID,
		"payment_id", paymentID,
		"next_payment_date", next)

	return updated, nil
}

// SetPaymentToken stores the gateway-issued recurring token delivered with a
// settlement notification
func (s *Service) SetPaymentToken(ctx context.Context, scheduleID int64, token string) (*Schedule, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty payment token", ErrValidation)
	}

	updated, err := s.storage.UpdateSchedule(ctx, GetCriteria{ID: &scheduleID}, UpdateParams{
		PaymentToken: &token,
	})
	if err != nil {
		return nil, fmt.Errorf("update schedule in storage: %w", err)
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, scheduleID)
	}

	s.logger.Info("Payment token stored", "schedule_id", scheduleID)
	return updated, nil
}

// ListSchedules returns schedules matching the criteria
func (s *Service) ListSchedules(ctx context.Context, criteria ListCriteria) ([]*Schedule, error) {
	return s.storage.ListSchedules(ctx, criteria)
}
