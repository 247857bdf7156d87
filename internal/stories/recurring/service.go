package recurring

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gymbill/internal/metrics"
	"gymbill/internal/stories/payments"
	"gymbill/internal/stories/schedules"
)

var (
	ErrScheduleNotActive   = errors.New("schedule is not active")
	ErrNotDue              = errors.New("schedule is not due")
	ErrMaxFailuresExceeded = errors.New("schedule exceeded max failures")
	ErrTokenMissing        = errors.New("schedule has no payment token")
	ErrGateway             = errors.New("gateway charge failed")
)

// Result is what a single processing attempt produced: the advanced
// schedule and the pending ledger entry awaiting settlement.
type Result struct {
	Schedule *schedules.Schedule
	Payment  *payments.Payment
}

// Service drives recurring charge attempts against due schedules
type Service struct {
	scheduleService ScheduleService
	paymentService  PaymentService
	gateway         GatewayClient
	logger          *slog.Logger
	now             func() time.Time
}

// NewService creates a new recurring payment processor
func NewService(scheduleService ScheduleService, paymentService PaymentService, gateway GatewayClient, logger *slog.Logger) *Service {
	return &Service{
		scheduleService: scheduleService,
		paymentService:  paymentService,
		gateway:         gateway,
		logger:          logger,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// GetDueSchedules returns the schedules currently eligible for charging
func (s *Service) GetDueSchedules(ctx context.Context) ([]*schedules.Schedule, error) {
	return s.scheduleService.ListDue(ctx, s.now())
}

// ProcessSchedule runs one charge attempt for a single schedule:
// re-check eligibility, submit the token charge, record a pending ledger
// entry and advance the billing calendar. The calendar advances on accepted
// submission; the webhook path settles the ledger entry independently.
func (s *Service) ProcessSchedule(ctx context.Context, scheduleID int64) (*Result, error) {
	schedule, err := s.scheduleService.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	if err := s.checkEligibility(ctx, schedule); err != nil {
		return nil, err
	}

	orderID := fmt.Sprintf("REC-%s", uuid.New().String())

	chargeResult, err := s.gateway.ChargeToken(ctx, *schedule.PaymentToken, orderID, schedule.Amount, schedule.Currency)
	if err != nil {
		metrics.RecurringCharges.WithLabelValues("initiation_failed").Inc()
		s.logger.Error("Token charge initiation failed",
			"schedule_id", schedule.ID,
			"order_id", orderID,
			"error", err)

		if _, recordErr := s.scheduleService.RecordFailure(ctx, schedule.ID); recordErr != nil {
			s.logger.Error("Failed to record schedule failure",
				"schedule_id", schedule.ID,
				"error", recordErr)
		}

		return nil, fmt.Errorf("%w: schedule %d: %v", ErrGateway, schedule.ID, err)
	}

	paymentEntity, err := s.paymentService.CreatePayment(ctx, payments.CreatePaymentRequest{
		TransactionID: orderID,
		UserID:        schedule.UserID,
		Amount:        schedule.Amount,
		Currency:      schedule.Currency,
		Type:          payments.TypeMembership,
		Method:        payments.MethodCard,
		RelatedType:   payments.RelatedRecurringSchedule,
		RelatedID:     &schedule.ID,
	})
	if err != nil {
		// The gateway accepted the charge but we could not persist the
		// ledger entry; surface loudly, the settlement webhook for this
		// order will be rejected as unknown and needs manual follow-up.
		metrics.RecurringCharges.WithLabelValues("ledger_failed").Inc()
		return nil, fmt.Errorf("create ledger entry for order %s: %w", orderID, err)
	}

	if chargeResult.GatewayPaymentID != "" {
		s.logger.Info("Gateway correlation id issued",
			"order_id", orderID,
			"gateway_payment_id", chargeResult.GatewayPaymentID)
	}

	advanced, err := s.scheduleService.Advance(ctx, schedule.ID, schedule.NextPaymentDate, schedule.Frequency, paymentEntity.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("advance schedule %d: %w", schedule.ID, err)
	}

	metrics.RecurringCharges.WithLabelValues("submitted").Inc()
	s.logger.Info("Recurring charge submitted",
		"schedule_id", schedule.ID,
		"transaction_id", paymentEntity.TransactionID,
		"amount", schedule.Amount,
		"next_payment_date", advanced.NextPaymentDate)

	return &Result{Schedule: advanced, Payment: paymentEntity}, nil
}

// checkEligibility re-validates the charge preconditions at processing time.
// The due list is advisory; state may have moved between listing and now.
func (s *Service) checkEligibility(ctx context.Context, schedule *schedules.Schedule) error {
	if schedule.Status != schedules.StatusActive {
		return fmt.Errorf("%w: schedule %d is %s", ErrScheduleNotActive, schedule.ID, schedule.Status)
	}

	if schedule.FailureCount >= schedule.MaxFailures {
		// The atomic failure recording should have cancelled the schedule
		// already; enforce the cap here too so a stale row can never be
		// charged.
		if _, err := s.scheduleService.Cancel(ctx, schedule.ID); err != nil {
			s.logger.Error("Failed to cancel schedule past failure cap",
				"schedule_id", schedule.ID,
				"error", err)
		}
		return fmt.Errorf("%w: schedule %d at %d/%d failures",
			ErrMaxFailuresExceeded, schedule.ID, schedule.FailureCount, schedule.MaxFailures)
	}

	if schedule.NextPaymentDate.After(s.now()) {
		return fmt.Errorf("%w: schedule %d due %s",
			ErrNotDue, schedule.ID, schedule.NextPaymentDate.Format(time.RFC3339))
	}

	if schedule.PaymentToken == nil || *schedule.PaymentToken == "" {
		return fmt.Errorf("%w: schedule %d", ErrTokenMissing, schedule.ID)
	}

	return nil
}

// ProcessDue charges every due schedule, isolating failures so one bad
// schedule cannot abort the rest of the run. It returns how many attempts
// succeeded and the last error seen.
func (s *Service) ProcessDue(ctx context.Context) (int, error) {
	due, err := s.GetDueSchedules(ctx)
	if err != nil {
		return 0, fmt.Errorf("list due schedules: %w", err)
	}

	s.logger.Info("Processing due schedules", "count", len(due))

	var processed int
	var lastErr error
	for _, schedule := range due {
		if _, err := s.ProcessSchedule(ctx, schedule.ID); err != nil {
			s.logger.Error("Failed to process due schedule",
				"schedule_id", schedule.ID,
				"error", err)
			lastErr = err
			continue
		}
		processed++
	}

	return processed, lastErr
}
