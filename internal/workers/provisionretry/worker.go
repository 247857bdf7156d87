package provisionretry

import (
	"context"
	"fmt"
	"log/slog"

	"gymbill/internal/metrics"
	"gymbill/internal/stories/memberships"
	"gymbill/internal/stories/payments"

	"github.com/robfig/cron/v3"
)

// Worker retries membership provisioning for payments that settled as
// completed but whose membership creation failed at settlement time
type Worker struct {
	paymentService    PaymentService
	membershipService MembershipService
	scheduleService   ScheduleService
	alerter           Alerter
	logger            *slog.Logger
	cron              *cron.Cron
}

// NewWorker creates a new provisioning retry worker. alerter may be nil
// when no operator chat is configured.
func NewWorker(
	paymentService PaymentService,
	membershipService MembershipService,
	scheduleService ScheduleService,
	alerter Alerter,
	logger *slog.Logger,
) *Worker {
	return &Worker{
		paymentService:    paymentService,
		membershipService: membershipService,
		scheduleService:   scheduleService,
		alerter:           alerter,
		logger:            logger,
		cron:              cron.New(),
	}
}

// Name returns the worker name
func (w *Worker) Name() string {
	return "provision-retry"
}

// Start starts the provisioning retry worker
func (w *Worker) Start() error {
	// Runs every 5 minutes
	_, err := w.cron.AddFunc("*/5 * * * *", func() {
		defer func() {
			if r := recover(); r != nil {
				w.logger.Error("Panic in provision retry worker", "panic", r)
			}
		}()
		ctx := context.Background()
		if err := w.run(ctx); err != nil {
			w.logger.Error("Provision retry worker failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule provision retry worker: %w", err)
	}

	w.cron.Start()
	return nil
}

// Stop stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping provision retry worker")
	w.cron.Stop()
}

// run retries every payment still marked as owing a membership
func (w *Worker) run(ctx context.Context) error {
	pending, err := w.paymentService.ListMembershipPending(ctx)
	if err != nil {
		return fmt.Errorf("list membership pending payments: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	w.logger.Info("Found payments with deferred membership provisioning", "count", len(pending))

	for _, p := range pending {
		if err := w.provision(ctx, p); err != nil {
			w.logger.Error("Failed to provision membership for settled payment",
				"transaction_id", p.TransactionID,
				"user_id", p.UserID,
				"error", err)
			continue
		}

		metrics.MembershipProvisioning.WithLabelValues("retried").Inc()
		w.logger.Info("Provisioned membership on retry",
			"transaction_id", p.TransactionID,
			"user_id", p.UserID)
	}

	return nil
}

// provision resolves the plan behind the payment and creates the membership.
// A payment that can never resolve to a plan is surfaced to operators but
// keeps its marker so the failure stays visible.
func (w *Worker) provision(ctx context.Context, p *payments.Payment) error {
	req, err := w.membershipRequest(ctx, p)
	if err != nil {
		w.alert(ctx, fmt.Sprintf("⚠️ Payment %s settled but cannot be provisioned: %v", p.TransactionID, err))
		return err
	}

	if _, err := w.membershipService.CreateMembership(ctx, req); err != nil {
		return fmt.Errorf("create membership: %w", err)
	}

	if err := w.paymentService.ClearMembershipPending(ctx, p.TransactionID); err != nil {
		// Membership exists and creation is idempotent by transaction id,
		// so a stale marker only costs a redundant retry.
		return fmt.Errorf("clear membership pending marker: %w", err)
	}

	return nil
}

// membershipRequest mirrors the settlement-time plan resolution: direct plan
// purchases carry the plan id, recurring charges go through their schedule.
func (w *Worker) membershipRequest(ctx context.Context, p *payments.Payment) (memberships.CreateMembershipRequest, error) {
	switch p.RelatedType {
	case payments.RelatedMembershipPlan:
		if p.RelatedID == nil {
			return memberships.CreateMembershipRequest{}, fmt.Errorf("membership payment %s has no plan reference", p.TransactionID)
		}
		return memberships.CreateMembershipRequest{
			UserID:        p.UserID,
			PlanID:        *p.RelatedID,
			TransactionID: p.TransactionID,
		}, nil

	case payments.RelatedRecurringSchedule:
		if p.RelatedID == nil {
			return memberships.CreateMembershipRequest{}, fmt.Errorf("recurring payment %s has no schedule reference", p.TransactionID)
		}
		schedule, err := w.scheduleService.GetSchedule(ctx, *p.RelatedID)
		if err != nil {
			return memberships.CreateMembershipRequest{}, fmt.Errorf("resolve schedule %d: %w", *p.RelatedID, err)
		}
		if schedule.RelatedID == nil {
			return memberships.CreateMembershipRequest{}, fmt.Errorf("schedule %d pays for no plan", schedule.ID)
		}
		return memberships.CreateMembershipRequest{
			UserID:        p.UserID,
			PlanID:        *schedule.RelatedID,
			TransactionID: p.TransactionID,
			AutoRenew:     true,
		}, nil

	default:
		return memberships.CreateMembershipRequest{}, fmt.Errorf("membership payment %s has unexpected related type %s", p.TransactionID, p.RelatedType)
	}
}

func (w *Worker) alert(ctx context.Context, text string) {
	if w.alerter == nil {
		return
	}
	if err := w.alerter.Alert(ctx, text); err != nil {
		w.logger.Error("Failed to send operator alert", "error", err)
	}
}
