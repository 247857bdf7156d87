package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"gymbill/internal/infra/payhere"
	"gymbill/internal/metrics"
	"gymbill/internal/stories/memberships"
	"gymbill/internal/stories/payments"
)

var ErrInvalidSignature = errors.New("notification signature mismatch")

// Service is the sole authority that settles pending payments from gateway
// notifications and triggers the downstream effects of a settlement.
type Service struct {
	paymentService    PaymentService
	membershipService MembershipService
	scheduleService   ScheduleService
	verifier          SignatureVerifier
	alerter           Alerter
	logger            *slog.Logger
}

// NewService creates a new webhook reconciler
func NewService(paymentService PaymentService, membershipService MembershipService, scheduleService ScheduleService, verifier SignatureVerifier, alerter Alerter, logger *slog.Logger) *Service {
	return &Service{
		paymentService:    paymentService,
		membershipService: membershipService,
		scheduleService:   scheduleService,
		verifier:          verifier,
		alerter:           alerter,
		logger:            logger,
	}
}

// HandleNotification applies one gateway settlement notification:
// authenticate, map the gateway status code, settle the ledger entry, then
// run downstream effects for freshly completed payments. Duplicate
// deliveries settle into a no-op after the ledger check.
func (s *Service) HandleNotification(ctx context.Context, n payhere.Notification) (*payments.Payment, error) {
	if !s.verifier.VerifyNotificationSignature(n) {
		metrics.WebhookNotifications.WithLabelValues("rejected").Inc()
		s.logger.Warn("Rejected notification with bad signature",
			"order_id", n.OrderID,
			"merchant_id", n.MerchantID)
		return nil, fmt.Errorf("%w: order %s", ErrInvalidSignature, n.OrderID)
	}

	outcome, failureReason := mapStatusCode(n.StatusCode, n.StatusMessage)

	rawPayload, err := json.Marshal(newNotificationAudit(n))
	if err != nil {
		// Marshalling a flat string struct cannot realistically fail;
		// settle without the audit payload rather than dropping the signal.
		s.logger.Error("Failed to encode notification audit payload", "error", err)
		rawPayload = nil
	}

	var gatewayID *string
	if n.PaymentID != "" {
		gatewayID = &n.PaymentID
	}

	paymentEntity, applied, err := s.paymentService.ApplyGatewayResult(ctx, n.OrderID, outcome, gatewayID, rawPayload, failureReason)
	if err != nil {
		if errors.Is(err, payments.ErrNotFound) {
			metrics.WebhookNotifications.WithLabelValues("unknown_order").Inc()
		}
		return nil, err
	}

	if !applied {
		metrics.WebhookNotifications.WithLabelValues("duplicate").Inc()
		return paymentEntity, nil
	}

	metrics.WebhookNotifications.WithLabelValues(string(outcome)).Inc()

	if outcome == payments.OutcomeCompleted {
		s.applyCompletionEffects(ctx, paymentEntity, n)
	}

	return paymentEntity, nil
}

// mapStatusCode folds the gateway's numeric status into the internal
// settlement outcome. Only the documented success code completes a payment;
// everything else, including codes this build has never seen, fails the
// payment so it cannot sit pending forever nor complete on ambiguous input.
func mapStatusCode(code, message string) (payments.Outcome, string) {
	parsed, err := strconv.Atoi(code)
	if err != nil {
		return payments.OutcomeFailed, fmt.Sprintf("unparseable gateway status %q", code)
	}

	switch parsed {
	case payhere.StatusCodeSuccess:
		return payments.OutcomeCompleted, ""
	case payhere.StatusCodePending:
		return payments.OutcomeFailed, "gateway left payment pending: " + message
	case payhere.StatusCodeCancelled:
		return payments.OutcomeFailed, "cancelled by payer: " + message
	case payhere.StatusCodeFailed:
		return payments.OutcomeFailed, "declined by gateway: " + message
	case payhere.StatusCodeChargedback:
		return payments.OutcomeFailed, "charged back: " + message
	default:
		return payments.OutcomeFailed, fmt.Sprintf("unrecognized gateway status %d: %s", parsed, message)
	}
}

// applyCompletionEffects runs the derived work a completed payment implies:
// persist a newly issued recurring token and provision the membership. The
// settlement itself is already durable; every effect here is best effort
// and deferred to the retry worker or operators when it fails.
func (s *Service) applyCompletionEffects(ctx context.Context, p *payments.Payment, n payhere.Notification) {
	if n.CustomerToken != "" {
		if scheduleID := s.linkedScheduleID(p); scheduleID != nil {
			if _, err := s.scheduleService.SetPaymentToken(ctx, *scheduleID, n.CustomerToken); err != nil {
				s.logger.Error("Failed to persist recurring token",
					"schedule_id", *scheduleID,
					"transaction_id", p.TransactionID,
					"error", err)
			}
		}
	}

	if p.Type != payments.TypeMembership {
		return
	}

	req, err := s.membershipRequest(ctx, p)
	if err != nil {
		s.deferProvisioning(ctx, p, err)
		return
	}

	if _, err := s.membershipService.CreateMembership(ctx, req); err != nil {
		s.deferProvisioning(ctx, p, err)
		return
	}

	metrics.MembershipProvisioning.WithLabelValues("provisioned").Inc()
}

// membershipRequest resolves the plan behind a membership payment: direct
// plan purchases carry the plan id, recurring charges carry the schedule id
// and the schedule knows its plan.
func (s *Service) membershipRequest(ctx context.Context, p *payments.Payment) (memberships.CreateMembershipRequest, error) {
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
		schedule, err := s.scheduleService.GetSchedule(ctx, *p.RelatedID)
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

// deferProvisioning records that a completed payment still owes its
// membership: durable marker for the retry worker, alert for operators.
// The payment stays completed; the gateway's settlement signal is never
// rolled back over a local provisioning failure.
func (s *Service) deferProvisioning(ctx context.Context, p *payments.Payment, cause error) {
	metrics.MembershipProvisioning.WithLabelValues("deferred").Inc()
	s.logger.Error("Membership provisioning deferred",
		"transaction_id", p.TransactionID,
		"user_id", p.UserID,
		"error", cause)

	if err := s.paymentService.MarkMembershipPending(ctx, p.TransactionID); err != nil {
		s.logger.Error("Failed to mark payment for provisioning retry",
			"transaction_id", p.TransactionID,
			"error", err)
	}

	if s.alerter != nil {
		text := fmt.Sprintf("⚠️ Payment %s settled but membership provisioning failed: %v\nThe retry worker will keep trying; manual follow-up may be needed.",
			p.TransactionID, cause)
		if err := s.alerter.Alert(ctx, text); err != nil {
			s.logger.Error("Failed to alert operators",
				"transaction_id", p.TransactionID,
				"error", err)
		}
	}
}

// linkedScheduleID returns the recurring schedule a payment belongs to, if any
func (s *Service) linkedScheduleID(p *payments.Payment) *int64 {
	if p.RelatedType == payments.RelatedRecurringSchedule && p.RelatedID != nil {
		return p.RelatedID
	}
	return nil
}

// notificationAudit is the shape persisted into the ledger's audit column
type notificationAudit struct {
	MerchantID      string `json:"merchant_id"`
	OrderID         string `json:"order_id"`
	PaymentID       string `json:"payment_id,omitempty"`
	PayhereAmount   string `json:"payhere_amount"`
	PayhereCurrency string `json:"payhere_currency"`
	StatusCode      string `json:"status_code"`
	Method          string `json:"method,omitempty"`
	StatusMessage   string `json:"status_message,omitempty"`
}

func newNotificationAudit(n payhere.Notification) notificationAudit {
	return notificationAudit{
		MerchantID:      n.MerchantID,
		OrderID:         n.OrderID,
		PaymentID:       n.PaymentID,
		PayhereAmount:   n.PayhereAmount,
		PayhereCurrency: n.PayhereCurrency,
		StatusCode:      n.StatusCode,
		Method:          n.Method,
		StatusMessage:   n.StatusMessage,
	}
}
