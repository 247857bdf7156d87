package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/samber/lo"
)

var (
	ErrNotFound   = errors.New("payment not found")
	ErrValidation = errors.New("payment validation failed")
	ErrConflict   = errors.New("payment state conflict")
)

// Service provides business logic for payment ledger operations
type Service struct {
	storage Storage
	logger  *slog.Logger
	now     func() time.Time
}

// NewService creates a new payment service
func NewService(storage Storage, logger *slog.Logger) *Service {
	return &Service{
		storage: storage,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreatePayment inserts a new pending ledger entry
func (s *Service) CreatePayment(ctx context.Context, req CreatePaymentRequest) (*Payment, error) {
	if req.TransactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrValidation)
	}
	if req.Amount < 0 {
		return nil, fmt.Errorf("%w: amount must not be negative, got %.2f", ErrValidation, req.Amount)
	}
	if req.Currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrValidation)
	}
	if !validType(req.Type) {
		return nil, fmt.Errorf("%w: unknown payment type %q", ErrValidation, req.Type)
	}
	if !validMethod(req.Method) {
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, req.Method)
	}
	if !validRelatedType(req.RelatedType) {
		return nil, fmt.Errorf("%w: unknown related type %q", ErrValidation, req.RelatedType)
	}

	created, err := s.storage.CreatePayment(ctx, Payment{
		TransactionID: req.TransactionID,
		UserID:        req.UserID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		Type:          req.Type,
		Status:        StatusPending,
		Method:        req.Method,
		RelatedType:   req.RelatedType,
		RelatedID:     req.RelatedID,
	})
	if err != nil {
		return nil, fmt.Errorf("create payment in storage: %w", err)
	}

	s.logger.Info("Payment created",
		"transaction_id", created.TransactionID,
		"user_id", created.UserID,
		"amount", created.Amount,
		"type", created.Type,
		"method", created.Method)

	return created, nil
}

// GetPayment returns the payment matching the criteria
func (s *Service) GetPayment(ctx context.Context, criteria GetCriteria) (*Payment, error) {
	p, err := s.storage.GetPayment(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("get payment from storage: %w", err)
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// ListPayments returns payments matching the criteria
func (s *Service) ListPayments(ctx context.Context, criteria ListCriteria) ([]*Payment, error) {
	return s.storage.ListPayments(ctx, criteria)
}

// ApplyGatewayResult moves a pending payment to its settled state. It is
// the only path from pending to completed/failed. Reapplying a result to an
// already-terminal payment returns the stored state unchanged with
// applied=false, so duplicate webhook deliveries are a safe no-op and
// callers can skip downstream side effects.
func (s *Service) ApplyGatewayResult(ctx context.Context, transactionID string, outcome Outcome, gatewayTransactionID *string, gatewayResponse json.RawMessage, failureReason string) (*Payment, bool, error) {
	criteria := GetCriteria{TransactionID: &transactionID}

	p, err := s.storage.GetPayment(ctx, criteria)
	if err != nil {
		return nil, false, fmt.Errorf("get payment from storage: %w", err)
	}
	if p == nil {
		s.logger.Warn("Gateway result for unknown transaction", "transaction_id", transactionID)
		return nil, false, fmt.Errorf("%w: transaction %s", ErrNotFound, transactionID)
	}

	if p.Status.IsTerminal() {
		s.logger.Info("Gateway result reapplied to settled payment, ignoring",
			"transaction_id", transactionID,
			"status", p.Status)
		return p, false, nil
	}

	params := UpdateParams{
		GatewayResponse: gatewayResponse,
		ProcessedAt:     lo.ToPtr(s.now()),
	}
	if gatewayTransactionID != nil {
		params.GatewayTransactionID = gatewayTransactionID
	}

	switch outcome {
	case OutcomeCompleted:
		params.Status = lo.ToPtr(StatusCompleted)
	case OutcomeFailed:
		params.Status = lo.ToPtr(StatusFailed)
		if failureReason == "" {
			failureReason = "gateway reported failure"
		}
		params.FailureReason = &failureReason
	default:
		return nil, false, fmt.Errorf("%w: unknown outcome %q", ErrValidation, outcome)
	}

	updated, err := s.storage.UpdatePayment(ctx, criteria, params)
	if err != nil {
		return nil, false, fmt.Errorf("update payment in storage: %w", err)
	}

	s.logger.Info("Payment settled",
		"transaction_id", transactionID,
		"status", updated.Status)

	return updated, true, nil
}

// RefundPayment records a refund against a completed payment. Partial
// refunds accumulate; once the refunded amount covers the full payment the
// status flips to refunded.
func (s *Service) RefundPayment(ctx context.Context, transactionID string, amount float64, reason string) (*Payment, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: refund amount must be positive, got %.2f", ErrValidation, amount)
	}

	criteria := GetCriteria{TransactionID: &transactionID}

	p, err := s.storage.GetPayment(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("get payment from storage: %w", err)
	}
	if p == nil {
		return nil, fmt.Errorf("%w: transaction %s", ErrNotFound, transactionID)
	}

	if p.Status != StatusCompleted {
		return nil, fmt.Errorf("%w: cannot refund payment in status %q", ErrConflict, p.Status)
	}

	newRefunded := p.RefundedAmount + amount
	if newRefunded > p.Amount {
		return nil, fmt.Errorf("%w: refund of %.2f exceeds remaining refundable %.2f",
			ErrValidation, amount, p.Amount-p.RefundedAmount)
	}

	params := UpdateParams{
		RefundedAmount: &newRefunded,
	}
	if newRefunded == p.Amount {
		params.Status = lo.ToPtr(StatusRefunded)
	}

	updated, err := s.storage.UpdatePayment(ctx, criteria, params)
	if err != nil {
		return nil, fmt.Errorf("update payment in storage: %w", err)
	}

	s.logger.Info("Payment refunded",
		"transaction_id", transactionID,
		"refund_amount", amount,
		"refunded_total", updated.RefundedAmount,
		"status", updated.Status,
		"reason", reason)

	return updated, nil
}

// MarkMembershipPending flags a completed payment whose derived membership
// could not be provisioned, so the retry worker picks it up later.
func (s *Service) MarkMembershipPending(ctx context.Context, transactionID string) error {
	criteria := GetCriteria{TransactionID: &transactionID}
	_, err := s.storage.UpdatePayment(ctx, criteria, UpdateParams{
		MembershipPending: lo.ToPtr(true),
	})
	if err != nil {
		return fmt.Errorf("mark membership pending: %w", err)
	}
	return nil
}

// ClearMembershipPending removes the retry marker once the membership exists
func (s *Service) ClearMembershipPending(ctx context.Context, transactionID string) error {
	criteria := GetCriteria{TransactionID: &transactionID}
	_, err := s.storage.UpdatePayment(ctx, criteria, UpdateParams{
		MembershipPending: lo.ToPtr(false),
	})
	if err != nil {
		return fmt.Errorf("clear membership pending: %w", err)
	}
	return nil
}

// ListMembershipPending returns completed payments still waiting for their
// membership to be provisioned
func (s *Service) ListMembershipPending(ctx context.Context) ([]*Payment, error) {
	return s.storage.ListMembershipPendingPayments(ctx)
}
