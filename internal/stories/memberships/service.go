package memberships

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrNotFound   = errors.New("membership not found")
	ErrValidation = errors.New("membership validation failed")
)

// Service provides business logic for membership provisioning
type Service struct {
	storage     Storage
	planService PlanService
	logger      *slog.Logger
	now         func() time.Time
}

// NewService creates a new membership service
func NewService(storage Storage, planService PlanService, logger *slog.Logger) *Service {
	return &Service{
		storage:     storage,
		planService: planService,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// CreateMembership provisions a membership for a settled payment. Calling it
// again with the same transaction id returns the existing membership, so the
// retry worker and duplicate webhooks cannot double-provision.
func (s *Service) CreateMembership(ctx context.Context, req CreateMembershipRequest) (*Membership, error) {
	if req.TransactionID == "" {
		return nil, fmt.Errorf("%w: transaction id is required", ErrValidation)
	}

	existing, err := s.storage.GetMembership(ctx, GetCriteria{TransactionID: &req.TransactionID})
	if err != nil {
		return nil, fmt.Errorf("get membership from storage: %w", err)
	}
	if existing != nil {
		s.logger.Info("Membership already provisioned for transaction",
			"transaction_id", req.TransactionID,
			"membership_id", existing.ID)
		return existing, nil
	}

	plan, err := s.planService.GetPlan(ctx, req.PlanID)
	if err != nil {
		return nil, fmt.Errorf("resolve plan %d: %w", req.PlanID, err)
	}

	start := s.now()
	created, err := s.storage.CreateMembership(ctx, Membership{
		UserID:        req.UserID,
		PlanID:        plan.ID,
		TransactionID: req.TransactionID,
		StartDate:     start,
		EndDate:       start.AddDate(0, 0, plan.DurationDays),
		Status:        StatusActive,
		AutoRenew:     req.AutoRenew,
		Notes:         req.Notes,
	})
	if err != nil {
		return nil, fmt.Errorf("create membership in storage: %w", err)
	}

	s.logger.Info("Membership provisioned",
		"membership_id", created.ID,
		"user_id", created.UserID,
		"plan_id", created.PlanID,
		"transaction_id", created.TransactionID,
		"end_date", created.EndDate)

	return created, nil
}

// GetMembership returns the membership matching the criteria
func (s *Service) GetMembership(ctx context.Context, criteria GetCriteria) (*Membership, error) {
	m, err := s.storage.GetMembership(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("get membership from storage: %w", err)
	}
	if m == nil {
		return nil, ErrNotFound
	}
	return m, nil
}

// ListMemberships returns memberships matching the criteria
func (s *Service) ListMemberships(ctx context.Context, criteria ListCriteria) ([]*Membership, error) {
	return s.storage.ListMemberships(ctx, criteria)
}
