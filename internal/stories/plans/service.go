package plans

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

var (
	ErrNotFound   = errors.New("plan not found")
	ErrValidation = errors.New("plan validation failed")
)

// Service provides business logic for membership plan operations
type Service struct {
	storage Storage
}

// NewService creates a new plan service
func NewService(storage Storage) *Service {
	return &Service{
		storage: storage,
	}
}

func (s *Service) CreatePlan(ctx context.Context, plan Plan) (*Plan, error) {
	if plan.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if plan.DurationDays <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %d", ErrValidation, plan.DurationDays)
	}
	if plan.Price < 0 {
		return nil, fmt.Errorf("%w: price must not be negative, got %.2f", ErrValidation, plan.Price)
	}

	return s.storage.CreatePlan(ctx, plan)
}

func (s *Service) GetPlan(ctx context.Context, planID int64) (*Plan, error) {
	plan, err := s.storage.GetPlan(ctx, GetCriteria{ID: &planID})
	if err != nil {
		return nil, fmt.Errorf("get plan from storage: %w", err)
	}
	if plan == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, planID)
	}
	return plan, nil
}

func (s *Service) GetActivePlans(ctx context.Context) ([]*Plan, error) {
	return s.storage.ListPlans(ctx, ListCriteria{
		IsActive: lo.ToPtr(true),
		Limit:    100,
	})
}

func (s *Service) UpdatePlanStatus(ctx context.Context, planID int64, isActive bool) (*Plan, error) {
	updated, err := s.storage.UpdatePlan(ctx, GetCriteria{
		ID: lo.ToPtr(planID),
	}, UpdateParams{
		IsActive: lo.ToPtr(isActive),
	})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, planID)
	}
	return updated, nil
}
