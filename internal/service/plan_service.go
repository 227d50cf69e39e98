package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/digkill/HookRelay/internal/models"
)

var (
	ErrPlanNotFound = errors.New("plan not found")
	ErrInvalidPlan  = errors.New("invalid plan")
)

type PlanRepository interface {
	List(ctx context.Context, activeOnly bool) ([]models.Plan, error)
	GetByID(ctx context.Context, id int64) (*models.Plan, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, plan *models.Plan) (*models.Plan, error)
	Update(ctx context.Context, plan *models.Plan) (*models.Plan, error)
	Delete(ctx context.Context, id int64) error
}

type PlanService struct {
	currency string
	repo     PlanRepository
}

type CreatePlanInput struct {
	Tier            models.Tier `json:"tier"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Currency        string      `json:"currency"`
	PriceMinorUnits int         `json:"price_minor_units"`
	Points          int         `json:"points"`
	IsActive        *bool       `json:"is_active"`
}

type UpdatePlanInput struct {
	Tier            *models.Tier `json:"tier"`
	Title           *string      `json:"title"`
	Description     *string      `json:"description"`
	Currency        *string      `json:"currency"`
	PriceMinorUnits *int         `json:"price_minor_units"`
	Points          *int         `json:"points"`
	IsActive        *bool        `json:"is_active"`
}

func NewPlanService(currency string, repo PlanRepository) *PlanService {
	return &PlanService{currency: currency, repo: repo}
}

// DefaultPlans are seeded into an empty pricing_plans table.
func DefaultPlans(currency string) []models.Plan {
	return []models.Plan{
		{Tier: models.TierMini, Title: "Mini", Description: "100 points, Telegram and Email", Currency: currency, PriceMinorUnits: 1000, Points: 100, IsActive: true},
		{Tier: models.TierPro, Title: "Pro", Description: "1000 points, Telegram and Email", Currency: currency, PriceMinorUnits: 5000, Points: 1000, IsActive: true},
		{Tier: models.TierProMax, Title: "Pro Max", Description: "5000 points, adds WhatsApp", Currency: currency, PriceMinorUnits: 15000, Points: 5000, IsActive: true},
	}
}

func (s *PlanService) EnsureDefaultPlans(ctx context.Context) error {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	for _, plan := range DefaultPlans(s.currency) {
		plan := plan
		if _, err := s.repo.Create(ctx, &plan); err != nil {
			return fmt.Errorf("create default plan %s: %w", plan.Tier, err)
		}
	}
	return nil
}

func (s *PlanService) List(ctx context.Context, activeOnly bool) ([]models.Plan, error) {
	return s.repo.List(ctx, activeOnly)
}

// Get returns ErrPlanNotFound for unknown ids.
func (s *PlanService) Get(ctx context.Context, id int64) (*models.Plan, error) {
	plan, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

func (s *PlanService) Create(ctx context.Context, input CreatePlanInput) (*models.Plan, error) {
	input.Title = strings.TrimSpace(input.Title)
	if input.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidPlan)
	}
	if !input.Tier.Valid() || input.Tier == models.TierNone {
		return nil, fmt.Errorf("%w: tier must be mini, pro or promax", ErrInvalidPlan)
	}
	if input.Currency == "" {
		input.Currency = s.currency
	}
	if input.PriceMinorUnits <= 0 {
		return nil, fmt.Errorf("%w: price must be positive", ErrInvalidPlan)
	}
	if input.Points <= 0 {
		return nil, fmt.Errorf("%w: points must be positive", ErrInvalidPlan)
	}
	isActive := true
	if input.IsActive != nil {
		isActive = *input.IsActive
	}
	plan := models.Plan{
		Tier:            input.Tier,
		Title:           input.Title,
		Description:     input.Description,
		Currency:        strings.ToUpper(input.Currency),
		PriceMinorUnits: input.PriceMinorUnits,
		Points:          input.Points,
		IsActive:        isActive,
	}
	return s.repo.Create(ctx, &plan)
}

func (s *PlanService) Update(ctx context.Context, id int64, input UpdatePlanInput) (*models.Plan, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if input.Tier != nil {
		if !input.Tier.Valid() || *input.Tier == models.TierNone {
			return nil, fmt.Errorf("%w: tier must be mini, pro or promax", ErrInvalidPlan)
		}
		existing.Tier = *input.Tier
	}
	if input.Title != nil && strings.TrimSpace(*input.Title) != "" {
		existing.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		existing.Description = *input.Description
	}
	if input.Currency != nil && *input.Currency != "" {
		existing.Currency = strings.ToUpper(*input.Currency)
	}
	if input.PriceMinorUnits != nil && *input.PriceMinorUnits > 0 {
		existing.PriceMinorUnits = *input.PriceMinorUnits
	}
	if input.Points != nil && *input.Points > 0 {
		existing.Points = *input.Points
	}
	if input.IsActive != nil {
		existing.IsActive = *input.IsActive
	}
	return s.repo.Update(ctx, existing)
}

func (s *PlanService) Delete(ctx context.Context, id int64) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}
