package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/HookRelay/internal/models"
)

func TestEnsureDefaultPlansSeedsOnce(t *testing.T) {
	repo := newMemoryPlans()
	svc := NewPlanService("INR", repo)

	require.NoError(t, svc.EnsureDefaultPlans(context.Background()))
	require.NoError(t, svc.EnsureDefaultPlans(context.Background()))

	plans, err := svc.List(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, models.TierMini, plans[0].Tier)
	assert.Equal(t, 100, plans[0].Points)
	assert.Equal(t, models.TierProMax, plans[2].Tier)
	assert.Equal(t, 15000, plans[2].PriceMinorUnits)
	assert.Equal(t, "INR", plans[1].Currency)
}

func TestCreatePlanValidation(t *testing.T) {
	svc := NewPlanService("INR", newMemoryPlans())
	ctx := context.Background()

	_, err := svc.Create(ctx, CreatePlanInput{Tier: models.TierPro, PriceMinorUnits: 1, Points: 1})
	assert.ErrorIs(t, err, ErrInvalidPlan)
	_, err = svc.Create(ctx, CreatePlanInput{Tier: models.TierNone, Title: "x", PriceMinorUnits: 1, Points: 1})
	assert.ErrorIs(t, err, ErrInvalidPlan)
	_, err = svc.Create(ctx, CreatePlanInput{Tier: models.TierPro, Title: "x", Points: 1})
	assert.ErrorIs(t, err, ErrInvalidPlan)

	plan, err := svc.Create(ctx, CreatePlanInput{Tier: models.TierPro, Title: " Pro+ ", PriceMinorUnits: 7000, Points: 1500})
	require.NoError(t, err)
	assert.Equal(t, "Pro+", plan.Title)
	assert.Equal(t, "INR", plan.Currency)
	assert.True(t, plan.IsActive)
}

func TestUpdateAndDeletePlan(t *testing.T) {
	svc := NewPlanService("INR", newMemoryPlans())
	ctx := context.Background()
	plan, err := svc.Create(ctx, CreatePlanInput{Tier: models.TierMini, Title: "Mini", PriceMinorUnits: 1000, Points: 100})
	require.NoError(t, err)

	inactive := false
	points := 150
	updated, err := svc.Update(ctx, plan.ID, UpdatePlanInput{Points: &points, IsActive: &inactive})
	require.NoError(t, err)
	assert.Equal(t, 150, updated.Points)
	assert.False(t, updated.IsActive)

	_, err = svc.Update(ctx, 999, UpdatePlanInput{})
	assert.ErrorIs(t, err, ErrPlanNotFound)

	require.NoError(t, svc.Delete(ctx, plan.ID))
	assert.ErrorIs(t, svc.Delete(ctx, plan.ID), ErrPlanNotFound)
}
