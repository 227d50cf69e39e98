package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/HookRelay/internal/docstore"
	"github.com/digkill/HookRelay/internal/models"
	"github.com/digkill/HookRelay/internal/session"
	"github.com/digkill/HookRelay/internal/throttle"
)

type paymentFixture struct {
	svc      *PaymentService
	plans    *PlanService
	payments *memoryPayments
	receipts *fakeArchiver
	pro      models.Plan
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	plans := NewPlanService("INR", newMemoryPlans())
	require.NoError(t, plans.EnsureDefaultPlans(context.Background()))
	list, err := plans.List(context.Background(), true)
	require.NoError(t, err)

	f := &paymentFixture{
		plans:    plans,
		payments: &memoryPayments{},
		receipts: &fakeArchiver{},
		pro:      list[1],
	}
	f.svc = NewPaymentService(PaymentConfig{KeyID: "rzp_test_key"}, f.payments, plans, f.receipts, nil)
	return f
}

func ann() *models.Profile {
	return &models.Profile{
		UID:          "u1",
		Name:         "Ann",
		Email:        "ann@example.com",
		Phone:        "+15550100",
		Points:       20,
		Subscription: models.TierNone,
	}
}

func TestCheckoutOptions(t *testing.T) {
	f := newPaymentFixture(t)

	opts, err := f.svc.Checkout(context.Background(), ann(), f.pro.ID)
	require.NoError(t, err)
	assert.Equal(t, "rzp_test_key", opts.Key)
	assert.Equal(t, 5000, opts.Amount)
	assert.Equal(t, "INR", opts.Currency)
	assert.Equal(t, "HookRelay", opts.Name)
	assert.Equal(t, "ann@example.com", opts.Prefill.Email)
	assert.Equal(t, "u1", opts.Notes["uid"])
	assert.Equal(t, "pro", opts.Notes["tier"])

	_, err = f.svc.Checkout(context.Background(), ann(), 404)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestCheckoutInactivePlan(t *testing.T) {
	f := newPaymentFixture(t)
	off := false
	_, err := f.plans.Update(context.Background(), f.pro.ID, UpdatePlanInput{IsActive: &off})
	require.NoError(t, err)

	_, err = f.svc.Checkout(context.Background(), ann(), f.pro.ID)
	assert.ErrorIs(t, err, ErrPlanNotFound)
}

func TestConfirmCreditsOnce(t *testing.T) {
	f := newPaymentFixture(t)
	target := &fakeTarget{profile: ann()}

	res, err := f.svc.Confirm(context.Background(), target, ConfirmInput{PlanID: f.pro.ID, PaymentID: "pay_1"})
	require.NoError(t, err)
	assert.Equal(t, 1020, res.Profile.Points)
	assert.Equal(t, models.TierPro, res.Profile.Subscription)
	assert.Equal(t, models.PaymentStatusPaid, res.Payment.Status)
	assert.Equal(t, "https://cdn.example.com/receipts/pay_1.json", res.Payment.ReceiptURL)

	require.Len(t, target.applied, 1)
	assert.Equal(t, session.Payment{PaymentID: "pay_1", Plan: models.TierPro, Points: 1000, Amount: 5000}, target.applied[0])
	require.Len(t, f.receipts.receipts, 1)

	_, err = f.svc.Confirm(context.Background(), target, ConfirmInput{PlanID: f.pro.ID, PaymentID: "pay_1"})
	assert.ErrorIs(t, err, ErrPaymentAlreadyApplied)
	assert.Len(t, target.applied, 1)

	stored, err := f.payments.FindByProviderPayment(context.Background(), "razorpay", "pay_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, stored.Status)
	assert.Equal(t, "u1", stored.UID)
}

func TestConfirmOnBlockedAccount(t *testing.T) {
	f := newPaymentFixture(t)
	target := &fakeTarget{profile: ann(), err: throttle.ErrAccountBlocked}

	res, err := f.svc.Confirm(context.Background(), target, ConfirmInput{PlanID: f.pro.ID, PaymentID: "pay_2"})
	require.ErrorIs(t, err, throttle.ErrAccountBlocked)
	require.NotNil(t, res)
	assert.Equal(t, models.PaymentStatusUncredited, res.Payment.Status)
	assert.Empty(t, f.receipts.receipts)
}

func TestConfirmCreditsUncreditedAfterUnblock(t *testing.T) {
	f := newPaymentFixture(t)
	target := &fakeTarget{profile: ann(), err: throttle.ErrAccountBlocked}
	in := ConfirmInput{PlanID: f.pro.ID, PaymentID: "pay_4"}

	_, err := f.svc.Confirm(context.Background(), target, in)
	require.ErrorIs(t, err, throttle.ErrAccountBlocked)

	target.err = nil
	res, err := f.svc.Confirm(context.Background(), target, in)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, res.Payment.Status)
	assert.Equal(t, 1020, res.Profile.Points)
	assert.Len(t, f.payments.rows, 1)
	assert.Len(t, target.applied, 2)
	require.Len(t, f.receipts.receipts, 1)

	_, err = f.svc.Confirm(context.Background(), target, in)
	assert.ErrorIs(t, err, ErrPaymentAlreadyApplied)

	other := &fakeTarget{profile: &models.Profile{UID: "u2", Name: "Bob"}, err: throttle.ErrAccountBlocked}
	_, err = f.svc.Confirm(context.Background(), other, ConfirmInput{PlanID: f.pro.ID, PaymentID: "pay_5"})
	require.ErrorIs(t, err, throttle.ErrAccountBlocked)
	_, err = f.svc.Confirm(context.Background(), target, ConfirmInput{PlanID: f.pro.ID, PaymentID: "pay_5"})
	assert.ErrorIs(t, err, ErrPaymentAlreadyApplied)
}

func TestConfirmRetriesAfterFailure(t *testing.T) {
	f := newPaymentFixture(t)
	target := &fakeTarget{profile: ann(), err: errors.Join(docstore.ErrWriteFailed, errors.New("timeout"))}

	_, err := f.svc.Confirm(context.Background(), target, ConfirmInput{PlanID: f.pro.ID, PaymentID: "pay_3"})
	require.ErrorIs(t, err, docstore.ErrWriteFailed)
	stored, _ := f.payments.FindByProviderPayment(context.Background(), "razorpay", "pay_3")
	assert.Equal(t, models.PaymentStatusFailed, stored.Status)

	target.err = nil
	res, err := f.svc.Confirm(context.Background(), target, ConfirmInput{PlanID: f.pro.ID, PaymentID: "pay_3"})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, res.Payment.Status)
	assert.Len(t, f.payments.rows, 1)
}

func TestConfirmValidation(t *testing.T) {
	f := newPaymentFixture(t)

	_, err := f.svc.Confirm(context.Background(), &fakeTarget{profile: ann()}, ConfirmInput{PlanID: f.pro.ID})
	assert.ErrorIs(t, err, session.ErrInvalidInput)

	_, err = f.svc.Confirm(context.Background(), &fakeTarget{}, ConfirmInput{PlanID: f.pro.ID, PaymentID: "p"})
	assert.ErrorIs(t, err, session.ErrNotAuthenticated)
}
