package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digkill/HookRelay/internal/models"
	"github.com/digkill/HookRelay/internal/repository"
	"github.com/digkill/HookRelay/internal/session"
	"github.com/digkill/HookRelay/internal/storage"
	"github.com/digkill/HookRelay/internal/throttle"
)

var ErrPaymentAlreadyApplied = errors.New("payment already applied")

type PaymentRepository interface {
	Create(ctx context.Context, payment *models.Payment) error
	UpdateStatus(ctx context.Context, paymentID int64, status string) error
	SetReceiptURL(ctx context.Context, paymentID int64, url string) error
	FindByProviderPayment(ctx context.Context, provider, paymentID string) (*models.Payment, error)
}

// ReceiptArchiver is satisfied by *storage.Uploader.
type ReceiptArchiver interface {
	ArchiveReceipt(ctx context.Context, r storage.Receipt) (string, error)
}

// PaymentTarget is the account a confirmed payment is credited to.
type PaymentTarget interface {
	Profile() *models.Profile
	ApplyPayment(ctx context.Context, p session.Payment) (*models.Profile, error)
}

type PaymentConfig struct {
	Provider    string
	KeyID       string
	ProductName string
}

type PaymentService struct {
	cfg      PaymentConfig
	payments PaymentRepository
	plans    *PlanService
	receipts ReceiptArchiver
	log      *slog.Logger
}

// NewPaymentService wires the checkout flow. receipts may be nil.
func NewPaymentService(cfg PaymentConfig, payments PaymentRepository, plans *PlanService, receipts ReceiptArchiver, log *slog.Logger) *PaymentService {
	if cfg.Provider == "" {
		cfg.Provider = "razorpay"
	}
	if cfg.ProductName == "" {
		cfg.ProductName = "HookRelay"
	}
	if log == nil {
		log = slog.Default()
	}
	return &PaymentService{cfg: cfg, payments: payments, plans: plans, receipts: receipts, log: log}
}

type CheckoutPrefill struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact,omitempty"`
}

// CheckoutOptions is what the gateway widget is opened with.
type CheckoutOptions struct {
	Key         string            `json:"key"`
	Amount      int               `json:"amount"`
	Currency    string            `json:"currency"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	PlanID      int64             `json:"plan_id"`
	Prefill     CheckoutPrefill   `json:"prefill"`
	Notes       map[string]string `json:"notes"`
}

func (s *PaymentService) Checkout(ctx context.Context, profile *models.Profile, planID int64) (*CheckoutOptions, error) {
	plan, err := s.activePlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	return &CheckoutOptions{
		Key:         s.cfg.KeyID,
		Amount:      plan.PriceMinorUnits,
		Currency:    plan.Currency,
		Name:        s.cfg.ProductName,
		Description: fmt.Sprintf("%s plan, %d points", plan.Title, plan.Points),
		PlanID:      plan.ID,
		Prefill: CheckoutPrefill{
			Name:    profile.Name,
			Email:   profile.Email,
			Contact: profile.Phone,
		},
		Notes: map[string]string{
			"uid":  profile.UID,
			"tier": string(plan.Tier),
		},
	}, nil
}

type ConfirmInput struct {
	PlanID    int64  `json:"plan_id"`
	PaymentID string `json:"payment_id"`
}

type ConfirmResult struct {
	Payment *models.Payment `json:"payment"`
	Profile *models.Profile `json:"-"`
}

// Confirm credits a payment the gateway reported as captured. The gateway
// payment id is recorded first so a second confirmation of the same id fails
// with ErrPaymentAlreadyApplied. The gateway signature is not verified.
func (s *PaymentService) Confirm(ctx context.Context, target PaymentTarget, in ConfirmInput) (*ConfirmResult, error) {
	in.PaymentID = strings.TrimSpace(in.PaymentID)
	if in.PaymentID == "" {
		return nil, fmt.Errorf("%w: payment_id is required", session.ErrInvalidInput)
	}
	current := target.Profile()
	if current == nil {
		return nil, session.ErrNotAuthenticated
	}
	plan, err := s.activePlan(ctx, in.PlanID)
	if err != nil {
		return nil, err
	}

	record, err := s.reserve(ctx, current.UID, plan, in.PaymentID)
	if err != nil {
		return nil, err
	}

	profile, applyErr := target.ApplyPayment(ctx, session.Payment{
		PaymentID: in.PaymentID,
		Plan:      plan.Tier,
		Points:    plan.Points,
		Amount:    plan.PriceMinorUnits,
	})
	switch {
	case applyErr == nil:
		record.Status = models.PaymentStatusPaid
	case errors.Is(applyErr, throttle.ErrAccountBlocked) && profile != nil:
		// the blocking write carried the credit
		record.Status = models.PaymentStatusPaid
	case errors.Is(applyErr, throttle.ErrAccountBlocked):
		record.Status = models.PaymentStatusUncredited
	default:
		record.Status = models.PaymentStatusFailed
	}
	if err := s.payments.UpdateStatus(ctx, record.ID, record.Status); err != nil {
		s.log.Error("failed to update payment status", "payment_id", in.PaymentID, "status", record.Status, "err", err)
	}

	result := &ConfirmResult{Payment: record, Profile: profile}
	if applyErr != nil {
		s.log.Warn("payment not fully applied", "uid", current.UID, "payment_id", in.PaymentID, "status", record.Status, "err", applyErr)
		return result, applyErr
	}

	s.archive(ctx, record, plan)
	s.log.Info("payment applied", "uid", current.UID, "payment_id", in.PaymentID, "tier", plan.Tier, "points", plan.Points)
	return result, nil
}

// reserve records the payment as pending. An earlier attempt with the same
// id that failed or hit a blocked account may be retried by the same uid.
func (s *PaymentService) reserve(ctx context.Context, uid string, plan *models.Plan, paymentID string) (*models.Payment, error) {
	existing, err := s.payments.FindByProviderPayment(ctx, s.cfg.Provider, paymentID)
	if err != nil {
		return nil, fmt.Errorf("find payment: %w", err)
	}
	if existing != nil {
		if !retryable(existing.Status) || existing.UID != uid {
			return nil, ErrPaymentAlreadyApplied
		}
		if err := s.payments.UpdateStatus(ctx, existing.ID, models.PaymentStatusPending); err != nil {
			return nil, err
		}
		existing.Status = models.PaymentStatusPending
		return existing, nil
	}

	planID := plan.ID
	record := &models.Payment{
		UID:            uid,
		PlanID:         &planID,
		Provider:       s.cfg.Provider,
		ProviderCharge: paymentID,
		Currency:       plan.Currency,
		Amount:         plan.PriceMinorUnits,
		Status:         models.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicatePayment) {
			return nil, ErrPaymentAlreadyApplied
		}
		return nil, fmt.Errorf("record payment: %w", err)
	}
	return record, nil
}

func retryable(status string) bool {
	return status == models.PaymentStatusFailed || status == models.PaymentStatusUncredited
}

func (s *PaymentService) archive(ctx context.Context, record *models.Payment, plan *models.Plan) {
	if s.receipts == nil {
		return
	}
	url, err := s.receipts.ArchiveReceipt(ctx, storage.Receipt{
		UID:         record.UID,
		PaymentID:   record.ProviderCharge,
		Provider:    record.Provider,
		Plan:        plan.Tier,
		Points:      plan.Points,
		Amount:      record.Amount,
		Currency:    record.Currency,
		Status:      record.Status,
		ConfirmedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.Error("failed to archive receipt", "payment_id", record.ProviderCharge, "err", err)
		return
	}
	if err := s.payments.SetReceiptURL(ctx, record.ID, url); err != nil {
		s.log.Error("failed to store receipt url", "payment_id", record.ProviderCharge, "err", err)
		return
	}
	record.ReceiptURL = url
}

func (s *PaymentService) activePlan(ctx context.Context, id int64) (*models.Plan, error) {
	plan, err := s.plans.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !plan.IsActive {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}
