package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/digkill/HookRelay/internal/models"
)

// ErrDuplicatePayment is returned when the gateway payment id is already recorded.
var ErrDuplicatePayment = errors.New("payment already recorded")

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *models.Payment) error {
	const query = `
INSERT INTO payments (uid, plan_id, provider, provider_payment_id, currency, amount, status, receipt_url)
VALUES (?, ?, ?, ?, ?, ?, ?, NULLIF(?, ''))`
	res, err := r.db.ExecContext(ctx, query, payment.UID, payment.PlanID, payment.Provider, payment.ProviderCharge, payment.Currency, payment.Amount, payment.Status, payment.ReceiptURL)
	if err != nil {
		if isDuplicate(err) {
			return ErrDuplicatePayment
		}
		return fmt.Errorf("insert payment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	payment.ID = id
	return nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, paymentID int64, status string) error {
	const query = `UPDATE payments SET status = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, status, paymentID); err != nil {
		return fmt.Errorf("update payment status: %w", err)
	}
	return nil
}

func (r *PaymentRepository) SetReceiptURL(ctx context.Context, paymentID int64, url string) error {
	const query = `UPDATE payments SET receipt_url = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, url, paymentID); err != nil {
		return fmt.Errorf("set payment receipt: %w", err)
	}
	return nil
}

func (r *PaymentRepository) FindByProviderPayment(ctx context.Context, provider, paymentID string) (*models.Payment, error) {
	const query = `
SELECT id, uid, plan_id, provider, provider_payment_id, currency, amount, status, COALESCE(receipt_url, ''), created_at, COALESCE(updated_at, created_at) as updated_at
FROM payments WHERE provider = ? AND provider_payment_id = ? LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, provider, paymentID)
	var p models.Payment
	var planID sql.NullInt64
	if err := row.Scan(&p.ID, &p.UID, &planID, &p.Provider, &p.ProviderCharge, &p.Currency, &p.Amount, &p.Status, &p.ReceiptURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment: %w", err)
	}
	if planID.Valid {
		p.PlanID = &planID.Int64
	}
	return &p, nil
}
