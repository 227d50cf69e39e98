package models

import "time"

type Tier string

const (
	TierNone   Tier = "none"
	TierMini   Tier = "mini"
	TierPro    Tier = "pro"
	TierProMax Tier = "promax"
)

func (t Tier) Valid() bool {
	switch t {
	case TierNone, TierMini, TierPro, TierProMax:
		return true
	}
	return false
}

type AccountStatus string

const (
	AccountNormal  AccountStatus = "normal"
	AccountBlocked AccountStatus = "blocked"
)

type Channel string

const (
	ChannelTelegram Channel = "telegram"
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
)

// Account is the identity record owned by the identity provider.
type Account struct {
	UID          string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Plan struct {
	ID              int64     `json:"id"`
	Tier            Tier      `json:"tier"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Currency        string    `json:"currency"`
	PriceMinorUnits int       `json:"price_minor_units"`
	Points          int       `json:"points"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type Payment struct {
	ID             int64
	UID            string
	PlanID         *int64
	Provider       string
	ProviderCharge string
	Currency       string
	Amount         int
	Status         string
	ReceiptURL     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// A payment row is created as pending and settles as paid once the points are
// credited. Uncredited marks a captured payment that hit a blocked account; it
// is credited when confirmed again after the account is unblocked.
const (
	PaymentStatusPending    = "pending"
	PaymentStatusPaid       = "paid"
	PaymentStatusUncredited = "uncredited"
	PaymentStatusFailed     = "failed"
)

// CallRecord is one delivered channel of a webhook call.
type CallRecord struct {
	ID             int64     `json:"id"`
	CallID         string    `json:"callId"`
	Channel        Channel   `json:"channel"`
	PointCost      int       `json:"pointCost"`
	PayloadSummary string    `json:"payloadSummary"`
	Success        bool      `json:"success"`
	Timestamp      time.Time `json:"timestamp"`
}

type ChannelUsage struct {
	Channel Channel `json:"channel"`
	Calls   int     `json:"calls"`
	Points  int     `json:"points"`
}
