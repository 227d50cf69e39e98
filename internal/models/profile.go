package models

import (
	"encoding/json"
	"fmt"
)

type Notifications struct {
	Telegram bool `json:"telegram"`
	Email    bool `json:"email"`
	WhatsApp bool `json:"whatsapp"`
}

// Enabled lists the enabled channels in a stable order.
func (n Notifications) Enabled() []Channel {
	var out []Channel
	if n.Telegram {
		out = append(out, ChannelTelegram)
	}
	if n.Email {
		out = append(out, ChannelEmail)
	}
	if n.WhatsApp {
		out = append(out, ChannelWhatsApp)
	}
	return out
}

type PaymentRecord struct {
	PaymentID string `json:"paymentId"`
	Amount    int    `json:"amount"`
	Timestamp int64  `json:"timestamp"`
	Plan      Tier   `json:"plan"`
}

// Profile is the per-identity document stored in the profiles collection.
type Profile struct {
	UID               string         `json:"-"`
	Name              string         `json:"name"`
	Email             string         `json:"email"`
	Phone             string         `json:"phone"`
	TelegramChatID    string         `json:"telegramChatId"`
	Notifications     Notifications  `json:"notifications"`
	Points            int            `json:"points"`
	TotalCalls        int            `json:"totalCalls"`
	AuthKey           string         `json:"authKey"`
	AccessID          string         `json:"accessId"`
	Subscription      Tier           `json:"subscription"`
	AccountStatus     AccountStatus  `json:"accountStatus"`
	LastUpdateAttempt int64          `json:"lastUpdateAttempt"`
	UpdateAttempts    int            `json:"updateAttempts"`
	LastPayment       *PaymentRecord `json:"lastPayment,omitempty"`
	CreatedAt         int64          `json:"createdAt"`
}

func (p *Profile) Blocked() bool {
	return p.AccountStatus == AccountBlocked
}

// Clone returns a deep copy.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	if p.LastPayment != nil {
		lp := *p.LastPayment
		c.LastPayment = &lp
	}
	return &c
}

// Document converts the profile into its stored map form.
func (p *Profile) Document() (map[string]any, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal profile: %w", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal profile document: %w", err)
	}
	return doc, nil
}

// ProfileFromDocument decodes a stored document. Missing status and tier
// fields are treated as normal and none.
func ProfileFromDocument(uid string, doc map[string]any) (*Profile, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal profile document: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	p.UID = uid
	if p.AccountStatus == "" {
		p.AccountStatus = AccountNormal
	}
	if p.Subscription == "" {
		p.Subscription = TierNone
	}
	return &p, nil
}

var tierChannels = map[Tier][]Channel{
	TierNone:   {ChannelTelegram, ChannelEmail},
	TierMini:   {ChannelTelegram, ChannelEmail},
	TierPro:    {ChannelTelegram, ChannelEmail},
	TierProMax: {ChannelTelegram, ChannelEmail, ChannelWhatsApp},
}

// AllowedChannels returns the channels a subscription tier may enable.
func AllowedChannels(t Tier) []Channel {
	return tierChannels[t]
}

func ChannelAllowed(t Tier, ch Channel) bool {
	for _, c := range tierChannels[t] {
		if c == ch {
			return true
		}
	}
	return false
}

var channelCost = map[Channel]int{
	ChannelTelegram: 1,
	ChannelEmail:    2,
	ChannelWhatsApp: 2,
}

// CallCost is the number of points one webhook call consumes with the given
// channels enabled.
func CallCost(n Notifications) int {
	total := 0
	for _, ch := range n.Enabled() {
		total += channelCost[ch]
	}
	return total
}

func ChannelCost(ch Channel) int {
	return channelCost[ch]
}
