package service

import (
	"context"
	"time"

	"github.com/digkill/HookRelay/internal/models"
)

type UsageRepository interface {
	CountCallsForDay(ctx context.Context, uid string, day time.Time) (int, error)
	ChannelBreakdownForDay(ctx context.Context, uid string, day time.Time) ([]models.ChannelUsage, error)
	RecentCalls(ctx context.Context, uid string, limit int) ([]models.CallRecord, error)
}

// RecentCallsLimit is how many webhook calls the usage summary lists.
const RecentCallsLimit = 10

type UsageService struct {
	repo UsageRepository
	now  func() time.Time
}

func NewUsageService(repo UsageRepository) *UsageService {
	return &UsageService{repo: repo, now: time.Now}
}

type UsageSummary struct {
	CallsToday      int                   `json:"calls_today"`
	TotalCalls      int                   `json:"total_calls"`
	Points          int                   `json:"points"`
	CostPerCall     int                   `json:"cost_per_call"`
	CallsRemaining  int                   `json:"calls_remaining"`
	Channels        []models.ChannelUsage `json:"channels"`
	AllowedChannels []models.Channel      `json:"allowed_channels"`
	RecentCalls     []models.CallRecord   `json:"recent_calls"`
}

// Today summarises the profile's usage for the current UTC day and lists its
// most recent webhook calls.
func (s *UsageService) Today(ctx context.Context, profile *models.Profile) (*UsageSummary, error) {
	day := s.now()
	calls, err := s.repo.CountCallsForDay(ctx, profile.UID, day)
	if err != nil {
		return nil, err
	}
	channels, err := s.repo.ChannelBreakdownForDay(ctx, profile.UID, day)
	if err != nil {
		return nil, err
	}
	if channels == nil {
		channels = []models.ChannelUsage{}
	}
	recent, err := s.repo.RecentCalls(ctx, profile.UID, RecentCallsLimit)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []models.CallRecord{}
	}
	cost := models.CallCost(profile.Notifications)
	remaining := 0
	if cost > 0 {
		remaining = profile.Points / cost
	}
	return &UsageSummary{
		CallsToday:      calls,
		TotalCalls:      profile.TotalCalls,
		Points:          profile.Points,
		CostPerCall:     cost,
		CallsRemaining:  remaining,
		Channels:        channels,
		AllowedChannels: models.AllowedChannels(profile.Subscription),
		RecentCalls:     recent,
	}, nil
}
