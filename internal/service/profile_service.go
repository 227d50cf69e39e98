package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/digkill/HookRelay/internal/docstore"
	"github.com/digkill/HookRelay/internal/models"
)

var ErrProfileNotFound = errors.New("profile not found")

// ProfileService is the server-side view of stored profiles used by the
// admin panel and the Telegram bot. User-facing writes go through a session.
type ProfileService struct {
	store      docstore.Store
	collection string
	now        func() time.Time
	log        *slog.Logger
}

func NewProfileService(store docstore.Store, collection string, log *slog.Logger) *ProfileService {
	if log == nil {
		log = slog.Default()
	}
	return &ProfileService{store: store, collection: collection, now: time.Now, log: log}
}

func (s *ProfileService) Get(ctx context.Context, uid string) (*models.Profile, error) {
	doc, err := s.store.Get(ctx, s.collection, uid)
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	return models.ProfileFromDocument(uid, doc)
}

// Unblock clears the blocked state and resets the attempt counter.
func (s *ProfileService) Unblock(ctx context.Context, uid string) (*models.Profile, error) {
	profile, err := s.Get(ctx, uid)
	if err != nil {
		return nil, err
	}
	patch := docstore.Document{
		"accountStatus":     string(models.AccountNormal),
		"updateAttempts":    0,
		"lastUpdateAttempt": s.now().UnixMilli(),
	}
	if err := s.store.Merge(ctx, s.collection, uid, patch); err != nil {
		return nil, fmt.Errorf("unblock %s: %w", uid, err)
	}
	profile.AccountStatus = models.AccountNormal
	profile.UpdateAttempts = 0
	profile.LastUpdateAttempt = patch["lastUpdateAttempt"].(int64)
	s.log.Info("account unblocked", "uid", uid)
	return profile, nil
}

// FindByAccessID returns nil, nil when no profile holds accessID.
func (s *ProfileService) FindByAccessID(ctx context.Context, accessID string) (*models.Profile, error) {
	snaps, err := s.store.Query(ctx, s.collection, "accessId", accessID)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return models.ProfileFromDocument(snaps[0].ID, snaps[0].Data)
}

// TelegramRecipients lists the chat ids of active profiles with Telegram
// notifications enabled.
func (s *ProfileService) TelegramRecipients(ctx context.Context) ([]string, error) {
	snaps, err := s.store.Query(ctx, s.collection, "accountStatus", string(models.AccountNormal))
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, snap := range snaps {
		p, err := models.ProfileFromDocument(snap.ID, snap.Data)
		if err != nil {
			s.log.Warn("skip undecodable profile", "uid", snap.ID, "err", err)
			continue
		}
		if p.Notifications.Telegram && p.TelegramChatID != "" {
			ids = append(ids, p.TelegramChatID)
		}
	}
	return ids, nil
}
