// Package session holds the per-login view of an account: the signed-in
// identity and the cached profile document. Every profile write made through
// a Session passes the update throttle guard.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/digkill/HookRelay/internal/docstore"
	"github.com/digkill/HookRelay/internal/identity"
	"github.com/digkill/HookRelay/internal/models"
	"github.com/digkill/HookRelay/internal/throttle"
	"github.com/digkill/HookRelay/internal/token"
)

const DefaultSignupBonus = 20

var (
	ErrProfileUnavailable = errors.New("profile unavailable")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrChannelNotAllowed  = errors.New("channel not allowed for subscription")
	ErrInvalidInput       = errors.New("invalid input")
)

type State int

const (
	StateUnresolved State = iota
	StateAnonymous
	StateAuthenticating
	StateAuthenticated
	StateProfileUnavailable
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateAnonymous:
		return "anonymous"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateProfileUnavailable:
		return "profile_unavailable"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Dependencies are shared by every session of the process.
type Dependencies struct {
	Store       docstore.Store
	Tokens      *token.Generator
	Guard       *throttle.Guard
	Collection  string
	SignupBonus int
}

type Session struct {
	id       string
	provider identity.Provider
	deps     Dependencies
	log      *slog.Logger

	// ops serialises the operations that can change identity or profile.
	ops sync.Mutex

	mu          sync.RWMutex
	state       State
	current     *identity.Identity
	profile     *models.Profile
	loadErr     error
	registering bool
	lastActive  time.Time
	unsubscribe func()
}

func New(id string, provider identity.Provider, deps Dependencies, log *slog.Logger) *Session {
	if deps.Collection == "" {
		deps.Collection = "profiles"
	}
	if deps.SignupBonus < 0 {
		deps.SignupBonus = 0
	}
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		id:         id,
		provider:   provider,
		deps:       deps,
		log:        log.With("session", id),
		state:      StateUnresolved,
		lastActive: time.Now(),
	}
}

// Start subscribes to identity state changes. The provider reports the
// current state right away, so the session leaves Unresolved before Start
// returns.
func (s *Session) Start(ctx context.Context) {
	s.ops.Lock()
	defer s.ops.Unlock()
	if s.unsubscribe != nil {
		return
	}
	unsubscribe := s.provider.OnStateChanged(ctx, s.onIdentityChanged)
	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()
}

// Close drops the identity subscription. The cached state stays readable.
func (s *Session) Close() {
	s.mu.Lock()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) Identity() *identity.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return nil
	}
	id := *s.current
	return &id
}

// Profile returns a copy of the cached profile, or nil.
func (s *Session) Profile() *models.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile.Clone()
}

// Err returns the reason the session is in StateProfileUnavailable.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadErr
}

func (s *Session) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) onIdentityChanged(ctx context.Context, id *identity.Identity) {
	if id == nil {
		s.mu.Lock()
		s.state = StateAnonymous
		s.current = nil
		s.profile = nil
		s.loadErr = nil
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.state = StateAuthenticating
	s.current = id
	s.profile = nil
	s.loadErr = nil
	registering := s.registering
	s.mu.Unlock()

	// Register writes the profile itself.
	if registering {
		return
	}

	profile, err := s.fetch(ctx, id.UID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = StateProfileUnavailable
		s.loadErr = fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
		s.log.Error("failed to load profile", "uid", id.UID, "err", err)
		return
	}
	s.state = StateAuthenticated
	s.profile = profile
}

func (s *Session) fetch(ctx context.Context, uid string) (*models.Profile, error) {
	doc, err := s.deps.Store.Get(ctx, s.deps.Collection, uid)
	if err != nil {
		return nil, fmt.Errorf("get profile %s: %w", uid, err)
	}
	return models.ProfileFromDocument(uid, doc)
}

// Login signs in and loads the profile once.
func (s *Session) Login(ctx context.Context, email, password string) (*models.Profile, error) {
	s.ops.Lock()
	defer s.ops.Unlock()
	s.touch()

	if _, err := s.provider.SignIn(ctx, email, password); err != nil {
		return nil, err
	}
	return s.authenticatedProfile()
}

type Registration struct {
	Name     string
	Email    string
	Password string
	Phone    string
}

// Register creates the identity and its profile: signup bonus points, no
// subscription, email notifications on, fresh access token and access id.
func (s *Session) Register(ctx context.Context, r Registration) (*models.Profile, error) {
	s.ops.Lock()
	defer s.ops.Unlock()
	s.touch()

	name := strings.TrimSpace(r.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	authKey, err := s.deps.Tokens.Generate(ctx, token.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	accessID, err := s.deps.Tokens.Generate(ctx, token.AccessID)
	if err != nil {
		return nil, fmt.Errorf("generate access id: %w", err)
	}

	s.mu.Lock()
	s.registering = true
	s.mu.Unlock()
	id, err := s.provider.CreateAccount(ctx, r.Email, r.Password)
	if errors.Is(err, identity.ErrEmailInUse) {
		id, err = s.resumeRegistration(ctx, r.Email, r.Password)
	}
	s.mu.Lock()
	s.registering = false
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	profile := &models.Profile{
		UID:           id.UID,
		Name:          name,
		Email:         id.Email,
		Phone:         strings.TrimSpace(r.Phone),
		Notifications: models.Notifications{Email: true},
		Points:        s.deps.SignupBonus,
		AuthKey:       authKey,
		AccessID:      accessID,
		Subscription:  models.TierNone,
		AccountStatus: models.AccountNormal,
		CreatedAt:     time.Now().UnixMilli(),
	}
	doc, err := profile.Document()
	if err != nil {
		return nil, err
	}
	if err := s.deps.Store.Merge(ctx, s.deps.Collection, id.UID, doc); err != nil {
		s.mu.Lock()
		s.state = StateProfileUnavailable
		s.loadErr = fmt.Errorf("%w: %w", ErrProfileUnavailable, err)
		s.mu.Unlock()
		return nil, fmt.Errorf("create profile %s: %w", id.UID, err)
	}

	s.mu.Lock()
	s.state = StateAuthenticated
	s.profile = profile
	s.mu.Unlock()
	s.log.Info("profile created", "uid", id.UID)
	return profile.Clone(), nil
}

// resumeRegistration finishes a registration whose profile write failed
// earlier. It signs in with the submitted password and succeeds only when the
// identity has no profile document yet; otherwise the email is in use.
func (s *Session) resumeRegistration(ctx context.Context, email, password string) (*identity.Identity, error) {
	id, err := s.provider.SignIn(ctx, email, password)
	if err != nil {
		return nil, identity.ErrEmailInUse
	}
	_, err = s.deps.Store.Get(ctx, s.deps.Collection, id.UID)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		s.log.Warn("resuming registration without profile", "uid", id.UID)
		return id, nil
	case err == nil:
		_ = s.provider.SignOut(ctx)
		return nil, identity.ErrEmailInUse
	}
	_ = s.provider.SignOut(ctx)
	return nil, fmt.Errorf("get profile %s: %w", id.UID, err)
}

func (s *Session) Logout(ctx context.Context) error {
	s.ops.Lock()
	defer s.ops.Unlock()
	s.touch()
	return s.provider.SignOut(ctx)
}

// NotificationsPatch toggles individual channels; nil leaves a channel as is.
type NotificationsPatch struct {
	Telegram *bool `json:"telegram,omitempty"`
	Email    *bool `json:"email,omitempty"`
	WhatsApp *bool `json:"whatsapp,omitempty"`
}

// ProfilePatch holds the user-editable profile fields.
type ProfilePatch struct {
	Name           *string             `json:"name,omitempty"`
	Phone          *string             `json:"phone,omitempty"`
	TelegramChatID *string             `json:"telegramChatId,omitempty"`
	Notifications  *NotificationsPatch `json:"notifications,omitempty"`
}

func (p ProfilePatch) document() docstore.Document {
	doc := docstore.Document{}
	if p.Name != nil {
		doc["name"] = strings.TrimSpace(*p.Name)
	}
	if p.Phone != nil {
		doc["phone"] = strings.TrimSpace(*p.Phone)
	}
	if p.TelegramChatID != nil {
		doc["telegramChatId"] = strings.TrimSpace(*p.TelegramChatID)
	}
	if n := p.Notifications; n != nil {
		nd := map[string]any{}
		if n.Telegram != nil {
			nd["telegram"] = *n.Telegram
		}
		if n.Email != nil {
			nd["email"] = *n.Email
		}
		if n.WhatsApp != nil {
			nd["whatsapp"] = *n.WhatsApp
		}
		if len(nd) > 0 {
			doc["notifications"] = nd
		}
	}
	return doc
}

func (p ProfilePatch) enabling() []models.Channel {
	if p.Notifications == nil {
		return nil
	}
	var out []models.Channel
	if v := p.Notifications.Telegram; v != nil && *v {
		out = append(out, models.ChannelTelegram)
	}
	if v := p.Notifications.Email; v != nil && *v {
		out = append(out, models.ChannelEmail)
	}
	if v := p.Notifications.WhatsApp; v != nil && *v {
		out = append(out, models.ChannelWhatsApp)
	}
	return out
}

// UpdateProfile merges the user-editable fields. Enabling a channel outside
// the subscription tier fails with ErrChannelNotAllowed before any write.
func (s *Session) UpdateProfile(ctx context.Context, patch ProfilePatch) (*models.Profile, error) {
	s.ops.Lock()
	defer s.ops.Unlock()
	s.touch()

	current, err := s.authenticatedProfile()
	if err != nil {
		return nil, err
	}
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	doc := patch.document()
	if len(doc) == 0 {
		return nil, fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	for _, ch := range patch.enabling() {
		if !models.ChannelAllowed(current.Subscription, ch) {
			return nil, fmt.Errorf("%w: %s on %s", ErrChannelNotAllowed, ch, current.Subscription)
		}
	}
	return s.apply(ctx, current, doc)
}

// RegenerateAccessToken replaces the auth key; the access id is kept.
func (s *Session) RegenerateAccessToken(ctx context.Context) (*models.Profile, error) {
	return s.regenerate(ctx, token.AccessToken)
}

// RegenerateAccessID replaces the access id; the auth key is kept.
func (s *Session) RegenerateAccessID(ctx context.Context) (*models.Profile, error) {
	return s.regenerate(ctx, token.AccessID)
}

func (s *Session) regenerate(ctx context.Context, kind token.Kind) (*models.Profile, error) {
	s.ops.Lock()
	defer s.ops.Unlock()
	s.touch()

	current, err := s.authenticatedProfile()
	if err != nil {
		return nil, err
	}
	if current.Blocked() {
		return nil, throttle.ErrAccountBlocked
	}
	value, err := s.deps.Tokens.Generate(ctx, kind)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, current, docstore.Document{kind.Field: value})
}

// ChangeEmail re-authenticates with the current password, switches the
// identity email and then the profile's contact email. A failed profile write
// switches the identity email back.
func (s *Session) ChangeEmail(ctx context.Context, currentPassword, newEmail string) (*models.Profile, error) {
	s.ops.Lock()
	defer s.ops.Unlock()
	s.touch()

	current, err := s.authenticatedProfile()
	if err != nil {
		return nil, err
	}
	if current.Blocked() {
		return nil, throttle.ErrAccountBlocked
	}
	prev := s.provider.Current()
	if prev == nil {
		return nil, ErrNotAuthenticated
	}
	if err := s.provider.ChangeEmail(ctx, currentPassword, newEmail); err != nil {
		return nil, err
	}
	id := s.provider.Current()
	if id == nil {
		return nil, ErrNotAuthenticated
	}

	updated, err := s.apply(ctx, current, docstore.Document{"email": id.Email})
	if updated == nil && err != nil {
		// The profile still holds the old email, so the identity goes back too.
		if rerr := s.provider.ChangeEmail(ctx, currentPassword, prev.Email); rerr != nil {
			s.log.Error("failed to revert identity email", "uid", prev.UID, "err", rerr)
			id = s.provider.Current()
		} else {
			id = prev
		}
	}
	s.mu.Lock()
	s.current = id
	s.mu.Unlock()
	return updated, err
}

type Payment struct {
	PaymentID string
	Plan      models.Tier
	Points    int
	Amount    int
}

// ApplyPayment credits the plan's points, sets the subscription tier and
// records the payment as lastPayment. The balance is computed from a fresh
// read of the stored profile.
func (s *Session) ApplyPayment(ctx context.Context, p Payment) (*models.Profile, error) {
	s.ops.Lock()
	defer s.ops.Unlock()
	s.touch()

	current, err := s.authenticatedProfile()
	if err != nil {
		return nil, err
	}
	if p.PaymentID == "" || p.Points < 0 || p.Amount < 0 || !p.Plan.Valid() {
		return nil, fmt.Errorf("%w: payment", ErrInvalidInput)
	}
	if current.Blocked() {
		return nil, throttle.ErrAccountBlocked
	}

	fresh, err := s.fetch(ctx, current.UID)
	if err != nil {
		return nil, err
	}
	patch := docstore.Document{
		"points":       fresh.Points + p.Points,
		"subscription": string(p.Plan),
		"lastPayment": models.PaymentRecord{
			PaymentID: p.PaymentID,
			Amount:    p.Amount,
			Timestamp: time.Now().UnixMilli(),
			Plan:      p.Plan,
		},
	}
	return s.apply(ctx, fresh, patch)
}

// apply runs patch through the guard and refreshes the cache with whatever
// the guard persisted, including a blocking write.
func (s *Session) apply(ctx context.Context, current *models.Profile, patch docstore.Document) (*models.Profile, error) {
	updated, err := s.deps.Guard.Apply(ctx, current, patch)
	if updated != nil {
		s.mu.Lock()
		s.profile = updated
		s.mu.Unlock()
	}
	return updated.Clone(), err
}

func (s *Session) authenticatedProfile() (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch s.state {
	case StateAuthenticated:
		return s.profile.Clone(), nil
	case StateProfileUnavailable:
		return nil, s.loadErr
	}
	return nil, ErrNotAuthenticated
}
