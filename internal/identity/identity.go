// Package identity is the account directory and the per-session auth client
// that reports sign-in state changes to its subscribers.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/digkill/HookRelay/internal/models"
)

var (
	ErrAuthenticationFailed     = errors.New("authentication failed")
	ErrReauthenticationRequired = errors.New("reauthentication required")
	ErrEmailInUse               = errors.New("email already in use")
	ErrInvalidCredential        = errors.New("invalid credential")
	ErrNotSignedIn              = errors.New("not signed in")
)

const minPasswordLength = 6

type Identity struct {
	UID   string
	Email string
}

// Listener receives the new identity, or nil after sign-out. It runs
// synchronously inside the operation that changed the state.
type Listener func(ctx context.Context, id *Identity)

type Provider interface {
	SignIn(ctx context.Context, email, password string) (*Identity, error)
	CreateAccount(ctx context.Context, email, password string) (*Identity, error)
	SignOut(ctx context.Context) error
	ChangeEmail(ctx context.Context, currentPassword, newEmail string) error
	Current() *Identity
	// OnStateChanged calls fn once with the current state and again after
	// every change until the returned function is called.
	OnStateChanged(ctx context.Context, fn Listener) (unsubscribe func())
}

// AccountStore persists accounts. Finders return nil, nil when nothing
// matches; Create returns ErrEmailInUse on a duplicate email.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByUID(ctx context.Context, uid string) (*models.Account, error)
	Create(ctx context.Context, account *models.Account) error
	UpdateEmail(ctx context.Context, uid, email string) error
}

// Client is one application session's view of the identity provider.
type Client struct {
	accounts AccountStore
	cost     int

	mu        sync.Mutex
	current   *Identity
	listeners map[int]Listener
	nextID    int
}

func NewClient(accounts AccountStore) *Client {
	return &Client{
		accounts:  accounts,
		cost:      bcrypt.DefaultCost,
		listeners: make(map[int]Listener),
	}
}

// WithHashCost lowers the bcrypt cost, for tests.
func (c *Client) WithHashCost(cost int) *Client {
	c.cost = cost
	return c
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	account, err := c.verify(ctx, normalizeEmail(email), password)
	if err != nil {
		return nil, err
	}
	id := &Identity{UID: account.UID, Email: account.Email}
	c.setCurrent(ctx, id)
	return id, nil
}

func (c *Client) CreateAccount(ctx context.Context, email, password string) (*Identity, error) {
	email = normalizeEmail(email)
	if err := validateCredential(email, password); err != nil {
		return nil, err
	}
	existing, err := c.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailInUse
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), c.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	account := &models.Account{
		UID:          uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	id := &Identity{UID: account.UID, Email: account.Email}
	c.setCurrent(ctx, id)
	return id, nil
}

func (c *Client) SignOut(ctx context.Context) error {
	c.setCurrent(ctx, nil)
	return nil
}

// ChangeEmail re-verifies the current password before switching the email.
// A wrong password fails with both ErrAuthenticationFailed and
// ErrReauthenticationRequired.
func (c *Client) ChangeEmail(ctx context.Context, currentPassword, newEmail string) error {
	cur := c.Current()
	if cur == nil {
		return ErrNotSignedIn
	}
	newEmail = normalizeEmail(newEmail)
	if _, err := mail.ParseAddress(newEmail); err != nil {
		return fmt.Errorf("%w: email", ErrInvalidCredential)
	}
	if _, err := c.verify(ctx, cur.Email, currentPassword); err != nil {
		if errors.Is(err, ErrAuthenticationFailed) {
			return fmt.Errorf("%w: %w", ErrReauthenticationRequired, err)
		}
		return err
	}
	if newEmail == cur.Email {
		return nil
	}
	other, err := c.accounts.FindByEmail(ctx, newEmail)
	if err != nil {
		return fmt.Errorf("find account: %w", err)
	}
	if other != nil {
		return ErrEmailInUse
	}
	if err := c.accounts.UpdateEmail(ctx, cur.UID, newEmail); err != nil {
		return fmt.Errorf("update email: %w", err)
	}

	c.mu.Lock()
	if c.current != nil && c.current.UID == cur.UID {
		c.current = &Identity{UID: cur.UID, Email: newEmail}
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) Current() *Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	id := *c.current
	return &id
}

func (c *Client) OnStateChanged(ctx context.Context, fn Listener) func() {
	c.mu.Lock()
	key := c.nextID
	c.nextID++
	c.listeners[key] = fn
	var cur *Identity
	if c.current != nil {
		id := *c.current
		cur = &id
	}
	c.mu.Unlock()

	fn(ctx, cur)

	return func() {
		c.mu.Lock()
		delete(c.listeners, key)
		c.mu.Unlock()
	}
}

func (c *Client) setCurrent(ctx context.Context, id *Identity) {
	c.mu.Lock()
	c.current = id
	listeners := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		var snapshot *Identity
		if id != nil {
			cp := *id
			snapshot = &cp
		}
		l(ctx, snapshot)
	}
}

func (c *Client) verify(ctx context.Context, email, password string) (*models.Account, error) {
	account, err := c.accounts.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if account == nil {
		return nil, ErrAuthenticationFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return nil, ErrAuthenticationFailed
	}
	return account, nil
}

func validateCredential(email, password string) error {
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return fmt.Errorf("%w: email", ErrInvalidCredential)
	}
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidCredential, minPasswordLength)
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
