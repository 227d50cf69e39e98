package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/HookRelay/internal/identity"
)

// Builder opens sessions that share one account store and one set of
// profile dependencies. Each session gets its own identity client.
type Builder struct {
	accounts identity.AccountStore
	deps     Dependencies
	hashCost int
	log      *slog.Logger
}

func NewBuilder(accounts identity.AccountStore, deps Dependencies, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	return &Builder{accounts: accounts, deps: deps, log: log}
}

// WithHashCost sets the bcrypt cost used by new identity clients.
func (b *Builder) WithHashCost(cost int) *Builder {
	b.hashCost = cost
	return b
}

// Open creates and starts a session with a random id.
func (b *Builder) Open(ctx context.Context) *Session {
	client := identity.NewClient(b.accounts)
	if b.hashCost > 0 {
		client.WithHashCost(b.hashCost)
	}
	s := New(uuid.NewString(), client, b.deps, b.log)
	s.Start(ctx)
	return s
}

// Registry keeps live sessions by id and drops the ones idle past ttl.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	now      func() time.Time
}

func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (r *Registry) Put(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
}

// Get returns the session unless it is unknown or expired.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if r.expired(s) {
		r.Remove(id)
		return nil, false
	}
	s.touch()
	return s, true
}

// Remove drops the session and closes its identity subscription.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Sweep removes expired sessions and reports how many were dropped.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	var stale []*Session
	for id, s := range r.sessions {
		if r.expired(s) {
			stale = append(stale, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()
	for _, s := range stale {
		s.Close()
	}
	return len(stale)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) expired(s *Session) bool {
	return r.ttl > 0 && r.now().Sub(s.LastActive()) > r.ttl
}
