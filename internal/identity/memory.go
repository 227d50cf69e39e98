package identity

import (
	"context"
	"sync"
	"time"

	"github.com/digkill/HookRelay/internal/models"
)

// MemoryAccounts is an AccountStore kept in process memory.
type MemoryAccounts struct {
	mu    sync.RWMutex
	byUID map[string]models.Account
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{byUID: make(map[string]models.Account)}
}

func (m *MemoryAccounts) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.byUID {
		if a.Email == email {
			acc := a
			return &acc, nil
		}
	}
	return nil, nil
}

func (m *MemoryAccounts) FindByUID(_ context.Context, uid string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byUID[uid]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (m *MemoryAccounts) Create(_ context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.byUID {
		if a.Email == account.Email {
			return ErrEmailInUse
		}
	}
	m.byUID[account.UID] = *account
	return nil
}

func (m *MemoryAccounts) UpdateEmail(_ context.Context, uid, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, a := range m.byUID {
		if id != uid && a.Email == email {
			return ErrEmailInUse
		}
	}
	a, ok := m.byUID[uid]
	if !ok {
		return nil
	}
	a.Email = email
	a.UpdatedAt = time.Now().UTC()
	m.byUID[uid] = a
	return nil
}
