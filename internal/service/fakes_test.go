package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/digkill/HookRelay/internal/models"
	"github.com/digkill/HookRelay/internal/repository"
	"github.com/digkill/HookRelay/internal/session"
	"github.com/digkill/HookRelay/internal/storage"
)

type memoryPlans struct {
	mu     sync.Mutex
	plans  map[int64]models.Plan
	nextID int64
}

func newMemoryPlans() *memoryPlans {
	return &memoryPlans{plans: map[int64]models.Plan{}}
}

func (m *memoryPlans) List(_ context.Context, activeOnly bool) ([]models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Plan
	for _, p := range m.plans {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceMinorUnits < out[j].PriceMinorUnits })
	return out, nil
}

func (m *memoryPlans) GetByID(_ context.Context, id int64) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memoryPlans) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.plans), nil
}

func (m *memoryPlans) Create(_ context.Context, plan *models.Plan) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	plan.ID = m.nextID
	plan.CreatedAt = time.Now()
	plan.UpdatedAt = plan.CreatedAt
	m.plans[plan.ID] = *plan
	p := *plan
	return &p, nil
}

func (m *memoryPlans) Update(_ context.Context, plan *models.Plan) (*models.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[plan.ID] = *plan
	p := *plan
	return &p, nil
}

func (m *memoryPlans) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.plans, id)
	return nil
}

type memoryPayments struct {
	rows   []*models.Payment
	nextID int64
}

func (m *memoryPayments) Create(_ context.Context, p *models.Payment) error {
	for _, r := range m.rows {
		if r.Provider == p.Provider && r.ProviderCharge == p.ProviderCharge {
			return repository.ErrDuplicatePayment
		}
	}
	m.nextID++
	p.ID = m.nextID
	row := *p
	m.rows = append(m.rows, &row)
	return nil
}

func (m *memoryPayments) UpdateStatus(_ context.Context, id int64, status string) error {
	for _, r := range m.rows {
		if r.ID == id {
			r.Status = status
		}
	}
	return nil
}

func (m *memoryPayments) SetReceiptURL(_ context.Context, id int64, url string) error {
	for _, r := range m.rows {
		if r.ID == id {
			r.ReceiptURL = url
		}
	}
	return nil
}

func (m *memoryPayments) FindByProviderPayment(_ context.Context, provider, paymentID string) (*models.Payment, error) {
	for _, r := range m.rows {
		if r.Provider == provider && r.ProviderCharge == paymentID {
			row := *r
			return &row, nil
		}
	}
	return nil, nil
}

type fakeTarget struct {
	profile *models.Profile
	applied []session.Payment
	result  *models.Profile
	err     error
}

func (f *fakeTarget) Profile() *models.Profile { return f.profile.Clone() }

func (f *fakeTarget) ApplyPayment(_ context.Context, p session.Payment) (*models.Profile, error) {
	f.applied = append(f.applied, p)
	if f.err != nil {
		return f.result, f.err
	}
	next := f.profile.Clone()
	next.Points += p.Points
	next.Subscription = p.Plan
	f.profile = next
	return next.Clone(), nil
}

type fakeArchiver struct {
	receipts []storage.Receipt
}

func (f *fakeArchiver) ArchiveReceipt(_ context.Context, r storage.Receipt) (string, error) {
	f.receipts = append(f.receipts, r)
	return "https://cdn.example.com/receipts/" + r.PaymentID + ".json", nil
}
