package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/digkill/HookRelay/internal/docstore"
	"github.com/digkill/HookRelay/internal/identity"
	"github.com/digkill/HookRelay/internal/models"
	"github.com/digkill/HookRelay/internal/repository"
	"github.com/digkill/HookRelay/internal/service"
	"github.com/digkill/HookRelay/internal/session"
	"github.com/digkill/HookRelay/internal/throttle"
	"github.com/digkill/HookRelay/internal/token"
)

type planStub struct {
	plans []models.Plan
}

func (p *planStub) List(context.Context, bool) ([]models.Plan, error) {
	return p.plans, nil
}

func (p *planStub) Count(context.Context) (int, error) {
	return len(p.plans), nil
}

func (p *planStub) Delete(context.Context, int64) error {
	return nil
}

func (p *planStub) Update(_ context.Context, plan *models.Plan) (*models.Plan, error) {
	return plan, nil
}

func (p *planStub) Create(_ context.Context, plan *models.Plan) (*models.Plan, error) {
	plan.ID = int64(len(p.plans) + 1)
	p.plans = append(p.plans, *plan)
	return plan, nil
}

func (p *planStub) GetByID(_ context.Context, id int64) (*models.Plan, error) {
	for _, plan := range p.plans {
		if plan.ID == id {
			plan := plan
			return &plan, nil
		}
	}
	return nil, nil
}

type paymentStub struct {
	rows []models.Payment
}

func (p *paymentStub) Create(_ context.Context, pay *models.Payment) error {
	for _, row := range p.rows {
		if row.ProviderCharge == pay.ProviderCharge {
			return repository.ErrDuplicatePayment
		}
	}
	pay.ID = int64(len(p.rows) + 1)
	p.rows = append(p.rows, *pay)
	return nil
}

func (p *paymentStub) UpdateStatus(_ context.Context, id int64, status string) error {
	p.rows[id-1].Status = status
	return nil
}

func (p *paymentStub) SetReceiptURL(context.Context, int64, string) error {
	return nil
}

func (p *paymentStub) FindByProviderPayment(_ context.Context, _, id string) (*models.Payment, error) {
	for _, row := range p.rows {
		if row.ProviderCharge == id {
			row := row
			return &row, nil
		}
	}
	return nil, nil
}

type usageStub struct{}

func (usageStub) CountCallsForDay(context.Context, string, time.Time) (int, error) {
	return 2, nil
}

func (usageStub) ChannelBreakdownForDay(context.Context, string, time.Time) ([]models.ChannelUsage, error) {
	return []models.ChannelUsage{{Channel: models.ChannelEmail, Calls: 2, Points: 4}}, nil
}

func (usageStub) RecentCalls(context.Context, string, int) ([]models.CallRecord, error) {
	return []models.CallRecord{
		{ID: 2, CallID: "c2", Channel: models.ChannelEmail, PointCost: 2, PayloadSummary: "order.created #1024", Success: true},
	}, nil
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := docstore.NewMemoryStore()
	deps := session.Dependencies{
		Store:       store,
		Tokens:      token.NewGenerator(store, "profiles", 0, nil),
		Guard:       throttle.NewGuard(store, "profiles", throttle.DefaultPolicy(), nil),
		Collection:  "profiles",
		SignupBonus: 20,
	}
	builder := session.NewBuilder(identity.NewMemoryAccounts(), deps, nil).WithHashCost(bcrypt.MinCost)
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)

	plans := service.NewPlanService("INR", &planStub{})
	require.NoError(t, plans.EnsureDefaultPlans(context.Background()))
	payments := service.NewPaymentService(service.PaymentConfig{KeyID: "rzp_test"}, &paymentStub{}, plans, nil, nil)

	return NewServer(Options{WebhookURL: "https://hooks.example.com/webhook"}, slogDiscard(), builder,
		session.NewRegistry(time.Hour), issuer, plans, payments, service.NewUsageService(usageStub{}))
}

func do(t *testing.T, s *Server, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

type authBody struct {
	Token   string         `json:"token"`
	Profile map[string]any `json:"profile"`
}

func register(t *testing.T, s *Server, email string) authBody {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ann", "email": email, "password": "secret1", "phone": "+15550100",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out authBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterAndGetProfile(t *testing.T) {
	s := newTestServer(t)
	auth := register(t, s, "ann@example.com")
	require.NotEmpty(t, auth.Token)
	assert.EqualValues(t, 20, auth.Profile["points"])
	assert.Equal(t, "none", auth.Profile["subscription"])
	assert.True(t, strings.HasPrefix(auth.Profile["authKey"].(string), "pk_"))
	assert.NotEmpty(t, auth.Profile["uid"])

	rec := do(t, s, http.MethodGet, "/api/profile", auth.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, auth.Profile["accessId"], body["accessId"])
	assert.EqualValues(t, 2, body["cost_per_call"])

	rec = do(t, s, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Ann", "email": "ann@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/profile", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/profile", "garbage", nil).Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t)
	register(t, s, "ann@example.com")

	rec := do(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ann@example.com", "password": "bad-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ann@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var out authBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Ann", out.Profile["name"])
}

func TestLogoutInvalidatesToken(t *testing.T) {
	s := newTestServer(t)
	auth := register(t, s, "ann@example.com")

	assert.Equal(t, http.StatusNoContent, do(t, s, http.MethodPost, "/api/auth/logout", auth.Token, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/profile", auth.Token, nil).Code)
}

func TestUpdateProfile(t *testing.T) {
	s := newTestServer(t)
	auth := register(t, s, "ann@example.com")

	rec := do(t, s, http.MethodPatch, "/api/profile", auth.Token, map[string]any{
		"notifications":  map[string]bool{"telegram": true},
		"telegramChatId": "424242",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	notifications := body["notifications"].(map[string]any)
	assert.Equal(t, true, notifications["telegram"])
	assert.Equal(t, true, notifications["email"])
	assert.Equal(t, "+15550100", body["phone"])

	rec = do(t, s, http.MethodPatch, "/api/profile", auth.Token, map[string]any{
		"notifications": map[string]bool{"whatsapp": true},
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, http.MethodPatch, "/api/profile", auth.Token, map[string]any{"points": 1000000})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateThrottleBlocks(t *testing.T) {
	s := newTestServer(t)
	auth := register(t, s, "ann@example.com")

	for i := 0; i < 10; i++ {
		rec := do(t, s, http.MethodPatch, "/api/profile", auth.Token, map[string]any{"name": "Ann"})
		require.Equal(t, http.StatusOK, rec.Code, "attempt %d", i+1)
	}
	rec := do(t, s, http.MethodPatch, "/api/profile", auth.Token, map[string]any{"name": "Ann"})
	assert.Equal(t, http.StatusLocked, rec.Code)
	rec = do(t, s, http.MethodPost, "/api/profile/auth-key", auth.Token, nil)
	assert.Equal(t, http.StatusLocked, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/profile", auth.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "blocked", decode(t, rec)["accountStatus"])
}

func TestRegenerateCredentials(t *testing.T) {
	s := newTestServer(t)
	auth := register(t, s, "ann@example.com")

	rec := do(t, s, http.MethodPost, "/api/profile/auth-key", auth.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.NotEqual(t, auth.Profile["authKey"], body["authKey"])
	assert.Equal(t, auth.Profile["accessId"], body["accessId"])

	rec = do(t, s, http.MethodPost, "/api/profile/access-id", auth.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEqual(t, auth.Profile["accessId"], decode(t, rec)["accessId"])
}

func TestChangeEmail(t *testing.T) {
	s := newTestServer(t)
	auth := register(t, s, "ann@example.com")

	rec := do(t, s, http.MethodPost, "/api/profile/email", auth.Token, map[string]string{
		"current_password": "nope-nope", "new_email": "anna@example.com",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/profile/email", auth.Token, map[string]string{
		"current_password": "secret1", "new_email": "anna@example.com",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anna@example.com", decode(t, rec)["email"])
}

func TestCheckoutAndConfirm(t *testing.T) {
	s := newTestServer(t)
	auth := register(t, s, "ann@example.com")

	rec := do(t, s, http.MethodGet, "/api/plans", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var plans []models.Plan
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plans))
	require.Len(t, plans, 3)
	pro := plans[1]

	rec = do(t, s, http.MethodPost, "/api/payments/checkout", auth.Token, map[string]any{"plan_id": pro.ID})
	require.Equal(t, http.StatusOK, rec.Code)
	opts := decode(t, rec)
	assert.EqualValues(t, 5000, opts["amount"])
	assert.Equal(t, "rzp_test", opts["key"])

	rec = do(t, s, http.MethodPost, "/api/payments/checkout", auth.Token, map[string]any{"plan_id": 99})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	confirm := map[string]any{"plan_id": pro.ID, "payment_id": "pay_abc"}
	rec = do(t, s, http.MethodPost, "/api/payments/confirm", auth.Token, confirm)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	profile := decode(t, rec)["profile"].(map[string]any)
	assert.EqualValues(t, 1020, profile["points"])
	assert.Equal(t, "pro", profile["subscription"])

	rec = do(t, s, http.MethodPost, "/api/payments/confirm", auth.Token, confirm)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUsageAndWebhookDocs(t *testing.T) {
	s := newTestServer(t)
	auth := register(t, s, "ann@example.com")

	rec := do(t, s, http.MethodGet, "/api/usage", auth.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	usage := decode(t, rec)
	assert.EqualValues(t, 2, usage["calls_today"])
	assert.EqualValues(t, 10, usage["calls_remaining"])
	recent := usage["recent_calls"].([]any)
	require.Len(t, recent, 1)
	assert.Equal(t, "order.created #1024", recent[0].(map[string]any)["payloadSummary"])
	assert.EqualValues(t, 2, recent[0].(map[string]any)["pointCost"])

	rec = do(t, s, http.MethodGet, "/api/webhook", auth.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	docs := decode(t, rec)
	assert.Equal(t, "https://hooks.example.com/webhook", docs["endpoint"])
	assert.Equal(t, auth.Profile["authKey"], docs["headers"].(map[string]any)["Authorization"])
}
