package api

import (
	"net/http"
	"time"

	"github.com/digkill/HookRelay/internal/models"
	"github.com/digkill/HookRelay/internal/service"
	"github.com/digkill/HookRelay/internal/session"
)

type profileView struct {
	UID string `json:"uid"`
	*models.Profile
	AllowedChannels []models.Channel `json:"allowed_channels"`
	CostPerCall     int              `json:"cost_per_call"`
}

func viewOf(p *models.Profile) *profileView {
	if p == nil {
		return nil
	}
	return &profileView{
		UID:             p.UID,
		Profile:         p,
		AllowedChannels: models.AllowedChannels(p.Subscription),
		CostPerCall:     models.CallCost(p.Notifications),
	}
}

type authResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Profile   *profileView `json:"profile"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	sess := s.builder.Open(r.Context())
	profile, err := sess.Register(r.Context(), session.Registration{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
	})
	if err != nil {
		sess.Close()
		s.fail(w, r, err)
		return
	}
	s.startSession(w, r, sess, profile, http.StatusCreated)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	sess := s.builder.Open(r.Context())
	profile, err := sess.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		sess.Close()
		s.fail(w, r, err)
		return
	}
	s.startSession(w, r, sess, profile, http.StatusOK)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, sess *session.Session, profile *models.Profile, status int) {
	raw, exp, err := s.tokens.Issue(sess.ID(), profile.UID)
	if err != nil {
		sess.Close()
		s.fail(w, r, err)
		return
	}
	s.sessions.Put(sess)
	writeJSON(w, status, authResponse{Token: raw, ExpiresAt: exp, Profile: viewOf(profile)})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	if err := sess.Logout(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	s.sessions.Remove(sess.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) currentProfile(w http.ResponseWriter, r *http.Request) (*models.Profile, bool) {
	sess := sessionFrom(r.Context())
	p := sess.Profile()
	if p != nil {
		return p, true
	}
	err := sess.Err()
	if err == nil {
		err = session.ErrNotAuthenticated
	}
	s.fail(w, r, err)
	return nil, false
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := s.currentProfile(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var patch session.ProfilePatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := sessionFrom(r.Context()).UpdateProfile(r.Context(), patch)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (s *Server) handleRegenerateAuthKey(w http.ResponseWriter, r *http.Request) {
	p, err := sessionFrom(r.Context()).RegenerateAccessToken(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (s *Server) handleRegenerateAccessID(w http.ResponseWriter, r *http.Request) {
	p, err := sessionFrom(r.Context()).RegenerateAccessID(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

type changeEmailRequest struct {
	CurrentPassword string `json:"current_password"`
	NewEmail        string `json:"new_email"`
}

func (s *Server) handleChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req changeEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := sessionFrom(r.Context()).ChangeEmail(r.Context(), req.CurrentPassword, req.NewEmail)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(p))
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.plans.List(r.Context(), true)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if plans == nil {
		plans = []models.Plan{}
	}
	writeJSON(w, http.StatusOK, plans)
}

type checkoutRequest struct {
	PlanID int64 `json:"plan_id"`
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, ok := s.currentProfile(w, r)
	if !ok {
		return
	}
	opts, err := s.payments.Checkout(r.Context(), p, req.PlanID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

type confirmResponse struct {
	Payment *models.Payment `json:"payment"`
	Profile *profileView    `json:"profile"`
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req service.ConfirmInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	res, err := s.payments.Confirm(r.Context(), sessionFrom(r.Context()), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{Payment: res.Payment, Profile: viewOf(res.Profile)})
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	p, ok := s.currentProfile(w, r)
	if !ok {
		return
	}
	summary, err := s.usage.Today(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type webhookDocs struct {
	Endpoint        string            `json:"endpoint"`
	Methods         []string          `json:"methods"`
	Headers         map[string]string `json:"headers"`
	ExampleRequest  map[string]any    `json:"example_request"`
	ExampleResponse map[string]any    `json:"example_response"`
	EnabledChannels []models.Channel  `json:"enabled_channels"`
	CostPerCall     int               `json:"cost_per_call"`
}

// handleWebhookDocs describes how to call the forwarding webhook with the
// caller's own auth key. The webhook itself is served elsewhere.
func (s *Server) handleWebhookDocs(w http.ResponseWriter, r *http.Request) {
	p, ok := s.currentProfile(w, r)
	if !ok {
		return
	}
	channels := p.Notifications.Enabled()
	if channels == nil {
		channels = []models.Channel{}
	}
	cost := models.CallCost(p.Notifications)
	writeJSON(w, http.StatusOK, webhookDocs{
		Endpoint: s.webhookURL,
		Methods:  []string{http.MethodPost, http.MethodGet},
		Headers: map[string]string{
			"Authorization": p.AuthKey,
			"Content-Type":  "application/json",
		},
		ExampleRequest: map[string]any{
			"event":   "order.created",
			"message": "New order #1024",
			"amount":  499,
		},
		ExampleResponse: map[string]any{
			"success":    true,
			"message":    "Notification forwarded",
			"channels":   channels,
			"pointsUsed": cost,
		},
		EnabledChannels: channels,
		CostPerCall:     cost,
	})
}
