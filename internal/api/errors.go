package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/digkill/HookRelay/internal/docstore"
	"github.com/digkill/HookRelay/internal/identity"
	"github.com/digkill/HookRelay/internal/service"
	"github.com/digkill/HookRelay/internal/session"
	"github.com/digkill/HookRelay/internal/throttle"
	"github.com/digkill/HookRelay/internal/token"
)

const blockedMessage = "account blocked after too many updates, contact support"

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to an HTTP status and a client-safe message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, throttle.ErrAccountBlocked):
		return http.StatusLocked, blockedMessage
	case errors.Is(err, identity.ErrReauthenticationRequired):
		return http.StatusUnauthorized, "current password is incorrect"
	case errors.Is(err, identity.ErrAuthenticationFailed):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, session.ErrNotAuthenticated), errors.Is(err, identity.ErrNotSignedIn):
		return http.StatusUnauthorized, "not authenticated"
	case errors.Is(err, session.ErrChannelNotAllowed):
		return http.StatusForbidden, err.Error()
	case errors.Is(err, session.ErrInvalidInput), errors.Is(err, identity.ErrInvalidCredential):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, identity.ErrEmailInUse):
		return http.StatusConflict, "email already in use"
	case errors.Is(err, service.ErrPaymentAlreadyApplied):
		return http.StatusConflict, "payment already applied"
	case errors.Is(err, service.ErrPlanNotFound):
		return http.StatusNotFound, "plan not found"
	case errors.Is(err, session.ErrProfileUnavailable):
		return http.StatusServiceUnavailable, "profile unavailable, try signing in again"
	case errors.Is(err, token.ErrGenerationExhausted):
		return http.StatusServiceUnavailable, "could not generate a unique credential, try again"
	case errors.Is(err, docstore.ErrLookupFailed), errors.Is(err, docstore.ErrWriteFailed):
		return http.StatusBadGateway, "profile store unavailable"
	}
	return http.StatusInternalServerError, "internal error"
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("api request failed", "path", r.URL.Path, "status", status, "err", err)
	} else {
		s.log.Debug("api request rejected", "path", r.URL.Path, "status", status, "err", err)
	}
	writeError(w, status, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
