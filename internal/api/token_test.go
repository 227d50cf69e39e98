package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("secret", time.Hour)
	require.NoError(t, err)

	raw, exp, err := issuer.Issue("sid-1", "u1")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)

	claims, err := issuer.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", claims.SessionID)
	assert.Equal(t, "u1", claims.Subject)
}

func TestTokenRejectsExpiredAndForeign(t *testing.T) {
	issuer, err := NewTokenIssuer("secret", time.Minute)
	require.NoError(t, err)
	raw, _, err := issuer.Issue("sid-1", "u1")
	require.NoError(t, err)

	issuer.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = issuer.Parse(raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewTokenIssuer("other-secret", time.Minute)
	require.NoError(t, err)
	foreign, _, err := other.Issue("sid-2", "u2")
	require.NoError(t, err)
	issuer.now = time.Now
	_, err = issuer.Parse(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = issuer.Parse("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewTokenIssuerValidates(t *testing.T) {
	_, err := NewTokenIssuer(" ", time.Hour)
	assert.Error(t, err)
	_, err = NewTokenIssuer("s", 0)
	assert.Error(t, err)
}
