package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/config"
)

const secret = "JBSWY3DPEHPK3PXP"

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newAuth(clk *clock.Fake) *Authenticator {
	return NewAuthenticator(config.AdminConfig{
		TOTPSecret: secret,
		JWTSecret:  "test-signing-key",
		SessionTTL: time.Hour,
		Issuer:     "burnrelay",
	}, nil, clk)
}

func code(t *testing.T, at time.Time) string {
	t.Helper()
	c, err := totp.GenerateCodeCustom(secret, at, totpOpts)
	require.NoError(t, err)
	return c
}

func TestLoginAndVerify(t *testing.T) {
	clk := clock.NewFake(t0)
	a := newAuth(clk)

	token, sess, err := a.Login(code(t, t0))
	require.NoError(t, err)
	assert.Equal(t, t0.Add(time.Hour), sess.ExpiresAt)

	got, err := a.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.NoError(t, a.Require(context.Background(), got))
}

func TestLogin_RejectsBadCode(t *testing.T) {
	if code(t, t0) == "000000" {
		t.Skip("generated code collides with the fixture")
	}
	a := newAuth(clock.NewFake(t0))
	_, _, err := a.Login("000000")
	assert.ErrorIs(t, err, ErrInvalidCode)
}

func TestLogin_Disabled(t *testing.T) {
	a := NewAuthenticator(config.AdminConfig{}, nil, clock.NewFake(t0))
	_, _, err := a.Login("123456")
	assert.ErrorIs(t, err, ErrAuthDisabled)
}

func TestVerify_Expired(t *testing.T) {
	clk := clock.NewFake(t0)
	a := newAuth(clk)
	token, sess, err := a.Login(code(t, t0))
	require.NoError(t, err)

	clk.Advance(2 * time.Hour)
	_, err = a.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.ErrorIs(t, a.Require(context.Background(), sess), ErrInvalidSession)
}

func TestVerify_WrongKey(t *testing.T) {
	clk := clock.NewFake(t0)
	token, _, err := newAuth(clk).Login(code(t, t0))
	require.NoError(t, err)

	other := NewAuthenticator(config.AdminConfig{
		TOTPSecret: secret, JWTSecret: "another-key", SessionTTL: time.Hour, Issuer: "burnrelay",
	}, nil, clk)
	_, err = other.Verify(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestRevoke(t *testing.T) {
	clk := clock.NewFake(t0)
	a := newAuth(clk)
	token, sess, err := a.Login(code(t, t0))
	require.NoError(t, err)

	require.NoError(t, a.Revoke(context.Background(), sess))

	_, err = a.Verify(context.Background(), token)
	assert.True(t, errors.Is(err, ErrSessionRevoked))
	assert.ErrorIs(t, a.Require(context.Background(), sess), ErrSessionRevoked)
}

func TestMemoryRevocations_Expire(t *testing.T) {
	clk := clock.NewFake(t0)
	r := NewMemoryRevocations(clk)
	require.NoError(t, r.Revoke(context.Background(), "s1", time.Minute))

	revoked, _ := r.IsRevoked(context.Background(), "s1")
	assert.True(t, revoked)

	clk.Advance(time.Minute)
	revoked, _ = r.IsRevoked(context.Background(), "s1")
	assert.False(t, revoked)
}
