// Package auth issues and verifies admin sessions. An admin logs in with a
// TOTP code and receives a signed JWT; handlers receive the verified
// Session explicitly.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/vietddude/burnrelay/internal/core/clock"
	"github.com/vietddude/burnrelay/internal/core/config"
)

var (
	ErrAuthDisabled   = errors.New("admin authentication is not configured")
	ErrInvalidCode    = errors.New("invalid totp code")
	ErrInvalidSession = errors.New("invalid or expired session")
	ErrSessionRevoked = errors.New("session revoked")
)

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// Session is a verified admin session.
type Session struct {
	ID        string    `json:"id"`
	Subject   string    `json:"subject"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the session is unexpired at now.
func (s Session) Valid(now time.Time) bool {
	return s.ID != "" && now.Before(s.ExpiresAt)
}

// Revocations remembers revoked session ids.
type Revocations interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Authenticator issues sessions for valid TOTP codes and verifies tokens.
type Authenticator struct {
	totpSecret  string
	jwtSecret   []byte
	issuer      string
	ttl         time.Duration
	revocations Revocations
	clock       clock.Clock
	log         *slog.Logger
}

func NewAuthenticator(cfg config.AdminConfig, revocations Revocations, clk clock.Clock) *Authenticator {
	if clk == nil {
		clk = clock.New()
	}
	if revocations == nil {
		revocations = NewMemoryRevocations(clk)
	}
	return &Authenticator{
		totpSecret:  cfg.TOTPSecret,
		jwtSecret:   []byte(cfg.JWTSecret),
		issuer:      cfg.Issuer,
		ttl:         cfg.SessionTTL,
		revocations: revocations,
		clock:       clk,
		log:         slog.Default().With("component", "auth"),
	}
}

// Login exchanges a TOTP code for a signed session token.
func (a *Authenticator) Login(code string) (string, Session, error) {
	if a.totpSecret == "" || len(a.jwtSecret) == 0 {
		return "", Session{}, ErrAuthDisabled
	}
	now := a.clock.Now()
	ok, err := totp.ValidateCustom(code, a.totpSecret, now, totpOpts)
	if err != nil || !ok {
		a.log.Warn("admin login rejected")
		return "", Session{}, ErrInvalidCode
	}

	sess := Session{
		ID:        uuid.NewString(),
		Subject:   "admin",
		IssuedAt:  now,
		ExpiresAt: now.Add(a.ttl),
	}
	claims := adminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sess.ID,
			Subject:   sess.Subject,
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
	if err != nil {
		return "", Session{}, fmt.Errorf("failed to sign token: %w", err)
	}
	a.log.Info("admin session issued", "session", sess.ID, "expires_at", sess.ExpiresAt)
	return token, sess, nil
}

// Verify parses a token and checks it is unexpired and not revoked.
func (a *Authenticator) Verify(ctx context.Context, token string) (Session, error) {
	if len(a.jwtSecret) == 0 {
		return Session{}, ErrAuthDisabled
	}
	var claims adminClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	if claims.Role != "admin" || claims.ID == "" {
		return Session{}, ErrInvalidSession
	}

	revoked, err := a.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, ErrSessionRevoked
	}
	sess := Session{ID: claims.ID, Subject: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}
	if claims.IssuedAt != nil {
		sess.IssuedAt = claims.IssuedAt.Time
	}
	return sess, nil
}

// Revoke invalidates a session until it would have expired.
func (a *Authenticator) Revoke(ctx context.Context, sess Session) error {
	ttl := sess.ExpiresAt.Sub(a.clock.Now())
	if err := a.revocations.Revoke(ctx, sess.ID, ttl); err != nil {
		return err
	}
	a.log.Info("admin session revoked", "session", sess.ID)
	return nil
}

// Require checks that sess is a live session. Handlers call it with the
// session they were given before doing anything privileged.
func (a *Authenticator) Require(ctx context.Context, sess Session) error {
	if !sess.Valid(a.clock.Now()) {
		return ErrInvalidSession
	}
	revoked, err := a.revocations.IsRevoked(ctx, sess.ID)
	if err != nil {
		return err
	}
	if revoked {
		return ErrSessionRevoked
	}
	return nil
}

// MemoryRevocations keeps revoked ids in process.
type MemoryRevocations struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	clock   clock.Clock
}

func NewMemoryRevocations(clk clock.Clock) *MemoryRevocations {
	if clk == nil {
		clk = clock.New()
	}
	return &MemoryRevocations{revoked: make(map[string]time.Time), clock: clk}
}

func (m *MemoryRevocations) Revoke(_ context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[sessionID] = m.clock.Now().Add(ttl)
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	until, ok := m.revoked[sessionID]
	if !ok {
		return false, nil
	}
	if !m.clock.Now().Before(until) {
		delete(m.revoked, sessionID)
		return false, nil
	}
	return true, nil
}
