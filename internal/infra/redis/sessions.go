package redis

import (
	"context"
	"fmt"
	"time"
)

// SessionRevocations records revoked admin sessions until they would have
// expired anyway.
type SessionRevocations struct {
	client *Client
}

func NewSessionRevocations(client *Client) *SessionRevocations {
	return &SessionRevocations{client: client}
}

// Revoke marks a session id revoked for ttl.
func (s *SessionRevocations) Revoke(ctx context.Context, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	if err := s.client.rdb.Set(ctx, revokedKey(sessionID), "1", ttl).Err(); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// IsRevoked reports whether the session id was revoked.
func (s *SessionRevocations) IsRevoked(ctx context.Context, sessionID string) (bool, error) {
	n, err := s.client.rdb.Exists(ctx, revokedKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return n > 0, nil
}
