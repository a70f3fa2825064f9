// Package session persists storefront sessions and their cart snapshots.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"storefront/internal/ledger"
	"storefront/internal/models"
	"storefront/internal/redisclient"
)

// ErrSessionNotFound is returned for unknown or expired session tokens
var ErrSessionNotFound = errors.New("session not found")

// KV is the subset of the Redis client the stores need
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Touch(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

func sessionKey(id string) string { return fmt.Sprintf("session:%s", id) }
func cartKey(id string) string    { return fmt.Sprintf("cart:%s", id) }

// SessionStore keeps sessions with a sliding ttl
type SessionStore struct {
	kv  KV
	ttl time.Duration
}

// NewSessionStore creates a session store
func NewSessionStore(kv KV, ttl time.Duration) *SessionStore {
	return &SessionStore{kv: kv, ttl: ttl}
}

// Save writes the session and resets its ttl
func (s *SessionStore) Save(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	return s.kv.Set(ctx, sessionKey(sess.ID), data, s.ttl)
}

// Get loads a session and extends its ttl
func (s *SessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}

	data, err := s.kv.Get(ctx, sessionKey(id))
	if errors.Is(err, redisclient.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if _, err := s.kv.Touch(ctx, sessionKey(id), s.ttl); err != nil {
		return nil, err
	}
	if _, err := s.kv.Touch(ctx, cartKey(id), s.ttl); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Delete destroys the session
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	return s.kv.Del(ctx, sessionKey(id))
}

// CartStore keeps one ledger snapshot per session
type CartStore struct {
	kv  KV
	ttl time.Duration
}

// NewCartStore creates a cart store; snapshots expire together with sessions
func NewCartStore(kv KV, ttl time.Duration) *CartStore {
	return &CartStore{kv: kv, ttl: ttl}
}

// Load restores the session's ledger, or an empty one if nothing was saved
func (s *CartStore) Load(ctx context.Context, sessionID string) (*ledger.Ledger, error) {
	data, err := s.kv.Get(ctx, cartKey(sessionID))
	if errors.Is(err, redisclient.ErrNotFound) {
		return ledger.New(), nil
	}
	if err != nil {
		return nil, err
	}
	return ledger.Restore(data)
}

// Save persists a snapshot of l
func (s *CartStore) Save(ctx context.Context, sessionID string, l *ledger.Ledger) error {
	data, err := l.Snapshot()
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, cartKey(sessionID), data, s.ttl)
}

// Clear drops the session's snapshot
func (s *CartStore) Clear(ctx context.Context, sessionID string) error {
	return s.kv.Del(ctx, cartKey(sessionID))
}
