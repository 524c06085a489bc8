package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redislib "github.com/redis/go-redis/v9"

	redisclient "github.com/psecars/merch-backend/pkg/redis"
)

// ErrNotFound is returned when a session attribute is absent or expired.
var ErrNotFound = errors.New("session attribute not found")

type attributeStore interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type attributeKeyer interface {
	SessionAttributeKey(sessionID, name string) string
}

// Store keeps server-side session attributes in Redis. Each attribute has its
// own key and every read or write slides its TTL forward.
type Store struct {
	store attributeStore
	keyer attributeKeyer
	ttl   time.Duration
}

// NewStore constructs a session store backed by Redis.
func NewStore(client *redisclient.Client, ttl time.Duration) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return newStore(client, client, ttl)
}

func newStore(store attributeStore, keyer attributeKeyer, ttl time.Duration) (*Store, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("session ttl must be positive")
	}
	return &Store{store: store, keyer: keyer, ttl: ttl}, nil
}

// NewID returns a fresh server-side session identifier.
func NewID() string {
	return uuid.NewString()
}

// GetAttribute returns the named attribute of sessionID or ErrNotFound.
func (s *Store) GetAttribute(ctx context.Context, sessionID, name string) (string, error) {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(name) == "" {
		return "", ErrNotFound
	}
	key := s.keyer.SessionAttributeKey(sessionID, name)
	value, err := s.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	if _, err := s.store.Expire(ctx, key, s.ttl); err != nil {
		return "", err
	}
	return value, nil
}

// SetAttribute stores value under the named attribute of sessionID.
func (s *Store) SetAttribute(ctx context.Context, sessionID, name, value string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("attribute name is required")
	}
	return s.store.Set(ctx, s.keyer.SessionAttributeKey(sessionID, name), value, s.ttl)
}

// TTL reports how long an untouched attribute survives.
func (s *Store) TTL() time.Duration {
	return s.ttl
}
