package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Token purposes.
const (
	PurposePasswordReset = "password_reset"
	PurposeVerifyEmail   = "verify_email"
)

const tokenPrefix = "identity:token:v1:"

// TokenStore keeps one-time tokens that map to a user id until they are
// consumed or expire.
type TokenStore interface {
	Issue(ctx context.Context, purpose, userID string, ttl time.Duration) (string, error)
	// Consume returns the user id bound to the token and deletes it.
	Consume(ctx context.Context, purpose, token string) (string, error)
}

// RedisTokenStore stores tokens with a TTL in Redis.
type RedisTokenStore struct {
	cache *redis.Client
}

// NewRedisTokenStore builds a Redis-backed token store.
func NewRedisTokenStore(cache *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{cache: cache}
}

// Issue creates a random token bound to userID.
func (s *RedisTokenStore) Issue(ctx context.Context, purpose, userID string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	if err := s.cache.Set(ctx, tokenPrefix+purpose+":"+token, userID, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Consume atomically reads and deletes the token.
func (s *RedisTokenStore) Consume(ctx context.Context, purpose, token string) (string, error) {
	userID, err := s.cache.GetDel(ctx, tokenPrefix+purpose+":"+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

type memoryToken struct {
	userID    string
	expiresAt time.Time
}

type memoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]memoryToken
	now    func() time.Time
}

// NewMemoryTokenStore builds an in-process token store.
func NewMemoryTokenStore() TokenStore {
	return &memoryTokenStore{tokens: make(map[string]memoryToken), now: time.Now}
}

func (s *memoryTokenStore) Issue(_ context.Context, purpose, userID string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := uuid.NewString()
	s.tokens[purpose+":"+token] = memoryToken{userID: userID, expiresAt: s.now().Add(ttl)}
	return token, nil
}

func (s *memoryTokenStore) Consume(_ context.Context, purpose, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := purpose + ":" + token
	entry, ok := s.tokens[key]
	if !ok {
		return "", ErrInvalidToken
	}
	delete(s.tokens, key)
	if s.now().After(entry.expiresAt) {
		return "", ErrInvalidToken
	}
	return entry.userID, nil
}
