package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrStateNotFound   = errors.New("call session not found")
	ErrNilSessionState = errors.New("call session is nil")
	ErrInvalidSession  = errors.New("call id is empty")
)

const (
	defaultStoreKeyPrefix = "leadflow:call:"
	defaultStoreTTL       = 2 * time.Hour
)

// Store is the persistence contract used by the controller.
type Store interface {
	Load(ctx context.Context, callID string) (*CallSession, error)
	Save(ctx context.Context, st *CallSession) error
	Delete(ctx context.Context, callID string) error
}

// StoreOption customizes RedisStore.
type StoreOption func(*RedisStore)

func WithKeyPrefix(prefix string) StoreOption {
	return func(s *RedisStore) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			s.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

type RedisConfig struct {
	Addr     string        `envconfig:"ADDR" default:"localhost:6379"`
	Password string        `envconfig:"PASSWORD"`
	DB       int           `envconfig:"DB" default:"0"`
	TTL      time.Duration `envconfig:"TTL" default:"2h"`
}

// RedisStore keeps call sessions in Redis with a sliding TTL so abandoned
// calls expire on their own.
type RedisStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     strings.TrimSpace(cfg.Addr),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewRedisStore(rdb redis.UniversalClient, opts ...StoreOption) (*RedisStore, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}

	store := &RedisStore{
		rdb:       rdb,
		keyPrefix: defaultStoreKeyPrefix,
		ttl:       defaultStoreTTL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	if store.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return store, nil
}

func (s *RedisStore) Load(ctx context.Context, callID string) (*CallSession, error) {
	key, err := s.redisKey(callID)
	if err != nil {
		return nil, err
	}

	raw, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}

	var st CallSession
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("unmarshal call session: %w", err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid call session loaded from store: %w", err)
	}
	return &st, nil
}

func (s *RedisStore) Save(ctx context.Context, st *CallSession) error {
	if st == nil {
		return ErrNilSessionState
	}
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}

	key, err := s.redisKey(st.CallID)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal call session: %w", err)
	}
	if err := s.rdb.Set(ctx, key, payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, callID string) error {
	key, err := s.redisKey(callID)
	if err != nil {
		return err
	}
	return s.rdb.Del(ctx, key).Err()
}

func (s *RedisStore) redisKey(callID string) (string, error) {
	if strings.TrimSpace(callID) == "" {
		return "", ErrInvalidSession
	}
	return s.keyPrefix + strings.TrimSpace(callID), nil
}

// MemoryStore is a process-local Store for single-instance runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, callID string) (*CallSession, error) {
	callID = strings.TrimSpace(callID)
	if callID == "" {
		return nil, ErrInvalidSession
	}

	m.mu.RLock()
	raw, ok := m.sessions[callID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrStateNotFound
	}

	var st CallSession
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("unmarshal call session: %w", err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("invalid call session loaded from store: %w", err)
	}
	return &st, nil
}

func (m *MemoryStore) Save(_ context.Context, st *CallSession) error {
	if st == nil {
		return ErrNilSessionState
	}
	callID := strings.TrimSpace(st.CallID)
	if callID == "" {
		return ErrInvalidSession
	}

	// stored as JSON so callers never share the session pointer
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal call session: %w", err)
	}

	m.mu.Lock()
	m.sessions[callID] = payload
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, callID string) error {
	m.mu.Lock()
	delete(m.sessions, strings.TrimSpace(callID))
	m.mu.Unlock()
	return nil
}
