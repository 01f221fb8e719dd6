package saga

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrSagaNotFound is returned when a saga instance is not found
	ErrSagaNotFound = errors.New("saga instance not found")
	// ErrSagaAlreadyExists is returned when trying to create a duplicate saga
	ErrSagaAlreadyExists = errors.New("saga instance already exists")
)

// Store is the interface for persisting saga state
type Store interface {
	Save(ctx context.Context, instance *Instance) error
	Get(ctx context.Context, id string) (*Instance, error)
	Update(ctx context.Context, instance *Instance) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-memory implementation of Store
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*Instance
}

// NewMemoryStore creates a new in-memory saga store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]*Instance),
	}
}

// Save persists a saga instance
func (s *MemoryStore) Save(ctx context.Context, instance *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[instance.ID]; exists {
		return ErrSagaAlreadyExists
	}

	copied, err := deepCopy(instance)
	if err != nil {
		return err
	}
	s.instances[instance.ID] = copied
	return nil
}

// Get retrieves a saga instance by ID
func (s *MemoryStore) Get(ctx context.Context, id string) (*Instance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instance, exists := s.instances[id]
	if !exists {
		return nil, ErrSagaNotFound
	}
	return deepCopy(instance)
}

// Update updates an existing saga instance
func (s *MemoryStore) Update(ctx context.Context, instance *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[instance.ID]; !exists {
		return ErrSagaNotFound
	}

	copied, err := deepCopy(instance)
	if err != nil {
		return err
	}
	s.instances[instance.ID] = copied
	return nil
}

// Delete removes a saga instance
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.instances[id]; !exists {
		return ErrSagaNotFound
	}
	delete(s.instances, id)
	return nil
}

// Count returns the number of stored instances
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.instances)
}

// deepCopy copies an instance via JSON to decouple stored state from callers
func deepCopy(instance *Instance) (*Instance, error) {
	data, err := instance.ToJSON()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal instance: %w", err)
	}
	return FromJSON(data)
}

// RedisStore is a Redis-backed implementation of Store. Instances expire
// after the configured TTL; saga state is diagnostic, not authoritative.
type RedisStore struct {
	client     *redis.Client
	keyPrefix  string
	expiration time.Duration
}

// NewRedisStore creates a new Redis-backed saga store
func NewRedisStore(client *redis.Client, keyPrefix string, expiration time.Duration) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "saga:"
	}
	if expiration == 0 {
		expiration = 24 * time.Hour
	}
	return &RedisStore{
		client:     client,
		keyPrefix:  keyPrefix,
		expiration: expiration,
	}
}

func (s *RedisStore) key(id string) string {
	return s.keyPrefix + id
}

// Save persists a saga instance
func (s *RedisStore) Save(ctx context.Context, instance *Instance) error {
	data, err := instance.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize saga instance: %w", err)
	}

	ok, err := s.client.SetNX(ctx, s.key(instance.ID), data, s.expiration).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrSagaAlreadyExists
	}
	return nil
}

// Get retrieves a saga instance by ID
func (s *RedisStore) Get(ctx context.Context, id string) (*Instance, error) {
	data, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSagaNotFound
		}
		return nil, err
	}
	return FromJSON([]byte(data))
}

// Update updates an existing saga instance
func (s *RedisStore) Update(ctx context.Context, instance *Instance) error {
	data, err := instance.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize saga instance: %w", err)
	}
	return s.client.Set(ctx, s.key(instance.ID), data, s.expiration).Err()
}

// Delete removes a saga instance
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}
