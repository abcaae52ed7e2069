package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/stagecraft/pkg/domain"
)

// DefaultPrefix namespaces every key written by this package.
const DefaultPrefix = "stagecraft:"

// farFuture is the index score of records without expiration.
const farFuture = 4102444800 // 2100-01-01

// Store implements ports.TaskStore using Redis.
//
// Each task is a JSON string under <prefix>task:<id>. A sorted set under <prefix>task:index
// tracks ids scored by expiry, so List can prune entries whose string key has expired.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration of task records. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store connected to address.
func New(address, password string, db int, opts ...Option) *Store {
	return NewFromClient(backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient creates a Redis store on an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{client: client, prefix: DefaultPrefix}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Client exposes the underlying client, e.g. to share it with a Locker.
func (s *Store) Client() *backend.Client {
	return s.client
}

func (s *Store) key(id string) string {
	return s.prefix + "task:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "task:index"
}

// Save persists the task.
func (s *Store) Save(ctx context.Context, task *domain.Task) error {
	if task == nil || task.ID == "" {
		return fmt.Errorf("task id cannot be empty")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	score := float64(farFuture)
	if s.ttl > 0 {
		score = float64(time.Now().Add(s.ttl).Unix())
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.key(task.ID), data, s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: task.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves a task.
func (s *Store) Load(ctx context.Context, id string) (*domain.Task, error) {
	val, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var task domain.Task
	if err := json.Unmarshal(val, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

// Delete removes a task and its index entry.
func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// List returns the ids of live tasks, pruning expired index entries first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := fmt.Sprintf("%d", time.Now().Unix())
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired tasks: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return ids, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
