package guard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/swargawasal/Final-output-03/pkg/fsutil"
)

// StateStore persists the guard record.
//
// Load never fails: a missing, unreadable or corrupt record yields the zero
// State and a warning. Save is best-effort; the Gate logs and swallows its
// error because a lost record only risks one extra attempt later.
type StateStore interface {
	Load(ctx context.Context) State
	Save(ctx context.Context, s State) error
}

// MemoryStateStore keeps the record in process memory. Seeded from another
// store's Load, it lets a dry run see real cooldown and history without
// writing them back.
type MemoryStateStore struct {
	mu    sync.Mutex
	state State
}

// NewMemoryStateStore returns a store holding initial.
func NewMemoryStateStore(initial State) *MemoryStateStore {
	return &MemoryStateStore{state: initial}
}

// Load returns a copy of the held record.
func (m *MemoryStateStore) Load(ctx context.Context) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	// copy so callers cannot mutate the stored history
	out := m.state
	out.SeenFingerprints = append([]string(nil), m.state.SeenFingerprints...)
	return out
}

// Save replaces the held record. It never fails.
func (m *MemoryStateStore) Save(ctx context.Context, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.state.SeenFingerprints = append([]string(nil), s.SeenFingerprints...)
	return nil
}

// FileStateStore keeps the record as a JSON document replaced atomically.
type FileStateStore struct {
	path   string
	logger *slog.Logger
}

// NewFileStateStore creates a store at path. The file is created on first save.
func NewFileStateStore(path string, logger *slog.Logger) *FileStateStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStateStore{path: path, logger: logger.With("store", "guard_state", "path", path)}
}

// Path returns the backing file.
func (s *FileStateStore) Path() string { return s.path }

func (s *FileStateStore) Load(ctx context.Context) State {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.WarnContext(ctx, "guard state unreadable, starting fresh", "error", err)
		}
		return State{}
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.WarnContext(ctx, "guard state corrupt, starting fresh", "error", err)
		return State{}
	}
	return st
}

func (s *FileStateStore) Save(ctx context.Context, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal guard state: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("save guard state: %w", err)
	}
	return nil
}

// DefaultRedisKey is where RedisStateStore keeps the record.
const DefaultRedisKey = "promoguard:guard_state"

// RedisStateStore keeps the record under one Redis key so several hosts can
// share cooldown and history. Mutual exclusion is still per process.
type RedisStateStore struct {
	client *redis.Client
	key    string
	logger *slog.Logger
}

// NewRedisStateStore creates a new store backed by Redis.
func NewRedisStateStore(addr, password string, db int, logger *slog.Logger) *RedisStateStore {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedisStateStoreFromClient(rdb, DefaultRedisKey, logger)
}

// NewRedisStateStoreFromClient wraps an existing client.
func NewRedisStateStoreFromClient(client *redis.Client, key string, logger *slog.Logger) *RedisStateStore {
	if logger == nil {
		logger = slog.Default()
	}
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStateStore{client: client, key: key, logger: logger.With("store", "guard_state", "key", key)}
}

// Ping checks connectivity.
func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client returns the underlying client for sharing with other stores.
func (s *RedisStateStore) Client() *redis.Client { return s.client }

// Close releases the client.
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}

func (s *RedisStateStore) Load(ctx context.Context) State {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.WarnContext(ctx, "guard state unreadable, starting fresh", "error", err)
		}
		return State{}
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.WarnContext(ctx, "guard state corrupt, starting fresh", "error", err)
		return State{}
	}
	return st
}

func (s *RedisStateStore) Save(ctx context.Context, st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal guard state: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis guard state: %w", err)
	}
	return nil
}
