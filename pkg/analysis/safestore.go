package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/swargawasal/Final-output-03/pkg/fsutil"
)

// SafeResultStore keeps the most recently accepted text for reuse as a
// fallback. Persist is last-writer-wins and safe for concurrent callers.
type SafeResultStore interface {
	Persist(ctx context.Context, text, origin string) error
	// Read returns ErrNoSafeResult when nothing has been stored.
	Read(ctx context.Context) (SafeResult, error)
}

// FileSafeResultStore stores the SafeResult as a JSON document.
type FileSafeResultStore struct {
	path string
	now  func() time.Time
}

// NewFileSafeResultStore returns a store backed by path.
func NewFileSafeResultStore(path string) *FileSafeResultStore {
	return &FileSafeResultStore{path: path, now: time.Now}
}

// Path returns the backing file.
func (s *FileSafeResultStore) Path() string { return s.path }

// Persist atomically replaces the stored result.
func (s *FileSafeResultStore) Persist(ctx context.Context, text, origin string) error {
	data, err := json.MarshalIndent(SafeResult{FinalText: text, Origin: origin, Timestamp: s.now()}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal safe result: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, data, 0644); err != nil {
		return fmt.Errorf("failed to persist safe result: %w", err)
	}
	return nil
}

// Read loads the stored result.
func (s *FileSafeResultStore) Read(ctx context.Context) (SafeResult, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return SafeResult{}, ErrNoSafeResult
	}
	if err != nil {
		return SafeResult{}, fmt.Errorf("failed to read safe result: %w", err)
	}
	var r SafeResult
	if err := json.Unmarshal(data, &r); err != nil {
		return SafeResult{}, fmt.Errorf("failed to decode safe result: %w", err)
	}
	return r, nil
}

// DefaultRedisSafeResultKey is the key RedisSafeResultStore writes.
const DefaultRedisSafeResultKey = "promoguard:safe_result"

// RedisSafeResultStore shares the SafeResult between hosts.
type RedisSafeResultStore struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewRedisSafeResultStore wraps client. An empty key uses the default.
func NewRedisSafeResultStore(client *redis.Client, key string) *RedisSafeResultStore {
	if key == "" {
		key = DefaultRedisSafeResultKey
	}
	return &RedisSafeResultStore{client: client, key: key, now: time.Now}
}

// Persist replaces the stored result. SET is atomic.
func (s *RedisSafeResultStore) Persist(ctx context.Context, text, origin string) error {
	data, err := json.Marshal(SafeResult{FinalText: text, Origin: origin, Timestamp: s.now()})
	if err != nil {
		return fmt.Errorf("failed to marshal safe result: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set safe result: %w", err)
	}
	return nil
}

// Read loads the stored result.
func (s *RedisSafeResultStore) Read(ctx context.Context) (SafeResult, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return SafeResult{}, ErrNoSafeResult
	}
	if err != nil {
		return SafeResult{}, fmt.Errorf("redis get safe result: %w", err)
	}
	var r SafeResult
	if err := json.Unmarshal(data, &r); err != nil {
		return SafeResult{}, fmt.Errorf("failed to decode safe result: %w", err)
	}
	return r, nil
}
