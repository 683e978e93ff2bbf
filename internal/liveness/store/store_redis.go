package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"presence/internal/liveness"
	psync "presence/pkg/platform/sync"
)

const (
	// sessionKeyPrefix namespaces blink sessions in Redis.
	sessionKeyPrefix = "blink_session:"

	// defaultSessionTTL is a hard backstop: a session untouched for this
	// long is certainly abandoned. The cleanup worker usually removes
	// sessions much earlier.
	defaultSessionTTL = 10 * time.Minute
)

// RedisStore persists blink sessions in Redis so multiple gateway instances
// can serve frames for the same subject. Per-subject serialization uses a
// process-local keyed mutex; deployments that pin a subject to one instance
// (sticky routing on subject id) get full mutual exclusion.
type RedisStore struct {
	client *redis.Client
	cfg    liveness.Config
	ttl    time.Duration
	locks  *psync.KeyedMutex
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithSessionTTL overrides the Redis key TTL when greater than zero.
func WithSessionTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewRedisStore constructs a Redis-backed session store.
func NewRedisStore(client *redis.Client, cfg liveness.Config, opts ...RedisOption) *RedisStore {
	s := &RedisStore{
		client: client,
		cfg:    cfg,
		ttl:    defaultSessionTTL,
		locks:  psync.NewKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sessionKey(subject string) string {
	return sessionKeyPrefix + subject
}

func (s *RedisStore) Advance(ctx context.Context, subject string, ear float64, now time.Time, timeout time.Duration) (*liveness.Session, liveness.Verdict, error) {
	cfg := s.cfg.WithTimeout(timeout)

	var (
		snapshot *liveness.Session
		verdict  liveness.Verdict
		opErr    error
	)

	s.locks.Do(subject, func() {
		sess, err := s.load(ctx, subject)
		if err != nil && !errors.Is(err, ErrNotFound) {
			opErr = err
			return
		}
		if sess == nil {
			sess = liveness.NewSession(subject, now)
		}

		verdict = sess.Advance(ear, now, cfg)

		if err := s.save(ctx, sess); err != nil {
			opErr = err
			return
		}
		snapshot = sess
	})

	return snapshot, verdict, opErr
}

func (s *RedisStore) Get(ctx context.Context, subject string) (*liveness.Session, error) {
	return s.load(ctx, subject)
}

func (s *RedisStore) Delete(ctx context.Context, subject string) error {
	n, err := s.client.Del(ctx, sessionKey(subject)).Result()
	if err != nil {
		return fmt.Errorf("delete blink session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteIdle scans for sessions whose last sample predates cutoff. Redis key
// TTLs already bound worst-case growth; this sweep keeps the active count
// honest between TTL expiries.
func (s *RedisStore) DeleteIdle(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		raw, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return deleted, fmt.Errorf("scan blink sessions: %w", err)
		}
		var sess liveness.Session
		if err := json.Unmarshal(raw, &sess); err != nil {
			// Unreadable session data is garbage; drop it.
			_ = s.client.Del(ctx, key).Err()
			deleted++
			continue
		}
		if sess.LastSeenAt.Before(cutoff) {
			if err := s.client.Del(ctx, key).Err(); err != nil {
				return deleted, fmt.Errorf("delete idle blink session: %w", err)
			}
			deleted++
		}
	}
	if err := iter.Err(); err != nil {
		return deleted, fmt.Errorf("scan blink sessions: %w", err)
	}
	return deleted, nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, sessionKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("count blink sessions: %w", err)
	}
	return count, nil
}

func (s *RedisStore) load(ctx context.Context, subject string) (*liveness.Session, error) {
	raw, err := s.client.Get(ctx, sessionKey(subject)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load blink session: %w", err)
	}
	var sess liveness.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode blink session: %w", err)
	}
	return &sess, nil
}

func (s *RedisStore) save(ctx context.Context, sess *liveness.Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode blink session: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(sess.Subject), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save blink session: %w", err)
	}
	return nil
}
