package redisstore

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store caches serialized status views for the hot polling path. Misses and
// redis failures both fall through to the job store, so it is safe to run
// without redis entirely.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func New(addr, password string, db int, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &Store{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		ttl: ttl,
	}
}

func key(jobID string) string { return "jobstatus:" + jobID }

func (s *Store) Get(ctx context.Context, jobID string) ([]byte, bool) {
	b, err := s.client.Get(ctx, key(jobID)).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (s *Store) Set(ctx context.Context, jobID string, view []byte) {
	_ = s.client.Set(ctx, key(jobID), view, s.ttl).Err()
}

func (s *Store) Del(ctx context.Context, jobID string) {
	_ = s.client.Del(ctx, key(jobID)).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
