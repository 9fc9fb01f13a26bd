package runstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/inferload/pkg/stats"
)

// Store keeps the latest report per run in Redis so dashboards can poll run
// outcomes without talking to the harness process.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(runID string) string {
	return "bench:run:" + runID
}

func (s *Store) Put(ctx context.Context, runID string, r stats.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(runID), data, s.ttl).Err()
}

func (s *Store) Get(ctx context.Context, runID string) (stats.Report, error) {
	val, err := s.client.Get(ctx, s.key(runID)).Result()
	if err == redis.Nil {
		return stats.Report{}, ErrNotFound
	}
	if err != nil {
		return stats.Report{}, err
	}
	var r stats.Report
	if err := json.Unmarshal([]byte(val), &r); err != nil {
		return stats.Report{}, err
	}
	return r, nil
}

var ErrNotFound = &StoreError{Message: "run not found"}

type StoreError struct {
	Message string
}

func (e *StoreError) Error() string {
	return e.Message
}
