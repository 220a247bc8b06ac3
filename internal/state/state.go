package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
)

// RunRecord summarises the most recent ETL run
type RunRecord struct {
	RunID      string    `json:"run_id"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Readings   int       `json:"readings"`
	Aggregates int       `json:"aggregates"`
	Error      string    `json:"error,omitempty"`
}

// releaseScript deletes the lock only if it is still held by the caller
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Store keeps job coordination state in Redis
type Store struct {
	redis   *redis.Client
	prefix  string
	lockTTL time.Duration
}

// NewStore creates a new state store. Keys are namespaced under prefix.
func NewStore(redisClient *redis.Client, prefix string, lockTTL time.Duration) *Store {
	return &Store{redis: redisClient, prefix: prefix, lockTTL: lockTTL}
}

func (s *Store) lockKey() string    { return fmt.Sprintf("%s:lock", s.prefix) }
func (s *Store) lastRunKey() string { return fmt.Sprintf("%s:last_run", s.prefix) }

// Acquire takes the run lock. It returns false if another run holds it.
func (s *Store) Acquire(ctx context.Context, token string) (bool, error) {
	ok, err := s.redis.SetNX(ctx, s.lockKey(), token, s.lockTTL).Result()
	if err != nil {
		return false, errors.Wrap(err, "failed to acquire run lock")
	}
	return ok, nil
}

// Release frees the run lock if token still owns it
func (s *Store) Release(ctx context.Context, token string) error {
	if err := releaseScript.Run(ctx, s.redis, []string{s.lockKey()}, token).Err(); err != nil {
		return errors.Wrap(err, "failed to release run lock")
	}
	return nil
}

// SaveRun stores the record of a finished run
func (s *Store) SaveRun(ctx context.Context, rec *RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to marshal run record")
	}

	if err := s.redis.Set(ctx, s.lastRunKey(), data, 0).Err(); err != nil {
		return errors.Wrap(err, "failed to save run record")
	}
	return nil
}

// LastRun returns the most recent run record, or nil if none was saved
func (s *Store) LastRun(ctx context.Context) (*RunRecord, error) {
	data, err := s.redis.Get(ctx, s.lastRunKey()).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get run record")
	}

	var rec RunRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal run record")
	}
	return &rec, nil
}
