package jobstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/maauso/autoedit/internal/job"
)

// Compile-time check that RedisStore implements job.Store.
var _ job.Store = (*RedisStore)(nil)

// RedisConfig holds the connection settings for RedisStore.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Prefix namespaces every key. Defaults to "autoedit".
	Prefix string
}

// RedisStore persists each job as a JSON string and keeps one sorted set per
// status, scored by creation time, for oldest-first queries. Transactions use
// WATCH on the job key and retry when another client wrote it first.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("jobstore: ping redis %s: %w", cfg.Addr, err)
	}
	return NewRedisStoreFromClient(rdb, cfg.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "autoedit"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) jobKey(id string) string {
	return s.prefix + ":job:" + id
}

func (s *RedisStore) statusKey(status job.Status) string {
	return s.prefix + ":status:" + string(status)
}

func createdScore(j *job.Job) float64 {
	return float64(j.CreatedAt.UnixMilli())
}

// Create stores a new job and indexes it by status.
func (s *RedisStore) Create(ctx context.Context, j *job.Job) error {
	data, err := encode(j)
	if err != nil {
		return err
	}
	key := s.jobKey(j.ID)

	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return job.ErrJobExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.ZAdd(ctx, s.statusKey(j.Status), redis.Z{Score: createdScore(j), Member: j.ID})
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return job.ErrJobExists
	}
	if err != nil && !errors.Is(err, job.ErrJobExists) {
		return fmt.Errorf("jobstore: create job %s: %w", j.ID, err)
	}
	return err
}

// Get retrieves a job by ID.
func (s *RedisStore) Get(ctx context.Context, id string) (*job.Job, error) {
	data, err := s.rdb.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, job.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("jobstore: get job %s: %w", id, err)
	}
	return decode(data)
}

// Transact applies fn's patch with optimistic locking on the job key.
func (s *RedisStore) Transact(ctx context.Context, id string, fn job.TxFunc) (*job.Job, error) {
	key := s.jobKey(id)

	for attempt := 0; attempt < maxOptimisticRetries; attempt++ {
		var out *job.Job
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				return job.ErrJobNotFound
			}
			if err != nil {
				return err
			}
			cur, err := decode(data)
			if err != nil {
				return err
			}
			next, err := job.Mutate(cur, fn, now())
			if err != nil {
				return err
			}
			enc, err := encode(next)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, enc, 0)
				if next.Status != cur.Status {
					pipe.ZRem(ctx, s.statusKey(cur.Status), id)
					pipe.ZAdd(ctx, s.statusKey(next.Status), redis.Z{Score: createdScore(next), Member: id})
				}
				return nil
			})
			if err != nil {
				return err
			}
			out = next
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: job %s", ErrContention, id)
}

// Merge applies patch with optimistic locking.
func (s *RedisStore) Merge(ctx context.Context, id string, patch job.Patch) error {
	_, err := s.Transact(ctx, id, patchFunc(patch))
	return err
}

// QueryOldestWithStatus returns job IDs with the given status, oldest first.
func (s *RedisStore) QueryOldestWithStatus(ctx context.Context, status job.Status, limit int) ([]string, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	ids, err := s.rdb.ZRange(ctx, s.statusKey(status), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("jobstore: query %s jobs: %w", status, err)
	}
	return ids, nil
}
