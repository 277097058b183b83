package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirubashankar/tools-api/internal/model"
)

// Store persists job records. Implementations must tolerate concurrent
// readers and writers; a Read of an absent id returns (nil, nil).
type Store interface {
	Read(ctx context.Context, id string) (*model.Job, error)
	Write(ctx context.Context, id string, job *model.Job) error
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

const jobRetention = 24 * time.Hour

// RedisStore keeps job records as JSON under job:<id>. Because the record
// lives in Redis rather than process memory, a poll request may land on any
// server process behind the load balancer and still see the worker's updates.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func jobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}

func (s *RedisStore) Read(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *RedisStore) Write(ctx context.Context, id string, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, jobKey(id), data, jobRetention).Err()
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.rdb.Del(ctx, jobKey(id)).Err()
}

func (s *RedisStore) Exists(ctx context.Context, id string) (bool, error) {
	n, err := s.rdb.Exists(ctx, jobKey(id)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MemoryStore is a mutex-guarded map. It satisfies the same contract as
// RedisStore only when every worker and handler runs in this one process;
// it exists for tests and single-process deployments.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]model.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]model.Job)}
}

func (s *MemoryStore) Read(_ context.Context, id string) (*model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (s *MemoryStore) Write(_ context.Context, id string, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id] = *job
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

func (s *MemoryStore) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.jobs[id]
	return ok, nil
}
