package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trackscan/internal/classifier"
	"trackscan/internal/config"
	"trackscan/internal/job"
)

var ErrJobNotFound = errors.New("job not found")

// Result states stored alongside each aggregate.
const (
	StateRunning  = "running"
	StateComplete = "complete"
	StateFailed   = "failed"
)

const storeTimeout = 2 * time.Second

// kv is the subset of the Redis client the store needs.
type kv interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// StoredResult is the JSON document kept under job:<id>.
type StoredResult struct {
	State string `json:"state"`
	job.Aggregate
}

// ResultStore keeps job results in Redis with a TTL.
type ResultStore struct {
	client kv
	ttl    time.Duration
}

// NewRedisClient connects and pings the configured server.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewResultStore stores results in client. A zero ttl keeps them forever.
func NewResultStore(client kv, ttl time.Duration) *ResultStore {
	return &ResultStore{client: client, ttl: ttl}
}

func resultKey(jobID string) string { return fmt.Sprintf("job:%s", jobID) }

// Save writes r under its job ID.
func (s *ResultStore) Save(ctx context.Context, r *StoredResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	if err := s.client.Set(ctx, resultKey(r.JobID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store result for job %s: %w", r.JobID, err)
	}
	return nil
}

// Load returns the stored result for jobID or ErrJobNotFound.
func (s *ResultStore) Load(ctx context.Context, jobID string) (*StoredResult, error) {
	data, err := s.client.Get(ctx, resultKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
		}
		return nil, fmt.Errorf("failed to load result for job %s: %w", jobID, err)
	}
	var r StoredResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("corrupt result for job %s: %w", jobID, err)
	}
	return &r, nil
}

// RedisSink records each job in a ResultStore: a running entry when the
// job starts and the final aggregate when it finishes.
type RedisSink struct {
	store  *ResultStore
	roster []classifier.ID

	mu  sync.Mutex
	cur *StoredResult
}

// NewRedisSink writes to store. roster lists the classifiers expected to
// answer; absent ones are reported as missing.
func NewRedisSink(store *ResultStore, roster []classifier.ID) *RedisSink {
	return &RedisSink{store: store, roster: roster}
}

func (s *RedisSink) save(r *StoredResult) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := s.store.Save(ctx, r); err != nil {
		logger.Warnf("redis: %v", err)
	}
}

func (s *RedisSink) OnJobStarted(jobID string) {
	s.mu.Lock()
	s.cur = &StoredResult{
		State:     StateRunning,
		Aggregate: job.Aggregate{JobID: jobID, StartedAt: time.Now().UTC()},
	}
	r := *s.cur
	s.mu.Unlock()
	s.save(&r)
}

func (s *RedisSink) OnPredictionsUpdated(jobID string, predictions map[classifier.ID]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur == nil || s.cur.JobID != jobID {
		return
	}
	s.cur.Predictions = predictions
	s.cur.Missing = nil
	for _, id := range s.roster {
		if _, ok := predictions[id]; !ok && !slices.Contains(s.cur.Missing, id) {
			s.cur.Missing = append(s.cur.Missing, id)
		}
	}
}

func (s *RedisSink) OnTonalProfileUpdated(jobID string, t job.Tonal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cur != nil && s.cur.JobID == jobID {
		s.cur.Tonal = t
	}
}

func (s *RedisSink) OnJobFinished(jobID string, success bool, err error) {
	s.mu.Lock()
	r := s.cur
	s.cur = nil
	s.mu.Unlock()
	if r == nil || r.JobID != jobID {
		return
	}
	r.Success = success
	r.State = StateComplete
	if !success {
		r.State = StateFailed
		if err != nil {
			r.Error = err.Error()
		}
	}
	r.Duration = time.Since(r.StartedAt)
	s.save(r)
}

var _ job.Sink = (*RedisSink)(nil)
