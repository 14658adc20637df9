package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// DefaultCandidateTTL is used when NewCacheStore gets no positive TTL.
const DefaultCandidateTTL = 2 * time.Second

const (
	candidatesKey     = "cache:drivers:candidates"
	responseKeyPrefix = "idempotency:"
)

// CachedDriver is the cached form of a matching candidate.
type CachedDriver struct {
	ID      string  `json:"id"`
	Seq     int64   `json:"seq"`
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Engaged bool    `json:"engaged"`
}

// CacheStore handles snapshot and response caching in Redis.
type CacheStore struct {
	client       *redis.Client
	candidateTTL time.Duration
}

// NewCacheStore creates a new CacheStore. candidateTTL bounds how stale a
// shared candidate snapshot may get; assignment re-checks the driver row,
// so staleness only costs a retry.
func NewCacheStore(client *redis.Client, candidateTTL time.Duration) *CacheStore {
	if candidateTTL <= 0 {
		candidateTTL = DefaultCandidateTTL
	}
	return &CacheStore{client: client, candidateTTL: candidateTTL}
}

// CandidateTTL returns the snapshot expiry.
func (s *CacheStore) CandidateTTL() time.Duration {
	return s.candidateTTL
}

// GetCandidates returns the cached candidate snapshot. ok is false on a miss.
func (s *CacheStore) GetCandidates(ctx context.Context) ([]CachedDriver, bool, error) {
	data, err := s.client.Get(ctx, candidatesKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "redis: get candidates")
	}

	var drivers []CachedDriver
	if err := json.Unmarshal(data, &drivers); err != nil {
		return nil, false, eris.Wrap(err, "redis: decode candidates")
	}
	return drivers, true, nil
}

// SetCandidates stores the candidate snapshot.
func (s *CacheStore) SetCandidates(ctx context.Context, drivers []CachedDriver) error {
	data, err := json.Marshal(drivers)
	if err != nil {
		return eris.Wrap(err, "redis: encode candidates")
	}
	return eris.Wrap(s.client.Set(ctx, candidatesKey, data, s.candidateTTL).Err(), "redis: set candidates")
}

// InvalidateCandidates drops the snapshot after a driver write.
func (s *CacheStore) InvalidateCandidates(ctx context.Context) error {
	return eris.Wrap(s.client.Del(ctx, candidatesKey).Err(), "redis: invalidate candidates")
}

// GetResponse retrieves a stored response body.
func (s *CacheStore) GetResponse(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, responseKeyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, eris.Wrap(err, "redis: get response")
	}
	return data, true, nil
}

// SetResponse stores a response body for ttl.
func (s *CacheStore) SetResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return eris.Wrap(s.client.Set(ctx, responseKeyPrefix+key, data, ttl).Err(), "redis: set response")
}
