package redis

import (
	"context"
	"time"

	"ridehail/internal/geo"
)

// LocationStoreInterface defines the driver position mirror used for
// radius lookups.
type LocationStoreInterface interface {
	UpdateLocation(ctx context.Context, driverID string, loc geo.Coordinate) error
	FindNearbyDrivers(ctx context.Context, center geo.Coordinate, radiusKm float64, limit int) ([]DriverLocation, error)
	RemoveLocation(ctx context.Context, driverID string) error
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseDriverLock(ctx context.Context, driverID, token string) error
}

// CandidateCacheInterface stores the shared candidate snapshot.
type CandidateCacheInterface interface {
	GetCandidates(ctx context.Context) ([]CachedDriver, bool, error)
	SetCandidates(ctx context.Context, drivers []CachedDriver) error
	InvalidateCandidates(ctx context.Context) error
}

// ResponseCacheInterface stores replayable HTTP responses.
type ResponseCacheInterface interface {
	GetResponse(ctx context.Context, key string) ([]byte, bool, error)
	SetResponse(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface  = (*LocationStore)(nil)
	_ LockStoreInterface      = (*LockStore)(nil)
	_ CandidateCacheInterface = (*CacheStore)(nil)
	_ ResponseCacheInterface  = (*CacheStore)(nil)
)
