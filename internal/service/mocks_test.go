package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ridehail/internal/audit"
	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
	"ridehail/internal/repository/memory"
)

// ──────────────────────────────────────────────
// MOCK LOCATION STORE
// ──────────────────────────────────────────────

// MockLocationStore records GEO index writes in memory.
type MockLocationStore struct {
	mu        sync.RWMutex
	locations map[string]geo.Coordinate

	UpdateLocationCallCount int32
	RemoveLocationCallCount int32

	UpdateLocationError    error
	FindNearbyDriversError error
}

func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{locations: make(map[string]geo.Coordinate)}
}

func (m *MockLocationStore) UpdateLocation(ctx context.Context, driverID string, loc geo.Coordinate) error {
	atomic.AddInt32(&m.UpdateLocationCallCount, 1)
	if m.UpdateLocationError != nil {
		return m.UpdateLocationError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[driverID] = loc
	return nil
}

func (m *MockLocationStore) FindNearbyDrivers(ctx context.Context, center geo.Coordinate, radiusKm float64, limit int) ([]redis.DriverLocation, error) {
	if m.FindNearbyDriversError != nil {
		return nil, m.FindNearbyDriversError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []redis.DriverLocation
	for id, loc := range m.locations {
		if km := geo.DistanceKm(center, loc); km <= radiusKm {
			out = append(out, redis.DriverLocation{DriverID: id, Location: loc, DistanceKm: km})
		}
	}
	return out, nil
}

func (m *MockLocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	atomic.AddInt32(&m.RemoveLocationCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locations, driverID)
	return nil
}

// HasLocation checks if a driver is indexed.
func (m *MockLocationStore) HasLocation(driverID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.locations[driverID]
	return ok
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

// MockLockStore is an in-memory driver lock with expiry.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]time.Time

	AcquireCallCount int32
	ReleaseCallCount int32

	AcquireError        error
	ForceAcquireFailure bool
}

func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]time.Time)}
}

func (m *MockLockStore) AcquireDriverLock(ctx context.Context, driverID string, ttl time.Duration) (string, bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return "", false, m.AcquireError
	}
	if m.ForceAcquireFailure {
		return "", false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := redis.DriverLockKey(driverID)
	if expiry, exists := m.locks[key]; exists && time.Now().Before(expiry) {
		return "", false, nil
	}
	m.locks[key] = time.Now().Add(ttl)
	return "token-" + driverID, true, nil
}

func (m *MockLockStore) ReleaseDriverLock(ctx context.Context, driverID, token string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, redis.DriverLockKey(driverID))
	return nil
}

// IsLocked checks if a driver is locked.
func (m *MockLockStore) IsLocked(driverID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, exists := m.locks[redis.DriverLockKey(driverID)]
	return exists && time.Now().Before(expiry)
}

// ──────────────────────────────────────────────
// MOCK CANDIDATE CACHE
// ──────────────────────────────────────────────

// MockCandidateCache holds one snapshot without expiry.
type MockCandidateCache struct {
	mu       sync.Mutex
	snapshot []redis.CachedDriver
	ok       bool

	GetCallCount        int32
	SetCallCount        int32
	InvalidateCallCount int32
}

func (m *MockCandidateCache) GetCandidates(ctx context.Context) ([]redis.CachedDriver, bool, error) {
	atomic.AddInt32(&m.GetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]redis.CachedDriver(nil), m.snapshot...), m.ok, nil
}

func (m *MockCandidateCache) SetCandidates(ctx context.Context, drivers []redis.CachedDriver) error {
	atomic.AddInt32(&m.SetCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = append([]redis.CachedDriver(nil), drivers...)
	m.ok = true
	return nil
}

func (m *MockCandidateCache) InvalidateCandidates(ctx context.Context) error {
	atomic.AddInt32(&m.InvalidateCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = nil
	m.ok = false
	return nil
}

// ──────────────────────────────────────────────
// COUNTING DRIVER REPOSITORY
// ──────────────────────────────────────────────

// countingDrivers counts ListCandidates calls and can block them until
// release is closed.
type countingDrivers struct {
	repository.DriverRepository
	listCalls int32
	release   chan struct{}
}

func (c *countingDrivers) ListCandidates(ctx context.Context) ([]*domain.Driver, error) {
	atomic.AddInt32(&c.listCalls, 1)
	if c.release != nil {
		<-c.release
	}
	return c.DriverRepository.ListCandidates(ctx)
}

// ──────────────────────────────────────────────
// HARNESS
// ──────────────────────────────────────────────

type harness struct {
	store     *memory.Store
	stores    Stores
	events    *audit.MemorySink
	directory *DriverDirectory
	matcher   *DriverMatcher
	rides     *RideService
	accounts  *AccountService
	reports   *ReportService
	fares     FareCalculator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	store := memory.NewStore()
	stores := Stores{
		Drivers:   store.Drivers(),
		Rides:     store.Rides(),
		Payments:  store.Payments(),
		Users:     store.Users(),
		Reports:   store.Reports(),
		Assigner:  store.Rides(),
		Settler:   store.Rides(),
		Canceller: store.Rides(),
	}
	events := audit.NewMemorySink(100)
	recorder := audit.NewRecorder(nil, events)
	fares := NewFareCalculator(50, 12.5)

	directory := NewDriverDirectory(stores.Drivers, nil, nil, recorder)
	matcher := NewDriverMatcher(directory, stores.Assigner, nil, 0)

	return &harness{
		store:     store,
		stores:    stores,
		events:    events,
		directory: directory,
		matcher:   matcher,
		rides:     NewRideService(stores, matcher, directory, fares, recorder),
		accounts:  NewAccountService(stores.Users, stores.Drivers, directory, recorder),
		reports:   NewReportService(stores.Reports, events),
		fares:     fares,
	}
}

func (h *harness) passenger(t *testing.T, name string) Caller {
	t.Helper()
	u, err := h.accounts.Register(context.Background(), RegisterRequest{
		Name: name, Email: name + "@example.com", Role: domain.RolePassenger,
	})
	require.NoError(t, err)
	return Caller{ID: u.ID, Role: domain.RolePassenger}
}

func (h *harness) driver(t *testing.T, name string, loc *geo.Coordinate) Caller {
	t.Helper()
	u, err := h.accounts.Register(context.Background(), RegisterRequest{
		Name: name, Email: name + "@example.com", Role: domain.RoleDriver,
	})
	require.NoError(t, err)
	c := Caller{ID: u.ID, Role: domain.RoleDriver}
	if loc != nil {
		require.NoError(t, h.directory.UpsertLocation(context.Background(), c, *loc))
	}
	return c
}

func (h *harness) actions() []audit.Action {
	events, _ := h.events.Recent(context.Background(), 0)
	out := make([]audit.Action, 0, len(events))
	for i := len(events) - 1; i >= 0; i-- {
		out = append(out, events[i].Action)
	}
	return out
}

var admin = Caller{ID: "admin-1", Role: domain.RoleAdmin}

// Points on the equator; 1 degree of longitude is about 111.2 km.
func kmEast(km float64) geo.Coordinate {
	return geo.Coordinate{Lat: 0, Lng: km / 111.19492664455873}
}

func ptr[T any](v T) *T { return &v }
