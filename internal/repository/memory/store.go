// Package memory is an in-process implementation of the repository
// interfaces. All repositories returned by one Store share a single lock, so
// multi-entity writes such as AssignDriver are atomic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/repository"
)

// Store holds all entities in memory.
type Store struct {
	mu          sync.RWMutex
	users       map[string]*domain.User
	drivers     map[string]*domain.Driver
	driverOrder []string
	seq         int64
	rides       map[string]*domain.Ride
	payments    map[string]*domain.Payment // by ride ID
	now         func() time.Time
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		users:    make(map[string]*domain.User),
		drivers:  make(map[string]*domain.Driver),
		rides:    make(map[string]*domain.Ride),
		payments: make(map[string]*domain.Payment),
		now:      time.Now,
	}
}

// Drivers returns the driver repository view.
func (s *Store) Drivers() *DriverRepository { return &DriverRepository{s: s} }

// Rides returns the ride repository view. It also implements
// repository.Assigner, repository.Settler and repository.Canceller.
func (s *Store) Rides() *RideRepository { return &RideRepository{s: s} }

// Payments returns the payment repository view.
func (s *Store) Payments() *PaymentRepository { return &PaymentRepository{s: s} }

// Users returns the user repository view.
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Reports returns the report repository view.
func (s *Store) Reports() *ReportRepository { return &ReportRepository{s: s} }

var (
	_ repository.DriverRepository  = (*DriverRepository)(nil)
	_ repository.RideRepository    = (*RideRepository)(nil)
	_ repository.Assigner          = (*RideRepository)(nil)
	_ repository.Settler           = (*RideRepository)(nil)
	_ repository.Canceller         = (*RideRepository)(nil)
	_ repository.PaymentRepository = (*PaymentRepository)(nil)
	_ repository.UserRepository    = (*UserRepository)(nil)
	_ repository.ReportRepository  = (*ReportRepository)(nil)
)

func cloneDriver(d *domain.Driver) *domain.Driver {
	c := *d
	if d.Location != nil {
		loc := *d.Location
		c.Location = &loc
	}
	return &c
}

// ──────────────────────────────────────────────
// DRIVERS
// ──────────────────────────────────────────────

// DriverRepository is the in-memory repository.DriverRepository.
type DriverRepository struct {
	s *Store
}

// Create registers a new driver at the end of the registration order.
func (r *DriverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.drivers[driver.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.seq++
	driver.Seq = r.s.seq
	if driver.CreatedAt.IsZero() {
		driver.CreatedAt = r.s.now()
	}
	r.s.drivers[driver.ID] = cloneDriver(driver)
	r.s.driverOrder = append(r.s.driverOrder, driver.ID)
	return nil
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	d, ok := r.s.drivers[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneDriver(d), nil
}

// ListCandidates returns active, located drivers in registration order.
func (r *DriverRepository) ListCandidates(ctx context.Context) ([]*domain.Driver, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Driver
	for _, id := range r.s.driverOrder {
		if d := r.s.drivers[id]; d.Candidate() {
			out = append(out, cloneDriver(d))
		}
	}
	return out, nil
}

// GetAll retrieves all drivers in registration order.
func (r *DriverRepository) GetAll(ctx context.Context) ([]*domain.Driver, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*domain.Driver, 0, len(r.s.driverOrder))
	for _, id := range r.s.driverOrder {
		out = append(out, cloneDriver(r.s.drivers[id]))
	}
	return out, nil
}

// UpdateLocation overwrites a driver's position.
func (r *DriverRepository) UpdateLocation(ctx context.Context, id string, loc geo.Coordinate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.Location = &loc
	d.LocationUpdatedAt = r.s.now()
	return nil
}

// SetActive flips the admin availability flag.
func (r *DriverRepository) SetActive(ctx context.Context, id string, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.Active = active
	return nil
}

// Release clears the engaged flag.
func (r *DriverRepository) Release(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.drivers[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.Engaged = false
	return nil
}

// AddRating adds rating to the driver's running total.
func (r *DriverRepository) AddRating(ctx context.Context, id string, rating int) (int, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.drivers[id]
	if !ok {
		return 0, 0, repository.ErrNotFound
	}
	d.RatingTotal += rating
	d.RatingCount++
	return d.RatingTotal, d.RatingCount, nil
}

// ──────────────────────────────────────────────
// RIDES
// ──────────────────────────────────────────────

// RideRepository is the in-memory repository.RideRepository.
type RideRepository struct {
	s *Store
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.insertLocked(ride)
}

func (r *RideRepository) insertLocked(ride *domain.Ride) error {
	if _, ok := r.s.rides[ride.ID]; ok {
		return repository.ErrDuplicate
	}
	now := r.s.now()
	if ride.CreatedAt.IsZero() {
		ride.CreatedAt = now
	}
	ride.UpdatedAt = now
	r.s.rides[ride.ID] = ride.Clone()
	return nil
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	ride, ok := r.s.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ride.Clone(), nil
}

// ListByPassenger returns a passenger's rides, newest first.
func (r *RideRepository) ListByPassenger(ctx context.Context, passengerID string) ([]*domain.Ride, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Ride
	for _, ride := range r.s.rides {
		if ride.PassengerID == passengerID {
			out = append(out, ride.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// UpdateStatus writes the ride if its stored status still equals expected.
func (r *RideRepository) UpdateStatus(ctx context.Context, ride *domain.Ride, expected domain.RideStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.rides[ride.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != expected {
		return repository.ErrConflict
	}
	ride.UpdatedAt = r.s.now()
	r.s.rides[ride.ID] = ride.Clone()
	return nil
}

// AssignDriver engages the driver and inserts the ride in one step.
func (r *RideRepository) AssignDriver(ctx context.Context, ride *domain.Ride, driverID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	d, ok := r.s.drivers[driverID]
	if !ok || !d.Candidate() || d.Engaged {
		return repository.ErrConflict
	}

	ride.DriverID = driverID
	ride.Status = domain.RideStatusAssigned
	if err := r.insertLocked(ride); err != nil {
		return err
	}
	d.Engaged = true
	return nil
}

// Settle completes the ride, records the payment and releases the driver.
func (r *RideRepository) Settle(ctx context.Context, ride *domain.Ride, payment *domain.Payment, expected domain.RideStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.rides[ride.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != expected || cur.FareFixed() {
		return repository.ErrConflict
	}
	if _, ok := r.s.payments[ride.ID]; ok {
		return repository.ErrConflict
	}

	ride.UpdatedAt = r.s.now()
	r.s.rides[ride.ID] = ride.Clone()
	p := *payment
	r.s.payments[ride.ID] = &p
	if d, ok := r.s.drivers[ride.DriverID]; ok {
		d.Engaged = false
	}
	return nil
}

// Cancel stores the cancelled ride and clears the driver's engaged flag
// under one lock.
func (r *RideRepository) Cancel(ctx context.Context, ride *domain.Ride, driverID string, expected domain.RideStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.rides[ride.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if cur.Status != expected {
		return repository.ErrConflict
	}

	var d *domain.Driver
	if driverID != "" {
		if d, ok = r.s.drivers[driverID]; !ok {
			return repository.ErrNotFound
		}
	}

	ride.UpdatedAt = r.s.now()
	r.s.rides[ride.ID] = ride.Clone()
	if d != nil {
		d.Engaged = false
	}
	return nil
}

// ──────────────────────────────────────────────
// PAYMENTS
// ──────────────────────────────────────────────

// PaymentRepository is the in-memory repository.PaymentRepository.
type PaymentRepository struct {
	s *Store
}

// GetByRideID retrieves the payment for a ride.
func (r *PaymentRepository) GetByRideID(ctx context.Context, rideID string) (*domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.payments[rideID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *p
	return &c, nil
}

// GetByIdempotencyKey retrieves a payment by key, or nil if absent.
func (r *PaymentRepository) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Payment, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.payments {
		if p.IdempotencyKey == key {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

// ──────────────────────────────────────────────
// USERS
// ──────────────────────────────────────────────

// UserRepository is the in-memory repository.UserRepository.
type UserRepository struct {
	s *Store
}

// Create adds a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[user.ID]; ok {
		return repository.ErrDuplicate
	}
	for _, u := range r.s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return repository.ErrDuplicate
		}
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = r.s.now()
	}
	u := *user
	r.s.users[user.ID] = &u
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *u
	return &c, nil
}

// GetAll retrieves all users ordered by creation time.
func (r *UserRepository) GetAll(ctx context.Context) ([]*domain.User, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make([]*domain.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SetActive activates or blocks an account.
func (r *UserRepository) SetActive(ctx context.Context, id string, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.Active = active
	return nil
}

// ──────────────────────────────────────────────
// REPORTS
// ──────────────────────────────────────────────

// ReportRepository is the in-memory repository.ReportRepository.
type ReportRepository struct {
	s *Store
}

// Summary returns system-wide counters.
func (r *ReportRepository) Summary(ctx context.Context) (*repository.Summary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var sum repository.Summary
	for _, ride := range r.s.rides {
		sum.TotalRides++
		if ride.Status == domain.RideStatusCompleted {
			sum.CompletedRides++
		}
		if ride.Fare != nil {
			sum.TotalRevenue += *ride.Fare
		}
	}
	for _, d := range r.s.drivers {
		sum.TotalDrivers++
		if d.Active {
			sum.ActiveDrivers++
		}
	}
	for _, u := range r.s.users {
		if u.Role == domain.RolePassenger {
			sum.TotalPassengers++
		}
	}
	return &sum, nil
}

// RidesPerHour returns ride counts keyed by UTC hour of creation.
func (r *ReportRepository) RidesPerHour(ctx context.Context) (map[int]int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[int]int)
	for _, ride := range r.s.rides {
		out[ride.CreatedAt.UTC().Hour()]++
	}
	return out, nil
}
