package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

const defaultDriverLockTTL = 5 * time.Second

// FindNearest returns the idle candidate closest to pickup, or nil. Ties go
// to the candidate that appears first, which is registration order.
func FindNearest(pickup geo.Coordinate, candidates []*domain.Driver) *domain.Driver {
	var best *domain.Driver
	bestKm := 0.0
	for _, d := range candidates {
		if d.Engaged || !d.Located() {
			continue
		}
		km := geo.DistanceKm(pickup, *d.Location)
		if best == nil || km < bestKm {
			best = d
			bestKm = km
		}
	}
	return best
}

// rankCandidates orders located candidates by distance from pickup, keeping
// the input order for ties. Engaged drivers are dropped unless keepEngaged.
// Used for listings; Assign walks candidates with FindNearest.
func rankCandidates(pickup geo.Coordinate, candidates []*domain.Driver, keepEngaged bool) []*domain.Driver {
	type ranked struct {
		d  *domain.Driver
		km float64
	}
	list := make([]ranked, 0, len(candidates))
	for _, d := range candidates {
		if !d.Located() || (d.Engaged && !keepEngaged) {
			continue
		}
		list = append(list, ranked{d: d, km: geo.DistanceKm(pickup, *d.Location)})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].km < list[j].km })

	out := make([]*domain.Driver, len(list))
	for i, r := range list {
		out[i] = r.d
	}
	return out
}

// DriverMatcher binds the nearest idle driver to a new ride.
type DriverMatcher struct {
	directory *DriverDirectory
	assigner  repository.Assigner
	locks     redis.LockStoreInterface // optional
	lockTTL   time.Duration
}

// NewDriverMatcher creates a DriverMatcher. locks may be nil.
func NewDriverMatcher(directory *DriverDirectory, assigner repository.Assigner, locks redis.LockStoreInterface, lockTTL time.Duration) *DriverMatcher {
	if lockTTL <= 0 {
		lockTTL = defaultDriverLockTTL
	}
	return &DriverMatcher{
		directory: directory,
		assigner:  assigner,
		locks:     locks,
		lockTTL:   lockTTL,
	}
}

// Assign persists ride as assigned to the nearest driver that can still be
// claimed, picking each next try with FindNearest. Returns
// ErrNoDriverAvailable when none can be; the ride is then left requested
// without a driver and is not persisted.
func (m *DriverMatcher) Assign(ctx context.Context, ride *domain.Ride) (*domain.Driver, error) {
	candidates, err := m.directory.ListCandidates(ctx)
	if err != nil {
		return nil, err
	}

	remaining := append([]*domain.Driver(nil), candidates...)
	for {
		d := FindNearest(ride.Pickup, remaining)
		if d == nil {
			break
		}
		remaining = without(remaining, d)

		ok, err := m.tryAssign(ctx, ride, d.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			m.directory.Invalidate(ctx)
			return d, nil
		}
	}

	ride.DriverID = ""
	ride.Status = domain.RideStatusRequested
	return nil, ErrNoDriverAvailable
}

// without returns drivers minus d, keeping the order of the rest.
func without(drivers []*domain.Driver, d *domain.Driver) []*domain.Driver {
	for i, c := range drivers {
		if c == d {
			return append(drivers[:i], drivers[i+1:]...)
		}
	}
	return drivers
}

func (m *DriverMatcher) tryAssign(ctx context.Context, ride *domain.Ride, driverID string) (bool, error) {
	if m.locks != nil {
		token, locked, err := m.locks.AcquireDriverLock(ctx, driverID, m.lockTTL)
		switch {
		case err != nil:
			// The store-level claim is still atomic without the lock.
			zap.L().Warn("driver lock unavailable", zap.String("driver_id", driverID), zap.Error(err))
		case !locked:
			return false, nil
		default:
			defer func() {
				if err := m.locks.ReleaseDriverLock(ctx, driverID, token); err != nil {
					zap.L().Warn("failed to release driver lock", zap.String("driver_id", driverID), zap.Error(err))
				}
			}()
		}
	}

	err := m.assigner.AssignDriver(ctx, ride, driverID)
	if err == nil {
		return true, nil
	}

	ride.DriverID = ""
	ride.Status = domain.RideStatusRequested
	if errors.Is(err, repository.ErrConflict) {
		zap.L().Debug("driver claimed elsewhere", zap.String("driver_id", driverID), zap.String("ride_id", ride.ID))
		return false, nil
	}
	return false, err
}
