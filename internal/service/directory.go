package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"ridehail/internal/audit"
	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/redis"
	"ridehail/internal/repository"
)

// NearbyDriver is a driver position returned by a radius lookup.
type NearbyDriver struct {
	DriverID   string
	Location   geo.Coordinate
	DistanceKm float64
}

// DriverDirectory owns driver positions and availability and serves the
// candidate snapshot used by matching.
type DriverDirectory struct {
	drivers   repository.DriverRepository
	locations redis.LocationStoreInterface  // optional
	cache     redis.CandidateCacheInterface // optional
	audit     *audit.Recorder
	group     singleflight.Group
}

// NewDriverDirectory creates a DriverDirectory. locations and cache may be nil.
func NewDriverDirectory(
	drivers repository.DriverRepository,
	locations redis.LocationStoreInterface,
	cache redis.CandidateCacheInterface,
	recorder *audit.Recorder,
) *DriverDirectory {
	return &DriverDirectory{
		drivers:   drivers,
		locations: locations,
		cache:     cache,
		audit:     recorder,
	}
}

// UpsertLocation records the calling driver's position. Last write wins.
func (d *DriverDirectory) UpsertLocation(ctx context.Context, caller Caller, loc geo.Coordinate) error {
	if err := caller.requireRole(domain.RoleDriver, "update driver location"); err != nil {
		return err
	}
	if err := loc.Validate(); err != nil {
		return invalid("location", err.Error())
	}

	driver, err := d.drivers.GetByID(ctx, caller.ID)
	if err != nil {
		return d.driverErr(err, caller.ID)
	}
	if err := d.drivers.UpdateLocation(ctx, caller.ID, loc); err != nil {
		return d.driverErr(err, caller.ID)
	}

	if d.locations != nil && driver.Active {
		if err := d.locations.UpdateLocation(ctx, caller.ID, loc); err != nil {
			zap.L().Warn("failed to mirror driver location",
				zap.String("driver_id", caller.ID),
				zap.Error(err),
			)
		}
	}
	d.Invalidate(ctx)

	d.audit.Emit(ctx, caller.ID, audit.ActionLocationUpdated,
		fmt.Sprintf("lat=%.6f, lng=%.6f", loc.Lat, loc.Lng))
	return nil
}

// SetAvailability lets an admin approve or suspend a driver.
func (d *DriverDirectory) SetAvailability(ctx context.Context, caller Caller, driverID string, active bool) error {
	if !caller.IsAdmin() {
		return forbidden("change driver availability")
	}
	return d.setActive(ctx, caller, driverID, active)
}

func (d *DriverDirectory) setActive(ctx context.Context, caller Caller, driverID string, active bool) error {
	driver, err := d.drivers.GetByID(ctx, driverID)
	if err != nil {
		return d.driverErr(err, driverID)
	}
	if err := d.drivers.SetActive(ctx, driverID, active); err != nil {
		return d.driverErr(err, driverID)
	}

	if d.locations != nil {
		var mirrorErr error
		switch {
		case !active:
			mirrorErr = d.locations.RemoveLocation(ctx, driverID)
		case driver.Located():
			mirrorErr = d.locations.UpdateLocation(ctx, driverID, *driver.Location)
		}
		if mirrorErr != nil {
			zap.L().Warn("failed to update driver geo index",
				zap.String("driver_id", driverID),
				zap.Error(mirrorErr),
			)
		}
	}
	d.Invalidate(ctx)

	d.audit.Emit(ctx, caller.ID, audit.ActionAvailabilityChanged,
		fmt.Sprintf("driver_id=%s, active=%t", driverID, active))
	return nil
}

// ListCandidates returns active, located drivers in registration order.
// Concurrent loads share one store read.
func (d *DriverDirectory) ListCandidates(ctx context.Context) ([]*domain.Driver, error) {
	if d.cache != nil {
		cached, ok, err := d.cache.GetCandidates(ctx)
		if err != nil {
			zap.L().Warn("candidate cache read failed", zap.Error(err))
		} else if ok {
			return fromCache(cached), nil
		}
	}

	v, err, _ := d.group.Do("candidates", func() (any, error) {
		drivers, err := d.drivers.ListCandidates(ctx)
		if err != nil {
			return nil, err
		}
		if d.cache != nil {
			if err := d.cache.SetCandidates(ctx, toCache(drivers)); err != nil {
				zap.L().Warn("candidate cache write failed", zap.Error(err))
			}
		}
		return drivers, nil
	})
	if err != nil {
		return nil, err
	}

	shared := v.([]*domain.Driver)
	out := make([]*domain.Driver, len(shared))
	for i, drv := range shared {
		c := *drv
		out[i] = &c
	}
	return out, nil
}

// Nearby returns drivers within radiusKm of center, nearest first.
func (d *DriverDirectory) Nearby(ctx context.Context, center geo.Coordinate, radiusKm float64) ([]NearbyDriver, error) {
	if err := center.Validate(); err != nil {
		return nil, invalid("location", err.Error())
	}
	if radiusKm <= 0 {
		return nil, invalid("radius_km", "must be positive")
	}

	if d.locations != nil {
		found, err := d.locations.FindNearbyDrivers(ctx, center, radiusKm, 0)
		if err == nil {
			out := make([]NearbyDriver, 0, len(found))
			for _, f := range found {
				out = append(out, NearbyDriver{DriverID: f.DriverID, Location: f.Location, DistanceKm: f.DistanceKm})
			}
			return out, nil
		}
		zap.L().Warn("geo radius lookup failed, scanning candidates", zap.Error(err))
	}

	candidates, err := d.ListCandidates(ctx)
	if err != nil {
		return nil, err
	}
	var out []NearbyDriver
	for _, drv := range rankCandidates(center, candidates, true) {
		km := geo.DistanceKm(center, *drv.Location)
		if km > radiusKm {
			break
		}
		out = append(out, NearbyDriver{DriverID: drv.ID, Location: *drv.Location, DistanceKm: km})
	}
	return out, nil
}

// Invalidate drops the shared candidate snapshot.
func (d *DriverDirectory) Invalidate(ctx context.Context) {
	if d.cache == nil {
		return
	}
	if err := d.cache.InvalidateCandidates(ctx); err != nil {
		zap.L().Warn("candidate cache invalidation failed", zap.Error(err))
	}
}

func (d *DriverDirectory) driverErr(err error, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("driver", id)
	}
	return err
}

func toCache(drivers []*domain.Driver) []redis.CachedDriver {
	out := make([]redis.CachedDriver, 0, len(drivers))
	for _, drv := range drivers {
		out = append(out, redis.CachedDriver{
			ID:      drv.ID,
			Seq:     drv.Seq,
			Lat:     drv.Location.Lat,
			Lng:     drv.Location.Lng,
			Engaged: drv.Engaged,
		})
	}
	return out
}

func fromCache(cached []redis.CachedDriver) []*domain.Driver {
	out := make([]*domain.Driver, 0, len(cached))
	for _, c := range cached {
		out = append(out, &domain.Driver{
			ID:       c.ID,
			Seq:      c.Seq,
			Location: &geo.Coordinate{Lat: c.Lat, Lng: c.Lng},
			Active:   true,
			Engaged:  c.Engaged,
		})
	}
	return out
}
