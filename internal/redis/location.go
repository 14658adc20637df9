package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"

	"ridehail/internal/geo"
)

const driverLocationKey = "drivers:locations"

// DriverLocation is a driver's indexed position and its distance from the
// query center.
type DriverLocation struct {
	DriverID   string
	Location   geo.Coordinate
	DistanceKm float64
}

// LocationStore mirrors driver positions into a Redis GEO set.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateLocation stores a driver's location using GEOADD.
func (s *LocationStore) UpdateLocation(ctx context.Context, driverID string, loc geo.Coordinate) error {
	err := s.client.GeoAdd(ctx, driverLocationKey, &redis.GeoLocation{
		Name:      driverID,
		Longitude: loc.Lng,
		Latitude:  loc.Lat,
	}).Err()
	return eris.Wrap(err, "redis: geoadd")
}

// FindNearbyDrivers returns indexed drivers within radiusKm of center,
// nearest first. A limit of zero returns all of them.
func (s *LocationStore) FindNearbyDrivers(ctx context.Context, center geo.Coordinate, radiusKm float64, limit int) ([]DriverLocation, error) {
	results, err := s.client.GeoRadius(ctx, driverLocationKey, center.Lng, center.Lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Count:     limit,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, eris.Wrap(err, "redis: georadius")
	}

	locations := make([]DriverLocation, 0, len(results))
	for _, r := range results {
		locations = append(locations, DriverLocation{
			DriverID:   r.Name,
			Location:   geo.Coordinate{Lat: r.Latitude, Lng: r.Longitude},
			DistanceKm: r.Dist,
		})
	}
	return locations, nil
}

// RemoveLocation removes a driver from the geo index.
func (s *LocationStore) RemoveLocation(ctx context.Context, driverID string) error {
	return eris.Wrap(s.client.ZRem(ctx, driverLocationKey, driverID).Err(), "redis: zrem")
}
