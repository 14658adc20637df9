package repository

import (
	"context"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
)

// DriverRepository defines the persistence operations for drivers.
type DriverRepository interface {
	// Create registers a new driver. Seq is assigned by the store.
	Create(ctx context.Context, driver *domain.Driver) error

	// GetByID retrieves a driver by ID.
	GetByID(ctx context.Context, id string) (*domain.Driver, error)

	// ListCandidates returns active drivers with a known location,
	// in registration order.
	ListCandidates(ctx context.Context) ([]*domain.Driver, error)

	// GetAll retrieves all drivers in registration order.
	GetAll(ctx context.Context) ([]*domain.Driver, error)

	// UpdateLocation overwrites a driver's position.
	UpdateLocation(ctx context.Context, id string, loc geo.Coordinate) error

	// SetActive flips the admin availability flag.
	SetActive(ctx context.Context, id string, active bool) error

	// Release clears the engaged flag.
	Release(ctx context.Context, id string) error

	// AddRating adds rating to the running total and returns the new
	// total and count.
	AddRating(ctx context.Context, id string, rating int) (total, count int, err error)
}
