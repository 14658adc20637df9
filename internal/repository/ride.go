package repository

import (
	"context"

	"ridehail/internal/domain"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride without a driver.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// ListByPassenger returns a passenger's rides, newest first.
	ListByPassenger(ctx context.Context, passengerID string) ([]*domain.Ride, error)

	// UpdateStatus writes ride's status, driver, fare and cancellation
	// fields only if the stored status still equals expected.
	// Returns ErrConflict when it does not.
	UpdateStatus(ctx context.Context, ride *domain.Ride, expected domain.RideStatus) error
}

// Assigner binds a driver to a new ride atomically.
type Assigner interface {
	// AssignDriver marks the driver engaged and persists ride as assigned to
	// it in one unit. Returns ErrConflict if the driver is no longer an
	// active, idle driver.
	AssignDriver(ctx context.Context, ride *domain.Ride, driverID string) error
}

// Settler completes a ride and records its payment atomically.
type Settler interface {
	// Settle sets the ride completed with the payment amount as fare,
	// stores the payment and releases the driver. Returns ErrConflict if
	// the ride is no longer in expected status or already has a fare.
	Settle(ctx context.Context, ride *domain.Ride, payment *domain.Payment, expected domain.RideStatus) error
}

// Canceller cancels a ride and frees its driver atomically.
type Canceller interface {
	// Cancel writes ride, already marked cancelled with its driver cleared,
	// and releases driverID in the same unit. An empty driverID skips the
	// release. Returns ErrConflict if the stored status is no longer
	// expected; nothing is written when any step fails.
	Cancel(ctx context.Context, ride *domain.Ride, driverID string, expected domain.RideStatus) error
}
