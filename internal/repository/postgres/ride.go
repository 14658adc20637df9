package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

const rideColumns = `id, passenger_id, driver_id, pickup::geometry, pickup_label, drop_location::geometry, drop_label,
	fare, status, scheduled_at, created_at, updated_at, cancelled_at, cancel_reason`

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	pickup, err := encodePoint(ride.Pickup)
	if err != nil {
		return err
	}
	drop, err := encodePoint(ride.Drop)
	if err != nil {
		return err
	}

	now := time.Now()
	if ride.CreatedAt.IsZero() {
		ride.CreatedAt = now
	}
	ride.UpdatedAt = now

	query := `
		INSERT INTO rides (id, passenger_id, driver_id, pickup, pickup_label, drop_location, drop_label,
			fare, status, scheduled_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4::geometry::geography, $5, $6::geometry::geography, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.q.ExecContext(ctx, query,
		ride.ID,
		ride.PassengerID,
		nullString(ride.DriverID),
		pickup,
		ride.PickupLabel,
		drop,
		ride.DropLabel,
		nullFloat(ride.Fare),
		ride.Status,
		nullTime(ride.ScheduledAt),
		ride.CreatedAt,
		ride.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return eris.Wrap(err, "postgres: create ride")
	}
	return nil
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: get ride")
	}
	return ride, nil
}

// ListByPassenger returns a passenger's rides, newest first.
func (r *RideRepository) ListByPassenger(ctx context.Context, passengerID string) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE passenger_id = $1 ORDER BY created_at DESC, id DESC`

	rows, err := r.q.QueryContext(ctx, query, passengerID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rides")
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: list rides")
		}
		rides = append(rides, ride)
	}
	return rides, eris.Wrap(rows.Err(), "postgres: list rides")
}

// UpdateStatus writes the ride's mutable fields if the stored status still
// equals expected.
func (r *RideRepository) UpdateStatus(ctx context.Context, ride *domain.Ride, expected domain.RideStatus) error {
	ride.UpdatedAt = time.Now()

	var cancelledAt sql.NullTime
	if !ride.CancelledAt.IsZero() {
		cancelledAt = sql.NullTime{Time: ride.CancelledAt, Valid: true}
	}

	query := `
		UPDATE rides
		SET status = $1, driver_id = $2, fare = $3, cancelled_at = $4, cancel_reason = $5, updated_at = $6
		WHERE id = $7 AND status = $8
	`
	result, err := r.q.ExecContext(ctx, query,
		ride.Status,
		nullString(ride.DriverID),
		nullFloat(ride.Fare),
		cancelledAt,
		nullString(ride.CancelReason),
		ride.UpdatedAt,
		ride.ID,
		expected,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update ride status")
	}
	if err := affectedOne(result, repository.ErrConflict); !errors.Is(err, repository.ErrConflict) {
		return err
	}
	return r.conflictOrMissing(ctx, ride.ID)
}

// conflictOrMissing tells a lost compare-and-set apart from an unknown ride.
func (r *RideRepository) conflictOrMissing(ctx context.Context, id string) error {
	var exists bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return eris.Wrap(err, "postgres: check ride")
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrConflict
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var driverID, pickup, drop, cancelReason sql.NullString
	var fare sql.NullFloat64
	var scheduledAt, cancelledAt sql.NullTime

	err := row.Scan(
		&ride.ID,
		&ride.PassengerID,
		&driverID,
		&pickup,
		&ride.PickupLabel,
		&drop,
		&ride.DropLabel,
		&fare,
		&ride.Status,
		&scheduledAt,
		&ride.CreatedAt,
		&ride.UpdatedAt,
		&cancelledAt,
		&cancelReason,
	)
	if err != nil {
		return nil, err
	}

	p, err := decodePoint(pickup)
	if err != nil {
		return nil, err
	}
	if p != nil {
		ride.Pickup = *p
	}
	d, err := decodePoint(drop)
	if err != nil {
		return nil, err
	}
	if d != nil {
		ride.Drop = *d
	}

	ride.DriverID = driverID.String
	ride.CancelReason = cancelReason.String
	if fare.Valid {
		f := fare.Float64
		ride.Fare = &f
	}
	if scheduledAt.Valid {
		t := scheduledAt.Time
		ride.ScheduledAt = &t
	}
	if cancelledAt.Valid {
		ride.CancelledAt = cancelledAt.Time
	}
	return &ride, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
