package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/repository"
)

// DriverRepository is a PostgreSQL implementation of repository.DriverRepository.
type DriverRepository struct {
	q Querier
}

// NewDriverRepository creates a new PostgreSQL driver repository.
func NewDriverRepository(db *sql.DB) *DriverRepository {
	return &DriverRepository{q: db}
}

// NewDriverRepositoryWithTx creates a driver repository using a transaction.
func NewDriverRepositoryWithTx(tx *sql.Tx) *DriverRepository {
	return &DriverRepository{q: tx}
}

const driverColumns = `id, seq, COALESCE(name, ''), COALESCE(email, ''), location::geometry, location_updated_at,
	active, engaged, rating_total, rating_count, created_at`

// Create adds a new driver; seq is assigned by the database.
func (r *DriverRepository) Create(ctx context.Context, driver *domain.Driver) error {
	query := `
		INSERT INTO drivers (id, name, email, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq
	`
	if driver.CreatedAt.IsZero() {
		driver.CreatedAt = time.Now()
	}
	err := r.q.QueryRowContext(ctx, query,
		driver.ID, driver.Name, nullString(driver.Email), driver.Active, driver.CreatedAt,
	).Scan(&driver.Seq)
	if err != nil {
		if isUniqueViolation(err) {
			return repository.ErrDuplicate
		}
		return eris.Wrap(err, "postgres: create driver")
	}
	return nil
}

// GetByID retrieves a driver by ID.
func (r *DriverRepository) GetByID(ctx context.Context, id string) (*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers WHERE id = $1`

	driver, err := scanDriver(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, eris.Wrap(err, "postgres: get driver")
	}
	return driver, nil
}

// ListCandidates returns active, located drivers in registration order.
func (r *DriverRepository) ListCandidates(ctx context.Context) ([]*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers
		WHERE active AND location IS NOT NULL
		ORDER BY seq`
	return r.list(ctx, query, "postgres: list candidates")
}

// GetAll retrieves all drivers in registration order.
func (r *DriverRepository) GetAll(ctx context.Context) ([]*domain.Driver, error) {
	query := `SELECT ` + driverColumns + ` FROM drivers ORDER BY seq`
	return r.list(ctx, query, "postgres: list drivers")
}

func (r *DriverRepository) list(ctx context.Context, query, op string) ([]*domain.Driver, error) {
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, op)
	}
	defer rows.Close()

	var drivers []*domain.Driver
	for rows.Next() {
		driver, err := scanDriver(rows)
		if err != nil {
			return nil, eris.Wrap(err, op)
		}
		drivers = append(drivers, driver)
	}
	return drivers, eris.Wrap(rows.Err(), op)
}

// UpdateLocation overwrites a driver's position.
func (r *DriverRepository) UpdateLocation(ctx context.Context, id string, loc geo.Coordinate) error {
	point, err := encodePoint(loc)
	if err != nil {
		return err
	}

	query := `UPDATE drivers SET location = $1::geometry::geography, location_updated_at = $2 WHERE id = $3`
	result, err := r.q.ExecContext(ctx, query, point, time.Now(), id)
	if err != nil {
		return eris.Wrap(err, "postgres: update driver location")
	}
	return affectedOne(result, repository.ErrNotFound)
}

// SetActive flips the admin availability flag.
func (r *DriverRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.q.ExecContext(ctx, `UPDATE drivers SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return eris.Wrap(err, "postgres: set driver active")
	}
	return affectedOne(result, repository.ErrNotFound)
}

// Engage marks an active, located, idle driver as engaged.
// Returns repository.ErrConflict when the guard does not hold.
func (r *DriverRepository) Engage(ctx context.Context, id string) error {
	query := `
		UPDATE drivers SET engaged = TRUE
		WHERE id = $1 AND active AND NOT engaged AND location IS NOT NULL
	`
	result, err := r.q.ExecContext(ctx, query, id)
	if err != nil {
		return eris.Wrap(err, "postgres: engage driver")
	}
	return affectedOne(result, repository.ErrConflict)
}

// Release clears the engaged flag.
func (r *DriverRepository) Release(ctx context.Context, id string) error {
	result, err := r.q.ExecContext(ctx, `UPDATE drivers SET engaged = FALSE WHERE id = $1`, id)
	if err != nil {
		return eris.Wrap(err, "postgres: release driver")
	}
	return affectedOne(result, repository.ErrNotFound)
}

// AddRating increments the running total and count in one statement.
func (r *DriverRepository) AddRating(ctx context.Context, id string, rating int) (int, int, error) {
	query := `
		UPDATE drivers
		SET rating_total = rating_total + $1, rating_count = rating_count + 1
		WHERE id = $2
		RETURNING rating_total, rating_count
	`
	var total, count int
	err := r.q.QueryRowContext(ctx, query, rating, id).Scan(&total, &count)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, repository.ErrNotFound
		}
		return 0, 0, eris.Wrap(err, "postgres: add rating")
	}
	return total, count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDriver(row rowScanner) (*domain.Driver, error) {
	var driver domain.Driver
	var location sql.NullString
	var locationUpdatedAt sql.NullTime

	err := row.Scan(
		&driver.ID,
		&driver.Seq,
		&driver.Name,
		&driver.Email,
		&location,
		&locationUpdatedAt,
		&driver.Active,
		&driver.Engaged,
		&driver.RatingTotal,
		&driver.RatingCount,
		&driver.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if driver.Location, err = decodePoint(location); err != nil {
		return nil, err
	}
	if locationUpdatedAt.Valid {
		driver.LocationUpdatedAt = locationUpdatedAt.Time
	}
	return &driver, nil
}
