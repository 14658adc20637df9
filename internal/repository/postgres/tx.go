package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rotisserie/eris"

	"ridehail/internal/domain"
	"ridehail/internal/repository"
)

// RideTx runs the multi-row ride writes inside a single transaction.
// It implements repository.Assigner, repository.Settler and
// repository.Canceller.
type RideTx struct {
	db *sql.DB
}

// NewRideTx creates a transactional ride writer.
func NewRideTx(db *sql.DB) *RideTx {
	return &RideTx{db: db}
}

var (
	_ repository.DriverRepository  = (*DriverRepository)(nil)
	_ repository.RideRepository    = (*RideRepository)(nil)
	_ repository.PaymentRepository = (*PaymentRepository)(nil)
	_ repository.UserRepository    = (*UserRepository)(nil)
	_ repository.ReportRepository  = (*ReportRepository)(nil)
	_ repository.Assigner          = (*RideTx)(nil)
	_ repository.Settler           = (*RideTx)(nil)
	_ repository.Canceller         = (*RideTx)(nil)
)

func (t *RideTx) run(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return eris.Wrap(err, "postgres: commit")
	}
	return nil
}

// AssignDriver engages the driver and inserts the ride as assigned. The
// conditional UPDATE on drivers serialises concurrent claims on the same row.
func (t *RideTx) AssignDriver(ctx context.Context, ride *domain.Ride, driverID string) error {
	return t.run(ctx, func(tx *sql.Tx) error {
		if err := NewDriverRepositoryWithTx(tx).Engage(ctx, driverID); err != nil {
			return err
		}

		ride.DriverID = driverID
		ride.Status = domain.RideStatusAssigned
		return NewRideRepositoryWithTx(tx).Create(ctx, ride)
	})
}

// Settle completes the ride, stores the payment and releases the driver.
func (t *RideTx) Settle(ctx context.Context, ride *domain.Ride, payment *domain.Payment, expected domain.RideStatus) error {
	return t.run(ctx, func(tx *sql.Tx) error {
		query := `
			UPDATE rides SET status = $1, fare = $2, updated_at = NOW()
			WHERE id = $3 AND status = $4 AND fare IS NULL
		`
		result, err := tx.ExecContext(ctx, query, ride.Status, nullFloat(ride.Fare), ride.ID, expected)
		if err != nil {
			return eris.Wrap(err, "postgres: settle ride")
		}
		if err := affectedOne(result, repository.ErrConflict); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return NewRideRepositoryWithTx(tx).conflictOrMissing(ctx, ride.ID)
			}
			return err
		}

		if err := NewPaymentRepositoryWithTx(tx).Create(ctx, payment); err != nil {
			return err
		}

		if ride.DriverID != "" {
			if err := NewDriverRepositoryWithTx(tx).Release(ctx, ride.DriverID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Cancel writes the cancelled ride and releases its driver together.
func (t *RideTx) Cancel(ctx context.Context, ride *domain.Ride, driverID string, expected domain.RideStatus) error {
	return t.run(ctx, func(tx *sql.Tx) error {
		if err := NewRideRepositoryWithTx(tx).UpdateStatus(ctx, ride, expected); err != nil {
			return err
		}
		if driverID == "" {
			return nil
		}
		return NewDriverRepositoryWithTx(tx).Release(ctx, driverID)
	})
}
