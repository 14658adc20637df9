package postgres

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"

	"ridehail/internal/repository"
)

// ReportRepository answers admin aggregates with plain SQL.
type ReportRepository struct {
	db *sql.DB
}

// NewReportRepository creates a new ReportRepository.
func NewReportRepository(db *sql.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Summary returns system-wide counters in a single round trip.
func (r *ReportRepository) Summary(ctx context.Context) (*repository.Summary, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM rides),
			(SELECT COUNT(*) FROM rides WHERE status = 'completed'),
			(SELECT COALESCE(SUM(fare), 0) FROM rides WHERE status = 'completed'),
			(SELECT COUNT(*) FROM drivers),
			(SELECT COUNT(*) FROM drivers WHERE active),
			(SELECT COUNT(*) FROM users WHERE role = 'passenger')
	`
	var s repository.Summary
	err := r.db.QueryRowContext(ctx, query).Scan(
		&s.TotalRides,
		&s.CompletedRides,
		&s.TotalRevenue,
		&s.TotalDrivers,
		&s.ActiveDrivers,
		&s.TotalPassengers,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: report summary")
	}
	return &s, nil
}

// RidesPerHour returns ride counts keyed by UTC hour of creation.
func (r *ReportRepository) RidesPerHour(ctx context.Context) (map[int]int, error) {
	query := `
		SELECT EXTRACT(HOUR FROM created_at AT TIME ZONE 'UTC')::int AS hour, COUNT(*)
		FROM rides
		GROUP BY hour
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: rides per hour")
	}
	defer rows.Close()

	out := make(map[int]int)
	for rows.Next() {
		var hour, n int
		if err := rows.Scan(&hour, &n); err != nil {
			return nil, eris.Wrap(err, "postgres: rides per hour")
		}
		out[hour] = n
	}
	return out, eris.Wrap(rows.Err(), "postgres: rides per hour")
}
