package repository

import "context"

// Summary holds system-wide counters for the admin report.
type Summary struct {
	TotalRides      int
	CompletedRides  int
	TotalRevenue    float64
	TotalDrivers    int
	ActiveDrivers   int
	TotalPassengers int
}

// ReportRepository answers aggregate queries for admins.
type ReportRepository interface {
	// Summary returns system-wide counters.
	Summary(ctx context.Context) (*Summary, error)

	// RidesPerHour returns ride counts keyed by hour of day (0-23) of
	// creation, in UTC.
	RidesPerHour(ctx context.Context) (map[int]int, error)
}
