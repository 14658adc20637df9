package app

import (
	"database/sql"

	"ridehail/internal/repository/memory"
	"ridehail/internal/repository/postgres"
	"ridehail/internal/service"
)

// MemoryStores returns stores backed by a fresh in-process store.
func MemoryStores() service.Stores {
	store := memory.NewStore()
	return service.Stores{
		Drivers:   store.Drivers(),
		Rides:     store.Rides(),
		Payments:  store.Payments(),
		Users:     store.Users(),
		Reports:   store.Reports(),
		Assigner:  store.Rides(),
		Settler:   store.Rides(),
		Canceller: store.Rides(),
	}
}

// PostgresStores returns stores backed by db. Multi-row writes run in
// transactions opened by postgres.RideTx.
func PostgresStores(db *sql.DB) service.Stores {
	tx := postgres.NewRideTx(db)
	return service.Stores{
		Drivers:   postgres.NewDriverRepository(db),
		Rides:     postgres.NewRideRepository(db),
		Payments:  postgres.NewPaymentRepository(db),
		Users:     postgres.NewUserRepository(db),
		Reports:   postgres.NewReportRepository(db),
		Assigner:  tx,
		Settler:   tx,
		Canceller: tx,
	}
}
