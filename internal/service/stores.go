package service

import "ridehail/internal/repository"

// Stores groups the repositories a backend provides. Both the Postgres and
// the in-memory backends fill every field.
type Stores struct {
	Drivers   repository.DriverRepository
	Rides     repository.RideRepository
	Payments  repository.PaymentRepository
	Users     repository.UserRepository
	Reports   repository.ReportRepository
	Assigner  repository.Assigner
	Settler   repository.Settler
	Canceller repository.Canceller
}
