package domain

import (
	"time"

	"ridehail/internal/geo"
)

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusRequested RideStatus = "requested"
	RideStatusAssigned  RideStatus = "assigned"
	RideStatusScheduled RideStatus = "scheduled"
	RideStatusCompleted RideStatus = "completed"
	RideStatusCancelled RideStatus = "cancelled"
)

// allowedTransitions lists the statuses reachable from each status.
// Rides are created directly in requested, assigned or scheduled.
var allowedTransitions = map[RideStatus][]RideStatus{
	RideStatusRequested: {RideStatusCancelled},
	RideStatusScheduled: {RideStatusCancelled},
	RideStatusAssigned:  {RideStatusCompleted, RideStatusCancelled},
	RideStatusCompleted: {},
	RideStatusCancelled: {},
}

// CanTransition reports whether a ride may move from one status to another.
func CanTransition(from, to RideStatus) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s RideStatus) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// Ride represents a ride request in the system. DriverID is set only while
// the ride is assigned or completed; Fare is nil until the ride is completed.
type Ride struct {
	ID           string
	PassengerID  string
	DriverID     string
	Pickup       geo.Coordinate
	PickupLabel  string
	Drop         geo.Coordinate
	DropLabel    string
	Fare         *float64
	Status       RideStatus
	ScheduledAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CancelledAt  time.Time
	CancelReason string
}

// HasDriver reports whether a driver is bound to the ride.
func (r *Ride) HasDriver() bool {
	return r.DriverID != ""
}

// FareFixed reports whether settlement has already fixed the fare.
func (r *Ride) FareFixed() bool {
	return r.Fare != nil
}

// Clone returns a deep copy of the ride.
func (r *Ride) Clone() *Ride {
	c := *r
	if r.Fare != nil {
		f := *r.Fare
		c.Fare = &f
	}
	if r.ScheduledAt != nil {
		t := *r.ScheduledAt
		c.ScheduledAt = &t
	}
	return &c
}
