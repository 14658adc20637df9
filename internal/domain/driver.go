package domain

import (
	"time"

	"ridehail/internal/geo"
)

// Driver is a driver's directory record: identity, last known position and
// availability. Active is set by admins; Engaged is held while the driver is
// bound to an open ride.
type Driver struct {
	ID                string
	Seq               int64 // registration order
	Name              string
	Email             string
	Location          *geo.Coordinate
	LocationUpdatedAt time.Time
	Active            bool
	Engaged           bool
	RatingTotal       int
	RatingCount       int
	CreatedAt         time.Time
}

// Located reports whether the driver has reported a position.
func (d *Driver) Located() bool {
	return d.Location != nil
}

// Candidate reports whether the driver may be returned to the matcher.
func (d *Driver) Candidate() bool {
	return d.Active && d.Located()
}

// AverageRating returns the mean rating with the count floored at one.
func (d *Driver) AverageRating() float64 {
	return AverageRating(d.RatingTotal, d.RatingCount)
}

// AverageRating returns total/count with count floored at one.
func AverageRating(total, count int) float64 {
	if count < 1 {
		count = 1
	}
	return float64(total) / float64(count)
}
