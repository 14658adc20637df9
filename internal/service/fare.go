package service

import (
	"ridehail/internal/domain"
	"ridehail/internal/geo"
)

// FareCalculator prices a trip as a base fare plus a per-kilometre rate.
type FareCalculator struct {
	BaseFare  float64
	PerKmRate float64
}

// NewFareCalculator creates a FareCalculator.
func NewFareCalculator(baseFare, perKmRate float64) FareCalculator {
	return FareCalculator{BaseFare: baseFare, PerKmRate: perKmRate}
}

// Estimate returns the unrounded distance and fare between two points.
func (f FareCalculator) Estimate(pickup, drop geo.Coordinate) domain.FareQuote {
	km := geo.DistanceKm(pickup, drop)
	return domain.FareQuote{
		DistanceKm: km,
		Fare:       f.BaseFare + km*f.PerKmRate,
	}
}

// EstimateChecked validates both points before estimating.
func (f FareCalculator) EstimateChecked(pickup, drop geo.Coordinate) (domain.FareQuote, error) {
	if err := pickup.Validate(); err != nil {
		return domain.FareQuote{}, invalid("pickup", err.Error())
	}
	if err := drop.Validate(); err != nil {
		return domain.FareQuote{}, invalid("drop", err.Error())
	}
	return f.Estimate(pickup, drop), nil
}
