package domain

import "math"

// FareQuote is a computed, non-persisted price for a pickup/drop pair.
// Both fields are unrounded.
type FareQuote struct {
	DistanceKm float64
	Fare       float64
}

// Display returns the quote rounded to two decimal places.
func (q FareQuote) Display() FareQuote {
	return FareQuote{
		DistanceKm: Round2(q.DistanceKm),
		Fare:       Round2(q.Fare),
	}
}

// Round2 rounds v half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
