package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm_SamePointIsZero(t *testing.T) {
	t.Parallel()

	points := []Coordinate{
		{Lat: 0, Lng: 0},
		{Lat: 12.9716, Lng: 77.5946},
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 90, Lng: 0},
		{Lat: -90, Lng: 180},
	}
	for _, p := range points {
		assert.Equal(t, 0.0, DistanceKm(p, p), "distance of %v to itself", p)
	}
}

func TestDistanceKm_Symmetric(t *testing.T) {
	t.Parallel()

	pairs := [][2]Coordinate{
		{{Lat: 12.9716, Lng: 77.5946}, {Lat: 13.0827, Lng: 80.2707}},
		{{Lat: 40.7128, Lng: -74.0060}, {Lat: 51.5074, Lng: -0.1278}},
		{{Lat: -1, Lng: 179.5}, {Lat: 1, Lng: -179.5}},
	}
	for _, p := range pairs {
		assert.InDelta(t, DistanceKm(p[0], p[1]), DistanceKm(p[1], p[0]), 1e-9)
	}
}

func TestDistanceKm_KnownDistances(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b Coordinate
		want float64
		tol  float64
	}{
		{"one degree latitude at equator", Coordinate{0, 0}, Coordinate{1, 0}, 111.2, 0.5},
		{"one degree longitude at equator", Coordinate{0, 0}, Coordinate{0, 1}, 111.2, 0.5},
		{"bangalore to chennai", Coordinate{12.9716, 77.5946}, Coordinate{13.0827, 80.2707}, 290.2, 2},
		{"new york to london", Coordinate{40.7128, -74.0060}, Coordinate{51.5074, -0.1278}, 5570, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DistanceKm(tt.a, tt.b), tt.tol)
		})
	}
}

func TestDistanceKm_MonotonicInSeparation(t *testing.T) {
	t.Parallel()

	origin := Coordinate{Lat: 0, Lng: 0}
	prev := 0.0
	for deg := 1.0; deg <= 180; deg++ {
		d := DistanceKm(origin, Coordinate{Lat: 0, Lng: deg})
		assert.Greater(t, d, prev, "separation %v deg", deg)
		prev = d
	}
}

func TestDistanceKm_AntipodalIsFinite(t *testing.T) {
	t.Parallel()

	d := DistanceKm(Coordinate{Lat: 0, Lng: 0}, Coordinate{Lat: 0, Lng: 180})
	assert.False(t, math.IsNaN(d))
	assert.InDelta(t, math.Pi*EarthRadiusKm, d, 1e-6)
}

func TestCoordinate_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		c       Coordinate
		wantErr error
	}{
		{"origin", Coordinate{0, 0}, nil},
		{"poles and date line", Coordinate{-90, 180}, nil},
		{"latitude too high", Coordinate{90.0001, 0}, ErrInvalidLatitude},
		{"latitude NaN", Coordinate{math.NaN(), 0}, ErrInvalidLatitude},
		{"longitude too low", Coordinate{0, -180.5}, ErrInvalidLongitude},
		{"longitude NaN", Coordinate{0, math.NaN()}, ErrInvalidLongitude},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.c.Validate(), tt.wantErr)
		})
	}
}
