package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	directory *service.DriverDirectory
	accounts  *service.AccountService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(directory *service.DriverDirectory, accounts *service.AccountService) *DriverHandler {
	return &DriverHandler{
		directory: directory,
		accounts:  accounts,
	}
}

// UpdateLocationRequest is the HTTP request body for updating driver location.
type UpdateLocationRequest struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

// SetAvailabilityRequest is the HTTP request body for toggling a driver.
type SetAvailabilityRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// NearbyQuery is the query string of a radius lookup.
type NearbyQuery struct {
	Lat      *float64 `form:"lat" binding:"required"`
	Lng      *float64 `form:"lng" binding:"required"`
	RadiusKm float64  `form:"radius_km"`
}

const defaultNearbyRadiusKm = 5.0

// DriverResponse is the HTTP response for driver data.
type DriverResponse struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Email             string          `json:"email"`
	Location          *geo.Coordinate `json:"location,omitempty"`
	LocationUpdatedAt string          `json:"location_updated_at,omitempty"`
	Active            bool            `json:"active"`
	Engaged           bool            `json:"engaged"`
	AverageRating     float64         `json:"average_rating"`
	RatingCount       int             `json:"rating_count"`
}

func newDriverResponse(d *domain.Driver) DriverResponse {
	return DriverResponse{
		ID:                d.ID,
		Name:              d.Name,
		Email:             d.Email,
		Location:          d.Location,
		LocationUpdatedAt: formatTime(d.LocationUpdatedAt),
		Active:            d.Active,
		Engaged:           d.Engaged,
		AverageRating:     domain.Round2(d.AverageRating()),
		RatingCount:       d.RatingCount,
	}
}

// NearbyDriverResponse is one entry of a radius lookup.
type NearbyDriverResponse struct {
	DriverID   string         `json:"driver_id"`
	Location   geo.Coordinate `json:"location"`
	DistanceKm float64        `json:"distance_km"`
}

// UpdateLocation handles PUT /v1/drivers/me/location
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	loc := geo.Coordinate{Lat: *req.Lat, Lng: *req.Lng}
	if err := h.directory.UpsertLocation(c.Request.Context(), caller, loc); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"driver_id": caller.ID, "location": loc})
}

// SetAvailability handles PUT /v1/drivers/:id/availability
func (h *DriverHandler) SetAvailability(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req SetAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	driverID := c.Param("id")
	if err := h.directory.SetAvailability(c.Request.Context(), caller, driverID, *req.Active); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"driver_id": driverID, "active": *req.Active})
}

// Nearby handles GET /v1/drivers/nearby?lat=&lng=&radius_km=
func (h *DriverHandler) Nearby(c *gin.Context) {
	var q NearbyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "lat and lng are required")
		return
	}
	if q.RadiusKm == 0 {
		q.RadiusKm = defaultNearbyRadiusKm
	}

	found, err := h.directory.Nearby(c.Request.Context(), geo.Coordinate{Lat: *q.Lat, Lng: *q.Lng}, q.RadiusKm)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]NearbyDriverResponse, 0, len(found))
	for _, d := range found {
		response = append(response, NearbyDriverResponse{
			DriverID:   d.DriverID,
			Location:   d.Location,
			DistanceKm: domain.Round2(d.DistanceKm),
		})
	}
	respondJSON(c, http.StatusOK, response)
}

// GetAll handles GET /v1/drivers
func (h *DriverHandler) GetAll(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	drivers, err := h.accounts.Drivers(c.Request.Context(), caller)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]DriverResponse, 0, len(drivers))
	for _, d := range drivers {
		response = append(response, newDriverResponse(d))
	}
	respondJSON(c, http.StatusOK, response)
}
