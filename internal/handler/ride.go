package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService *service.RideService
	fares       service.FareCalculator
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService, fares service.FareCalculator) *RideHandler {
	return &RideHandler{
		rideService: rideService,
		fares:       fares,
	}
}

// BookRideRequest is the HTTP request body for booking a ride.
type BookRideRequest struct {
	PassengerID string          `json:"passenger_id" binding:"required"`
	Pickup      *geo.Coordinate `json:"pickup" binding:"required"`
	PickupLabel string          `json:"pickup_label"`
	Drop        *geo.Coordinate `json:"drop" binding:"required"`
	DropLabel   string          `json:"drop_label"`
}

func (r BookRideRequest) toService() service.BookRequest {
	return service.BookRequest{
		PassengerID: r.PassengerID,
		Pickup:      *r.Pickup,
		PickupLabel: r.PickupLabel,
		Drop:        *r.Drop,
		DropLabel:   r.DropLabel,
	}
}

// ScheduleRideRequest is the HTTP request body for scheduling a ride.
type ScheduleRideRequest struct {
	BookRideRequest
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

// CancelRideRequest is the HTTP request body for cancelling a ride.
type CancelRideRequest struct {
	Reason string `json:"reason,omitempty"`
}

// SettleRideRequest is the HTTP request body for paying for a ride. Both
// fields are optional.
type SettleRideRequest struct {
	Amount *float64 `json:"amount,omitempty"`
	Method string   `json:"method,omitempty"` // CASH, CARD, WALLET, UPI
}

// RateRideRequest is the HTTP request body for rating a ride's driver.
type RateRideRequest struct {
	Rating int `json:"rating" binding:"required"`
}

// EstimateFareRequest is the HTTP request body for a fare quote.
type EstimateFareRequest struct {
	Pickup *geo.Coordinate `json:"pickup" binding:"required"`
	Drop   *geo.Coordinate `json:"drop" binding:"required"`
}

// FareQuoteResponse is a fare quote rounded for display.
type FareQuoteResponse struct {
	DistanceKm float64 `json:"distance_km"`
	Fare       float64 `json:"fare"`
}

func newFareQuoteResponse(q domain.FareQuote) FareQuoteResponse {
	d := q.Display()
	return FareQuoteResponse{DistanceKm: d.DistanceKm, Fare: d.Fare}
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	ID           string         `json:"id"`
	PassengerID  string         `json:"passenger_id"`
	DriverID     string         `json:"driver_id,omitempty"`
	Pickup       geo.Coordinate `json:"pickup"`
	PickupLabel  string         `json:"pickup_label,omitempty"`
	Drop         geo.Coordinate `json:"drop"`
	DropLabel    string         `json:"drop_label,omitempty"`
	Fare         *float64       `json:"fare,omitempty"`
	Status       string         `json:"status"`
	ScheduledAt  string         `json:"scheduled_at,omitempty"`
	CreatedAt    string         `json:"created_at"`
	CancelledAt  string         `json:"cancelled_at,omitempty"`
	CancelReason string         `json:"cancel_reason,omitempty"`
}

func newRideResponse(r *domain.Ride) RideResponse {
	resp := RideResponse{
		ID:           r.ID,
		PassengerID:  r.PassengerID,
		DriverID:     r.DriverID,
		Pickup:       r.Pickup,
		PickupLabel:  r.PickupLabel,
		Drop:         r.Drop,
		DropLabel:    r.DropLabel,
		Status:       string(r.Status),
		CreatedAt:    formatTime(r.CreatedAt),
		CancelledAt:  formatTime(r.CancelledAt),
		CancelReason: r.CancelReason,
	}
	if r.FareFixed() {
		fare := domain.Round2(*r.Fare)
		resp.Fare = &fare
	}
	if r.ScheduledAt != nil {
		resp.ScheduledAt = formatTime(*r.ScheduledAt)
	}
	return resp
}

// BookRideResponse is the HTTP response for booking or scheduling a ride.
type BookRideResponse struct {
	Ride           RideResponse      `json:"ride"`
	DriverAssigned bool              `json:"driver_assigned"`
	Estimate       FareQuoteResponse `json:"estimate"`
}

// SettleRideResponse is the HTTP response for a completed payment.
type SettleRideResponse struct {
	Ride      RideResponse `json:"ride"`
	PaymentID string       `json:"payment_id"`
	Amount    float64      `json:"amount"`
	Method    string       `json:"method"`
	Status    string       `json:"status"`
	PaidAt    string       `json:"paid_at"`
}

// RateRideResponse is the HTTP response for a rating.
type RateRideResponse struct {
	DriverID      string  `json:"driver_id"`
	AverageRating float64 `json:"average_rating"`
}

// ReceiptResponse is the HTTP representation of a ride receipt.
type ReceiptResponse struct {
	ID             string  `json:"id"`
	RideID         string  `json:"ride_id"`
	PassengerID    string  `json:"passenger_id"`
	PassengerName  string  `json:"passenger_name,omitempty"`
	PassengerEmail string  `json:"passenger_email,omitempty"`
	DriverID       string  `json:"driver_id,omitempty"`
	DriverName     string  `json:"driver_name,omitempty"`
	DriverEmail    string  `json:"driver_email,omitempty"`
	PickupLabel    string  `json:"pickup_label,omitempty"`
	DropLabel      string  `json:"drop_label,omitempty"`
	Fare           float64 `json:"fare"`
	PaymentMethod  string  `json:"payment_method"`
	PaidAt         string  `json:"paid_at"`
	Status         string  `json:"status"`
	RideStartedAt  string  `json:"ride_started_at"`
}

// BookRide handles POST /v1/rides
func (h *RideHandler) BookRide(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req BookRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := h.rideService.Book(c.Request.Context(), caller, req.toService())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, BookRideResponse{
		Ride:           newRideResponse(result.Ride),
		DriverAssigned: result.DriverAssigned,
		Estimate:       newFareQuoteResponse(result.Quote),
	})
}

// ScheduleRide handles POST /v1/rides/scheduled
func (h *RideHandler) ScheduleRide(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req ScheduleRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := h.rideService.Schedule(c.Request.Context(), caller, service.ScheduleRequest{
		BookRequest: req.toService(),
		ScheduledAt: req.ScheduledAt,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, BookRideResponse{
		Ride:     newRideResponse(result.Ride),
		Estimate: newFareQuoteResponse(result.Quote),
	})
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	ride, err := h.rideService.Get(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newRideResponse(ride))
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req CancelRideRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body")
		return
	}

	ride, err := h.rideService.Cancel(c.Request.Context(), caller, service.CancelRequest{
		RideID: c.Param("id"),
		Reason: req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newRideResponse(ride))
}

// SettleRide handles POST /v1/rides/:id/payment
func (h *RideHandler) SettleRide(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req SettleRideRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "invalid request body")
		return
	}

	result, err := h.rideService.SettlePayment(c.Request.Context(), caller, service.SettleRequest{
		RideID: c.Param("id"),
		Amount: req.Amount,
		Method: domain.PaymentMethod(req.Method),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, SettleRideResponse{
		Ride:      newRideResponse(result.Ride),
		PaymentID: result.Payment.ID,
		Amount:    domain.Round2(result.Payment.Amount),
		Method:    string(result.Payment.Method),
		Status:    string(result.Payment.Status),
		PaidAt:    formatTime(result.Payment.PaidAt),
	})
}

// RateRide handles POST /v1/rides/:id/rating
func (h *RideHandler) RateRide(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req RateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	result, err := h.rideService.Rate(c.Request.Context(), caller, service.RateRequest{
		RideID: c.Param("id"),
		Rating: req.Rating,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, RateRideResponse{
		DriverID:      result.DriverID,
		AverageRating: result.AverageRating,
	})
}

// GetReceipt handles GET /v1/rides/:id/receipt
func (h *RideHandler) GetReceipt(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	r, err := h.rideService.Receipt(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ReceiptResponse{
		ID:             r.ID,
		RideID:         r.RideID,
		PassengerID:    r.PassengerID,
		PassengerName:  r.PassengerName,
		PassengerEmail: r.PassengerEmail,
		DriverID:       r.DriverID,
		DriverName:     r.DriverName,
		DriverEmail:    r.DriverEmail,
		PickupLabel:    r.PickupLabel,
		DropLabel:      r.DropLabel,
		Fare:           domain.Round2(r.Fare),
		PaymentMethod:  string(r.PaymentMethod),
		PaidAt:         formatTime(r.PaidAt),
		Status:         string(r.Status),
		RideStartedAt:  formatTime(r.RideStartedAt),
	})
}

// History handles GET /v1/passengers/:id/rides
func (h *RideHandler) History(c *gin.Context) {
	caller, ok := callerOrAbort(c)
	if !ok {
		return
	}

	rides, err := h.rideService.History(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]RideResponse, 0, len(rides))
	for _, r := range rides {
		response = append(response, newRideResponse(r))
	}
	respondJSON(c, http.StatusOK, response)
}

// EstimateFare handles POST /v1/fares/estimate
func (h *RideHandler) EstimateFare(c *gin.Context) {
	var req EstimateFareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	quote, err := h.fares.EstimateChecked(*req.Pickup, *req.Drop)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, newFareQuoteResponse(quote))
}
