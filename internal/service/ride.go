package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"ridehail/internal/audit"
	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/repository"
)

// RideService drives a ride through its lifecycle.
type RideService struct {
	stores    Stores
	matcher   *DriverMatcher
	directory *DriverDirectory
	fares     FareCalculator
	audit     *audit.Recorder
	now       func() time.Time
}

// NewRideService creates a new RideService.
func NewRideService(
	stores Stores,
	matcher *DriverMatcher,
	directory *DriverDirectory,
	fares FareCalculator,
	recorder *audit.Recorder,
) *RideService {
	return &RideService{
		stores:    stores,
		matcher:   matcher,
		directory: directory,
		fares:     fares,
		audit:     recorder,
		now:       time.Now,
	}
}

// BookRequest contains the parameters for booking a ride now.
type BookRequest struct {
	PassengerID string
	Pickup      geo.Coordinate
	PickupLabel string
	Drop        geo.Coordinate
	DropLabel   string
}

// BookResult contains the stored ride and its fare estimate.
type BookResult struct {
	Ride           *domain.Ride
	DriverAssigned bool
	Quote          domain.FareQuote
}

// Book creates a ride and tries to bind the nearest idle driver. Without one
// the ride is stored as requested.
func (s *RideService) Book(ctx context.Context, caller Caller, req BookRequest) (*BookResult, error) {
	ride, err := s.newRide(ctx, caller, req, "book ride")
	if err != nil {
		return nil, err
	}

	_, err = s.matcher.Assign(ctx, ride)
	switch {
	case errors.Is(err, ErrNoDriverAvailable):
		ride.Status = domain.RideStatusRequested
		if err := s.stores.Rides.Create(ctx, ride); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	}

	zap.L().Info("ride booked",
		zap.String("ride_id", ride.ID),
		zap.String("status", string(ride.Status)),
		zap.String("driver_id", ride.DriverID),
	)
	s.audit.Emit(ctx, caller.ID, audit.ActionRideBooked,
		fmt.Sprintf("ride_id=%s, status=%s, driver_id=%s", ride.ID, ride.Status, ride.DriverID))

	return &BookResult{
		Ride:           ride,
		DriverAssigned: ride.HasDriver(),
		Quote:          s.fares.Estimate(ride.Pickup, ride.Drop),
	}, nil
}

// ScheduleRequest contains the parameters for booking a future ride.
type ScheduleRequest struct {
	BookRequest
	ScheduledAt time.Time
}

// Schedule stores a ride for a future time. Scheduled rides are not matched.
func (s *RideService) Schedule(ctx context.Context, caller Caller, req ScheduleRequest) (*BookResult, error) {
	if !req.ScheduledAt.After(s.now()) {
		return nil, invalid("scheduled_at", "must be in the future")
	}

	ride, err := s.newRide(ctx, caller, req.BookRequest, "schedule ride")
	if err != nil {
		return nil, err
	}
	at := req.ScheduledAt.UTC()
	ride.ScheduledAt = &at
	ride.Status = domain.RideStatusScheduled

	if err := s.stores.Rides.Create(ctx, ride); err != nil {
		return nil, err
	}

	s.audit.Emit(ctx, caller.ID, audit.ActionRideScheduled,
		fmt.Sprintf("ride_id=%s, scheduled_at=%s", ride.ID, at.Format(time.RFC3339)))

	return &BookResult{Ride: ride, Quote: s.fares.Estimate(ride.Pickup, ride.Drop)}, nil
}

func (s *RideService) newRide(ctx context.Context, caller Caller, req BookRequest, action string) (*domain.Ride, error) {
	if req.PassengerID == "" {
		return nil, invalid("passenger_id", "required")
	}
	if caller.ID != req.PassengerID {
		return nil, forbidden(action)
	}
	if err := req.Pickup.Validate(); err != nil {
		return nil, invalid("pickup", err.Error())
	}
	if err := req.Drop.Validate(); err != nil {
		return nil, invalid("drop", err.Error())
	}

	passenger, err := s.stores.Users.GetByID(ctx, req.PassengerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("passenger", req.PassengerID)
		}
		return nil, err
	}
	if !passenger.Active {
		return nil, notFound("passenger", req.PassengerID)
	}

	now := s.now()
	return &domain.Ride{
		ID:          uuid.New().String(),
		PassengerID: req.PassengerID,
		Pickup:      req.Pickup,
		PickupLabel: req.PickupLabel,
		Drop:        req.Drop,
		DropLabel:   req.DropLabel,
		Status:      domain.RideStatusRequested,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// SettleRequest contains the parameters for paying for a ride.
type SettleRequest struct {
	RideID string
	Amount *float64             // nil charges the estimate
	Method domain.PaymentMethod // empty means the default method
}

// SettleResult contains the completed ride and its payment.
type SettleResult struct {
	Ride    *domain.Ride
	Payment *domain.Payment
}

// SettlePayment completes an assigned ride, fixes its fare and releases the
// driver. A ride can be settled once.
func (s *RideService) SettlePayment(ctx context.Context, caller Caller, req SettleRequest) (*SettleResult, error) {
	ride, err := s.getRide(ctx, req.RideID)
	if err != nil {
		return nil, err
	}
	if caller.ID != ride.PassengerID {
		return nil, forbidden("settle payment")
	}
	if ride.FareFixed() || !domain.CanTransition(ride.Status, domain.RideStatusCompleted) {
		return nil, &InvalidStateTransition{RideID: ride.ID, From: ride.Status, Action: "settle"}
	}

	method := req.Method
	if method == "" {
		method = domain.DefaultPaymentMethod
	}
	if !method.Valid() {
		return nil, invalid("method", fmt.Sprintf("unsupported payment method %q", method))
	}

	amount := s.fares.Estimate(ride.Pickup, ride.Drop).Fare
	if req.Amount != nil {
		amount = *req.Amount
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return nil, invalid("amount", "must be a non-negative number")
	}

	now := s.now()
	completed := ride.Clone()
	completed.Status = domain.RideStatusCompleted
	completed.Fare = &amount
	completed.UpdatedAt = now

	payment := &domain.Payment{
		ID:             uuid.New().String(),
		RideID:         ride.ID,
		PassengerID:    ride.PassengerID,
		Amount:         amount,
		Method:         method,
		Status:         domain.PaymentStatusCompleted,
		IdempotencyKey: "payment:" + ride.ID,
		PaidAt:         now,
	}

	if err := s.stores.Settler.Settle(ctx, completed, payment, ride.Status); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, s.lostTransition(ctx, ride.ID, "settle")
		}
		return nil, err
	}
	s.directory.Invalidate(ctx)

	s.audit.Emit(ctx, caller.ID, audit.ActionRideCompleted,
		fmt.Sprintf("ride_id=%s, fare=%.2f, method=%s", ride.ID, amount, method))

	return &SettleResult{Ride: completed, Payment: payment}, nil
}

// RateRequest contains a passenger's rating of a ride's driver.
type RateRequest struct {
	RideID string
	Rating int
}

// RateResult contains the driver's updated mean rating, rounded to 2 dp.
type RateResult struct {
	DriverID      string
	AverageRating float64
}

// Rate adds a 1-5 rating to the ride's driver. The ride is unchanged.
func (s *RideService) Rate(ctx context.Context, caller Caller, req RateRequest) (*RateResult, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, invalid("rating", "must be between 1 and 5")
	}

	ride, err := s.getRide(ctx, req.RideID)
	if err != nil {
		return nil, err
	}
	if caller.ID != ride.PassengerID {
		return nil, forbidden("rate this ride")
	}
	if !ride.HasDriver() {
		return nil, &InvalidStateTransition{RideID: ride.ID, From: ride.Status, Action: "rate"}
	}

	total, count, err := s.stores.Drivers.AddRating(ctx, ride.DriverID, req.Rating)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("driver", ride.DriverID)
		}
		return nil, err
	}

	s.audit.Emit(ctx, caller.ID, audit.ActionDriverRated,
		fmt.Sprintf("ride_id=%s, driver_id=%s, rating=%d", ride.ID, ride.DriverID, req.Rating))

	return &RateResult{
		DriverID:      ride.DriverID,
		AverageRating: domain.Round2(domain.AverageRating(total, count)),
	}, nil
}

// CancelRequest contains the parameters for cancelling a ride.
type CancelRequest struct {
	RideID string
	Reason string
}

// Cancel cancels an open ride, clearing and releasing its driver.
func (s *RideService) Cancel(ctx context.Context, caller Caller, req CancelRequest) (*domain.Ride, error) {
	ride, err := s.getRide(ctx, req.RideID)
	if err != nil {
		return nil, err
	}
	if caller.ID != ride.PassengerID {
		return nil, forbidden("cancel this ride")
	}
	if !domain.CanTransition(ride.Status, domain.RideStatusCancelled) {
		return nil, &InvalidStateTransition{RideID: ride.ID, From: ride.Status, Action: "cancel"}
	}

	cancelled := ride.Clone()
	cancelled.Status = domain.RideStatusCancelled
	cancelled.DriverID = ""
	cancelled.CancelledAt = s.now()
	cancelled.CancelReason = req.Reason

	if err := s.stores.Canceller.Cancel(ctx, cancelled, ride.DriverID, ride.Status); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, s.lostTransition(ctx, ride.ID, "cancel")
		}
		return nil, err
	}
	if ride.HasDriver() {
		s.directory.Invalidate(ctx)
	}

	s.audit.Emit(ctx, caller.ID, audit.ActionRideCancelled,
		fmt.Sprintf("ride_id=%s, from=%s", ride.ID, ride.Status))

	return cancelled, nil
}

// Get returns a ride to its passenger, its driver or an admin.
func (s *RideService) Get(ctx context.Context, caller Caller, rideID string) (*domain.Ride, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if caller.ID != ride.PassengerID && caller.ID != ride.DriverID && !caller.IsAdmin() {
		return nil, forbidden("view this ride")
	}
	return ride, nil
}

// History returns a passenger's rides, newest first.
func (s *RideService) History(ctx context.Context, caller Caller, passengerID string) ([]*domain.Ride, error) {
	if caller.ID != passengerID && !caller.IsAdmin() {
		return nil, forbidden("view ride history")
	}
	return s.stores.Rides.ListByPassenger(ctx, passengerID)
}

// Receipt returns the receipt of a settled ride.
func (s *RideService) Receipt(ctx context.Context, caller Caller, rideID string) (*domain.Receipt, error) {
	ride, err := s.getRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if caller.ID != ride.PassengerID && !caller.IsAdmin() {
		return nil, forbidden("view this receipt")
	}

	payment, err := s.stores.Payments.GetByRideID(ctx, rideID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("receipt", rideID)
		}
		return nil, err
	}

	receipt := &domain.Receipt{
		ID:            "RCPT-" + payment.ID,
		RideID:        ride.ID,
		PassengerID:   ride.PassengerID,
		DriverID:      ride.DriverID,
		PickupLabel:   ride.PickupLabel,
		DropLabel:     ride.DropLabel,
		Fare:          payment.Amount,
		PaymentMethod: payment.Method,
		PaidAt:        payment.PaidAt,
		Status:        ride.Status,
		RideStartedAt: ride.CreatedAt,
	}
	if ride.FareFixed() {
		receipt.Fare = *ride.Fare
	}

	if passenger, err := s.stores.Users.GetByID(ctx, ride.PassengerID); err == nil {
		receipt.PassengerName = passenger.Name
		receipt.PassengerEmail = passenger.Email
	}
	if ride.HasDriver() {
		if driver, err := s.stores.Drivers.GetByID(ctx, ride.DriverID); err == nil {
			receipt.DriverName = driver.Name
			receipt.DriverEmail = driver.Email
		}
	}
	return receipt, nil
}

func (s *RideService) getRide(ctx context.Context, rideID string) (*domain.Ride, error) {
	if rideID == "" {
		return nil, invalid("ride_id", "required")
	}
	ride, err := s.stores.Rides.GetByID(ctx, rideID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("ride", rideID)
		}
		return nil, err
	}
	return ride, nil
}

// lostTransition reports a compare-and-set that lost to a concurrent write,
// using the status that won.
func (s *RideService) lostTransition(ctx context.Context, rideID, action string) error {
	current, err := s.getRide(ctx, rideID)
	if err != nil {
		return err
	}
	return &InvalidStateTransition{RideID: rideID, From: current.Status, Action: action}
}
