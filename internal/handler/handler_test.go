package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/audit"
	"ridehail/internal/domain"
	"ridehail/internal/geo"
	"ridehail/internal/middleware"
	"ridehail/internal/repository"
	"ridehail/internal/repository/memory"
	"ridehail/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	auth   *middleware.Authenticator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.NewStore()
	stores := service.Stores{
		Drivers:   store.Drivers(),
		Rides:     store.Rides(),
		Payments:  store.Payments(),
		Users:     store.Users(),
		Reports:   store.Reports(),
		Assigner:  store.Rides(),
		Settler:   store.Rides(),
		Canceller: store.Rides(),
	}
	events := audit.NewMemorySink(100)
	recorder := audit.NewRecorder(nil, events)
	fares := service.NewFareCalculator(50, 12.5)
	directory := service.NewDriverDirectory(stores.Drivers, nil, nil, recorder)
	matcher := service.NewDriverMatcher(directory, stores.Assigner, nil, 0)
	accounts := service.NewAccountService(stores.Users, stores.Drivers, directory, recorder)

	rides := NewRideHandler(service.NewRideService(stores, matcher, directory, fares, recorder), fares)
	drivers := NewDriverHandler(directory, accounts)
	users := NewUserHandler(accounts)
	admin := NewAdminHandler(service.NewReportService(stores.Reports, events))

	auth := middleware.NewAuthenticator("handler-test")
	router := gin.New()
	router.POST("/v1/users/register", users.Register)
	router.POST("/v1/fares/estimate", rides.EstimateFare)

	v1 := router.Group("/v1", middleware.Auth(auth))
	v1.GET("/users", users.GetAll)
	v1.GET("/users/:id", users.GetUser)
	v1.POST("/users/:id/block", users.Block)
	v1.POST("/rides", rides.BookRide)
	v1.POST("/rides/scheduled", rides.ScheduleRide)
	v1.GET("/rides/:id", rides.GetRide)
	v1.POST("/rides/:id/cancel", rides.CancelRide)
	v1.POST("/rides/:id/payment", rides.SettleRide)
	v1.POST("/rides/:id/rating", rides.RateRide)
	v1.GET("/rides/:id/receipt", rides.GetReceipt)
	v1.GET("/passengers/:id/rides", rides.History)
	v1.GET("/drivers", drivers.GetAll)
	v1.GET("/drivers/nearby", drivers.Nearby)
	v1.PUT("/drivers/me/location", drivers.UpdateLocation)
	v1.PUT("/drivers/:id/availability", drivers.SetAvailability)
	v1.GET("/admin/reports/summary", admin.Summary)
	v1.GET("/admin/reports/peak-hours", admin.PeakHours)
	v1.GET("/admin/audit-logs", admin.AuditLogs)

	return &testServer{t: t, router: router, auth: auth}
}

func (s *testServer) token(id string, role domain.Role) string {
	s.t.Helper()
	tok, err := s.auth.Issue(id, role, time.Hour)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) register(name string, role domain.Role) string {
	s.t.Helper()
	w := s.do(http.MethodPost, "/v1/users/register", "", RegisterRequest{
		Name: name, Email: name + "@example.com", Role: string(role),
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	var u UserResponse
	require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &u))
	return u.ID
}

func (s *testServer) onlineDriver(name string, loc geo.Coordinate) string {
	s.t.Helper()
	id := s.register(name, domain.RoleDriver)
	w := s.do(http.MethodPut, "/v1/drivers/me/location", s.token(id, domain.RoleDriver),
		gin.H{"lat": loc.Lat, "lng": loc.Lng})
	require.Equal(s.t, http.StatusOK, w.Code, w.Body.String())
	return id
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// Points on the equator; 1 degree of longitude is about 111.2 km.
func kmEast(km float64) geo.Coordinate {
	return geo.Coordinate{Lat: 0, Lng: km / 111.19492664455873}
}

func bookBody(passengerID string, drop geo.Coordinate) BookRideRequest {
	pickup := geo.Coordinate{}
	return BookRideRequest{
		PassengerID: passengerID,
		Pickup:      &pickup,
		PickupLabel: "Home",
		Drop:        &drop,
		DropLabel:   "Office",
	}
}

func TestBookRide_AssignsNearestDriver(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	s.onlineDriver("far", kmEast(10))
	near := s.onlineDriver("near", kmEast(3))
	p := s.register("alice", domain.RolePassenger)

	w := s.do(http.MethodPost, "/v1/rides", s.token(p, domain.RolePassenger), bookBody(p, kmEast(10)))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[BookRideResponse](t, w)
	assert.True(t, resp.DriverAssigned)
	assert.Equal(t, "assigned", resp.Ride.Status)
	assert.Equal(t, near, resp.Ride.DriverID)
	assert.Equal(t, 175.0, resp.Estimate.Fare)
	assert.Equal(t, 10.0, resp.Estimate.DistanceKm)
	assert.Nil(t, resp.Ride.Fare)
}

func TestBookRide_NoDriverIsRequested(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	p := s.register("alice", domain.RolePassenger)

	w := s.do(http.MethodPost, "/v1/rides", s.token(p, domain.RolePassenger), bookBody(p, kmEast(2)))
	require.Equal(t, http.StatusCreated, w.Code)

	resp := decode[BookRideResponse](t, w)
	assert.False(t, resp.DriverAssigned)
	assert.Equal(t, "requested", resp.Ride.Status)
	assert.Empty(t, resp.Ride.DriverID)
}

func TestBookRide_Errors(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	p := s.register("alice", domain.RolePassenger)
	other := s.register("bob", domain.RolePassenger)

	badDrop := bookBody(p, geo.Coordinate{Lat: 95})

	tests := []struct {
		name  string
		token string
		body  any
		want  int
	}{
		{"no token", "", bookBody(p, kmEast(1)), http.StatusUnauthorized},
		{"missing pickup", s.token(p, domain.RolePassenger), gin.H{"passenger_id": p}, http.StatusBadRequest},
		{"invalid latitude", s.token(p, domain.RolePassenger), badDrop, http.StatusBadRequest},
		{"booking for someone else", s.token(other, domain.RolePassenger), bookBody(p, kmEast(1)), http.StatusForbidden},
		{"unknown passenger", s.token("ghost", domain.RolePassenger), bookBody("ghost", kmEast(1)), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/v1/rides", tt.token, tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestScheduleRide(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	s.onlineDriver("d", kmEast(1))
	p := s.register("alice", domain.RolePassenger)
	tok := s.token(p, domain.RolePassenger)

	future := ScheduleRideRequest{BookRideRequest: bookBody(p, kmEast(4)), ScheduledAt: time.Now().Add(time.Hour)}
	w := s.do(http.MethodPost, "/v1/rides/scheduled", tok, future)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[BookRideResponse](t, w)
	assert.Equal(t, "scheduled", resp.Ride.Status)
	assert.Empty(t, resp.Ride.DriverID)
	assert.NotEmpty(t, resp.Ride.ScheduledAt)

	past := ScheduleRideRequest{BookRideRequest: bookBody(p, kmEast(4)), ScheduledAt: time.Now().Add(-time.Hour)}
	w = s.do(http.MethodPost, "/v1/rides/scheduled", tok, past)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "scheduled_at", decode[ErrorResponse](t, w).Field)
}

func TestSettleRateReceiptFlow(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	d := s.onlineDriver("dave", kmEast(1))
	p := s.register("alice", domain.RolePassenger)
	tok := s.token(p, domain.RolePassenger)

	booked := decode[BookRideResponse](t, s.do(http.MethodPost, "/v1/rides", tok, bookBody(p, kmEast(10))))
	rideID := booked.Ride.ID

	w := s.do(http.MethodGet, "/v1/rides/"+rideID+"/receipt", tok, nil)
	assert.Equal(t, http.StatusNotFound, w.Code, "no receipt before payment")

	w = s.do(http.MethodPost, "/v1/rides/"+rideID+"/payment", tok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	settled := decode[SettleRideResponse](t, w)
	assert.Equal(t, "completed", settled.Ride.Status)
	require.NotNil(t, settled.Ride.Fare)
	assert.Equal(t, 175.0, *settled.Ride.Fare)
	assert.Equal(t, "UPI", settled.Method)

	w = s.do(http.MethodPost, "/v1/rides/"+rideID+"/payment", tok, SettleRideRequest{Amount: ptr(1.0)})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPost, "/v1/rides/"+rideID+"/rating", s.token("intruder", domain.RolePassenger), RateRideRequest{Rating: 5})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/v1/rides/"+rideID+"/rating", tok, RateRideRequest{Rating: 4})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rated := decode[RateRideResponse](t, w)
	assert.Equal(t, d, rated.DriverID)
	assert.Equal(t, 4.0, rated.AverageRating)

	w = s.do(http.MethodGet, "/v1/rides/"+rideID+"/receipt", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	receipt := decode[ReceiptResponse](t, w)
	assert.Equal(t, "RCPT-"+settled.PaymentID, receipt.ID)
	assert.Equal(t, "dave", receipt.DriverName)
	assert.Equal(t, 175.0, receipt.Fare)

	w = s.do(http.MethodGet, "/v1/passengers/"+p+"/rides", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]RideResponse](t, w), 1)
}

func TestCancelRide(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	d := s.onlineDriver("dave", kmEast(1))
	p := s.register("alice", domain.RolePassenger)
	tok := s.token(p, domain.RolePassenger)

	booked := decode[BookRideResponse](t, s.do(http.MethodPost, "/v1/rides", tok, bookBody(p, kmEast(5))))
	require.Equal(t, d, booked.Ride.DriverID)

	w := s.do(http.MethodPost, "/v1/rides/"+booked.Ride.ID+"/cancel", tok, CancelRideRequest{Reason: "changed plans"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cancelled := decode[RideResponse](t, w)
	assert.Equal(t, "cancelled", cancelled.Status)
	assert.Empty(t, cancelled.DriverID)
	assert.Equal(t, "changed plans", cancelled.CancelReason)

	w = s.do(http.MethodPost, "/v1/rides/"+booked.Ride.ID+"/cancel", tok, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// The released driver can take the next booking.
	again := decode[BookRideResponse](t, s.do(http.MethodPost, "/v1/rides", tok, bookBody(p, kmEast(5))))
	assert.Equal(t, d, again.Ride.DriverID)
}

func TestGetRide_NotFoundAndForbidden(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	p := s.register("alice", domain.RolePassenger)
	booked := decode[BookRideResponse](t, s.do(http.MethodPost, "/v1/rides", s.token(p, domain.RolePassenger), bookBody(p, kmEast(1))))

	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/v1/rides/nope", s.token(p, domain.RolePassenger), nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/rides/"+booked.Ride.ID, s.token("x", domain.RolePassenger), nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/rides/"+booked.Ride.ID, s.token("root", domain.RoleAdmin), nil).Code)
}

func TestEstimateFare(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	pickup, drop := geo.Coordinate{}, kmEast(10)
	w := s.do(http.MethodPost, "/v1/fares/estimate", "", EstimateFareRequest{Pickup: &pickup, Drop: &drop})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, FareQuoteResponse{DistanceKm: 10, Fare: 175}, decode[FareQuoteResponse](t, w))

	bad := geo.Coordinate{Lng: 200}
	w = s.do(http.MethodPost, "/v1/fares/estimate", "", EstimateFareRequest{Pickup: &pickup, Drop: &bad})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDrivers_LocationNearbyAvailability(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	d := s.onlineDriver("dave", kmEast(2))
	p := s.register("alice", domain.RolePassenger)
	adminTok := s.token("root", domain.RoleAdmin)

	w := s.do(http.MethodPut, "/v1/drivers/me/location", s.token(p, domain.RolePassenger), gin.H{"lat": 1, "lng": 1})
	assert.Equal(t, http.StatusForbidden, w.Code, "passengers cannot report a location")

	w = s.do(http.MethodGet, "/v1/drivers/nearby?lat=0&lng=0&radius_km=5", s.token(p, domain.RolePassenger), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	nearby := decode[[]NearbyDriverResponse](t, w)
	require.Len(t, nearby, 1)
	assert.Equal(t, d, nearby[0].DriverID)
	assert.Equal(t, 2.0, nearby[0].DistanceKm)

	w = s.do(http.MethodGet, "/v1/drivers/nearby?lng=0", s.token(p, domain.RolePassenger), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPut, "/v1/drivers/"+d+"/availability", s.token(p, domain.RolePassenger), gin.H{"active": false})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPut, "/v1/drivers/"+d+"/availability", adminTok, gin.H{"active": false})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/v1/drivers/nearby?lat=0&lng=0&radius_km=5", s.token(p, domain.RolePassenger), nil)
	assert.Empty(t, decode[[]NearbyDriverResponse](t, w))

	w = s.do(http.MethodGet, "/v1/drivers", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	listed := decode[[]DriverResponse](t, w)
	require.Len(t, listed, 1)
	assert.False(t, listed[0].Active)
}

func TestUsers(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	p := s.register("alice", domain.RolePassenger)
	adminTok := s.token("root", domain.RoleAdmin)

	w := s.do(http.MethodPost, "/v1/users/register", "", RegisterRequest{Name: "A", Email: "ALICE@example.com", Role: "passenger"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "duplicate email")

	w = s.do(http.MethodPost, "/v1/users/register", "", RegisterRequest{Name: "Eve", Email: "eve@example.com", Role: "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/v1/users/"+p, s.token(p, domain.RolePassenger), nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/users", s.token(p, domain.RolePassenger), nil).Code)

	w = s.do(http.MethodPost, "/v1/users/"+p+"/block", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[UserResponse](t, w).Active)

	w = s.do(http.MethodPost, "/v1/rides", s.token(p, domain.RolePassenger), bookBody(p, kmEast(1)))
	assert.Equal(t, http.StatusNotFound, w.Code, "blocked passengers cannot book")
}

func TestAdminReports(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	s.onlineDriver("dave", kmEast(1))
	p := s.register("alice", domain.RolePassenger)
	tok := s.token(p, domain.RolePassenger)
	adminTok := s.token("root", domain.RoleAdmin)

	booked := decode[BookRideResponse](t, s.do(http.MethodPost, "/v1/rides", tok, bookBody(p, kmEast(10))))
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, "/v1/rides/"+booked.Ride.ID+"/payment", tok, nil).Code)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/v1/admin/reports/summary", tok, nil).Code)

	w := s.do(http.MethodGet, "/v1/admin/reports/summary", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[SummaryResponse](t, w)
	assert.Equal(t, 1, summary.TotalRides)
	assert.Equal(t, 1, summary.CompletedRides)
	assert.Equal(t, 175.0, summary.TotalRevenue)
	assert.Equal(t, 1, summary.TotalPassengers)

	w = s.do(http.MethodGet, "/v1/admin/reports/peak-hours", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	hours := decode[[]PeakHourResponse](t, w)
	require.Len(t, hours, 1)
	assert.Equal(t, 1, hours[0].Rides)

	w = s.do(http.MethodGet, "/v1/admin/audit-logs?limit=2", adminTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[[]AuditEventResponse](t, w)
	require.Len(t, logs, 2)
	assert.Equal(t, string(audit.ActionRideCompleted), logs[0].Action)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/v1/admin/audit-logs?limit=x", adminTok, nil).Code)
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{&service.ValidationError{Field: "rating"}, http.StatusBadRequest},
		{&service.NotFoundError{Entity: "ride"}, http.StatusNotFound},
		{eris.Wrap(repository.ErrNotFound, "postgres: get ride"), http.StatusNotFound},
		{&service.AuthorizationError{Action: "rate"}, http.StatusForbidden},
		{&service.InvalidStateTransition{Action: "settle"}, http.StatusConflict},
		{eris.Wrap(repository.ErrConflict, "postgres: settle"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, mapErrorToHTTPStatus(tt.err), "%v", tt.err)
	}
}

func TestRespondError_HidesInternalErrors(t *testing.T) {
	t.Parallel()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondError(c, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, w.Body.String())
}

func ptr[T any](v T) *T { return &v }
