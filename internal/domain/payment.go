package domain

import "time"

// PaymentStatus represents the current status of a payment.
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "completed"
)

// PaymentMethod represents the payment method for a ride.
type PaymentMethod string

const (
	PaymentMethodCash   PaymentMethod = "CASH"
	PaymentMethodCard   PaymentMethod = "CARD"
	PaymentMethodWallet PaymentMethod = "WALLET"
	PaymentMethodUPI    PaymentMethod = "UPI"
)

// DefaultPaymentMethod is used when a settlement names no method.
const DefaultPaymentMethod = PaymentMethodUPI

// Valid reports whether m is a supported method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodWallet, PaymentMethodUPI:
		return true
	}
	return false
}

// Payment records the settlement of a ride. Amount is the unrounded charge.
type Payment struct {
	ID             string
	RideID         string
	PassengerID    string
	Amount         float64
	Method         PaymentMethod
	Status         PaymentStatus
	IdempotencyKey string
	PaidAt         time.Time
}

// Receipt summarises a settled ride for its passenger.
type Receipt struct {
	ID             string
	RideID         string
	PassengerID    string
	PassengerName  string
	PassengerEmail string
	DriverID       string
	DriverName     string
	DriverEmail    string
	PickupLabel    string
	DropLabel      string
	Fare           float64
	PaymentMethod  PaymentMethod
	PaidAt         time.Time
	Status         RideStatus
	RideStartedAt  time.Time
}
