package domain

import "github.com/cockroachdb/errors"

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrCartEmpty              = errors.New("cart is empty")
	ErrOverLimit              = errors.New("quantity over allowed limit")
	ErrInvalidTransition      = errors.New("invalid state transition")
	ErrNoReservation          = errors.New("no active reservation")
	ErrReservationExpired     = errors.New("reservation expired")
	ErrPaymentInFlight        = errors.New("payment already in progress")
	ErrMissingPaymentRedirect = errors.New("payment provider returned no redirect")
)
