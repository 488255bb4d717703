package usecase

import (
	"errors"

	"travel-booking/pkg/gateway"
)

// Sentinel errors returned by the payment services. The HTTP adaptor maps them with errors.Is.
var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("booking not found")
	ErrForbidden           = errors.New("booking does not belong to the caller")
	ErrAlreadyPaid         = errors.New("booking is already paid")
	ErrPaymentNotSucceeded = errors.New("payment has not succeeded")
	ErrNoPaymentFound      = errors.New("no payment found for booking")
	ErrInvalidState        = errors.New("booking is not in a payable state")

	ErrSignatureVerification = gateway.ErrInvalidSignature
	ErrGatewayUnavailable    = gateway.ErrUnavailable
)
