package connectors

import (
	"errors"
)

var ErrEndOfInput = errors.New("end of input")

// DeliveryError wraps errors from transports and indicates if they're retryable
type DeliveryError struct {
	Err       error
	Retryable bool
}

func (e *DeliveryError) Error() string {
	return e.Err.Error()
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps an error as retryable
func NewRetryableError(err error) *DeliveryError {
	return &DeliveryError{
		Err:       err,
		Retryable: true,
	}
}

// NewTerminalError wraps an error as non-retryable
func NewTerminalError(err error) *DeliveryError {
	return &DeliveryError{
		Err:       err,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var deliveryErr *DeliveryError
	if errors.As(err, &deliveryErr) {
		return deliveryErr.Retryable
	}

	// Retry if not explicitly marked as non-retryable
	return true
}
