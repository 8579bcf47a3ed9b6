package tollgate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xraph/tollgate/idempotency"
	"github.com/xraph/tollgate/retry"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("tollgate: not found")
	ErrAlreadyExists = errors.New("tollgate: already exists")
	ErrInvalidInput  = errors.New("tollgate: invalid input")

	// Device and entitlement errors
	ErrDeviceNotFound       = errors.New("tollgate: device not found")
	ErrDeviceInactive       = errors.New("tollgate: device not entitled")
	ErrSubscriptionNotFound = errors.New("tollgate: subscription not found")
	ErrNoActiveSubscription = errors.New("tollgate: no active subscription")

	// Credential errors
	ErrClientNotFound    = errors.New("tollgate: client not found")
	ErrMissingCredential = errors.New("tollgate: missing api key")
	ErrInvalidClient     = errors.New("tollgate: unknown client")
	ErrInvalidCredential = errors.New("tollgate: invalid or inactive api key")

	// Relay errors
	ErrRelayNotFound     = errors.New("tollgate: relay record not found")
	ErrInvalidTransition = errors.New("tollgate: invalid relay status transition")
	ErrDeliveryFailed    = errors.New("tollgate: relay delivery failed")

	// Telemetry errors
	ErrTelemetryNotFound = errors.New("tollgate: telemetry record not found")

	// Billing errors
	ErrPaymentFailed = errors.New("tollgate: payment failed")

	// Store errors
	ErrStoreClosed = errors.New("tollgate: store is closed")

	// Cache errors
	ErrCacheMiss = idempotency.ErrCacheMiss
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tollgate: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// ValidationErrors collects field-level validation failures.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	switch len(e) {
	case 0:
		return "tollgate: no validation errors"
	case 1:
		return e[0].Error()
	}
	fields := make([]string, len(e))
	for i, v := range e {
		fields[i] = v.Field
	}
	return fmt.Sprintf("tollgate: validation failed for %s", strings.Join(fields, ", "))
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationErrors) Unwrap() error { return ErrInvalidInput }

// Add appends a field failure.
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// Err returns nil when no failures were collected.
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

// DeliveryError reports a relay that exhausted its retries or failed
// fatally. RelayID lets callers re-query instead of resubmitting.
type DeliveryError struct {
	RelayID  string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("tollgate: relay %s delivery failed after %d attempt(s): %v", e.RelayID, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Is matches ErrDeliveryFailed.
func (e *DeliveryError) Is(target error) bool { return target == ErrDeliveryFailed }

// PaymentError reports a failed charge.
type PaymentError struct {
	DeviceID string
	PlanID   string
	Err      error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("tollgate: payment for device %s plan %s failed: %v", e.DeviceID, e.PlanID, e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }

// Is matches ErrPaymentFailed.
func (e *PaymentError) Is(target error) bool { return target == ErrPaymentFailed }

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDeviceNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound) ||
		errors.Is(err, ErrNoActiveSubscription) ||
		errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrRelayNotFound) ||
		errors.Is(err, ErrTelemetryNotFound)
}

// IsAuthError returns true for the three credential failures.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrInvalidClient) ||
		errors.Is(err, ErrInvalidCredential)
}

// IsRetryable returns true if resubmitting later may succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDeliveryFailed) ||
		errors.Is(err, ErrStoreClosed) ||
		retry.IsServerError(err)
}
