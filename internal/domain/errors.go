package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for registry and transport operations.
var (
	ErrDeviceNotFound      = errors.New("device not found")
	ErrNotConnected        = errors.New("mqtt client not connected")
	ErrPublishTimeout      = errors.New("publish timed out")
	ErrMQTTSubscribeFailed = errors.New("mqtt subscribe failed")
	ErrUnknownEnvelope     = errors.New("unknown envelope shape")
	ErrMissingClientID     = errors.New("client_id is required")
)

// ValidationError reports a control request the caller must correct.
// It is never returned for infrastructure failures; see TransportError.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// NewRangeError builds the range violation message callers see, naming the
// field, the offending value and the accepted closed interval.
func NewRangeError(field string, value, min, max int) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("%s out of range: %d, expected %d-%d", field, value, min, max),
	}
}

// NewMissingFieldError reports a required field absent from the request.
func NewMissingFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:  field,
		Reason: fmt.Sprintf("%s is required", field),
	}
}

// NewFieldError reports a field present but unusable.
func NewFieldError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf("%s: %s", field, reason)}
}

// TransportError wraps a broker-side failure. Callers may retry these;
// they must not retry a ValidationError unmodified.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a caller-correctable validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsTransport reports whether err originated in the pub/sub transport.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
