package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTransient marks failures worth retrying through bus redelivery:
	// network errors, timeouts, rate limits.
	ErrTransient = errors.New("transient venue failure")
	// ErrPermanentRejection marks failures that retrying cannot fix:
	// invalid parameters, insufficient balance. Absorbed locally.
	ErrPermanentRejection = errors.New("permanent venue rejection")
	// ErrMalformedEvent marks bus payloads that violate the event schema.
	ErrMalformedEvent = errors.New("malformed event")
	// ErrIncrementUnknown is returned when a decision is requested before
	// the symbol's base increment is known.
	ErrIncrementUnknown = errors.New("base increment unknown")
	// ErrInvalidPrice is returned for non-positive prices.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrInvalidTransition is returned when an order leaves a terminal state.
	ErrInvalidTransition = errors.New("invalid order state transition")
)

// VenueError carries the venue's application-level response code.
// It unwraps to ErrTransient or ErrPermanentRejection so callers can
// classify with errors.Is.
type VenueError struct {
	Code      string
	Message   string
	Transient bool
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue error code=%s: %s", e.Code, e.Message)
}

func (e *VenueError) Unwrap() error {
	if e.Transient {
		return ErrTransient
	}
	return ErrPermanentRejection
}

// IsTransient reports whether err should be retried via redelivery.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// IsPermanent reports whether err is a rejection that must not be retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentRejection)
}
