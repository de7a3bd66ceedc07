package resilience

import (
	"errors"
	"fmt"
	"time"
)

// ErrCircuitOpen is matched by every *CircuitOpenError via errors.Is.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitOpenError is returned without touching the network while a breaker is open.
type CircuitOpenError struct {
	Endpoint  string
	Remaining time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit %s open, next attempt in %s", e.Endpoint, e.Remaining.Round(time.Millisecond))
}

// Is reports ErrCircuitOpen equivalence.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// CallError is returned when a call failed permanently or exhausted its attempts.
type CallError struct {
	Label    string
	Attempts int
	Class    Class
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s) [%s]: %v", e.Label, e.Attempts, e.Class, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// IsCircuitOpen reports whether err is or wraps a circuit-open rejection.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

// ClassOf returns the class recorded in a *CallError, or ClassPermanent.
func ClassOf(err error) Class {
	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Class
	}
	return ClassPermanent
}

// IsTransient reports whether err is a rate-limit or timeout failure that
// survived all retries. Callers treat these as "no data" rather than fatal.
func IsTransient(err error) bool {
	switch ClassOf(err) {
	case ClassRateLimit, ClassTimeout:
		return true
	}
	return false
}
