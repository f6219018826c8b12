package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no pass matched the given id or OTP.
	ErrNotFound = errors.New("pass not found")

	// ErrExpired means the pass was observed past its validity window.
	ErrExpired = errors.New("pass expired")

	// ErrOTPInUse is returned by a store when another active pass already
	// holds the OTP being inserted.
	ErrOTPInUse = errors.New("otp already in use by an active pass")

	// ErrStatusConflict is returned by a store when a compare-and-swap
	// transition finds a status other than the expected one.
	ErrStatusConflict = errors.New("pass status changed concurrently")

	// ErrConflictingCredential means more than one active pending pass
	// shares an OTP. Unreachable under correct issuance; handled anyway.
	ErrConflictingCredential = errors.New("conflicting credential")

	// ErrOTPSpaceExhausted means issuance could not find a free OTP after
	// bounded retries. Fatal: the 4-digit space is saturated.
	ErrOTPSpaceExhausted = errors.New("otp space exhausted")
)

// ValidationError reports a bad or missing issuance field, or a malformed
// OTP on manual entry.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DecodeError reports a malformed QR payload.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return "decode payload: " + e.Reason
}

// AlreadyFinalizedError reports that a pass left Pending before the caller
// got to it. Status carries the actual terminal state so callers can say
// what happened.
type AlreadyFinalizedError struct {
	Status PassStatus
}

func (e *AlreadyFinalizedError) Error() string {
	return fmt.Sprintf("pass already finalized as %s", e.Status)
}
