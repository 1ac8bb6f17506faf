// Package services contains the application's business logic: per-user
// settings resolution, command dispatch, the per-session connection state
// machine, and stats aggregation. Services depend on small consumer-side
// store interfaces so they can be exercised with fakes.
package services

import "errors"

var (
	// ErrNumberRequired indicates a pairing request without a phone number.
	ErrNumberRequired = errors.New("number is required")

	// ErrInvalidNumber indicates the supplied phone number failed validation.
	ErrInvalidNumber = errors.New("invalid phone number")

	// ErrPairingFailed indicates the transport could not issue a pairing code.
	ErrPairingFailed = errors.New("pairing failed")
)
