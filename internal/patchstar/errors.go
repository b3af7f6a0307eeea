package patchstar

import "errors"

// Domain errors for the patchstar package.
//
// Transport timeouts surface as serial.ErrTimeout wrapped by the failing
// operation; they are deliberately not redeclared here.
var (
	// ErrProtocol is returned when a reply is received but does not match
	// the expected grammar (wrong field count, non-integer fields).
	ErrProtocol = errors.New("patchstar: malformed reply")

	// ErrConsistency is returned when the device state contradicts an
	// action just taken, e.g. still moving after a stop was acknowledged.
	// This is fatal: the device ignored a command the driver believes it
	// issued, and there is no safe recovery.
	ErrConsistency = errors.New("patchstar: device state contradicts last command")

	// ErrInvalidSpeed is returned when a non-positive speed is requested.
	ErrInvalidSpeed = errors.New("patchstar: speed must be a positive integer")
)
