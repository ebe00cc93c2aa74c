package service

import "errors"

// Sentinel errors returned by the service layer. The API boundary maps each
// one to a response code; anything else is an internal failure.
var (
	// ErrNotFound is returned when a requested entity does not exist, or a
	// readings query matches no rows where the operation treats that as absence.
	ErrNotFound = errors.New("not found")

	// ErrEmailTaken is returned when registering an email that already exists.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned on login with an unknown email or a
	// failed password comparison. The two cases are deliberately not
	// distinguishable by the caller.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUnauthenticated is returned by operations that require a resolved
	// identity with an organisation when the request carries neither.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrInvalidReading is returned for malformed ingest payloads that reach
	// the service without boundary validation (the MQTT path).
	ErrInvalidReading = errors.New("invalid reading")
)
