package auth

import "errors"

var (
	// ErrInvalidCredentials covers unknown email, wrong password, missing
	// password and inactive account alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken covers unknown, used and expired one-time tokens.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrStoreUnavailable wraps failures of the durable store.
	ErrStoreUnavailable = errors.New("session store unavailable")
	// ErrNotFound is returned by a Store when no row matches.
	ErrNotFound = errors.New("not found")
	// ErrWeakPassword is returned when a new password is too short.
	ErrWeakPassword = errors.New("password too short")
	// ErrPasswordTooLong is returned when a new password exceeds
	// MaxPasswordLength bytes.
	ErrPasswordTooLong = errors.New("password too long")
	// ErrEmailTaken is returned when an address belongs to another account.
	ErrEmailTaken = errors.New("email already in use")
)
