package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	// Verification flow.
	ErrInvalidSubject    = errors.New("invalid subject")
	ErrRateLimited       = errors.New("rate limited")
	ErrDeliveryFailed    = errors.New("delivery failed")
	ErrNoActiveChallenge = errors.New("no active challenge")
	ErrExpired           = errors.New("challenge expired")
	ErrCodeMismatch      = errors.New("code mismatch")
	ErrTooManyAttempts   = errors.New("too many attempts")
	ErrUnverified        = errors.New("unverified")

	// Ingestion trigger and exports.
	ErrBusy                 = errors.New("busy")
	ErrIngestionUnavailable = errors.New("ingestion unavailable")
	ErrExportUnavailable    = errors.New("export storage unavailable")
)
