package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/guestlist-api/internal/domain"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is checked in order; the first sentinel the error wraps wins.
var errorTable = []errorMapping{
	{domain.ErrInvalidSubject, http.StatusBadRequest, "invalid_subject"},
	{domain.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
	{domain.ErrDeliveryFailed, http.StatusInternalServerError, "delivery_failed"},
	{domain.ErrNoActiveChallenge, http.StatusBadRequest, "no_active_challenge"},
	{domain.ErrExpired, http.StatusBadRequest, "expired"},
	{domain.ErrCodeMismatch, http.StatusBadRequest, "code_mismatch"},
	{domain.ErrTooManyAttempts, http.StatusTooManyRequests, "too_many_attempts"},
	{domain.ErrUnverified, http.StatusForbidden, "unverified"},
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domain.ErrForbidden, http.StatusForbidden, "forbidden"},
	{domain.ErrBadRequest, http.StatusBadRequest, "bad_request"},
	{domain.ErrBusy, http.StatusConflict, "busy"},
	{domain.ErrConflict, http.StatusConflict, "conflict"},
	{domain.ErrIngestionUnavailable, http.StatusServiceUnavailable, "ingestion_unavailable"},
	{domain.ErrExportUnavailable, http.StatusServiceUnavailable, "export_unavailable"},
}

var publicMessages = map[string]string{
	"delivery_failed":     "We could not send the code. Please request a new one.",
	"no_active_challenge": "This code is no longer valid. Please request a new one.",
	"expired":             "This code has expired. Please request a new one.",
	"code_mismatch":       "Incorrect code. Please try again.",
	"too_many_attempts":   "Too many attempts. Please request a new code.",
	"rate_limited":        "Too many codes requested. Please wait and try again.",
	"unverified":          "Please verify your email first.",
}

// httpError maps a service error to its status and stable code. Unmapped
// errors are logged and reported as a generic 500.
func httpError(w http.ResponseWriter, r *http.Request, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			msg, ok := publicMessages[m.code]
			if !ok {
				msg = err.Error()
			}
			if m.status >= http.StatusInternalServerError {
				slog.Warn("request failed", "path", r.URL.Path, "code", m.code, "err", err)
			}
			writeError(w, m.status, m.code, msg)
			return
		}
	}
	slog.Error("unhandled error", "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, "internal", "internal server error")
}
