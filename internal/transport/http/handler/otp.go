package handler

import (
	"net/http"

	"github.com/guestlist-api/internal/application/verification"
	"github.com/guestlist-api/internal/pkg/validate"
)

// VerificationCookie carries the single-use verification token to the lead form.
const VerificationCookie = "lead_verification"

type otpRequest struct {
	Email string `json:"email"`
}

type verifyRequest struct {
	Email string `json:"email" validate:"required"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
}

// OTPHandler handles the email verification endpoints.
type OTPHandler struct {
	svc          verification.Service
	secureCookie bool
}

func NewOTPHandler(svc verification.Service, secureCookie bool) *OTPHandler {
	return &OTPHandler{svc: svc, secureCookie: secureCookie}
}

func (h *OTPHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Issue(r.Context(), req.Email); err != nil {
		httpError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "verification code sent")
}

func (h *OTPHandler) Resend(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.Resend(r.Context(), req.Email); err != nil {
		httpError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "verification code sent")
}

func (h *OTPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if !decode(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "otp must be exactly 6 digits")
		return
	}
	res, err := h.svc.Verify(r.Context(), req.Email, req.OTP)
	if err != nil {
		httpError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     VerificationCookie,
		Value:    res.Token,
		Path:     "/api/leads",
		Expires:  res.ExpiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeData(w, http.StatusOK, res)
}
