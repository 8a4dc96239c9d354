package handler

import (
	"net/http"

	"github.com/guestlist-api/internal/application/operator"
	"github.com/guestlist-api/internal/pkg/validate"
	"github.com/guestlist-api/internal/transport/http/middleware"
)

// AuthHandler handles operator sign-in.
type AuthHandler struct {
	svc operator.Service
}

func NewAuthHandler(svc operator.Service) *AuthHandler { return &AuthHandler{svc: svc} }

func (h *AuthHandler) Google(w http.ResponseWriter, r *http.Request) {
	var req operator.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}
	res, err := h.svc.LoginWithGoogle(r.Context(), req.IDToken)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *AuthHandler) Current(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	sess, err := h.svc.Current(r.Context(), claims.SessionID)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sess)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "unauthorized")
		return
	}
	if err := h.svc.Logout(r.Context(), claims.SessionID); err != nil {
		httpError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "logged out")
}
