package handler

import (
	"net/http"
	"strconv"

	"github.com/guestlist-api/internal/application/lead"
)

// LeadHandler handles lead capture and the admin lead views.
type LeadHandler struct {
	svc lead.Service
}

func NewLeadHandler(svc lead.Service) *LeadHandler { return &LeadHandler{svc: svc} }

// Submit accepts a lead when it carries an unused verification token, taken
// from the body or, failing that, from the verification cookie.
func (h *LeadHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req lead.SubmitRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Token == "" {
		if c, err := r.Cookie(VerificationCookie); err == nil {
			req.Token = c.Value
		}
	}
	res, err := h.svc.Submit(r.Context(), req)
	if err != nil {
		httpError(w, r, err)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: VerificationCookie, Value: "", Path: "/api/leads", MaxAge: -1, HttpOnly: true})
	writeData(w, http.StatusCreated, redirectData{RedirectURL: res.RedirectURL})
}

func (h *LeadHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	leads, err := h.svc.List(r.Context(), limit)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, leads)
}

func (h *LeadHandler) Export(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Export(r.Context())
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}
