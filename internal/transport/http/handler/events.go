package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/guestlist-api/internal/application/catalog"
	"github.com/guestlist-api/internal/domain"
	"github.com/guestlist-api/internal/transport/http/middleware"
)

type ingestRequest struct {
	Events []domain.DiscoveredEvent `json:"events"`
}

// EventHandler serves the catalog and the operator import workflow.
type EventHandler struct {
	svc catalog.Service
}

func NewEventHandler(svc catalog.Service) *EventHandler { return &EventHandler{svc: svc} }

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	events, err := h.svc.List(r.Context(), catalog.ListFilter{
		Status: domain.EventStatus(q.Get("status")),
		Limit:  limit,
	})
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, events)
}

func (h *EventHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (h *EventHandler) Import(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Import(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (h *EventHandler) Scrape(w http.ResponseWriter, r *http.Request) {
	requestedBy := ""
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		requestedBy = claims.Email
	}
	req, err := h.svc.TriggerIngestion(r.Context(), requestedBy)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, Envelope{Success: true, Message: "ingestion requested", Data: req})
}

func (h *EventHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !decode(w, r, &req) {
		return
	}
	report, err := h.svc.Ingest(r.Context(), req.Events)
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func (h *EventHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Reconcile(r.Context())
	if err != nil {
		httpError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res)
}
