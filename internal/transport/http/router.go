package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/guestlist-api/internal/application/catalog"
	"github.com/guestlist-api/internal/application/lead"
	"github.com/guestlist-api/internal/application/operator"
	"github.com/guestlist-api/internal/application/verification"
	"github.com/guestlist-api/internal/config"
	"github.com/guestlist-api/internal/domain"
	"github.com/guestlist-api/internal/transport/http/handler"
	appmiddleware "github.com/guestlist-api/internal/transport/http/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// background cleanup of the per-IP limiter.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	proxies, err := appmiddleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		slog.Warn("ignoring trusted proxies, keying on connection address", "err", err)
		proxies = nil
	}
	// 5 requests/second, burst of 10, applied to the public write endpoints.
	publicRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(5), 10, proxies...)

	verificationSvc := verification.NewService(verification.ServiceDeps{
		Store:     deps.Challenges,
		Limiter:   deps.IssueLimiter,
		Delivery:  deps.Delivery,
		Generator: deps.Generator,
		Metrics:   deps.Metrics,
		Options: verification.Options{
			TTL:             cfg.OTP.TTL,
			MaxAttempts:     cfg.OTP.MaxAttempts,
			PurgeGrace:      cfg.OTP.PurgeGrace,
			TokenTTL:        cfg.OTP.TokenTTL,
			DeliveryTimeout: cfg.OTP.DeliveryTimeout,
			HashCost:        cfg.OTP.HashCost,
		},
	})
	leadSvc := lead.NewService(lead.ServiceDeps{
		Store:     deps.Leads,
		Events:    deps.Events,
		Exports:   deps.Exports,
		ExportTTL: cfg.ExportURLTTL,
		Metrics:   deps.Metrics,
	})
	catalogSvc := catalog.NewService(catalog.ServiceDeps{
		Store:    deps.Events,
		Trigger:  deps.Ingestion,
		Cooldown: cfg.IngestCooldown,
		Metrics:  deps.Metrics,
	})

	// Assigned only when set so a nil provider stays a nil interface.
	var (
		signer   operator.Signer
		verifier appmiddleware.TokenVerifier
	)
	if deps.JWT != nil {
		signer = deps.JWT
		verifier = deps.JWT
	}
	operatorSvc := operator.NewService(operator.ServiceDeps{
		Sessions:  deps.Sessions,
		Verifier:  deps.Google,
		Signer:    signer,
		Allowlist: cfg.OperatorEmails,
	})
	authMw := appmiddleware.Auth(verifier, operatorSvc)

	healthH := handler.NewHealthHandler()
	otpH := handler.NewOTPHandler(verificationSvc, cfg.CookieSecure)
	leadH := handler.NewLeadHandler(leadSvc)
	eventH := handler.NewEventHandler(catalogSvc)
	authH := handler.NewAuthHandler(operatorSvc)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	// ── Public routes (no auth) ──────────────────────────────────────────
	r.Get("/health-check/{action}", healthH.Ping)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(publicRL.Limit)
			r.Post("/otp/send", otpH.Send)
			r.Post("/otp/resend", otpH.Resend)
			r.Post("/otp/verify", otpH.Verify)
			r.Post("/leads", leadH.Submit)
		})
		r.Get("/events", eventH.List)

		// ── Operator routes ──────────────────────────────────────────────
		r.Route("/admin", func(r chi.Router) {
			r.Use(authMw)
			r.Use(appmiddleware.RequireRole(domain.RoleOperator))

			r.Get("/stats", eventH.Stats)
			r.Post("/stats/reconcile", eventH.Reconcile)
			r.Get("/events", eventH.List)
			r.Post("/events/ingest", eventH.Ingest)
			r.Post("/events/{id}/import", eventH.Import)
			r.Post("/scrape", eventH.Scrape)
			r.Get("/leads", leadH.List)
			r.Post("/leads/export", leadH.Export)
		})
	})

	r.Route("/auth", func(r chi.Router) {
		r.With(publicRL.Limit).Post("/google", authH.Google)
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Get("/current_user", authH.Current)
			r.Post("/logout", authH.Logout)
		})
	})

	return r
}
