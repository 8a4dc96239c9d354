package http

import (
	"github.com/guestlist-api/internal/application/catalog"
	"github.com/guestlist-api/internal/application/lead"
	"github.com/guestlist-api/internal/application/operator"
	"github.com/guestlist-api/internal/application/verification"
	jwtinfra "github.com/guestlist-api/internal/infrastructure/jwt"
	"github.com/guestlist-api/internal/infrastructure/metrics"
	"github.com/guestlist-api/internal/pkg/otp"
	"github.com/prometheus/client_golang/prometheus"
)

// Deps holds all infrastructure dependencies for the router. Optional
// collaborators (Exports, Ingestion, Google, JWT) are left nil when their
// backend is not configured; the matching endpoints then report unavailable.
type Deps struct {
	Challenges verification.ChallengeStore
	Leads      lead.Store
	Events     catalog.EventStore
	Sessions   operator.SessionStore

	IssueLimiter verification.Limiter
	Delivery     verification.Delivery
	Generator    otp.Generator

	Exports   lead.ObjectStore
	Ingestion catalog.IngestionTrigger
	Google    operator.GoogleVerifier
	JWT       *jwtinfra.Provider

	Metrics  *metrics.Recorder
	Gatherer prometheus.Gatherer
}
