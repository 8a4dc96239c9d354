package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/guestlist-api/internal/config"
	"github.com/guestlist-api/internal/infrastructure/dynamo"
	"github.com/guestlist-api/internal/infrastructure/google"
	jwtinfra "github.com/guestlist-api/internal/infrastructure/jwt"
	"github.com/guestlist-api/internal/infrastructure/memory"
	"github.com/guestlist-api/internal/infrastructure/metrics"
	redisinfra "github.com/guestlist-api/internal/infrastructure/redis"
	s3infra "github.com/guestlist-api/internal/infrastructure/s3"
	"github.com/guestlist-api/internal/infrastructure/smtp"
	"github.com/guestlist-api/internal/infrastructure/sns"
	"github.com/guestlist-api/internal/pkg/otp"
	transporthttp "github.com/guestlist-api/internal/transport/http"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	deps := &transporthttp.Deps{}
	wireStores(ctx, cfg, deps)
	wireIssueLimiter(ctx, cfg, deps)

	// Code generator: a fixed code only outside production (Validate enforces it).
	if cfg.OTP.FixedCode != "" {
		log.Println("WARN: OTP_FIXED_CODE is set, every challenge uses the same code")
		deps.Generator = otp.Fixed(cfg.OTP.FixedCode)
	} else {
		deps.Generator = otp.NewRandom(otp.CodeLength)
	}
	deps.Delivery = smtp.NewCodeSender(smtp.NewMailer(cfg), cfg.OTP.TTL)

	// Lead export bucket (optional).
	if cfg.S3BucketName != "" {
		s3Client, err := s3infra.NewClient(ctx, cfg)
		if err != nil {
			log.Printf("WARN: S3 export not available: %v", err)
		} else {
			deps.Exports = s3infra.NewStore(s3Client, cfg.S3BucketName)
		}
	}

	// Scrape trigger (optional).
	if cfg.IngestTopicARN != "" {
		if trigger, err := sns.NewTrigger(ctx, cfg); err == nil {
			deps.Ingestion = trigger
		} else {
			log.Printf("WARN: ingestion trigger not available: %v", err)
		}
	}

	// Operator sign-in needs both a Google client and signing keys.
	if cfg.GoogleClientID != "" {
		deps.Google = google.NewVerifier(cfg.GoogleClientID)
	}
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		deps.JWT = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deps.Metrics = metrics.NewRecorder(reg)
	deps.Gatherer = reg

	router := transporthttp.NewRouter(ctx, cfg, deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second, // covers the 30s delivery bound on /api/otp/send
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, store=%s)", cfg.AppPort, cfg.AppEnv, cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}

// wireStores selects the persistence backend.
func wireStores(ctx context.Context, cfg *config.Config, deps *transporthttp.Deps) {
	if cfg.StoreDriver == "memory" {
		db := memory.New()
		go db.RunJanitor(ctx, time.Minute)
		deps.Challenges = db.Challenges()
		deps.Leads = db.Leads()
		deps.Events = db.Events()
		deps.Sessions = db.Sessions()
		return
	}

	client, err := dynamo.NewClient(ctx, cfg)
	if err != nil {
		log.Fatalf("dynamodb client: %v", err)
	}
	// Creates the tables if they don't exist.
	dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
	deps.Challenges = dynamo.NewChallengeRepo(client, cfg.DynamoTables.Challenges)
	deps.Leads = dynamo.NewLeadRepo(client, cfg.DynamoTables)
	deps.Events = dynamo.NewEventRepo(client, cfg.DynamoTables)
	deps.Sessions = dynamo.NewOperatorSessionRepo(client, cfg.DynamoTables.OperatorSessions)
}

// wireIssueLimiter shares the issuance window through Redis when configured,
// otherwise keeps it in process.
func wireIssueLimiter(ctx context.Context, cfg *config.Config, deps *transporthttp.Deps) {
	if cfg.RedisURL != "" {
		client, err := redisinfra.NewClient(ctx, cfg.RedisURL)
		if err == nil {
			deps.IssueLimiter = redisinfra.NewWindowLimiter(client, cfg.OTP.IssueLimit, cfg.OTP.IssueWindow)
			return
		}
		log.Printf("WARN: redis not available, using in-process limiter: %v", err)
	}
	l := memory.NewWindowLimiter(cfg.OTP.IssueLimit, cfg.OTP.IssueWindow)
	go l.RunCleanup(ctx, time.Minute)
	deps.IssueLimiter = l
}
