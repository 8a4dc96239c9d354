package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	// StoreDriver selects the persistence backend: "dynamo" or "memory".
	StoreDriver string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	S3BucketName string
	ExportURLTTL time.Duration

	SNSRegion      string
	IngestTopicARN string // empty disables the scrape trigger
	IngestCooldown time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration
	GoogleClientID    string
	OperatorEmails    []string

	OTP OTPConfig

	RedisURL       string // empty keeps the issuance limiter in process
	AllowedOrigins []string // CORS allowed origins
	CookieSecure   bool
	// TrustedProxies lists the CIDRs or addresses whose forwarding headers
	// the per-IP limiter honors. Empty keys on the connection address.
	TrustedProxies []string
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Challenges       string
	Leads            string
	Events           string
	Stats            string
	OperatorSessions string
}

// OTPConfig tunes the verification challenge flow.
type OTPConfig struct {
	TTL             time.Duration
	MaxAttempts     int
	PurgeGrace      time.Duration
	TokenTTL        time.Duration
	IssueLimit      int
	IssueWindow     time.Duration
	DeliveryTimeout time.Duration
	HashCost        int
	FixedCode       string // test mode only; refused in production
}

// Load reads all configuration from environment variables.
func Load() *Config {
	appEnv := getEnv("APP_ENV", "development")
	return &Config{
		AppPort:     getEnv("APP_PORT", "3000"),
		AppEnv:      appEnv,
		StoreDriver: getEnv("STORE_DRIVER", "dynamo"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Challenges:       getEnv("DYNAMO_TABLE_CHALLENGES", "otp_challenges"),
			Leads:            getEnv("DYNAMO_TABLE_LEADS", "leads"),
			Events:           getEnv("DYNAMO_TABLE_EVENTS", "events"),
			Stats:            getEnv("DYNAMO_TABLE_STATS", "stats"),
			OperatorSessions: getEnv("DYNAMO_TABLE_OPERATOR_SESSIONS", "operator_sessions"),
		},

		S3BucketName: getEnv("S3_BUCKET_NAME", "guestlist-exports"),
		ExportURLTTL: getEnvDuration("EXPORT_URL_TTL", 15*time.Minute),

		SNSRegion:      getEnv("SNS_REGION", "us-east-1"),
		IngestTopicARN: getEnv("INGEST_TOPIC_ARN", ""),
		IngestCooldown: getEnvDuration("INGEST_COOLDOWN", 2*time.Minute),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         getEnvDuration("JWT_EXPIRY", 12*time.Hour),
		GoogleClientID:    getEnv("GOOGLE_CLIENT_ID", ""),
		OperatorEmails:    splitList(getEnv("OPERATOR_EMAILS", "")),

		OTP: OTPConfig{
			TTL:             getEnvDuration("OTP_TTL", 10*time.Minute),
			MaxAttempts:     getEnvInt("OTP_MAX_ATTEMPTS", 5),
			PurgeGrace:      getEnvDuration("OTP_PURGE_GRACE", time.Hour),
			TokenTTL:        getEnvDuration("VERIFY_TOKEN_TTL", 10*time.Minute),
			IssueLimit:      getEnvInt("ISSUE_LIMIT", 5),
			IssueWindow:     getEnvDuration("ISSUE_WINDOW", 15*time.Minute),
			DeliveryTimeout: getEnvDuration("DELIVERY_TIMEOUT", 30*time.Second),
			HashCost:        getEnvInt("OTP_HASH_COST", bcrypt.DefaultCost),
			FixedCode:       getEnv("OTP_FIXED_CODE", ""),
		},

		RedisURL:       getEnv("REDIS_URL", ""),
		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		CookieSecure:   getEnvBool("COOKIE_SECURE", appEnv == "production"),
		TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "")),
	}
}

// Validate rejects combinations that would weaken the verification flow.
func (c *Config) Validate() error {
	var errs []error
	if c.StoreDriver != "dynamo" && c.StoreDriver != "memory" {
		errs = append(errs, errors.New("STORE_DRIVER must be dynamo or memory"))
	}
	if c.OTP.FixedCode != "" && c.AppEnv == "production" {
		errs = append(errs, errors.New("OTP_FIXED_CODE is not allowed in production"))
	}
	if c.OTP.TTL <= 0 || c.OTP.TokenTTL <= 0 || c.OTP.IssueWindow <= 0 {
		errs = append(errs, errors.New("OTP_TTL, VERIFY_TOKEN_TTL and ISSUE_WINDOW must be positive"))
	}
	if c.OTP.MaxAttempts < 1 || c.OTP.IssueLimit < 1 {
		errs = append(errs, errors.New("OTP_MAX_ATTEMPTS and ISSUE_LIMIT must be at least 1"))
	}
	if c.OTP.DeliveryTimeout <= 0 || c.OTP.DeliveryTimeout > 30*time.Second {
		errs = append(errs, errors.New("DELIVERY_TIMEOUT must be in (0, 30s]"))
	}
	if c.OTP.HashCost < bcrypt.MinCost || c.OTP.HashCost > bcrypt.MaxCost {
		errs = append(errs, errors.New("OTP_HASH_COST out of bcrypt range"))
	}
	for _, p := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			errs = append(errs, fmt.Errorf("TRUSTED_PROXIES entry %q is not an address or CIDR", p))
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
