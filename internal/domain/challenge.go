package domain

import (
	"strings"
	"time"
)

// ChallengeState is the lifecycle position of a verification challenge.
type ChallengeState string

const (
	ChallengePending   ChallengeState = "pending"
	ChallengeVerified  ChallengeState = "verified"
	ChallengeExpired   ChallengeState = "expired"
	ChallengeExhausted ChallengeState = "exhausted"
)

// Challenge is the one outstanding one-time-code issuance for a subject.
// PK: subject. Issuing a new challenge replaces the record, so a subject never
// has two live challenges. PurgeAt is a Unix timestamp used as DynamoDB TTL.
type Challenge struct {
	Subject     string         `json:"subject" dynamodbav:"subject"`
	ChallengeID string         `json:"id" dynamodbav:"challenge_id"`
	CodeHash    string         `json:"-" dynamodbav:"code_hash"`
	State       ChallengeState `json:"state" dynamodbav:"state"`
	Attempts    int            `json:"attempts" dynamodbav:"attempts"`
	IssuedAt    time.Time      `json:"issued_at" dynamodbav:"issued_at"`
	ExpiresAt   time.Time      `json:"expires_at" dynamodbav:"expires_at"`
	// Superseded holds code hashes of challenges this one replaced, newest first.
	Superseded     []string  `json:"-" dynamodbav:"superseded,omitempty"`
	TokenHash      string    `json:"-" dynamodbav:"token_hash,omitempty"`
	TokenExpiresAt time.Time `json:"-" dynamodbav:"token_expires_at,unixtime"`
	TokenUsed      bool      `json:"-" dynamodbav:"token_used"`
	Version        int64     `json:"-" dynamodbav:"version"`
	PurgeAt        int64     `json:"-" dynamodbav:"purge_at"`
}

// Live reports whether the challenge can still be verified at now.
func (c *Challenge) Live(now time.Time) bool {
	return c.State == ChallengePending && !now.After(c.ExpiresAt)
}

// Redeemable reports whether tokenHash can back a lead write at now.
func (c *Challenge) Redeemable(tokenHash string, now time.Time) bool {
	return c.State == ChallengeVerified &&
		c.TokenHash != "" &&
		c.TokenHash == tokenHash &&
		!c.TokenUsed &&
		!now.After(c.TokenExpiresAt)
}

// NormalizeSubject lower-cases and trims a contact identity.
func NormalizeSubject(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
