package domain

import "time"

// Lead is a verified contact captured for a catalog event. Leads are append-only.
type Lead struct {
	LeadID     string    `json:"id" dynamodbav:"lead_id"`
	Email      string    `json:"email" dynamodbav:"email"`
	EventID    string    `json:"eventId" dynamodbav:"event_id"`
	EventTitle string    `json:"eventTitle" dynamodbav:"event_title"`
	SourceURL  string    `json:"sourceUrl" dynamodbav:"source_url"`
	CreatedAt  time.Time `json:"createdAt" dynamodbav:"created_at"`
}

// Redemption identifies the verification token a lead write consumes.
type Redemption struct {
	Subject   string
	TokenHash string
	At        time.Time
}
