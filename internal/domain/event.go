package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// EventStatus is the promotion lifecycle of a catalog event.
// new -> updated happens on ingestion; new|updated -> imported on operator import.
// imported is terminal.
type EventStatus string

const (
	EventNew      EventStatus = "new"
	EventUpdated  EventStatus = "updated"
	EventImported EventStatus = "imported"
)

// Valid reports whether s is a known status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventNew, EventUpdated, EventImported:
		return true
	}
	return false
}

// Event is an externally sourced catalog item.
type Event struct {
	EventID      string      `json:"id" dynamodbav:"event_id"`
	Title        string      `json:"title" dynamodbav:"title"`
	Venue        string      `json:"venue" dynamodbav:"venue"`
	Date         *time.Time  `json:"date" dynamodbav:"event_date"`
	Image        *string     `json:"image" dynamodbav:"image"`
	SourceURL    string      `json:"sourceUrl" dynamodbav:"source_url"`
	Status       EventStatus `json:"status" dynamodbav:"status"`
	ContentHash  string      `json:"-" dynamodbav:"content_hash"`
	DiscoveredAt time.Time   `json:"discoveredAt" dynamodbav:"discovered_at"`
	UpdatedAt    time.Time   `json:"updatedAt" dynamodbav:"updated_at"`
	ImportedAt   *time.Time  `json:"importedAt,omitempty" dynamodbav:"imported_at"`
}

// DiscoveredEvent is one record reported by the ingestion process.
type DiscoveredEvent struct {
	EventID   string     `json:"id" validate:"required"`
	Title     string     `json:"title" validate:"required"`
	Venue     string     `json:"venue"`
	Date      *time.Time `json:"date"`
	Image     *string    `json:"image" validate:"omitempty,url"`
	SourceURL string     `json:"sourceUrl" validate:"required,url"`
}

// ContentHash fingerprints the source-controlled fields so ingestion can tell
// a changed record from a re-discovered one.
func (d DiscoveredEvent) ContentHash() string {
	var b strings.Builder
	b.WriteString(d.Title)
	b.WriteByte(0)
	b.WriteString(d.Venue)
	b.WriteByte(0)
	if d.Date != nil {
		b.WriteString(d.Date.UTC().Format(time.RFC3339))
	}
	b.WriteByte(0)
	if d.Image != nil {
		b.WriteString(*d.Image)
	}
	b.WriteByte(0)
	b.WriteString(d.SourceURL)
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// ScrapeRequest asks the external ingestion process for a fresh discovery run.
type ScrapeRequest struct {
	RequestID   string    `json:"requestId"`
	RequestedBy string    `json:"requestedBy"`
	RequestedAt time.Time `json:"requestedAt"`
}
