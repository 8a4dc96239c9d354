package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContentHash(t *testing.T) {
	date := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)
	base := DiscoveredEvent{EventID: "e1", Title: "Jazz", Venue: "Blue Room", Date: &date, SourceURL: "https://t.example/1"}

	same := base
	same.EventID = "other-id"
	assert.Equal(t, base.ContentHash(), same.ContentHash(), "id is not content")

	inOtherZone := base
	local := date.In(time.FixedZone("X", 3600))
	inOtherZone.Date = &local
	assert.Equal(t, base.ContentHash(), inOtherZone.ContentHash())

	retitled := base
	retitled.Title = "Jazz Night"
	assert.NotEqual(t, base.ContentHash(), retitled.ContentHash())

	// Field boundaries are delimited.
	a := DiscoveredEvent{Title: "ab", Venue: "c"}
	b := DiscoveredEvent{Title: "a", Venue: "bc"}
	assert.NotEqual(t, a.ContentHash(), b.ContentHash())
}

func TestEventStatusValid(t *testing.T) {
	assert.True(t, EventImported.Valid())
	assert.False(t, EventStatus("archived").Valid())
	assert.False(t, EventStatus("").Valid())
}
