package dynamo

// Attribute names used in hand-written expressions.
const (
	fieldEnable    = "enable"
	fieldUpdatedAt = "updated_at"

	fieldSubject     = "subject"
	fieldChallengeID = "challenge_id"
	fieldState       = "state"
	fieldVersion     = "version"
	fieldTokenHash   = "token_hash"
	fieldTokenUsed   = "token_used"
	fieldTokenExpiry = "token_expires_at"

	fieldEventID     = "event_id"
	fieldStatus      = "status"
	fieldContentHash = "content_hash"

	fieldStatID         = "stat_id"
	fieldEventsTotal    = "events_total"
	fieldEventsNew      = "events_new"
	fieldEventsUpdated  = "events_updated"
	fieldEventsImported = "events_imported"
	fieldLeadsTotal     = "leads_total"
)

// globalStatsID is the key of the single aggregate counters item.
const globalStatsID = "global"
