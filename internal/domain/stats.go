package domain

// Stats is the aggregate summary of the catalog and the lead ledger.
// Every store mutation that changes an event status or appends a lead updates
// it in the same transaction.
type Stats struct {
	Events EventStats `json:"events"`
	Leads  LeadStats  `json:"leads"`
}

type EventStats struct {
	Total    int64 `json:"total"`
	New      int64 `json:"new"`
	Updated  int64 `json:"updated"`
	Imported int64 `json:"imported"`
}

type LeadStats struct {
	Total int64 `json:"total"`
}

// StatsDelta is the counter change caused by one mutation.
type StatsDelta struct {
	Total    int64
	New      int64
	Updated  int64
	Imported int64
	Leads    int64
}

// IsZero reports whether the delta changes nothing.
func (d StatsDelta) IsZero() bool { return d == StatsDelta{} }

// TransitionDelta returns the counter change for an event moving from prev to
// next. An empty prev means the event is being created.
func TransitionDelta(prev, next EventStatus) StatsDelta {
	var d StatsDelta
	if prev == next {
		return d
	}
	if prev == "" {
		d.Total = 1
	}
	d.add(prev, -1)
	d.add(next, 1)
	return d
}

func (d *StatsDelta) add(s EventStatus, n int64) {
	switch s {
	case EventNew:
		d.New += n
	case EventUpdated:
		d.Updated += n
	case EventImported:
		d.Imported += n
	}
}

// Apply adds d to s. Per-status counters are floored at zero.
func (s Stats) Apply(d StatsDelta) Stats {
	s.Events.Total = floor(s.Events.Total + d.Total)
	s.Events.New = floor(s.Events.New + d.New)
	s.Events.Updated = floor(s.Events.Updated + d.Updated)
	s.Events.Imported = floor(s.Events.Imported + d.Imported)
	s.Leads.Total = floor(s.Leads.Total + d.Leads)
	return s
}

func floor(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// Consistent reports whether the per-status counters add up to the total.
func (s Stats) Consistent() bool {
	return s.Events.Total == s.Events.New+s.Events.Updated+s.Events.Imported
}
