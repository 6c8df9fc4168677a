package event

import (
	"time"

	"evboard/internal/model"
)

// DefaultRetention is the cutoff after which finished events are hidden.
const DefaultRetention = 14 * 24 * time.Hour

// DateLayout is the layout of Filter.Date.
const DateLayout = "2006-01-02"

// DurationBucket groups events by EndedAt - StartedAt.
type DurationBucket string

const (
	BucketAny   DurationBucket = ""
	Bucket3d    DurationBucket = "3d"
	Bucket7d    DurationBucket = "7d"
	Bucket10d   DurationBucket = "10d"
	Bucket14d   DurationBucket = "14d"
	BucketOther DurationBucket = "other"
)

// Buckets lists the selectable buckets in ascending order.
var Buckets = []DurationBucket{Bucket3d, Bucket7d, Bucket10d, Bucket14d, BucketOther}

// Label returns the dropdown label for the bucket.
func (b DurationBucket) Label() string {
	switch b {
	case Bucket3d:
		return "3日以内"
	case Bucket7d:
		return "1週間以内"
	case Bucket10d:
		return "10日以内"
	case Bucket14d:
		return "2週間以内"
	case BucketOther:
		return "その他"
	default:
		return "すべて"
	}
}

// BucketOf maps a duration to its bucket. Bounds are inclusive.
func BucketOf(d time.Duration) DurationBucket {
	const day = 24 * time.Hour
	switch {
	case d <= 3*day:
		return Bucket3d
	case d <= 7*day:
		return Bucket7d
	case d <= 10*day:
		return Bucket10d
	case d <= 14*day:
		return Bucket14d
	default:
		return BucketOther
	}
}

// Scope selects events by audience.
type Scope string

const (
	ScopeAny   Scope = ""
	ScopeInner Scope = "inner"
	ScopeOpen  Scope = "open"
)

// Filter is the request-scoped selection applied to classified events.
// The zero value selects nothing because Statuses is empty.
type Filter struct {
	// Statuses is the set of statuses to show.
	Statuses map[model.Status]bool
	// Retention hides finished events whose EndedAt is older than now-Retention.
	// Zero means DefaultRetention.
	Retention time.Duration
	// Date, when set (DateLayout), keeps events whose localized start or end
	// date equals it.
	Date string
	// Duration, when set, keeps events in that bucket.
	Duration DurationBucket
	// Scope, when set, keeps events with that audience.
	Scope Scope
	// Excluded ids never pass.
	Excluded IDSet
}

// Stats counts why events were dropped; useful for logs and metrics.
type Stats struct {
	Total     int
	Kept      int
	Excluded  int
	Status    int
	Retention int
	Date      int
	Duration  int
	Scope     int
}

// Match classifies ev and reports whether it passes f, together with its status.
func (f Filter) Match(ev model.Event, now time.Time, loc *time.Location) (model.Status, bool) {
	st, reason := f.match(ev, now, loc)
	return st, reason == ""
}

func (f Filter) match(ev model.Event, now time.Time, loc *time.Location) (model.Status, string) {
	st := Classify(ev, now)
	if f.Excluded.Has(ev.ID) {
		return st, "excluded"
	}
	if !f.Statuses[st] {
		return st, "status"
	}
	if st == model.StatusFinished {
		retention := f.Retention
		if retention <= 0 {
			retention = DefaultRetention
		}
		if now.Unix()-ev.EndedAt > int64(retention/time.Second) {
			return st, "retention"
		}
	}
	if f.Date != "" {
		if loc == nil {
			loc = time.Local
		}
		if ev.Start(loc).Format(DateLayout) != f.Date && ev.End(loc).Format(DateLayout) != f.Date {
			return st, "date"
		}
	}
	if f.Duration != BucketAny && BucketOf(ev.Duration()) != f.Duration {
		return st, "duration"
	}
	switch f.Scope {
	case ScopeInner:
		if !ev.ScopeInner {
			return st, "scope"
		}
	case ScopeOpen:
		if ev.ScopeInner {
			return st, "scope"
		}
	}
	return st, ""
}

// Apply returns the events that pass f as rows carrying their status, in
// input order. Participants are left unavailable for the enrichment step.
func (f Filter) Apply(events []model.Event, now time.Time, loc *time.Location) ([]model.Row, Stats) {
	stats := Stats{Total: len(events)}
	rows := make([]model.Row, 0, len(events))
	for _, ev := range events {
		st, reason := f.match(ev, now, loc)
		switch reason {
		case "":
			rows = append(rows, model.Row{Event: ev, Status: st})
			stats.Kept++
		case "excluded":
			stats.Excluded++
		case "status":
			stats.Status++
		case "retention":
			stats.Retention++
		case "date":
			stats.Date++
		case "duration":
			stats.Duration++
		case "scope":
			stats.Scope++
		}
	}
	return rows, stats
}
