package model

import "time"

// Status is the lifecycle label of an event relative to a given instant.
// It is always derived from (StartedAt, EndedAt, now) and never stored.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusOngoing  Status = "ongoing"
	StatusFinished Status = "finished"
)

// AllStatuses lists every status in display order.
var AllStatuses = []Status{StatusOngoing, StatusUpcoming, StatusFinished}

// Label returns the Japanese label used in the dashboard.
func (s Status) Label() string {
	switch s {
	case StatusUpcoming:
		return "開催予定"
	case StatusOngoing:
		return "開催中"
	case StatusFinished:
		return "終了"
	default:
		return string(s)
	}
}

// ParseStatus accepts the English identifier or the Japanese label.
func ParseStatus(s string) (Status, bool) {
	for _, st := range AllStatuses {
		if s == string(st) || s == st.Label() {
			return st, true
		}
	}
	return "", false
}

// Event is one event record as carried by the archive feed and the live API.
//
// ID is always the normalized identifier (see event.NormalizeID). StartedAt
// and EndedAt are epoch seconds with StartedAt <= EndedAt. The optional
// passthrough columns are kept as pointers so that "absent" survives a round
// trip through the archive file.
type Event struct {
	ID           string
	Name         string
	URLKey       string
	ScopeInner   bool
	StartedAt    int64
	EndedAt      int64
	ImageM       *string
	IsEventBlock *bool
	ShowRanking  *bool
}

// Start returns StartedAt as a time in loc.
func (e Event) Start(loc *time.Location) time.Time {
	return time.Unix(e.StartedAt, 0).In(loc)
}

// End returns EndedAt as a time in loc.
func (e Event) End(loc *time.Location) time.Time {
	return time.Unix(e.EndedAt, 0).In(loc)
}

// Duration is EndedAt - StartedAt.
func (e Event) Duration() time.Duration {
	return time.Duration(e.EndedAt-e.StartedAt) * time.Second
}

// ScopeLabel is the audience label shown in the table and the CSV export.
func (e Event) ScopeLabel() string {
	if e.ScopeInner {
		return "対象者限定"
	}
	return "全ライバー"
}

// Count is the result of a best-effort lookup: either a value or
// "unavailable". A zero Count is unavailable.
type Count struct {
	Value     int
	Available bool
}

// CountOf returns an available Count holding n.
func CountOf(n int) Count { return Count{Value: n, Available: true} }

// Unavailable is the sentinel for a failed lookup.
var Unavailable = Count{}

// Row is an event enriched for one render cycle. Status and Participants
// are derived; Event is never modified after enrichment.
type Row struct {
	Event        Event
	Status       Status
	Participants Count
}

// Room is a participant room of an event, optionally enriched with its
// profile for the leaderboard view.
type Room struct {
	ID     int64
	Name   string
	URLKey string
	Point  int64

	ProfileAvailable bool
	Level            int
	Followers        int64
	Rank             string // tiered rank code, e.g. "SS-3", "A-1"
	StreakDays       int
}
