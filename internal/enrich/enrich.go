package enrich

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"evboard/internal/config"
	appLog "evboard/internal/log"
	"evboard/internal/metrics"
	"evboard/internal/model"
	"evboard/internal/showroom"
)

// RoomCounter returns the number of rooms entered in an event.
// showroom.ErrNotFound means the event has no room list.
type RoomCounter interface {
	RoomCount(ctx context.Context, eventID string) (int, error)
}

// RoomSource lists the rooms of an event and fetches room profiles.
type RoomSource interface {
	Rooms(ctx context.Context, eventID string) ([]model.Room, error)
	RoomProfile(ctx context.Context, roomID int64) (showroom.Profile, error)
}

// Enricher attaches best-effort data to events and rooms.
type Enricher struct {
	counter RoomCounter
	rooms   RoomSource
	pool    Pool
	metrics *metrics.Metrics
}

// New builds an Enricher. rooms may be nil when the leaderboard is not served.
func New(counter RoomCounter, rooms RoomSource, cfg config.EnrichConfig, m *metrics.Metrics) *Enricher {
	return &Enricher{
		counter: counter,
		rooms:   rooms,
		pool: Pool{
			Workers:      cfg.Workers,
			CallTimeout:  cfg.CallTimeout,
			BatchTimeout: cfg.BatchTimeout,
		},
		metrics: m,
	}
}

// Count looks up one participant count. A 404 means nobody entered (0);
// anything else that goes wrong is Unavailable.
func (e *Enricher) Count(ctx context.Context, eventID string) model.Count {
	n, err := e.counter.RoomCount(ctx, eventID)
	switch {
	case err == nil:
		e.metrics.Enrich("count", "ok")
		return model.CountOf(n)
	case errors.Is(err, showroom.ErrNotFound):
		e.metrics.Enrich("count", "not_found")
		return model.CountOf(0)
	default:
		e.metrics.Enrich("count", "unavailable")
		appLog.Debug("room count unavailable", "event_id", eventID, "err", err)
		return model.Unavailable
	}
}

// Counts looks up participant counts for ids, in input order.
func (e *Enricher) Counts(ctx context.Context, ids []string) []model.Count {
	start := time.Now()
	out := Map(ctx, e.pool, ids, e.Count)
	e.metrics.EnrichBatch(time.Since(start).Seconds())

	failed := 0
	for _, c := range out {
		if !c.Available {
			failed++
		}
	}
	if failed > 0 {
		appLog.Warn("some participant counts unavailable", "failed", failed, "total", len(ids))
	}
	return out
}

// Rows fills Participants on every row. The input slice is not modified.
func (e *Enricher) Rows(ctx context.Context, rows []model.Row) []model.Row {
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.Event.ID
	}
	counts := e.Counts(ctx, ids)
	out := make([]model.Row, len(rows))
	for i, r := range rows {
		r.Participants = counts[i]
		out[i] = r
	}
	return out
}

// Leaderboard lists the rooms of an event with their profiles, best first.
// Rooms whose profile cannot be fetched stay in the list with
// ProfileAvailable=false. Failing to list the rooms at all is an error.
func (e *Enricher) Leaderboard(ctx context.Context, eventID string) ([]model.Room, error) {
	if e.rooms == nil {
		return nil, errors.New("leaderboard: no room source configured")
	}
	rooms, err := e.rooms.Rooms(ctx, eventID)
	if err != nil {
		return nil, err
	}

	out := Map(ctx, e.pool, rooms, func(ctx context.Context, r model.Room) model.Room {
		p, err := e.rooms.RoomProfile(ctx, r.ID)
		if err != nil {
			e.metrics.Enrich("profile", "unavailable")
			appLog.Debug("room profile unavailable", "room_id", r.ID, "err", err)
			return r
		}
		e.metrics.Enrich("profile", "ok")
		r.ProfileAvailable = true
		r.Level = p.Level
		r.Followers = p.Followers
		r.Rank = p.Rank
		r.StreakDays = p.StreakDays
		return r
	})
	SortRooms(out)
	return out, nil
}

// SortRooms orders rooms by rank, then level, then followers, all
// descending. Ties keep the room list order.
func SortRooms(rooms []model.Room) {
	sort.SliceStable(rooms, func(i, j int) bool {
		a, b := rooms[i], rooms[j]
		if ra, rb := RankScore(a.Rank), RankScore(b.Rank); ra != rb {
			return ra > rb
		}
		if a.Level != b.Level {
			return a.Level > b.Level
		}
		return a.Followers > b.Followers
	})
}

var rankTiers = map[string]int{"SS": 5, "S": 4, "A": 3, "B": 2, "C": 1}

// RankScore maps a subdivided rank code such as "SS-3" or "A-1" to a
// comparable number. Tiers order SS > S > A > B > C; within a tier a lower
// step is better ("A-1" beats "A-5"). A code without a step sorts last in
// its tier. Unknown codes score 0.
func RankScore(code string) int {
	code = strings.ToUpper(strings.TrimSpace(code))
	tier, step, hasStep := strings.Cut(code, "-")
	weight, ok := rankTiers[tier]
	if !ok {
		return 0
	}
	n := 99
	if hasStep {
		if v, err := strconv.Atoi(step); err == nil && v >= 0 && v < 99 {
			n = v
		}
	}
	return weight*100 - n
}
