package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"evboard/internal/archive"
	"evboard/internal/config"
	"evboard/internal/event"
	appLog "evboard/internal/log"
	"evboard/internal/metrics"
	"evboard/internal/model"
)

// Warning messages shown above the table.
const (
	WarnNoStatus    = "ステータスを1つ以上選択してください"
	WarnFeedFailed  = "イベントアーカイブを取得できませんでした"
	WarnLiveFailed  = "開催中イベントの取得に失敗しました"
	WarnFeedInvalid = "イベントアーカイブの形式が不正です"
)

// DegradedTTL caps how long a snapshot with a failed source is reused, so
// the board recovers soon after the upstream does.
const DegradedTTL = 30 * time.Second

// ErrLiveDisabled is returned by UpdateArchive when no live source is wired.
var ErrLiveDisabled = errors.New("dashboard: live source disabled")

// FeedSource fetches the archive feed body.
type FeedSource interface {
	Fetch(ctx context.Context, url string) (archive.FetchResult, error)
}

// LiveSource lists the events currently known to the platform API.
type LiveSource interface {
	LiveEvents(ctx context.Context) ([]model.Event, error)
}

// Enricher fills Participants on rows.
type Enricher interface {
	Rows(ctx context.Context, rows []model.Row) []model.Row
}

// ArchiveUpdater persists fresh events into the archive.
type ArchiveUpdater interface {
	Update(ctx context.Context, fresh []model.Event) (archive.Result, error)
}

// Snapshot is the merged base event set shared by every request until it
// expires.
type Snapshot struct {
	Events    []model.Event
	Warnings  []string
	LoadedAt  time.Time
	FromCache bool // archive body came from the disk cache
	Degraded  bool // at least one source failed
}

// Selection is the per-request view choice.
type Selection struct {
	Statuses []model.Status
	Date     string
	Duration event.DurationBucket
	Scope    event.Scope
}

// DefaultSelection shows ongoing and upcoming events.
func DefaultSelection() Selection {
	return Selection{Statuses: []model.Status{model.StatusOngoing, model.StatusUpcoming}}
}

// Has reports whether st is selected.
func (s Selection) Has(st model.Status) bool {
	for _, v := range s.Statuses {
		if v == st {
			return true
		}
	}
	return false
}

// Board is one rendered dashboard.
type Board struct {
	Selection   Selection
	Rows        []model.Row
	Stats       event.Stats
	Warnings    []string
	Events      []model.Event // unfiltered base set, for date options
	GeneratedAt time.Time
}

// Options wires a Service.
type Options struct {
	FeedURL string
	Feed    FeedSource
	Live    LiveSource // nil disables the live source
	Enrich  Enricher
	Updater ArchiveUpdater
	Metrics *metrics.Metrics
}

// Service runs the request pipeline: load, merge, classify, filter, enrich.
type Service struct {
	opts      Options
	excluded  event.IDSet
	retention time.Duration
	loc       *time.Location
	ttl       time.Duration
	now       func() time.Time

	group singleflight.Group

	mu     sync.RWMutex
	cached *Snapshot
	gen    uint64 // bumped by Invalidate
}

func New(cfg *config.Config, opts Options) *Service {
	return &Service{
		opts:      opts,
		excluded:  event.ExcludedSet(cfg.Filter.ExcludedIDs...),
		retention: cfg.Retention(),
		loc:       cfg.Location(),
		ttl:       cfg.CacheTTL,
		now:       time.Now,
	}
}

// Location is the display zone.
func (s *Service) Location() *time.Location { return s.loc }

// Now is the service clock, in the display zone.
func (s *Service) Now() time.Time { return s.now().In(s.loc) }

// Invalidate drops the cached snapshot. A load already in flight is not
// stored.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.gen++
	s.mu.Unlock()
}

// Snapshot returns the merged base event set, reusing a cached one while
// it is younger than the configured TTL (DegradedTTL at most when a source
// failed). Concurrent misses share one load. Source failures become
// warnings.
func (s *Service) Snapshot(ctx context.Context) Snapshot {
	if c, _ := s.fresh(); c != nil {
		return *c
	}
	v, _, _ := s.group.Do("snapshot", func() (any, error) {
		c, gen := s.fresh()
		if c != nil {
			return *c, nil
		}
		// The load is shared; one caller going away must not cancel it.
		snap := s.load(context.WithoutCancel(ctx))
		s.mu.Lock()
		if s.gen == gen {
			s.cached = &snap
		}
		s.mu.Unlock()
		return snap, nil
	})
	return v.(Snapshot)
}

// fresh returns the cached snapshot if it is still valid, and the cache
// generation it was checked against.
func (s *Service) fresh() (*Snapshot, uint64) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.cached
	if c == nil || s.ttl <= 0 {
		return nil, s.gen
	}
	ttl := s.ttl
	if c.Degraded && ttl > DegradedTTL {
		ttl = DegradedTTL
	}
	if now.Sub(c.LoadedAt) < ttl {
		return c, s.gen
	}
	return nil, s.gen
}

func (s *Service) load(ctx context.Context) Snapshot {
	snap := Snapshot{LoadedAt: s.now()}

	var live []model.Event
	if s.opts.Live != nil {
		evs, err := s.opts.Live.LiveEvents(ctx)
		if err != nil {
			appLog.Error("live events unavailable", err)
			s.opts.Metrics.Fetch("live", "error")
			snap.Warnings = append(snap.Warnings, WarnLiveFailed)
			snap.Degraded = true
		} else {
			s.opts.Metrics.Fetch("live", "ok")
			live = evs
		}
	}

	var feed []model.Event
	res, err := s.opts.Feed.Fetch(ctx, s.opts.FeedURL)
	switch {
	case err != nil:
		appLog.Error("archive feed unavailable", err, "url", s.opts.FeedURL)
		s.opts.Metrics.Fetch("archive", "error")
		snap.Warnings = append(snap.Warnings, WarnFeedFailed)
		snap.Degraded = true
	default:
		if res.FromCache {
			s.opts.Metrics.Fetch("archive", "cache")
		} else {
			s.opts.Metrics.Fetch("archive", "ok")
		}
		snap.FromCache = res.FromCache
		evs, stats, perr := archive.ParseCSV(res.Body)
		switch {
		case errors.Is(perr, archive.ErrEmptyFeed):
			appLog.Warn("archive feed is empty", "url", s.opts.FeedURL)
		case perr != nil:
			appLog.Error("archive feed malformed", perr, "url", s.opts.FeedURL)
			snap.Warnings = append(snap.Warnings, WarnFeedInvalid)
			snap.Degraded = true
		default:
			feed = evs
			s.opts.Metrics.RowsDropped("bad_id", stats.BadID)
			s.opts.Metrics.RowsDropped("bad_time", stats.BadTime)
			s.opts.Metrics.RowsDropped("duplicate", stats.Duplicates)
			if stats.Dropped() > 0 {
				appLog.Info("archive rows dropped", "dropped", stats.Dropped(), "kept", stats.Kept)
			}
		}
	}

	snap.Events = event.Merge(live, feed, s.excluded)
	appLog.Info("event set loaded", "live", len(live), "archive", len(feed), "merged", len(snap.Events))
	return snap
}

// Filter builds the window filter for sel.
func (s *Service) Filter(sel Selection) event.Filter {
	statuses := make(map[model.Status]bool, len(sel.Statuses))
	for _, st := range sel.Statuses {
		statuses[st] = true
	}
	return event.Filter{
		Statuses:  statuses,
		Retention: s.retention,
		Date:      sel.Date,
		Duration:  sel.Duration,
		Scope:     sel.Scope,
		Excluded:  s.excluded,
	}
}

// Board loads, filters and enriches the events for sel. Enrichment is
// skipped when enrich is false (the iCalendar feed does not show counts).
func (s *Service) Board(ctx context.Context, sel Selection, enrich bool) Board {
	snap := s.Snapshot(ctx)
	b := Board{
		Selection:   sel,
		Events:      snap.Events,
		Warnings:    append([]string(nil), snap.Warnings...),
		GeneratedAt: s.Now(),
	}
	if len(sel.Statuses) == 0 {
		b.Warnings = append(b.Warnings, WarnNoStatus)
		return b
	}

	rows, stats := s.Filter(sel).Apply(snap.Events, s.now(), s.loc)
	b.Stats = stats
	appLog.Debug("filter applied", "total", stats.Total, "kept", stats.Kept,
		"excluded", stats.Excluded, "status", stats.Status, "retention", stats.Retention)
	if enrich && s.opts.Enrich != nil {
		rows = s.opts.Enrich.Rows(ctx, rows)
	}
	b.Rows = rows
	return b
}

// UpdateArchive fetches the live event list and merges it into the
// persisted archive. The cached snapshot is dropped on success.
func (s *Service) UpdateArchive(ctx context.Context) (archive.Result, error) {
	if s.opts.Live == nil {
		return archive.Result{}, ErrLiveDisabled
	}
	if s.opts.Updater == nil {
		return archive.Result{}, errors.New("dashboard: no archive store configured")
	}
	fresh, err := s.opts.Live.LiveEvents(ctx)
	if err != nil {
		s.opts.Metrics.ArchiveRun("error", 0, 0)
		return archive.Result{}, fmt.Errorf("archive update: fetch live events: %w", err)
	}
	res, err := s.opts.Updater.Update(ctx, fresh)
	if err != nil {
		s.opts.Metrics.ArchiveRun("error", 0, 0)
		appLog.Error("archive update failed", err, "run", res.RunID)
		return res, err
	}
	s.opts.Metrics.ArchiveRun("ok", res.Total, res.Added)
	appLog.Info("archive updated", "run", res.RunID, "added", res.Added, "total", res.Total)
	s.Invalidate()
	return res, nil
}
