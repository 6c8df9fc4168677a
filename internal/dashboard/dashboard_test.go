package dashboard

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evboard/internal/archive"
	"evboard/internal/config"
	"evboard/internal/model"
)

var now = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

const header = "event_id,is_event_block,is_entry_scope_inner,event_name,image_m,started_at,ended_at,event_url_key,show_ranking\n"

type fakeFeed struct {
	body  string
	err   error
	calls int
}

func (f *fakeFeed) Fetch(ctx context.Context, url string) (archive.FetchResult, error) {
	f.calls++
	if f.err != nil {
		return archive.FetchResult{}, f.err
	}
	return archive.FetchResult{URL: url, Body: []byte(f.body)}, nil
}

type fakeLive struct {
	events []model.Event
	err    error
}

func (f *fakeLive) LiveEvents(ctx context.Context) ([]model.Event, error) {
	return f.events, f.err
}

type fakeEnrich struct{ calls int }

func (f *fakeEnrich) Rows(ctx context.Context, rows []model.Row) []model.Row {
	f.calls++
	out := make([]model.Row, len(rows))
	for i, r := range rows {
		r.Participants = model.CountOf(i + 1)
		out[i] = r
	}
	return out
}

type fakeUpdater struct {
	fresh []model.Event
	err   error
}

func (f *fakeUpdater) Update(ctx context.Context, fresh []model.Event) (archive.Result, error) {
	f.fresh = fresh
	return archive.Result{RunID: "run", Total: len(fresh), Added: len(fresh)}, f.err
}

func unix(t time.Time) int64 { return t.Unix() }

func newService(feed FeedSource, live LiveSource, enrich Enricher, upd ArchiveUpdater) *Service {
	cfg := config.DefaultConfig()
	cfg.Normalize()
	s := New(cfg, Options{FeedURL: "http://feed", Feed: feed, Live: live, Enrich: enrich, Updater: upd})
	s.now = func() time.Time { return now }
	return s
}

func archiveBody() string {
	return header +
		// ongoing, overridden by the live source
		"1,FALSE,FALSE,Old Name,,1715000000," + itoa(unix(now.Add(48*time.Hour))) + ",one,\n" +
		// upcoming
		"2,FALSE,TRUE,Upcoming,," + itoa(unix(now.Add(24*time.Hour))) + "," + itoa(unix(now.Add(72*time.Hour))) + ",two,\n" +
		// finished long ago
		"3,FALSE,FALSE,Ancient,,1600000000,1600086400,three,\n" +
		// excluded sentinel
		"12151,FALSE,FALSE,Sentinel,,1715000000," + itoa(unix(now.Add(48*time.Hour))) + ",sentinel,\n"
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func TestBoardMergesAndFilters(t *testing.T) {
	live := &fakeLive{events: []model.Event{{
		ID: "1", Name: "Live Name", URLKey: "one",
		StartedAt: now.Add(-time.Hour).Unix(), EndedAt: now.Add(48 * time.Hour).Unix(),
	}}}
	enr := &fakeEnrich{}
	s := newService(&fakeFeed{body: archiveBody()}, live, enr, nil)

	b := s.Board(context.Background(), DefaultSelection(), true)
	assert.Empty(t, b.Warnings)
	require.Len(t, b.Rows, 2)
	assert.Equal(t, "Live Name", b.Rows[0].Event.Name)
	assert.Equal(t, model.StatusOngoing, b.Rows[0].Status)
	assert.Equal(t, "2", b.Rows[1].Event.ID)
	assert.Equal(t, model.StatusUpcoming, b.Rows[1].Status)
	assert.Equal(t, model.CountOf(2), b.Rows[1].Participants)
	assert.Equal(t, 1, enr.calls)
	assert.Len(t, b.Events, 3, "sentinel is excluded from the base set")
}

func TestBoardFeedFailureIsWarning(t *testing.T) {
	s := newService(&fakeFeed{err: errors.New("dns")}, nil, &fakeEnrich{}, nil)

	b := s.Board(context.Background(), DefaultSelection(), true)
	assert.Equal(t, []string{WarnFeedFailed}, b.Warnings)
	assert.Empty(t, b.Rows)
}

func TestBoardLiveFailureKeepsArchive(t *testing.T) {
	s := newService(&fakeFeed{body: archiveBody()}, &fakeLive{err: errors.New("down")}, nil, nil)

	b := s.Board(context.Background(), DefaultSelection(), false)
	assert.Equal(t, []string{WarnLiveFailed}, b.Warnings)
	require.Len(t, b.Rows, 2)
	assert.Equal(t, "Old Name", b.Rows[0].Event.Name)
	assert.False(t, b.Rows[0].Participants.Available)
}

func TestBoardNoStatusSelected(t *testing.T) {
	enr := &fakeEnrich{}
	s := newService(&fakeFeed{body: archiveBody()}, nil, enr, nil)

	b := s.Board(context.Background(), Selection{}, true)
	assert.Contains(t, b.Warnings, WarnNoStatus)
	assert.Empty(t, b.Rows)
	assert.Equal(t, 0, enr.calls)
}

func TestSnapshotIsCachedUntilInvalidated(t *testing.T) {
	feed := &fakeFeed{body: archiveBody()}
	s := newService(feed, nil, nil, nil)

	s.Snapshot(context.Background())
	s.Snapshot(context.Background())
	assert.Equal(t, 1, feed.calls)

	s.now = func() time.Time { return now.Add(6 * time.Minute) }
	s.Snapshot(context.Background())
	assert.Equal(t, 2, feed.calls)

	s.Invalidate()
	s.Snapshot(context.Background())
	assert.Equal(t, 3, feed.calls)
}

func TestUpdateArchive(t *testing.T) {
	live := &fakeLive{events: []model.Event{{ID: "9", StartedAt: 1, EndedAt: 2}}}
	upd := &fakeUpdater{}
	feed := &fakeFeed{body: archiveBody()}
	s := newService(feed, live, nil, upd)
	s.Snapshot(context.Background())

	res, err := s.UpdateArchive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, live.events, upd.fresh)

	s.Snapshot(context.Background())
	assert.Equal(t, 2, feed.calls, "update drops the cached snapshot")
}

func TestUpdateArchiveErrors(t *testing.T) {
	s := newService(&fakeFeed{}, nil, nil, &fakeUpdater{})
	_, err := s.UpdateArchive(context.Background())
	assert.ErrorIs(t, err, ErrLiveDisabled)

	s = newService(&fakeFeed{}, &fakeLive{err: errors.New("down")}, nil, &fakeUpdater{})
	_, err = s.UpdateArchive(context.Background())
	assert.Error(t, err)

	writeErr := errors.New("ftp 552")
	s = newService(&fakeFeed{}, &fakeLive{}, nil, &fakeUpdater{err: writeErr})
	_, err = s.UpdateArchive(context.Background())
	assert.ErrorIs(t, err, writeErr)
}

func loadConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	cfg, err := config.Load(path)
	require.NoError(t, err)
	return cfg
}

func TestSentinelExcludedWhateverTheConfiguredList(t *testing.T) {
	ongoingEnd := itoa(unix(now.Add(48 * time.Hour)))
	body := header +
		"12151,FALSE,FALSE,Sentinel,,1715000000," + ongoingEnd + ",sentinel,\n" +
		"99,FALSE,FALSE,Configured,,1715000000," + ongoingEnd + ",configured,\n" +
		"5,FALSE,FALSE,Visible,,1715000000," + ongoingEnd + ",visible,\n"
	live := &fakeLive{events: []model.Event{{
		ID: "12151", Name: "Live sentinel", StartedAt: 1715000000, EndedAt: now.Add(48 * time.Hour).Unix(),
	}}}

	cases := map[string]struct {
		yaml string
		want []string
	}{
		"custom list":   {yaml: "filter:\n  excluded_ids: [\"99\"]\n", want: []string{"5"}},
		"explicit none": {yaml: "filter:\n  excluded_ids: []\n", want: []string{"99", "5"}},
		"omitted":       {yaml: "listen: \":9000\"\n", want: []string{"99", "5"}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := loadConfig(t, tc.yaml)
			s := New(cfg, Options{FeedURL: "http://feed", Feed: &fakeFeed{body: body}, Live: live})
			s.now = func() time.Time { return now }

			b := s.Board(context.Background(), DefaultSelection(), false)
			ids := make([]string, 0, len(b.Rows))
			for _, r := range b.Rows {
				ids = append(ids, r.Event.ID)
			}
			assert.Equal(t, tc.want, ids)
			for _, ev := range b.Events {
				assert.NotEqual(t, "12151", ev.ID)
			}
		})
	}
}

func TestDegradedSnapshotExpiresEarly(t *testing.T) {
	feed := &fakeFeed{err: errors.New("dns")}
	s := newService(feed, nil, nil, nil)

	snap := s.Snapshot(context.Background())
	assert.True(t, snap.Degraded)
	assert.Equal(t, 1, feed.calls)

	s.now = func() time.Time { return now.Add(DegradedTTL / 2) }
	s.Snapshot(context.Background())
	assert.Equal(t, 1, feed.calls)

	feed.err = nil
	feed.body = archiveBody()
	s.now = func() time.Time { return now.Add(DegradedTTL + time.Second) }
	snap = s.Snapshot(context.Background())
	assert.Equal(t, 2, feed.calls)
	assert.False(t, snap.Degraded)
	assert.NotEmpty(t, snap.Events)

	// A healthy snapshot keeps the full TTL.
	s.now = func() time.Time { return now.Add(DegradedTTL + 2*time.Minute) }
	s.Snapshot(context.Background())
	assert.Equal(t, 2, feed.calls)
}

type gatedFeed struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (f *gatedFeed) Fetch(ctx context.Context, url string) (archive.FetchResult, error) {
	f.calls.Add(1)
	f.once.Do(func() { close(f.started) })
	<-f.release
	if err := ctx.Err(); err != nil {
		return archive.FetchResult{}, err
	}
	return archive.FetchResult{URL: url, Body: []byte(archiveBody())}, nil
}

func TestConcurrentMissesShareOneLoad(t *testing.T) {
	feed := &gatedFeed{started: make(chan struct{}), release: make(chan struct{})}
	s := newService(feed, nil, nil, nil)

	var wg sync.WaitGroup
	results := make([]Snapshot, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = s.Snapshot(context.Background())
		}()
	}
	<-feed.started
	time.Sleep(20 * time.Millisecond)
	close(feed.release)
	wg.Wait()

	assert.Equal(t, int32(1), feed.calls.Load())
	for _, r := range results {
		assert.Len(t, r.Events, 3)
	}
}

func TestSharedLoadSurvivesCallerCancel(t *testing.T) {
	feed := &gatedFeed{started: make(chan struct{}), release: make(chan struct{})}
	s := newService(feed, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan Snapshot, 1)
	go func() { done <- s.Snapshot(ctx) }()
	<-feed.started
	cancel()
	close(feed.release)

	snap := <-done
	assert.False(t, snap.Degraded)
	assert.Len(t, snap.Events, 3)
}
