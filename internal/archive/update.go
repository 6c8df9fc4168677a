package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"evboard/internal/event"
	appLog "evboard/internal/log"
	"evboard/internal/model"
)

// LogTimeLayout is the timestamp layout of audit log lines.
const LogTimeLayout = "2006/01/02 15:04:05"

// MergeArchive appends fresh after old and keeps the last record per id, so
// fresh records override old ones on collision. Old records keep their
// position; fresh-only records follow. Ids are normalized on both sides and
// records with an invalid id are dropped.
func MergeArchive(old, fresh []model.Event) []model.Event {
	all := make([]model.Event, 0, len(old)+len(fresh))
	for _, src := range [][]model.Event{old, fresh} {
		for _, ev := range src {
			id, ok := event.NormalizeID(ev.ID)
			if !ok {
				continue
			}
			ev.ID = id
			all = append(all, ev)
		}
	}
	return event.Dedupe(all)
}

// Result describes one archive update run.
type Result struct {
	RunID string
	At    time.Time
	// OldTotal is the number of rows in the stored archive before the merge.
	OldTotal int
	Total    int
	// Added is Total - OldTotal. It is negative when the merged snapshot is
	// smaller than the previous one and is reported as-is.
	Added int
}

// LogLine renders the audit log line for r.
func (r Result) LogLine(loc *time.Location) string {
	return fmt.Sprintf("%s added=%d total=%d run=%s\n", r.At.In(loc).Format(LogTimeLayout), r.Added, r.Total, r.RunID)
}

// Updater merges fresh events into the persisted archive.
type Updater struct {
	store Store
	loc   *time.Location
	now   func() time.Time
}

func NewUpdater(store Store, loc *time.Location) *Updater {
	if loc == nil {
		loc = time.Local
	}
	return &Updater{store: store, loc: loc, now: time.Now}
}

// Update reads the archive, merges fresh into it, overwrites the archive
// with the result and appends an audit line.
//
// The archive write and the log append are separate operations. If the
// append fails after the archive was written, the archive is updated but
// the log is stale; the error is returned and nothing is rolled back.
func (u *Updater) Update(ctx context.Context, fresh []model.Event) (Result, error) {
	res := Result{RunID: uuid.NewString(), At: u.now()}

	var old []model.Event
	data, err := u.store.ReadArchive(ctx)
	switch {
	case errors.Is(err, ErrNotFound):
		appLog.Info("archive update: no existing archive", "store", u.store.Name(), "run", res.RunID)
	case err != nil:
		return res, fmt.Errorf("archive update: read: %w", err)
	default:
		parsed, stats, perr := ParseCSV(data)
		if perr != nil && !errors.Is(perr, ErrEmptyFeed) {
			return res, fmt.Errorf("archive update: parse existing archive: %w", perr)
		}
		old = parsed
		// OldTotal is the stored row count, before validation and dedup.
		res.OldTotal = stats.Rows
		if stats.Dropped() > 0 {
			appLog.Warn("archive update: rows dropped from existing archive", "dropped", stats.Dropped(), "run", res.RunID)
		}
	}

	merged := MergeArchive(old, fresh)
	res.Total = len(merged)
	res.Added = res.Total - res.OldTotal

	out, err := MarshalCSV(merged)
	if err != nil {
		return res, err
	}
	if err := u.store.WriteArchive(ctx, out); err != nil {
		return res, fmt.Errorf("archive update: write archive: %w", err)
	}
	if err := u.store.AppendLog(ctx, res.LogLine(u.loc)); err != nil {
		return res, fmt.Errorf("archive update: archive written but audit log append failed: %w", err)
	}

	appLog.Info("archive updated",
		"store", u.store.Name(),
		"run", res.RunID,
		"old_total", res.OldTotal,
		"total", res.Total,
		"added", res.Added,
	)
	return res, nil
}
