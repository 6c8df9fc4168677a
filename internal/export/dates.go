package export

import (
	"time"

	"github.com/teambition/rrule-go"

	"evboard/internal/event"
	"evboard/internal/model"
)

// DefaultDateLimit caps the number of entries in the date dropdown.
const DefaultDateLimit = 62

// DateOption is one entry of the date dropdown.
type DateOption struct {
	Value string // event.DateLayout
	Label string
}

var weekdays = [...]string{"日", "月", "火", "水", "木", "金", "土"}

// DateOptions lists every calendar day (in loc) touched by events, starting
// no earlier than from, at most limit days. Events that ended before from
// are ignored.
func DateOptions(events []model.Event, from time.Time, loc *time.Location, limit int) []DateOption {
	if limit <= 0 {
		limit = DefaultDateLimit
	}
	from = midnight(from, loc)

	var first, last time.Time
	for _, ev := range events {
		end := midnight(ev.End(loc), loc)
		if end.Before(from) {
			continue
		}
		start := midnight(ev.Start(loc), loc)
		if start.Before(from) {
			start = from
		}
		if first.IsZero() || start.Before(first) {
			first = start
		}
		if last.IsZero() || end.After(last) {
			last = end
		}
	}
	if first.IsZero() {
		return nil
	}

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:    rrule.DAILY,
		Dtstart: first,
		Until:   last,
		Count:   limit,
	})
	if err != nil {
		return nil
	}
	days := r.All()
	out := make([]DateOption, 0, len(days))
	for _, d := range days {
		d = d.In(loc)
		out = append(out, DateOption{
			Value: d.Format(event.DateLayout),
			Label: d.Format("2006/01/02") + "(" + weekdays[d.Weekday()] + ")",
		})
	}
	return out
}

func midnight(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
