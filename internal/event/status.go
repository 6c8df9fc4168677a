package event

import (
	"time"

	"evboard/internal/model"
)

// Classify labels ev relative to now.
//
// The interval is closed: an event is ongoing at both now == StartedAt and
// now == EndedAt. It is upcoming strictly before StartedAt and finished
// strictly after EndedAt, so the label is monotonic in now.
func Classify(ev model.Event, now time.Time) model.Status {
	ts := now.Unix()
	switch {
	case ts < ev.StartedAt:
		return model.StatusUpcoming
	case ts > ev.EndedAt:
		return model.StatusFinished
	default:
		return model.StatusOngoing
	}
}
