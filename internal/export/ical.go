package export

import (
	"io"
	"time"

	ics "github.com/arran4/golang-ical"

	"evboard/internal/model"
)

const productID = "-//evboard//event dashboard//JA"

// WriteICS writes rows as an iCalendar feed, one VEVENT per event.
func WriteICS(w io.Writer, rows []model.Row, stamp time.Time, eventURL URLFunc) error {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName("SHOWROOM イベント")

	for _, r := range rows {
		ev := r.Event
		ve := cal.AddEvent(ev.ID + "@evboard")
		ve.SetDtStampTime(stamp.UTC())
		ve.SetStartAt(time.Unix(ev.StartedAt, 0).UTC())
		ve.SetEndAt(time.Unix(ev.EndedAt, 0).UTC())
		ve.SetSummary(ev.Name)
		ve.SetDescription(ev.ScopeLabel() + " / " + r.Status.Label())
		if eventURL != nil && ev.URLKey != "" {
			ve.SetURL(eventURL(ev.URLKey))
		}
	}

	_, err := io.WriteString(w, cal.Serialize())
	return err
}
