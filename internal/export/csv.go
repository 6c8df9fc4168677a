package export

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"evboard/internal/model"
)

// TimeLayout is the display format for start and end times.
const TimeLayout = "2006/01/02 15:04"

// csvRow is one line of the downloadable table. Column order follows the
// struct.
type csvRow struct {
	Name         string `csv:"イベント名"`
	Scope        string `csv:"対象"`
	Start        string `csv:"開始"`
	End          string `csv:"終了"`
	Participants string `csv:"参加ルーム数"`
	URL          string `csv:"イベントURL"`
}

// URLFunc builds the public page URL of an event from its url key.
type URLFunc func(urlKey string) string

// WriteCSV writes rows as UTF-8 CSV with a byte order mark so that
// spreadsheet software detects the encoding. Unavailable participant counts
// are written as an empty cell.
func WriteCSV(w io.Writer, rows []model.Row, loc *time.Location, eventURL URLFunc) error {
	out := make([]csvRow, 0, len(rows))
	for _, r := range rows {
		cr := csvRow{
			Name:  r.Event.Name,
			Scope: r.Event.ScopeLabel(),
			Start: r.Event.Start(loc).Format(TimeLayout),
			End:   r.Event.End(loc).Format(TimeLayout),
		}
		if r.Participants.Available {
			cr.Participants = strconv.Itoa(r.Participants.Value)
		}
		if eventURL != nil && r.Event.URLKey != "" {
			cr.URL = eventURL(r.Event.URLKey)
		}
		out = append(out, cr)
	}

	tw := transform.NewWriter(w, unicode.UTF8BOM.NewEncoder())
	if err := gocsv.Marshal(out, tw); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	return tw.Close()
}

// Filename is the download name for an export generated at t.
func Filename(t time.Time) string {
	return "showroom_events_" + t.Format("20060102_1504") + ".csv"
}
