package archive

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gocarina/gocsv"

	"evboard/internal/event"
	appLog "evboard/internal/log"
	"evboard/internal/model"
)

// ErrEmptyFeed is returned when the archive body has no content at all.
var ErrEmptyFeed = errors.New("archive: empty feed")

var utf8BOM = []byte("\xef\xbb\xbf")

// row is the on-the-wire shape of one archive line. Every column is read as
// text so that a bad value only invalidates its own row.
type row struct {
	EventID           string `csv:"event_id"`
	IsEventBlock      string `csv:"is_event_block"`
	IsEntryScopeInner string `csv:"is_entry_scope_inner"`
	EventName         string `csv:"event_name"`
	ImageM            string `csv:"image_m"`
	StartedAt         string `csv:"started_at"`
	EndedAt           string `csv:"ended_at"`
	EventURLKey       string `csv:"event_url_key"`
	ShowRanking       string `csv:"show_ranking"`
}

// ParseStats reports how many rows were read and why rows were dropped.
type ParseStats struct {
	Rows       int
	Kept       int
	BadID      int
	BadTime    int
	Duplicates int
}

// Dropped is the number of rows that did not become events.
func (s ParseStats) Dropped() int { return s.Rows - s.Kept }

// ParseCSV parses an archive feed into events.
//
// Row-level problems (invalid id, unparsable or inverted timestamps) drop
// the row and are counted in ParseStats; they never fail the parse. Within
// one feed the last row for an id wins.
func ParseCSV(body []byte) ([]model.Event, ParseStats, error) {
	var stats ParseStats
	body = bytes.TrimPrefix(body, utf8BOM)
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, stats, ErrEmptyFeed
	}

	r := csv.NewReader(bytes.NewReader(body))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows []row
	if err := gocsv.UnmarshalCSV(r, &rows); err != nil {
		return nil, stats, fmt.Errorf("archive: parse csv: %w", err)
	}

	stats.Rows = len(rows)
	events := make([]model.Event, 0, len(rows))
	for i, rw := range rows {
		ev, reason := rw.toEvent()
		switch reason {
		case "":
			events = append(events, ev)
		case "id":
			stats.BadID++
			appLog.Debug("archive row dropped", "line", i+2, "reason", reason, "event_id", rw.EventID)
		default:
			stats.BadTime++
			appLog.Debug("archive row dropped", "line", i+2, "reason", reason, "event_id", rw.EventID,
				"started_at", rw.StartedAt, "ended_at", rw.EndedAt)
		}
	}

	deduped := event.Dedupe(events)
	stats.Duplicates = len(events) - len(deduped)
	stats.Kept = len(deduped)
	return deduped, stats, nil
}

func (rw row) toEvent() (model.Event, string) {
	id, ok := event.NormalizeID(rw.EventID)
	if !ok {
		return model.Event{}, "id"
	}
	start, err := parseEpoch(rw.StartedAt)
	if err != nil {
		return model.Event{}, "started_at"
	}
	end, err := parseEpoch(rw.EndedAt)
	if err != nil {
		return model.Event{}, "ended_at"
	}
	if start > end {
		return model.Event{}, "inverted"
	}
	return model.Event{
		ID:           id,
		Name:         strings.TrimSpace(rw.EventName),
		URLKey:       strings.TrimSpace(rw.EventURLKey),
		ScopeInner:   parseFlag(rw.IsEntryScopeInner),
		StartedAt:    start,
		EndedAt:      end,
		ImageM:       optString(rw.ImageM),
		IsEventBlock: optBool(rw.IsEventBlock),
		ShowRanking:  optBool(rw.ShowRanking),
	}, ""
}

// maxEpoch bounds accepted timestamps well inside int64 so that float
// inputs such as "1e30" cannot overflow on conversion.
const maxEpoch = 1 << 62

// parseEpoch accepts integer seconds, optionally written as a float with a
// zero fraction ("1700000000.0").
func parseEpoch(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > maxEpoch || n < -maxEpoch {
			return 0, fmt.Errorf("epoch out of range: %q", s)
		}
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("not an epoch second: %q", s)
	}
	if f > maxEpoch || f < -maxEpoch {
		return 0, fmt.Errorf("epoch out of range: %q", s)
	}
	return int64(f), nil
}

// parseFlag is true only for TRUE (any case) or 1.
func parseFlag(s string) bool {
	s = strings.ToUpper(strings.TrimSpace(s))
	return s == "TRUE" || s == "1"
}

func optBool(s string) *bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return nil
	}
	return &b
}

func optString(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// MarshalCSV encodes events in the archive column layout.
func MarshalCSV(events []model.Event) ([]byte, error) {
	rows := make([]row, 0, len(events))
	for _, ev := range events {
		rows = append(rows, row{
			EventID:           ev.ID,
			IsEventBlock:      fmtOptBool(ev.IsEventBlock),
			IsEntryScopeInner: fmtBool(ev.ScopeInner),
			EventName:         ev.Name,
			ImageM:            derefString(ev.ImageM),
			StartedAt:         strconv.FormatInt(ev.StartedAt, 10),
			EndedAt:           strconv.FormatInt(ev.EndedAt, 10),
			EventURLKey:       ev.URLKey,
			ShowRanking:       fmtOptBool(ev.ShowRanking),
		})
	}
	out, err := gocsv.MarshalBytes(&rows)
	if err != nil {
		return nil, fmt.Errorf("archive: marshal csv: %w", err)
	}
	return out, nil
}

func fmtBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}

func fmtOptBool(b *bool) string {
	if b == nil {
		return ""
	}
	return fmtBool(*b)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
