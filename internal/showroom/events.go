package showroom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"evboard/internal/event"
	appLog "evboard/internal/log"
	"evboard/internal/model"
)

type searchEvent struct {
	EventID           any       `json:"event_id"`
	EventName         string    `json:"event_name"`
	EventURLKey       string    `json:"event_url_key"`
	IsEntryScopeInner flexBool  `json:"is_entry_scope_inner"`
	StartedAt         flexInt   `json:"started_at"`
	EndedAt           flexInt   `json:"ended_at"`
	ImageM            *string   `json:"image_m"`
	IsEventBlock      *flexBool `json:"is_event_block"`
	ShowRanking       *flexBool `json:"show_ranking"`
}

// searchResponse keeps event_list undecoded so that one malformed entry is
// dropped on its own instead of failing the page.
type searchResponse struct {
	nextPage
	EventList []json.RawMessage `json:"event_list"`
}

func (se searchEvent) toEvent() (model.Event, bool) {
	id, ok := event.NormalizeID(se.EventID)
	if !ok || se.StartedAt > se.EndedAt {
		return model.Event{}, false
	}
	return model.Event{
		ID:           id,
		Name:         se.EventName,
		URLKey:       se.EventURLKey,
		ScopeInner:   bool(se.IsEntryScopeInner),
		StartedAt:    int64(se.StartedAt),
		EndedAt:      int64(se.EndedAt),
		ImageM:       se.ImageM,
		IsEventBlock: se.IsEventBlock.ptr(),
		ShowRanking:  se.ShowRanking.ptr(),
	}, true
}

// SearchEvents returns one page of the event search for a platform status
// code, and whether more pages follow.
func (c *Client) SearchEvents(ctx context.Context, status, page int) ([]model.Event, bool, error) {
	q := url.Values{}
	q.Set("status", strconv.Itoa(status))
	q.Set("page", strconv.Itoa(page))

	var resp searchResponse
	if err := c.getJSON(ctx, "/api/event/search", q, &resp); err != nil {
		return nil, false, err
	}
	events := make([]model.Event, 0, len(resp.EventList))
	for i, raw := range resp.EventList {
		var se searchEvent
		if err := json.Unmarshal(raw, &se); err != nil {
			appLog.Warn("showroom search: malformed event skipped", "status", status, "page", page, "index", i, "err", err)
			continue
		}
		if ev, ok := se.toEvent(); ok {
			events = append(events, ev)
		} else {
			appLog.Debug("showroom search: invalid event skipped", "event_id", fmt.Sprint(se.EventID))
		}
	}
	return events, len(resp.EventList) > 0 && resp.more(page), nil
}

// LiveEvents walks every configured status and page. It fails only when no
// page at all could be read; partial results are returned with a nil error
// and the failures logged.
func (c *Client) LiveEvents(ctx context.Context) ([]model.Event, error) {
	var (
		all      []model.Event
		firstErr error
		okPages  int
	)
	for _, status := range c.statuses {
		for page := 1; ; page++ {
			if page > c.maxPages {
				logPageLimit("event_search", c.maxPages, "status", status)
				break
			}
			evs, more, err := c.SearchEvents(ctx, status, page)
			if err != nil {
				appLog.Error("showroom search failed", err, "status", status, "page", page)
				if firstErr == nil {
					firstErr = err
				}
				break
			}
			okPages++
			all = append(all, evs...)
			if !more {
				break
			}
		}
	}
	if okPages == 0 && firstErr != nil {
		return nil, fmt.Errorf("showroom live events: %w", firstErr)
	}
	return event.Dedupe(all), nil
}
