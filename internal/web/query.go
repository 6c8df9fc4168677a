package web

import (
	"net/url"
	"strings"
	"time"

	"evboard/internal/dashboard"
	"evboard/internal/event"
	"evboard/internal/model"
)

// parseSelection reads the sidebar form. Without the form marker "f" the
// default selection applies, so that a bare "/" shows ongoing and upcoming
// events while a submitted form with every status unchecked selects none.
func parseSelection(q url.Values) dashboard.Selection {
	sel := dashboard.DefaultSelection()
	if q.Get("f") != "" || q.Has("status") {
		sel.Statuses = nil
		seen := map[model.Status]bool{}
		for _, raw := range q["status"] {
			for _, part := range strings.Split(raw, ",") {
				st, ok := model.ParseStatus(strings.TrimSpace(part))
				if ok && !seen[st] {
					seen[st] = true
					sel.Statuses = append(sel.Statuses, st)
				}
			}
		}
	}

	if d := strings.TrimSpace(q.Get("date")); d != "" {
		if _, err := time.Parse(event.DateLayout, d); err == nil {
			sel.Date = d
		}
	}
	if b := event.DurationBucket(q.Get("duration")); b != event.BucketAny {
		for _, known := range event.Buckets {
			if b == known {
				sel.Duration = b
			}
		}
	}
	switch event.Scope(q.Get("scope")) {
	case event.ScopeInner:
		sel.Scope = event.ScopeInner
	case event.ScopeOpen:
		sel.Scope = event.ScopeOpen
	}
	return sel
}

// encodeSelection is the inverse of parseSelection; links to the exports
// carry the current view.
func encodeSelection(sel dashboard.Selection) string {
	q := url.Values{}
	q.Set("f", "1")
	for _, st := range sel.Statuses {
		q.Add("status", string(st))
	}
	if sel.Date != "" {
		q.Set("date", sel.Date)
	}
	if sel.Duration != event.BucketAny {
		q.Set("duration", string(sel.Duration))
	}
	if sel.Scope != event.ScopeAny {
		q.Set("scope", string(sel.Scope))
	}
	return q.Encode()
}
