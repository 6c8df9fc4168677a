package web

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"evboard/internal/capture"
	"evboard/internal/dashboard"
	"evboard/internal/event"
	"evboard/internal/export"
	appLog "evboard/internal/log"
	"evboard/internal/model"
	"evboard/internal/showroom"
)

type indexPage struct {
	Board       dashboard.Board
	Statuses    []model.Status
	Buckets     []event.DurationBucket
	DateOptions []export.DateOption
	Query       string
	Links       Links
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	sel := parseSelection(r.URL.Query())
	b := s.opts.Dashboard.Board(r.Context(), sel, true)

	from := s.opts.Dashboard.Now().Add(-s.cfg.Retention())
	page := indexPage{
		Board:       b,
		Statuses:    model.AllStatuses,
		Buckets:     event.Buckets,
		DateOptions: export.DateOptions(b.Events, from, s.opts.Dashboard.Location(), 0),
		Query:       encodeSelection(sel),
		Links:       s.opts.Links,
	}
	s.render(w, http.StatusOK, "index.html", page)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	b := s.opts.Dashboard.Board(r.Context(), parseSelection(r.URL.Query()), true)

	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, b.Rows, s.opts.Dashboard.Location(), s.opts.Links.EventURL); err != nil {
		appLog.Error("csv export failed", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "failed to build CSV")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(b.GeneratedAt)+`"`)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	b := s.opts.Dashboard.Board(r.Context(), parseSelection(r.URL.Query()), false)

	var buf bytes.Buffer
	if err := export.WriteICS(&buf, b.Rows, b.GeneratedAt, s.opts.Links.EventURL); err != nil {
		appLog.Error("ics export failed", err, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusInternalServerError, "failed to build calendar")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	GeneratedAt time.Time  `json:"generated_at"`
	Timezone    string     `json:"timezone"`
	Warnings    []string   `json:"warnings"`
	Events      []eventDTO `json:"events"`
}

type eventDTO struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	URL          string    `json:"url,omitempty"`
	ScopeInner   bool      `json:"scope_inner"`
	Scope        string    `json:"scope"`
	Status       string    `json:"status"`
	StatusLabel  string    `json:"status_label"`
	StartedAt    time.Time `json:"started_at"`
	EndedAt      time.Time `json:"ended_at"`
	Participants *int      `json:"participants"`
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	b := s.opts.Dashboard.Board(r.Context(), parseSelection(r.URL.Query()), true)
	loc := s.opts.Dashboard.Location()

	resp := eventsResponse{
		GeneratedAt: b.GeneratedAt,
		Timezone:    loc.String(),
		Warnings:    b.Warnings,
		Events:      make([]eventDTO, 0, len(b.Rows)),
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	for _, row := range b.Rows {
		dto := eventDTO{
			ID:          row.Event.ID,
			Name:        row.Event.Name,
			ScopeInner:  row.Event.ScopeInner,
			Scope:       row.Event.ScopeLabel(),
			Status:      string(row.Status),
			StatusLabel: row.Status.Label(),
			StartedAt:   row.Event.Start(loc),
			EndedAt:     row.Event.End(loc),
		}
		if row.Event.URLKey != "" {
			dto.URL = s.opts.Links.EventURL(row.Event.URLKey)
		}
		if row.Participants.Available {
			n := row.Participants.Value
			dto.Participants = &n
		}
		resp.Events = append(resp.Events, dto)
	}
	writeJSON(w, http.StatusOK, resp)
}

type roomsPage struct {
	EventID string
	Rooms   []model.Room
	Error   string
	Links   Links
}

// loadRooms resolves the {id} path value and fetches the leaderboard.
func (s *Server) loadRooms(r *http.Request) (string, []model.Room, int, error) {
	id, ok := event.NormalizeID(r.PathValue("id"))
	if !ok {
		return "", nil, http.StatusBadRequest, errors.New("invalid event id")
	}
	if s.opts.Leaderboard == nil {
		return id, nil, http.StatusNotFound, errors.New("leaderboard is not available")
	}
	rooms, err := s.opts.Leaderboard.Leaderboard(r.Context(), id)
	switch {
	case errors.Is(err, showroom.ErrNotFound):
		return id, nil, http.StatusNotFound, errors.New("event has no room list")
	case err != nil:
		appLog.Error("leaderboard failed", err, "event_id", id, "request_id", RequestID(r.Context()))
		return id, nil, http.StatusBadGateway, errors.New("room list unavailable")
	}
	return id, rooms, http.StatusOK, nil
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	id, rooms, status, err := s.loadRooms(r)
	page := roomsPage{EventID: id, Rooms: rooms, Links: s.opts.Links}
	if err != nil {
		page.Error = err.Error()
	}
	s.render(w, status, "rooms.html", page)
}

type roomDTO struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	URL              string `json:"url,omitempty"`
	Point            int64  `json:"point"`
	ProfileAvailable bool   `json:"profile_available"`
	Level            int    `json:"level"`
	Followers        int64  `json:"followers"`
	Rank             string `json:"rank"`
	StreakDays       int    `json:"streak_days"`
}

func (s *Server) handleRoomsJSON(w http.ResponseWriter, r *http.Request) {
	_, rooms, status, err := s.loadRooms(r)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	out := make([]roomDTO, 0, len(rooms))
	for _, rm := range rooms {
		dto := roomDTO{
			ID:               rm.ID,
			Name:             rm.Name,
			Point:            rm.Point,
			ProfileAvailable: rm.ProfileAvailable,
			Level:            rm.Level,
			Followers:        rm.Followers,
			Rank:             rm.Rank,
			StreakDays:       rm.StreakDays,
		}
		if rm.URLKey != "" {
			dto.URL = s.opts.Links.RoomURL(rm.URLKey)
		}
		out = append(out, dto)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if s.opts.Snapshotter == nil || !s.cfg.Capture.Enabled {
		writeError(w, http.StatusNotFound, "snapshot is disabled")
		return
	}
	target := s.selfURL() + "/?" + encodeSelection(parseSelection(r.URL.Query()))
	png, err := s.opts.Snapshotter.Snapshot(r.Context(), capture.Options{
		URL:     target,
		Width:   s.cfg.Capture.Width,
		Height:  s.cfg.Capture.Height,
		Timeout: s.cfg.Capture.Timeout,
	})
	if err != nil {
		appLog.Error("snapshot failed", err, "url", target, "request_id", RequestID(r.Context()))
		writeError(w, http.StatusBadGateway, "failed to capture snapshot")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

type archiveUpdateResponse struct {
	RunID    string    `json:"run_id"`
	At       time.Time `json:"at"`
	OldTotal int       `json:"old_total"`
	Total    int       `json:"total"`
	Added    int       `json:"added"`
}

func (s *Server) handleArchiveUpdate(w http.ResponseWriter, r *http.Request) {
	res, err := s.opts.Dashboard.UpdateArchive(r.Context())
	if err != nil {
		if errors.Is(err, dashboard.ErrLiveDisabled) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, archiveUpdateResponse{
		RunID:    res.RunID,
		At:       res.At,
		OldTotal: res.OldTotal,
		Total:    res.Total,
		Added:    res.Added,
	})
}

// render executes a page template into a buffer first so that a template
// error still produces a clean 500.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		appLog.Error("template render failed", err, "template", name)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
