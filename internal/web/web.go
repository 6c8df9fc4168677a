package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"net"
	"net/http"
	"time"

	"evboard/internal/archive"
	"evboard/internal/capture"
	"evboard/internal/config"
	"evboard/internal/dashboard"
	appLog "evboard/internal/log"
	"evboard/internal/metrics"
	"evboard/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// Dashboard is the request pipeline behind the pages.
type Dashboard interface {
	Board(ctx context.Context, sel dashboard.Selection, enrich bool) dashboard.Board
	UpdateArchive(ctx context.Context) (archive.Result, error)
	Location() *time.Location
	Now() time.Time
}

// Leaderboard lists the ranked rooms of one event.
type Leaderboard interface {
	Leaderboard(ctx context.Context, eventID string) ([]model.Room, error)
}

// Links builds public URLs on the streaming platform.
type Links interface {
	EventURL(urlKey string) string
	RoomURL(urlKey string) string
}

// Options wires a Server.
type Options struct {
	Dashboard   Dashboard
	Leaderboard Leaderboard
	Links       Links
	Metrics     *metrics.Metrics
	Snapshotter capture.Snapshotter // nil disables /snapshot.png
}

// Server serves the dashboard, its exports and the admin endpoint.
type Server struct {
	cfg  *config.Config
	opts Options
	mux  *http.ServeMux
	tmpl *template.Template
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, opts Options) (*Server, error) {
	tmpl, err := template.New("").Funcs(templateFuncs(cfg.Location())).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	s := &Server{
		cfg:  cfg,
		opts: opts,
		mux:  http.NewServeMux(),
		tmpl: tmpl,
	}
	s.registerRoutes()
	return s, nil
}

// Handler returns the root handler with request logging applied.
func (s *Server) Handler() http.Handler {
	return s.requestMiddleware(s.mux)
}

// StartServer serves until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config, s *Server) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	appLog.Info("HTTP server shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.opts.Metrics.Handler())

	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /export.csv", s.handleExportCSV)
	s.mux.HandleFunc("GET /calendar.ics", s.handleCalendar)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /events/{id}/rooms", s.handleRooms)
	s.mux.HandleFunc("GET /api/events/{id}/rooms", s.handleRoomsJSON)
	s.mux.HandleFunc("GET /snapshot.png", s.handleSnapshot)

	s.mux.Handle("POST /admin/archive/update", s.adminAuth(http.HandlerFunc(s.handleArchiveUpdate)))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// selfURL is the loopback address the snapshot browser navigates to.
func (s *Server) selfURL() string {
	host, port, err := net.SplitHostPort(s.cfg.Listen)
	if err != nil {
		return "http://" + s.cfg.Listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
