package web

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	appLog "evboard/internal/log"
)

type ctxKey int

const requestIDKey ctxKey = iota

// RequestID returns the id assigned to the request by the server, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusRecorder captures the response status for logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestMiddleware tags every request with an id, logs it and records its
// latency per route pattern.
func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		r = r.WithContext(context.WithValue(r.Context(), requestIDKey, id))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.opts.Metrics.Request(route, elapsed.Seconds())
		if r.URL.Path == "/health" || r.URL.Path == "/metrics" {
			return
		}
		appLog.Info("http request",
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"elapsed_ms", elapsed.Milliseconds(),
		)
	})
}

// adminEnabled reports whether admin credentials are configured.
func (s *Server) adminEnabled() bool {
	return s.cfg.Auth.Username != "" && s.cfg.Auth.PasswordHash != ""
}

// adminAuth gates next behind HTTP Basic Auth checked against the bcrypt
// hash in config. Without credentials the admin routes are closed.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.adminEnabled() {
			writeError(w, http.StatusForbidden, "admin endpoints are disabled")
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, s.cfg.Auth.Username) ||
			bcrypt.CompareHashAndPassword([]byte(s.cfg.Auth.PasswordHash), []byte(p)) != nil {
			appLog.Warn("admin auth failed", "request_id", RequestID(r.Context()), "remote", r.RemoteAddr)
			w.Header().Set("WWW-Authenticate", `Basic realm="evboard", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
