// Package httpapi exposes the day reports over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/quartz"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"monitor.chat/stat-recorder-backend/internal/command"
	"monitor.chat/stat-recorder-backend/internal/report"
)

const (
	dateLayout     = "2006-01-02"
	maxCommandBody = 4 << 10
)

// Commander runs a free-text command and returns the reply text.
type Commander interface {
	Handle(ctx context.Context, text string) string
}

type api struct {
	reporter command.Reporter
	commands Commander
	clock    quartz.Clock
	loc      *time.Location
	logger   *slog.Logger
}

type Option func(*api)

func WithClock(c quartz.Clock) Option { return func(a *api) { a.clock = c } }

func WithLocation(loc *time.Location) Option { return func(a *api) { a.loc = loc } }

func WithLogger(l *slog.Logger) Option { return func(a *api) { a.logger = l } }

// SpeedRow is a report.SpeedRow with its trimmed summary.
type SpeedRow struct {
	report.SpeedRow
	Label string `json:"label"`
	Count int    `json:"count"`
}

// NewRouter mounts:
//
//	GET  /healthz
//	GET  /v1/users?date=yyyy-mm-dd
//	GET  /v1/speeds?date=yyyy-mm-dd
//	POST /v1/command   (text/plain in, text/plain out)
func NewRouter(reporter command.Reporter, commands Commander, opts ...Option) http.Handler {
	a := &api{
		reporter: reporter,
		commands: commands,
		clock:    quartz.NewReal(),
		loc:      time.Local,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/users", a.handleUsers)
		v1.Get("/speeds", a.handleSpeeds)
		v1.Post("/command", a.handleCommand)
	})

	return r
}

func (a *api) day(r *http.Request) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("date"))
	if raw == "" {
		return a.clock.Now().In(a.loc), true
	}
	day, err := time.ParseInLocation(dateLayout, raw, a.loc)
	return day, err == nil
}

func (a *api) handleUsers(w http.ResponseWriter, r *http.Request) {
	day, ok := a.day(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid date, expected yyyy-mm-dd")
		return
	}
	rows, err := a.reporter.Users(r.Context(), day)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "users report failed", slog.String("err", err.Error()))
		writeError(w, http.StatusInternalServerError, "users report failed")
		return
	}
	if rows == nil {
		rows = []report.UserRow{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format(dateLayout), "users": rows})
}

func (a *api) handleSpeeds(w http.ResponseWriter, r *http.Request) {
	day, ok := a.day(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid date, expected yyyy-mm-dd")
		return
	}
	rows, err := a.reporter.Speeds(r.Context(), day)
	if err != nil {
		a.logger.ErrorContext(r.Context(), "speeds report failed", slog.String("err", err.Error()))
		writeError(w, http.StatusInternalServerError, "speeds report failed")
		return
	}

	out := make([]SpeedRow, 0, len(rows))
	for _, row := range rows {
		label, count := report.Summarize(row.Samples)
		out = append(out, SpeedRow{SpeedRow: row, Label: label, Count: count})
	}
	writeJSON(w, http.StatusOK, map[string]any{"date": day.Format(dateLayout), "speeds": out})
}

func (a *api) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, a.commands.Handle(r.Context(), string(body)))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
