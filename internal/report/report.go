// Package report answers day-scoped queries over the persisted shards.
package report

import (
	"encoding/json"
	"log/slog"
	"net"
	"strings"
	"time"

	"monitor.chat/stat-recorder-backend/internal/event"
	"monitor.chat/stat-recorder-backend/internal/logstore"
)

// Store is the read side of the log store.
type Store interface {
	Read(kind event.Kind, t time.Time) (logstore.Document, error)
}

// UserRow is one user seen during a day with every address it used.
type UserRow struct {
	ID  string   `json:"id"`
	IPs []string `json:"ips"`
}

// SpeedRow groups response-time samples sharing a station and client IP.
// Provider and UserID are pinned by the first sample that carries them.
type SpeedRow struct {
	Station  string    `json:"station"`
	ClientIP string    `json:"client_ip"`
	Provider string    `json:"provider,omitempty"`
	UserID   string    `json:"user_id,omitempty"`
	Samples  []float64 `json:"samples"`
}

// Aggregator reads shards on the caller's goroutine; it is not coordinated
// with the recorder and may observe a document that is one write behind.
type Aggregator struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Aggregator {
	return &Aggregator{store: store, logger: logger}
}

// Users folds every user item recorded on day into one row per user.
// Rows keep first-seen order.
func (a *Aggregator) Users(day time.Time) ([]UserRow, error) {
	doc, err := a.store.Read(event.KindUsers, day)
	if err != nil {
		return nil, err
	}

	rows := []UserRow{}
	index := make(map[string]int)
	seen := make(map[string]map[string]struct{})

	for _, tag := range doc.Tags() {
		for _, raw := range doc.Items(tag) {
			var e event.UserEntry
			if err := json.Unmarshal(raw, &e); err != nil {
				a.logger.Error("user item error",
					slog.String("tag", tag),
					slog.String("item", string(raw)),
					slog.String("err", err.Error()),
				)
				continue
			}

			i, ok := index[e.ID]
			if !ok {
				i = len(rows)
				index[e.ID] = i
				rows = append(rows, UserRow{ID: e.ID, IPs: []string{}})
				seen[e.ID] = make(map[string]struct{})
			}
			for _, ip := range e.IPs {
				if _, dup := seen[e.ID][ip]; dup || ip == "" {
					continue
				}
				seen[e.ID][ip] = struct{}{}
				rows[i].IPs = append(rows[i].IPs, ip)
			}
		}
	}
	return rows, nil
}

// Speeds groups every valid speed sample recorded on day.
func (a *Aggregator) Speeds(day time.Time) ([]SpeedRow, error) {
	doc, err := a.store.Read(event.KindSpeeds, day)
	if err != nil {
		return nil, err
	}

	var rows []*SpeedRow
	for _, tag := range doc.Tags() {
		for _, raw := range doc.Items(tag) {
			var item event.SpeedItem
			if err := json.Unmarshal(raw, &item); err != nil {
				a.logger.Error("speed item error",
					slog.String("tag", tag),
					slog.String("item", string(raw)),
					slog.String("err", err.Error()),
				)
				continue
			}
			if item.ResponseTime == nil || *item.ResponseTime <= 0 {
				a.logger.Error("response time error",
					slog.String("tag", tag),
					slog.String("station", item.Station),
					slog.String("client", item.Client),
				)
				continue
			}

			clientIP := hostOf(item.Client)
			row := findRow(rows, item, clientIP)
			if row == nil {
				row = &SpeedRow{Station: item.Station, ClientIP: clientIP}
				rows = append(rows, row)
			}
			if row.Provider == "" {
				row.Provider = item.Provider
			}
			if row.UserID == "" {
				row.UserID = item.U
			}
			row.Samples = append(row.Samples, *item.ResponseTime)
		}
	}

	out := make([]SpeedRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, nil
}

// findRow returns the bucket item belongs to: same station and client IP,
// and no conflicting pinned provider or user.
func findRow(rows []*SpeedRow, item event.SpeedItem, clientIP string) *SpeedRow {
	for _, r := range rows {
		if r.Station != item.Station || r.ClientIP != clientIP {
			continue
		}
		if conflicts(r.Provider, item.Provider) || conflicts(r.UserID, item.U) {
			continue
		}
		return r
	}
	return nil
}

func conflicts(pinned, v string) bool {
	return pinned != "" && v != "" && pinned != v
}

// hostOf strips the port from a "host:port" address.
func hostOf(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	if i := strings.LastIndexByte(addr, ':'); i >= 0 && strings.Count(addr, ":") == 1 {
		return addr[:i]
	}
	return addr
}
