// Package logstore persists one JSON document per (log kind, day). Every
// write replaces the whole document atomically.
package logstore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio/v2"

	"monitor.chat/stat-recorder-backend/internal/event"
	"monitor.chat/stat-recorder-backend/internal/timebucket"
)

var ErrMissingTemplate = errors.New("missing log path template")

// Store resolves shard paths from per-kind templates containing {yyyy},
// {mm} and {dd} placeholders.
type Store struct {
	templates map[event.Kind]string
	loc       *time.Location
	logger    *slog.Logger
	perm      os.FileMode
}

type Option func(*Store)

// WithLocation sets the zone used to pick the day shard. Defaults to time.Local.
func WithLocation(loc *time.Location) Option { return func(s *Store) { s.loc = loc } }

// WithLogger sets the logger used for storage diagnostics.
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// New validates that every kind has a template.
func New(templates map[event.Kind]string, opts ...Option) (*Store, error) {
	s := &Store{
		templates: make(map[event.Kind]string, len(event.Kinds)),
		loc:       time.Local,
		logger:    slog.Default(),
		perm:      0o644,
	}
	for _, opt := range opts {
		opt(s)
	}

	var missing []string
	for _, kind := range event.Kinds {
		tmpl := strings.TrimSpace(templates[kind])
		if tmpl == "" {
			missing = append(missing, string(kind))
			continue
		}
		s.templates[kind] = tmpl
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingTemplate, strings.Join(missing, ", "))
	}

	return s, nil
}

// Location returns the zone shards are computed in.
func (s *Store) Location() *time.Location { return s.loc }

// Path returns the file holding the kind's shard for the day of t.
func (s *Store) Path(kind event.Kind, t time.Time) (string, error) {
	tmpl, ok := s.templates[kind]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrMissingTemplate, kind)
	}
	b := timebucket.Of(t, s.loc)
	r := strings.NewReplacer("{yyyy}", b.Year, "{mm}", b.Month, "{dd}", b.Day)
	return r.Replace(tmpl), nil
}

// Read loads the shard for (kind, day of t). A shard that does not exist yet,
// or is empty or null, is returned as an empty document, not an error.
func (s *Store) Read(kind event.Kind, t time.Time) (Document, error) {
	path, err := s.Path(kind, t)
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Document{}, nil
		}
		return nil, fmt.Errorf("read %s log: %w", kind, err)
	}
	if len(bytes.TrimSpace(b)) == 0 {
		return Document{}, nil
	}

	doc := Document{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode %s log %s: %w", kind, path, err)
	}
	// A "null" shard decodes to a nil map.
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// Write replaces the shard for (kind, day of t) with doc.
func (s *Store) Write(kind event.Kind, t time.Time, doc Document) error {
	path, err := s.Path(kind, t)
	if err != nil {
		return err
	}
	if doc == nil {
		doc = Document{}
	}

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s log: %w", kind, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir %s log dir: %w", kind, err)
	}
	if err := renameio.WriteFile(path, b, s.perm); err != nil {
		return fmt.Errorf("write %s log: %w", kind, err)
	}

	s.logger.Debug("log shard written",
		slog.String("kind", string(kind)),
		slog.String("path", path),
		slog.Int("tags", len(doc)),
	)
	return nil
}
