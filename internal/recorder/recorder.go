// Package recorder drains the ingestion queue on a single goroutine and
// persists each record into its day shard.
//
// Only one Worker may run against a given set of shards: the read-merge-write
// cycle on a shard document is not locked and relies on there being exactly
// one writer.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coder/quartz"

	"monitor.chat/stat-recorder-backend/internal/event"
	"monitor.chat/stat-recorder-backend/internal/logstore"
	"monitor.chat/stat-recorder-backend/internal/queue"
	"monitor.chat/stat-recorder-backend/internal/timebucket"
)

const (
	DefaultRetention   = 7 * 24 * time.Hour
	DefaultIdleBackoff = time.Second
)

// Store is the persistence the worker needs.
type Store interface {
	Read(kind event.Kind, t time.Time) (logstore.Document, error)
	Write(kind event.Kind, t time.Time, doc logstore.Document) error
	Location() *time.Location
}

// Worker pops one record at a time and dispatches it by kind.
type Worker struct {
	queue  *queue.Queue[event.Record]
	store  Store
	logger *slog.Logger
	clock  quartz.Clock

	retention time.Duration
	idle      time.Duration

	done chan struct{}

	// Optional metric callbacks provided by the owner (e.g., orchestrator).
	incrPersisted func(int64)
	incrExpired   func(int64)
	incrFailed    func(int64)
}

type Option func(*Worker)

// WithClock replaces the wall clock (tests use a quartz mock).
func WithClock(c quartz.Clock) Option { return func(w *Worker) { w.clock = c } }

// WithRetention sets how old a record may be before it is discarded.
func WithRetention(d time.Duration) Option { return func(w *Worker) { w.retention = d } }

// WithIdleBackoff sets how long the loop sleeps when the queue is empty.
func WithIdleBackoff(d time.Duration) Option { return func(w *Worker) { w.idle = d } }

func New(q *queue.Queue[event.Record], store Store, logger *slog.Logger, opts ...Option) *Worker {
	w := &Worker{
		queue:     q,
		store:     store,
		logger:    logger,
		clock:     quartz.NewReal(),
		retention: DefaultRetention,
		idle:      DefaultIdleBackoff,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.retention <= 0 {
		w.retention = DefaultRetention
	}
	if w.idle <= 0 {
		w.idle = DefaultIdleBackoff
	}
	return w
}

// SetMetricsCallbacks installs optional callbacks for metrics updates.
func (w *Worker) SetMetricsCallbacks(persisted, expired, failed func(int64)) {
	w.incrPersisted = persisted
	w.incrExpired = expired
	w.incrFailed = failed
}

// Start begins the consume loop. It must be called at most once.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)

		for {
			select {
			case <-ctx.Done():
				w.drain()
				return
			default:
			}

			if rec, ok := w.queue.PopFront(); ok {
				w.process(rec)
				continue
			}

			// Nothing to do now; rest until woken or the backoff elapses.
			timer := w.clock.NewTimer(w.idle, "recorder", "idle")
			select {
			case <-ctx.Done():
				timer.Stop()
				w.drain()
				return
			case <-w.queue.Ready():
				timer.Stop()
			case <-timer.C:
			}
		}
	}()
}

// Stop waits for the loop to finish; the caller cancels the context passed
// to Start first.
func (w *Worker) Stop(ctx context.Context) {
	select {
	case <-w.done:
	case <-ctx.Done():
	}
}

// drain persists whatever was queued before shutdown.
func (w *Worker) drain() {
	n := 0
	for {
		rec, ok := w.queue.PopFront()
		if !ok {
			break
		}
		w.process(rec)
		n++
	}
	if n > 0 {
		w.logger.Info("recorder drained queue on shutdown", slog.Int("records", n))
	}
}

func (w *Worker) process(rec event.Record) {
	ts := rec.Timestamp()
	cutoff := w.clock.Now().Add(-w.retention)
	if ts.Before(cutoff) {
		w.logger.Warn("message expired",
			slog.String("kind", string(rec.Kind())),
			slog.Time("time", ts),
			slog.Time("cutoff", cutoff),
		)
		incr(w.incrExpired)
		return
	}

	if err := w.persist(rec); err != nil {
		if errors.Is(err, event.ErrUnknownModule) {
			w.logger.Warn("ignore record", slog.String("err", err.Error()))
		} else {
			w.logger.Error("failed to process record",
				slog.String("err", err.Error()),
				slog.String("kind", string(rec.Kind())),
				slog.Time("time", ts),
			)
		}
		incr(w.incrFailed)
		return
	}
	incr(w.incrPersisted)
}

func (w *Worker) persist(rec event.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while persisting %s record: %v", rec.Kind(), r)
		}
	}()

	switch r := rec.(type) {
	case event.UserEvent:
		return w.saveUsers(r)
	case event.StatEvent:
		return w.saveStats(r)
	case event.SpeedEvent:
		return w.saveSpeeds(r)
	default:
		return fmt.Errorf("%w: %T", event.ErrUnknownModule, rec)
	}
}

func (w *Worker) tag(t time.Time) string {
	return timebucket.Of(t, w.store.Location()).Tag()
}

func (w *Worker) saveUsers(ev event.UserEvent) error {
	doc, err := w.store.Read(event.KindUsers, ev.Time)
	if err != nil {
		return err
	}
	tag := w.tag(ev.Time)
	merged, err := MergeUsers(doc.Items(tag), ev.Entries, func(raw json.RawMessage, err error) {
		w.logger.Error("dropping stored user item",
			slog.String("tag", tag),
			slog.String("item", string(raw)),
			slog.String("err", err.Error()),
		)
	})
	if err != nil {
		return err
	}
	doc.Set(tag, merged)
	return w.store.Write(event.KindUsers, ev.Time, doc)
}

func (w *Worker) saveStats(ev event.StatEvent) error {
	doc, err := w.store.Read(event.KindStats, ev.Time)
	if err != nil {
		return err
	}
	doc.Append(w.tag(ev.Time), ev.Entries...)
	return w.store.Write(event.KindStats, ev.Time, doc)
}

func (w *Worker) saveSpeeds(ev event.SpeedEvent) error {
	items, err := SpeedItems(ev)
	if err != nil {
		return err
	}
	doc, err := w.store.Read(event.KindSpeeds, ev.Time)
	if err != nil {
		return err
	}
	doc.Append(w.tag(ev.Time), items...)
	return w.store.Write(event.KindSpeeds, ev.Time, doc)
}

func incr(fn func(int64)) {
	if fn != nil {
		fn(1)
	}
}
