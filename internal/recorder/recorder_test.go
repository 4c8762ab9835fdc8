package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"monitor.chat/stat-recorder-backend/internal/event"
	"monitor.chat/stat-recorder-backend/internal/logstore"
	"monitor.chat/stat-recorder-backend/internal/queue"
	"monitor.chat/stat-recorder-backend/internal/timebucket"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newStore(t *testing.T) *logstore.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := logstore.New(map[event.Kind]string{
		event.KindUsers:  filepath.Join(dir, "users_log-{yyyy}-{mm}-{dd}.js"),
		event.KindStats:  filepath.Join(dir, "stats_log-{yyyy}-{mm}-{dd}.js"),
		event.KindSpeeds: filepath.Join(dir, "speeds_log-{yyyy}-{mm}-{dd}.js"),
	}, logstore.WithLocation(time.UTC), logstore.WithLogger(discardLogger()))
	require.NoError(t, err)
	return s
}

type counters struct{ persisted, expired, failed atomic.Int64 }

func (c *counters) install(w *Worker) {
	w.SetMetricsCallbacks(
		func(n int64) { c.persisted.Add(n) },
		func(n int64) { c.expired.Add(n) },
		func(n int64) { c.failed.Add(n) },
	)
}

func tagOf(t time.Time) string { return timebucket.Of(t, time.UTC).Tag() }

func TestProcess_RetentionBoundary(t *testing.T) {
	now := time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC)
	clock := quartz.NewMock(t)
	clock.Set(now)

	store := newStore(t)
	w := New(queue.New[event.Record](0), store, discardLogger(), WithClock(clock))
	var c counters
	c.install(w)

	tooOld := now.Add(-7*24*time.Hour - time.Second)
	boundary := now.Add(-7 * 24 * time.Hour)
	recent := now.Add(-6 * 24 * time.Hour)

	w.process(event.StatEvent{Time: tooOld, Entries: []json.RawMessage{json.RawMessage(`{"C":1}`)}})
	w.process(event.StatEvent{Time: boundary, Entries: []json.RawMessage{json.RawMessage(`{"C":2}`)}})
	w.process(event.StatEvent{Time: recent, Entries: []json.RawMessage{json.RawMessage(`{"C":3}`)}})
	w.process(event.StatEvent{Entries: []json.RawMessage{json.RawMessage(`{"C":4}`)}})

	require.EqualValues(t, 2, c.expired.Load())
	require.EqualValues(t, 2, c.persisted.Load())

	doc, err := store.Read(event.KindStats, tooOld)
	require.NoError(t, err)
	require.Empty(t, doc.Items(tagOf(tooOld)))

	doc, err = store.Read(event.KindStats, boundary)
	require.NoError(t, err)
	require.Len(t, doc.Items(tagOf(boundary)), 1)

	doc, err = store.Read(event.KindStats, recent)
	require.NoError(t, err)
	require.Len(t, doc.Items(tagOf(recent)), 1)
}

func TestProcess_StatsAppendVerbatim(t *testing.T) {
	store := newStore(t)
	w := New(queue.New[event.Record](0), store, discardLogger())
	ts := time.Now()

	w.process(event.StatEvent{Time: ts, Entries: []json.RawMessage{json.RawMessage(`{"S":0,"T":1,"C":2}`)}})
	w.process(event.StatEvent{Time: ts, Entries: []json.RawMessage{json.RawMessage(`{"S":0,"T":1,"C":2}`)}})

	doc, err := store.Read(event.KindStats, ts)
	require.NoError(t, err)
	items := doc.Items(timebucket.Of(ts, time.UTC).Tag())
	require.Len(t, items, 2)
	require.JSONEq(t, `{"S":0,"T":1,"C":2}`, string(items[1]))
}

func TestProcess_WritesOverNullShard(t *testing.T) {
	store := newStore(t)
	w := New(queue.New[event.Record](0), store, discardLogger())
	var c counters
	c.install(w)
	ts := time.Now()

	p, err := store.Path(event.KindStats, ts)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(p, []byte("null"), 0o644))

	w.process(event.StatEvent{Time: ts, Entries: []json.RawMessage{json.RawMessage(`{"C":1}`)}})
	w.process(event.StatEvent{Time: ts, Entries: []json.RawMessage{json.RawMessage(`{"C":2}`)}})

	require.EqualValues(t, 2, c.persisted.Load())
	require.EqualValues(t, 0, c.failed.Load())

	doc, err := store.Read(event.KindStats, ts)
	require.NoError(t, err)
	require.Len(t, doc.Items(tagOf(ts)), 2)
}

func TestProcess_UsersSurviveBadStoredItem(t *testing.T) {
	store := newStore(t)
	w := New(queue.New[event.Record](0), store, discardLogger())
	var c counters
	c.install(w)
	ts := time.Now()

	doc := logstore.Document{}
	doc.Set(tagOf(ts), []json.RawMessage{json.RawMessage(`42`), json.RawMessage(`{"U":"U1","IP":["1.2.3.4"]}`)})
	require.NoError(t, store.Write(event.KindUsers, ts, doc))

	w.process(event.UserEvent{Time: ts, Entries: []event.UserEntry{event.User("U1", "5.6.7.8")}})
	require.EqualValues(t, 1, c.persisted.Load())
	require.EqualValues(t, 0, c.failed.Load())

	doc, err := store.Read(event.KindUsers, ts)
	require.NoError(t, err)
	got := decodeUsers(t, doc.Items(tagOf(ts)))
	require.Equal(t, map[string][]string{"U1": {"1.2.3.4", "5.6.7.8"}}, got)
}

func TestProcess_SpeedsAccumulate(t *testing.T) {
	store := newStore(t)
	w := New(queue.New[event.Record](0), store, discardLogger())
	ts := time.Now()
	rt := 0.2
	ev := event.SpeedEvent{
		Time:     ts,
		Sender:   "client@y",
		Provider: "gsp@z",
		Stations: []event.Station{{Host: "1.1.1.1", Port: 9394, ResponseTime: &rt}},
		Client:   event.HostPort("10.0.0.1:5555"),
	}

	w.process(ev)
	w.process(ev)

	doc, err := store.Read(event.KindSpeeds, ts)
	require.NoError(t, err)
	require.Len(t, doc.Items(timebucket.Of(ts, time.UTC).Tag()), 2)
}

func TestProcess_BadAddressDropsRecord(t *testing.T) {
	store := newStore(t)
	w := New(queue.New[event.Record](0), store, discardLogger())
	var c counters
	c.install(w)
	ts := time.Now()

	w.process(event.SpeedEvent{Time: ts, Client: event.Pair("10.0.0.1", "1", "2")})

	require.EqualValues(t, 1, c.failed.Load())
	doc, err := store.Read(event.KindSpeeds, ts)
	require.NoError(t, err)
	require.Empty(t, doc)
}

type unknownRecord struct{ ts time.Time }

func (u unknownRecord) Kind() event.Kind     { return "weather" }
func (u unknownRecord) Timestamp() time.Time { return u.ts }

func TestProcess_UnknownRecordIgnored(t *testing.T) {
	w := New(queue.New[event.Record](0), newStore(t), discardLogger())
	var c counters
	c.install(w)

	w.process(unknownRecord{ts: time.Now()})
	require.EqualValues(t, 1, c.failed.Load())
	require.Zero(t, c.persisted.Load())
}

// flakyStore fails the first n writes and otherwise delegates.
type flakyStore struct {
	*logstore.Store
	mu       sync.Mutex
	failures int
}

func (f *flakyStore) Write(kind event.Kind, t time.Time, doc logstore.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures > 0 {
		f.failures--
		return errors.New("disk full")
	}
	return f.Store.Write(kind, t, doc)
}

func TestWorker_EndToEndUsers(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newStore(t)
	q := queue.New[event.Record](0)
	w := New(q, store, discardLogger(), WithIdleBackoff(5*time.Millisecond))
	var c counters
	c.install(w)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	ts := time.Now()
	q.Push(event.UserEvent{Time: ts, Entries: []event.UserEntry{event.User("U1", "1.2.3.4")}})
	q.Push(event.UserEvent{Time: ts, Entries: []event.UserEntry{event.User("U1", "5.6.7.8")}})

	require.Eventually(t, func() bool { return c.persisted.Load() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	w.Stop(context.Background())

	doc, err := store.Read(event.KindUsers, ts)
	require.NoError(t, err)
	got := decodeUsers(t, doc.Items(timebucket.Of(ts, time.UTC).Tag()))
	require.Len(t, got, 1)
	require.ElementsMatch(t, []string{"1.2.3.4", "5.6.7.8"}, got["U1"])
}

func TestWorker_SurvivesWriteFailure(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := &flakyStore{Store: newStore(t), failures: 1}
	q := queue.New[event.Record](0)
	w := New(q, store, discardLogger(), WithIdleBackoff(5*time.Millisecond))
	var c counters
	c.install(w)

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	ts := time.Now()
	q.Push(event.UserEvent{Time: ts, Entries: []event.UserEntry{event.User("lost", "1.1.1.1")}})
	q.Push(event.UserEvent{Time: ts, Entries: []event.UserEntry{event.User("kept", "2.2.2.2")}})

	require.Eventually(t, func() bool {
		return c.failed.Load() == 1 && c.persisted.Load() == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	w.Stop(context.Background())

	doc, err := store.Read(event.KindUsers, ts)
	require.NoError(t, err)
	got := decodeUsers(t, doc.Items(timebucket.Of(ts, time.UTC).Tag()))
	require.NotContains(t, got, "lost")
	require.Equal(t, []string{"2.2.2.2"}, got["kept"])
}

func TestWorker_DrainsOnShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	store := newStore(t)
	q := queue.New[event.Record](0)
	w := New(q, store, discardLogger(), WithIdleBackoff(time.Hour))
	var c counters
	c.install(w)

	ts := time.Now()
	for i := 0; i < 5; i++ {
		q.Push(event.StatEvent{Time: ts, Entries: []json.RawMessage{json.RawMessage(`{"C":1}`)}})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Start(ctx)
	w.Stop(context.Background())

	require.EqualValues(t, 5, c.persisted.Load())
	require.Zero(t, q.Len())
}
