package orchestrator

//go:generate mockgen -source=orchestrator.go -destination=./mocks/mock_orchestrator.go -package=mocks

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/axiomhq/hyperloglog"
	"github.com/coder/quartz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"monitor.chat/stat-recorder-backend/internal/checkpoint"
	cfgpkg "monitor.chat/stat-recorder-backend/internal/config"
	"monitor.chat/stat-recorder-backend/internal/event"
	"monitor.chat/stat-recorder-backend/internal/logstore"
	"monitor.chat/stat-recorder-backend/internal/queue"
	"monitor.chat/stat-recorder-backend/internal/recorder"
	"monitor.chat/stat-recorder-backend/internal/report"
)

const instrumentationName = "monitor.chat/stat-recorder-backend"

// Orchestrator is what the transport adapters talk to.
type Orchestrator interface {
	Submit(ctx context.Context, rec event.Record)
	Duplicated(signature string) bool
	IncrMetric(ctx context.Context, mt MetricType, n int64)
	Users(ctx context.Context, day time.Time) ([]report.UserRow, error)
	Speeds(ctx context.Context, day time.Time) ([]report.SpeedRow, error)
}

// orchestratorSvc owns the single recorder instance of the process: the
// queue, its one worker, the store and the report path.
type orchestratorSvc struct {
	Cfg    cfgpkg.Config
	Logger *slog.Logger
	Tracer oteltrace.Tracer
	Meter  otelmetric.Meter

	// Metrics
	EventsReceived  otelmetric.Int64Counter
	EventsPersisted otelmetric.Int64Counter
	EventsExpired   otelmetric.Int64Counter
	EventsFailed    otelmetric.Int64Counter
	EventsDuplicate otelmetric.Int64Counter
	EventsRejected  otelmetric.Int64Counter

	Queue      *queue.Queue[event.Record]
	Store      *logstore.Store
	Worker     *recorder.Worker
	Reports    *report.Aggregator
	Checkpoint *checkpoint.Checkpoint

	clock quartz.Clock
	loc   *time.Location

	sendersMu sync.Mutex
	senders   *hyperloglog.Sketch

	startMu      sync.Mutex
	started      bool
	workerCancel context.CancelFunc
}

type Option func(*orchestratorSvc) error

// WithClock overrides the wall clock used by the recorder (useful for tests).
func WithClock(c quartz.Clock) Option {
	return func(svc *orchestratorSvc) error { svc.clock = c; return nil }
}

// WithLocation sets the zone used for day shards and minute tags. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(svc *orchestratorSvc) error { svc.loc = loc; return nil }
}

// New constructs the service. A missing log path template is reported here,
// before anything is started.
func New(cfg cfgpkg.Config, logger *slog.Logger, opts ...Option) (*orchestratorSvc, error) {
	s := &orchestratorSvc{
		Cfg:     cfg,
		Logger:  logger,
		Tracer:  otel.Tracer(instrumentationName),
		Meter:   otel.Meter(instrumentationName),
		clock:   quartz.NewReal(),
		loc:     time.Local,
		senders: hyperloglog.New14(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := s.initMetrics(); err != nil {
		return nil, err
	}

	store, err := logstore.New(cfg.Templates(), logstore.WithLocation(s.loc), logstore.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	s.Store = store
	s.Queue = queue.New[event.Record](cfg.MaxQueue)
	s.Reports = report.New(store, logger)
	s.Checkpoint = checkpoint.New(cfg.DedupSize, cfg.DedupTTL)

	s.Worker = recorder.New(s.Queue, store, logger,
		recorder.WithClock(s.clock),
		recorder.WithRetention(cfg.Retention),
		recorder.WithIdleBackoff(cfg.IdleBackoff),
	)
	// Wire worker metric callbacks
	s.Worker.SetMetricsCallbacks(
		func(n int64) { s.IncrMetric(context.Background(), MetricEventsPersisted, n) },
		func(n int64) { s.IncrMetric(context.Background(), MetricEventsExpired, n) },
		func(n int64) { s.IncrMetric(context.Background(), MetricEventsFailed, n) },
	)

	if err := s.initGauges(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *orchestratorSvc) initMetrics() error {
	counters := []struct {
		dst  *otelmetric.Int64Counter
		name string
		desc string
	}{
		{&s.EventsReceived, "statrecorder.events.received", "The number of records submitted to the recorder"},
		{&s.EventsPersisted, "statrecorder.events.persisted", "The number of records written to their day shard"},
		{&s.EventsExpired, "statrecorder.events.expired", "The number of records discarded as older than the retention window"},
		{&s.EventsFailed, "statrecorder.events.failed", "The number of records lost to malformed input or storage failure"},
		{&s.EventsDuplicate, "statrecorder.events.duplicate", "The number of redelivered payloads dropped by the checkpoint"},
		{&s.EventsRejected, "statrecorder.events.rejected", "The number of payloads the ingress could not decode"},
	}

	for _, c := range counters {
		counter, err := s.Meter.Int64Counter(c.name,
			otelmetric.WithDescription(c.desc),
			otelmetric.WithUnit("{record}"),
		)
		if err != nil {
			return err
		}
		*c.dst = counter
	}
	return nil
}

func (s *orchestratorSvc) initGauges() error {
	if _, err := s.Meter.Int64ObservableGauge("statrecorder.queue.length",
		otelmetric.WithDescription("Records waiting for the recorder"),
		otelmetric.WithUnit("{record}"),
		otelmetric.WithInt64Callback(func(_ context.Context, o otelmetric.Int64Observer) error {
			o.Observe(int64(s.Queue.Len()))
			return nil
		}),
	); err != nil {
		return err
	}

	if _, err := s.Meter.Int64ObservableCounter("statrecorder.queue.dropped",
		otelmetric.WithDescription("Records evicted from a full ingestion queue"),
		otelmetric.WithUnit("{record}"),
		otelmetric.WithInt64Callback(func(_ context.Context, o otelmetric.Int64Observer) error {
			o.Observe(int64(s.Queue.Dropped()))
			return nil
		}),
	); err != nil {
		return err
	}

	_, err := s.Meter.Int64ObservableGauge("statrecorder.senders.distinct",
		otelmetric.WithDescription("Estimated number of distinct senders seen since start"),
		otelmetric.WithUnit("{sender}"),
		otelmetric.WithInt64Callback(func(_ context.Context, o otelmetric.Int64Observer) error {
			o.Observe(int64(s.DistinctSenders()))
			return nil
		}),
	)
	return err
}

// Close stops the recorder after it has drained the queue.
func (s *orchestratorSvc) Close(ctx context.Context) error {
	ctx, span := s.Tracer.Start(ctx, "orchestrator.Close")
	defer span.End()

	s.Logger.DebugContext(ctx, "orchestrator.Close: begin")

	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.workerCancel != nil {
		s.workerCancel()

		if s.Worker != nil {
			s.Worker.Stop(ctx)
		}

		s.workerCancel = nil
	}

	s.Logger.DebugContext(ctx, "orchestrator.Close: end")

	return nil
}

// Start starts the recorder worker. It is safe to call more than once;
// subsequent calls are no-ops. The worker is not restarted after Close.
func (s *orchestratorSvc) Start(ctx context.Context) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	if s.Worker == nil || s.started {
		return
	}
	s.started = true

	ctx, span := s.Tracer.Start(ctx, "orchestrator.Start")
	defer span.End()

	s.Logger.DebugContext(ctx, "orchestrator.Start: begin")
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.workerCancel = cancel
	s.Worker.Start(workerCtx)
	s.Logger.DebugContext(ctx, "orchestrator.Start: started recorder", slog.Int("queue_len", s.Queue.Len()))
}

// Submit queues rec for the recorder. It never blocks on storage.
func (s *orchestratorSvc) Submit(ctx context.Context, rec event.Record) {
	ctx, span := s.Tracer.Start(ctx, "orchestrator.Submit")
	defer span.End()

	span.SetAttributes(attribute.String("event.kind", string(rec.Kind())))

	if sender := event.SenderOf(rec); sender != "" {
		s.sendersMu.Lock()
		s.senders.Insert([]byte(sender))
		s.sendersMu.Unlock()
	}

	s.Queue.Push(rec)
	s.IncrMetric(ctx, MetricEventsReceived, 1)

	s.Logger.DebugContext(ctx, "orchestrator.Submit",
		slog.String("kind", string(rec.Kind())),
		slog.Int("queue_len", s.Queue.Len()),
	)
}

// Duplicated reports whether a payload with this signature was already submitted.
func (s *orchestratorSvc) Duplicated(signature string) bool {
	return s.Checkpoint.Duplicated(signature)
}

// Users returns the user report for the day containing day.
func (s *orchestratorSvc) Users(ctx context.Context, day time.Time) ([]report.UserRow, error) {
	ctx, span := s.Tracer.Start(ctx, "orchestrator.Users")
	defer span.End()

	rows, err := s.Reports.Users(day)
	if err != nil {
		span.RecordError(err)
		s.Logger.ErrorContext(ctx, "users report failed", slog.String("err", err.Error()))
		return nil, err
	}
	span.SetAttributes(attribute.Int("report.rows", len(rows)))
	return rows, nil
}

// Speeds returns the speed report for the day containing day.
func (s *orchestratorSvc) Speeds(ctx context.Context, day time.Time) ([]report.SpeedRow, error) {
	ctx, span := s.Tracer.Start(ctx, "orchestrator.Speeds")
	defer span.End()

	rows, err := s.Reports.Speeds(day)
	if err != nil {
		span.RecordError(err)
		s.Logger.ErrorContext(ctx, "speeds report failed", slog.String("err", err.Error()))
		return nil, err
	}
	span.SetAttributes(attribute.Int("report.rows", len(rows)))
	return rows, nil
}

// Location returns the zone days are computed in.
func (s *orchestratorSvc) Location() *time.Location { return s.loc }

// Clock returns the clock shared with the recorder.
func (s *orchestratorSvc) Clock() quartz.Clock { return s.clock }

// QueueLen returns the number of records waiting for the recorder.
func (s *orchestratorSvc) QueueLen() int { return s.Queue.Len() }

// DistinctSenders estimates how many different senders submitted records.
func (s *orchestratorSvc) DistinctSenders() uint64 {
	s.sendersMu.Lock()
	defer s.sendersMu.Unlock()
	return s.senders.Estimate()
}

// MetricType enumerates orchestrator metric counters.
type MetricType int

const (
	MetricEventsReceived MetricType = iota
	MetricEventsPersisted
	MetricEventsExpired
	MetricEventsFailed
	MetricEventsDuplicate
	MetricEventsRejected
)

// IncrMetric increments the selected metric by n (if n > 0).
func (s *orchestratorSvc) IncrMetric(ctx context.Context, mt MetricType, n int64) {
	if n <= 0 {
		return
	}

	switch mt {
	case MetricEventsReceived:
		s.EventsReceived.Add(ctx, n)
	case MetricEventsPersisted:
		s.EventsPersisted.Add(ctx, n)
	case MetricEventsExpired:
		s.EventsExpired.Add(ctx, n)
	case MetricEventsFailed:
		s.EventsFailed.Add(ctx, n)
	case MetricEventsDuplicate:
		s.EventsDuplicate.Add(ctx, n)
	case MetricEventsRejected:
		s.EventsRejected.Add(ctx, n)
	}
}
