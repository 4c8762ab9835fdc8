package ingest

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"

	"monitor.chat/stat-recorder-backend/internal/event"
	"monitor.chat/stat-recorder-backend/internal/orchestrator"
)

// Attribute keys looked up on each log record, then its scope, then its resource.
const (
	AttrSender    = "sender"
	AttrSignature = "signature"
)

type logsServiceServer struct {
	orchestratorSvc orchestrator.Orchestrator
	collogspb.UnimplementedLogsServiceServer
}

// NewServer returns a LogsServiceServer that feeds decoded payloads to the provided Orchestrator.
func NewServer(svc orchestrator.Orchestrator) collogspb.LogsServiceServer {
	return &logsServiceServer{orchestratorSvc: svc}
}

func (l *logsServiceServer) Export(ctx context.Context, request *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	// Use the span started by the gRPC OTel interceptor.
	span := oteltrace.SpanFromContext(ctx)

	slog.DebugContext(ctx, "Received ExportLogsServiceRequest")

	var receivedCount int64

	var submittedCount int64

	var duplicateCount int64

	var rejected int64

	var firstErr error

	for _, rl := range request.GetResourceLogs() {
		// Safe even if Resource is nil; GetAttributes() returns nil in that case.
		resAttrs := rl.GetResource().GetAttributes()

		for _, sl := range rl.GetScopeLogs() {
			scopeAttrs := sl.GetScope().GetAttributes()

			for _, rec := range sl.GetLogRecords() {
				receivedCount++

				if sig, ok := ExtractAttrs(AttrSignature, rec.GetAttributes(), scopeAttrs, resAttrs); ok && l.orchestratorSvc.Duplicated(sig) {
					duplicateCount++
					slog.DebugContext(ctx, "dropping duplicated payload", slog.String("signature", sig))
					continue
				}

				defaults := event.Defaults{}
				defaults.Sender, _ = ExtractAttrs(AttrSender, rec.GetAttributes(), scopeAttrs, resAttrs)
				if ts := rec.GetTimeUnixNano(); ts > 0 {
					defaults.Time = time.Unix(0, int64(ts))
				}

				fields, err := bodyFields(rec.GetBody())
				var decoded event.Record
				if err == nil {
					decoded, err = event.Decode(fields, defaults)
				}
				if err != nil {
					rejected++
					if firstErr == nil {
						firstErr = err
					}
					slog.WarnContext(ctx, "rejecting log record", slog.String("err", err.Error()))
					continue
				}

				l.orchestratorSvc.Submit(ctx, decoded)
				submittedCount++
			}
		}
	}

	// Update metrics once per request.
	l.orchestratorSvc.IncrMetric(ctx, orchestrator.MetricEventsDuplicate, duplicateCount)
	l.orchestratorSvc.IncrMetric(ctx, orchestrator.MetricEventsRejected, rejected)

	resp := &collogspb.ExportLogsServiceResponse{}
	if rejected > 0 {
		resp.PartialSuccess = &collogspb.ExportLogsPartialSuccess{
			RejectedLogRecords: rejected,
			ErrorMessage:       firstErr.Error(),
		}
	}
	// Add summary attributes to the RPC span and exit debug log
	span.SetAttributes(
		attribute.Int64("logs.received", receivedCount),
		attribute.Int64("logs.submitted", submittedCount),
		attribute.Int64("logs.duplicate", duplicateCount),
		attribute.Int64("logs.rejected", rejected),
	)
	slog.DebugContext(
		ctx,
		"Completed ExportLogsServiceRequest",
		slog.Int64("received", receivedCount),
		slog.Int64("submitted", submittedCount),
		slog.Int64("duplicate", duplicateCount),
		slog.Int64("rejected", rejected),
	)

	return resp, nil
}
