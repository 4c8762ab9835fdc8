package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	otellogs "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"

	"monitor.chat/stat-recorder-backend/internal/event"
	"monitor.chat/stat-recorder-backend/internal/orchestrator"
	"monitor.chat/stat-recorder-backend/internal/orchestrator/mocks"
)

func request(res []*commonpb.KeyValue, recs ...*otellogs.LogRecord) *collogspb.ExportLogsServiceRequest {
	return &collogspb.ExportLogsServiceRequest{
		ResourceLogs: []*otellogs.ResourceLogs{{
			Resource:  &resourcepb.Resource{Attributes: res},
			ScopeLogs: []*otellogs.ScopeLogs{{LogRecords: recs}},
		}},
	}
}

func expectMetrics(m *mocks.MockOrchestrator, duplicate, rejected int64) {
	m.EXPECT().IncrMetric(gomock.Any(), orchestrator.MetricEventsDuplicate, duplicate)
	m.EXPECT().IncrMetric(gomock.Any(), orchestrator.MetricEventsRejected, rejected)
}

func TestExport_KvlistUsers(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockOrchestrator(ctrl)

	body := kvlistVal(
		kvStr("module", "users"),
		kvInt("time", 1700000000),
		kvAny("users", arrVal(
			strVal("legacy"),
			kvlistVal(kvStr("U", "u1"), kvAny("IP", arrVal(strVal("10.0.0.1"), strVal("10.0.0.2")))),
		)),
	)

	var got event.Record
	m.EXPECT().Submit(gomock.Any(), gomock.Any()).Do(func(_ context.Context, rec event.Record) { got = rec })
	expectMetrics(m, 0, 0)

	out, err := NewServer(m).Export(context.Background(), request(
		[]*commonpb.KeyValue{kvStr(AttrSender, "station-7")},
		&otellogs.LogRecord{Body: body},
	))
	require.NoError(t, err)
	require.Nil(t, out.GetPartialSuccess())

	ev, ok := got.(event.UserEvent)
	require.True(t, ok)
	assert.Equal(t, "station-7", ev.Sender)
	assert.Equal(t, time.Unix(1700000000, 0), ev.Time)
	require.Len(t, ev.Entries, 2)
	assert.True(t, ev.Entries[0].Legacy())
	assert.Equal(t, "legacy", ev.Entries[0].ID)
	assert.Equal(t, "u1", ev.Entries[1].ID)
	assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, ev.Entries[1].IPs)
}

func TestExport_JSONStringSpeeds_FallsBackToRecordTime(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockOrchestrator(ctrl)

	body := strVal(`{"module":"speeds","sender":"client-1","provider":"p1",` +
		`"stations":[{"host":"st.example","port":443,"response_time":0.12}],` +
		`"remote_address":["198.51.100.4",51234]}`)
	recTime := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

	var got event.Record
	m.EXPECT().Submit(gomock.Any(), gomock.Any()).Do(func(_ context.Context, rec event.Record) { got = rec })
	expectMetrics(m, 0, 0)

	_, err := NewServer(m).Export(context.Background(), request(nil,
		&otellogs.LogRecord{Body: body, TimeUnixNano: uint64(recTime.UnixNano())},
	))
	require.NoError(t, err)

	ev, ok := got.(event.SpeedEvent)
	require.True(t, ok)
	assert.Equal(t, "client-1", ev.Sender)
	assert.Equal(t, "p1", ev.Provider)
	assert.True(t, recTime.Equal(ev.Time))
	require.Len(t, ev.Stations, 1)
	assert.Equal(t, 443, ev.Stations[0].Port)

	client, err := ev.Client.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.4:51234", client)
}

func TestExport_MissingTimeStaysZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockOrchestrator(ctrl)

	var got event.Record
	m.EXPECT().Submit(gomock.Any(), gomock.Any()).Do(func(_ context.Context, rec event.Record) { got = rec })
	expectMetrics(m, 0, 0)

	_, err := NewServer(m).Export(context.Background(), request(nil,
		&otellogs.LogRecord{Body: strVal(`{"module":"stats","stats":[{"count":3}]}`)},
	))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Timestamp().IsZero())
}

func TestExport_RejectsUndecodable_ReportsPartialSuccess(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockOrchestrator(ctrl)

	m.EXPECT().Submit(gomock.Any(), gomock.Any()).Times(1)
	expectMetrics(m, 0, 3)

	out, err := NewServer(m).Export(context.Background(), request(nil,
		&otellogs.LogRecord{Body: strVal(`{"module":"weather"}`)},
		&otellogs.LogRecord{Body: strVal("plain text")},
		&otellogs.LogRecord{},
		&otellogs.LogRecord{Body: strVal(`{"module":"stats","time":1700000000}`)},
	))
	require.NoError(t, err)
	require.EqualValues(t, 3, out.GetPartialSuccess().GetRejectedLogRecords())
	require.Contains(t, out.GetPartialSuccess().GetErrorMessage(), "unknown module")
}

func TestExport_DropsDuplicatedSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockOrchestrator(ctrl)

	body := strVal(`{"module":"stats","time":1700000000}`)
	sig := func(v string) []*commonpb.KeyValue { return []*commonpb.KeyValue{kvStr(AttrSignature, v)} }

	gomock.InOrder(
		m.EXPECT().Duplicated("abc").Return(false),
		m.EXPECT().Duplicated("abc").Return(true),
	)
	m.EXPECT().Submit(gomock.Any(), gomock.Any()).Times(2)
	expectMetrics(m, 1, 0)

	out, err := NewServer(m).Export(context.Background(), request(nil,
		&otellogs.LogRecord{Body: body, Attributes: sig("abc")},
		&otellogs.LogRecord{Body: body, Attributes: sig("abc")},
		&otellogs.LogRecord{Body: body},
	))
	require.NoError(t, err)
	require.Nil(t, out.GetPartialSuccess())
}

func TestExport_EmptyRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	m := mocks.NewMockOrchestrator(ctrl)
	expectMetrics(m, 0, 0)

	out, err := NewServer(m).Export(context.Background(), &collogspb.ExportLogsServiceRequest{})
	require.NoError(t, err)
	require.Nil(t, out.GetPartialSuccess())
}
