package manager

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/algomgr/internal/algorithm"
	"github.com/zjrosen/algomgr/internal/tracing"
)

func TestMetrics_CreateAndEvict(t *testing.T) {
	f := newFixture(t, 1)
	createdBefore := testutil.ToFloat64(handlesCreatedTotal.WithLabelValues("direct"))
	evictedBefore := testutil.ToFloat64(evictionsTotal)

	f.create(t, "Ordinary", WithProxy(false))
	f.create(t, "Ordinary", WithProxy(false))

	require.Equal(t, createdBefore+2, testutil.ToFloat64(handlesCreatedTotal.WithLabelValues("direct")))
	require.Equal(t, evictedBefore+1, testutil.ToFloat64(evictionsTotal))
	require.Equal(t, 1.0, testutil.ToFloat64(poolSize))

	f.mgr.Clear()
	require.Zero(t, testutil.ToFloat64(poolSize))
}

func TestMetrics_RunOutcomes(t *testing.T) {
	f := newFixture(t, 5)
	require.NoError(t, f.cat.Subscribe("MetricsProbe", 1, "Testing", body("MetricsProbe", 1, "Testing", nil)))

	h, err := f.mgr.Create("MetricsProbe", 1)
	require.NoError(t, err)
	_, err = h.Execute(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.SetProperty("fail", "true"))
	_, err = h.Execute(context.Background())
	require.Error(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(runsTotal.WithLabelValues("MetricsProbe", OutcomeExecuted)))
	require.Equal(t, 1.0, testutil.ToFloat64(runsTotal.WithLabelValues("MetricsProbe", OutcomeFailed)))
	require.GreaterOrEqual(t, testutil.CollectAndCount(runDuration), 1)
}

func TestTracing_SpanPerRun(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, 5, WithTracer(tp.Tracer("test")))
	h := f.create(t, "Ordinary")

	_, err := h.Execute(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.SetProperty("fail", "true"))
	require.False(t, h.ExecuteAsync(context.Background()).Wait())

	spans := sr.Ended()
	require.Len(t, spans, 2)

	sync, async := spans[0], spans[1]
	require.Equal(t, tracing.SpanExecute, sync.Name())
	require.Equal(t, codes.Ok, sync.Status().Code)
	require.Equal(t, tracing.SpanExecuteAsync, async.Name())
	require.Equal(t, codes.Error, async.Status().Code)

	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range sync.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	require.Equal(t, "Ordinary", attrs[tracing.AttrAlgorithmName].AsString())
	require.Equal(t, int64(2), attrs[tracing.AttrAlgorithmVersion].AsInt64())
	require.Equal(t, int64(h.ID()), attrs[tracing.AttrHandleID].AsInt64())
	require.Equal(t, "proxy", attrs[tracing.AttrHandleKind].AsString())
	require.True(t, attrs[tracing.AttrRunExecuted].AsBool())
	require.NotEqual(t, h.LastRunID(), attrs[tracing.AttrRunID].AsString(), "second run replaced the last run id")
}

func TestTracing_CancelEvent(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	f := newFixture(t, 5, WithTracer(tp.Tracer("test")))
	h := f.create(t, "Block")
	res := h.ExecuteAsync(context.Background())
	f.gate.waitStarted(t, 1)
	h.Cancel()
	require.False(t, res.Wait())
	require.ErrorIs(t, res.Err(), algorithm.ErrCancelled)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	events := spans[0].Events()
	require.Len(t, events, 2, "cancel request plus the recorded error")
	require.Equal(t, tracing.EventCancelRequested, events[0].Name)
}
