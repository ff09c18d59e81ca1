package otel

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	eventbus "github.com/hanpama/gqlprune/internal/eventbus"
	events "github.com/hanpama/gqlprune/internal/events"
	reqid "github.com/hanpama/gqlprune/internal/reqid"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestAttachRecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	b := eventbus.New()
	detach := Attach(b, tp.Tracer("test"))

	ctx, rid := reqid.NewContext(context.Background())
	req := httptest.NewRequest("POST", "/graphql", nil)
	eventbus.Emit(ctx, b, events.HTTPStart{RequestID: rid, Request: req})
	eventbus.Emit(ctx, b, events.CleanStart{OperationName: "Q"})
	eventbus.Emit(ctx, b, events.CleanFinish{OperationName: "Q", Operations: 1, Removed: 2})
	eventbus.Emit(ctx, b, events.UpstreamStart{URL: "http://upstream/graphql"})
	eventbus.Emit(ctx, b, events.UpstreamFinish{URL: "http://upstream/graphql", Err: errors.New("refused")})
	eventbus.Emit(ctx, b, events.HTTPFinish{RequestID: rid, Request: req, Requests: 1, Status: 502})

	ended := rec.Ended()
	require.Len(t, ended, 3)
	names := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range ended {
		names[s.Name()] = s
	}
	require.Contains(t, names, "http.request")
	require.Contains(t, names, "graphql.clean")
	require.Contains(t, names, "upstream.request")

	root := names["http.request"]
	require.Equal(t, root.SpanContext().SpanID(), names["graphql.clean"].Parent().SpanID())
	require.Equal(t, root.SpanContext().SpanID(), names["upstream.request"].Parent().SpanID())
	require.Equal(t, codes.Error, names["upstream.request"].Status().Code)
	require.Equal(t, codes.Error, root.Status().Code)
	attrs := map[attribute.Key]attribute.Value{}
	for _, kv := range root.Attributes() {
		attrs[kv.Key] = kv.Value
	}
	require.Equal(t, rid, attrs["http.request_id"].AsInt64())
	require.Equal(t, int64(1), attrs["graphql.requests"].AsInt64())

	detach()
	eventbus.Emit(ctx, b, events.HTTPStart{Request: req})
	eventbus.Emit(ctx, b, events.HTTPFinish{Request: req, Status: 200})
	require.Len(t, rec.Ended(), 3)
}

func TestSetupWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup("", "gqlprune")
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
