package otel

import (
	"context"
	"sync"

	eventbus "github.com/hanpama/gqlprune/internal/eventbus"
	events "github.com/hanpama/gqlprune/internal/events"
	reqid "github.com/hanpama/gqlprune/internal/reqid"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Setup configures OpenTelemetry and attaches eventbus subscribers to the
// global bus. If endpoint is empty, no telemetry is configured.
func Setup(endpoint, service string) (func(context.Context) error, error) {
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := otlptracegrpc.New(context.Background(),
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(service),
		)),
	)
	otel.SetTracerProvider(tp)

	sub := &subscriber{tracer: otel.Tracer("gqlprune")}
	sub.register(eventbus.Subscribe[events.HTTPStart], eventbus.Subscribe[events.HTTPFinish],
		eventbus.Subscribe[events.CleanStart], eventbus.Subscribe[events.CleanFinish],
		eventbus.Subscribe[events.UpstreamStart], eventbus.Subscribe[events.UpstreamFinish])

	return tp.Shutdown, nil
}

// Attach subscribes span recording to b using tracer and returns a function
// that detaches it.
func Attach(b *eventbus.Bus, tracer trace.Tracer) (detach func()) {
	sub := &subscriber{tracer: tracer}
	return sub.register(
		func(h eventbus.Handler[events.HTTPStart]) func() { return eventbus.On(b, h) },
		func(h eventbus.Handler[events.HTTPFinish]) func() { return eventbus.On(b, h) },
		func(h eventbus.Handler[events.CleanStart]) func() { return eventbus.On(b, h) },
		func(h eventbus.Handler[events.CleanFinish]) func() { return eventbus.On(b, h) },
		func(h eventbus.Handler[events.UpstreamStart]) func() { return eventbus.On(b, h) },
		func(h eventbus.Handler[events.UpstreamFinish]) func() { return eventbus.On(b, h) },
	)
}

type subscriber struct {
	tracer        trace.Tracer
	httpSpans     sync.Map // rid -> trace.Span
	cleanSpans    sync.Map // rid -> trace.Span
	upstreamSpans sync.Map // rid -> trace.Span
}

type subscribeFunc[T any] func(eventbus.Handler[T]) func()

func (s *subscriber) register(
	onHTTPStart subscribeFunc[events.HTTPStart],
	onHTTPFinish subscribeFunc[events.HTTPFinish],
	onCleanStart subscribeFunc[events.CleanStart],
	onCleanFinish subscribeFunc[events.CleanFinish],
	onUpstreamStart subscribeFunc[events.UpstreamStart],
	onUpstreamFinish subscribeFunc[events.UpstreamFinish],
) func() {
	var offs []func()

	offs = append(offs, onHTTPStart(func(ctx context.Context, e events.HTTPStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(ctx, "http.request")
		span.SetAttributes(
			semconv.HTTPMethodKey.String(e.Request.Method),
			attribute.String("http.target", e.Request.URL.Path),
			attribute.Int64("http.request_id", e.RequestID),
		)
		s.httpSpans.Store(rid, span)
	}))

	offs = append(offs, onHTTPFinish(func(ctx context.Context, e events.HTTPFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.httpSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			semconv.HTTPStatusCodeKey.Int(e.Status),
			attribute.Int("graphql.requests", e.Requests),
		)
		if e.Status >= 500 {
			span.SetStatus(codes.Error, "")
		}
		span.End()
	}))

	offs = append(offs, onCleanStart(func(ctx context.Context, e events.CleanStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx, rid, &s.httpSpans), "graphql.clean")
		span.SetAttributes(attribute.String("graphql.operation.name", e.OperationName))
		s.cleanSpans.Store(rid, span)
	}))

	offs = append(offs, onCleanFinish(func(ctx context.Context, e events.CleanFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.cleanSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		span.SetAttributes(
			attribute.Int("graphql.prune.operations", e.Operations),
			attribute.Int("graphql.prune.removed", e.Removed),
		)
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End()
	}))

	offs = append(offs, onUpstreamStart(func(ctx context.Context, e events.UpstreamStart) {
		rid, _ := reqid.FromContext(ctx)
		_, span := s.tracer.Start(s.parent(ctx, rid, &s.httpSpans), "upstream.request",
			trace.WithSpanKind(trace.SpanKindClient))
		span.SetAttributes(attribute.String("http.url", e.URL))
		s.upstreamSpans.Store(rid, span)
	}))

	offs = append(offs, onUpstreamFinish(func(ctx context.Context, e events.UpstreamFinish) {
		rid, _ := reqid.FromContext(ctx)
		v, ok := s.upstreamSpans.LoadAndDelete(rid)
		if !ok {
			return
		}
		span := v.(trace.Span)
		if e.Status != 0 {
			span.SetAttributes(semconv.HTTPStatusCodeKey.Int(e.Status))
		}
		if e.Err != nil {
			span.RecordError(e.Err)
			span.SetStatus(codes.Error, e.Err.Error())
		}
		span.End()
	}))

	return func() {
		for _, off := range offs {
			off()
		}
	}
}

func (s *subscriber) parent(ctx context.Context, rid int64, spans *sync.Map) context.Context {
	if v, ok := spans.Load(rid); ok {
		return trace.ContextWithSpan(ctx, v.(trace.Span))
	}
	return ctx
}
