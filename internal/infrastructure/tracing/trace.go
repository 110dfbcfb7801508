package tracing

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/sessionproxy/internal/shared/id"
	"go.uber.org/zap"
)

// Trace headers exchanged with the browser
const (
	TraceHeader = "X-Trace-ID"
	SpanHeader  = "X-Span-ID"
)

const spanBuffer = 1024

// Span covers one proxied request
type Span struct {
	TraceID  string
	SpanID   string
	ParentID string
	Name     string
	Start    time.Time
	Duration time.Duration
	Status   int
	Err      error

	tracer *Tracer
	mu     sync.Mutex
	tags   map[string]string
	ended  bool
}

// SetTag attaches a key/value pair logged with the span
func (s *Span) SetTag(key, value string) {
	s.mu.Lock()
	s.tags[key] = value
	s.mu.Unlock()
}

// Tag returns a tag set on the span
func (s *Span) Tag(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tags[key]
}

// End records the outcome and hands the span to its tracer. Only the first
// call has any effect.
func (s *Span) End(status int, err error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.Duration = time.Since(s.Start)
	s.Status = status
	s.Err = err
	s.mu.Unlock()

	if s.tracer != nil {
		s.tracer.submit(s)
	}
}

// Tracer logs finished spans from a background goroutine so request
// handlers never block on the logger
type Tracer struct {
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	spans  chan *Span
	done   chan struct{}
}

// New starts a tracer; service is attached to every span it logs
func New(service string, logger *zap.Logger) *Tracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tracer{
		logger: logger.Named("tracing").With(zap.String("service", service)),
		spans:  make(chan *Span, spanBuffer),
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

// Start opens a span that continues the trace carried by ctx, or a new
// trace when there is none
func (t *Tracer) Start(ctx context.Context, name string) (*Span, context.Context) {
	ids, _ := ctx.Value(traceKey{}).(traceIDs)
	if ids.trace == "" {
		ids.trace = id.Trace()
	}

	span := &Span{
		TraceID:  ids.trace,
		SpanID:   id.Span(),
		ParentID: ids.span,
		Name:     name,
		Start:    time.Now(),
		tracer:   t,
		tags:     make(map[string]string),
	}

	ctx = context.WithValue(ctx, traceKey{}, traceIDs{trace: span.TraceID, span: span.SpanID})
	ctx = context.WithValue(ctx, spanKey{}, span)
	return span, ctx
}

// Close logs the spans still buffered and stops the tracer. Spans ended
// afterwards are dropped.
func (t *Tracer) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	close(t.spans)
	t.mu.Unlock()
	<-t.done
}

func (t *Tracer) submit(s *Span) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}

	select {
	case t.spans <- s:
	default:
		t.logger.Warn("span buffer full, dropping span", zap.String("trace_id", s.TraceID))
	}
}

func (t *Tracer) run() {
	defer close(t.done)
	for s := range t.spans {
		t.log(s)
	}
}

func (t *Tracer) log(s *Span) {
	if s.Err == nil && !t.logger.Core().Enabled(zap.DebugLevel) {
		return
	}

	fields := []zap.Field{
		zap.String("trace_id", s.TraceID),
		zap.String("span_id", s.SpanID),
		zap.String("operation", s.Name),
		zap.Int("status", s.Status),
		zap.Duration("duration", s.Duration),
	}
	if s.ParentID != "" {
		fields = append(fields, zap.String("parent_id", s.ParentID))
	}
	s.mu.Lock()
	for k, v := range s.tags {
		fields = append(fields, zap.String(k, v))
	}
	s.mu.Unlock()

	if s.Err != nil {
		t.logger.Warn("span failed", append(fields, zap.Error(s.Err))...)
		return
	}
	t.logger.Debug("span finished", fields...)
}

type (
	traceKey struct{}
	spanKey  struct{}
)

type traceIDs struct {
	trace, span string
}

// ContinueTrace returns ctx carrying an upstream trace id and parent span
// id. Empty values are ignored.
func ContinueTrace(ctx context.Context, traceID, parentID string) context.Context {
	if traceID == "" {
		return ctx
	}
	return context.WithValue(ctx, traceKey{}, traceIDs{trace: traceID, span: parentID})
}

// TraceID returns the trace id carried by ctx, or ""
func TraceID(ctx context.Context) string {
	ids, _ := ctx.Value(traceKey{}).(traceIDs)
	return ids.trace
}

// SpanFromContext returns the active span. Without one it returns a
// detached span that accepts tags and is never logged.
func SpanFromContext(ctx context.Context) *Span {
	if s, ok := ctx.Value(spanKey{}).(*Span); ok {
		return s
	}
	return &Span{tags: make(map[string]string)}
}

// Fields returns the zap fields that tie a log line to the trace in ctx
func Fields(ctx context.Context) []zap.Field {
	if traceID := TraceID(ctx); traceID != "" {
		return []zap.Field{zap.String("trace_id", traceID)}
	}
	return nil
}
