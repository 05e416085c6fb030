package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vyrodovalexey/avasheets/internal/observability"
)

// Logger records audit events.
type Logger interface {
	// LogEvent logs an audit event.
	LogEvent(ctx context.Context, event *Event)

	// LogAuthentication logs an authentication event.
	LogAuthentication(ctx context.Context, action Action, outcome Outcome, subject *Subject)

	// LogAuthorization logs an authorization event.
	LogAuthorization(ctx context.Context, outcome Outcome, subject *Subject, resource *Resource)

	// LogAdministrative logs an administrative event.
	LogAdministrative(ctx context.Context, action Action, outcome Outcome, subject *Subject, resource *Resource)

	// Close closes the logger.
	Close() error
}

// logger implements Logger over an io.Writer.
type logger struct {
	config  *Config
	writer  io.Writer
	mu      sync.Mutex
	logger  observability.Logger
	metrics *Metrics
	closer  io.Closer
}

// Metrics counts recorded audit events.
type Metrics struct {
	eventsTotal *prometheus.CounterVec
}

// NewMetrics creates audit metrics registered with the default registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates audit metrics registered with the
// provided registerer so they can share the service's registry.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "avasheets"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		eventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "events_total",
				Help:      "Total number of audit events",
			},
			[]string{"type", "action", "outcome"},
		),
	}

	// Duplicate registration is safe to ignore, descriptors are identical.
	_ = registerer.Register(m.eventsTotal)

	return m
}

// RecordEvent records an audit event metric.
func (m *Metrics) RecordEvent(eventType EventType, action Action, outcome Outcome) {
	if m.eventsTotal == nil {
		return
	}
	m.eventsTotal.WithLabelValues(string(eventType), string(action), string(outcome)).Inc()
}

// LoggerOption is a functional option for the logger.
type LoggerOption func(*logger)

// WithLoggerLogger sets the observability logger used for internal errors.
func WithLoggerLogger(l observability.Logger) LoggerOption {
	return func(lg *logger) {
		lg.logger = l
	}
}

// WithLoggerMetrics sets the metrics.
func WithLoggerMetrics(metrics *Metrics) LoggerOption {
	return func(lg *logger) {
		lg.metrics = metrics
	}
}

// WithLoggerWriter sets the output writer, overriding the configured
// destination.
func WithLoggerWriter(writer io.Writer) LoggerOption {
	return func(lg *logger) {
		lg.writer = writer
	}
}

// NewLogger creates an audit logger.
func NewLogger(config *Config, opts ...LoggerOption) (Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	l := &logger{
		config: config,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.metrics == nil {
		l.metrics = NewMetrics("avasheets")
	}

	if l.writer == nil {
		writer, closer, err := l.createWriter()
		if err != nil {
			return nil, err
		}
		l.writer = writer
		l.closer = closer
	}

	return l, nil
}

// createWriter opens the configured output destination.
func (l *logger) createWriter() (io.Writer, io.Closer, error) {
	switch output := l.config.effectiveOutput(); output {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	default:
		// Path comes from trusted configuration.
		//nolint:gosec // G304
		file, err := os.OpenFile(output, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open audit log file: %w", err)
		}
		return file, file, nil
	}
}

// LogEvent logs an audit event.
func (l *logger) LogEvent(ctx context.Context, event *Event) {
	if !l.config.Enabled {
		return
	}

	if event.RequestID == "" {
		event.RequestID = observability.RequestIDFromContext(ctx)
	}

	l.metrics.RecordEvent(event.Type, event.Action, event.Outcome)
	l.writeEvent(event)
}

// writeEvent writes the event to the output.
func (l *logger) writeEvent(event *Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var output []byte
	if l.config.effectiveFormat() == FormatText {
		output = []byte(l.formatText(event))
	} else {
		var err error
		output, err = json.Marshal(event)
		if err != nil {
			l.logger.Error("failed to marshal audit event", observability.Error(err))
			return
		}
		output = append(output, '\n')
	}

	if _, err := l.writer.Write(output); err != nil {
		l.logger.Error("failed to write audit event", observability.Error(err))
	}
}

// formatText formats an event as a single text line.
func (l *logger) formatText(event *Event) string {
	var sb strings.Builder

	sb.WriteString(event.Timestamp.Format(time.RFC3339))
	sb.WriteString(" ")
	sb.WriteString(string(event.Type))
	sb.WriteString(" ")
	sb.WriteString(string(event.Action))
	sb.WriteString(" ")
	sb.WriteString(string(event.Outcome))

	if event.Subject != nil {
		sb.WriteString(" subject=")
		sb.WriteString(event.Subject.UserID)
	}
	if event.Resource != nil && event.Resource.DocumentID != "" {
		sb.WriteString(" document=")
		sb.WriteString(event.Resource.DocumentID)
	}
	if event.RequestID != "" {
		sb.WriteString(" request_id=")
		sb.WriteString(event.RequestID)
	}
	if event.Reason != "" {
		sb.WriteString(" reason=")
		sb.WriteString(event.Reason)
	}

	sb.WriteString("\n")
	return sb.String()
}

// LogAuthentication logs an authentication event.
func (l *logger) LogAuthentication(ctx context.Context, action Action, outcome Outcome, subject *Subject) {
	l.LogEvent(ctx, AuthenticationEvent(action, outcome, subject))
}

// LogAuthorization logs an authorization event.
func (l *logger) LogAuthorization(ctx context.Context, outcome Outcome, subject *Subject, resource *Resource) {
	l.LogEvent(ctx, AuthorizationEvent(outcome, subject, resource))
}

// LogAdministrative logs an administrative event.
func (l *logger) LogAdministrative(ctx context.Context, action Action, outcome Outcome, subject *Subject, resource *Resource) {
	l.LogEvent(ctx, AdministrativeEvent(action, outcome, subject, resource))
}

// Close closes the logger.
func (l *logger) Close() error {
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// noopLogger is a no-op audit logger.
type noopLogger struct{}

// NewNoopLogger creates a no-op audit logger.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

func (l *noopLogger) LogEvent(_ context.Context, _ *Event) {}

func (l *noopLogger) LogAuthentication(_ context.Context, _ Action, _ Outcome, _ *Subject) {}

func (l *noopLogger) LogAuthorization(_ context.Context, _ Outcome, _ *Subject, _ *Resource) {}

func (l *noopLogger) LogAdministrative(_ context.Context, _ Action, _ Outcome, _ *Subject, _ *Resource) {
}

func (l *noopLogger) Close() error { return nil }

// Ensure implementations satisfy the interface.
var (
	_ Logger = (*logger)(nil)
	_ Logger = (*noopLogger)(nil)
)
