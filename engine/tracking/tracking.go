// Package tracking records product analytics events: the dashboard's button
// clicks and every finished audit. Events go to NATS, to the log, or both.
package tracking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/WessleyAI/geoaudit/engine/audit"
	"github.com/WessleyAI/geoaudit/pkg/natsutil"
	"github.com/nats-io/nats.go"
)

// DefaultSubject is the NATS subject events are published on.
const DefaultSubject = "geoaudit.events"

// Name identifies an event.
type Name string

const (
	SchemaAuditClicked      Name = "schema_audit_clicked"
	ConnectWordPressClicked Name = "connect_wordpress_clicked"
	PostAuditClicked        Name = "post_audit_clicked"
	PublishSchemaClicked    Name = "publish_schema_clicked"
	AnalysisCompleted       Name = "analysis_completed"
)

// Event is one analytics record.
type Event struct {
	Name   Name           `json:"name"`
	User   string         `json:"user,omitempty"`
	Target string         `json:"target,omitempty"`
	At     time.Time      `json:"at"`
	Props  map[string]any `json:"props,omitempty"`
}

// Sink delivers events somewhere.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// NATSSink publishes events as JSON on a subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

// NewNATSSink returns a sink on subject; empty means DefaultSubject.
func NewNATSSink(nc *nats.Conn, subject string) *NATSSink {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSSink{nc: nc, subject: subject}
}

func (s *NATSSink) Send(ctx context.Context, ev Event) error {
	return natsutil.Publish(ctx, s.nc, s.subject, ev)
}

// Subject returns the subject the sink publishes on.
func (s *NATSSink) Subject() string { return s.subject }

// LogSink writes events as structured log lines.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Send(ctx context.Context, ev Event) error {
	l := s.Logger
	if l == nil {
		l = slog.Default()
	}
	l.InfoContext(ctx, "event", "name", ev.Name, "user", ev.User, "target", ev.Target, "props", ev.Props)
	return nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Send(context.Context, Event) error { return nil }

// Multi fans an event out to every sink and joins their errors.
type Multi []Sink

func (m Multi) Send(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Tracker stamps events and sends them best-effort: delivery failures are
// logged, never returned.
type Tracker struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Tracker over sink. A nil sink means Nop.
func New(sink Sink, logger *slog.Logger) *Tracker {
	if sink == nil {
		sink = Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{sink: sink, logger: logger, now: time.Now}
}

// Track records name for user against target.
func (t *Tracker) Track(ctx context.Context, name Name, user, target string, props map[string]any) {
	ev := Event{Name: name, User: user, Target: target, At: t.now().UTC(), Props: props}
	if err := t.sink.Send(ctx, ev); err != nil {
		t.logger.Warn("tracking: send failed", "name", name, "err", err)
	}
}

// RecordOutcome emits AnalysisCompleted, so a Tracker can be handed to the
// audit pipeline as an outcome sink.
func (t *Tracker) RecordOutcome(ctx context.Context, o audit.Outcome) {
	props := map[string]any{
		"kind":        string(o.Kind),
		"tier":        string(o.Tier),
		"level":       o.Tier.Level(),
		"score":       o.Score,
		"duration_ms": o.Duration.Milliseconds(),
	}
	if o.Cause != nil {
		props["cause"] = o.Cause.Error()
	}
	t.Track(ctx, AnalysisCompleted, "", o.URL, props)
}

var _ audit.OutcomeSink = (*Tracker)(nil)
