// Package nats publishes lifecycle events to NATS subjects.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	backend "github.com/nats-io/nats.go"

	"github.com/aretw0/stagecraft/internal/logging"
	"github.com/aretw0/stagecraft/pkg/domain"
)

// DefaultSubject is the subject prefix events are published under.
const DefaultSubject = "stagecraft.events"

// Conn is the part of *nats.Conn the publisher uses.
type Conn interface {
	Publish(subj string, data []byte) error
	FlushWithContext(ctx context.Context) error
	Drain() error
}

// Publisher implements ports.EventPublisher.
//
// An event of type T is published on <subject>.<T>, e.g. stagecraft.events.task_status.
type Publisher struct {
	conn    Conn
	subject string
	logger  *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithSubject sets the subject prefix.
func WithSubject(subject string) Option {
	return func(p *Publisher) { p.subject = strings.TrimSuffix(subject, ".") }
}

// WithLogger sets the publisher logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// NewPublisher creates a Publisher on an existing connection.
func NewPublisher(conn Conn, opts ...Option) *Publisher {
	p := &Publisher{conn: conn, subject: DefaultSubject, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Connect dials url and returns a Publisher owning the connection.
func Connect(url string, opts ...Option) (*Publisher, error) {
	nc, err := backend.Connect(url,
		backend.Name("stagecraft"),
		backend.Timeout(5*time.Second),
		backend.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}
	return NewPublisher(nc, opts...), nil
}

// Subject returns the subject an event is published on.
func (p *Publisher) Subject(ev *domain.Event) string {
	return p.subject + "." + string(ev.Type)
}

// Publish implements ports.EventPublisher.
func (p *Publisher) Publish(ctx context.Context, ev *domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(p.Subject(ev), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Hooks publishes every lifecycle event. Publishing failures are logged, never returned.
func (p *Publisher) Hooks() domain.LifecycleHooks {
	publish := func(ctx context.Context, ev *domain.Event) {
		if err := p.Publish(ctx, ev); err != nil {
			p.logger.Warn("Event publish failed", "event", ev.Type, "err", err)
		}
	}
	return domain.LifecycleHooks{
		OnStageEnter: publish,
		OnStageLeave: publish,
		OnAction:     publish,
		OnDecision:   publish,
		OnTaskStatus: publish,
	}
}

// Close flushes pending messages and drains the connection.
func (p *Publisher) Close(ctx context.Context) error {
	if err := p.conn.FlushWithContext(ctx); err != nil {
		p.logger.Warn("Event flush failed", "err", err)
	}
	return p.conn.Drain()
}
