// Package outbox relays queued compliance entries to Kafka.
//
// Entries are queued in the same transaction that writes them, so a message exists
// if and only if its entry was committed. Delivery is at least once; consumers
// deduplicate on the entry id carried in the payload.
package outbox

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
)

// Message is a queued outbox row.
type Message struct {
	ID      int64
	Key     string
	Payload []byte
}

// Payload is the JSON document published for each compliance entry.
type Payload struct {
	ID              int64          `json:"id"`
	Action          string         `json:"action"`
	ResourceType    string         `json:"resource_type"`
	ResourceID      string         `json:"resource_id"`
	OldValues       map[string]any `json:"old_values,omitempty"`
	NewValues       map[string]any `json:"new_values,omitempty"`
	Actor           string         `json:"actor,omitempty"`
	Device          string         `json:"device,omitempty"`
	ComplianceLevel string         `json:"compliance_level"`
	RequestID       string         `json:"request_id,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
}

// PayloadFrom builds the published document. IP and raw user agent stay in the
// database and are not fanned out.
func PayloadFrom(e audit.ComplianceEntry) Payload {
	return Payload{
		ID:              e.ID,
		Action:          string(e.Action),
		ResourceType:    e.ResourceType,
		ResourceID:      e.ResourceID,
		OldValues:       e.OldValues,
		NewValues:       e.NewValues,
		Actor:           e.Actor,
		Device:          e.Device,
		ComplianceLevel: string(e.ComplianceLevel),
		RequestID:       e.RequestID,
		CreatedAt:       e.CreatedAt,
	}
}

// Source reads and acknowledges queued messages.
type Source interface {
	FetchPending(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, ids []int64, at time.Time) error
}

// Producer delivers a batch; it returns only after every message is acknowledged.
type Producer interface {
	Publish(ctx context.Context, msgs []Message) error
}

// Relay polls the source and forwards batches to the producer.
type Relay struct {
	source    Source
	producer  Producer
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
}

// Option configures the Relay.
type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

// NewRelay builds a relay polling every two seconds in batches of 100.
func NewRelay(source Source, producer Producer, opts ...Option) *Relay {
	r := &Relay{
		source:    source,
		producer:  producer,
		interval:  2 * time.Second,
		batchSize: 100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled. Delivery failures are logged and retried on
// the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		for {
			n, err := r.RelayOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.logger.WarnContext(ctx, "outbox relay failed", "error", err)
				break
			}
			if n < r.batchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RelayOnce forwards at most one batch and returns how many messages it delivered.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	msgs, err := r.source.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(msgs) == 0 {
		return 0, nil
	}

	if err := r.producer.Publish(ctx, msgs); err != nil {
		if r.metrics != nil {
			r.metrics.PublishFailures.Inc()
		}
		return 0, errors.Join(errors.New("publish outbox batch"), err)
	}

	ids := make([]int64, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	if err := r.source.MarkPublished(ctx, ids, time.Now()); err != nil {
		return 0, err
	}
	if r.metrics != nil {
		r.metrics.MessagesRelayed.Add(float64(len(msgs)))
	}
	return len(msgs), nil
}

// Metrics tracks relay throughput.
type Metrics struct {
	MessagesRelayed prometheus.Counter
	PublishFailures prometheus.Counter
}

// NewMetrics registers the relay metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		MessagesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_audit_outbox_relayed_total",
			Help: "Compliance entries published to Kafka",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "onboarding_audit_outbox_publish_failures_total",
			Help: "Outbox batches that failed to publish",
		}),
	}
}
