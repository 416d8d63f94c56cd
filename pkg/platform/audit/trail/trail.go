// Package trail records workflow and compliance audit entries with fail-closed semantics.
//
// Writes are synchronous and use the caller's context, so inside a transaction they
// commit or roll back with the business change. If a write fails the error is
// returned and the calling operation must fail.
package trail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mssola/useragent"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

// Trail writes both audit logs.
type Trail struct {
	store   audit.Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Trail.
type Option func(*Trail)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Trail) {
		t.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(t *Trail) {
		t.metrics = m
	}
}

// New creates a trail over store.
func New(store audit.Store, opts ...Option) *Trail {
	t := &Trail{store: store}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordWorkflow appends a workflow log entry. Request id and timestamp are taken
// from ctx when not set.
func (t *Trail) RecordWorkflow(ctx context.Context, entry audit.WorkflowEntry) error {
	if entry.Action == "" {
		return errors.New("workflow entry requires Action")
	}
	if entry.ActorType == "" {
		return errors.New("workflow entry requires ActorType")
	}
	if entry.Outcome == "" {
		entry.Outcome = audit.OutcomeSuccess
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = requestcontext.Now(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}

	if err := t.store.AppendWorkflow(ctx, &entry); err != nil {
		t.failed(ctx, "workflow", string(entry.Action), err)
		return fmt.Errorf("workflow audit persistence failed: %w", err)
	}
	t.recorded("workflow")
	return nil
}

// RecordCompliance appends a compliance entry enriched with the caller's IP,
// user agent and device summary.
func (t *Trail) RecordCompliance(ctx context.Context, entry audit.ComplianceEntry) error {
	if entry.Action == "" {
		return errors.New("compliance entry requires Action")
	}
	if entry.ResourceType == "" || entry.ResourceID == "" {
		return errors.New("compliance entry requires a resource")
	}
	if entry.ComplianceLevel == "" {
		entry.ComplianceLevel = audit.LevelPII
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = requestcontext.Now(ctx)
	}
	if entry.RequestID == "" {
		entry.RequestID = requestcontext.RequestID(ctx)
	}
	if entry.Actor == "" {
		entry.Actor = requestcontext.SubjectID(ctx)
	}
	if entry.IP == "" {
		entry.IP = requestcontext.ClientIP(ctx)
	}
	if entry.UserAgent == "" {
		entry.UserAgent = requestcontext.UserAgent(ctx)
	}
	if entry.Device == "" {
		entry.Device = DeviceSummary(entry.UserAgent)
	}

	if err := t.store.AppendCompliance(ctx, &entry); err != nil {
		t.failed(ctx, "compliance", string(entry.Action), err)
		return fmt.Errorf("compliance audit persistence failed: %w", err)
	}
	t.recorded("compliance")
	return nil
}

// DeviceSummary renders a short "Browser version on OS (kind)" label.
func DeviceSummary(ua string) string {
	if strings.TrimSpace(ua) == "" {
		return ""
	}
	parsed := useragent.New(ua)
	if parsed.Bot() {
		name, _ := parsed.Browser()
		return "bot " + name
	}

	name, version := parsed.Browser()
	kind := "desktop"
	if parsed.Mobile() {
		kind = "mobile"
	}

	var b strings.Builder
	b.WriteString(name)
	if version != "" {
		b.WriteString(" " + version)
	}
	if osName := parsed.OS(); osName != "" {
		b.WriteString(" on " + osName)
	}
	b.WriteString(" (" + kind + ")")
	return strings.TrimSpace(b.String())
}

func (t *Trail) recorded(log string) {
	if t.metrics != nil {
		t.metrics.EntriesRecorded.WithLabelValues(log).Inc()
	}
}

func (t *Trail) failed(ctx context.Context, log, action string, err error) {
	if t.metrics != nil {
		t.metrics.PersistFailures.WithLabelValues(log).Inc()
	}
	if t.logger != nil {
		t.logger.ErrorContext(ctx, "CRITICAL: audit write failed",
			"log", log,
			"action", action,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
}

// Metrics counts audit writes.
type Metrics struct {
	EntriesRecorded *prometheus.CounterVec
	PersistFailures *prometheus.CounterVec
}

// NewMetrics registers the trail metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EntriesRecorded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_audit_entries_total",
			Help: "Audit entries written, by log",
		}, []string{"log"}),
		PersistFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_audit_persist_failures_total",
			Help: "Audit writes that failed and aborted their operation, by log",
		}, []string{"log"}),
	}
}
