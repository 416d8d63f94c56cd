// Package service implements intake, the review workflow and activation of
// professional applications.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	identitymodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/identity/models"
	invitemodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/config"
	rbacmodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
	txcontext "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/tx"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

const tracerName = "github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding"

type ApplicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	UpdatePending(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error)
	FindOpenBySubject(ctx context.Context, subjectID string) (*models.Application, error)
	FindLatestBySubject(ctx context.Context, subjectID string) (*models.Application, error)
	OpenContactMatches(ctx context.Context, email, phone, excludeSubjectID string) (identitymodels.ContactMatch, error)
	ClaimTransition(ctx context.Context, claim models.TransitionClaim) error
	FinalizeApproval(ctx context.Context, appID id.ApplicationID, approvedBy string, approvedAt time.Time, identityID id.IdentityID) error
	ListByStates(ctx context.Context, states []models.WorkflowState, limit int) ([]*models.Application, error)
}

type DocumentStore interface {
	Add(ctx context.Context, doc models.Document) error
	ListByApplication(ctx context.Context, appID id.ApplicationID) ([]models.Document, error)
}

// IdentityStore holds the production records written on activation.
type IdentityStore interface {
	FindByExternalSubject(ctx context.Context, subjectID, subjectType string) (*identitymodels.Identity, error)
	ContactMatches(ctx context.Context, email, phone string) (identitymodels.ContactMatch, error)
	UpsertIdentity(ctx context.Context, ident *identitymodels.Identity) (*identitymodels.Identity, error)
	UpsertProfile(ctx context.Context, p *identitymodels.ProfessionalProfile) error
	UpsertVerification(ctx context.Context, v *identitymodels.VerificationRecord) error
}

type Authorizer interface {
	Require(ctx context.Context, principal id.Principal, names ...rbacmodels.Permission) error
	HasPermission(ctx context.Context, principal id.Principal, name rbacmodels.Permission) (bool, error)
}

// AuditRecorder appends to both audit logs. Errors must abort the caller's transaction.
type AuditRecorder interface {
	RecordWorkflow(ctx context.Context, entry audit.WorkflowEntry) error
	RecordCompliance(ctx context.Context, entry audit.ComplianceEntry) error
}

type AuditReader interface {
	ListWorkflowByApplication(ctx context.Context, applicationID id.ApplicationID) ([]audit.WorkflowEntry, error)
}

// InviteRedeemer activates an applicant directly through an organization invite.
type InviteRedeemer interface {
	Redeem(ctx context.Context, code string, data invitemodels.ApplicantData, principal *id.Principal) (*identitymodels.Identity, error)
}

// BackgroundCheckInitiator hands an application to the background-check vendor.
// It is called after the pending marker is committed and must not block for long.
type BackgroundCheckInitiator interface {
	Initiate(ctx context.Context, app *models.Application) error
}

// Stores groups the persistence ports used by the service.
type Stores struct {
	Applications ApplicationStore
	Documents    DocumentStore
	Identities   IdentityStore
	AuditLog     AuditReader
}

// Service orchestrates the onboarding workflow.
type Service struct {
	apps        ApplicationStore
	docs        DocumentStore
	identities  IdentityStore
	auditLog    AuditReader
	tx          txcontext.Runner
	authz       Authorizer
	recorder    AuditRecorder
	invites     InviteRedeemer
	bgCheck     BackgroundCheckInitiator
	workflowCfg config.WorkflowConfig
	logger      *slog.Logger
	metrics     *Metrics
	tracer      trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

func WithInviteRedeemer(r InviteRedeemer) Option {
	return func(s *Service) {
		s.invites = r
	}
}

func WithBackgroundCheckInitiator(b BackgroundCheckInitiator) Option {
	return func(s *Service) {
		s.bgCheck = b
	}
}

// WithWorkflowConfig sets the subject type and the activation defaults.
func WithWorkflowConfig(cfg config.WorkflowConfig) Option {
	return func(s *Service) {
		if cfg.ExternalSubjectType != "" {
			s.workflowCfg.ExternalSubjectType = cfg.ExternalSubjectType
		}
		if cfg.DefaultTimezone != "" {
			s.workflowCfg.DefaultTimezone = cfg.DefaultTimezone
		}
		if cfg.DefaultCountry != "" {
			s.workflowCfg.DefaultCountry = cfg.DefaultCountry
		}
	}
}

// New constructs a Service.
func New(stores Stores, tx txcontext.Runner, authz Authorizer, recorder AuditRecorder, opts ...Option) (*Service, error) {
	switch {
	case stores.Applications == nil || stores.Documents == nil || stores.Identities == nil || stores.AuditLog == nil:
		return nil, errors.New("onboarding stores are required")
	case tx == nil:
		return nil, errors.New("transaction runner is required")
	case authz == nil:
		return nil, errors.New("authorizer is required")
	case recorder == nil:
		return nil, errors.New("audit recorder is required")
	}
	s := &Service{
		apps:       stores.Applications,
		docs:       stores.Documents,
		identities: stores.Identities,
		auditLog:   stores.AuditLog,
		tx:         tx,
		authz:      authz,
		recorder:   recorder,
		workflowCfg: config.WorkflowConfig{
			ExternalSubjectType: "cognito",
			DefaultTimezone:     "America/New_York",
			DefaultCountry:      "US",
		},
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	}
	span.End()
}

// storageError maps a store failure that has no domain meaning. Domain errors
// raised inside a transaction pass through unchanged.
func storageError(err error, msg string) error {
	if _, ok := dErrors.As(err); ok {
		return err
	}
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
}

func (s *Service) logFailure(ctx context.Context, msg string, err error, args ...any) {
	if s.logger == nil {
		return
	}
	args = append(args, "request_id", requestcontext.RequestID(ctx), "error", err)
	s.logger.ErrorContext(ctx, msg, args...)
}

// Metrics counts onboarding outcomes.
type Metrics struct {
	Registrations   *prometheus.CounterVec
	Transitions     *prometheus.CounterVec
	Activations     *prometheus.CounterVec
	DuplicateChecks *prometheus.CounterVec
}

// NewMetrics registers onboarding metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_registrations_total",
			Help: "Registrations by path and outcome",
		}, []string{"path", "outcome"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_transitions_total",
			Help: "Workflow transitions by target state and outcome",
		}, []string{"target", "outcome"}),
		Activations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_activations_total",
			Help: "Activation transactions by outcome",
		}, []string{"outcome"}),
		DuplicateChecks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_duplicate_checks_total",
			Help: "Duplicate checks by result",
		}, []string{"result"}),
	}
}

func outcomeLabel(err error) string {
	if err == nil {
		return "success"
	}
	return string(dErrors.CodeOf(err))
}

func (s *Service) countRegistration(path string, err error) {
	if s.metrics != nil {
		s.metrics.Registrations.WithLabelValues(path, outcomeLabel(err)).Inc()
	}
}

func (s *Service) countTransition(target models.WorkflowState, outcome string) {
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(string(target), outcome).Inc()
	}
}

func (s *Service) countActivation(err error) {
	if s.metrics != nil {
		s.metrics.Activations.WithLabelValues(outcomeLabel(err)).Inc()
	}
}
