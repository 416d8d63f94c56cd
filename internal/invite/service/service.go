// Package service redeems and manages organization invites. A redemption
// activates the applicant directly, bypassing review.
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
	invitecode "github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/code"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/models"
	rbacmodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
	txcontext "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/tx"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, invite *models.Invite) error
	FindByCode(ctx context.Context, code string) (*models.Invite, error)
	IncrementUse(ctx context.Context, inviteID id.InviteID, now time.Time) (*models.Invite, error)
	ListByOrganization(ctx context.Context, orgID id.OrganizationID) ([]*models.Invite, error)
}

type IdentityStore interface {
	UpsertIdentity(ctx context.Context, ident *identitymodels.Identity) (*identitymodels.Identity, error)
}

type Authorizer interface {
	Require(ctx context.Context, principal id.Principal, names ...rbacmodels.Permission) error
}

type AuditRecorder interface {
	RecordWorkflow(ctx context.Context, entry audit.WorkflowEntry) error
	RecordCompliance(ctx context.Context, entry audit.ComplianceEntry) error
}

// Service handles invite redemption and administration.
type Service struct {
	invites     Store
	identities  IdentityStore
	tx          txcontext.Runner
	authz       Authorizer
	recorder    AuditRecorder
	subjectType string
	generate    func() (string, error)
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

// WithSubjectType sets the subject type used when the applicant omits one.
func WithSubjectType(subjectType string) Option {
	return func(s *Service) {
		if subjectType != "" {
			s.subjectType = subjectType
		}
	}
}

// WithCodeGenerator replaces the random invite code generator.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(s *Service) {
		s.generate = fn
	}
}

// New constructs a Service. The runner should use serializable isolation with
// retries in production.
func New(invites Store, identities IdentityStore, tx txcontext.Runner, authz Authorizer, recorder AuditRecorder, opts ...Option) (*Service, error) {
	if invites == nil || identities == nil {
		return nil, errors.New("invite and identity stores are required")
	}
	if tx == nil || authz == nil || recorder == nil {
		return nil, errors.New("transaction runner, authorizer and audit recorder are required")
	}
	s := &Service{
		invites:     invites,
		identities:  identities,
		tx:          tx,
		authz:       authz,
		recorder:    recorder,
		subjectType: "cognito",
		generate:    invitecode.Generate,
		logger:      slog.Default(),
		tracer:      otel.Tracer("github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Redeem consumes one use of the invite and activates a pre-verified identity
// bound to the invite's organization. The use is counted with a conditional
// increment; the identity is only written once the increment succeeded.
func (s *Service) Redeem(ctx context.Context, code string, data models.ApplicantData, principal *id.Principal) (ident *identitymodels.Identity, err error) {
	ctx, span := s.tracer.Start(ctx, "invite.Redeem")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
		}
		span.End()
		s.countRedemption(err)
	}()

	code = models.NormalizeCode(code)
	if code == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "invite code is required")
	}
	if err := data.Validate(); err != nil {
		return nil, err
	}
	if data.ExternalSubjectType == "" {
		data.ExternalSubjectType = s.subjectType
	}
	if principal != nil && !principal.IsZero() && principal.SubjectID != data.ExternalSubjectID {
		return nil, dErrors.New(dErrors.CodeForbidden, "invite must be redeemed by the authenticated subject")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		ident = nil
		now := requestcontext.Now(ctx)
		inv, err := s.invites.FindByCode(ctx, code)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "invite not found")
		}
		if err != nil {
			return err
		}
		if err := inv.CanRedeem(now); err != nil {
			return err
		}

		consumed, err := s.invites.IncrementUse(ctx, inv.ID, now)
		if errors.Is(err, sentinel.ErrInvalidState) {
			return dErrors.New(dErrors.CodeConflict, "invite no longer valid")
		}
		if err != nil {
			return err
		}
		span.SetAttributes(
			attribute.String("invite_id", consumed.ID.String()),
			attribute.Int("current_uses", consumed.CurrentUses),
		)

		orgID := consumed.OrganizationID
		stored, err := s.identities.UpsertIdentity(ctx, &identitymodels.Identity{
			ID:                  id.NewIdentityID(),
			ExternalSubjectID:   data.ExternalSubjectID,
			ExternalSubjectType: data.ExternalSubjectType,
			Email:               data.Email,
			Phone:               data.Phone,
			FirstName:           data.FirstName,
			LastName:            data.LastName,
			Status:              identitymodels.StatusActive,
			Verified:            true,
			OrganizationID:      &orgID,
			CreatedAt:           now,
			UpdatedAt:           now,
		})
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		if err != nil {
			return err
		}

		if err := s.recordRedemption(ctx, consumed, stored); err != nil {
			return err
		}
		ident = stored
		return nil
	})
	if err != nil {
		if _, ok := dErrors.As(err); ok && !dErrors.Retryable(err) {
			return nil, err
		}
		s.logger.ErrorContext(ctx, "invite redemption failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		if _, ok := dErrors.As(err); ok {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "invite redemption unavailable")
	}
	return ident, nil
}

func (s *Service) recordRedemption(ctx context.Context, inv *models.Invite, ident *identitymodels.Identity) error {
	err := s.recorder.RecordWorkflow(ctx, audit.WorkflowEntry{
		IdentityID: ident.ID,
		Stage:      string(ident.Status),
		Action:     audit.ActionInviteRedeemed,
		ActorType:  id.ActorApplicant,
		ActorID:    ident.ExternalSubjectID,
		Details: map[string]any{
			"invite_id":       inv.ID.String(),
			"organization_id": inv.OrganizationID.String(),
			"current_uses":    inv.CurrentUses,
			"max_uses":        inv.MaxUses,
		},
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record workflow entry")
	}
	err = s.recorder.RecordCompliance(ctx, audit.ComplianceEntry{
		Action:       audit.ComplianceInviteRedeemed,
		ResourceType: audit.ResourceIdentity,
		ResourceID:   ident.ID.String(),
		NewValues: map[string]any{
			"email":           ident.Email,
			"first_name":      ident.FirstName,
			"last_name":       ident.LastName,
			"organization_id": inv.OrganizationID.String(),
			"status":          string(ident.Status),
			"verified":        ident.Verified,
		},
		Actor: ident.ExternalSubjectID,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record compliance entry")
	}
	return nil
}

// CreateInvite issues a new invite for an organization.
func (s *Service) CreateInvite(ctx context.Context, principal id.Principal, req *models.CreateInviteRequest) (*models.Invite, error) {
	if err := s.authz.Require(ctx, principal, rbacmodels.PermInvitesCreate); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	if err := req.Validate(now); err != nil {
		return nil, err
	}
	code := req.Code
	if code == "" {
		generated, err := s.generate()
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate invite code")
		}
		code = models.NormalizeCode(generated)
	}

	inv := &models.Invite{
		ID:             id.NewInviteID(),
		Code:           code,
		OrganizationID: req.Organization(),
		MaxUses:        req.MaxUses,
		Status:         models.StatusActive,
		ExpiresAt:      req.ExpiresAt,
		CreatedBy:      principal.SubjectID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.invites.Create(ctx, inv); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "invite code already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to create invite")
		}
		err := s.recorder.RecordWorkflow(ctx, audit.WorkflowEntry{
			Stage:     string(inv.Status),
			Action:    audit.ActionInviteCreated,
			ActorType: id.ActorAdmin,
			ActorID:   principal.SubjectID,
			Details: map[string]any{
				"invite_id":       inv.ID.String(),
				"organization_id": inv.OrganizationID.String(),
				"max_uses":        inv.MaxUses,
			},
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record workflow entry")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "invite created",
		"request_id", requestcontext.RequestID(ctx),
		"invite_id", inv.ID.String(),
		"organization_id", inv.OrganizationID.String(),
		"max_uses", inv.MaxUses,
	)
	return inv, nil
}

// ListInvites returns an organization's invites, oldest first, with expiry
// reflected in each status.
func (s *Service) ListInvites(ctx context.Context, principal id.Principal, organizationID string) ([]*models.Invite, error) {
	if err := s.authz.Require(ctx, principal, rbacmodels.PermInvitesRead); err != nil {
		return nil, err
	}
	orgID, err := id.ParseOrganizationID(organizationID)
	if err != nil {
		return nil, err
	}
	invites, err := s.invites.ListByOrganization(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list invites")
	}
	now := requestcontext.Now(ctx)
	for _, inv := range invites {
		inv.Status = inv.EffectiveStatus(now)
	}
	return invites, nil
}

func (s *Service) countRedemption(err error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = string(dErrors.CodeOf(err))
	}
	s.metrics.Redemptions.WithLabelValues(outcome).Inc()
}

// Metrics counts invite redemptions.
type Metrics struct {
	Redemptions *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Redemptions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_invite_redemptions_total",
			Help: "Invite redemptions by outcome",
		}, []string{"outcome"}),
	}
}
