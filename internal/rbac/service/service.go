// Package service resolves a principal's effective permissions from role assignments.
// It is a pure query layer: checks never mutate state.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

// Store returns every grant reachable from a principal's role assignments,
// expired ones included.
type Store interface {
	GrantsFor(ctx context.Context, principalID string) ([]models.Grant, error)
	AssignRole(ctx context.Context, assignment models.Assignment) error
}

// Service answers permission questions.
type Service struct {
	store   Store
	logger  *slog.Logger
	metrics *Metrics
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

// New constructs a Service.
func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	s := &Service{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Permissions returns the union of permissions across the principal's
// non-expired assignments, evaluated at the request time.
func (s *Service) Permissions(ctx context.Context, principal id.Principal) (models.PermissionSet, error) {
	if principal.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	grants, err := s.store.GrantsFor(ctx, principal.SubjectID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to resolve permissions",
			"request_id", requestcontext.RequestID(ctx),
			"principal_id", principal.SubjectID,
			"error", err,
		)
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "permission lookup unavailable")
	}
	return models.EffectivePermissions(grants, requestcontext.Now(ctx)), nil
}

// HasPermission reports whether the principal holds name.
func (s *Service) HasPermission(ctx context.Context, principal id.Principal, name models.Permission) (bool, error) {
	set, err := s.Permissions(ctx, principal)
	if err != nil {
		return false, err
	}
	return set.Has(name), nil
}

// HasAny reports whether the principal holds at least one of names.
func (s *Service) HasAny(ctx context.Context, principal id.Principal, names ...models.Permission) (bool, error) {
	set, err := s.Permissions(ctx, principal)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if set.Has(n) {
			return true, nil
		}
	}
	return false, nil
}

// HasAll reports whether the principal holds every one of names.
func (s *Service) HasAll(ctx context.Context, principal id.Principal, names ...models.Permission) (bool, error) {
	set, err := s.Permissions(ctx, principal)
	if err != nil {
		return false, err
	}
	for _, n := range names {
		if !set.Has(n) {
			return false, nil
		}
	}
	return true, nil
}

// Require fails with a forbidden error unless the principal holds every one of names.
// Lookup failures deny as well.
func (s *Service) Require(ctx context.Context, principal id.Principal, names ...models.Permission) error {
	set, err := s.Permissions(ctx, principal)
	if err != nil {
		outcome := "error"
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			outcome = "unauthenticated"
		}
		s.observe(names, outcome)
		return err
	}
	var missing []string
	for _, n := range names {
		if !set.Has(n) {
			missing = append(missing, string(n))
		}
	}
	if len(missing) > 0 {
		s.observe(names, "denied")
		s.logger.WarnContext(ctx, "permission denied",
			"request_id", requestcontext.RequestID(ctx),
			"principal_id", principal.SubjectID,
			"missing", missing,
		)
		return dErrors.New(dErrors.CodeForbidden, "missing permission "+strings.Join(missing, ", "))
	}
	s.observe(names, "granted")
	return nil
}

// AssignRole grants roleName to principalID. Used to bootstrap administrators.
func (s *Service) AssignRole(ctx context.Context, principalID, roleName, grantedBy string, expiresAt *time.Time) error {
	principalID = strings.TrimSpace(principalID)
	roleName = strings.TrimSpace(roleName)
	if principalID == "" || roleName == "" {
		return dErrors.New(dErrors.CodeValidation, "principal and role are required")
	}
	now := requestcontext.Now(ctx)
	if expiresAt != nil && !expiresAt.After(now) {
		return dErrors.New(dErrors.CodeValidation, "expiry must be in the future")
	}

	err := s.store.AssignRole(ctx, models.Assignment{
		PrincipalID: principalID,
		Role:        roleName,
		GrantedBy:   grantedBy,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "unknown role "+roleName)
		}
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to assign role")
	}
	s.logger.InfoContext(ctx, "role assigned",
		"principal_id", principalID,
		"role", roleName,
		"granted_by", grantedBy,
	)
	return nil
}

func (s *Service) observe(names []models.Permission, outcome string) {
	if s.metrics == nil {
		return
	}
	for _, n := range names {
		s.metrics.Decisions.WithLabelValues(string(n), outcome).Inc()
	}
}

// Metrics counts permission decisions.
type Metrics struct {
	Decisions *prometheus.CounterVec
}

// NewMetrics registers rbac metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "onboarding_permission_checks_total",
			Help: "Permission checks by permission and outcome",
		}, []string{"permission", "outcome"}),
	}
}
