package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	identitymodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/identity/models"
	invitemodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/models"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

// Registration paths.
const (
	PathApplication = "application"
	PathInvite      = "invite"
)

// DuplicateResult reports whether contact details are already in use.
type DuplicateResult struct {
	Exists      bool `json:"exists"`
	EmailExists bool `json:"emailExists"`
	PhoneExists bool `json:"phoneExists"`
}

// RegisterResult describes what a registration produced. Application is set on
// the staged path, Identity on the invite path.
type RegisterResult struct {
	Path               string                   `json:"path"`
	Created            bool                     `json:"created"`
	RegistrationStatus string                   `json:"registration_status"`
	Application        *models.Application      `json:"application,omitempty"`
	Identity           *identitymodels.Identity `json:"identity,omitempty"`
}

// StatusResult is the public view of a subject's onboarding progress.
type StatusResult struct {
	ExternalSubjectID     string                       `json:"external_subject_id"`
	RegistrationStatus    string                       `json:"registration_status"`
	WorkflowState         models.WorkflowState         `json:"workflow_state,omitempty"`
	BackgroundCheckStatus models.BackgroundCheckStatus `json:"background_check_status,omitempty"`
	RejectionReason       string                       `json:"rejection_reason,omitempty"`
	ApplicationID         *id.ApplicationID            `json:"application_id,omitempty"`
	IdentityID            *id.IdentityID               `json:"identity_id,omitempty"`
	SubmittedAt           *time.Time                   `json:"submitted_at,omitempty"`
	UpdatedAt             *time.Time                   `json:"updated_at,omitempty"`
}

// CheckDuplicate reports whether the email or phone belongs to an identity or to a
// non-rejected application.
func (s *Service) CheckDuplicate(ctx context.Context, req *models.CheckDuplicateRequest) (*DuplicateResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	match, err := s.contactMatches(ctx, req.Email, req.Phone, "")
	if err != nil {
		return nil, err
	}
	result := &DuplicateResult{Exists: match.Any(), EmailExists: match.Email, PhoneExists: match.Phone}
	if s.metrics != nil {
		label := "available"
		if result.Exists {
			label = "taken"
		}
		s.metrics.DuplicateChecks.WithLabelValues(label).Inc()
	}
	return result, nil
}

func (s *Service) contactMatches(ctx context.Context, email, phone, excludeSubjectID string) (identitymodels.ContactMatch, error) {
	owned, err := s.identities.ContactMatches(ctx, email, phone)
	if err != nil {
		return identitymodels.ContactMatch{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "duplicate lookup unavailable")
	}
	open, err := s.apps.OpenContactMatches(ctx, email, phone, excludeSubjectID)
	if err != nil {
		return identitymodels.ContactMatch{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "duplicate lookup unavailable")
	}
	return owned.Or(open), nil
}

// Register stages an application, or redeems an organization invite when the
// request carries one.
func (s *Service) Register(ctx context.Context, req *models.RegisterRequest) (result *RegisterResult, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.ExternalSubjectType == "" {
		req.ExternalSubjectType = s.workflowCfg.ExternalSubjectType
	}

	ctx, span := s.startSpan(ctx, "onboarding.Register",
		attribute.String("external_subject_id", req.ExternalSubjectID),
		attribute.Bool("invite", req.HasInvite()),
	)
	defer func() { endSpan(span, err) }()

	if req.HasInvite() {
		result, err = s.registerWithInvite(ctx, req)
		s.countRegistration(PathInvite, err)
		return result, err
	}
	result, err = s.registerApplication(ctx, req)
	s.countRegistration(PathApplication, err)
	return result, err
}

func (s *Service) registerWithInvite(ctx context.Context, req *models.RegisterRequest) (*RegisterResult, error) {
	if s.invites == nil {
		return nil, dErrors.New(dErrors.CodeUnavailable, "invite redemption is not available")
	}
	if err := s.checkInviteApplicant(ctx, req); err != nil {
		return nil, err
	}
	var principal *id.Principal
	if p := requestcontext.Principal(ctx); !p.IsZero() {
		principal = &p
	}
	ident, err := s.invites.Redeem(ctx, req.OrgInviteCode, invitemodels.ApplicantData{
		ExternalSubjectID:   req.ExternalSubjectID,
		ExternalSubjectType: req.ExternalSubjectType,
		Email:               req.Email,
		Phone:               req.Phone,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
	}, principal)
	if err != nil {
		return nil, err
	}
	return &RegisterResult{
		Path:               PathInvite,
		Created:            true,
		RegistrationStatus: string(ident.Status),
		Identity:           ident,
	}, nil
}

// checkInviteApplicant refuses a redemption while the subject has an application
// in review, or when the email or phone belongs to another subject's identity or
// open application. The subject's own identity does not count as a match.
func (s *Service) checkInviteApplicant(ctx context.Context, req *models.RegisterRequest) error {
	open, err := s.apps.FindOpenBySubject(ctx, req.ExternalSubjectID)
	switch {
	case err == nil && !open.State.IsTerminal():
		return dErrors.New(dErrors.CodeConflict, "application is already under review")
	case err != nil && !errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load application")
	}

	match, err := s.apps.OpenContactMatches(ctx, req.Email, req.Phone, req.ExternalSubjectID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "duplicate lookup unavailable")
	}
	owned, err := s.identities.ContactMatches(ctx, req.Email, req.Phone)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "duplicate lookup unavailable")
	}
	if owned.Any() {
		self, err := s.identities.FindByExternalSubject(ctx, req.ExternalSubjectID, req.ExternalSubjectType)
		switch {
		case err == nil:
			owned.Email = owned.Email && !strings.EqualFold(self.Email, req.Email)
			owned.Phone = owned.Phone && self.Phone != req.Phone
		case !errors.Is(err, sentinel.ErrNotFound):
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load identity")
		}
	}
	match = match.Or(owned)
	if match.Email {
		return dErrors.New(dErrors.CodeConflict, "email is already registered")
	}
	if match.Phone {
		return dErrors.New(dErrors.CodeConflict, "phone is already registered")
	}
	return nil
}

func (s *Service) registerApplication(ctx context.Context, req *models.RegisterRequest) (*RegisterResult, error) {
	var result *RegisterResult
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.apps.FindOpenBySubject(ctx, req.ExternalSubjectID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load application")
		}
		if existing != nil && existing.State != models.StateRegistrationSubmitted {
			if existing.State == models.StateApproved {
				return dErrors.New(dErrors.CodeConflict, "application is already approved")
			}
			return dErrors.New(dErrors.CodeConflict, "application is already under review")
		}

		match, err := s.contactMatches(ctx, req.Email, req.Phone, req.ExternalSubjectID)
		if err != nil {
			return err
		}
		if match.Email {
			return dErrors.New(dErrors.CodeConflict, "email is already registered")
		}
		if match.Phone {
			return dErrors.New(dErrors.CodeConflict, "phone is already registered")
		}

		now := requestcontext.Now(ctx)
		if existing == nil {
			app := newApplication(req, now)
			if err := s.apps.Create(ctx, app); err != nil {
				return storageError(err, "failed to create application")
			}
			if err := s.recordIntake(ctx, app, nil, audit.ActionRegistrationCreated); err != nil {
				return err
			}
			result = &RegisterResult{Path: PathApplication, Created: true, Application: app}
			return nil
		}

		updated := existing.Clone()
		applyRequest(updated, req)
		updated.UpdatedAt = now
		if err := s.apps.UpdatePending(ctx, updated); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.New(dErrors.CodeConflict, "application is already under review")
			}
			return storageError(err, "failed to update application")
		}
		if err := s.recordIntake(ctx, updated, existing, audit.ActionRegistrationUpdated); err != nil {
			return err
		}
		result = &RegisterResult{Path: PathApplication, Application: updated}
		return nil
	})
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeConflict) {
			s.logFailure(ctx, "registration failed", err, "external_subject_id", req.ExternalSubjectID)
		}
		return nil, storageError(err, "registration failed")
	}
	result.RegistrationStatus = result.Application.RegistrationStatus()
	return result, nil
}

func (s *Service) recordIntake(ctx context.Context, app, previous *models.Application, action audit.WorkflowAction) error {
	err := s.recorder.RecordWorkflow(ctx, audit.WorkflowEntry{
		ApplicationID: app.ID,
		Stage:         string(app.State),
		Action:        action,
		ActorType:     id.ActorApplicant,
		ActorID:       app.ExternalSubjectID,
		Details: map[string]any{
			"license_state": app.LicenseState,
		},
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record workflow entry")
	}
	entry := audit.ComplianceEntry{
		Action:       audit.ComplianceApplicationSubmitted,
		ResourceType: audit.ResourceApplication,
		ResourceID:   app.ID.String(),
		NewValues:    app.AuditView(),
		Actor:        app.ExternalSubjectID,
	}
	if previous != nil {
		entry.OldValues = previous.AuditView()
	}
	if err := s.recorder.RecordCompliance(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record compliance entry")
	}
	return nil
}

func newApplication(req *models.RegisterRequest, now time.Time) *models.Application {
	app := &models.Application{
		ID:                    id.NewApplicationID(),
		ExternalSubjectID:     req.ExternalSubjectID,
		ExternalSubjectType:   req.ExternalSubjectType,
		State:                 models.StateRegistrationSubmitted,
		BackgroundCheckStatus: models.BackgroundCheckNotStarted,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	applyRequest(app, req)
	return app
}

func applyRequest(app *models.Application, req *models.RegisterRequest) {
	app.Email = req.Email
	app.Phone = req.Phone
	app.FirstName = req.FirstName
	app.LastName = req.LastName
	app.LicenseNumber = req.LicenseNumber
	app.LicenseState = req.LicenseState
	app.Details = req.Details.Clone()
}

// Status returns the subject's open application, or else its latest one. A
// subject activated through an invite has no application and reports its
// identity status.
func (s *Service) Status(ctx context.Context, subjectID string) (*StatusResult, error) {
	if subjectID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "external subject id is required")
	}
	app, err := s.apps.FindOpenBySubject(ctx, subjectID)
	if errors.Is(err, sentinel.ErrNotFound) {
		app, err = s.apps.FindLatestBySubject(ctx, subjectID)
	}
	switch {
	case err == nil:
		submitted, updated := app.CreatedAt, app.UpdatedAt
		appID := app.ID
		return &StatusResult{
			ExternalSubjectID:     app.ExternalSubjectID,
			RegistrationStatus:    app.RegistrationStatus(),
			WorkflowState:         app.State,
			BackgroundCheckStatus: app.BackgroundCheckStatus,
			RejectionReason:       app.RejectionReason,
			ApplicationID:         &appID,
			IdentityID:            app.IdentityID,
			SubmittedAt:           &submitted,
			UpdatedAt:             &updated,
		}, nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load application")
	}

	ident, err := s.identities.FindByExternalSubject(ctx, subjectID, s.workflowCfg.ExternalSubjectType)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "no registration found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load identity")
	}
	identID, updated := ident.ID, ident.UpdatedAt
	return &StatusResult{
		ExternalSubjectID:  ident.ExternalSubjectID,
		RegistrationStatus: string(ident.Status),
		IdentityID:         &identID,
		UpdatedAt:          &updated,
	}, nil
}
