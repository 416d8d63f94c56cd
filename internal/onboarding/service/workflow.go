package service

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/models"
	rbacmodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

const defaultPendingLimit = 100

// TransitionOptions carries the optional inputs of a transition. Reason is
// required when rejecting.
type TransitionOptions struct {
	Reason string
	Note   string
}

// TransitionResult describes the outcome of a transition. AlreadyApplied is set
// when the application was already in the requested terminal state; nothing was
// written in that case.
type TransitionResult struct {
	Application    *models.Application  `json:"application"`
	From           models.WorkflowState `json:"from"`
	To             models.WorkflowState `json:"to"`
	AlreadyApplied bool                 `json:"already_applied"`
}

// Transition moves an application to target. The stage permission is checked
// before anything is read. The state change is a conditional claim on the
// observed state, and approval runs the activation in the same transaction.
func (s *Service) Transition(ctx context.Context, appID id.ApplicationID, target models.WorkflowState, principal id.Principal, opts TransitionOptions) (result *TransitionResult, err error) {
	ctx, span := s.startSpan(ctx, "onboarding.Transition",
		attribute.String("application_id", appID.String()),
		attribute.String("target", string(target)),
	)
	defer func() { endSpan(span, err) }()

	if !target.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown workflow state")
	}
	if err := s.authz.Require(ctx, principal, target.RequiredPermission()); err != nil {
		s.countTransition(target, "denied")
		if s.logger != nil {
			s.logger.WarnContext(ctx, "transition denied",
				"request_id", requestcontext.RequestID(ctx),
				"application_id", appID.String(),
				"target", string(target),
				"principal_id", principal.SubjectID,
			)
		}
		return nil, err
	}
	if target == models.StateRejected && opts.Reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		result = nil
		app, err := s.loadApplication(ctx, appID)
		if err != nil {
			return err
		}
		if app.State == target && target.IsTerminal() {
			result = &TransitionResult{Application: app, From: app.State, To: target, AlreadyApplied: true}
			return nil
		}
		if err := app.State.CheckTransition(target); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		claim := models.TransitionClaim{
			ApplicationID: appID,
			From:          app.State,
			To:            target,
			ReviewedBy:    principal.SubjectID,
			ReviewedAt:    now,
		}
		switch target {
		case models.StateRejected:
			claim.RejectionReason = opts.Reason
		case models.StateBackgroundCheck:
			claim.BackgroundCheckStatus = models.BackgroundCheckPending
		}
		if err := s.apps.ClaimTransition(ctx, claim); err != nil {
			if !errors.Is(err, sentinel.ErrInvalidState) {
				return storageError(err, "failed to update application")
			}
			current, lerr := s.loadApplication(ctx, appID)
			if lerr != nil {
				return lerr
			}
			if current.State == target && target.IsTerminal() {
				result = &TransitionResult{Application: current, From: current.State, To: target, AlreadyApplied: true}
				return nil
			}
			return dErrors.New(dErrors.CodeConflict, "application was modified concurrently")
		}

		details := map[string]any{"from": string(app.State), "to": string(target)}
		if opts.Reason != "" {
			details["reason"] = opts.Reason
		}
		if opts.Note != "" {
			details["note"] = opts.Note
		}
		var identityID id.IdentityID
		if target == models.StateApproved {
			activation, err := s.activate(ctx, app, principal.SubjectID, now)
			if err != nil {
				return err
			}
			identityID = activation.Identity.ID
			details["identity_id"] = identityID.String()
			details["migrated_groups"] = activation.MigratedGroups
		}
		if err := s.recordTransition(ctx, app, target, principal, identityID, details); err != nil {
			return err
		}

		updated, err := s.loadApplication(ctx, appID)
		if err != nil {
			return err
		}
		result = &TransitionResult{Application: updated, From: app.State, To: target}
		return nil
	})
	if err != nil {
		s.countTransition(target, outcomeLabel(err))
		if target == models.StateApproved {
			s.countActivation(err)
		}
		if dErrors.Retryable(err) || !isDomainError(err) {
			s.logFailure(ctx, "transition failed", err,
				"application_id", appID.String(), "target", string(target))
		}
		return nil, storageError(err, "transition failed")
	}

	if result.AlreadyApplied {
		s.countTransition(target, "already_applied")
		return result, nil
	}
	s.countTransition(target, "success")
	if target == models.StateApproved {
		s.countActivation(nil)
	}
	if target == models.StateBackgroundCheck {
		s.initiateBackgroundCheck(ctx, result.Application)
	}
	return result, nil
}

// Approve transitions the application to approved and activates the applicant.
func (s *Service) Approve(ctx context.Context, appID id.ApplicationID, principal id.Principal, req *models.ApproveRequest) (*TransitionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.Transition(ctx, appID, models.StateApproved, principal, TransitionOptions{Note: req.Note})
}

// Reject closes the application. The row is kept so the applicant may resubmit.
func (s *Service) Reject(ctx context.Context, appID id.ApplicationID, principal id.Principal, req *models.RejectRequest) (*TransitionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.Transition(ctx, appID, models.StateRejected, principal, TransitionOptions{Reason: req.Reason})
}

// InitiateBackgroundCheck moves the application to background_check with a
// pending status and notifies the vendor after commit.
func (s *Service) InitiateBackgroundCheck(ctx context.Context, appID id.ApplicationID, principal id.Principal) (*TransitionResult, error) {
	return s.Transition(ctx, appID, models.StateBackgroundCheck, principal, TransitionOptions{})
}

// initiateBackgroundCheck never fails the request: the pending marker is already
// committed and a later callback owns the result.
func (s *Service) initiateBackgroundCheck(ctx context.Context, app *models.Application) {
	if s.bgCheck == nil {
		return
	}
	if err := s.bgCheck.Initiate(ctx, app); err != nil {
		s.logFailure(ctx, "background check initiation failed", err, "application_id", app.ID.String())
	}
}

func (s *Service) recordTransition(ctx context.Context, app *models.Application, target models.WorkflowState, principal id.Principal, identityID id.IdentityID, details map[string]any) error {
	action := audit.ActionStageTransitioned
	switch target {
	case models.StateApproved:
		action = audit.ActionApplicationApproved
	case models.StateRejected:
		action = audit.ActionApplicationRejected
	case models.StateBackgroundCheck:
		action = audit.ActionBackgroundCheckInitiated
	}
	entry := audit.WorkflowEntry{
		ApplicationID: app.ID,
		IdentityID:    identityID,
		Stage:         string(target),
		Action:        action,
		ActorType:     id.ActorAdmin,
		ActorID:       principal.SubjectID,
		Details:       details,
	}
	if err := s.recorder.RecordWorkflow(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record workflow entry")
	}

	if !target.TouchesPII() {
		return nil
	}
	err := s.recorder.RecordCompliance(ctx, audit.ComplianceEntry{
		Action:       audit.ComplianceStatusChanged,
		ResourceType: audit.ResourceApplication,
		ResourceID:   app.ID.String(),
		OldValues: map[string]any{
			"workflow_state":      string(app.State),
			"registration_status": app.RegistrationStatus(),
		},
		NewValues: map[string]any{
			"workflow_state":      string(target),
			"registration_status": target.RegistrationStatus(),
		},
		Actor: principal.SubjectID,
	})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record compliance entry")
	}
	return nil
}

func (s *Service) loadApplication(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	app, err := s.apps.FindByID(ctx, appID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "application not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load application")
	}
	return app, nil
}

// ListPending returns open applications, oldest first.
func (s *Service) ListPending(ctx context.Context, principal id.Principal, limit int) ([]*models.Application, error) {
	if err := s.authz.Require(ctx, principal, rbacmodels.PermTherapistsRead); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultPendingLimit {
		limit = defaultPendingLimit
	}
	apps, err := s.apps.ListByStates(ctx, models.OpenStates, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list applications")
	}
	if apps == nil {
		apps = []*models.Application{}
	}
	return apps, nil
}

// WorkflowLog returns the workflow entries of an application in creation order.
func (s *Service) WorkflowLog(ctx context.Context, principal id.Principal, appID id.ApplicationID) ([]audit.WorkflowEntry, error) {
	if err := s.authz.Require(ctx, principal, rbacmodels.PermAuditRead); err != nil {
		return nil, err
	}
	if _, err := s.loadApplication(ctx, appID); err != nil {
		return nil, err
	}
	entries, err := s.auditLog.ListWorkflowByApplication(ctx, appID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to load workflow log")
	}
	if entries == nil {
		entries = []audit.WorkflowEntry{}
	}
	return entries, nil
}

func isDomainError(err error) bool {
	_, ok := dErrors.As(err)
	return ok
}
