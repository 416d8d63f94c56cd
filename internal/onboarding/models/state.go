package models

import (
	"time"

	rbacmodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
)

// WorkflowState is the single source of truth for where an application is in review.
type WorkflowState string

const (
	StateRegistrationSubmitted WorkflowState = "registration_submitted"
	StateDocumentsReview       WorkflowState = "documents_review"
	StateBackgroundCheck       WorkflowState = "background_check"
	StateFinalReview           WorkflowState = "final_review"
	StateApproved              WorkflowState = "approved"
	StateRejected              WorkflowState = "rejected"
)

// RegistrationStatusPendingReview is the public label of a freshly submitted application.
const RegistrationStatusPendingReview = "pending_review"

var stageOrder = map[WorkflowState]int{
	StateRegistrationSubmitted: 0,
	StateDocumentsReview:       1,
	StateBackgroundCheck:       2,
	StateFinalReview:           3,
}

// OpenStates are the states that block a new submission and appear in the pending queue.
var OpenStates = []WorkflowState{
	StateRegistrationSubmitted,
	StateDocumentsReview,
	StateBackgroundCheck,
	StateFinalReview,
}

// ParseWorkflowState validates s.
func ParseWorkflowState(s string) (WorkflowState, error) {
	st := WorkflowState(s)
	if st.IsValid() {
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "unknown workflow state "+s)
}

func (s WorkflowState) IsValid() bool {
	_, staged := stageOrder[s]
	return staged || s.IsTerminal()
}

func (s WorkflowState) IsTerminal() bool {
	return s == StateApproved || s == StateRejected
}

// RegistrationStatus derives the public status label.
func (s WorkflowState) RegistrationStatus() string {
	if s == StateRegistrationSubmitted {
		return RegistrationStatusPendingReview
	}
	return string(s)
}

// TouchesPII reports whether entering s changes PII-bearing status and therefore
// needs a compliance entry.
func (s WorkflowState) TouchesPII() bool {
	return s == StateBackgroundCheck || s == StateApproved || s == StateRejected
}

// RequiredPermission names the permission needed to move an application into s.
func (s WorkflowState) RequiredPermission() rbacmodels.Permission {
	switch s {
	case StateBackgroundCheck:
		return rbacmodels.PermTherapistsBackgroundCheck
	case StateApproved:
		return rbacmodels.PermTherapistsApprove
	case StateRejected:
		return rbacmodels.PermTherapistsReject
	default:
		return rbacmodels.PermTherapistsReview
	}
}

// CheckTransition enforces the legal moves: forward to a strictly later stage, or
// to a terminal state from any non-terminal one.
func (s WorkflowState) CheckTransition(target WorkflowState) error {
	if !target.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown workflow state "+string(target))
	}
	if s.IsTerminal() {
		return dErrors.New(dErrors.CodeInvariantViolation, "application is "+string(s)+" and can no longer change")
	}
	if target == StateRegistrationSubmitted {
		return dErrors.New(dErrors.CodeInvariantViolation, "applications cannot return to registration_submitted")
	}
	if target.IsTerminal() {
		return nil
	}
	if stageOrder[target] <= stageOrder[s] {
		return dErrors.New(dErrors.CodeInvariantViolation,
			"cannot move from "+string(s)+" to "+string(target))
	}
	return nil
}

// BackgroundCheckStatus tracks the external vendor check.
type BackgroundCheckStatus string

const (
	BackgroundCheckNotStarted BackgroundCheckStatus = "not_started"
	BackgroundCheckPending    BackgroundCheckStatus = "pending"
	BackgroundCheckClear      BackgroundCheckStatus = "clear"
	BackgroundCheckConsider   BackgroundCheckStatus = "consider"
)

// TransitionClaim is the conditional state change applied to an application.
// It only succeeds while the application is still in From.
type TransitionClaim struct {
	ApplicationID         id.ApplicationID
	From                  WorkflowState
	To                    WorkflowState
	ReviewedBy            string
	ReviewedAt            time.Time
	RejectionReason       string
	BackgroundCheckStatus BackgroundCheckStatus
}
