package audit

import (
	"time"

	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
)

// ComplianceLevel classifies how sensitive the audited data is.
// It drives retention and access policies downstream.
type ComplianceLevel string

const (
	LevelStandard ComplianceLevel = "standard"
	LevelPII      ComplianceLevel = "pii"
	LevelPHI      ComplianceLevel = "phi"
)

// Outcome of a workflow step.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeFailed  Outcome = "failed"
)

// WorkflowAction names a coarse step in an application's lifecycle.
type WorkflowAction string

const (
	ActionRegistrationCreated      WorkflowAction = "registration_created"
	ActionRegistrationUpdated      WorkflowAction = "registration_updated"
	ActionStageTransitioned        WorkflowAction = "stage_transitioned"
	ActionBackgroundCheckInitiated WorkflowAction = "background_check_initiated"
	ActionApplicationApproved      WorkflowAction = "application_approved"
	ActionApplicationRejected      WorkflowAction = "application_rejected"
	ActionDocumentAttached         WorkflowAction = "document_attached"
	ActionInviteCreated            WorkflowAction = "invite_created"
	ActionInviteRedeemed           WorkflowAction = "invite_redeemed"
)

// ComplianceAction names a fine-grained change to PII-bearing records.
type ComplianceAction string

const (
	ComplianceApplicationSubmitted ComplianceAction = "application_submitted"
	ComplianceStatusChanged        ComplianceAction = "application_status_changed"
	ComplianceIdentityActivated    ComplianceAction = "identity_activated"
	ComplianceInviteRedeemed       ComplianceAction = "invite_identity_activated"
)

// Resource types referenced by compliance entries.
const (
	ResourceApplication = "provisional_application"
	ResourceIdentity    = "identity"
)

// WorkflowEntry is one row of the coarse workflow log.
type WorkflowEntry struct {
	ID            int64
	ApplicationID id.ApplicationID
	IdentityID    id.IdentityID
	Stage         string
	Action        WorkflowAction
	Outcome       Outcome
	ActorType     id.ActorType
	ActorID       string
	Details       map[string]any
	RequestID     string
	CreatedAt     time.Time
}

// ComplianceEntry is one row of the fine-grained compliance log.
type ComplianceEntry struct {
	ID              int64
	Action          ComplianceAction
	ResourceType    string
	ResourceID      string
	OldValues       map[string]any
	NewValues       map[string]any
	Actor           string
	IP              string
	UserAgent       string
	Device          string
	ComplianceLevel ComplianceLevel
	RequestID       string
	CreatedAt       time.Time
}
