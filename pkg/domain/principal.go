package domain

import "strings"

// Principal is the authenticated caller as asserted by the external identity provider.
// SubjectID is trusted as the external_subject_id of the caller.
type Principal struct {
	SubjectID   string
	SubjectType string
	Email       string
	Roles       []string
}

// IsZero reports whether no principal was authenticated.
func (p Principal) IsZero() bool {
	return strings.TrimSpace(p.SubjectID) == ""
}

// ActorType classifies who performed an audited action.
type ActorType string

const (
	ActorApplicant ActorType = "applicant"
	ActorAdmin     ActorType = "admin"
	ActorSystem    ActorType = "system"
)
