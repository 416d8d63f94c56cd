// Package models defines the production records an approved professional owns:
// the Identity, its ProfessionalProfile and its VerificationRecord.
package models

import (
	"time"

	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
)

// IdentityStatus is the lifecycle state of an account.
type IdentityStatus string

const (
	StatusPendingVerification IdentityStatus = "pending_verification"
	StatusActive              IdentityStatus = "active"
	StatusSuspended           IdentityStatus = "suspended"
	StatusDeleted             IdentityStatus = "deleted"
)

// Identity is an authenticated account. It is unique per
// (ExternalSubjectID, ExternalSubjectType) and per case-insensitive email.
type Identity struct {
	ID                  id.IdentityID      `json:"id"`
	ExternalSubjectID   string             `json:"external_subject_id"`
	ExternalSubjectType string             `json:"external_subject_type"`
	Email               string             `json:"email"`
	Phone               string             `json:"phone,omitempty"`
	FirstName           string             `json:"first_name"`
	LastName            string             `json:"last_name"`
	Status              IdentityStatus     `json:"status"`
	Verified            bool               `json:"verified"`
	OrganizationID      *id.OrganizationID `json:"organization_id,omitempty"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// ProfessionalProfile holds the practice and clinical fields copied from an
// approved application. Multi-valued fields are never nil.
type ProfessionalProfile struct {
	IdentityID            id.IdentityID  `json:"identity_id"`
	DisplayName           string         `json:"display_name"`
	ProfessionalTitle     string         `json:"professional_title"`
	Bio                   string         `json:"bio"`
	YearsOfExperience     int            `json:"years_of_experience"`
	Timezone              string         `json:"timezone"`
	Country               string         `json:"country"`
	AcceptingNewClients   bool           `json:"accepting_new_clients"`
	SessionRateCents      *int           `json:"session_rate_cents,omitempty"`
	Specializations       []string       `json:"specializations"`
	TherapeuticApproaches []string       `json:"therapeutic_approaches"`
	Languages             []string       `json:"languages"`
	SessionFormats        []string       `json:"session_formats"`
	AgeGroups             []string       `json:"age_groups"`
	ClientPopulations     []string       `json:"client_populations"`
	InsurancePanels       []string       `json:"insurance_panels"`
	Certifications        []string       `json:"certifications"`
	Details               map[string]any `json:"details,omitempty"`
	CreatedAt             time.Time      `json:"created_at"`
	UpdatedAt             time.Time      `json:"updated_at"`
}

// Sub-status values inside a VerificationResult.
const (
	CheckVerified = "verified"
	CheckPending  = "pending"
)

// VerificationApproved is the verification_status written on activation.
const VerificationApproved = "approved"

// VerificationResult is the structured outcome embedded in a VerificationRecord.
type VerificationResult struct {
	Criminal   string    `json:"criminal"`
	Reference  string    `json:"reference"`
	Education  string    `json:"education"`
	License    string    `json:"license"`
	ApprovedBy string    `json:"approved_by"`
	ApprovedAt time.Time `json:"approved_at"`
}

// VerificationRecord holds license and insurance facts for an Identity.
type VerificationRecord struct {
	IdentityID              id.IdentityID      `json:"identity_id"`
	LicenseNumber           string             `json:"license_number"`
	LicenseState            string             `json:"license_state"`
	LicenseType             string             `json:"license_type"`
	LicenseExpiry           *time.Time         `json:"license_expiry,omitempty"`
	NPINumber               string             `json:"npi_number"`
	MalpracticeCarrier      string             `json:"malpractice_carrier"`
	MalpracticePolicyNumber string             `json:"malpractice_policy_number"`
	MalpracticeExpiry       *time.Time         `json:"malpractice_expiry,omitempty"`
	VerificationStatus      string             `json:"verification_status"`
	Result                  VerificationResult `json:"verification_result"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// ContactMatch reports which contact values are already taken.
type ContactMatch struct {
	Email bool `json:"emailExists"`
	Phone bool `json:"phoneExists"`
}

// Any reports whether either value matched.
func (m ContactMatch) Any() bool {
	return m.Email || m.Phone
}

// Or merges two matches.
func (m ContactMatch) Or(other ContactMatch) ContactMatch {
	return ContactMatch{Email: m.Email || other.Email, Phone: m.Phone || other.Phone}
}
