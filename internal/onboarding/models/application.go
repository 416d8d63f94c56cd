// Package models defines the provisional application staged for review, its
// workflow states and the request schemas of the onboarding endpoints.
package models

import (
	"slices"
	"time"

	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
)

// Application is a ProvisionalApplication: the staging record of an unverified applicant.
// At most one non-rejected application exists per external subject.
type Application struct {
	ID                    id.ApplicationID      `json:"id"`
	ExternalSubjectID     string                `json:"external_subject_id"`
	ExternalSubjectType   string                `json:"external_subject_type"`
	Email                 string                `json:"email"`
	Phone                 string                `json:"phone,omitempty"`
	FirstName             string                `json:"first_name"`
	LastName              string                `json:"last_name"`
	LicenseNumber         string                `json:"license_number"`
	LicenseState          string                `json:"license_state"`
	State                 WorkflowState         `json:"workflow_state"`
	BackgroundCheckStatus BackgroundCheckStatus `json:"background_check_status"`
	RejectionReason       string                `json:"rejection_reason,omitempty"`
	ReviewedBy            string                `json:"reviewed_by,omitempty"`
	ReviewedAt            *time.Time            `json:"reviewed_at,omitempty"`
	ApprovedBy            string                `json:"approved_by,omitempty"`
	ApprovedAt            *time.Time            `json:"approved_at,omitempty"`
	IdentityID            *id.IdentityID        `json:"identity_id,omitempty"`
	Details               Details               `json:"details"`
	CreatedAt             time.Time             `json:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at"`
}

// RegistrationStatus is the public label derived from State.
func (a *Application) RegistrationStatus() string {
	return a.State.RegistrationStatus()
}

// Clone returns a deep copy.
func (a *Application) Clone() *Application {
	out := *a
	if a.ReviewedAt != nil {
		t := *a.ReviewedAt
		out.ReviewedAt = &t
	}
	if a.ApprovedAt != nil {
		t := *a.ApprovedAt
		out.ApprovedAt = &t
	}
	if a.IdentityID != nil {
		i := *a.IdentityID
		out.IdentityID = &i
	}
	out.Details = a.Details.Clone()
	return &out
}

// Details carries the semantic fields of an application grouped the way they are
// migrated on approval.
type Details struct {
	Personal    PersonalInfo   `json:"personal"`
	Credentials CredentialInfo `json:"credentials"`
	License     LicenseInfo    `json:"license"`
	Insurance   InsuranceInfo  `json:"insurance"`
	Practice    PracticeInfo   `json:"practice"`
	Compliance  ComplianceInfo `json:"compliance"`
	Documents   DocumentRefs   `json:"documents"`
}

// Field group names recorded when an approval migrates them.
const (
	GroupPersonal    = "personal"
	GroupCredentials = "credentials"
	GroupLicense     = "license"
	GroupInsurance   = "insurance"
	GroupPractice    = "practice"
	GroupCompliance  = "compliance"
	GroupDocuments   = "documents"
)

type PersonalInfo struct {
	DateOfBirth       string `json:"date_of_birth,omitempty"`
	Gender            string `json:"gender,omitempty"`
	Pronouns          string `json:"pronouns,omitempty"`
	AddressLine1      string `json:"address_line1,omitempty"`
	AddressLine2      string `json:"address_line2,omitempty"`
	City              string `json:"city,omitempty"`
	State             string `json:"state,omitempty"`
	PostalCode        string `json:"postal_code,omitempty"`
	Country           string `json:"country,omitempty"`
	Timezone          string `json:"timezone,omitempty"`
	PreferredLanguage string `json:"preferred_language,omitempty"`
	ProfilePhotoURL   string `json:"profile_photo_url,omitempty"`
}

type CredentialInfo struct {
	ProfessionalTitle string   `json:"professional_title,omitempty"`
	Degree            string   `json:"degree,omitempty"`
	Institution       string   `json:"institution,omitempty"`
	GraduationYear    int      `json:"graduation_year,omitempty"`
	YearsOfExperience int      `json:"years_of_experience,omitempty"`
	Certifications    []string `json:"certifications,omitempty"`
	Bio               string   `json:"bio,omitempty"`
}

// LicenseInfo holds license fields beyond the number and state columns.
// Dates are YYYY-MM-DD.
type LicenseInfo struct {
	LicenseType      string   `json:"license_type,omitempty"`
	LicenseExpiry    string   `json:"license_expiry,omitempty"`
	NPINumber        string   `json:"npi_number,omitempty"`
	AdditionalStates []string `json:"additional_states,omitempty"`
}

type InsuranceInfo struct {
	MalpracticeCarrier      string   `json:"malpractice_carrier,omitempty"`
	MalpracticePolicyNumber string   `json:"malpractice_policy_number,omitempty"`
	MalpracticeExpiry       string   `json:"malpractice_expiry,omitempty"`
	InsurancePanels         []string `json:"insurance_panels,omitempty"`
}

type PracticeInfo struct {
	PracticeName          string   `json:"practice_name,omitempty"`
	WebsiteURL            string   `json:"website_url,omitempty"`
	Specializations       []string `json:"specializations,omitempty"`
	TherapeuticApproaches []string `json:"therapeutic_approaches,omitempty"`
	Languages             []string `json:"languages,omitempty"`
	SessionFormats        []string `json:"session_formats,omitempty"`
	AgeGroups             []string `json:"age_groups,omitempty"`
	ClientPopulations     []string `json:"client_populations,omitempty"`
	AcceptingNewClients   *bool    `json:"accepting_new_clients,omitempty"`
	SessionRateCents      *int     `json:"session_rate_cents,omitempty"`
}

type ComplianceInfo struct {
	HIPAAAttested          bool   `json:"hipaa_attested"`
	BackgroundCheckConsent bool   `json:"background_check_consent"`
	TermsVersion           string `json:"terms_version,omitempty"`
	TelehealthTrained      bool   `json:"telehealth_trained"`
}

// DocumentRefs are opaque URLs supplied at registration.
type DocumentRefs struct {
	LicenseDocumentURL     string `json:"license_document_url,omitempty"`
	DiplomaURL             string `json:"diploma_url,omitempty"`
	ResumeURL              string `json:"resume_url,omitempty"`
	MalpracticeDocumentURL string `json:"malpractice_document_url,omitempty"`
	GovernmentIDURL        string `json:"government_id_url,omitempty"`
}

// Map returns the non-empty references keyed by field name.
func (d DocumentRefs) Map() map[string]string {
	out := map[string]string{}
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("license_document_url", d.LicenseDocumentURL)
	set("diploma_url", d.DiplomaURL)
	set("resume_url", d.ResumeURL)
	set("malpractice_document_url", d.MalpracticeDocumentURL)
	set("government_id_url", d.GovernmentIDURL)
	return out
}

// Clone returns a deep copy of the details.
func (d Details) Clone() Details {
	d.Credentials.Certifications = slices.Clone(d.Credentials.Certifications)
	d.License.AdditionalStates = slices.Clone(d.License.AdditionalStates)
	d.Insurance.InsurancePanels = slices.Clone(d.Insurance.InsurancePanels)
	p := &d.Practice
	p.Specializations = slices.Clone(p.Specializations)
	p.TherapeuticApproaches = slices.Clone(p.TherapeuticApproaches)
	p.Languages = slices.Clone(p.Languages)
	p.SessionFormats = slices.Clone(p.SessionFormats)
	p.AgeGroups = slices.Clone(p.AgeGroups)
	p.ClientPopulations = slices.Clone(p.ClientPopulations)
	if p.AcceptingNewClients != nil {
		v := *p.AcceptingNewClients
		p.AcceptingNewClients = &v
	}
	if p.SessionRateCents != nil {
		v := *p.SessionRateCents
		p.SessionRateCents = &v
	}
	return d
}

// AuditView lists the PII captured in compliance entries for an application.
func (a *Application) AuditView() map[string]any {
	view := map[string]any{
		"email":          a.Email,
		"first_name":     a.FirstName,
		"last_name":      a.LastName,
		"license_number": a.LicenseNumber,
		"license_state":  a.LicenseState,
		"workflow_state": string(a.State),
	}
	if a.Phone != "" {
		view["phone"] = a.Phone
	}
	if docs := a.Details.Documents.Map(); len(docs) > 0 {
		refs := make(map[string]any, len(docs))
		for k, v := range docs {
			refs[k] = v
		}
		view["documents"] = refs
	}
	return view
}
