package models

import (
	"strings"
	"time"

	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/email"
	pkgstrings "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/strings"
)

const (
	maxNameLength   = 100
	maxReasonLength = 2000
	maxURLLength    = 2048
	dateLayout      = "2006-01-02"
)

// CheckDuplicateRequest asks whether an email or phone is already in use.
type CheckDuplicateRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Validate normalizes the values and requires at least one of them.
func (r *CheckDuplicateRequest) Validate() error {
	r.Email = email.Normalize(r.Email)
	r.Phone = pkgstrings.NormalizePhone(r.Phone)
	if r.Email == "" && r.Phone == "" {
		return dErrors.New(dErrors.CodeValidation, "email or phone is required")
	}
	if r.Email != "" && !email.IsValid(r.Email) {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	return nil
}

// RegisterRequest is the intake payload. When OrgInviteCode is set the
// applicant is activated directly through the invite.
type RegisterRequest struct {
	ExternalSubjectID   string  `json:"external_subject_id"`
	ExternalSubjectType string  `json:"external_subject_type,omitempty"`
	Email               string  `json:"email"`
	Phone               string  `json:"phone,omitempty"`
	FirstName           string  `json:"first_name"`
	LastName            string  `json:"last_name"`
	LicenseNumber       string  `json:"license_number"`
	LicenseState        string  `json:"license_state"`
	OrgInviteCode       string  `json:"org_invite_code,omitempty"`
	Details             Details `json:"details"`
}

// HasInvite reports whether the request takes the invite path.
func (r *RegisterRequest) HasInvite() bool {
	return r.OrgInviteCode != ""
}

// Validate normalizes and checks the payload. Invite redemptions only need the
// subject and an email; staged applications need names and a license.
func (r *RegisterRequest) Validate() error {
	r.ExternalSubjectID = strings.TrimSpace(r.ExternalSubjectID)
	r.ExternalSubjectType = strings.TrimSpace(r.ExternalSubjectType)
	r.Email = email.Normalize(r.Email)
	r.Phone = pkgstrings.NormalizePhone(r.Phone)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.LicenseNumber = strings.ToUpper(strings.TrimSpace(r.LicenseNumber))
	r.LicenseState = strings.ToUpper(strings.TrimSpace(r.LicenseState))
	r.OrgInviteCode = strings.TrimSpace(r.OrgInviteCode)
	r.Details.normalize()

	if r.ExternalSubjectID == "" {
		return dErrors.New(dErrors.CodeValidation, "external_subject_id is required")
	}
	if r.Email == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if !email.IsValid(r.Email) {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	if len(r.FirstName) > maxNameLength || len(r.LastName) > maxNameLength {
		return dErrors.New(dErrors.CodeValidation, "names must be at most 100 characters")
	}
	if r.HasInvite() {
		return nil
	}

	if r.FirstName == "" || r.LastName == "" {
		return dErrors.New(dErrors.CodeValidation, "first_name and last_name are required")
	}
	if r.LicenseNumber == "" {
		return dErrors.New(dErrors.CodeValidation, "license_number is required")
	}
	if len(r.LicenseState) != 2 {
		return dErrors.New(dErrors.CodeValidation, "license_state must be a two-letter code")
	}
	return r.Details.validate()
}

func (d *Details) normalize() {
	d.Personal.Country = strings.ToUpper(strings.TrimSpace(d.Personal.Country))
	d.Personal.Timezone = strings.TrimSpace(d.Personal.Timezone)
	d.Credentials.Certifications = pkgstrings.DedupeAndTrim(d.Credentials.Certifications)
	d.License.AdditionalStates = pkgstrings.DedupeAndTrim(d.License.AdditionalStates)
	d.Insurance.InsurancePanels = pkgstrings.DedupeAndTrim(d.Insurance.InsurancePanels)
	p := &d.Practice
	p.Specializations = pkgstrings.DedupeAndTrim(p.Specializations)
	p.TherapeuticApproaches = pkgstrings.DedupeAndTrim(p.TherapeuticApproaches)
	p.Languages = pkgstrings.DedupeAndTrim(p.Languages)
	p.SessionFormats = pkgstrings.DedupeAndTrimLower(p.SessionFormats)
	p.AgeGroups = pkgstrings.DedupeAndTrimLower(p.AgeGroups)
	p.ClientPopulations = pkgstrings.DedupeAndTrim(p.ClientPopulations)
}

func (d *Details) validate() error {
	for field, value := range map[string]string{
		"date_of_birth":      d.Personal.DateOfBirth,
		"license_expiry":     d.License.LicenseExpiry,
		"malpractice_expiry": d.Insurance.MalpracticeExpiry,
	} {
		if value == "" {
			continue
		}
		if _, err := time.Parse(dateLayout, value); err != nil {
			return dErrors.New(dErrors.CodeValidation, field+" must be YYYY-MM-DD")
		}
	}
	if d.Personal.Timezone != "" {
		if _, err := time.LoadLocation(d.Personal.Timezone); err != nil {
			return dErrors.New(dErrors.CodeValidation, "timezone is not a known IANA zone")
		}
	}
	if d.Credentials.YearsOfExperience < 0 || d.Credentials.GraduationYear < 0 {
		return dErrors.New(dErrors.CodeValidation, "years must not be negative")
	}
	if rate := d.Practice.SessionRateCents; rate != nil && *rate < 0 {
		return dErrors.New(dErrors.CodeValidation, "session_rate_cents must not be negative")
	}
	for _, url := range d.Documents.Map() {
		if len(url) > maxURLLength {
			return dErrors.New(dErrors.CodeValidation, "document url is too long")
		}
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD field, returning nil when empty or malformed.
func ParseDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, value)
	if err != nil {
		return nil
	}
	return &t
}

// TransitionRequest moves an application to TargetState.
type TransitionRequest struct {
	TargetState string `json:"target_state"`
	Reason      string `json:"reason,omitempty"`
}

func (r *TransitionRequest) Validate() error {
	r.TargetState = strings.TrimSpace(r.TargetState)
	r.Reason = strings.TrimSpace(r.Reason)
	if r.TargetState == "" {
		return dErrors.New(dErrors.CodeValidation, "target_state is required")
	}
	if _, err := ParseWorkflowState(r.TargetState); err != nil {
		return err
	}
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 2000 characters")
	}
	return nil
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

func (r *RejectRequest) Validate() error {
	r.Reason = strings.TrimSpace(r.Reason)
	if r.Reason == "" {
		return dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	if len(r.Reason) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "reason must be at most 2000 characters")
	}
	return nil
}

// ApproveRequest carries an optional reviewer note.
type ApproveRequest struct {
	Note string `json:"note,omitempty"`
}

func (r *ApproveRequest) Validate() error {
	r.Note = strings.TrimSpace(r.Note)
	if len(r.Note) > maxReasonLength {
		return dErrors.New(dErrors.CodeValidation, "note must be at most 2000 characters")
	}
	return nil
}

// AddDocumentRequest attaches a document reference to an application.
type AddDocumentRequest struct {
	DocumentType string `json:"document_type"`
	URL          string `json:"url"`
}

func (r *AddDocumentRequest) Validate() error {
	r.DocumentType = strings.ToLower(strings.TrimSpace(r.DocumentType))
	r.URL = strings.TrimSpace(r.URL)
	if !DocumentType(r.DocumentType).IsValid() {
		return dErrors.New(dErrors.CodeValidation, "document_type is invalid")
	}
	if r.URL == "" {
		return dErrors.New(dErrors.CodeValidation, "url is required")
	}
	if len(r.URL) > maxURLLength {
		return dErrors.New(dErrors.CodeValidation, "url is too long")
	}
	return nil
}
