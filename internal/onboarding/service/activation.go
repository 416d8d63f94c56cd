package service

import (
	"context"
	"errors"
	"strings"
	"time"

	identitymodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/identity/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/models"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
)

// migratedGroups lists the detail groups copied into production records on approval.
var migratedGroups = []string{
	models.GroupPersonal,
	models.GroupCredentials,
	models.GroupLicense,
	models.GroupInsurance,
	models.GroupPractice,
	models.GroupCompliance,
	models.GroupDocuments,
}

type activationResult struct {
	Identity       *identitymodels.Identity
	MigratedGroups []string
}

// activate migrates an approved application into an Identity, its
// ProfessionalProfile and its VerificationRecord. It must run inside the
// transaction that claimed the approval; every step is an upsert.
func (s *Service) activate(ctx context.Context, app *models.Application, approvedBy string, now time.Time) (*activationResult, error) {
	ctx, span := s.startSpan(ctx, "onboarding.Activate")
	var err error
	defer func() { endSpan(span, err) }()

	ident, err := s.identities.UpsertIdentity(ctx, &identitymodels.Identity{
		ID:                  id.NewIdentityID(),
		ExternalSubjectID:   app.ExternalSubjectID,
		ExternalSubjectType: app.ExternalSubjectType,
		Email:               app.Email,
		Phone:               app.Phone,
		FirstName:           app.FirstName,
		LastName:            app.LastName,
		Status:              identitymodels.StatusActive,
		Verified:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	})
	if err != nil {
		err = activationError(err, "failed to activate identity")
		return nil, err
	}

	if err = s.identities.UpsertProfile(ctx, s.buildProfile(app, ident.ID, now)); err != nil {
		err = activationError(err, "failed to write professional profile")
		return nil, err
	}
	if err = s.identities.UpsertVerification(ctx, buildVerification(app, ident.ID, approvedBy, now)); err != nil {
		err = activationError(err, "failed to write verification record")
		return nil, err
	}
	if err = s.apps.FinalizeApproval(ctx, app.ID, approvedBy, now, ident.ID); err != nil {
		err = activationError(err, "failed to finalize application")
		return nil, err
	}

	err = s.recorder.RecordCompliance(ctx, audit.ComplianceEntry{
		Action:       audit.ComplianceIdentityActivated,
		ResourceType: audit.ResourceIdentity,
		ResourceID:   ident.ID.String(),
		NewValues: map[string]any{
			"application_id": app.ID.String(),
			"email":          ident.Email,
			"status":         string(ident.Status),
			"verified":       ident.Verified,
			"license_number": app.LicenseNumber,
			"license_state":  app.LicenseState,
		},
		Actor: approvedBy,
	})
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record compliance entry")
		return nil, err
	}
	return &activationResult{Identity: ident, MigratedGroups: migratedGroups}, nil
}

func activationError(err error, msg string) error {
	if errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	}
	if errors.Is(err, sentinel.ErrInvalidState) {
		return dErrors.Wrap(err, dErrors.CodeConflict, "application was modified concurrently")
	}
	return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
}

func (s *Service) buildProfile(app *models.Application, identityID id.IdentityID, now time.Time) *identitymodels.ProfessionalProfile {
	d := app.Details
	timezone := d.Personal.Timezone
	if timezone == "" {
		timezone = s.workflowCfg.DefaultTimezone
	}
	country := d.Personal.Country
	if country == "" {
		country = s.workflowCfg.DefaultCountry
	}
	accepting := true
	if d.Practice.AcceptingNewClients != nil {
		accepting = *d.Practice.AcceptingNewClients
	}
	var rate *int
	if d.Practice.SessionRateCents != nil {
		v := *d.Practice.SessionRateCents
		rate = &v
	}

	return &identitymodels.ProfessionalProfile{
		IdentityID:            identityID,
		DisplayName:           strings.TrimSpace(app.FirstName + " " + app.LastName),
		ProfessionalTitle:     d.Credentials.ProfessionalTitle,
		Bio:                   d.Credentials.Bio,
		YearsOfExperience:     d.Credentials.YearsOfExperience,
		Timezone:              timezone,
		Country:               country,
		AcceptingNewClients:   accepting,
		SessionRateCents:      rate,
		Specializations:       nonNil(d.Practice.Specializations),
		TherapeuticApproaches: nonNil(d.Practice.TherapeuticApproaches),
		Languages:             nonNil(d.Practice.Languages),
		SessionFormats:        nonNil(d.Practice.SessionFormats),
		AgeGroups:             nonNil(d.Practice.AgeGroups),
		ClientPopulations:     nonNil(d.Practice.ClientPopulations),
		InsurancePanels:       nonNil(d.Insurance.InsurancePanels),
		Certifications:        nonNil(d.Credentials.Certifications),
		Details:               profileDetails(d),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func profileDetails(d models.Details) map[string]any {
	out := map[string]any{}
	set := func(k string, v any) {
		switch val := v.(type) {
		case string:
			if val == "" {
				return
			}
		case int:
			if val == 0 {
				return
			}
		}
		out[k] = v
	}
	set("gender", d.Personal.Gender)
	set("pronouns", d.Personal.Pronouns)
	set("city", d.Personal.City)
	set("state", d.Personal.State)
	set("postal_code", d.Personal.PostalCode)
	set("preferred_language", d.Personal.PreferredLanguage)
	set("profile_photo_url", d.Personal.ProfilePhotoURL)
	set("degree", d.Credentials.Degree)
	set("institution", d.Credentials.Institution)
	set("graduation_year", d.Credentials.GraduationYear)
	set("practice_name", d.Practice.PracticeName)
	set("website_url", d.Practice.WebsiteURL)
	if len(d.License.AdditionalStates) > 0 {
		out["additional_license_states"] = d.License.AdditionalStates
	}
	out["hipaa_attested"] = d.Compliance.HIPAAAttested
	out["background_check_consent"] = d.Compliance.BackgroundCheckConsent
	out["telehealth_trained"] = d.Compliance.TelehealthTrained
	set("terms_version", d.Compliance.TermsVersion)
	if docs := d.Documents.Map(); len(docs) > 0 {
		out["documents"] = docs
	}
	return out
}

func buildVerification(app *models.Application, identityID id.IdentityID, approvedBy string, now time.Time) *identitymodels.VerificationRecord {
	d := app.Details
	return &identitymodels.VerificationRecord{
		IdentityID:              identityID,
		LicenseNumber:           app.LicenseNumber,
		LicenseState:            app.LicenseState,
		LicenseType:             d.License.LicenseType,
		LicenseExpiry:           models.ParseDate(d.License.LicenseExpiry),
		NPINumber:               d.License.NPINumber,
		MalpracticeCarrier:      d.Insurance.MalpracticeCarrier,
		MalpracticePolicyNumber: d.Insurance.MalpracticePolicyNumber,
		MalpracticeExpiry:       models.ParseDate(d.Insurance.MalpracticeExpiry),
		VerificationStatus:      identitymodels.VerificationApproved,
		Result: identitymodels.VerificationResult{
			Criminal:   criminalStatus(app.BackgroundCheckStatus),
			Reference:  identitymodels.CheckVerified,
			Education:  identitymodels.CheckVerified,
			License:    identitymodels.CheckVerified,
			ApprovedBy: approvedBy,
			ApprovedAt: now,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// criminalStatus maps the background check slot onto the verification result.
// A clear check counts as verified; anything else is carried as is.
func criminalStatus(status models.BackgroundCheckStatus) string {
	switch status {
	case models.BackgroundCheckClear:
		return identitymodels.CheckVerified
	case "":
		return string(models.BackgroundCheckNotStarted)
	}
	return string(status)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
