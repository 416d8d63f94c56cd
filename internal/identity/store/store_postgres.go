package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/identity/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/postgres"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
	txcontext "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/tx"
)

// PostgresStore persists identities, profiles and verification records.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFrom(ctx, s.db)
}

const identityColumns = `id, external_subject_id, external_subject_type, email, phone, first_name,
	last_name, status, verified, organization_id, created_at, updated_at`

func (s *PostgresStore) FindByID(ctx context.Context, identityID id.IdentityID) (*models.Identity, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, uuid.UUID(identityID))
	return scanIdentity(row)
}

func (s *PostgresStore) FindByExternalSubject(ctx context.Context, subjectID, subjectType string) (*models.Identity, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE external_subject_id = $1 AND external_subject_type = $2`,
		subjectID, subjectType)
	return scanIdentity(row)
}

func (s *PostgresStore) ContactMatches(ctx context.Context, email, phone string) (models.ContactMatch, error) {
	query := `
		SELECT
			EXISTS (SELECT 1 FROM identities WHERE $1 <> '' AND lower(email) = lower($1)),
			EXISTS (SELECT 1 FROM identities WHERE $2 <> '' AND phone = $2)
	`
	var m models.ContactMatch
	if err := s.execer(ctx).QueryRowContext(ctx, query, email, phone).Scan(&m.Email, &m.Phone); err != nil {
		return models.ContactMatch{}, fmt.Errorf("identity contact lookup: %w", err)
	}
	return m, nil
}

// UpsertIdentity inserts the identity or activates the existing one for the same
// external subject. A clash on email surfaces as sentinel.ErrConflict.
func (s *PostgresStore) UpsertIdentity(ctx context.Context, ident *models.Identity) (*models.Identity, error) {
	query := `
		INSERT INTO identities (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		ON CONFLICT (external_subject_id, external_subject_type) DO UPDATE SET
			status = EXCLUDED.status,
			verified = EXCLUDED.verified,
			organization_id = COALESCE(EXCLUDED.organization_id, identities.organization_id),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + identityColumns

	row := s.execer(ctx).QueryRowContext(ctx, query,
		uuid.UUID(ident.ID),
		ident.ExternalSubjectID,
		ident.ExternalSubjectType,
		ident.Email,
		nullString(ident.Phone),
		ident.FirstName,
		ident.LastName,
		string(ident.Status),
		ident.Verified,
		nullOrg(ident.OrganizationID),
		ident.CreatedAt,
	)
	stored, err := scanIdentity(row)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, fmt.Errorf("upsert identity (%s): %w", postgres.ConstraintName(err), sentinel.ErrConflict)
		}
		return nil, fmt.Errorf("upsert identity: %w", err)
	}
	return stored, nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, p *models.ProfessionalProfile) error {
	arrays := make([][]byte, 0, 8)
	for _, values := range [][]string{
		p.Specializations, p.TherapeuticApproaches, p.Languages, p.SessionFormats,
		p.AgeGroups, p.ClientPopulations, p.InsurancePanels, p.Certifications,
	} {
		if values == nil {
			values = []string{}
		}
		raw, err := json.Marshal(values)
		if err != nil {
			return fmt.Errorf("marshal profile array: %w", err)
		}
		arrays = append(arrays, raw)
	}
	details, err := json.Marshal(orEmptyMap(p.Details))
	if err != nil {
		return fmt.Errorf("marshal profile details: %w", err)
	}

	query := `
		INSERT INTO professional_profiles (
			identity_id, display_name, professional_title, bio, years_of_experience, timezone,
			country, accepting_new_clients, session_rate_cents, specializations,
			therapeutic_approaches, languages, session_formats, age_groups, client_populations,
			insurance_panels, certifications, details, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (identity_id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			professional_title = EXCLUDED.professional_title,
			bio = EXCLUDED.bio,
			years_of_experience = EXCLUDED.years_of_experience,
			timezone = EXCLUDED.timezone,
			country = EXCLUDED.country,
			accepting_new_clients = EXCLUDED.accepting_new_clients,
			session_rate_cents = EXCLUDED.session_rate_cents,
			specializations = EXCLUDED.specializations,
			therapeutic_approaches = EXCLUDED.therapeutic_approaches,
			languages = EXCLUDED.languages,
			session_formats = EXCLUDED.session_formats,
			age_groups = EXCLUDED.age_groups,
			client_populations = EXCLUDED.client_populations,
			insurance_panels = EXCLUDED.insurance_panels,
			certifications = EXCLUDED.certifications,
			details = EXCLUDED.details,
			updated_at = EXCLUDED.updated_at
	`
	var rate sql.NullInt64
	if p.SessionRateCents != nil {
		rate = sql.NullInt64{Int64: int64(*p.SessionRateCents), Valid: true}
	}
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(p.IdentityID), p.DisplayName, p.ProfessionalTitle, p.Bio, p.YearsOfExperience,
		p.Timezone, p.Country, p.AcceptingNewClients, rate,
		arrays[0], arrays[1], arrays[2], arrays[3], arrays[4], arrays[5], arrays[6], arrays[7],
		details, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert professional profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindProfile(ctx context.Context, identityID id.IdentityID) (*models.ProfessionalProfile, error) {
	query := `
		SELECT identity_id, display_name, professional_title, bio, years_of_experience, timezone,
			country, accepting_new_clients, session_rate_cents, specializations,
			therapeutic_approaches, languages, session_formats, age_groups, client_populations,
			insurance_panels, certifications, details, created_at, updated_at
		FROM professional_profiles WHERE identity_id = $1
	`
	var (
		p       models.ProfessionalProfile
		ident   uuid.UUID
		rate    sql.NullInt64
		details []byte
	)
	arrays := make([][]byte, 8)
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(identityID)).Scan(
		&ident, &p.DisplayName, &p.ProfessionalTitle, &p.Bio, &p.YearsOfExperience, &p.Timezone,
		&p.Country, &p.AcceptingNewClients, &rate,
		&arrays[0], &arrays[1], &arrays[2], &arrays[3], &arrays[4], &arrays[5], &arrays[6], &arrays[7],
		&details, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find professional profile: %w", err)
	}
	p.IdentityID = id.IdentityID(ident)
	if rate.Valid {
		v := int(rate.Int64)
		p.SessionRateCents = &v
	}
	targets := []*[]string{
		&p.Specializations, &p.TherapeuticApproaches, &p.Languages, &p.SessionFormats,
		&p.AgeGroups, &p.ClientPopulations, &p.InsurancePanels, &p.Certifications,
	}
	for i, target := range targets {
		if err := json.Unmarshal(arrays[i], target); err != nil {
			return nil, fmt.Errorf("decode profile array: %w", err)
		}
	}
	if err := json.Unmarshal(details, &p.Details); err != nil {
		return nil, fmt.Errorf("decode profile details: %w", err)
	}
	return &p, nil
}

func (s *PostgresStore) UpsertVerification(ctx context.Context, v *models.VerificationRecord) error {
	result, err := json.Marshal(v.Result)
	if err != nil {
		return fmt.Errorf("marshal verification result: %w", err)
	}
	query := `
		INSERT INTO verification_records (
			identity_id, license_number, license_state, license_type, license_expiry, npi_number,
			malpractice_carrier, malpractice_policy_number, malpractice_expiry,
			verification_status, verification_result, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (identity_id) DO UPDATE SET
			license_number = EXCLUDED.license_number,
			license_state = EXCLUDED.license_state,
			license_type = EXCLUDED.license_type,
			license_expiry = EXCLUDED.license_expiry,
			npi_number = EXCLUDED.npi_number,
			malpractice_carrier = EXCLUDED.malpractice_carrier,
			malpractice_policy_number = EXCLUDED.malpractice_policy_number,
			malpractice_expiry = EXCLUDED.malpractice_expiry,
			verification_status = EXCLUDED.verification_status,
			verification_result = EXCLUDED.verification_result,
			updated_at = EXCLUDED.updated_at
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(v.IdentityID), v.LicenseNumber, v.LicenseState, v.LicenseType,
		nullTime(v.LicenseExpiry), v.NPINumber, v.MalpracticeCarrier, v.MalpracticePolicyNumber,
		nullTime(v.MalpracticeExpiry), v.VerificationStatus, result, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert verification record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindVerification(ctx context.Context, identityID id.IdentityID) (*models.VerificationRecord, error) {
	query := `
		SELECT identity_id, license_number, license_state, license_type, license_expiry, npi_number,
			malpractice_carrier, malpractice_policy_number, malpractice_expiry,
			verification_status, verification_result, created_at, updated_at
		FROM verification_records WHERE identity_id = $1
	`
	var (
		v                 models.VerificationRecord
		ident             uuid.UUID
		licenseExpiry     sql.NullTime
		malpracticeExpiry sql.NullTime
		result            []byte
	)
	err := s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(identityID)).Scan(
		&ident, &v.LicenseNumber, &v.LicenseState, &v.LicenseType, &licenseExpiry, &v.NPINumber,
		&v.MalpracticeCarrier, &v.MalpracticePolicyNumber, &malpracticeExpiry,
		&v.VerificationStatus, &result, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find verification record: %w", err)
	}
	v.IdentityID = id.IdentityID(ident)
	v.LicenseExpiry = timePtr(licenseExpiry)
	v.MalpracticeExpiry = timePtr(malpracticeExpiry)
	if err := json.Unmarshal(result, &v.Result); err != nil {
		return nil, fmt.Errorf("decode verification result: %w", err)
	}
	return &v, nil
}

func scanIdentity(row *sql.Row) (*models.Identity, error) {
	var (
		ident   models.Identity
		identID uuid.UUID
		phone   sql.NullString
		status  string
		org     uuid.NullUUID
	)
	err := row.Scan(&identID, &ident.ExternalSubjectID, &ident.ExternalSubjectType, &ident.Email,
		&phone, &ident.FirstName, &ident.LastName, &status, &ident.Verified, &org,
		&ident.CreatedAt, &ident.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ident.ID = id.IdentityID(identID)
	ident.Phone = phone.String
	ident.Status = models.IdentityStatus(status)
	if org.Valid {
		o := id.OrganizationID(org.UUID)
		ident.OrganizationID = &o
	}
	return &ident, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullOrg(o *id.OrganizationID) uuid.NullUUID {
	if o == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*o), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
