package application

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	identitymodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/identity/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/postgres"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
	txcontext "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/tx"
)

// PostgresStore persists provisional applications.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFrom(ctx, s.db)
}

const columns = `id, external_subject_id, external_subject_type, email, phone, first_name, last_name,
	license_number, license_state, workflow_state, background_check_status, rejection_reason,
	reviewed_by, reviewed_at, approved_by, approved_at, identity_id, details, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, app *models.Application) error {
	details, err := json.Marshal(app.Details)
	if err != nil {
		return fmt.Errorf("marshal application details: %w", err)
	}
	query := `
		INSERT INTO provisional_applications (` + columns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(app.ID), app.ExternalSubjectID, app.ExternalSubjectType, app.Email,
		nullString(app.Phone), app.FirstName, app.LastName, app.LicenseNumber, app.LicenseState,
		string(app.State), string(app.BackgroundCheckStatus), nullString(app.RejectionReason),
		nullString(app.ReviewedBy), nullTime(app.ReviewedAt), nullString(app.ApprovedBy),
		nullTime(app.ApprovedAt), nullIdentity(app.IdentityID), details, app.CreatedAt, app.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("create application (%s): %w", postgres.ConstraintName(err), sentinel.ErrConflict)
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// UpdatePending overwrites the applicant-supplied fields while the application
// is still registration_submitted.
func (s *PostgresStore) UpdatePending(ctx context.Context, app *models.Application) error {
	details, err := json.Marshal(app.Details)
	if err != nil {
		return fmt.Errorf("marshal application details: %w", err)
	}
	query := `
		UPDATE provisional_applications SET
			email = $2, phone = $3, first_name = $4, last_name = $5,
			license_number = $6, license_state = $7, details = $8, updated_at = $9
		WHERE id = $1 AND workflow_state = 'registration_submitted'
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(app.ID), app.Email, nullString(app.Phone), app.FirstName, app.LastName,
		app.LicenseNumber, app.LicenseState, details, app.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("update application (%s): %w", postgres.ConstraintName(err), sentinel.ErrConflict)
		}
		return fmt.Errorf("update application: %w", err)
	}
	return requireRow(res, sentinel.ErrInvalidState)
}

func (s *PostgresStore) FindByID(ctx context.Context, appID id.ApplicationID) (*models.Application, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+columns+` FROM provisional_applications WHERE id = $1`, uuid.UUID(appID))
	return scanApplication(row)
}

func (s *PostgresStore) FindOpenBySubject(ctx context.Context, subjectID string) (*models.Application, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+columns+` FROM provisional_applications
		WHERE external_subject_id = $1 AND workflow_state <> 'rejected'`, subjectID)
	return scanApplication(row)
}

func (s *PostgresStore) FindLatestBySubject(ctx context.Context, subjectID string) (*models.Application, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+columns+` FROM provisional_applications
		WHERE external_subject_id = $1
		ORDER BY created_at DESC, (workflow_state <> 'rejected') DESC, updated_at DESC, id DESC
		LIMIT 1`, subjectID)
	return scanApplication(row)
}

func (s *PostgresStore) OpenContactMatches(ctx context.Context, email, phone, excludeSubjectID string) (identitymodels.ContactMatch, error) {
	query := `
		SELECT
			EXISTS (SELECT 1 FROM provisional_applications
				WHERE $1 <> '' AND lower(email) = lower($1)
				AND workflow_state <> 'rejected' AND external_subject_id <> $3),
			EXISTS (SELECT 1 FROM provisional_applications
				WHERE $2 <> '' AND phone = $2
				AND workflow_state <> 'rejected' AND external_subject_id <> $3)
	`
	var m identitymodels.ContactMatch
	if err := s.execer(ctx).QueryRowContext(ctx, query, email, phone, excludeSubjectID).Scan(&m.Email, &m.Phone); err != nil {
		return identitymodels.ContactMatch{}, fmt.Errorf("application contact lookup: %w", err)
	}
	return m, nil
}

// ClaimTransition is a compare-and-set on workflow_state. Losing a race, or
// claiming from a terminal state, yields sentinel.ErrInvalidState.
func (s *PostgresStore) ClaimTransition(ctx context.Context, claim models.TransitionClaim) error {
	query := `
		UPDATE provisional_applications SET
			workflow_state = $3,
			reviewed_by = $4,
			reviewed_at = $5,
			rejection_reason = COALESCE($6, rejection_reason),
			background_check_status = COALESCE($7, background_check_status),
			updated_at = $5
		WHERE id = $1 AND workflow_state = $2
			AND workflow_state NOT IN ('approved', 'rejected')
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(claim.ApplicationID), string(claim.From), string(claim.To), claim.ReviewedBy,
		claim.ReviewedAt, nullString(claim.RejectionReason), nullString(string(claim.BackgroundCheckStatus)),
	)
	if err != nil {
		return fmt.Errorf("claim application transition: %w", err)
	}
	if err := requireRow(res, sentinel.ErrInvalidState); err != nil {
		return s.missingOr(ctx, claim.ApplicationID, err)
	}
	return nil
}

func (s *PostgresStore) FinalizeApproval(ctx context.Context, appID id.ApplicationID, approvedBy string, approvedAt time.Time, identityID id.IdentityID) error {
	query := `
		UPDATE provisional_applications SET
			approved_by = $2, approved_at = $3, identity_id = $4, updated_at = $3
		WHERE id = $1 AND workflow_state = 'approved' AND identity_id IS NULL
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(appID), approvedBy, approvedAt, uuid.UUID(identityID))
	if err != nil {
		return fmt.Errorf("finalize application approval: %w", err)
	}
	if err := requireRow(res, sentinel.ErrInvalidState); err != nil {
		return s.missingOr(ctx, appID, err)
	}
	return nil
}

func (s *PostgresStore) ListByStates(ctx context.Context, states []models.WorkflowState, limit int) ([]*models.Application, error) {
	names := make([]string, len(states))
	for i, st := range states {
		names[i] = string(st)
	}
	query := `SELECT ` + columns + ` FROM provisional_applications
		WHERE workflow_state = ANY($1) ORDER BY created_at, id`
	args := []any{pq.Array(names)}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var out []*models.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, app)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applications: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) missingOr(ctx context.Context, appID id.ApplicationID, err error) error {
	var exists bool
	qerr := s.execer(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM provisional_applications WHERE id = $1)`, uuid.UUID(appID)).Scan(&exists)
	if qerr != nil {
		return fmt.Errorf("check application: %w", qerr)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApplication(row scanner) (*models.Application, error) {
	var (
		app        models.Application
		appID      uuid.UUID
		phone      sql.NullString
		state      string
		bgStatus   string
		rejection  sql.NullString
		reviewedBy sql.NullString
		reviewedAt sql.NullTime
		approvedBy sql.NullString
		approvedAt sql.NullTime
		identityID uuid.NullUUID
		details    []byte
	)
	err := row.Scan(&appID, &app.ExternalSubjectID, &app.ExternalSubjectType, &app.Email, &phone,
		&app.FirstName, &app.LastName, &app.LicenseNumber, &app.LicenseState, &state, &bgStatus,
		&rejection, &reviewedBy, &reviewedAt, &approvedBy, &approvedAt, &identityID, &details,
		&app.CreatedAt, &app.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	app.ID = id.ApplicationID(appID)
	app.Phone = phone.String
	app.State = models.WorkflowState(state)
	app.BackgroundCheckStatus = models.BackgroundCheckStatus(bgStatus)
	app.RejectionReason = rejection.String
	app.ReviewedBy = reviewedBy.String
	app.ReviewedAt = timePtr(reviewedAt)
	app.ApprovedBy = approvedBy.String
	app.ApprovedAt = timePtr(approvedAt)
	if identityID.Valid {
		ident := id.IdentityID(identityID.UUID)
		app.IdentityID = &ident
	}
	if err := json.Unmarshal(details, &app.Details); err != nil {
		return nil, fmt.Errorf("decode application details: %w", err)
	}
	return &app, nil
}

func requireRow(res sql.Result, notMatched error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notMatched
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
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

func nullIdentity(i *id.IdentityID) uuid.NullUUID {
	if i == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*i), Valid: true}
}
