package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/postgres"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
	txcontext "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFrom(ctx, s.db)
}

const columns = `id, code, organization_id, max_uses, current_uses, status, expires_at, created_by, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, invite *models.Invite) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO organization_invites (`+columns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		uuid.UUID(invite.ID), invite.Code, uuid.UUID(invite.OrganizationID), invite.MaxUses,
		invite.CurrentUses, string(invite.Status), nullTime(invite.ExpiresAt), invite.CreatedBy,
		invite.CreatedAt, invite.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return fmt.Errorf("create invite: %w", sentinel.ErrConflict)
		}
		return fmt.Errorf("create invite: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*models.Invite, error) {
	row := s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+columns+` FROM organization_invites WHERE code = $1`, code)
	return scanInvite(row)
}

// IncrementUse is the conditional increment that serializes redemptions. Zero
// affected rows means another redemption consumed the last use first, or the
// invite stopped being redeemable. A current_uses <= max_uses CHECK failure is
// reported the same way.
func (s *PostgresStore) IncrementUse(ctx context.Context, inviteID id.InviteID, now time.Time) (*models.Invite, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		UPDATE organization_invites SET
			current_uses = current_uses + 1,
			status = CASE WHEN current_uses + 1 >= max_uses THEN 'used' ELSE status END,
			updated_at = $2
		WHERE id = $1
			AND status = 'active'
			AND current_uses < max_uses
			AND (expires_at IS NULL OR expires_at > $2)
		RETURNING `+columns,
		uuid.UUID(inviteID), now,
	)
	inv, err := scanInvite(row)
	if errors.Is(err, sentinel.ErrNotFound) || postgres.IsCheckViolation(err) {
		return nil, sentinel.ErrInvalidState
	}
	if err != nil {
		return nil, fmt.Errorf("increment invite use: %w", err)
	}
	return inv, nil
}

func (s *PostgresStore) ListByOrganization(ctx context.Context, orgID id.OrganizationID) ([]*models.Invite, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+columns+` FROM organization_invites WHERE organization_id = $1 ORDER BY created_at, id`,
		uuid.UUID(orgID))
	if err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	defer rows.Close()

	out := []*models.Invite{}
	for rows.Next() {
		inv, err := scanInvite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invite: %w", err)
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate invites: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvite(row scanner) (*models.Invite, error) {
	var (
		inv       models.Invite
		inviteID  uuid.UUID
		orgID     uuid.UUID
		status    string
		expiresAt sql.NullTime
	)
	err := row.Scan(&inviteID, &inv.Code, &orgID, &inv.MaxUses, &inv.CurrentUses, &status,
		&expiresAt, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	inv.ID = id.InviteID(inviteID)
	inv.OrganizationID = id.OrganizationID(orgID)
	inv.Status = models.InviteStatus(status)
	if expiresAt.Valid {
		t := expiresAt.Time
		inv.ExpiresAt = &t
	}
	return &inv, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
