package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/tx"
)

// PostgresStore resolves grants from the roles, permissions and role_assignments tables.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed rbac store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GrantsFor returns every permission reachable from the principal's assignments,
// including expired ones; expiry is evaluated by the caller against request time.
func (s *PostgresStore) GrantsFor(ctx context.Context, principalID string) ([]models.Grant, error) {
	query := `
		SELECT r.name, p.name, ra.expires_at
		FROM role_assignments ra
		JOIN roles r ON r.id = ra.role_id
		JOIN role_permissions rp ON rp.role_id = r.id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ra.principal_id = $1
		ORDER BY r.name, p.name
	`
	rows, err := tx.ExecutorFrom(ctx, s.db).QueryContext(ctx, query, principalID)
	if err != nil {
		return nil, fmt.Errorf("query grants: %w", err)
	}
	defer rows.Close()

	var grants []models.Grant
	for rows.Next() {
		var (
			g       models.Grant
			perm    string
			expires sql.NullTime
		)
		if err := rows.Scan(&g.Role, &perm, &expires); err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		g.Permission = models.Permission(perm)
		if expires.Valid {
			t := expires.Time
			g.ExpiresAt = &t
		}
		grants = append(grants, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return grants, nil
}

// AssignRole upserts the assignment. An unknown role name matches no row and
// yields sentinel.ErrNotFound.
func (s *PostgresStore) AssignRole(ctx context.Context, a models.Assignment) error {
	query := `
		INSERT INTO role_assignments (principal_id, role_id, granted_by, expires_at, created_at)
		SELECT $1, r.id, $3, $4, $5 FROM roles r WHERE r.name = $2
		ON CONFLICT (principal_id, role_id) DO UPDATE SET
			granted_by = EXCLUDED.granted_by,
			expires_at = EXCLUDED.expires_at
	`
	var expires sql.NullTime
	if a.ExpiresAt != nil {
		expires = sql.NullTime{Time: *a.ExpiresAt, Valid: true}
	}
	res, err := tx.ExecutorFrom(ctx, s.db).ExecContext(ctx, query,
		a.PrincipalID, a.Role, a.GrantedBy, expires, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assign role rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
