package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/identity/models"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
)

func newIdentity(subject, email string) *models.Identity {
	now := time.Now()
	return &models.Identity{
		ID:                  id.NewIdentityID(),
		ExternalSubjectID:   subject,
		ExternalSubjectType: "cognito",
		Email:               email,
		Phone:               "+15550100",
		Status:              models.StatusActive,
		Verified:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func TestUpsertIdentity(t *testing.T) {
	ctx := context.Background()

	t.Run("second upsert for same subject keeps the original id", func(t *testing.T) {
		s := NewInMemory()
		first, err := s.UpsertIdentity(ctx, newIdentity("sub-1", "a@example.com"))
		require.NoError(t, err)

		again := newIdentity("sub-1", "a@example.com")
		again.Status = models.StatusActive
		second, err := s.UpsertIdentity(ctx, again)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		n, _, _ := s.Counts()
		assert.Equal(t, 1, n)
	})

	t.Run("email clash with a different subject conflicts", func(t *testing.T) {
		s := NewInMemory()
		_, err := s.UpsertIdentity(ctx, newIdentity("sub-1", "a@example.com"))
		require.NoError(t, err)

		_, err = s.UpsertIdentity(ctx, newIdentity("sub-2", "A@Example.com"))
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("existing organization is kept when none supplied", func(t *testing.T) {
		s := NewInMemory()
		org := id.OrganizationID(id.NewIdentityID())
		withOrg := newIdentity("sub-1", "a@example.com")
		withOrg.OrganizationID = &org
		_, err := s.UpsertIdentity(ctx, withOrg)
		require.NoError(t, err)

		stored, err := s.UpsertIdentity(ctx, newIdentity("sub-1", "a@example.com"))
		require.NoError(t, err)
		require.NotNil(t, stored.OrganizationID)
		assert.Equal(t, org, *stored.OrganizationID)
	})
}

func TestContactMatches(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	_, err := s.UpsertIdentity(ctx, newIdentity("sub-1", "a@example.com"))
	require.NoError(t, err)

	m, err := s.ContactMatches(ctx, "A@EXAMPLE.COM", "")
	require.NoError(t, err)
	assert.Equal(t, models.ContactMatch{Email: true}, m)

	m, err = s.ContactMatches(ctx, "", "+15550100")
	require.NoError(t, err)
	assert.Equal(t, models.ContactMatch{Phone: true}, m)

	m, err = s.ContactMatches(ctx, "", "")
	require.NoError(t, err)
	assert.False(t, m.Any())
}

func TestProfileRequiresIdentity(t *testing.T) {
	s := NewInMemory()
	err := s.UpsertProfile(context.Background(), &models.ProfessionalProfile{IdentityID: id.NewIdentityID()})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestSnapshotRestores(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	restore := s.Snapshot()

	ident, err := s.UpsertIdentity(ctx, newIdentity("sub-1", "a@example.com"))
	require.NoError(t, err)
	require.NoError(t, s.UpsertProfile(ctx, &models.ProfessionalProfile{IdentityID: ident.ID}))

	restore()
	n, p, v := s.Counts()
	assert.Zero(t, n+p+v)
}
