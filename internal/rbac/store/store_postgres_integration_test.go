//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/store"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	// Seeded roles and permissions stay; only assignments are reset.
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "role_assignments"))
}

func (s *PostgresStoreSuite) TestSeededRolesResolveToMigratedPermissions() {
	ctx := context.Background()
	s.Require().NoError(s.store.AssignRole(ctx, models.Assignment{
		PrincipalID: "reviewer-1",
		Role:        models.RoleVerificationReviewer,
		GrantedBy:   "test",
		CreatedAt:   time.Now(),
	}))

	grants, err := s.store.GrantsFor(ctx, "reviewer-1")
	s.Require().NoError(err)

	set := models.EffectivePermissions(grants, time.Now())
	var want []string
	for _, p := range models.DefaultRoles()[models.RoleVerificationReviewer] {
		want = append(want, string(p))
	}
	s.ElementsMatch(want, set.Names())
}

func (s *PostgresStoreSuite) TestExpiryIsReturned() {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Microsecond)
	s.Require().NoError(s.store.AssignRole(ctx, models.Assignment{
		PrincipalID: "temp-1",
		Role:        models.RoleOrgAdmin,
		GrantedBy:   "test",
		ExpiresAt:   &exp,
		CreatedAt:   time.Now(),
	}))

	grants, err := s.store.GrantsFor(ctx, "temp-1")
	s.Require().NoError(err)
	s.Require().NotEmpty(grants)
	for _, g := range grants {
		s.Require().NotNil(g.ExpiresAt)
		s.True(exp.Equal(*g.ExpiresAt))
	}
}

func (s *PostgresStoreSuite) TestUnknownRole() {
	err := s.store.AssignRole(context.Background(), models.Assignment{
		PrincipalID: "p", Role: "wizard", GrantedBy: "test", CreatedAt: time.Now(),
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}
