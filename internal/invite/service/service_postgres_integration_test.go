//go:build integration

package service

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	identitystore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/identity/store"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/models"
	invitestore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/store"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/logger"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/postgres"
	rbacmodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	rbacservice "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/service"
	rbacstore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/store"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	auditpostgres "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/store/postgres"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/trail"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/testutil/containers"
)

type PostgresInviteSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	ctx      context.Context
	invites  *invitestore.PostgresStore
	service  *Service
	orgAdmin id.Principal
}

func TestPostgresInviteSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresInviteSuite))
}

func (s *PostgresInviteSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.invites = invitestore.NewPostgres(s.postgres.DB)
	s.orgAdmin = id.Principal{SubjectID: "org-admin-1"}
}

func (s *PostgresInviteSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(s.postgres.TruncateTables(s.ctx,
		"audit_outbox", "compliance_audit_log", "workflow_log",
		"organization_invites", "identities", "role_assignments",
	))

	db := s.postgres.DB
	roles := rbacstore.NewPostgres(db)
	s.Require().NoError(roles.AssignRole(s.ctx, rbacmodels.Assignment{
		PrincipalID: s.orgAdmin.SubjectID,
		Role:        rbacmodels.RoleOrgAdmin,
		GrantedBy:   "test",
		CreatedAt:   time.Now(),
	}))
	authz, err := rbacservice.New(roles, rbacservice.WithLogger(logger.Discard()))
	s.Require().NoError(err)

	auditLog := auditpostgres.New(db)
	tx := postgres.NewTxRunner(db,
		postgres.WithIsolation(sql.LevelSerializable),
		postgres.WithMaxRetries(5),
	)
	s.service, err = New(s.invites, identitystore.NewPostgres(db), tx, authz, trail.New(auditLog),
		WithLogger(logger.Discard()))
	s.Require().NoError(err)
}

func (s *PostgresInviteSuite) TestConcurrentRedemptionWithSingleUse() {
	inv, err := s.service.CreateInvite(s.ctx, s.orgAdmin, &models.CreateInviteRequest{
		OrganizationID: id.OrganizationID(id.NewIdentityID()).String(),
		MaxUses:        1,
	})
	s.Require().NoError(err)

	const redeemers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := range redeemers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			subject := fmt.Sprintf("sub-%d", i)
			_, err := s.service.Redeem(s.ctx, inv.Code, applicant(subject, subject+"@example.com"), nil)
			if err != nil {
				return
			}
			mu.Lock()
			successes++
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Equal(1, successes)
	stored, err := s.invites.FindByCode(s.ctx, inv.Code)
	s.Require().NoError(err)
	s.Equal(1, stored.CurrentUses)
	s.Equal(models.StatusUsed, stored.Status)

	var identities int
	s.Require().NoError(s.postgres.DB.QueryRowContext(s.ctx, `SELECT count(*) FROM identities`).Scan(&identities))
	s.Equal(1, identities)
}

func (s *PostgresInviteSuite) TestExpiredInviteIsNotRedeemable() {
	expires := time.Now().UTC().Add(time.Minute)
	inv, err := s.service.CreateInvite(s.ctx, s.orgAdmin, &models.CreateInviteRequest{
		OrganizationID: id.OrganizationID(id.NewIdentityID()).String(),
		MaxUses:        3,
		ExpiresAt:      &expires,
	})
	s.Require().NoError(err)

	later := requestcontext.WithTime(context.Background(), expires.Add(time.Second))
	_, err = s.service.Redeem(later, inv.Code, applicant("sub-1", "a@example.com"), nil)
	s.Require().Error(err)

	stored, err := s.invites.FindByCode(s.ctx, inv.Code)
	s.Require().NoError(err)
	s.Equal(0, stored.CurrentUses)
}
