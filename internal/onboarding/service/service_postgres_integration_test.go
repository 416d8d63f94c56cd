//go:build integration

package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	identitymodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/identity/models"
	identitystore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/identity/store"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/models"
	appstore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/store/application"
	docstore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/store/document"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/logger"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/postgres"
	rbacmodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	rbacservice "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/service"
	rbacstore "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/store"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	auditpostgres "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/store/postgres"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/trail"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/testutil/containers"
)

var onboardingTables = []string{
	"audit_outbox",
	"compliance_audit_log",
	"workflow_log",
	"verification_records",
	"professional_profiles",
	"application_documents",
	"provisional_applications",
	"organization_invites",
	"identities",
	"role_assignments",
}

type brokenPostgresVerifications struct {
	*identitystore.PostgresStore
}

func (b *brokenPostgresVerifications) UpsertVerification(context.Context, *identitymodels.VerificationRecord) error {
	return errors.New("connection reset by peer")
}

type PostgresOnboardingSuite struct {
	suite.Suite
	postgres   *containers.PostgresContainer
	db         *sql.DB
	ctx        context.Context
	apps       *appstore.PostgresStore
	identities *identitystore.PostgresStore
	auditLog   *auditpostgres.Store
	authz      *rbacservice.Service
	service    *Service
	reviewer   id.Principal
}

func TestPostgresOnboardingSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresOnboardingSuite))
}

func (s *PostgresOnboardingSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.db = s.postgres.DB
	s.apps = appstore.NewPostgres(s.db)
	s.identities = identitystore.NewPostgres(s.db)
	s.auditLog = auditpostgres.New(s.db)
	s.reviewer = id.Principal{SubjectID: "reviewer-1", SubjectType: "cognito"}
}

func (s *PostgresOnboardingSuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Now().UTC().Truncate(time.Microsecond))
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, onboardingTables...))

	roles := rbacstore.NewPostgres(s.db)
	s.Require().NoError(roles.AssignRole(s.ctx, rbacmodels.Assignment{
		PrincipalID: s.reviewer.SubjectID,
		Role:        rbacmodels.RoleVerificationReviewer,
		GrantedBy:   "test",
		CreatedAt:   time.Now(),
	}))
	var err error
	s.authz, err = rbacservice.New(roles, rbacservice.WithLogger(logger.Discard()))
	s.Require().NoError(err)

	s.service = s.newService(s.identities)
}

func (s *PostgresOnboardingSuite) newService(identities IdentityStore) *Service {
	svc, err := New(Stores{
		Applications: s.apps,
		Documents:    docstore.NewPostgres(s.db),
		Identities:   identities,
		AuditLog:     s.auditLog,
	}, postgres.NewTxRunner(s.db), s.authz, trail.New(s.auditLog), WithLogger(logger.Discard()))
	s.Require().NoError(err)
	return svc
}

func (s *PostgresOnboardingSuite) count(query string, args ...any) int {
	var n int
	s.Require().NoError(s.db.QueryRowContext(s.ctx, query, args...).Scan(&n))
	return n
}

func (s *PostgresOnboardingSuite) TestConcurrentApprovalsActivateOnce() {
	res, err := s.service.Register(s.ctx, registration("sub-jane", "jane@example.com"))
	s.Require().NoError(err)
	appID := res.Application.ID

	const reviewers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for range reviewers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := s.service.Approve(s.ctx, appID, s.reviewer, &models.ApproveRequest{})
			if err != nil || out.AlreadyApplied {
				return
			}
			mu.Lock()
			fresh++
			mu.Unlock()
		}()
	}
	wg.Wait()

	s.Equal(1, fresh)
	s.Equal(1, s.count(`SELECT count(*) FROM identities WHERE external_subject_id = $1`, "sub-jane"))
	s.Equal(1, s.count(`SELECT count(*) FROM professional_profiles`))
	s.Equal(1, s.count(`SELECT count(*) FROM workflow_log WHERE application_id = $1 AND action = 'application_approved'`, appID.String()))

	stored, err := s.apps.FindByID(s.ctx, appID)
	s.Require().NoError(err)
	s.Equal(models.StateApproved, stored.State)
	s.NotNil(stored.IdentityID)
}

func (s *PostgresOnboardingSuite) TestActivationFailureRollsBack() {
	res, err := s.service.Register(s.ctx, registration("sub-jane", "jane@example.com"))
	s.Require().NoError(err)
	appID := res.Application.ID
	outboxBefore := s.count(`SELECT count(*) FROM audit_outbox`)

	broken := s.newService(&brokenPostgresVerifications{PostgresStore: s.identities})
	_, err = broken.Approve(s.ctx, appID, s.reviewer, &models.ApproveRequest{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnavailable))

	s.Equal(0, s.count(`SELECT count(*) FROM identities`))
	s.Equal(0, s.count(`SELECT count(*) FROM professional_profiles`))
	s.Equal(0, s.count(`SELECT count(*) FROM verification_records`))
	s.Equal(outboxBefore, s.count(`SELECT count(*) FROM audit_outbox`))

	stored, err := s.apps.FindByID(s.ctx, appID)
	s.Require().NoError(err)
	s.Equal(models.StateRegistrationSubmitted, stored.State)
	s.Nil(stored.IdentityID)

	out, err := s.service.Approve(s.ctx, appID, s.reviewer, &models.ApproveRequest{})
	s.Require().NoError(err)
	s.False(out.AlreadyApplied)
	s.Equal(1, s.count(`SELECT count(*) FROM identities`))
}
