//go:build integration

package postgres_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/outbox"
	auditpostgres "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/store/postgres"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpostgres.Store
	ctx      context.Context
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = auditpostgres.New(s.postgres.DB)
	s.ctx = context.Background()
}

func (s *AuditStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "audit_outbox", "compliance_audit_log", "workflow_log"))
}

func (s *AuditStoreSuite) appendCompliance(resourceID string) *audit.ComplianceEntry {
	entry := &audit.ComplianceEntry{
		Action:          audit.ComplianceIdentityActivated,
		ResourceType:    audit.ResourceIdentity,
		ResourceID:      resourceID,
		NewValues:       map[string]any{"status": "active"},
		Actor:           "reviewer-1",
		IP:              "203.0.113.9",
		ComplianceLevel: audit.LevelPII,
		CreatedAt:       time.Now().UTC(),
	}
	s.Require().NoError(s.store.AppendCompliance(s.ctx, entry))
	return entry
}

func (s *AuditStoreSuite) TestAuditTablesAreAppendOnly() {
	appID := id.NewApplicationID()
	s.Require().NoError(s.store.AppendWorkflow(s.ctx, &audit.WorkflowEntry{
		ApplicationID: appID,
		Stage:         "registration_submitted",
		Action:        audit.ActionRegistrationCreated,
		Outcome:       audit.OutcomeSuccess,
		ActorType:     id.ActorApplicant,
		CreatedAt:     time.Now().UTC(),
	}))
	s.appendCompliance("identity-1")

	for _, stmt := range []string{
		`UPDATE workflow_log SET outcome = 'failure'`,
		`DELETE FROM workflow_log`,
		`UPDATE compliance_audit_log SET actor = 'someone-else'`,
		`DELETE FROM compliance_audit_log WHERE resource_id = 'identity-1'`,
	} {
		_, err := s.postgres.DB.ExecContext(s.ctx, stmt)
		s.Require().Error(err, stmt)
		s.Contains(err.Error(), "append-only")
	}

	entries, err := s.store.ListWorkflowByApplication(s.ctx, appID)
	s.Require().NoError(err)
	s.Len(entries, 1)
}

func (s *AuditStoreSuite) TestComplianceEntriesAreQueuedForRelay() {
	first := s.appendCompliance("identity-1")
	second := s.appendCompliance("identity-2")

	pending, err := s.store.FetchPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal("identity-1", pending[0].Key)

	var payload outbox.Payload
	s.Require().NoError(json.Unmarshal(pending[0].Payload, &payload))
	s.Equal(first.ID, payload.ID)
	s.Equal(string(audit.ComplianceIdentityActivated), payload.Action)
	s.Equal("pii", payload.ComplianceLevel)
	s.NotContains(string(pending[0].Payload), "203.0.113.9")

	s.Require().NoError(s.store.MarkPublished(s.ctx, []int64{pending[0].ID}, time.Now()))

	pending, err = s.store.FetchPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Require().NoError(json.Unmarshal(pending[0].Payload, &payload))
	s.Equal(second.ID, payload.ID)
}
