package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
)

func TestWorkflowOrderedByCreatedAtThenID(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	appID := id.NewApplicationID()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	later := &audit.WorkflowEntry{ApplicationID: appID, Action: audit.ActionApplicationApproved, CreatedAt: base.Add(time.Minute)}
	first := &audit.WorkflowEntry{ApplicationID: appID, Action: audit.ActionRegistrationCreated, CreatedAt: base}
	tie := &audit.WorkflowEntry{ApplicationID: appID, Action: audit.ActionStageTransitioned, CreatedAt: base}
	require.NoError(t, s.AppendWorkflow(ctx, later))
	require.NoError(t, s.AppendWorkflow(ctx, first))
	require.NoError(t, s.AppendWorkflow(ctx, tie))
	require.NoError(t, s.AppendWorkflow(ctx, &audit.WorkflowEntry{ApplicationID: id.NewApplicationID(), CreatedAt: base}))

	entries, err := s.ListWorkflowByApplication(ctx, appID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []audit.WorkflowAction{
		audit.ActionRegistrationCreated,
		audit.ActionStageTransitioned,
		audit.ActionApplicationApproved,
	}, []audit.WorkflowAction{entries[0].Action, entries[1].Action, entries[2].Action})
}

func TestReturnedEntriesDoNotAliasStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	appID := id.NewApplicationID()
	require.NoError(t, s.AppendWorkflow(ctx, &audit.WorkflowEntry{ApplicationID: appID, Details: map[string]any{"k": "v"}}))

	entries, _ := s.ListWorkflowByApplication(ctx, appID)
	entries[0].Details["k"] = "tampered"

	again, _ := s.ListWorkflowByApplication(ctx, appID)
	assert.Equal(t, "v", again[0].Details["k"])
}

func TestSnapshotDiscardsLaterAppends(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	require.NoError(t, s.AppendCompliance(ctx, &audit.ComplianceEntry{ResourceType: "identity", ResourceID: "1"}))

	restore := s.Snapshot()
	require.NoError(t, s.AppendCompliance(ctx, &audit.ComplianceEntry{ResourceType: "identity", ResourceID: "1"}))
	require.NoError(t, s.AppendWorkflow(ctx, &audit.WorkflowEntry{}))
	restore()

	assert.Len(t, s.AllCompliance(), 1)
	assert.Empty(t, s.AllWorkflow())
}
