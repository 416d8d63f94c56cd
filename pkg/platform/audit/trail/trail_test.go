package trail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/store/memory"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

const chromeUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

type failingStore struct {
	*memory.InMemoryStore
}

func (failingStore) AppendCompliance(context.Context, *audit.ComplianceEntry) error {
	return errors.New("disk full")
}

func requestCtx() context.Context {
	ctx := requestcontext.WithRequestID(context.Background(), "req-7")
	ctx = requestcontext.WithClientMetadata(ctx, "203.0.113.9", chromeUA)
	ctx = requestcontext.WithPrincipal(ctx, id.Principal{SubjectID: "admin-1"})
	return requestcontext.WithTime(ctx, time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC))
}

func TestRecordComplianceEnrichesFromContext(t *testing.T) {
	store := memory.NewInMemoryStore()
	tr := New(store)

	err := tr.RecordCompliance(requestCtx(), audit.ComplianceEntry{
		Action:       audit.ComplianceStatusChanged,
		ResourceType: audit.ResourceApplication,
		ResourceID:   "app-1",
		OldValues:    map[string]any{"status": "pending_review"},
		NewValues:    map[string]any{"status": "approved"},
	})
	require.NoError(t, err)

	entries := store.AllCompliance()
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "admin-1", e.Actor)
	assert.Equal(t, "203.0.113.9", e.IP)
	assert.Equal(t, "req-7", e.RequestID)
	assert.Equal(t, audit.LevelPII, e.ComplianceLevel)
	assert.Contains(t, e.Device, "Chrome")
	assert.Contains(t, e.Device, "desktop")
	assert.Equal(t, time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC), e.CreatedAt)
}

func TestRecordWorkflowDefaults(t *testing.T) {
	store := memory.NewInMemoryStore()
	tr := New(store)
	appID := id.NewApplicationID()

	require.NoError(t, tr.RecordWorkflow(requestCtx(), audit.WorkflowEntry{
		ApplicationID: appID,
		Stage:         "registration_submitted",
		Action:        audit.ActionRegistrationCreated,
		ActorType:     id.ActorApplicant,
		ActorID:       "sub-1",
	}))

	entries, err := store.ListWorkflowByApplication(context.Background(), appID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.OutcomeSuccess, entries[0].Outcome)
	assert.Equal(t, "req-7", entries[0].RequestID)
}

func TestRecordRejectsIncompleteEntries(t *testing.T) {
	tr := New(memory.NewInMemoryStore())
	require.Error(t, tr.RecordWorkflow(context.Background(), audit.WorkflowEntry{Action: audit.ActionApplicationApproved}))
	require.Error(t, tr.RecordCompliance(context.Background(), audit.ComplianceEntry{Action: audit.ComplianceStatusChanged}))
}

func TestRecordComplianceFailsClosed(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	tr := New(failingStore{memory.NewInMemoryStore()}, WithMetrics(metrics))

	err := tr.RecordCompliance(context.Background(), audit.ComplianceEntry{
		Action:       audit.ComplianceIdentityActivated,
		ResourceType: audit.ResourceIdentity,
		ResourceID:   "identity-1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PersistFailures.WithLabelValues("compliance")))
}

func TestDeviceSummary(t *testing.T) {
	assert.Empty(t, DeviceSummary(""))
	mobile := "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	assert.Contains(t, DeviceSummary(mobile), "(mobile)")
	assert.Contains(t, DeviceSummary("Googlebot/2.1 (+http://www.google.com/bot.html)"), "bot")
}
