package memory

import (
	"context"
	"slices"
	"sync"

	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
)

// InMemoryStore keeps both logs in append-only slices.
type InMemoryStore struct {
	mu         sync.RWMutex
	workflow   []audit.WorkflowEntry
	compliance []audit.ComplianceEntry
	nextID     int64
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) AppendWorkflow(_ context.Context, entry *audit.WorkflowEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry.ID = s.nextID
	s.workflow = append(s.workflow, cloneWorkflow(*entry))
	return nil
}

func (s *InMemoryStore) AppendCompliance(_ context.Context, entry *audit.ComplianceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	entry.ID = s.nextID
	s.compliance = append(s.compliance, *entry)
	return nil
}

func (s *InMemoryStore) ListWorkflowByApplication(_ context.Context, applicationID id.ApplicationID) ([]audit.WorkflowEntry, error) {
	return s.filterWorkflow(func(e audit.WorkflowEntry) bool { return e.ApplicationID == applicationID }), nil
}

func (s *InMemoryStore) ListWorkflowByIdentity(_ context.Context, identityID id.IdentityID) ([]audit.WorkflowEntry, error) {
	return s.filterWorkflow(func(e audit.WorkflowEntry) bool { return e.IdentityID == identityID }), nil
}

func (s *InMemoryStore) ListComplianceByResource(_ context.Context, resourceType, resourceID string) ([]audit.ComplianceEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.ComplianceEntry
	for _, e := range s.compliance {
		if e.ResourceType == resourceType && e.ResourceID == resourceID {
			out = append(out, e)
		}
	}
	sortCompliance(out)
	return out, nil
}

// AllWorkflow returns every workflow entry. Test helper.
func (s *InMemoryStore) AllWorkflow() []audit.WorkflowEntry {
	return s.filterWorkflow(func(audit.WorkflowEntry) bool { return true })
}

// AllCompliance returns every compliance entry. Test helper.
func (s *InMemoryStore) AllCompliance() []audit.ComplianceEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := slices.Clone(s.compliance)
	sortCompliance(out)
	return out
}

// Snapshot lets the store take part in in-memory transactions. Rolling back a
// transaction discards entries it appended.
func (s *InMemoryStore) Snapshot() func() {
	s.mu.RLock()
	workflowLen, complianceLen := len(s.workflow), len(s.compliance)
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.workflow = s.workflow[:workflowLen]
		s.compliance = s.compliance[:complianceLen]
	}
}

func (s *InMemoryStore) filterWorkflow(keep func(audit.WorkflowEntry) bool) []audit.WorkflowEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.WorkflowEntry
	for _, e := range s.workflow {
		if keep(e) {
			out = append(out, cloneWorkflow(e))
		}
	}
	slices.SortStableFunc(out, func(a, b audit.WorkflowEntry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
	return out
}

func sortCompliance(entries []audit.ComplianceEntry) {
	slices.SortStableFunc(entries, func(a, b audit.ComplianceEntry) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return int(a.ID - b.ID)
	})
}

func cloneWorkflow(e audit.WorkflowEntry) audit.WorkflowEntry {
	if e.Details != nil {
		details := make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		e.Details = details
	}
	return e
}
