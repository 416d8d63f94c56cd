package audit

import (
	"context"

	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
)

// Store persists both logs. There are no update or delete operations; entries are
// returned ordered by (created_at, id).
type Store interface {
	AppendWorkflow(ctx context.Context, entry *WorkflowEntry) error
	AppendCompliance(ctx context.Context, entry *ComplianceEntry) error
	ListWorkflowByApplication(ctx context.Context, applicationID id.ApplicationID) ([]WorkflowEntry, error)
	ListWorkflowByIdentity(ctx context.Context, identityID id.IdentityID) ([]WorkflowEntry, error)
	ListComplianceByResource(ctx context.Context, resourceType, resourceID string) ([]ComplianceEntry, error)
}
