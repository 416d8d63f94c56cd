package handler

import (
	"time"

	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
)

// workflowEntryResponse is the wire form of a workflow log row.
type workflowEntryResponse struct {
	ID            int64            `json:"id"`
	ApplicationID id.ApplicationID `json:"application_id"`
	IdentityID    *id.IdentityID   `json:"identity_id,omitempty"`
	Stage         string           `json:"stage"`
	Action        string           `json:"action"`
	Outcome       string           `json:"outcome"`
	ActorType     string           `json:"actor_type"`
	ActorID       string           `json:"actor_id,omitempty"`
	Details       map[string]any   `json:"details,omitempty"`
	RequestID     string           `json:"request_id,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

func toWorkflowResponses(entries []audit.WorkflowEntry) []workflowEntryResponse {
	out := make([]workflowEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp := workflowEntryResponse{
			ID:            e.ID,
			ApplicationID: e.ApplicationID,
			Stage:         e.Stage,
			Action:        string(e.Action),
			Outcome:       string(e.Outcome),
			ActorType:     string(e.ActorType),
			ActorID:       e.ActorID,
			Details:       e.Details,
			RequestID:     e.RequestID,
			CreatedAt:     e.CreatedAt,
		}
		if !e.IdentityID.IsNil() {
			identityID := e.IdentityID
			resp.IdentityID = &identityID
		}
		out = append(out, resp)
	}
	return out
}
