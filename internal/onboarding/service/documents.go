package service

import (
	"context"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/models"
	rbacmodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

// AddDocument attaches a document reference. Only the applicant who owns the
// application, or a principal with therapists.read, may attach documents.
func (s *Service) AddDocument(ctx context.Context, principal id.Principal, appID id.ApplicationID, req *models.AddDocumentRequest) (*models.Document, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var doc *models.Document
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		app, err := s.loadApplication(ctx, appID)
		if err != nil {
			return err
		}
		actor, err := s.authorizeApplicationAccess(ctx, principal, app)
		if err != nil {
			return err
		}
		if app.State.IsTerminal() {
			return dErrors.New(dErrors.CodeConflict, "application is closed")
		}

		doc = &models.Document{
			ID:            id.NewDocumentID(),
			ApplicationID: app.ID,
			DocumentType:  models.DocumentType(req.DocumentType),
			URL:           req.URL,
			UploadedBy:    principal.SubjectID,
			CreatedAt:     requestcontext.Now(ctx),
		}
		if err := s.docs.Add(ctx, *doc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to store document")
		}
		err = s.recorder.RecordWorkflow(ctx, audit.WorkflowEntry{
			ApplicationID: app.ID,
			Stage:         string(app.State),
			Action:        audit.ActionDocumentAttached,
			ActorType:     actor,
			ActorID:       principal.SubjectID,
			Details: map[string]any{
				"document_id":   doc.ID.String(),
				"document_type": string(doc.DocumentType),
			},
		})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to record workflow entry")
		}
		return nil
	})
	if err != nil {
		return nil, storageError(err, "failed to attach document")
	}
	return doc, nil
}

// ListDocuments returns the documents of an application in upload order.
func (s *Service) ListDocuments(ctx context.Context, principal id.Principal, appID id.ApplicationID) ([]models.Document, error) {
	app, err := s.loadApplication(ctx, appID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeApplicationAccess(ctx, principal, app); err != nil {
		return nil, err
	}
	docs, err := s.docs.ListByApplication(ctx, appID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "failed to list documents")
	}
	return docs, nil
}

// authorizeApplicationAccess admits the owning applicant or a reviewer and
// reports which kind of actor the principal is.
func (s *Service) authorizeApplicationAccess(ctx context.Context, principal id.Principal, app *models.Application) (id.ActorType, error) {
	if principal.IsZero() {
		return "", dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if principal.SubjectID == app.ExternalSubjectID {
		return id.ActorApplicant, nil
	}
	ok, err := s.authz.HasPermission(ctx, principal, rbacmodels.PermTherapistsRead)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", dErrors.New(dErrors.CodeForbidden, "not allowed to access this application")
	}
	return id.ActorAdmin, nil
}
