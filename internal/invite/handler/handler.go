// Package handler exposes organization invite management over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/models"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/httputil"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

// Service defines the interface for invite operations.
type Service interface {
	CreateInvite(ctx context.Context, principal id.Principal, req *models.CreateInviteRequest) (*models.Invite, error)
	ListInvites(ctx context.Context, principal id.Principal, organizationID string) ([]*models.Invite, error)
}

// Handler handles invite endpoints.
type Handler struct {
	svc         Service
	logger      *slog.Logger
	requireAuth func(http.Handler) http.Handler
}

// New creates a new invite Handler.
func New(svc Service, logger *slog.Logger, requireAuth func(http.Handler) http.Handler) *Handler {
	return &Handler{svc: svc, logger: logger, requireAuth: requireAuth}
}

// Register mounts the invite routes under the therapists base path.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/organization/invites", h.handleCreate)
		r.Get("/organization/invites", h.handleList)
	})
}

// createInviteBody checks the request shape; expiry and limits are checked by
// the service against the request time.
type createInviteBody struct {
	models.CreateInviteRequest
}

func (b *createInviteBody) Validate() error {
	if strings.TrimSpace(b.OrganizationID) == "" {
		return dErrors.New(dErrors.CodeValidation, "organization_id is required")
	}
	return nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	body, ok := httputil.DecodeAndPrepare[createInviteBody](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	inv, err := h.svc.CreateInvite(ctx, requestcontext.Principal(ctx), &body.CreateInviteRequest)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to create invite", "request_id", requestID, "error", err)
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteMessage(w, r, http.StatusCreated, inv, "invite created")
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	invites, err := h.svc.ListInvites(ctx, requestcontext.Principal(ctx), r.URL.Query().Get("organization_id"))
	if err != nil {
		h.logger.WarnContext(ctx, "failed to list invites", "request_id", requestcontext.RequestID(ctx), "error", err)
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, r, http.StatusOK, invites)
}
