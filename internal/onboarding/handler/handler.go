// Package handler exposes the onboarding workflow over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/service"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/httputil"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

// Service is the onboarding workflow as used by the handlers.
type Service interface {
	CheckDuplicate(ctx context.Context, req *models.CheckDuplicateRequest) (*service.DuplicateResult, error)
	Register(ctx context.Context, req *models.RegisterRequest) (*service.RegisterResult, error)
	Status(ctx context.Context, subjectID string) (*service.StatusResult, error)
	ListPending(ctx context.Context, principal id.Principal, limit int) ([]*models.Application, error)
	Transition(ctx context.Context, appID id.ApplicationID, target models.WorkflowState, principal id.Principal, opts service.TransitionOptions) (*service.TransitionResult, error)
	Approve(ctx context.Context, appID id.ApplicationID, principal id.Principal, req *models.ApproveRequest) (*service.TransitionResult, error)
	Reject(ctx context.Context, appID id.ApplicationID, principal id.Principal, req *models.RejectRequest) (*service.TransitionResult, error)
	InitiateBackgroundCheck(ctx context.Context, appID id.ApplicationID, principal id.Principal) (*service.TransitionResult, error)
	WorkflowLog(ctx context.Context, principal id.Principal, appID id.ApplicationID) ([]audit.WorkflowEntry, error)
	AddDocument(ctx context.Context, principal id.Principal, appID id.ApplicationID, req *models.AddDocumentRequest) (*models.Document, error)
	ListDocuments(ctx context.Context, principal id.Principal, appID id.ApplicationID) ([]models.Document, error)
}

type Middleware = func(http.Handler) http.Handler

// Handler serves the onboarding endpoints.
type Handler struct {
	svc         Service
	logger      *slog.Logger
	requireAuth Middleware
	publicLimit Middleware
}

type Option func(*Handler)

// WithPublicRateLimit wraps the unauthenticated intake endpoints.
func WithPublicRateLimit(mw Middleware) Option {
	return func(h *Handler) {
		h.publicLimit = mw
	}
}

// New creates a Handler. requireAuth guards every non-public route.
func New(svc Service, logger *slog.Logger, requireAuth Middleware, opts ...Option) *Handler {
	h := &Handler{svc: svc, logger: logger, requireAuth: requireAuth}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the routes relative to the therapists base path.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.publicLimit != nil {
			r.Use(h.publicLimit)
		}
		r.Post("/check-duplicate", h.handleCheckDuplicate)
		r.Post("/register", h.handleRegister)
		r.Get("/status/{externalSubjectId}", h.handleStatus)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/pending", h.handlePending)
		r.Post("/{id}/approve", h.handleApprove)
		r.Post("/{id}/reject", h.handleReject)
		r.Post("/{id}/background-check", h.handleBackgroundCheck)
		r.Post("/{id}/transition", h.handleTransition)
		r.Get("/{id}/workflow-log", h.handleWorkflowLog)
		r.Post("/{id}/documents", h.handleAddDocument)
		r.Get("/{id}/documents", h.handleListDocuments)
	})
}

func (h *Handler) handleCheckDuplicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.CheckDuplicateRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	result, err := h.svc.CheckDuplicate(ctx, req)
	if err != nil {
		h.fail(w, r, "duplicate check failed", err)
		return
	}
	httputil.WriteJSON(w, r, http.StatusOK, result)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.RegisterRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	result, err := h.svc.Register(ctx, req)
	if err != nil {
		h.fail(w, r, "registration failed", err)
		return
	}
	status, message := http.StatusOK, "registration updated"
	if result.Created {
		status, message = http.StatusCreated, "registration received"
	}
	if result.Path == service.PathInvite {
		message = "invite redeemed"
	}
	httputil.WriteMessage(w, r, status, result, message)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.Status(r.Context(), chi.URLParam(r, "externalSubjectId"))
	if err != nil {
		h.fail(w, r, "status lookup failed", err)
		return
	}
	httputil.WriteJSON(w, r, http.StatusOK, result)
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.WriteError(w, r, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = n
	}
	ctx := r.Context()
	apps, err := h.svc.ListPending(ctx, requestcontext.Principal(ctx), limit)
	if err != nil {
		h.fail(w, r, "pending list failed", err)
		return
	}
	httputil.WriteJSON(w, r, http.StatusOK, apps)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	appID, ok := applicationID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	req := &models.ApproveRequest{}
	if r.ContentLength != 0 {
		decoded, ok := httputil.DecodeAndPrepare[models.ApproveRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
		if !ok {
			return
		}
		req = decoded
	}
	result, err := h.svc.Approve(ctx, appID, requestcontext.Principal(ctx), req)
	h.writeTransition(w, r, result, err)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	appID, ok := applicationID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.RejectRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	result, err := h.svc.Reject(ctx, appID, requestcontext.Principal(ctx), req)
	h.writeTransition(w, r, result, err)
}

func (h *Handler) handleBackgroundCheck(w http.ResponseWriter, r *http.Request) {
	appID, ok := applicationID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	result, err := h.svc.InitiateBackgroundCheck(ctx, appID, requestcontext.Principal(ctx))
	h.writeTransition(w, r, result, err)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request) {
	appID, ok := applicationID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.TransitionRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	result, err := h.svc.Transition(ctx, appID, models.WorkflowState(req.TargetState),
		requestcontext.Principal(ctx), service.TransitionOptions{Reason: req.Reason})
	h.writeTransition(w, r, result, err)
}

func (h *Handler) writeTransition(w http.ResponseWriter, r *http.Request, result *service.TransitionResult, err error) {
	if err != nil {
		h.fail(w, r, "transition failed", err)
		return
	}
	message := "application moved to " + string(result.To)
	if result.AlreadyApplied {
		message = "application already " + string(result.To)
	}
	httputil.WriteMessage(w, r, http.StatusOK, result, message)
}

func (h *Handler) handleWorkflowLog(w http.ResponseWriter, r *http.Request) {
	appID, ok := applicationID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	entries, err := h.svc.WorkflowLog(ctx, requestcontext.Principal(ctx), appID)
	if err != nil {
		h.fail(w, r, "workflow log failed", err)
		return
	}
	httputil.WriteJSON(w, r, http.StatusOK, toWorkflowResponses(entries))
}

func (h *Handler) handleAddDocument(w http.ResponseWriter, r *http.Request) {
	appID, ok := applicationID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	req, ok := httputil.DecodeAndPrepare[models.AddDocumentRequest](w, r, h.logger, ctx, requestcontext.RequestID(ctx))
	if !ok {
		return
	}
	doc, err := h.svc.AddDocument(ctx, requestcontext.Principal(ctx), appID, req)
	if err != nil {
		h.fail(w, r, "document upload failed", err)
		return
	}
	httputil.WriteJSON(w, r, http.StatusCreated, doc)
}

func (h *Handler) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	appID, ok := applicationID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	docs, err := h.svc.ListDocuments(ctx, requestcontext.Principal(ctx), appID)
	if err != nil {
		h.fail(w, r, "document list failed", err)
		return
	}
	httputil.WriteJSON(w, r, http.StatusOK, docs)
}

// fail logs server-side failures at error level and client mistakes at warn.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	ctx := r.Context()
	attrs := []any{"request_id", requestcontext.RequestID(ctx), "error", err}
	if status := dErrors.ToHTTPStatus(dErrors.CodeOf(err)); status >= http.StatusInternalServerError {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.WarnContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, r, err)
}

func applicationID(w http.ResponseWriter, r *http.Request) (id.ApplicationID, bool) {
	appID, err := id.ParseApplicationID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return id.ApplicationID{}, false
	}
	return appID, true
}
