package testutil

import (
	"net/http"

	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

// WithPrincipal adds an authenticated caller to the request context.
// This simulates what the auth middleware would do for authenticated requests.
func WithPrincipal(req *http.Request, subjectID string, roles ...string) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), id.Principal{
		SubjectID:   subjectID,
		SubjectType: "cognito",
		Roles:       roles,
	})
	return req.WithContext(ctx)
}

// WithBearer sets the Authorization header.
func WithBearer(req *http.Request, token string) *http.Request {
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}
