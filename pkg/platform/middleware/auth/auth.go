package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/httputil"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

// JWTValidator defines the interface for validating bearer tokens issued by the
// external identity provider.
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator.
// Roles are informational; authorization resolves permissions from role assignments.
type JWTClaims struct {
	SubjectID   string
	SubjectType string
	Email       string
	Roles       []string
}

// Principal converts validated claims into the request principal.
func (c *JWTClaims) Principal() id.Principal {
	return id.Principal{
		SubjectID:   c.SubjectID,
		SubjectType: c.SubjectType,
		Email:       c.Email,
		Roles:       c.Roles,
	}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// authenticated principal in the request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := bearerToken(r)
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, r, dErrors.New(dErrors.CodeUnauthorized, "missing or invalid Authorization header"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				httputil.WriteError(w, r, dErrors.New(dErrors.CodeUnauthorized, "invalid or expired token"))
				return
			}

			principal := claims.Principal()
			if principal.IsZero() {
				httputil.WriteError(w, r, dErrors.New(dErrors.CodeUnauthorized, "token has no subject"))
				return
			}

			next.ServeHTTP(w, r.WithContext(requestcontext.WithPrincipal(ctx, principal)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
