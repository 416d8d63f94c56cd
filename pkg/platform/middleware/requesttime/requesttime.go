// Package requesttime pins one "now" per request so audit entries, expiry checks
// and domain timestamps written while serving it agree with each other.
package requesttime

import (
	"net/http"
	"time"

	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
