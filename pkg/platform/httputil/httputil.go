// Package httputil holds the JSON envelope helpers every handler writes through.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/requestcontext"
)

// MaxBodyBytes bounds every decoded request body.
const MaxBodyBytes = 1 << 20

// RetryAfterSeconds is advertised on retryable failures.
const RetryAfterSeconds = 1

// Envelope is the uniform response shape.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// Validatable is implemented by request structs that normalize and check themselves.
type Validatable interface {
	Validate() error
}

// WriteJSON writes data inside a success envelope.
func WriteJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeEnvelope(w, status, Envelope{
		Success:   true,
		Data:      data,
		RequestID: requestIDOf(r),
	})
}

// WriteMessage writes a success envelope with data and a human-readable message.
func WriteMessage(w http.ResponseWriter, r *http.Request, status int, data any, message string) {
	writeEnvelope(w, status, Envelope{
		Success:   true,
		Data:      data,
		Message:   message,
		RequestID: requestIDOf(r),
	})
}

// WriteError maps err to a status and writes a failure envelope.
// Messages of internal errors are never exposed.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	code := dErrors.CodeOf(err)
	status := dErrors.ToHTTPStatus(code)

	env := Envelope{
		Success:   false,
		Error:     string(code),
		RequestID: requestIDOf(r),
	}
	if de, ok := dErrors.As(err); ok && code != dErrors.CodeInternal {
		env.Message = de.Message
	}
	if dErrors.Retryable(err) && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", strconv.Itoa(RetryAfterSeconds))
	}
	writeEnvelope(w, status, env)
}

// DecodeAndPrepare decodes the body into T and validates it. On failure it writes
// the error response and returns ok=false.
func DecodeAndPrepare[T any, PT interface {
	*T
	Validatable
}](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (*T, bool) {
	req := PT(new(T))
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(req); err != nil {
		var maxErr *http.MaxBytesError
		msg := "invalid JSON body"
		switch {
		case errors.As(err, &maxErr):
			msg = "request body too large"
		case errors.Is(err, io.EOF):
			msg = "request body is required"
		}
		logger.WarnContext(ctx, "failed to decode request", "request_id", requestID, "error", err)
		WriteError(w, r, dErrors.New(dErrors.CodeBadRequest, msg))
		return nil, false
	}
	if err := req.Validate(); err != nil {
		logger.WarnContext(ctx, "invalid request", "request_id", requestID, "error", err)
		WriteError(w, r, err)
		return nil, false
	}
	return (*T)(req), true
}

func requestIDOf(r *http.Request) string {
	if r == nil {
		return ""
	}
	return requestcontext.RequestID(r.Context())
}

func writeEnvelope(w http.ResponseWriter, status int, env Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}
