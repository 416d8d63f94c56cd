package testutil

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnvelopeCanBeDecodedAfterAssertions(t *testing.T) {
	rr := httptest.NewRecorder()
	rr.WriteHeader(http.StatusConflict)
	_, _ = rr.WriteString(`{"success":false,"error":"conflict","message":"email is already registered"}`)

	AssertStatusAndError(t, rr, http.StatusConflict, "conflict")
	env := UnmarshalEnvelope(t, rr)

	assert.Equal(t, "email is already registered", env.Message)
	assert.NotEmpty(t, ReadBody(t, rr))
}
