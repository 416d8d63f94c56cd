package domain

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseApplicationID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseApplicationID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseApplicationID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseApplicationID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, ApplicationID(validUUID), id)
	})
}

// TestTypeDistinction verifies typed IDs stay distinct even when built from the same UUID kind.
func TestTypeDistinction(t *testing.T) {
	applicationID := NewApplicationID()
	identityID := NewIdentityID()

	// var _ ApplicationID = identityID // compile error
	assert.NotEqual(t, uuid.UUID(applicationID), uuid.UUID(identityID))
}

// TestParseID_SecurityInvariants validates parsing rules at API entry points.
func TestParseID_SecurityInvariants(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"SQL injection attempt", "'; DROP TABLE identities;--", true},
		{"Path traversal", "../../../etc/passwd", true},
		{"Null byte injection", "550e8400\x00-e29b-41d4-a716-446655440000", true},
		{"Oversized input", strings.Repeat("a", 1000), true},
		{"Unicode zero-width space", "550e8400​-e29b-41d4-a716-446655440000", true},

		{"Empty string", "", true},
		{"Nil UUID", uuid.Nil.String(), true},
		{"Whitespace only", "   ", true},
		{"Uppercase valid UUID", "550E8400-E29B-41D4-A716-446655440000", false},

		{"Valid UUID lowercase", "550e8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseIdentityID(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestAllIDTypes_ConsistentBehavior ensures all ID types have identical parsing behavior.
func TestAllIDTypes_ConsistentBehavior(t *testing.T) {
	validUUID := uuid.New().String()
	invalidInputs := []string{"", "invalid", uuid.Nil.String()}

	t.Run("all accept valid UUID", func(t *testing.T) {
		_, errApp := ParseApplicationID(validUUID)
		_, errIdentity := ParseIdentityID(validUUID)
		_, errInvite := ParseInviteID(validUUID)
		_, errOrg := ParseOrganizationID(validUUID)
		_, errDoc := ParseDocumentID(validUUID)

		require.NoError(t, errApp)
		require.NoError(t, errIdentity)
		require.NoError(t, errInvite)
		require.NoError(t, errOrg)
		require.NoError(t, errDoc)
	})

	for _, input := range invalidInputs {
		t.Run("all reject: "+input, func(t *testing.T) {
			_, errApp := ParseApplicationID(input)
			_, errIdentity := ParseIdentityID(input)
			_, errInvite := ParseInviteID(input)
			_, errOrg := ParseOrganizationID(input)
			_, errDoc := ParseDocumentID(input)

			require.Error(t, errApp)
			require.Error(t, errIdentity)
			require.Error(t, errInvite)
			require.Error(t, errOrg)
			require.Error(t, errDoc)
		})
	}
}

func TestPrincipalIsZero(t *testing.T) {
	assert.True(t, Principal{}.IsZero())
	assert.True(t, Principal{SubjectID: "  "}.IsZero())
	assert.False(t, Principal{SubjectID: "sub-123"}.IsZero())
}

func TestIDsMarshalAsCanonicalStrings(t *testing.T) {
	raw := uuid.New()
	out, err := json.Marshal(struct {
		App ApplicationID  `json:"app"`
		Org OrganizationID `json:"org"`
	}{ApplicationID(raw), OrganizationID(raw)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"app":"`+raw.String()+`","org":"`+raw.String()+`"}`, string(out))

	var back ApplicationID
	require.NoError(t, json.Unmarshal([]byte(`"`+raw.String()+`"`), &back))
	assert.Equal(t, ApplicationID(raw), back)
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &back))
}
