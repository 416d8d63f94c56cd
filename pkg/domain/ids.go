// Package domain holds the typed identifiers and principal shared across modules.
package domain

import (
	"github.com/google/uuid"

	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
)

// Typed IDs keep an application id from being passed where an identity id is expected.
type (
	ApplicationID  uuid.UUID
	IdentityID     uuid.UUID
	InviteID       uuid.UUID
	OrganizationID uuid.UUID
	DocumentID     uuid.UUID
)

func (id ApplicationID) String() string  { return uuid.UUID(id).String() }
func (id IdentityID) String() string     { return uuid.UUID(id).String() }
func (id InviteID) String() string       { return uuid.UUID(id).String() }
func (id OrganizationID) String() string { return uuid.UUID(id).String() }
func (id DocumentID) String() string     { return uuid.UUID(id).String() }

func (id ApplicationID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }
func (id IdentityID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id InviteID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id OrganizationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id DocumentID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }

func NewApplicationID() ApplicationID { return ApplicationID(uuid.New()) }
func NewIdentityID() IdentityID       { return IdentityID(uuid.New()) }
func NewInviteID() InviteID           { return InviteID(uuid.New()) }
func NewDocumentID() DocumentID       { return DocumentID(uuid.New()) }

// parseUUID enforces the trust-boundary rule shared by every ID type:
// non-empty, well-formed and not the nil UUID.
func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind)
	}
	return parsed, nil
}

func ParseApplicationID(s string) (ApplicationID, error) {
	u, err := parseUUID(s, "application id")
	return ApplicationID(u), err
}

func ParseIdentityID(s string) (IdentityID, error) {
	u, err := parseUUID(s, "identity id")
	return IdentityID(u), err
}

func ParseInviteID(s string) (InviteID, error) {
	u, err := parseUUID(s, "invite id")
	return InviteID(u), err
}

func ParseOrganizationID(s string) (OrganizationID, error) {
	u, err := parseUUID(s, "organization id")
	return OrganizationID(u), err
}

func ParseDocumentID(s string) (DocumentID, error) {
	u, err := parseUUID(s, "document id")
	return DocumentID(u), err
}

// Typed IDs do not inherit uuid.UUID's methods, so text encoding is declared
// explicitly to keep JSON output in canonical string form.
func (id ApplicationID) MarshalText() ([]byte, error)  { return uuid.UUID(id).MarshalText() }
func (id IdentityID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }
func (id InviteID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id OrganizationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id DocumentID) MarshalText() ([]byte, error)     { return uuid.UUID(id).MarshalText() }

func (id *ApplicationID) UnmarshalText(b []byte) error  { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *IdentityID) UnmarshalText(b []byte) error     { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *InviteID) UnmarshalText(b []byte) error       { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *OrganizationID) UnmarshalText(b []byte) error { return unmarshalUUID(b, (*uuid.UUID)(id)) }
func (id *DocumentID) UnmarshalText(b []byte) error     { return unmarshalUUID(b, (*uuid.UUID)(id)) }

func unmarshalUUID(b []byte, dst *uuid.UUID) error {
	return dst.UnmarshalText(b)
}
