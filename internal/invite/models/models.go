// Package models defines organization invites and the requests that create and
// redeem them.
package models

import (
	"strings"
	"time"

	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/email"
	pkgstrings "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/strings"
)

const (
	MaxUsesLimit  = 10000
	maxCodeLength = 64
)

type InviteStatus string

const (
	StatusActive   InviteStatus = "active"
	StatusUsed     InviteStatus = "used"
	StatusExpired  InviteStatus = "expired"
	StatusDisabled InviteStatus = "disabled"
)

// Invite lets members of an organization skip review.
//
// Invariants:
//   - 0 <= CurrentUses <= MaxUses, and MaxUses > 0
//   - CurrentUses only grows
//   - Status becomes used when CurrentUses reaches MaxUses
type Invite struct {
	ID             id.InviteID       `json:"id"`
	Code           string            `json:"code"`
	OrganizationID id.OrganizationID `json:"organization_id"`
	MaxUses        int               `json:"max_uses"`
	CurrentUses    int               `json:"current_uses"`
	Status         InviteStatus      `json:"status"`
	ExpiresAt      *time.Time        `json:"expires_at,omitempty"`
	CreatedBy      string            `json:"created_by"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// CanRedeem checks status, expiry and remaining uses as of now.
func (i *Invite) CanRedeem(now time.Time) error {
	if i.Status != StatusActive {
		return dErrors.New(dErrors.CodeConflict, "invite no longer valid")
	}
	if i.IsExpired(now) {
		return dErrors.New(dErrors.CodeConflict, "invite no longer valid")
	}
	if i.RemainingUses() == 0 {
		return dErrors.New(dErrors.CodeConflict, "invite no longer valid")
	}
	return nil
}

// IsExpired reports whether the invite expired at or before now.
func (i *Invite) IsExpired(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

// EffectiveStatus reports an active invite past its expiry as expired. The
// stored status is never rewritten on expiry.
func (i *Invite) EffectiveStatus(now time.Time) InviteStatus {
	if i.Status == StatusActive && i.IsExpired(now) {
		return StatusExpired
	}
	return i.Status
}

// RemainingUses never goes below zero.
func (i *Invite) RemainingUses() int {
	return max(i.MaxUses-i.CurrentUses, 0)
}

// ApplyRedemption increments the use count and flips the status when the last
// use is consumed.
func (i *Invite) ApplyRedemption(now time.Time) {
	i.CurrentUses++
	if i.CurrentUses >= i.MaxUses {
		i.Status = StatusUsed
	}
	i.UpdatedAt = now
}

// ApplicantData is the identity information supplied with an invite redemption.
type ApplicantData struct {
	ExternalSubjectID   string `json:"external_subject_id"`
	ExternalSubjectType string `json:"external_subject_type"`
	Email               string `json:"email"`
	Phone               string `json:"phone,omitempty"`
	FirstName           string `json:"first_name"`
	LastName            string `json:"last_name"`
}

func (a *ApplicantData) Validate() error {
	a.ExternalSubjectID = strings.TrimSpace(a.ExternalSubjectID)
	a.ExternalSubjectType = strings.TrimSpace(a.ExternalSubjectType)
	a.Email = email.Normalize(a.Email)
	a.Phone = pkgstrings.NormalizePhone(a.Phone)
	a.FirstName = strings.TrimSpace(a.FirstName)
	a.LastName = strings.TrimSpace(a.LastName)
	if a.ExternalSubjectID == "" {
		return dErrors.New(dErrors.CodeValidation, "external_subject_id is required")
	}
	if !email.IsValid(a.Email) {
		return dErrors.New(dErrors.CodeValidation, "email is invalid")
	}
	if a.FirstName == "" && a.LastName == "" {
		a.FirstName, a.LastName = email.DeriveNameFromEmail(a.Email)
	}
	return nil
}

// CreateInviteRequest creates an invite for an organization. Code is generated
// when empty.
type CreateInviteRequest struct {
	OrganizationID string     `json:"organization_id"`
	MaxUses        int        `json:"max_uses"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Code           string     `json:"code,omitempty"`

	organizationID id.OrganizationID
}

func (r *CreateInviteRequest) Validate(now time.Time) error {
	r.OrganizationID = strings.TrimSpace(r.OrganizationID)
	r.Code = NormalizeCode(r.Code)
	orgID, err := id.ParseOrganizationID(r.OrganizationID)
	if err != nil {
		return err
	}
	r.organizationID = orgID
	if r.MaxUses == 0 {
		r.MaxUses = 1
	}
	if r.MaxUses < 0 || r.MaxUses > MaxUsesLimit {
		return dErrors.New(dErrors.CodeValidation, "max_uses must be between 1 and 10000")
	}
	if r.ExpiresAt != nil && !r.ExpiresAt.After(now) {
		return dErrors.New(dErrors.CodeValidation, "expires_at must be in the future")
	}
	if len(r.Code) > maxCodeLength {
		return dErrors.New(dErrors.CodeValidation, "code is too long")
	}
	return nil
}

// Organization returns the parsed organization id. Valid after Validate.
func (r *CreateInviteRequest) Organization() id.OrganizationID {
	return r.organizationID
}

// NormalizeCode trims and upper-cases an invite code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
