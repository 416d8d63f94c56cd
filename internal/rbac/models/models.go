package models

import (
	"slices"
	"time"
)

// Permission is a named capability granted through roles.
type Permission string

const (
	PermTherapistsRead            Permission = "therapists.read"
	PermTherapistsReview          Permission = "therapists.review"
	PermTherapistsBackgroundCheck Permission = "therapists.background_check"
	PermTherapistsApprove         Permission = "therapists.approve"
	PermTherapistsReject          Permission = "therapists.reject"
	PermInvitesCreate             Permission = "organizations.invites.create"
	PermInvitesRead               Permission = "organizations.invites.read"
	PermAuditRead                 Permission = "audit.read"
)

// Seeded role names.
const (
	RoleSuperAdmin           = "super_admin"
	RoleVerificationReviewer = "verification_reviewer"
	RoleOrgAdmin             = "org_admin"
)

// DefaultRoles mirrors the roles seeded by the rbac migration.
func DefaultRoles() map[string][]Permission {
	return map[string][]Permission{
		RoleSuperAdmin: {
			PermTherapistsRead, PermTherapistsReview, PermTherapistsBackgroundCheck,
			PermTherapistsApprove, PermTherapistsReject, PermInvitesCreate,
			PermInvitesRead, PermAuditRead,
		},
		RoleVerificationReviewer: {
			PermTherapistsRead, PermTherapistsReview, PermTherapistsBackgroundCheck,
			PermTherapistsApprove, PermTherapistsReject, PermAuditRead,
		},
		RoleOrgAdmin: {PermInvitesCreate, PermInvitesRead},
	}
}

// Grant is one permission reachable through one role assignment.
type Grant struct {
	Role       string     `json:"role"`
	Permission Permission `json:"permission"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the grant's assignment is still in force at t.
func (g Grant) ActiveAt(t time.Time) bool {
	return g.ExpiresAt == nil || t.Before(*g.ExpiresAt)
}

// Assignment binds a principal to a role.
type Assignment struct {
	PrincipalID string
	Role        string
	GrantedBy   string
	ExpiresAt   *time.Time
	CreatedAt   time.Time
}

// PermissionSet is the effective permission union of a principal.
type PermissionSet map[Permission]struct{}

// Has reports whether p is in the set.
func (s PermissionSet) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Names returns the permissions sorted.
func (s PermissionSet) Names() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, string(p))
	}
	slices.Sort(out)
	return out
}

// EffectivePermissions unions the grants active at now.
func EffectivePermissions(grants []Grant, now time.Time) PermissionSet {
	set := make(PermissionSet, len(grants))
	for _, g := range grants {
		if g.ActiveAt(now) {
			set[g.Permission] = struct{}{}
		}
	}
	return set
}
