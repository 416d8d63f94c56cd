// Package store persists role assignments and resolves them to permission grants.
package store

import (
	"context"
	"slices"
	"sync"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
)

// InMemoryStore keeps roles and assignments in maps. Roles are seeded from
// models.DefaultRoles.
type InMemoryStore struct {
	mu          sync.RWMutex
	roles       map[string][]models.Permission
	assignments map[string]map[string]models.Assignment
}

// NewInMemory constructs a store seeded with the default roles.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		roles:       models.DefaultRoles(),
		assignments: make(map[string]map[string]models.Assignment),
	}
}

func (s *InMemoryStore) GrantsFor(_ context.Context, principalID string) ([]models.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byRole := s.assignments[principalID]
	roles := make([]string, 0, len(byRole))
	for role := range byRole {
		roles = append(roles, role)
	}
	slices.Sort(roles)

	var grants []models.Grant
	for _, role := range roles {
		a := byRole[role]
		for _, p := range s.roles[role] {
			grants = append(grants, models.Grant{Role: role, Permission: p, ExpiresAt: a.ExpiresAt})
		}
	}
	return grants, nil
}

// AssignRole creates or replaces the assignment of a role to a principal.
func (s *InMemoryStore) AssignRole(_ context.Context, a models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[a.Role]; !ok {
		return sentinel.ErrNotFound
	}
	if s.assignments[a.PrincipalID] == nil {
		s.assignments[a.PrincipalID] = make(map[string]models.Assignment)
	}
	s.assignments[a.PrincipalID][a.Role] = a
	return nil
}
