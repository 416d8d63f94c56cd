// Package store persists organization invites.
package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/invite/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/storage"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
)

type InMemoryStore struct {
	mu      sync.RWMutex
	invites map[id.InviteID]models.Invite
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{invites: make(map[id.InviteID]models.Invite)}
}

func (s *InMemoryStore) Create(_ context.Context, invite *models.Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.invites {
		if existing.Code == invite.Code {
			return sentinel.ErrConflict
		}
	}
	s.invites[invite.ID] = cloneInvite(*invite)
	return nil
}

func (s *InMemoryStore) FindByCode(_ context.Context, code string) (*models.Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invites {
		if inv.Code == code {
			out := cloneInvite(inv)
			return &out, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// IncrementUse consumes one use if the invite is still active, unexpired and has
// uses left at now. Otherwise sentinel.ErrInvalidState.
func (s *InMemoryStore) IncrementUse(_ context.Context, inviteID id.InviteID, now time.Time) (*models.Invite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invites[inviteID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if inv.CanRedeem(now) != nil {
		return nil, sentinel.ErrInvalidState
	}
	inv.ApplyRedemption(now)
	s.invites[inviteID] = inv
	out := cloneInvite(inv)
	return &out, nil
}

func (s *InMemoryStore) ListByOrganization(_ context.Context, orgID id.OrganizationID) ([]*models.Invite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*models.Invite{}
	for _, inv := range s.invites {
		if inv.OrganizationID == orgID {
			c := cloneInvite(inv)
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *models.Invite) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

func (s *InMemoryStore) Snapshot() func() {
	s.mu.RLock()
	saved := storage.CloneMap(s.invites)
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.invites = saved
	}
}

func cloneInvite(inv models.Invite) models.Invite {
	if inv.ExpiresAt != nil {
		t := *inv.ExpiresAt
		inv.ExpiresAt = &t
	}
	return inv
}
