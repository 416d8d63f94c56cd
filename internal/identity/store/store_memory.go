// Package store persists identities, professional profiles and verification records.
package store

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/identity/models"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
)

// InMemoryStore keeps the three production tables in maps keyed by identity id.
// It enforces the same uniqueness rules as the postgres schema.
type InMemoryStore struct {
	mu            sync.RWMutex
	identities    map[id.IdentityID]models.Identity
	profiles      map[id.IdentityID]models.ProfessionalProfile
	verifications map[id.IdentityID]models.VerificationRecord
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		identities:    make(map[id.IdentityID]models.Identity),
		profiles:      make(map[id.IdentityID]models.ProfessionalProfile),
		verifications: make(map[id.IdentityID]models.VerificationRecord),
	}
}

func (s *InMemoryStore) FindByID(_ context.Context, identityID id.IdentityID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ident, ok := s.identities[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &ident, nil
}

func (s *InMemoryStore) FindByExternalSubject(_ context.Context, subjectID, subjectType string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ident, ok := s.bySubject(subjectID, subjectType); ok {
		return &ident, nil
	}
	return nil, sentinel.ErrNotFound
}

// ContactMatches reports whether email (case-insensitive) or phone belongs to an identity.
// Empty values never match.
func (s *InMemoryStore) ContactMatches(_ context.Context, email, phone string) (models.ContactMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var m models.ContactMatch
	for _, ident := range s.identities {
		if email != "" && strings.EqualFold(ident.Email, email) {
			m.Email = true
		}
		if phone != "" && ident.Phone == phone {
			m.Phone = true
		}
	}
	return m, nil
}

// UpsertIdentity creates the identity or, when one exists for the same external
// subject, activates it. The stored record is returned.
func (s *InMemoryStore) UpsertIdentity(_ context.Context, ident *models.Identity) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.bySubject(ident.ExternalSubjectID, ident.ExternalSubjectType); ok {
		existing.Status = ident.Status
		existing.Verified = ident.Verified
		if ident.OrganizationID != nil {
			org := *ident.OrganizationID
			existing.OrganizationID = &org
		}
		existing.UpdatedAt = ident.UpdatedAt
		s.identities[existing.ID] = existing
		return &existing, nil
	}

	for _, other := range s.identities {
		if strings.EqualFold(other.Email, ident.Email) {
			return nil, sentinel.ErrConflict
		}
	}
	stored := *ident
	if stored.OrganizationID != nil {
		org := *stored.OrganizationID
		stored.OrganizationID = &org
	}
	s.identities[stored.ID] = stored
	return &stored, nil
}

func (s *InMemoryStore) UpsertProfile(_ context.Context, p *models.ProfessionalProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[p.IdentityID]; !ok {
		return sentinel.ErrNotFound
	}
	stored := cloneProfile(*p)
	if existing, ok := s.profiles[p.IdentityID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	s.profiles[p.IdentityID] = stored
	return nil
}

func (s *InMemoryStore) FindProfile(_ context.Context, identityID id.IdentityID) (*models.ProfessionalProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := cloneProfile(p)
	return &out, nil
}

func (s *InMemoryStore) UpsertVerification(_ context.Context, v *models.VerificationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[v.IdentityID]; !ok {
		return sentinel.ErrNotFound
	}
	stored := *v
	if existing, ok := s.verifications[v.IdentityID]; ok {
		stored.CreatedAt = existing.CreatedAt
	}
	s.verifications[v.IdentityID] = stored
	return nil
}

func (s *InMemoryStore) FindVerification(_ context.Context, identityID id.IdentityID) (*models.VerificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.verifications[identityID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return &v, nil
}

// Counts returns the number of identities, profiles and verification records.
func (s *InMemoryStore) Counts() (identities, profiles, verifications int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.identities), len(s.profiles), len(s.verifications)
}

// Snapshot implements storage.Snapshotter.
func (s *InMemoryStore) Snapshot() func() {
	s.mu.RLock()
	identities := maps.Clone(s.identities)
	profiles := maps.Clone(s.profiles)
	verifications := maps.Clone(s.verifications)
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.identities = identities
		s.profiles = profiles
		s.verifications = verifications
	}
}

func (s *InMemoryStore) bySubject(subjectID, subjectType string) (models.Identity, bool) {
	for _, ident := range s.identities {
		if ident.ExternalSubjectID == subjectID && ident.ExternalSubjectType == subjectType {
			return ident, true
		}
	}
	return models.Identity{}, false
}

func cloneProfile(p models.ProfessionalProfile) models.ProfessionalProfile {
	p.Specializations = slices.Clone(p.Specializations)
	p.TherapeuticApproaches = slices.Clone(p.TherapeuticApproaches)
	p.Languages = slices.Clone(p.Languages)
	p.SessionFormats = slices.Clone(p.SessionFormats)
	p.AgeGroups = slices.Clone(p.AgeGroups)
	p.ClientPopulations = slices.Clone(p.ClientPopulations)
	p.InsurancePanels = slices.Clone(p.InsurancePanels)
	p.Certifications = slices.Clone(p.Certifications)
	p.Details = maps.Clone(p.Details)
	return p
}
