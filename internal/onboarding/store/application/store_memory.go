// Package application stores provisional applications.
package application

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	identitymodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/identity/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/models"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/storage"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
)

// InMemoryStore mirrors the postgres partial unique indexes: one non-rejected
// application per subject and per email.
type InMemoryStore struct {
	mu   sync.RWMutex
	apps map[id.ApplicationID]*models.Application
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{apps: make(map[id.ApplicationID]*models.Application)}
}

func (s *InMemoryStore) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.apps[app.ID]; exists {
		return sentinel.ErrConflict
	}
	if s.openClash(app) {
		return sentinel.ErrConflict
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

// UpdatePending overwrites an application that is still registration_submitted.
func (s *InMemoryStore) UpdatePending(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.apps[app.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.State != models.StateRegistrationSubmitted {
		return sentinel.ErrInvalidState
	}
	if s.openClash(app) {
		return sentinel.ErrConflict
	}
	updated := app.Clone()
	updated.State = current.State
	updated.CreatedAt = current.CreatedAt
	s.apps[app.ID] = updated
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return app.Clone(), nil
}

func (s *InMemoryStore) FindOpenBySubject(_ context.Context, subjectID string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, app := range s.apps {
		if app.ExternalSubjectID == subjectID && app.State != models.StateRejected {
			return app.Clone(), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// FindLatestBySubject returns the most recently created application of any state.
func (s *InMemoryStore) FindLatestBySubject(_ context.Context, subjectID string) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Application
	for _, app := range s.apps {
		if app.ExternalSubjectID != subjectID {
			continue
		}
		if latest == nil || newer(app, latest) {
			latest = app
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return latest.Clone(), nil
}

// newer orders by creation time, then prefers an open application over a rejected
// one, then the later update, then the id. Matches the postgres ORDER BY.
func newer(a, b *models.Application) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	if aOpen, bOpen := a.State != models.StateRejected, b.State != models.StateRejected; aOpen != bOpen {
		return aOpen
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID.String() > b.ID.String()
}

// OpenContactMatches reports whether a non-rejected application of another subject
// uses email or phone. Empty values never match.
func (s *InMemoryStore) OpenContactMatches(_ context.Context, email, phone, excludeSubjectID string) (identitymodels.ContactMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var m identitymodels.ContactMatch
	for _, app := range s.apps {
		if app.State == models.StateRejected || app.ExternalSubjectID == excludeSubjectID {
			continue
		}
		if email != "" && strings.EqualFold(app.Email, email) {
			m.Email = true
		}
		if phone != "" && app.Phone == phone {
			m.Phone = true
		}
	}
	return m, nil
}

// ClaimTransition applies claim only if the application is still in claim.From
// and not terminal. Otherwise sentinel.ErrInvalidState.
func (s *InMemoryStore) ClaimTransition(_ context.Context, claim models.TransitionClaim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[claim.ApplicationID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if app.State != claim.From || app.State.IsTerminal() {
		return sentinel.ErrInvalidState
	}
	updated := app.Clone()
	updated.State = claim.To
	updated.ReviewedBy = claim.ReviewedBy
	reviewedAt := claim.ReviewedAt
	updated.ReviewedAt = &reviewedAt
	if claim.RejectionReason != "" {
		updated.RejectionReason = claim.RejectionReason
	}
	if claim.BackgroundCheckStatus != "" {
		updated.BackgroundCheckStatus = claim.BackgroundCheckStatus
	}
	updated.UpdatedAt = claim.ReviewedAt
	s.apps[claim.ApplicationID] = updated
	return nil
}

// FinalizeApproval records the approver and the activated identity on an approved
// application that has not been finalized yet.
func (s *InMemoryStore) FinalizeApproval(_ context.Context, appID id.ApplicationID, approvedBy string, approvedAt time.Time, identityID id.IdentityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	app, ok := s.apps[appID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if app.State != models.StateApproved || app.IdentityID != nil {
		return sentinel.ErrInvalidState
	}
	updated := app.Clone()
	updated.ApprovedBy = approvedBy
	updated.ApprovedAt = &approvedAt
	updated.IdentityID = &identityID
	updated.UpdatedAt = approvedAt
	s.apps[appID] = updated
	return nil
}

// ListByStates returns applications in any of states, oldest first.
func (s *InMemoryStore) ListByStates(_ context.Context, states []models.WorkflowState, limit int) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Application
	for _, app := range s.apps {
		if slices.Contains(states, app.State) {
			out = append(out, app.Clone())
		}
	}
	slices.SortFunc(out, func(a, b *models.Application) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Snapshot implements storage.Snapshotter. Stored applications are replaced,
// never mutated, so a shallow map copy is enough.
func (s *InMemoryStore) Snapshot() func() {
	s.mu.RLock()
	saved := storage.CloneMap(s.apps)
	s.mu.RUnlock()
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.apps = saved
	}
}

func (s *InMemoryStore) openClash(app *models.Application) bool {
	if app.State == models.StateRejected {
		return false
	}
	for _, other := range s.apps {
		if other.ID == app.ID || other.State == models.StateRejected {
			continue
		}
		if other.ExternalSubjectID == app.ExternalSubjectID || strings.EqualFold(other.Email, app.Email) {
			return true
		}
	}
	return false
}
