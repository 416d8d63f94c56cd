package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/onboarding/models"
	id "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/sentinel"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newApp(subject, email string, created time.Time) *models.Application {
	return &models.Application{
		ID:                    id.NewApplicationID(),
		ExternalSubjectID:     subject,
		ExternalSubjectType:   "cognito",
		Email:                 email,
		Phone:                 "+15550100",
		FirstName:             "Ada",
		LastName:              "Byron",
		LicenseNumber:         "PSY-12345",
		LicenseState:          "CA",
		State:                 models.StateRegistrationSubmitted,
		BackgroundCheckStatus: models.BackgroundCheckNotStarted,
		CreatedAt:             created,
		UpdatedAt:             created,
	}
}

func TestCreate(t *testing.T) {
	ctx := context.Background()

	t.Run("second open application for a subject conflicts", func(t *testing.T) {
		s := NewInMemory()
		require.NoError(t, s.Create(ctx, newApp("sub-1", "a@example.com", base)))
		err := s.Create(ctx, newApp("sub-1", "b@example.com", base))
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("open email is unique case-insensitively", func(t *testing.T) {
		s := NewInMemory()
		require.NoError(t, s.Create(ctx, newApp("sub-1", "a@example.com", base)))
		err := s.Create(ctx, newApp("sub-2", "A@EXAMPLE.com", base))
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("rejected application does not block a new one", func(t *testing.T) {
		s := NewInMemory()
		old := newApp("sub-1", "a@example.com", base)
		old.State = models.StateRejected
		require.NoError(t, s.Create(ctx, old))
		require.NoError(t, s.Create(ctx, newApp("sub-1", "a@example.com", base.Add(time.Hour))))

		latest, err := s.FindLatestBySubject(ctx, "sub-1")
		require.NoError(t, err)
		assert.Equal(t, models.StateRegistrationSubmitted, latest.State)
	})
}

func TestClaimTransition(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	app := newApp("sub-1", "a@example.com", base)
	require.NoError(t, s.Create(ctx, app))

	claim := models.TransitionClaim{
		ApplicationID: app.ID,
		From:          models.StateRegistrationSubmitted,
		To:            models.StateDocumentsReview,
		ReviewedBy:    "admin-1",
		ReviewedAt:    base.Add(time.Minute),
	}
	require.NoError(t, s.ClaimTransition(ctx, claim))

	t.Run("stale from state is rejected", func(t *testing.T) {
		assert.ErrorIs(t, s.ClaimTransition(ctx, claim), sentinel.ErrInvalidState)
	})

	t.Run("review fields are recorded", func(t *testing.T) {
		got, err := s.FindByID(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StateDocumentsReview, got.State)
		assert.Equal(t, "admin-1", got.ReviewedBy)
		require.NotNil(t, got.ReviewedAt)
		assert.True(t, got.ReviewedAt.Equal(base.Add(time.Minute)))
	})

	t.Run("unknown application is not found", func(t *testing.T) {
		missing := claim
		missing.ApplicationID = id.NewApplicationID()
		assert.ErrorIs(t, s.ClaimTransition(ctx, missing), sentinel.ErrNotFound)
	})
}

func TestUpdatePendingOnlyBeforeReview(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	app := newApp("sub-1", "a@example.com", base)
	require.NoError(t, s.Create(ctx, app))

	edited := app.Clone()
	edited.FirstName = "Augusta"
	require.NoError(t, s.UpdatePending(ctx, edited))

	require.NoError(t, s.ClaimTransition(ctx, models.TransitionClaim{
		ApplicationID: app.ID,
		From:          models.StateRegistrationSubmitted,
		To:            models.StateDocumentsReview,
		ReviewedAt:    base,
	}))
	assert.ErrorIs(t, s.UpdatePending(ctx, edited), sentinel.ErrInvalidState)

	got, err := s.FindByID(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, "Augusta", got.FirstName)
	assert.Equal(t, models.StateDocumentsReview, got.State)
}

func TestOpenContactMatchesIgnoresOwnSubjectAndRejected(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	require.NoError(t, s.Create(ctx, newApp("sub-1", "a@example.com", base)))
	rejected := newApp("sub-2", "b@example.com", base)
	rejected.Phone = "+15550199"
	rejected.State = models.StateRejected
	require.NoError(t, s.Create(ctx, rejected))

	m, err := s.OpenContactMatches(ctx, "A@example.com", "+15550100", "sub-9")
	require.NoError(t, err)
	assert.True(t, m.Email)
	assert.True(t, m.Phone)

	m, err = s.OpenContactMatches(ctx, "a@example.com", "+15550100", "sub-1")
	require.NoError(t, err)
	assert.False(t, m.Any())

	m, err = s.OpenContactMatches(ctx, "b@example.com", "+15550199", "sub-9")
	require.NoError(t, err)
	assert.False(t, m.Any())
}

func TestListByStatesOrdersOldestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	newer := newApp("sub-1", "a@example.com", base.Add(time.Hour))
	older := newApp("sub-2", "b@example.com", base)
	done := newApp("sub-3", "c@example.com", base)
	done.State = models.StateApproved
	for _, app := range []*models.Application{newer, older, done} {
		require.NoError(t, s.Create(ctx, app))
	}

	got, err := s.ListByStates(ctx, models.OpenStates, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, older.ID, got[0].ID)
	assert.Equal(t, newer.ID, got[1].ID)

	got, err = s.ListByStates(ctx, models.OpenStates, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestFindLatestBySubjectBreaksCreationTies(t *testing.T) {
	ctx := context.Background()
	for range 20 {
		s := NewInMemory()
		rejected := newApp("sub-1", "a@example.com", base)
		rejected.State = models.StateRejected
		rejected.UpdatedAt = base.Add(time.Minute)
		require.NoError(t, s.Create(ctx, rejected))
		resubmitted := newApp("sub-1", "a@example.com", base)
		require.NoError(t, s.Create(ctx, resubmitted))

		latest, err := s.FindLatestBySubject(ctx, "sub-1")
		require.NoError(t, err)
		require.Equal(t, resubmitted.ID, latest.ID)
	}
}

func TestSnapshotRestore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	restore := s.Snapshot()
	require.NoError(t, s.Create(ctx, newApp("sub-1", "a@example.com", base)))
	restore()

	_, err := s.FindOpenBySubject(ctx, "sub-1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
