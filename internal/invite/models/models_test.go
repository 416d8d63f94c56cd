package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
)

func TestCanRedeem(t *testing.T) {
	now := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	tests := []struct {
		name      string
		invite    Invite
		remaining int
		status    InviteStatus
		wantErr   bool
	}{
		{"fresh", Invite{MaxUses: 3, Status: StatusActive, ExpiresAt: &future}, 3, StatusActive, false},
		{"partly used", Invite{MaxUses: 3, CurrentUses: 2, Status: StatusActive}, 1, StatusActive, false},
		{"exhausted", Invite{MaxUses: 1, CurrentUses: 1, Status: StatusActive}, 0, StatusActive, true},
		{"past expiry", Invite{MaxUses: 3, Status: StatusActive, ExpiresAt: &expired}, 3, StatusExpired, true},
		{"used stays used after expiry", Invite{MaxUses: 1, CurrentUses: 1, Status: StatusUsed, ExpiresAt: &expired}, 0, StatusUsed, true},
		{"disabled", Invite{MaxUses: 3, Status: StatusDisabled}, 3, StatusDisabled, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.remaining, tt.invite.RemainingUses())
			assert.Equal(t, tt.status, tt.invite.EffectiveStatus(now))
			err := tt.invite.CanRedeem(now)
			if tt.wantErr {
				assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
