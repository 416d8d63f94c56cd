package models

import (
	"testing"

	"github.com/stretchr/testify/assert"

	rbacmodels "github.com/mindhelpbyus/ataraxia-next-sub003/internal/rbac/models"
	dErrors "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/domain-errors"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		from WorkflowState
		to   WorkflowState
		code dErrors.Code
	}{
		{StateRegistrationSubmitted, StateDocumentsReview, ""},
		{StateRegistrationSubmitted, StateFinalReview, ""},
		{StateRegistrationSubmitted, StateApproved, ""},
		{StateDocumentsReview, StateBackgroundCheck, ""},
		{StateBackgroundCheck, StateRejected, ""},
		{StateFinalReview, StateApproved, ""},
		{StateDocumentsReview, StateDocumentsReview, dErrors.CodeInvariantViolation},
		{StateFinalReview, StateDocumentsReview, dErrors.CodeInvariantViolation},
		{StateDocumentsReview, StateRegistrationSubmitted, dErrors.CodeInvariantViolation},
		{StateApproved, StateRejected, dErrors.CodeInvariantViolation},
		{StateRejected, StateDocumentsReview, dErrors.CodeInvariantViolation},
		{StateApproved, StateApproved, dErrors.CodeInvariantViolation},
		{StateFinalReview, WorkflowState("archived"), dErrors.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := tt.from.CheckTransition(tt.to)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, dErrors.HasCode(err, tt.code), "got %v", err)
		})
	}
}

func TestRegistrationStatusDerivedFromState(t *testing.T) {
	assert.Equal(t, "pending_review", StateRegistrationSubmitted.RegistrationStatus())
	for _, s := range []WorkflowState{StateDocumentsReview, StateBackgroundCheck, StateFinalReview, StateApproved, StateRejected} {
		assert.Equal(t, string(s), s.RegistrationStatus())
	}
}

func TestRequiredPermission(t *testing.T) {
	assert.Equal(t, rbacmodels.PermTherapistsReview, StateDocumentsReview.RequiredPermission())
	assert.Equal(t, rbacmodels.PermTherapistsBackgroundCheck, StateBackgroundCheck.RequiredPermission())
	assert.Equal(t, rbacmodels.PermTherapistsReview, StateFinalReview.RequiredPermission())
	assert.Equal(t, rbacmodels.PermTherapistsApprove, StateApproved.RequiredPermission())
	assert.Equal(t, rbacmodels.PermTherapistsReject, StateRejected.RequiredPermission())
}

func TestParseWorkflowState(t *testing.T) {
	s, err := ParseWorkflowState("final_review")
	assert.NoError(t, err)
	assert.Equal(t, StateFinalReview, s)

	_, err = ParseWorkflowState("pending_review")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
