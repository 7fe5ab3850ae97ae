package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStep(t *testing.T) {
	s, err := ParseStep("pr-created")
	require.NoError(t, err)
	assert.Equal(t, StepPRCreated, s)

	_, err = ParseStep("invalid-jump")
	assert.ErrorIs(t, err, ErrUnknownStep)
}

func TestValidateTransitionAccepts(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		step Step
	}{
		{StatusPending, StatusInProgress, StepStartImplementation},
		{StatusDeferred, StatusInProgress, StepStartImplementation},
		{StatusInProgress, StatusDone, StepCompleteImplementation},
		{StatusInProgress, StatusReview, StepRequestReview},
		{StatusReview, StatusDone, StepApproveReview},
		{StatusInProgress, StatusDone, StepMerged},
		{StatusReview, StatusDone, StepMerged},
		{StatusDone, StatusPending, StepReopenTask},
		{StatusCancelled, StatusPending, StepReopenTask},
		{StatusPending, StatusDeferred, StepDeferTask},
		{StatusPending, StatusCancelled, StepCancelTask},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"→"+string(tt.to), func(t *testing.T) {
			res := ValidateTransition(tt.from, tt.to, tt.step)
			assert.True(t, res.Valid, "reason: %s", res.Reason)
		})
	}
}

func TestValidateTransitionRejectsWithOptions(t *testing.T) {
	res := ValidateTransition(StatusPending, StatusDone, Step("invalid-jump"))
	require.False(t, res.Valid)
	assert.NotEmpty(t, res.Reason)
	assert.Contains(t, res.ValidOptions, StatusInProgress)
	assert.Contains(t, res.ValidOptions, StatusDeferred)
	assert.NotContains(t, res.ValidOptions, StatusDone)
}

func TestValidateTransitionWrongTarget(t *testing.T) {
	// start-implementation applies to pending, but it moves to in-progress.
	res := ValidateTransition(StatusPending, StatusDone, StepStartImplementation)
	require.False(t, res.Valid)
	assert.Contains(t, res.Reason, "in-progress")
}

func TestValidateTransitionStepDoesNotApply(t *testing.T) {
	res := ValidateTransition(StatusDone, StatusReview, StepRequestReview)
	require.False(t, res.Valid)
	assert.Contains(t, res.ValidOptions, StatusPending, "done can only be reopened")
}
