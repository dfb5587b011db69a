package groupbuy

import (
	"testing"

	"github.com/groupbuy/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatus_IsValid(t *testing.T) {
	for _, s := range AllStatuses {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, Status("").IsValid())
	assert.False(t, Status("OPEN").IsValid())
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		// From draft
		{StatusDraft, StatusOpen, true},
		{StatusDraft, StatusCancelled, true},
		{StatusDraft, StatusFilled, false},
		// From pending_approval
		{StatusPendingApproval, StatusOpen, true},
		{StatusPendingApproval, StatusCancelled, true},
		{StatusPendingApproval, StatusFilled, false},
		// From open
		{StatusOpen, StatusFilled, true},
		{StatusOpen, StatusCancelled, true},
		{StatusOpen, StatusOrdering, false},
		{StatusOpen, StatusDraft, false},
		// Forward chain
		{StatusFilled, StatusOrdering, true},
		{StatusFilled, StatusOrdered, false},
		{StatusOrdering, StatusOrdered, true},
		{StatusOrdered, StatusShipped, true},
		{StatusOrdered, StatusDelivered, false},
		{StatusShipped, StatusDelivered, true},
		{StatusShipped, StatusCancelled, true},
		{StatusShipped, StatusOrdered, false},
		// Terminal
		{StatusDelivered, StatusCancelled, false},
		{StatusDelivered, StatusOpen, false},
		{StatusCancelled, StatusOpen, false},
		{StatusCancelled, StatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_AcceptsParticipants(t *testing.T) {
	assert.True(t, StatusOpen.AcceptsParticipants(JoinModePublic))
	assert.True(t, StatusOpen.AcceptsParticipants(JoinModeSeeding))
	assert.False(t, StatusPendingApproval.AcceptsParticipants(JoinModePublic))
	assert.True(t, StatusPendingApproval.AcceptsParticipants(JoinModeSeeding))
	for _, s := range []Status{StatusDraft, StatusFilled, StatusOrdering, StatusOrdered, StatusShipped, StatusDelivered, StatusCancelled} {
		assert.False(t, s.AcceptsParticipants(JoinModeSeeding), s)
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("filled")
	require.NoError(t, err)
	assert.Equal(t, StatusFilled, s)

	_, err = ParseStatus("bogus")
	assert.ErrorIs(t, err, shared.ErrValidation)
}
