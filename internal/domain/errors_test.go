package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerationError(t *testing.T) {
	cause := errors.New("quota exceeded")
	err := fmt.Errorf("persona a: %w", &GenerationError{Kind: KindRateLimited, StatusCode: 429, Err: cause})

	require.Equal(t, KindRateLimited, KindOf(err))
	require.True(t, IsRetryable(err))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "status 429")

	empty := &GenerationError{Kind: KindEmptyResponse}
	require.False(t, IsRetryable(empty))
	require.Equal(t, "generation failed (empty_response)", empty.Error())

	require.Equal(t, KindOther, KindOf(cause))
	require.False(t, IsRetryable(cause))
	require.True(t, (&GenerationError{Kind: KindTransientServer}).Retryable())
}

func TestRosterHelpers(t *testing.T) {
	roster := []Participant{
		{ID: "a", Name: "Alpha"},
		{ID: "user-1", Name: "You", IsUser: true},
		{ID: "b", Name: "Beta"},
	}

	user, ok := UserOf(roster)
	require.True(t, ok)
	require.Equal(t, ParticipantID("user-1"), user.ID)

	personas := Personas(roster)
	require.Len(t, personas, 2)
	require.Equal(t, ParticipantID("a"), personas[0].ID)
	require.Equal(t, ParticipantID("b"), personas[1].ID)

	_, ok = FindParticipant(roster, "zzz")
	require.False(t, ok)

	_, ok = UserOf(personas)
	require.False(t, ok)
}
