package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	cause := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"persistence", Persistence("create letter", cause), "persistence_failure: create letter: boom"},
		{"not found", NotFound("get letter", "letter l1 not found"), "not_found: get letter: letter l1 not found"},
		{"validation", Validation("content", "letter is empty"), "validation_failure: content: letter is empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.EqualError(t, tt.err, tt.want)
		})
	}
}

func TestIsMatchesWrappedKinds(t *testing.T) {
	cause := errors.New("disk full")
	err := fmt.Errorf("send: %w", Persistence("create letter", cause))

	require.True(t, Is(err, KindPersistence))
	require.False(t, Is(err, KindNotFound))
	require.ErrorIs(t, err, cause)
	require.False(t, Is(cause, KindPersistence))
}
