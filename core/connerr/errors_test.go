package connerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("connect: %w", ServerNotFound("xx9"))

	assert.True(t, errors.Is(err, ErrServerNotFound))
	assert.False(t, errors.Is(err, ErrNoServerFound))
	assert.Equal(t, KindServerNotFound, KindOf(err))
	assert.Contains(t, err.Error(), `"xx9"`)
}

func TestError_MessageCarriesAttemptsAndTried(t *testing.T) {
	cause := errors.New("exit status 1")
	err := &Error{
		Kind:     KindNoServerLeft,
		Message:  "no server left to try",
		Attempts: 2,
		Tried:    []string{"us1", "us2"},
		Cause:    cause,
	}

	assert.Equal(t, "no server left to try after 2 attempt(s) (tried: us1, us2): exit status 1", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestNoServerFound_Messages(t *testing.T) {
	assert.Contains(t, NoServerFound(0).Error(), "loosen the criteria")
	assert.Contains(t, NoServerFound(4).Error(), "4 server(s) matched")
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"aborted", ErrUserAborted, ExitUserAborted},
		{"wrapped aborted", fmt.Errorf("x: %w", &Error{Kind: KindUserAborted}), ExitUserAborted},
		{"canceled", fmt.Errorf("wait: %w", context.Canceled), ExitInterrupted},
		{"retries", ErrMaxRetriesExceeded, ExitError},
		{"plain", errors.New("boom"), ExitError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "user_aborted", KindUserAborted.String())
	assert.Equal(t, "kind(99)", Kind(99).String())
	assert.Equal(t, KindNone, KindOf(errors.New("x")))
}
