package spawn

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartRunsBeforeSpawnHookAndPropagatesRejection(t *testing.T) {
	hookErr := errors.New("blocked by policy")
	_, err := Start(context.Background(), Spec{Binary: "echo", Args: []string{"hi"}}, func(context.Context, Spec) error {
		return hookErr
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, hookErr)
}

func TestStartSucceedsForValidBinary(t *testing.T) {
	proc, err := Start(context.Background(), Spec{Binary: "echo", Args: []string{"hi"}}, nil)
	require.NoError(t, err)
	require.NotNil(t, proc)
	_, _ = proc.Wait()
}

func TestStartRejectsInvalidBinaryBeforeSpawning(t *testing.T) {
	_, err := Start(context.Background(), Spec{Binary: "echo; rm -rf /"}, nil)
	assert.Error(t, err)
}
