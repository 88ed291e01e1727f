package commandrunner

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerDisabledReturnsUnsupportedError(t *testing.T) {
	r := New(Config{Enabled: false})

	_, err := r.Run(context.Background(), "echo hi")
	require.Error(t, err)
}

func TestRunnerCapturesOutputUntilSilence(t *testing.T) {
	r := New(Config{
		Enabled:          true,
		Timeout:          2 * time.Second,
		SilenceThreshold: 50 * time.Millisecond,
	})

	result, err := r.Run(context.Background(), "echo hello-pty")
	require.NoError(t, err)
	assert.False(t, result.TimedOut)
	assert.True(t, strings.Contains(result.Output, "hello-pty"))
}

func TestRunnerTimesOutOnLongRunningCommand(t *testing.T) {
	r := New(Config{
		Enabled:          true,
		Timeout:          50 * time.Millisecond,
		SilenceThreshold: time.Hour,
	})

	result, err := r.Run(context.Background(), "sleep 5")
	require.NoError(t, err)
	assert.True(t, result.TimedOut)
}
