package spawn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBinaryAllowsAbsolutePathAndBasename(t *testing.T) {
	assert.NoError(t, ValidateBinary("/usr/bin/claude"))
	assert.NoError(t, ValidateBinary("claude"))
}

func TestValidateBinaryRejectsShellMetacharacters(t *testing.T) {
	for _, bad := range []string{"claude; rm -rf /", "claude && echo pwned", "$(whoami)", ""} {
		assert.Error(t, ValidateBinary(bad), "expected %q to be rejected", bad)
	}
}

func TestResolveFindsBinaryOnPath(t *testing.T) {
	resolved, err := Resolve("echo")
	require.NoError(t, err)
	assert.Contains(t, resolved, "echo")
}

func TestResolveRejectsUnknownBinary(t *testing.T) {
	_, err := Resolve("definitely-not-a-real-binary-xyz")
	assert.Error(t, err)
}
