package spawn

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterEnvStripsDeniedVariablesCaseInsensitively(t *testing.T) {
	env := []string{"PATH=/usr/bin", "AWS_SECRET_ACCESS_KEY=shh", "api_key=also-shh", "HOME=/root"}
	out := FilterEnv(env, []string{"AWS_SECRET_ACCESS_KEY", "API_KEY"})
	assert.ElementsMatch(t, []string{"PATH=/usr/bin", "HOME=/root"}, out)
}

func TestFilterEnvWithEmptyDenyListReturnsInputUnchanged(t *testing.T) {
	env := []string{"PATH=/usr/bin"}
	assert.Equal(t, env, FilterEnv(env, nil))
}

func TestFilterEnvKeepsMalformedEntries(t *testing.T) {
	out := FilterEnv([]string{"NOEQUALSIGN"}, []string{"SECRET"})
	assert.Equal(t, []string{"NOEQUALSIGN"}, out)
}
