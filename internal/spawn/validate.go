package spawn

import (
	"fmt"
	"os/exec"
	"regexp"

	"github.com/sessionbroker/broker/pkg/brokererr"
)

var (
	absolutePathPattern = regexp.MustCompile(`^/[A-Za-z0-9_./-]+$`)
	basenamePattern     = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)
)

// ValidateBinary enforces spec §6's binary validation rule: an absolute
// path must match a conservative character set, and anything else must
// be a bare basename resolvable on PATH. Everything else is rejected
// before it ever reaches exec.
func ValidateBinary(binary string) error {
	if binary == "" {
		return brokererr.New(brokererr.CodeSpawnFailure, "spawn: empty binary")
	}
	if absolutePathPattern.MatchString(binary) {
		return nil
	}
	if basenamePattern.MatchString(binary) {
		return nil
	}
	return brokererr.New(brokererr.CodeSpawnFailure, fmt.Sprintf("spawn: rejected binary %q", binary))
}

// Resolve is the which-equivalent lookup: it validates binary, then, if
// it is not already an absolute path, resolves it against PATH.
func Resolve(binary string) (string, error) {
	if err := ValidateBinary(binary); err != nil {
		return "", err
	}
	if absolutePathPattern.MatchString(binary) {
		return binary, nil
	}

	resolved, err := exec.LookPath(binary)
	if err != nil {
		return "", brokererr.Wrap(brokererr.CodeSpawnFailure, fmt.Sprintf("spawn: %q not found on PATH", binary), err)
	}
	return resolved, nil
}
