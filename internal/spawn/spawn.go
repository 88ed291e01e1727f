package spawn

import (
	"context"
	"io"
	"os"
	"os/exec"

	"github.com/sessionbroker/broker/pkg/brokererr"
)

// Spec describes one process to start.
type Spec struct {
	Binary   string
	Args     []string
	Cwd      string
	Env      []string // KEY=VALUE pairs to add on top of the filtered base environment
	DenyList []string
}

// BeforeSpawnHook may inspect or reject a Spec immediately before exec.
// Returning an error is treated as a spawn failure and the process is
// never started (spec §6 "before-spawn hook").
type BeforeSpawnHook func(ctx context.Context, spec Spec) error

// Start resolves spec.Binary, applies the env deny-list to the
// inherited environment, runs hook if non-nil, and starts the process.
// It returns the running *os.Process on success; the caller owns its
// lifecycle from there (Wait, Kill, etc.).
func Start(ctx context.Context, spec Spec, hook BeforeSpawnHook) (*os.Process, error) {
	cmd, err := prepare(ctx, spec, hook)
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, brokererr.Wrap(brokererr.CodeSpawnFailure, "spawn: os spawn error", err)
	}
	return cmd.Process, nil
}

// StartPiped is Start for adapters that speak a line-oriented protocol
// over the child's stdin/stdout (spec §6's "JSON-RPC over stdio"
// example). The caller owns closing stdin and draining stdout.
func StartPiped(ctx context.Context, spec Spec, hook BeforeSpawnHook) (cmd *exec.Cmd, stdin io.WriteCloser, stdout io.ReadCloser, err error) {
	cmd, err = prepare(ctx, spec, hook)
	if err != nil {
		return nil, nil, nil, err
	}

	stdin, err = cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, brokererr.Wrap(brokererr.CodeSpawnFailure, "spawn: stdin pipe", err)
	}
	stdout, err = cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, brokererr.Wrap(brokererr.CodeSpawnFailure, "spawn: stdout pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, nil, brokererr.Wrap(brokererr.CodeSpawnFailure, "spawn: os spawn error", err)
	}
	return cmd, stdin, stdout, nil
}

func prepare(ctx context.Context, spec Spec, hook BeforeSpawnHook) (*exec.Cmd, error) {
	resolved, err := Resolve(spec.Binary)
	if err != nil {
		return nil, err
	}

	if hook != nil {
		if err := hook(ctx, spec); err != nil {
			return nil, brokererr.Wrap(brokererr.CodeSpawnFailure, "spawn: before-spawn hook rejected process", err)
		}
	}

	cmd := exec.CommandContext(ctx, resolved, spec.Args...)
	cmd.Dir = spec.Cwd
	cmd.Env = append(FilterEnv(os.Environ(), spec.DenyList), spec.Env...)
	return cmd, nil
}
