package commandrunner

import (
	"context"
	"os/exec"
	"time"

	"github.com/creack/pty"

	"github.com/sessionbroker/broker/internal/logging"
	"github.com/sessionbroker/broker/pkg/brokererr"
)

// Result is one completed PTY run, ready to project into a
// slash_command_result consumer message.
type Result struct {
	Command string
	Output  string
	// TimedOut is true when the overall timeout fired before silence was
	// ever observed; Output still holds whatever was captured.
	TimedOut bool
}

// Config parameterizes the fallback, sourced from
// types.SlashCommandConfig.
type Config struct {
	Enabled          bool
	Shell            string
	Timeout          time.Duration
	SilenceThreshold time.Duration
	MaxOutputBytes   int
}

// Runner spawns slash commands a backend adapter cannot service natively
// under a managed PTY and scrapes their output.
type Runner struct {
	cfg Config
}

// New builds a Runner, filling unset tunables with spec.md defaults.
func New(cfg Config) *Runner {
	if cfg.Shell == "" {
		cfg.Shell = "/bin/sh"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.SilenceThreshold <= 0 {
		cfg.SilenceThreshold = 500 * time.Millisecond
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = 64 * 1024
	}
	return &Runner{cfg: cfg}
}

// Enabled reports whether the fallback is configured on.
func (r *Runner) Enabled() bool { return r.cfg.Enabled }

// Run spawns command under a PTY and scrapes output until
// SilenceThreshold elapses with nothing new written, or Timeout expires,
// whichever comes first.
func (r *Runner) Run(ctx context.Context, command string) (Result, error) {
	if !r.cfg.Enabled {
		return Result{}, brokererr.New(brokererr.CodeUnsupported, "pty command runner disabled")
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.cfg.Shell, "-c", command)
	f, err := pty.Start(cmd)
	if err != nil {
		return Result{}, brokererr.Wrap(brokererr.CodeSpawnFailure, "pty start failed", err)
	}
	defer f.Close()

	buf := newScrapeBuffer(r.cfg.MaxOutputBytes)
	readDone := make(chan struct{})

	go func() {
		defer close(readDone)
		chunk := make([]byte, 4096)
		for {
			n, err := f.Read(chunk)
			if n > 0 {
				buf.Write(chunk[:n])
			}
			if err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(r.cfg.SilenceThreshold / 2)
	defer ticker.Stop()

	for {
		select {
		case <-readDone:
			return Result{Command: command, Output: buf.String()}, nil
		case <-ctx.Done():
			logging.Warn().Str("command", command).Msg("pty command runner timed out")
			_ = cmd.Process.Kill()
			<-readDone
			return Result{Command: command, Output: buf.String(), TimedOut: true}, nil
		case <-ticker.C:
			if buf.Idle(r.cfg.SilenceThreshold) {
				_ = cmd.Process.Kill()
				<-readDone
				return Result{Command: command, Output: buf.String()}, nil
			}
		}
	}
}
