package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sessionbroker/broker/internal/spawn"
	"github.com/sessionbroker/broker/pkg/brokererr"
	"github.com/sessionbroker/broker/pkg/types"
)

// StdioAdapterConfig configures a StdioAdapter.
type StdioAdapterConfig struct {
	Binary       string
	BaseArgs     []string
	EnvDenyList  []string
	BeforeSpawn  spawn.BeforeSpawnHook
	Capabilities Capabilities
}

// StdioAdapter is an outbound-spawn adapter (spec §4.3 style 1, the
// "JSON-RPC over stdio" example) that spawns a local backend process per
// spawn.Start's contract and exchanges newline-delimited JSON frames
// over its stdin/stdout.
type StdioAdapter struct {
	name string
	cfg  StdioAdapterConfig
}

// NewStdioAdapter builds a StdioAdapter identified by name.
func NewStdioAdapter(name string, cfg StdioAdapterConfig) *StdioAdapter {
	return &StdioAdapter{name: name, cfg: cfg}
}

func (a *StdioAdapter) Name() string              { return a.name }
func (a *StdioAdapter) Capabilities() Capabilities { return a.cfg.Capabilities }
func (a *StdioAdapter) Style() ConnectionStyle     { return StyleOutboundSpawn }

func (a *StdioAdapter) Connect(ctx context.Context, sessionID string, opts ConnectOptions) (BackendSession, error) {
	env := make([]string, 0, len(opts.Env))
	for k, v := range opts.Env {
		env = append(env, fmt.Sprintf("%s=%s", k, v))
	}

	cmd, stdin, stdout, err := spawn.StartPiped(ctx, spawn.Spec{
		Binary:   a.cfg.Binary,
		Args:     a.cfg.BaseArgs,
		Cwd:      opts.Cwd,
		Env:      env,
		DenyList: a.cfg.EnvDenyList,
	}, a.cfg.BeforeSpawn)
	if err != nil {
		return BackendSession{}, err
	}

	messages := make(chan types.UnifiedMessage, 32)
	errs := make(chan error, 1)
	closeOnce := make(chan struct{})

	go func() {
		defer close(messages)
		defer close(errs)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			var frame wireFrame
			if err := json.Unmarshal(scanner.Bytes(), &frame); err != nil {
				// T3 decode failure: traced by the caller via Errors is too
				// strong a signal for one bad line, so it is simply skipped.
				continue
			}
			msg, ok := decodeFrame(&frame, time.Now().UnixMilli())
			if !ok || msg == nil {
				continue
			}
			select {
			case messages <- *msg:
			case <-closeOnce:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case errs <- err:
			default:
			}
		}
	}()

	closeFn := func() error {
		select {
		case <-closeOnce:
			return nil
		default:
			close(closeOnce)
		}
		_ = stdin.Close()
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		return cmd.Wait()
	}

	return BackendSession{
		SessionID: sessionID,
		Send: func(ctx context.Context, msg types.UnifiedMessage) error {
			select {
			case <-closeOnce:
				return ErrSessionClosed
			default:
			}
			frame, err := encodeFrame(sessionID, msg)
			if err != nil {
				return err
			}
			return writeFrameLine(stdin, frame)
		},
		SendRaw: func(ctx context.Context, data []byte) error {
			select {
			case <-closeOnce:
				return ErrSessionClosed
			default:
			}
			return writeFrameLine(stdin, &wireFrame{SessionID: sessionID, Type: "raw", Content: data})
		},
		Close:    closeFn,
		Messages: messages,
		Errors:   errs,
	}, nil
}

func writeFrameLine(w io.Writer, frame *wireFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return brokererr.Wrap(brokererr.CodeBackendUnavailable, "adapter: encode stdio frame", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
