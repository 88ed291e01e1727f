package bridge

import (
	"context"

	"github.com/sessionbroker/broker/pkg/brokererr"
	"github.com/sessionbroker/broker/pkg/types"
)

// handleSlashCommand implements spec.md §9's slash-command dispatch: a
// command the backend itself declared (session_init's cliCommands or
// skillCommands, per Runtime.RegisterCLICommands/RegisterSkillCommands)
// is forwarded to the backend as ordinary input, since most backends
// parse their own slash syntax out of a plain turn. A command the
// backend doesn't know falls back to the PTY command runner, when one
// is configured and enabled; otherwise it is a slash_command_error.
func (b *Bridge) handleSlashCommand(ctx context.Context, sessionID, command, requestID string) error {
	rt, ok := b.deps.Registry.Get(sessionID)
	if !ok {
		return brokererr.New(brokererr.CodeValidation, "unknown session")
	}

	if rt.HasBackend() && knownToBackend(rt.DynamicSlashCommands(), command) {
		return b.SendUserMessage(ctx, sessionID, command, nil)
	}

	if b.commandRunner == nil || !b.commandRunner.Enabled() {
		b.deps.Hub.Broadcast(sessionID, requestID, types.ConsumerMessage{
			Type:      types.CMSlashCommandError,
			SessionID: sessionID,
			Payload:   types.ErrorMessage{Message: "slash command not supported by backend", Code: string(brokererr.CodeUnsupported)},
		})
		return nil
	}

	result, err := b.commandRunner.Run(ctx, command)
	if err != nil {
		b.deps.Hub.Broadcast(sessionID, requestID, types.ConsumerMessage{
			Type:      types.CMSlashCommandError,
			SessionID: sessionID,
			Payload:   brokererr.Wrap(brokererr.CodeSpawnFailure, "slash command failed", err).ToConsumer(),
		})
		return nil
	}

	b.deps.Hub.Broadcast(sessionID, requestID, types.ConsumerMessage{
		Type:      types.CMSlashCommandResult,
		SessionID: sessionID,
		Payload: map[string]any{
			"command":  result.Command,
			"output":   result.Output,
			"timedOut": result.TimedOut,
		},
	})
	return nil
}

func knownToBackend(commands []string, command string) bool {
	for _, c := range commands {
		if c == command {
			return true
		}
	}
	return false
}
