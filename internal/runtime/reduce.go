package runtime

import (
	"encoding/json"

	"github.com/sessionbroker/broker/pkg/types"
)

// Well-known metadata keys an adapter's T3 decoder populates so the
// reducer can derive SessionState without knowing which backend produced
// the message (spec §3: "metadata ... canonicalized ... the structured
// carrier of adapter-specific details").
const (
	metaModel              = "model"
	metaCwd                = "cwd"
	metaGitBranch          = "git_branch"
	metaGitCommit          = "git_commit"
	metaGitDirty           = "git_dirty"
	metaGitAheadOfOrigin   = "git_ahead_of_origin"
	metaCostUSD            = "cost_usd"
	metaNumTurns           = "num_turns"
	metaContextUsedPercent = "context_used_percent"
	metaMCPServers         = "mcp_servers"
	metaAgents             = "agents"
	metaSkills             = "skills"
	metaUsageInputTokens   = "usage_input_tokens"
	metaUsageOutputTokens  = "usage_output_tokens"
)

// Team tool names the reducer recognizes for optimistic team-state
// correlation (spec §4.2 step 3).
const (
	toolTeamSetRole      = "team_set_role"
	toolTeamAddMember    = "team_add_member"
	toolTeamRemoveMember = "team_remove_member"
	toolTeamAddTask      = "team_add_task"
	toolTeamUpdateTask   = "team_update_task"
)

// Reduce is the pure state-reduction function of spec §4.2:
// `reduce(prev, unifiedMsg, teamCorrelationBuffer) → next`. It never
// performs I/O and never mutates prev or any slice/map reachable from
// it; every derived field is written onto a clone.
func Reduce(prev types.SessionState, msg types.UnifiedMessage, teamBuf *TeamCorrelationBuffer) types.SessionState {
	next := prev.Clone()

	applyFieldPatches(&next, msg)
	applyTeamCorrelation(&next, msg, teamBuf)

	return next
}

func applyFieldPatches(state *types.SessionState, msg types.UnifiedMessage) {
	md := msg.Metadata
	if md == nil {
		return
	}

	if v, ok := stringMeta(md, metaModel); ok {
		state.Model = v
	}
	if v, ok := stringMeta(md, metaCwd); ok {
		state.Cwd = v
	}
	if v, ok := floatMeta(md, metaCostUSD); ok {
		state.CostUSD = v
	}
	if v, ok := intMeta(md, metaNumTurns); ok {
		state.NumTurns = v
	}
	if v, ok := floatMeta(md, metaContextUsedPercent); ok {
		state.ContextUsedPercent = v
	}
	if v, ok := stringSliceMeta(md, metaMCPServers); ok {
		state.MCPServers = v
	}
	if v, ok := stringSliceMeta(md, metaAgents); ok {
		state.Agents = v
	}
	if v, ok := stringSliceMeta(md, metaSkills); ok {
		state.Skills = v
	}

	applyGitPatch(state, md)
	applyUsagePatch(state, md)
}

func applyGitPatch(state *types.SessionState, md types.Metadata) {
	branch, hasBranch := stringMeta(md, metaGitBranch)
	commit, hasCommit := stringMeta(md, metaGitCommit)
	dirty, hasDirty := boolMeta(md, metaGitDirty)
	ahead, hasAhead := intMeta(md, metaGitAheadOfOrigin)
	if !hasBranch && !hasCommit && !hasDirty && !hasAhead {
		return
	}

	git := &types.GitInfo{}
	if state.Git != nil {
		g := *state.Git
		git = &g
	}
	if hasBranch {
		git.Branch = branch
	}
	if hasCommit {
		git.Commit = commit
	}
	if hasDirty {
		git.Dirty = dirty
	}
	if hasAhead {
		git.AheadOfOrigin = ahead
	}
	state.Git = git
}

func applyUsagePatch(state *types.SessionState, md types.Metadata) {
	input, hasInput := int64Meta(md, metaUsageInputTokens)
	output, hasOutput := int64Meta(md, metaUsageOutputTokens)
	if !hasInput && !hasOutput {
		return
	}

	usage := &types.Usage{}
	if state.LastUsage != nil {
		u := *state.LastUsage
		usage = &u
	}
	if hasInput {
		usage.InputTokens = input
	}
	if hasOutput {
		usage.OutputTokens = output
	}
	usage.CostUSD = state.CostUSD
	state.LastUsage = usage
}

// applyTeamCorrelation applies any recognized team tool-use content
// blocks optimistically, deduplicating via teamBuf so a retried tool-use
// never duplicates a member, task, or dependency edge. Tool-result
// blocks are intentionally ignored: a successful result is idempotent
// with the optimistic change already applied, and an error result still
// leaves the optimistic change in place (spec §4.2's deliberate UX
// choice).
func applyTeamCorrelation(state *types.SessionState, msg types.UnifiedMessage, teamBuf *TeamCorrelationBuffer) {
	for _, block := range msg.Content {
		if block.Type != types.BlockToolUse || block.ID == "" {
			continue
		}
		if !isTeamTool(block.ToolName) {
			continue
		}
		if teamBuf.Applied(block.ID) {
			continue
		}

		if state.Team == nil {
			state.Team = &types.TeamState{}
		}
		applyTeamToolUse(state.Team, block)
		teamBuf.MarkApplied(block.ID)
	}
}

func isTeamTool(name string) bool {
	switch name {
	case toolTeamSetRole, toolTeamAddMember, toolTeamRemoveMember, toolTeamAddTask, toolTeamUpdateTask:
		return true
	default:
		return false
	}
}

func applyTeamToolUse(team *types.TeamState, block types.ContentBlock) {
	switch block.ToolName {
	case toolTeamSetRole:
		var in struct {
			Role string `json:"role"`
		}
		if unmarshalToolInput(block.ToolInput, &in) {
			team.Role = in.Role
		}

	case toolTeamAddMember:
		var in types.TeamMember
		if unmarshalToolInput(block.ToolInput, &in) && in.ID != "" {
			if !hasMember(team.Members, in.ID) {
				team.Members = append(team.Members, in)
			}
		}

	case toolTeamRemoveMember:
		var in struct {
			ID string `json:"id"`
		}
		if unmarshalToolInput(block.ToolInput, &in) && in.ID != "" {
			team.Members = removeMember(team.Members, in.ID)
		}

	case toolTeamAddTask:
		var in types.TeamTask
		if unmarshalToolInput(block.ToolInput, &in) && in.ID != "" {
			if !hasTask(team.Tasks, in.ID) {
				team.Tasks = append(team.Tasks, in)
			}
		}

	case toolTeamUpdateTask:
		var in struct {
			ID        string   `json:"id"`
			Status    string   `json:"status"`
			DependsOn []string `json:"dependsOn,omitempty"`
		}
		if unmarshalToolInput(block.ToolInput, &in) && in.ID != "" {
			updateTask(team.Tasks, in.ID, in.Status, in.DependsOn)
		}
	}
}

func hasMember(members []types.TeamMember, id string) bool {
	for _, m := range members {
		if m.ID == id {
			return true
		}
	}
	return false
}

func removeMember(members []types.TeamMember, id string) []types.TeamMember {
	out := members[:0]
	for _, m := range members {
		if m.ID != id {
			out = append(out, m)
		}
	}
	return out
}

func hasTask(tasks []types.TeamTask, id string) bool {
	for _, t := range tasks {
		if t.ID == id {
			return true
		}
	}
	return false
}

func updateTask(tasks []types.TeamTask, id, status string, dependsOn []string) {
	for i := range tasks {
		if tasks[i].ID == id {
			if status != "" {
				tasks[i].Status = status
			}
			if dependsOn != nil {
				tasks[i].DependsOn = dedupStrings(append(tasks[i].DependsOn, dependsOn...))
			}
			return
		}
	}
}

func dedupStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := in[:0]
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func unmarshalToolInput(raw json.RawMessage, out any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func stringMeta(md types.Metadata, key string) (string, bool) {
	v, ok := md[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func boolMeta(md types.Metadata, key string) (bool, bool) {
	v, ok := md[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func floatMeta(md types.Metadata, key string) (float64, bool) {
	v, ok := md[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func intMeta(md types.Metadata, key string) (int, bool) {
	f, ok := floatMeta(md, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func int64Meta(md types.Metadata, key string) (int64, bool) {
	f, ok := floatMeta(md, key)
	if !ok {
		return 0, false
	}
	return int64(f), true
}

func stringSliceMeta(md types.Metadata, key string) ([]string, bool) {
	v, ok := md[key]
	if !ok {
		return nil, false
	}
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...), true
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
