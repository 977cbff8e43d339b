package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/swarmlabs/hive/pkg/models"
)

// Decision is the planner's structured verdict for one tick.
type Decision struct {
	// Thought is the planner's reasoning, kept for the audit log.
	Thought string `json:"thought"`
	// ActionType is one of delegate_to_crew, call_tool, ask_human,
	// finish_task.
	ActionType string `json:"action_type"`
	// DelegateTargets names the crews to dispatch. More than one means
	// a parallel fan-out.
	DelegateTargets []string `json:"delegate_targets,omitempty"`
	// SyncRequirement describes how fanned-out results relate.
	SyncRequirement string `json:"sync_requirement,omitempty"`
	// ToolCall is set for call_tool.
	ToolCall *models.ToolCall `json:"tool_call,omitempty"`
	// HumanQuestion is the question to surface for ask_human.
	HumanQuestion string `json:"human_question,omitempty"`
	// SpeculativeSearchQueries are optional prefetch queries.
	SpeculativeSearchQueries []string `json:"speculative_search_queries,omitempty"`
	// Instruction is the task text for the chosen action. For
	// finish_task it is the final report.
	Instruction string `json:"instruction"`
}

const decisionSchema = `{"type":"object","properties":{"thought":{"type":"string"},"action_type":{"enum":["delegate_to_crew","call_tool","ask_human","finish_task"]},"delegate_targets":{"type":"array","items":{"type":"string"}},"sync_requirement":{"type":"string"},"tool_call":{"type":"object","properties":{"name":{"type":"string"},"input":{"type":"string"}}},"human_question":{"type":"string"},"speculative_search_queries":{"type":"array","items":{"type":"string"}},"instruction":{"type":"string"}},"required":["action_type","instruction"]}`

// ParseDecision validates planner output against the decision contract.
// Markdown code fences around the JSON are tolerated.
func ParseDecision(raw string) (*Decision, error) {
	cleaned := stripFences(raw)

	var d Decision
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		return nil, fmt.Errorf("parse decision: %w", err)
	}
	switch d.ActionType {
	case "delegate_to_crew":
		if len(d.DelegateTargets) == 0 {
			return nil, fmt.Errorf("parse decision: delegate_to_crew without targets")
		}
	case "call_tool":
		if d.ToolCall == nil || d.ToolCall.Name == "" {
			return nil, fmt.Errorf("parse decision: call_tool without a tool")
		}
	case "ask_human", "finish_task":
	default:
		return nil, fmt.Errorf("parse decision: unknown action_type %q", d.ActionType)
	}
	if d.Instruction == "" {
		return nil, fmt.Errorf("parse decision: missing instruction")
	}
	return &d, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
