package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RouterDecision represents the orchestrator's routing verdict for a tick.
type RouterDecision string

const (
	// RouteContinue indicates delegation work is pending.
	RouteContinue RouterDecision = "continue"
	// RouteFinish indicates the project is complete.
	RouteFinish RouterDecision = "finish"
	// RouteHuman indicates the run is paused awaiting human input.
	RouteHuman RouterDecision = "human"
	// RouteTool indicates a direct tool call is pending.
	RouteTool RouterDecision = "tool"
)

// ArtifactType classifies a produced artifact.
type ArtifactType string

const (
	// ArtifactCode is generated source code.
	ArtifactCode ArtifactType = "code"
	// ArtifactImage is a rendered image payload.
	ArtifactImage ArtifactType = "image"
	// ArtifactReport is prose or a structured report.
	ArtifactReport ArtifactType = "report"
)

// ArtifactVersion is one append-only entry in the artifact history.
// Versions are never mutated after creation.
type ArtifactVersion struct {
	// VersionID is the unique identifier of this version.
	VersionID string `json:"version_id"`
	// TraceID is the audit-trail fingerprint current at creation time.
	TraceID string `json:"trace_id,omitempty"`
	// NodeID is the task node that produced this artifact.
	NodeID string `json:"node_id"`
	// Clock is a snapshot of the vector clock at creation time.
	Clock map[string]int `json:"clock,omitempty"`
	// Type classifies the artifact content.
	Type ArtifactType `json:"type"`
	// Content is the artifact payload.
	Content string `json:"content"`
	// Label is the monotonically increasing version label (v1, v2, ...).
	Label string `json:"label"`
	// CreatedAt is when the version was recorded.
	CreatedAt time.Time `json:"created_at"`
}

// ToolCall describes a direct tool invocation requested by the planner.
type ToolCall struct {
	// Name is the tool identifier (currently only "search").
	Name string `json:"name"`
	// Input is the tool argument, e.g. the search query.
	Input string `json:"input"`
}

// NextStep describes what the scheduler should execute next: either a
// single target crew or a parallel fan-out.
type NextStep struct {
	// AgentName is the single target crew, when not fanning out.
	AgentName string `json:"agent_name,omitempty"`
	// ParallelAgents lists target crews for concurrent dispatch.
	ParallelAgents []string `json:"parallel_agents,omitempty"`
	// SyncRequirement describes how fanned-out results relate.
	SyncRequirement string `json:"sync_requirement,omitempty"`
	// Instruction is the task text handed to each target.
	Instruction string `json:"instruction"`
	// Tool is set instead of targets when RouterDecision is tool.
	Tool *ToolCall `json:"tool,omitempty"`
}

// Targets returns the crew names this step addresses, fan-out first.
func (s *NextStep) Targets() []string {
	if s == nil {
		return nil
	}
	if len(s.ParallelAgents) > 0 {
		return s.ParallelAgents
	}
	if s.AgentName != "" {
		return []string{s.AgentName}
	}
	return nil
}

// ProjectState is the root aggregate for one task session. It is owned
// exclusively by the run controller's current tick; concurrent crew runs
// never mutate it directly.
type ProjectState struct {
	// TaskID is the session-scoped task identifier.
	TaskID string `json:"task_id"`
	// Root is the project-level root node of the task tree.
	Root *TaskNode `json:"root"`
	// ActiveNodeID identifies the current unit of work.
	ActiveNodeID string `json:"active_node_id"`
	// Artifacts is the flat bag of produced outputs keyed by producer.
	// Full artifacts live here; only compressed digests travel in the tree.
	Artifacts map[string]string `json:"artifacts,omitempty"`
	// ArtifactHistory is the append-only version history.
	ArtifactHistory []ArtifactVersion `json:"artifact_history,omitempty"`
	// VectorClock counts completed units of work per branch name.
	VectorClock map[string]int `json:"vector_clock,omitempty"`
	// PrefetchCache holds speculative search results keyed by query.
	PrefetchCache map[string]string `json:"prefetch_cache,omitempty"`
	// PrefetchOrder records cache insertion order, oldest first.
	PrefetchOrder []string `json:"prefetch_order,omitempty"`
	// RouterDecision is the orchestrator's latest routing verdict.
	RouterDecision RouterDecision `json:"router_decision"`
	// NextStep describes the pending dispatch, nil when none.
	NextStep *NextStep `json:"next_step,omitempty"`
	// UserFeedbackQueue holds pending human-injected text. Its presence
	// forces a replan on the next tick, superseding any in-flight plan.
	UserFeedbackQueue string `json:"user_feedback_queue,omitempty"`
	// LastError is the most recent failure description, cleared once
	// successfully handled.
	LastError string `json:"last_error,omitempty"`
	// FinalReport is the terminal output, set only when finishing.
	FinalReport string `json:"final_report,omitempty"`
}

// UserInput returns the original user task from the root node.
func (p *ProjectState) UserInput() string {
	if p.Root == nil {
		return ""
	}
	return p.Root.Instruction
}

// TickClock increments the vector-clock counter for a branch.
func (p *ProjectState) TickClock(branch string) {
	if p.VectorClock == nil {
		p.VectorClock = make(map[string]int)
	}
	p.VectorClock[branch]++
}

// ClockSnapshot returns a copy of the vector clock safe to stamp onto
// an artifact version.
func (p *ProjectState) ClockSnapshot() map[string]int {
	if len(p.VectorClock) == 0 {
		return nil
	}
	snap := make(map[string]int, len(p.VectorClock))
	for k, v := range p.VectorClock {
		snap[k] = v
	}
	return snap
}

// RecordPrefetch stores a speculative search result, tracking insertion
// order so the planner can surface the most recent entries.
func (p *ProjectState) RecordPrefetch(query, result string) {
	if p.PrefetchCache == nil {
		p.PrefetchCache = make(map[string]string)
	}
	if _, seen := p.PrefetchCache[query]; !seen {
		p.PrefetchOrder = append(p.PrefetchOrder, query)
	}
	p.PrefetchCache[query] = result
}

// RecentPrefetch returns up to max of the most recently cached
// speculative results, newest first.
func (p *ProjectState) RecentPrefetch(max int) []string {
	var out []string
	for i := len(p.PrefetchOrder) - 1; i >= 0 && len(out) < max; i-- {
		q := p.PrefetchOrder[i]
		out = append(out, fmt.Sprintf("%s => %s", q, p.PrefetchCache[q]))
	}
	return out
}

// AppendArtifact records an artifact in the flat bag and appends an
// immutable version to the history with the next v%d label.
func (p *ProjectState) AppendArtifact(nodeID, traceID string, typ ArtifactType, producer, content string) ArtifactVersion {
	if p.Artifacts == nil {
		p.Artifacts = make(map[string]string)
	}
	p.Artifacts[producer] = content

	v := ArtifactVersion{
		VersionID: uuid.New().String()[:8],
		TraceID:   traceID,
		NodeID:    nodeID,
		Clock:     p.ClockSnapshot(),
		Type:      typ,
		Content:   content,
		Label:     fmt.Sprintf("v%d", len(p.ArtifactHistory)+1),
		CreatedAt: time.Now(),
	}
	p.ArtifactHistory = append(p.ArtifactHistory, v)
	return v
}
