// Package models defines the shared data model for the hive engine:
// task nodes, the project state aggregate, and artifact versions.
package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskLevel represents the position of a node in the task hierarchy.
type TaskLevel string

const (
	// LevelProject is the root node holding the global goal.
	LevelProject TaskLevel = "project"
	// LevelSubtree is a crew invocation node.
	LevelSubtree TaskLevel = "subtree"
	// LevelLeaf is an atomic step node.
	LevelLeaf TaskLevel = "leaf"
)

// TaskStatus represents the lifecycle state of a task node.
type TaskStatus string

const (
	// StatusPending indicates the node has not started.
	StatusPending TaskStatus = "pending"
	// StatusActive indicates the node is being worked on.
	StatusActive TaskStatus = "active"
	// StatusCompleted indicates the node finished successfully.
	StatusCompleted TaskStatus = "completed"
	// StatusFailed indicates the node failed.
	StatusFailed TaskStatus = "failed"
	// StatusBlocked indicates the node cannot proceed.
	StatusBlocked TaskStatus = "blocked"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusCompleted, StatusFailed, StatusBlocked:
		return true
	default:
		return false
	}
}

// Message is a role-tagged record in a node's local history.
type Message struct {
	// Role identifies the author: "user", "assistant", or "system".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// Timestamp is when the message was recorded.
	Timestamp time.Time `json:"timestamp"`
}

// TaskNode is a single unit of work in the hierarchical task tree.
// Local history is scoped to this node only; once the node completes,
// its history is replaceable by SemanticSummary alone.
type TaskNode struct {
	// ID is the unique identifier for this node.
	ID string `json:"id"`
	// ParentID is the ID of the parent node, empty for the root.
	// It is a lookup reference, not an ownership pointer.
	ParentID string `json:"parent_id,omitempty"`
	// Level is the position of this node in the hierarchy.
	Level TaskLevel `json:"level"`
	// Status is the lifecycle state of this node.
	Status TaskStatus `json:"status"`
	// Instruction is the task text this node represents.
	Instruction string `json:"instruction"`
	// Reasoning records why this node was created.
	Reasoning string `json:"reasoning,omitempty"`
	// SemanticSummary is the compressed digest of everything this
	// node's subtree accomplished. Empty until the node completes.
	SemanticSummary string `json:"semantic_summary,omitempty"`
	// LocalHistory holds role-tagged messages scoped to this node only.
	LocalHistory []Message `json:"local_history,omitempty"`
	// Children are the child nodes in creation order.
	Children []*TaskNode `json:"children,omitempty"`
	// CreatedAt is when the node was created.
	CreatedAt time.Time `json:"created_at"`
}

// NewNode creates a task node with a fresh ID and pending status.
func NewNode(level TaskLevel, instruction, reasoning string) *TaskNode {
	return &TaskNode{
		ID:          uuid.New().String(),
		Level:       level,
		Status:      StatusPending,
		Instruction: instruction,
		Reasoning:   reasoning,
		CreatedAt:   time.Now(),
	}
}

// AppendHistory records a message in the node's local history.
func (n *TaskNode) AppendHistory(role, content string) {
	n.LocalHistory = append(n.LocalHistory, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
}

// Compact discards the local history once the node has completed.
// The semantic summary carries the node's contribution from then on.
// Compacting a non-completed node is a no-op.
func (n *TaskNode) Compact() {
	if n.Status != StatusCompleted {
		return
	}
	n.LocalHistory = nil
}
