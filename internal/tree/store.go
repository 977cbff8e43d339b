// Package tree owns the hierarchical task state: node creation,
// parent/child linking, and id-indexed lookup. It is the single source
// of truth for what the active unit of work is.
package tree

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/swarmlabs/hive/pkg/models"
)

// ErrNotFound indicates a node id is absent from the index.
var ErrNotFound = errors.New("node not found")

// Breadcrumb is one step of the active-node path, root first.
type Breadcrumb struct {
	// ID is the node id.
	ID string `json:"id"`
	// Label is the node instruction, truncated for display.
	Label string `json:"label"`
	// Level is the node's hierarchy level.
	Level models.TaskLevel `json:"level"`
	// Status is the node's lifecycle state.
	Status models.TaskStatus `json:"status"`
}

// Store wraps a ProjectState with an id index and enforces
// referential-integrity invariants on every mutation.
type Store struct {
	mu    sync.RWMutex
	state *models.ProjectState
	index map[string]*models.TaskNode
}

// InitFromTask creates a fresh project: a root node at project level,
// active, set as both root and active node.
func InitFromTask(instruction, taskID string) *Store {
	if taskID == "" {
		taskID = "T-" + uuid.New().String()[:8]
	}
	root := models.NewNode(models.LevelProject, instruction, "root user task")
	root.Status = models.StatusActive

	state := &models.ProjectState{
		TaskID:         taskID,
		Root:           root,
		ActiveNodeID:   root.ID,
		RouterDecision: models.RouteContinue,
	}
	return &Store{
		state: state,
		index: map[string]*models.TaskNode{root.ID: root},
	}
}

// Load rebuilds a store around a deserialized ProjectState, re-deriving
// the id index from the tree and validating its integrity.
func Load(state *models.ProjectState) (*Store, error) {
	if state == nil || state.Root == nil {
		return nil, fmt.Errorf("load tree: missing root node")
	}
	index := make(map[string]*models.TaskNode)
	var walk func(n *models.TaskNode) error
	walk = func(n *models.TaskNode) error {
		if _, dup := index[n.ID]; dup {
			return fmt.Errorf("load tree: duplicate node id %s", n.ID)
		}
		index[n.ID] = n
		for _, c := range n.Children {
			if c.ParentID != n.ID {
				return fmt.Errorf("load tree: node %s has parent_id %s under parent %s", c.ID, c.ParentID, n.ID)
			}
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(state.Root); err != nil {
		return nil, err
	}
	if _, ok := index[state.ActiveNodeID]; state.ActiveNodeID != "" && !ok {
		return nil, fmt.Errorf("load tree: active node %s not in tree", state.ActiveNodeID)
	}
	return &Store{state: state, index: index}, nil
}

// State returns the underlying project state. Mutations of the returned
// value must follow the single-writer discipline: one tick at a time.
func (s *Store) State() *models.ProjectState {
	return s.state
}

// Len returns the number of nodes in the tree.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Node returns the node with the given id, or nil.
func (s *Store) Node(id string) *models.TaskNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index[id]
}

// ActiveNode returns the current unit of work, or nil.
func (s *Store) ActiveNode() *models.TaskNode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index[s.state.ActiveNodeID]
}

// SetActive moves the active pointer to an existing node.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[id]; !ok {
		return fmt.Errorf("set active %s: %w", id, ErrNotFound)
	}
	s.state.ActiveNodeID = id
	return nil
}

// AddNode links a node under an existing parent and indexes it.
// The add is atomic: a missing parent leaves both the tree and the
// index untouched.
func (s *Store) AddNode(parentID string, node *models.TaskNode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.index[parentID]
	if !ok {
		return fmt.Errorf("add node under %s: %w", parentID, ErrNotFound)
	}
	if _, dup := s.index[node.ID]; dup {
		return fmt.Errorf("add node %s: duplicate id", node.ID)
	}

	node.ParentID = parent.ID
	parent.Children = append(parent.Children, node)
	s.index[node.ID] = node
	return nil
}

// Complete marks a node completed with the given semantic summary and
// compacts its local history. From this point the summary alone carries
// the node's contribution into planning context.
func (s *Store) Complete(id, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.index[id]
	if !ok {
		return fmt.Errorf("complete %s: %w", id, ErrNotFound)
	}
	n.Status = models.StatusCompleted
	n.SemanticSummary = summary
	n.Compact()
	return nil
}

// CompletedSiblingSummaries returns the semantic summaries of completed
// siblings of the given node (children of the same parent, excluding the
// node itself), most recent last, capped at max entries.
func (s *Store) CompletedSiblingSummaries(id string, max int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.index[id]
	if !ok {
		return nil
	}
	parent, ok := s.index[n.ParentID]
	if !ok {
		return nil
	}

	var out []string
	for _, sib := range parent.Children {
		if sib.ID == id || sib.Status != models.StatusCompleted || sib.SemanticSummary == "" {
			continue
		}
		out = append(out, sib.SemanticSummary)
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

// CompletedChildSummaries returns summaries of the node's own completed
// children, in creation order, capped at max entries.
func (s *Store) CompletedChildSummaries(id string, max int) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.index[id]
	if !ok {
		return nil
	}
	var out []string
	for _, c := range n.Children {
		if c.Status != models.StatusCompleted || c.SemanticSummary == "" {
			continue
		}
		out = append(out, c.SemanticSummary)
	}
	if max > 0 && len(out) > max {
		out = out[len(out)-max:]
	}
	return out
}

// Breadcrumbs returns the path from the root to the active node.
func (s *Store) Breadcrumbs() []Breadcrumb {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rev []Breadcrumb
	id := s.state.ActiveNodeID
	for id != "" {
		n, ok := s.index[id]
		if !ok {
			break
		}
		rev = append(rev, Breadcrumb{
			ID:     n.ID,
			Label:  truncate(n.Instruction, 30),
			Level:  n.Level,
			Status: n.Status,
		})
		id = n.ParentID
	}

	out := make([]Breadcrumb, 0, len(rev))
	for i := len(rev) - 1; i >= 0; i-- {
		out = append(out, rev[i])
	}
	return out
}

// truncate shortens s to at most n runes, never splitting a rune.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
