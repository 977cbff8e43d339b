package tree

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/swarmlabs/hive/pkg/models"
)

func TestInitFromTask(t *testing.T) {
	s := InitFromTask("build a dashboard", "T-0001")

	root := s.ActiveNode()
	if root == nil {
		t.Fatal("expected active root node")
	}
	if root.Level != models.LevelProject {
		t.Errorf("expected project level, got %s", root.Level)
	}
	if root.Status != models.StatusActive {
		t.Errorf("expected active status, got %s", root.Status)
	}
	if s.State().TaskID != "T-0001" {
		t.Errorf("expected task id preserved, got %s", s.State().TaskID)
	}
	if s.Len() != 1 {
		t.Errorf("expected 1 indexed node, got %d", s.Len())
	}
}

func TestAddNodeUnknownParentDoesNotMutate(t *testing.T) {
	s := InitFromTask("task", "")
	before := s.Len()

	child := models.NewNode(models.LevelSubtree, "sub", "")
	err := s.AddNode("no-such-parent", child)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if s.Len() != before {
		t.Error("failed add must not leave a dangling index entry")
	}
	if s.Node(child.ID) != nil {
		t.Error("failed add must not index the child")
	}
}

func TestAddNodeDuplicateID(t *testing.T) {
	s := InitFromTask("task", "")
	root := s.ActiveNode()

	child := models.NewNode(models.LevelSubtree, "sub", "")
	if err := s.AddNode(root.ID, child); err != nil {
		t.Fatalf("first add: %v", err)
	}
	dup := &models.TaskNode{ID: child.ID, Level: models.LevelLeaf, Instruction: "dup"}
	if err := s.AddNode(root.ID, dup); err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}
	if len(root.Children) != 1 {
		t.Errorf("expected 1 child after rejected dup, got %d", len(root.Children))
	}
}

// Every node in the index must be reachable from the root, and every
// reachable node must be indexed exactly once.
func TestIndexMirrorsTree(t *testing.T) {
	s := InitFromTask("task", "")
	root := s.ActiveNode()

	a := models.NewNode(models.LevelSubtree, "a", "")
	b := models.NewNode(models.LevelSubtree, "b", "")
	leaf := models.NewNode(models.LevelLeaf, "leaf", "")
	for _, add := range []struct {
		parent string
		node   *models.TaskNode
	}{{root.ID, a}, {root.ID, b}, {a.ID, leaf}} {
		if err := s.AddNode(add.parent, add.node); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	reachable := make(map[string]int)
	var walk func(n *models.TaskNode)
	walk = func(n *models.TaskNode) {
		reachable[n.ID]++
		for _, c := range n.Children {
			if c.ParentID != n.ID {
				t.Errorf("child %s has wrong parent_id %s", c.ID, c.ParentID)
			}
			walk(c)
		}
	}
	walk(root)

	if len(reachable) != s.Len() {
		t.Fatalf("index size %d != reachable set %d", s.Len(), len(reachable))
	}
	for id, count := range reachable {
		if count != 1 {
			t.Errorf("node %s reachable %d times", id, count)
		}
		if s.Node(id) == nil {
			t.Errorf("reachable node %s missing from index", id)
		}
	}
}

func TestCompleteCompactsHistory(t *testing.T) {
	s := InitFromTask("task", "")
	root := s.ActiveNode()

	child := models.NewNode(models.LevelSubtree, "sub", "")
	child.AppendHistory("assistant", "long intermediate transcript")
	if err := s.AddNode(root.ID, child); err != nil {
		t.Fatalf("add: %v", err)
	}

	if err := s.Complete(child.ID, "sub work done"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if child.Status != models.StatusCompleted {
		t.Errorf("expected completed, got %s", child.Status)
	}
	if len(child.LocalHistory) != 0 {
		t.Error("completed node should carry only its semantic summary")
	}
	if child.SemanticSummary != "sub work done" {
		t.Errorf("unexpected summary %q", child.SemanticSummary)
	}
}

func TestCompletedSiblingSummaries(t *testing.T) {
	s := InitFromTask("task", "")
	root := s.ActiveNode()

	var target *models.TaskNode
	for i, instr := range []string{"one", "two", "three", "four"} {
		n := models.NewNode(models.LevelSubtree, instr, "")
		if err := s.AddNode(root.ID, n); err != nil {
			t.Fatalf("add: %v", err)
		}
		if i == 3 {
			target = n
			continue
		}
		if err := s.Complete(n.ID, "done "+instr); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	got := s.CompletedSiblingSummaries(target.ID, 2)
	if len(got) != 2 {
		t.Fatalf("expected cap of 2, got %d", len(got))
	}
	if got[0] != "done two" || got[1] != "done three" {
		t.Errorf("expected most recent summaries, got %v", got)
	}
}

func TestBreadcrumbsRootFirst(t *testing.T) {
	s := InitFromTask("a task with a rather long instruction text", "")
	root := s.ActiveNode()

	sub := models.NewNode(models.LevelSubtree, "sub", "")
	if err := s.AddNode(root.ID, sub); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.SetActive(sub.ID); err != nil {
		t.Fatalf("set active: %v", err)
	}

	crumbs := s.Breadcrumbs()
	if len(crumbs) != 2 {
		t.Fatalf("expected 2 breadcrumbs, got %d", len(crumbs))
	}
	if crumbs[0].Level != models.LevelProject || crumbs[1].ID != sub.ID {
		t.Errorf("unexpected breadcrumb order: %+v", crumbs)
	}
	if len(crumbs[0].Label) > 30 {
		t.Error("breadcrumb labels should be truncated")
	}
}

func TestBreadcrumbLabelsKeepRuneBoundaries(t *testing.T) {
	s := InitFromTask(strings.Repeat("日", 40), "T-1")

	crumbs := s.Breadcrumbs()
	if len(crumbs) != 1 {
		t.Fatalf("expected 1 breadcrumb, got %d", len(crumbs))
	}
	label := crumbs[0].Label
	if !utf8.ValidString(label) {
		t.Errorf("label is not valid UTF-8: %q", label)
	}
	if got := utf8.RuneCountInString(label); got != 30 {
		t.Errorf("expected a 30-rune label, got %d runes", got)
	}
}

func TestLoadRebuildsIndex(t *testing.T) {
	s := InitFromTask("task", "T-42")
	root := s.ActiveNode()
	child := models.NewNode(models.LevelSubtree, "sub", "")
	if err := s.AddNode(root.ID, child); err != nil {
		t.Fatalf("add: %v", err)
	}

	raw, err := json.Marshal(s.State())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var state models.ProjectState
	if err := json.Unmarshal(raw, &state); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	loaded, err := Load(&state)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Len() != 2 {
		t.Errorf("expected 2 indexed nodes, got %d", loaded.Len())
	}
	if loaded.Node(child.ID) == nil {
		t.Error("child missing from rebuilt index")
	}
}

func TestLoadRejectsCorruptTree(t *testing.T) {
	root := models.NewNode(models.LevelProject, "task", "")
	bad := models.NewNode(models.LevelLeaf, "bad", "")
	bad.ParentID = "someone-else"
	root.Children = append(root.Children, bad)

	_, err := Load(&models.ProjectState{TaskID: "t", Root: root, ActiveNodeID: root.ID})
	if err == nil {
		t.Fatal("expected parent/child mismatch to be rejected")
	}
}
