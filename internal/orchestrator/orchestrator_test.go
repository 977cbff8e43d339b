package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/swarmlabs/hive/internal/ports"
	"github.com/swarmlabs/hive/internal/tree"
	"github.com/swarmlabs/hive/pkg/models"
)

type fakeLLM struct {
	invoke  func(messages []ports.Message, system, schema string) (string, error)
	prompts []string
}

func (f *fakeLLM) Invoke(ctx context.Context, messages []ports.Message, system, schema string) (string, error) {
	f.prompts = append(f.prompts, messages[0].Content)
	return f.invoke(messages, system, schema)
}

type fakeSearch struct{ result string }

func (f *fakeSearch) Search(ctx context.Context, query string) string { return f.result }

func TestParseDecision(t *testing.T) {
	d, err := ParseDecision("```json\n{\"action_type\":\"delegate_to_crew\",\"delegate_targets\":[\"coding_crew\"],\"instruction\":\"do it\"}\n```")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if d.ActionType != "delegate_to_crew" || d.DelegateTargets[0] != "coding_crew" {
		t.Errorf("unexpected decision: %+v", d)
	}

	bad := []string{
		"not json",
		`{"action_type":"teleport","instruction":"x"}`,
		`{"action_type":"delegate_to_crew","instruction":"x"}`,
		`{"action_type":"call_tool","instruction":"x"}`,
		`{"action_type":"finish_task"}`,
	}
	for _, raw := range bad {
		if _, err := ParseDecision(raw); err == nil {
			t.Errorf("expected parse failure for %q", raw)
		}
	}
}

func TestTickDelegation(t *testing.T) {
	llm := &fakeLLM{invoke: func(messages []ports.Message, system, schema string) (string, error) {
		return `{"action_type":"delegate_to_crew","delegate_targets":["coding_crew"],"instruction":"write the parser"}`, nil
	}}
	o := New(Config{LLM: llm})
	store := tree.InitFromTask("build a parser", "T-1")

	o.Tick(context.Background(), store)

	state := store.State()
	if state.RouterDecision != models.RouteContinue {
		t.Errorf("expected continue, got %s", state.RouterDecision)
	}
	if state.NextStep == nil || state.NextStep.AgentName != "coding_crew" {
		t.Errorf("unexpected next step: %+v", state.NextStep)
	}
}

func TestFeedbackPrecedenceAndClearing(t *testing.T) {
	llm := &fakeLLM{invoke: func(messages []ports.Message, system, schema string) (string, error) {
		return `{"action_type":"delegate_to_crew","delegate_targets":["coding_crew"],"instruction":"redo with metric units"}`, nil
	}}
	o := New(Config{LLM: llm})
	store := tree.InitFromTask("build a report", "T-1")
	store.State().UserFeedbackQueue = "stop and use metric units instead"

	o.Tick(context.Background(), store)

	if !strings.Contains(llm.prompts[0], "stop and use metric units instead") {
		t.Error("feedback must appear verbatim in the planning context")
	}
	if idx := strings.Index(llm.prompts[0], "stop and use metric units"); idx > strings.Index(llm.prompts[0], "Goal:") {
		t.Error("feedback must lead the planning context")
	}
	if store.State().UserFeedbackQueue != "" {
		t.Error("feedback must be cleared after a successful tick")
	}
}

func TestPlanningFailureDegradesToHuman(t *testing.T) {
	llm := &fakeLLM{invoke: func(messages []ports.Message, system, schema string) (string, error) {
		return "", errors.New("rate limited")
	}}
	o := New(Config{LLM: llm})
	store := tree.InitFromTask("task", "T-1")
	store.State().UserFeedbackQueue = "pending human note"

	o.Tick(context.Background(), store)

	state := store.State()
	if state.RouterDecision != models.RouteHuman {
		t.Errorf("expected degradation to human, got %s", state.RouterDecision)
	}
	if state.LastError == "" {
		t.Error("expected lastError to be recorded")
	}
	if state.UserFeedbackQueue != "pending human note" {
		t.Error("feedback must survive a failed tick")
	}
}

func TestInvalidDecisionDegradesToHuman(t *testing.T) {
	llm := &fakeLLM{invoke: func(messages []ports.Message, system, schema string) (string, error) {
		return "I would suggest delegating to the coding crew.", nil
	}}
	o := New(Config{LLM: llm})
	store := tree.InitFromTask("task", "T-1")

	o.Tick(context.Background(), store)

	if store.State().RouterDecision != models.RouteHuman {
		t.Errorf("expected degradation to human, got %s", store.State().RouterDecision)
	}
}

func TestFinishCompletesActiveNode(t *testing.T) {
	llm := &fakeLLM{invoke: func(messages []ports.Message, system, schema string) (string, error) {
		return `{"action_type":"finish_task","instruction":"All done: parser built and tested."}`, nil
	}}
	o := New(Config{LLM: llm})
	store := tree.InitFromTask("build a parser", "T-1")

	o.Tick(context.Background(), store)

	state := store.State()
	if state.RouterDecision != models.RouteFinish {
		t.Errorf("expected finish, got %s", state.RouterDecision)
	}
	if state.FinalReport == "" {
		t.Error("finishing must set the final report")
	}
	if store.ActiveNode().Status != models.StatusCompleted {
		t.Error("finishing must complete the active node")
	}
}

func TestSpeculativeSearchFillsPrefetchCache(t *testing.T) {
	llm := &fakeLLM{invoke: func(messages []ports.Message, system, schema string) (string, error) {
		return `{"action_type":"delegate_to_crew","delegate_targets":["researcher"],"instruction":"research go schedulers","speculative_search_queries":["go scheduler design"]}`, nil
	}}
	o := New(Config{LLM: llm, Search: &fakeSearch{result: "goroutines multiplexed onto threads"}})
	store := tree.InitFromTask("task", "T-1")

	o.Tick(context.Background(), store)
	o.Wait()
	// Results drain into the state at the start of the next tick.
	o.Tick(context.Background(), store)

	state := store.State()
	if state.PrefetchCache["go scheduler design"] == "" {
		t.Fatalf("expected prefetch cache entry, got %v", state.PrefetchCache)
	}
	if len(llm.prompts) < 2 || !strings.Contains(llm.prompts[1], "goroutines multiplexed") {
		t.Error("second tick context must surface the prefetched result")
	}
}

func TestContextBoundedSiblingSummaries(t *testing.T) {
	llm := &fakeLLM{invoke: func(messages []ports.Message, system, schema string) (string, error) {
		return `{"action_type":"finish_task","instruction":"done"}`, nil
	}}
	o := New(Config{LLM: llm})
	store := tree.InitFromTask("task", "T-1")

	root := store.ActiveNode()
	for i := 0; i < 12; i++ {
		n := models.NewNode(models.LevelSubtree, "step", "test")
		if err := store.AddNode(root.ID, n); err != nil {
			t.Fatalf("add: %v", err)
		}
		if err := store.Complete(n.ID, strings.Repeat("x", 5)+time.Now().String()); err != nil {
			t.Fatalf("complete: %v", err)
		}
	}

	o.Tick(context.Background(), store)

	lines := strings.Count(llm.prompts[0], "- ")
	if lines > maxSiblingSummaries {
		t.Errorf("expected at most %d summary lines, got %d", maxSiblingSummaries, lines)
	}
}
