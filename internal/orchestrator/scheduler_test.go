package orchestrator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/swarmlabs/hive/internal/crew"
	"github.com/swarmlabs/hive/internal/ports"
	"github.com/swarmlabs/hive/internal/trace"
	"github.com/swarmlabs/hive/internal/tree"
	"github.com/swarmlabs/hive/pkg/models"
)

// approvingLLM approves every review and answers proposals, optionally
// delaying proposals whose system prompt matches slowSystem to vary
// crew completion order.
type approvingLLM struct {
	slowSystem string
}

func (f *approvingLLM) Invoke(ctx context.Context, messages []ports.Message, system, schema string) (string, error) {
	if schema != "" {
		return `{"status":"approve","feedback":""}`, nil
	}
	if f.slowSystem != "" && system == f.slowSystem {
		time.Sleep(50 * time.Millisecond)
	}
	return "artifact for " + system[:20], nil
}

func newTestScheduler(llm ports.LLM) (*Scheduler, *crew.Registry) {
	reg := crew.NewRegistry(crew.RegistryConfig{CodingIterations: 5, DefaultIterations: 3})
	runner := crew.NewRunner(crew.RunnerConfig{LLM: llm, Search: &fakeSearch{result: "findings"}})
	sched := NewScheduler(SchedulerConfig{
		Registry: reg,
		Runner:   runner,
		Tracer:   trace.NewLog(),
		Search:   &fakeSearch{result: "tool findings"},
	})
	return sched, reg
}

func dispatchStep(t *testing.T, sched *Scheduler, store *tree.Store, step *models.NextStep) {
	t.Helper()
	store.State().NextStep = step
	if err := sched.Dispatch(context.Background(), store, "s1"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
}

func TestFanOutWaitsForAllTargets(t *testing.T) {
	sched, _ := newTestScheduler(&approvingLLM{})
	store := tree.InitFromTask("compare frameworks", "T-1")

	dispatchStep(t, sched, store, &models.NextStep{
		ParallelAgents: []string{"researcher", "content_crew"},
		Instruction:    "compare go web frameworks",
	})

	state := store.State()
	active := store.ActiveNode()
	if strings.Count(active.SemanticSummary, "researcher:") != 1 || strings.Count(active.SemanticSummary, "writer:") != 1 {
		t.Errorf("digest must mention each role exactly once: %q", active.SemanticSummary)
	}
	if len(active.Children) != 2 {
		t.Fatalf("expected 2 child nodes, got %d", len(active.Children))
	}
	for _, c := range active.Children {
		if c.Status != models.StatusCompleted {
			t.Errorf("child %s not completed: %s", c.ID, c.Status)
		}
	}
	if state.VectorClock["researcher"] != 1 || state.VectorClock["content_crew"] != 1 {
		t.Errorf("expected one clock tick per completed branch, got %v", state.VectorClock)
	}
	if state.NextStep != nil {
		t.Error("NextStep must be cleared after dispatch")
	}
	if len(state.ArtifactHistory) != 2 {
		t.Errorf("expected 2 artifact versions, got %d", len(state.ArtifactHistory))
	}
}

func TestAggregationIsCommutative(t *testing.T) {
	// Delay one crew's proposal, then the other's, so completion order
	// flips between the two runs.
	run := func(slow string) string {
		reg := crew.NewRegistry(crew.RegistryConfig{CodingIterations: 5, DefaultIterations: 3})
		def, ok := reg.Get(slow)
		if !ok {
			t.Fatalf("unknown crew %q", slow)
		}
		sched, _ := newTestScheduler(&approvingLLM{slowSystem: def.ProposeSystem})
		store := tree.InitFromTask("task", "T-1")
		dispatchStep(t, sched, store, &models.NextStep{
			ParallelAgents: []string{"researcher", "content_crew"},
			Instruction:    "do the thing",
		})
		return store.ActiveNode().SemanticSummary
	}

	first := run("researcher")
	second := run("content_crew")
	if first != second {
		t.Errorf("digest must not depend on completion order:\n%q\nvs\n%q", first, second)
	}
}

func TestDuplicateTargetsKeepDistinctNodes(t *testing.T) {
	sched, _ := newTestScheduler(&approvingLLM{})
	store := tree.InitFromTask("task", "T-1")

	dispatchStep(t, sched, store, &models.NextStep{
		ParallelAgents: []string{"content_crew", "content_crew"},
		Instruction:    "write two takes",
	})

	active := store.ActiveNode()
	if len(active.Children) != 2 {
		t.Fatalf("expected 2 child nodes, got %d", len(active.Children))
	}
	for _, c := range active.Children {
		if c.Status != models.StatusCompleted {
			t.Errorf("child %s left in status %s after a full fan-in join", c.ID, c.Status)
		}
	}
	state := store.State()
	if state.VectorClock["content_crew"] != 2 {
		t.Errorf("expected 2 clock ticks for the branch, got %v", state.VectorClock)
	}
	if got := strings.Count(active.SemanticSummary, "writer:"); got != 2 {
		t.Errorf("digest must carry one line per dispatch, got %d in %q", got, active.SemanticSummary)
	}
	if len(state.ArtifactHistory) != 2 {
		t.Errorf("expected 2 artifact versions, got %d", len(state.ArtifactHistory))
	}
}

func TestUnknownTargetsDroppedWithWarning(t *testing.T) {
	sched, _ := newTestScheduler(&approvingLLM{})
	store := tree.InitFromTask("task", "T-1")

	dispatchStep(t, sched, store, &models.NextStep{
		ParallelAgents: []string{"marketing_crew", "content_crew"},
		Instruction:    "write copy",
	})

	active := store.ActiveNode()
	if len(active.Children) != 1 {
		t.Fatalf("unknown target must be dropped, got %d children", len(active.Children))
	}
	if store.State().LastError != "" {
		t.Error("a partially valid batch must not record an error")
	}
}

func TestAllUnknownTargetsRouteBack(t *testing.T) {
	sched, _ := newTestScheduler(&approvingLLM{})
	store := tree.InitFromTask("task", "T-1")

	dispatchStep(t, sched, store, &models.NextStep{
		AgentName:   "marketing_crew",
		Instruction: "write copy",
	})

	state := store.State()
	if state.LastError == "" || !strings.Contains(state.LastError, "marketing_crew") {
		t.Errorf("expected a descriptive lastError, got %q", state.LastError)
	}
	if state.NextStep != nil {
		t.Error("NextStep must be cleared")
	}
	if len(store.ActiveNode().Children) != 0 {
		t.Error("no child nodes should be created")
	}
}

func TestDispatchAppendsVerifiableTrace(t *testing.T) {
	sched, _ := newTestScheduler(&approvingLLM{})
	store := tree.InitFromTask("task", "T-1")

	dispatchStep(t, sched, store, &models.NextStep{
		AgentName:   "content_crew",
		Instruction: "write a summary",
	})

	if sched.tracer.Depth() != 1 {
		t.Fatalf("expected 1 trace entry, got %d", sched.tracer.Depth())
	}
	if err := sched.tracer.Verify(); err != nil {
		t.Errorf("trace verification: %v", err)
	}
	if store.State().ArtifactHistory[0].TraceID == "" {
		t.Error("artifact version must carry the trace fingerprint")
	}
}

func TestExecuteSearchTool(t *testing.T) {
	sched, _ := newTestScheduler(&approvingLLM{})
	store := tree.InitFromTask("task", "T-1")
	store.State().NextStep = &models.NextStep{
		Instruction: "look it up",
		Tool:        &models.ToolCall{Name: "search", Input: "go generics"},
	}

	sched.ExecuteTool(context.Background(), store)

	state := store.State()
	if state.PrefetchCache["go generics"] != "tool findings" {
		t.Errorf("expected tool result in prefetch cache, got %v", state.PrefetchCache)
	}
	if state.NextStep != nil {
		t.Error("NextStep must be cleared after a tool call")
	}
	if len(store.ActiveNode().LocalHistory) != 1 {
		t.Error("tool result must be recorded in the active node history")
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	sched, _ := newTestScheduler(&approvingLLM{})
	store := tree.InitFromTask("task", "T-1")
	store.State().NextStep = &models.NextStep{
		Instruction: "do magic",
		Tool:        &models.ToolCall{Name: "teleport", Input: "x"},
	}

	sched.ExecuteTool(context.Background(), store)

	if store.State().LastError == "" {
		t.Error("unknown tool must record a lastError")
	}
	if store.State().NextStep != nil {
		t.Error("NextStep must be cleared")
	}
}
