// Package orchestrator implements the planning tick and the
// fan-out/fan-in scheduler. One tick inspects the task tree, asks the
// LLM port for a single structured decision, and writes it into the
// project state; the scheduler then turns a delegation decision into
// concurrent crew runs and folds their results back into the tree.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/swarmlabs/hive/internal/ports"
	"github.com/swarmlabs/hive/internal/tree"
	"github.com/swarmlabs/hive/pkg/models"
)

// maxSiblingSummaries bounds the completed-sibling handshake digest.
const maxSiblingSummaries = 8

// maxPrefetchLines bounds how many cached prefetch entries the planner
// sees per tick.
const maxPrefetchLines = 2

const plannerSystem = `You are the orchestrator of a team of specialist crews. Each tick you choose exactly one next action for the active task: delegate to one or more crews (coding_crew, data_crew, content_crew, researcher; list several for independent work to run in parallel), call a tool, ask the human a question, or finish the task with a final report as the instruction. Prefer finishing once the completed work covers the goal. You may list speculative_search_queries likely useful soon.`

// Orchestrator decides the single next action per tick.
type Orchestrator struct {
	llm     ports.LLM
	search  ports.Search
	sandbox ports.Sandbox

	// pending holds prefetch results produced by fire-and-forget
	// searches. They are drained into ProjectState at the start of the
	// next tick so the state itself stays single-writer.
	mu      sync.Mutex
	pending map[string]string
	wg      sync.WaitGroup
}

// Config contains the ports an Orchestrator depends on. Search and
// Sandbox may be nil; speculative side effects are then skipped.
type Config struct {
	LLM     ports.LLM
	Search  ports.Search
	Sandbox ports.Sandbox
}

// New creates an orchestrator.
func New(cfg Config) *Orchestrator {
	return &Orchestrator{
		llm:     cfg.LLM,
		search:  cfg.Search,
		sandbox: cfg.Sandbox,
		pending: make(map[string]string),
	}
}

// Tick runs one planning step. Planning failures degrade to requesting
// human intervention via LastError and RouterDecision; they are never
// returned as errors, and pending user feedback survives them.
func (o *Orchestrator) Tick(ctx context.Context, store *tree.Store) {
	state := store.State()
	o.drainPrefetch(state)

	prompt := o.buildContext(store)
	raw, err := o.llm.Invoke(ctx, []ports.Message{{Role: "user", Content: prompt}}, plannerSystem, decisionSchema)
	if err != nil {
		o.degrade(state, fmt.Sprintf("planning failed: %v", err))
		return
	}
	decision, err := ParseDecision(raw)
	if err != nil {
		o.degrade(state, fmt.Sprintf("planning returned invalid decision: %v", err))
		return
	}

	o.apply(store, decision)

	// A successful tick consumes pending feedback and clears the error.
	state.UserFeedbackQueue = ""
	state.LastError = ""

	o.speculate(decision)
}

// degrade records the failure and routes to the human instead of
// retrying forever. Feedback is deliberately preserved.
func (o *Orchestrator) degrade(state *models.ProjectState, msg string) {
	log.Printf("[orchestrator] %s", msg)
	state.LastError = msg
	state.RouterDecision = models.RouteHuman
	state.NextStep = nil
}

// apply maps a parsed decision onto the project state.
func (o *Orchestrator) apply(store *tree.Store, d *Decision) {
	state := store.State()

	switch d.ActionType {
	case "delegate_to_crew":
		state.RouterDecision = models.RouteContinue
		step := &models.NextStep{Instruction: d.Instruction, SyncRequirement: d.SyncRequirement}
		if len(d.DelegateTargets) == 1 {
			step.AgentName = d.DelegateTargets[0]
		} else {
			step.ParallelAgents = d.DelegateTargets
		}
		state.NextStep = step

	case "call_tool":
		state.RouterDecision = models.RouteTool
		state.NextStep = &models.NextStep{Instruction: d.Instruction, Tool: d.ToolCall}

	case "ask_human":
		state.RouterDecision = models.RouteHuman
		state.NextStep = nil
		question := d.HumanQuestion
		if question == "" {
			question = d.Instruction
		}
		log.Printf("[orchestrator] requesting human input: %s", question)

	case "finish_task":
		state.RouterDecision = models.RouteFinish
		state.NextStep = nil
		state.FinalReport = d.Instruction
		if active := store.ActiveNode(); active != nil {
			if err := store.Complete(active.ID, d.Instruction); err != nil {
				log.Printf("[orchestrator] complete active node: %v", err)
			}
		}
	}
}

// buildContext assembles the bounded planning prompt. Pending human
// feedback always leads; everything else follows in fixed order.
func (o *Orchestrator) buildContext(store *tree.Store) string {
	state := store.State()
	var sb strings.Builder

	if state.UserFeedbackQueue != "" {
		fmt.Fprintf(&sb, "HUMAN FEEDBACK (highest priority, supersedes the current plan):\n%s\n\n", state.UserFeedbackQueue)
	}
	if state.LastError != "" {
		fmt.Fprintf(&sb, "Last error: %s\n\n", state.LastError)
	}

	fmt.Fprintf(&sb, "Goal: %s\n", state.UserInput())

	active := store.ActiveNode()
	if active != nil {
		if sums := store.CompletedSiblingSummaries(active.ID, maxSiblingSummaries); len(sums) > 0 {
			sb.WriteString("\nCompleted sibling work:\n")
			for _, s := range sums {
				fmt.Fprintf(&sb, "- %s\n", s)
			}
		}
		if sums := store.CompletedChildSummaries(active.ID, maxSiblingSummaries); len(sums) > 0 {
			sb.WriteString("\nCompleted work under the active task:\n")
			for _, s := range sums {
				fmt.Fprintf(&sb, "- %s\n", s)
			}
		}
		fmt.Fprintf(&sb, "\nActive task: %s\n", active.Instruction)
	}

	if len(state.VectorClock) > 0 {
		fmt.Fprintf(&sb, "\nProgress counters: %v\n", state.VectorClock)
	}
	if recent := state.RecentPrefetch(maxPrefetchLines); len(recent) > 0 {
		sb.WriteString("\nPrefetched research:\n")
		for _, line := range recent {
			fmt.Fprintf(&sb, "- %s\n", line)
		}
	}
	return sb.String()
}

// speculate fires the decision's best-effort side effects: sandbox
// warm-up ahead of a coding delegation and prefetch searches. Failures
// are silently ignored.
func (o *Orchestrator) speculate(d *Decision) {
	if o.sandbox != nil && d.ActionType == "delegate_to_crew" {
		for _, target := range d.DelegateTargets {
			if target == "coding_crew" {
				o.wg.Add(1)
				go func() {
					defer o.wg.Done()
					o.sandbox.WarmUp(context.Background())
				}()
				break
			}
		}
	}
	if o.search == nil {
		return
	}
	for _, q := range d.SpeculativeSearchQueries {
		q := q
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			result := o.search.Search(context.Background(), q)
			o.mu.Lock()
			o.pending[q] = result
			o.mu.Unlock()
		}()
	}
}

// drainPrefetch moves finished speculative results into the state.
func (o *Orchestrator) drainPrefetch(state *models.ProjectState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for q, r := range o.pending {
		state.RecordPrefetch(q, r)
		delete(o.pending, q)
	}
}

// Wait blocks until outstanding speculative work finishes. Used by
// tests and shutdown.
func (o *Orchestrator) Wait() { o.wg.Wait() }
