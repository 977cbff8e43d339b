package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/swarmlabs/hive/internal/crew"
	"github.com/swarmlabs/hive/internal/ports"
	"github.com/swarmlabs/hive/internal/trace"
	"github.com/swarmlabs/hive/internal/tree"
	"github.com/swarmlabs/hive/pkg/models"
)

// Scheduler turns one delegation decision into one or more concurrent
// crew runs, waits for all of them, and folds the outcome back into the
// tree as a single compressed digest.
type Scheduler struct {
	registry *crew.Registry
	runner   *crew.Runner
	tracer   *trace.Log
	search   ports.Search
}

// SchedulerConfig contains a Scheduler's collaborators. Tracer may be
// nil; the audit trail is then skipped.
type SchedulerConfig struct {
	Registry *crew.Registry
	Runner   *crew.Runner
	Tracer   *trace.Log
	Search   ports.Search
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	return &Scheduler{
		registry: cfg.Registry,
		runner:   cfg.Runner,
		tracer:   cfg.Tracer,
		search:   cfg.Search,
	}
}

// dispatchTarget pairs a crew definition with its tree node.
type dispatchTarget struct {
	def    crew.Definition
	nodeID string
	runID  string
}

// Dispatch executes the pending NextStep. Unknown crew names are
// dropped with a warning; a step naming only unknown crews routes back
// to the planner through LastError. All dispatched targets complete
// before Dispatch returns (fan-in join), and NextStep is cleared so the
// same dispatch never re-triggers.
func (s *Scheduler) Dispatch(ctx context.Context, store *tree.Store, sessionID string) error {
	state := store.State()
	step := state.NextStep
	names := step.Targets()
	if len(names) == 0 {
		return nil
	}

	active := store.ActiveNode()
	if active == nil {
		return fmt.Errorf("dispatch: no active node")
	}

	var targets []dispatchTarget
	var unknown []string
	for _, name := range names {
		def, ok := s.registry.Get(name)
		if !ok {
			log.Printf("[scheduler] dropping unknown delegation target %q", name)
			unknown = append(unknown, name)
			continue
		}
		node := models.NewNode(models.LevelSubtree, step.Instruction, "delegated to "+name)
		node.Status = models.StatusActive
		if err := store.AddNode(active.ID, node); err != nil {
			return fmt.Errorf("dispatch: %w", err)
		}
		targets = append(targets, dispatchTarget{
			def:    def,
			nodeID: node.ID,
			runID:  fmt.Sprintf("%s:%s:%s", sessionID, name, uuid.New().String()[:8]),
		})
	}

	if len(targets) == 0 {
		state.LastError = fmt.Sprintf("delegation named no known crews (unknown: %s); known crews: %s",
			strings.Join(unknown, ", "), strings.Join(s.registry.Names(), ", "))
		state.NextStep = nil
		return nil
	}

	// Fan-out. Each target gets an isolated run id; none of them touch
	// the project state until after the join.
	results := make([]*crew.Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			log.Printf("[scheduler] dispatching %s", t.runID)
			res, err := s.runner.Run(gctx, t.def, t.runID, step.Instruction)
			if err != nil {
				return fmt.Errorf("%s: %w", t.runID, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, t := range targets {
			if n := store.Node(t.nodeID); n != nil && n.Status == models.StatusActive {
				n.Status = models.StatusFailed
			}
		}
		state.LastError = fmt.Sprintf("crew dispatch failed: %v", err)
		state.RouterDecision = models.RouteHuman
		state.NextStep = nil
		return nil
	}

	// Fan-in. Results stay paired with their target by index, so two
	// dispatches of the same crew keep distinct nodes. Sorting by role
	// then run id makes the digest identical regardless of completion
	// order.
	completed := make([]struct {
		res    *crew.Result
		nodeID string
	}, len(targets))
	for i := range targets {
		completed[i].res = results[i]
		completed[i].nodeID = targets[i].nodeID
	}
	sort.Slice(completed, func(i, j int) bool {
		if completed[i].res.Role != completed[j].res.Role {
			return completed[i].res.Role < completed[j].res.Role
		}
		return completed[i].res.RunID < completed[j].res.RunID
	})

	var digests []string
	for _, c := range completed {
		res, nodeID := c.res, c.nodeID

		traceID := ""
		if s.tracer != nil {
			traceID = s.tracer.Append(nodeID, res.Crew).Fingerprint
		}
		if err := store.Complete(nodeID, res.Digest); err != nil {
			return fmt.Errorf("dispatch complete %s: %w", nodeID, err)
		}
		state.TickClock(res.Crew)
		if res.Artifact != "" {
			v := state.AppendArtifact(nodeID, traceID, res.ArtifactType, res.Crew, res.Artifact)
			log.Printf("[scheduler] recorded artifact %s from %s", v.Label, res.Crew)
		}
		digests = append(digests, res.Digest)
	}

	aggregate := strings.Join(digests, "\n")
	active.SemanticSummary = aggregate
	active.AppendHistory("system", "crew results:\n"+aggregate)
	state.NextStep = nil
	return nil
}

// ExecuteTool runs a pending direct tool call. Only the search tool is
// known; results land in the active node's history and the prefetch
// cache so the next tick can plan over them.
func (s *Scheduler) ExecuteTool(ctx context.Context, store *tree.Store) {
	state := store.State()
	step := state.NextStep
	if step == nil || step.Tool == nil {
		return
	}
	defer func() { state.NextStep = nil }()

	if step.Tool.Name != "search" || s.search == nil {
		state.LastError = fmt.Sprintf("unknown tool %q", step.Tool.Name)
		return
	}

	result := s.search.Search(ctx, step.Tool.Input)
	state.RecordPrefetch(step.Tool.Input, result)
	if active := store.ActiveNode(); active != nil {
		active.AppendHistory("system", fmt.Sprintf("search %q:\n%s", step.Tool.Input, result))
	}
	if s.tracer != nil {
		s.tracer.Append(state.ActiveNodeID, "search_tool")
	}
}
