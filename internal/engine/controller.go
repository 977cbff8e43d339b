// Package engine implements the run controller: the tick loop that
// drives planning and dispatch, persists a snapshot after every
// mutation, and owns the pause, resume, cancel, and human-intervention
// contract.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/swarmlabs/hive/internal/orchestrator"
	"github.com/swarmlabs/hive/internal/tree"
	"github.com/swarmlabs/hive/pkg/models"
)

// ErrFatal wraps a panic that escaped a tick. The last persisted
// snapshot is intact and the session remains resumable.
var ErrFatal = errors.New("fatal engine error")

// SessionStore is the persistence boundary the controller treats as
// the sole source of truth across process restarts.
type SessionStore interface {
	Get(id string) (*models.ProjectState, error)
	Put(id string, state *models.ProjectState) error
}

// EventType classifies controller events.
type EventType string

const (
	// EventTick marks the start of a planning tick.
	EventTick EventType = "tick"
	// EventDecision reports the router decision for a tick.
	EventDecision EventType = "decision"
	// EventArtifact reports a newly recorded artifact version.
	EventArtifact EventType = "artifact"
	// EventPaused reports the run pausing for human input.
	EventPaused EventType = "paused"
	// EventCompleted reports a finished run.
	EventCompleted EventType = "completed"
	// EventFatal reports an unexpected error that halted the run.
	EventFatal EventType = "fatal"
)

// Event is one structured progress notification. Enough to reconstruct
// the active breadcrumb path, the latest decision, and new artifacts.
type Event struct {
	Type        EventType               `json:"type"`
	Tick        int                     `json:"tick"`
	Message     string                  `json:"message,omitempty"`
	Decision    models.RouterDecision   `json:"decision,omitempty"`
	Breadcrumbs []tree.Breadcrumb       `json:"breadcrumbs,omitempty"`
	Artifact    *models.ArtifactVersion `json:"artifact,omitempty"`
}

// Controller drives one session's tick loop.
type Controller struct {
	orch      *orchestrator.Orchestrator
	sched     *orchestrator.Scheduler
	store     SessionStore
	sessionID string
	maxTicks  int

	// pauseBefore names crews requiring human approval before dispatch.
	pauseBefore map[string]bool

	events chan Event

	// mu guards feedback injected while a tick is mid-flight. It is
	// read at the start of each tick, not snapshotted at dispatch time.
	mu       sync.Mutex
	feedback string
}

// ControllerConfig contains a Controller's collaborators and limits.
type ControllerConfig struct {
	Orchestrator *orchestrator.Orchestrator
	Scheduler    *orchestrator.Scheduler
	Store        SessionStore
	SessionID    string
	// MaxTicks bounds the loop; zero means 25.
	MaxTicks int
	// PauseBefore lists crew names to pause ahead of dispatching.
	PauseBefore []string
}

// NewController creates a run controller for one session.
func NewController(cfg ControllerConfig) *Controller {
	maxTicks := cfg.MaxTicks
	if maxTicks <= 0 {
		maxTicks = 25
	}
	pause := make(map[string]bool, len(cfg.PauseBefore))
	for _, name := range cfg.PauseBefore {
		pause[name] = true
	}
	return &Controller{
		orch:        cfg.Orchestrator,
		sched:       cfg.Scheduler,
		store:       cfg.Store,
		sessionID:   cfg.SessionID,
		maxTicks:    maxTicks,
		pauseBefore: pause,
		events:      make(chan Event, 64),
	}
}

// Events returns the controller's event stream.
func (c *Controller) Events() <-chan Event { return c.events }

// InjectFeedback queues human feedback for the next tick. Safe to call
// at any time, including while a tick is mid-flight.
func (c *Controller) InjectFeedback(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feedback != "" {
		c.feedback += "\n" + text
	} else {
		c.feedback = text
	}
	log.Printf("[engine] feedback queued for session %s", c.sessionID)
}

// Run ticks the session until it finishes, pauses for a human, hits
// the tick budget, or the context is cancelled. Cancellation stops new
// ticks promptly; the last persisted snapshot always survives.
func (c *Controller) Run(ctx context.Context, treeStore *tree.Store) error {
	defer close(c.events)

	state := treeStore.State()

	// A snapshot with an undispatched step means the previous run
	// stopped at an approval gate (or mid-tick). Resuming is the
	// approval: execute the step as persisted, including any human
	// edits made while paused, before planning again. The gate does
	// not re-apply to a step the human has already seen.
	if state.NextStep != nil &&
		(state.RouterDecision == models.RouteContinue || state.RouterDecision == models.RouteTool) {
		if err := c.runApproved(ctx, treeStore); err != nil {
			c.emit(Event{Type: EventFatal, Tick: 0, Message: err.Error()})
			return err
		}
	}

	for tick := 1; tick <= c.maxTicks; tick++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c.drainFeedback(state)
		c.emit(Event{Type: EventTick, Tick: tick, Breadcrumbs: treeStore.Breadcrumbs()})

		done, err := c.tick(ctx, tick, treeStore)
		if err != nil {
			c.emit(Event{Type: EventFatal, Tick: tick, Message: err.Error()})
			return err
		}
		if done {
			return nil
		}
	}

	state.LastError = fmt.Sprintf("tick budget of %d exhausted without finishing", c.maxTicks)
	state.RouterDecision = models.RouteHuman
	c.persist(treeStore)
	c.emit(Event{Type: EventPaused, Tick: c.maxTicks, Message: state.LastError})
	return nil
}

// tick runs one plan-then-dispatch cycle. A panic anywhere inside is
// converted to ErrFatal; the state already persisted stays intact.
func (c *Controller) tick(ctx context.Context, tick int, treeStore *tree.Store) (done bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: tick %d: %v", ErrFatal, tick, r)
		}
	}()

	state := treeStore.State()
	c.orch.Tick(ctx, treeStore)
	c.persist(treeStore)
	c.emit(Event{Type: EventDecision, Tick: tick, Decision: state.RouterDecision, Message: state.LastError})

	switch state.RouterDecision {
	case models.RouteFinish:
		c.emit(Event{Type: EventCompleted, Tick: tick, Message: state.FinalReport})
		return true, nil

	case models.RouteHuman:
		c.emit(Event{Type: EventPaused, Tick: tick, Message: state.LastError})
		return true, nil

	case models.RouteTool:
		c.sched.ExecuteTool(ctx, treeStore)
		c.persist(treeStore)
		return false, nil

	case models.RouteContinue:
		if crewName, hit := c.pauseGate(state); hit {
			c.persist(treeStore)
			c.emit(Event{Type: EventPaused, Tick: tick,
				Message: fmt.Sprintf("paused before dispatching %s; resume to proceed", crewName)})
			return true, nil
		}
		return false, c.dispatchStep(ctx, tick, treeStore)
	}
	return false, nil
}

// runApproved executes the step persisted by a previous run, bypassing
// the pause gate. A panic is converted to ErrFatal like a normal tick.
func (c *Controller) runApproved(ctx context.Context, treeStore *tree.Store) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: approved dispatch: %v", ErrFatal, r)
		}
	}()

	state := treeStore.State()
	c.emit(Event{Type: EventTick, Tick: 0, Breadcrumbs: treeStore.Breadcrumbs()})

	if state.RouterDecision == models.RouteTool {
		c.sched.ExecuteTool(ctx, treeStore)
		c.persist(treeStore)
		return nil
	}
	return c.dispatchStep(ctx, 0, treeStore)
}

// dispatchStep fans out the pending step, persists, and reports any
// new artifact versions.
func (c *Controller) dispatchStep(ctx context.Context, tick int, treeStore *tree.Store) error {
	state := treeStore.State()
	before := len(state.ArtifactHistory)
	if err := c.sched.Dispatch(ctx, treeStore, c.sessionID); err != nil {
		return err
	}
	c.persist(treeStore)
	for i := before; i < len(state.ArtifactHistory); i++ {
		v := state.ArtifactHistory[i]
		c.emit(Event{Type: EventArtifact, Tick: tick, Artifact: &v})
	}
	return nil
}

// pauseGate reports whether the pending step names a crew on the
// pause-before allow-list.
func (c *Controller) pauseGate(state *models.ProjectState) (string, bool) {
	for _, name := range state.NextStep.Targets() {
		if c.pauseBefore[name] {
			return name, true
		}
	}
	return "", false
}

// drainFeedback moves injected feedback onto the state at tick start.
func (c *Controller) drainFeedback(state *models.ProjectState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.feedback == "" {
		return
	}
	if state.UserFeedbackQueue != "" {
		state.UserFeedbackQueue += "\n" + c.feedback
	} else {
		state.UserFeedbackQueue = c.feedback
	}
	c.feedback = ""
}

// persist snapshots the state. A persistence failure is logged, not
// fatal: forward progress continues from the in-memory state and the
// previous snapshot remains loadable.
func (c *Controller) persist(treeStore *tree.Store) {
	if err := c.store.Put(c.sessionID, treeStore.State()); err != nil {
		log.Printf("[engine] persist session %s: %v", c.sessionID, err)
	}
}

// emit sends without blocking; a slow consumer drops events rather
// than stalling the run.
func (c *Controller) emit(e Event) {
	select {
	case c.events <- e:
	default:
	}
}
