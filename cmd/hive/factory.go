package main

import (
	"fmt"
	"log"

	"github.com/swarmlabs/hive/internal/config"
	"github.com/swarmlabs/hive/internal/crew"
	"github.com/swarmlabs/hive/internal/engine"
	"github.com/swarmlabs/hive/internal/llm"
	"github.com/swarmlabs/hive/internal/memory"
	"github.com/swarmlabs/hive/internal/orchestrator"
	"github.com/swarmlabs/hive/internal/ports"
	"github.com/swarmlabs/hive/internal/sandbox"
	"github.com/swarmlabs/hive/internal/search"
	"github.com/swarmlabs/hive/internal/state"
	"github.com/swarmlabs/hive/internal/trace"
)

// runtime bundles one session's assembled engine. Everything is wired
// explicitly here; no component reaches for ambient global state.
type runtime struct {
	db         *state.DB
	controller *engine.Controller
	tracer     *trace.Log
	closers    []func() error
}

// Close releases the runtime's resources in reverse acquisition order.
func (r *runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			log.Printf("[hive] close: %v", err)
		}
	}
}

// buildRuntime wires the capability ports, crews, orchestrator,
// scheduler, and controller for one session.
func buildRuntime(cfg *config.Config, sessionID string) (*runtime, error) {
	rt := &runtime{}

	db, err := state.Open(cfg.State.Path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	rt.db = db
	rt.closers = append(rt.closers, db.Close)

	var mem ports.VectorMemory = memory.Noop{}
	if cfg.Memory.Path != "" {
		bm, err := memory.Open(cfg.Memory.Path)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open memory index: %w", err)
		}
		mem = bm
		rt.closers = append(rt.closers, bm.Close)
	}

	llmClient, err := llm.NewClient(llm.ClientConfig{
		Model:          cfg.Anthropic.Model,
		APIKey:         cfg.Anthropic.APIKey,
		UseAWSBedrock:  cfg.Anthropic.UseAWSBedrock,
		AWSRegion:      cfg.Anthropic.AWSRegion,
		AWSProfile:     cfg.Anthropic.AWSProfile,
		Cache:          mem,
		CacheThreshold: cfg.Memory.CacheThreshold,
	})
	if err != nil {
		rt.Close()
		return nil, err
	}

	searcher := search.New(search.Config{
		Endpoint: cfg.Search.Endpoint,
		Timeout:  cfg.Search.Timeout,
	})
	sb := sandbox.New(sandbox.Config{
		Command: cfg.Sandbox.Command,
		Timeout: cfg.Sandbox.Timeout,
		WorkDir: cfg.Sandbox.WorkDir,
	})

	// Replaying persisted entries reconstructs the exact chain state,
	// so a resumed session extends its trail instead of forking it.
	tracer := trace.NewLog()
	if persisted, err := db.ListTrace(sessionID); err == nil {
		for _, e := range persisted {
			tracer.Append(e.NodeID, e.Actor)
		}
	}
	tracer.SetSink(func(e trace.Entry) {
		if err := db.AppendTrace(sessionID, e); err != nil {
			log.Printf("[hive] persist trace entry: %v", err)
		}
	})
	rt.tracer = tracer

	registry := crew.NewRegistry(crew.RegistryConfig{
		CodingIterations:  cfg.Crews.CodingIterations,
		DefaultIterations: cfg.Crews.DefaultIterations,
	})
	runner := crew.NewRunner(crew.RunnerConfig{
		LLM:     llmClient,
		Sandbox: sb,
		Search:  searcher,
		Memory:  mem,
	})

	rt.controller = engine.NewController(engine.ControllerConfig{
		Orchestrator: orchestrator.New(orchestrator.Config{
			LLM:     llmClient,
			Search:  searcher,
			Sandbox: sb,
		}),
		Scheduler: orchestrator.NewScheduler(orchestrator.SchedulerConfig{
			Registry: registry,
			Runner:   runner,
			Tracer:   tracer,
			Search:   searcher,
		}),
		Store:       db,
		SessionID:   sessionID,
		MaxTicks:    cfg.Engine.MaxTicks,
		PauseBefore: cfg.Crews.PauseBefore,
	})
	return rt, nil
}
