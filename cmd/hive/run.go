package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/swarmlabs/hive/internal/state"
	"github.com/swarmlabs/hive/internal/tree"
	"github.com/swarmlabs/hive/pkg/models"
)

var runCmd = &cobra.Command{
	Use:   "run <task...>",
	Short: "Start a new session for a task",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		task := strings.Join(args, " ")
		sessionID := uuid.New().String()[:8]

		rt, err := buildRuntime(cfg, sessionID)
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := rt.db.CreateSession(sessionID, task); err != nil {
			return err
		}
		fmt.Printf("session %s\n", color.CyanString(sessionID))

		store := tree.InitFromTask(task, "")
		return drive(rt, sessionID, store)
	},
}

// drive runs the controller to its terminal state and records the
// session's final status.
func drive(rt *runtime, sessionID string, store *tree.Store) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan struct{})
	go func() {
		renderEvents(rt.controller.Events())
		close(done)
	}()

	runErr := rt.controller.Run(ctx, store)
	<-done

	status := finalStatus(store, runErr)
	if err := rt.db.UpdateSessionStatus(sessionID, status); err != nil {
		return err
	}
	if runErr != nil && ctx.Err() == nil {
		return runErr
	}
	if status == state.SessionPaused {
		fmt.Printf("resume with: hive resume %s [--feedback \"...\"]\n", sessionID)
	}
	return nil
}

func finalStatus(store *tree.Store, runErr error) state.SessionStatus {
	switch {
	// An interrupted run is paused, not failed: the last snapshot is
	// intact and the session resumes from it.
	case errors.Is(runErr, context.Canceled):
		return state.SessionPaused
	case runErr != nil:
		return state.SessionFailed
	case store.State().RouterDecision == models.RouteFinish:
		return state.SessionCompleted
	default:
		return state.SessionPaused
	}
}
