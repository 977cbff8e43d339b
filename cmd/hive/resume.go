package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/swarmlabs/hive/internal/state"
	"github.com/swarmlabs/hive/internal/tree"
)

var resumeFeedback string

var resumeCmd = &cobra.Command{
	Use:   "resume <session-id>",
	Short: "Resume a paused session, optionally with feedback",
	Long: `Resume loads the session's last persisted snapshot and continues
ticking. With --feedback, the text is queued for the next planning tick,
where it pre-empts the plan that was in flight.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]

		rt, err := buildRuntime(cfg, sessionID)
		if err != nil {
			return err
		}
		defer rt.Close()

		if _, err := rt.db.GetSession(sessionID); err != nil {
			return err
		}
		snapshot, err := rt.db.Get(sessionID)
		if err != nil {
			return fmt.Errorf("load snapshot: %w", err)
		}
		store, err := tree.Load(snapshot)
		if err != nil {
			return fmt.Errorf("rebuild task tree: %w", err)
		}

		if resumeFeedback != "" {
			rt.controller.InjectFeedback(resumeFeedback)
		}
		if err := rt.db.UpdateSessionStatus(sessionID, state.SessionActive); err != nil {
			return err
		}
		return drive(rt, sessionID, store)
	},
}

func init() {
	resumeCmd.Flags().StringVar(&resumeFeedback, "feedback", "", "Human feedback for the next planning tick")
}
