package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/swarmlabs/hive/internal/state"
	"github.com/swarmlabs/hive/internal/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace <session-id>",
	Short: "Show and verify a session's audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := state.Open(cfg.State.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := db.ListTrace(args[0])
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no trail entries for this session")
			return nil
		}

		for _, e := range entries {
			fmt.Printf("%3d  %s  %-14s  node %s  %s\n",
				e.Depth,
				e.Timestamp.Format("15:04:05"),
				e.Actor,
				shortID(e.NodeID),
				color.HiBlackString(e.Fingerprint))
		}

		if err := trace.VerifyEntries(entries); err != nil {
			color.Red("✗ trail verification failed: %v", err)
			return err
		}
		color.Green("✓ trail verified (%d entries)", len(entries))
		return nil
	},
}
