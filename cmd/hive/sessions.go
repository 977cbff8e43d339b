package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/swarmlabs/hive/internal/state"
)

var sessionTaskStyle = lipgloss.NewStyle().MaxWidth(60)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := state.Open(cfg.State.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		sessions, err := db.ListSessions()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions yet; start one with: hive run <task>")
			return nil
		}

		for _, s := range sessions {
			fmt.Printf("%s  %-10s  %s  %s\n",
				color.CyanString(s.ID),
				statusColor(s.Status),
				s.UpdatedAt.Format("2006-01-02 15:04"),
				sessionTaskStyle.Render(s.RootTask))
		}
		return nil
	},
}

func statusColor(s state.SessionStatus) string {
	switch s {
	case state.SessionCompleted:
		return color.GreenString(string(s))
	case state.SessionPaused:
		return color.YellowString(string(s))
	case state.SessionFailed:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}
