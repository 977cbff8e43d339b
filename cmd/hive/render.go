package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/swarmlabs/hive/internal/engine"
	"github.com/swarmlabs/hive/internal/tree"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	crumbStyle  = lipgloss.NewStyle().Faint(true)
	reportStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1)
)

// renderEvents prints the controller's event stream until it closes.
func renderEvents(events <-chan engine.Event) {
	for e := range events {
		switch e.Type {
		case engine.EventTick:
			fmt.Println(headerStyle.Render(fmt.Sprintf("── tick %d ──", e.Tick)))
			if len(e.Breadcrumbs) > 0 {
				fmt.Println(crumbStyle.Render("   " + renderBreadcrumbs(e.Breadcrumbs)))
			}
		case engine.EventDecision:
			fmt.Printf("   decision: %s\n", color.CyanString(string(e.Decision)))
		case engine.EventArtifact:
			if e.Artifact != nil {
				fmt.Printf("   artifact %s (%s) from node %s\n",
					color.YellowString(e.Artifact.Label), e.Artifact.Type, shortID(e.Artifact.NodeID))
			}
		case engine.EventPaused:
			color.Yellow("⏸  paused: %s", e.Message)
		case engine.EventCompleted:
			color.Green("✓ completed")
			if e.Message != "" {
				fmt.Println(reportStyle.Render(e.Message))
			}
		case engine.EventFatal:
			color.Red("✗ fatal: %s", e.Message)
		}
	}
}

func renderBreadcrumbs(crumbs []tree.Breadcrumb) string {
	parts := make([]string, 0, len(crumbs))
	for _, c := range crumbs {
		parts = append(parts, fmt.Sprintf("%s[%s]", c.Label, c.Status))
	}
	return strings.Join(parts, " > ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
