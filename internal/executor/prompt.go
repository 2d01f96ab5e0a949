package executor

import (
	"fmt"
	"strings"

	"github.com/mtzanidakis/agentcrew/internal/store"
	"github.com/mtzanidakis/agentcrew/internal/tools"
)

func systemPrompt(agent *store.Agent, role tools.Role, roster string, task *store.Task, reviewer string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, the %s of a small software team.\n", agent.Name, role.Label())
	if agent.Personality != "" {
		fmt.Fprintf(&b, "\nPersonality: %s\n", agent.Personality)
	}
	if roster != "" {
		b.WriteString("\nYour team:\n")
		b.WriteString(roster)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nCurrent task: %s (ID: %s)\n", task.Title, task.ID)

	b.WriteString("\nInstructions:\n")
	b.WriteString("- Analyse the task and decide what needs to be done.\n")
	b.WriteString("- Use the available tools to communicate with teammates and record progress.\n")
	if role == tools.RoleLead {
		b.WriteString("- Break the work into subtasks and assign each one to the most suitable teammate.\n")
	}
	if role.Allows(tools.RequestReview) && reviewer != "" {
		fmt.Fprintf(&b, "- When your work is done, request a review from %s.\n", reviewer)
	}
	b.WriteString("- Report your result clearly when you finish.\n")
	b.WriteString("- Be concise.\n")
	return b.String()
}

func userPrompt(task *store.Task, extra string) string {
	desc := task.Description
	if desc == "" {
		desc = "No additional description"
	}
	s := fmt.Sprintf("Task: %s\n\nDescription: %s", task.Title, desc)
	if extra != "" {
		s += "\n\nAdditional context: " + extra
	}
	return s
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
