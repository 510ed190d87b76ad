package session

import (
	"fmt"
	"strings"
)

// Summary renders what the models should know about this user: the
// in-progress flow, recent tasks and people, known people, and learned
// patterns. Patterns at or above threshold are labeled strong, the rest
// tentative; none are left out.
func (c *ConversationContext) Summary(threshold float64, maxPatterns int) string {
	var b strings.Builder
	s := c.Session

	if s != nil && s.ActiveFlow != nil {
		fmt.Fprintf(&b, "In progress: %s %s\n", s.ActiveFlow.Kind, string(s.ActiveFlow.State))
	}
	if s != nil && len(s.RecentTasks) > 0 {
		b.WriteString("Recent tasks (most recent first):\n")
		for _, t := range s.RecentTasks {
			marker := ""
			if t.ID == s.LastCreatedTaskID {
				marker = " [just added]"
			}
			fmt.Fprintf(&b, "- %s %s%s\n", t.ID, t.Title, marker)
		}
	}
	if s != nil && len(s.RecentPeople) > 0 {
		b.WriteString("Recent people:\n")
		for _, p := range s.RecentPeople {
			fmt.Fprintf(&b, "- %s %s\n", p.ID, p.Name)
		}
	}
	if len(c.Entities.People) > 0 {
		names := make([]string, 0, len(c.Entities.People))
		for _, p := range c.Entities.People {
			names = append(names, p.Name)
		}
		fmt.Fprintf(&b, "Known people: %s\n", strings.Join(names, ", "))
	}
	if len(c.Entities.Projects) > 0 {
		titles := make([]string, 0, len(c.Entities.Projects))
		for _, p := range c.Entities.Projects {
			titles = append(titles, p.Title)
		}
		fmt.Fprintf(&b, "Projects: %s\n", strings.Join(titles, ", "))
	}
	if patterns := c.TopPatterns(maxPatterns); len(patterns) > 0 {
		b.WriteString("Learned habits:\n")
		for _, p := range patterns {
			label := "tentative"
			if p.Confidence >= threshold {
				label = "strong"
			}
			fmt.Fprintf(&b, "- %q usually means %s=%s (%s)\n", p.Word, p.Field, p.Value, label)
		}
	}
	if len(c.Preferences) > 0 {
		b.WriteString("Settings:")
		for _, k := range sortedKeys(c.Preferences) {
			fmt.Fprintf(&b, " %s=%s", k, c.Preferences[k])
		}
		b.WriteString("\n")
	}

	if b.Len() == 0 {
		return ""
	}
	return "Memory:\n" + strings.TrimRight(b.String(), "\n")
}

// Transcript renders the recent turns, oldest first.
func (s *Session) Transcript() string {
	var b strings.Builder
	for _, t := range s.RecentTurns {
		fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
