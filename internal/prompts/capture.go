package prompts

import (
	"fmt"
	"strings"

	"github.com/nugget/errand/internal/gtd"
)

// Short replies for turns answered without a model call.
const (
	NoRecentTaskText = "I don't have a recent task to fix. Which one did you mean?"
	NeedSettingText  = "Which setting? I can change timezone, digest_time, review_day, review_frequency, and default_context."
	NeedNameText     = "What's their name?"

	NeedCorrectionText = "What should I change, and to what? For example: \"no, that's a phone call\"."
)

// CapturedText confirms one stored task.
func CapturedText(t gtd.Task) string {
	var details []string
	if t.Type != "" && t.Type != gtd.TypeAction {
		details = append(details, string(t.Type))
	}
	if t.PersonName != "" {
		details = append(details, t.PersonName)
	}
	if t.Context != "" {
		details = append(details, "@"+string(t.Context))
	}
	if t.Priority != "" {
		details = append(details, strings.ReplaceAll(string(t.Priority), "_", " "))
	}
	if t.DueDate != "" {
		details = append(details, "due "+t.DueDate)
	}
	if len(details) == 0 {
		return fmt.Sprintf("Added %q.", t.Title)
	}
	return fmt.Sprintf("Added %q (%s).", t.Title, strings.Join(details, ", "))
}

// BatchFailure is one item a batch could not store.
type BatchFailure struct {
	Title  string
	Reason string
}

// BatchText summarizes a batch capture. truncated counts items that were
// never attempted because the message had too many.
func BatchText(created []string, failed []BatchFailure, truncated int) string {
	var b strings.Builder
	switch len(created) {
	case 0:
		b.WriteString("I couldn't add any of those.")
	case 1:
		fmt.Fprintf(&b, "Added %q.", created[0])
	default:
		fmt.Fprintf(&b, "Added %d tasks: %s.", len(created), strings.Join(created, ", "))
	}
	for _, f := range failed {
		title := f.Title
		if title == "" {
			title = "one item"
		} else {
			title = fmt.Sprintf("%q", title)
		}
		fmt.Fprintf(&b, " Skipped %s: %s.", title, f.Reason)
	}
	if truncated > 0 {
		fmt.Fprintf(&b, " I only took the first %d; send the other %d again.", len(created)+len(failed), truncated)
	}
	return b.String()
}

// PersonAddedText confirms a new person.
func PersonAddedText(name string) string {
	return fmt.Sprintf("Added %s to your people.", name)
}

// PreferenceSetText confirms a settings change.
func PreferenceSetText(key, value string) string {
	return fmt.Sprintf("Set %s to %s.", strings.ReplaceAll(key, "_", " "), value)
}

// CorrectedText confirms a correct_last override.
func CorrectedText(title, field, value string) string {
	return fmt.Sprintf("Fixed: %q now has %s %s.", title, strings.ReplaceAll(field, "_", " "), value)
}

// NotChangedText reports a direct action that failed validation or
// storage. reason comes from a tool result and never carries internals.
func NotChangedText(reason string) string {
	return fmt.Sprintf("I couldn't do that: %s.", strings.TrimSuffix(reason, "."))
}
