package prompts

import "fmt"

// FallbackText is sent when a turn cannot be completed. Internal error
// detail is logged, never sent.
const FallbackText = "Sorry, I couldn't work that out. Text \"help\" to see what I can do."

// HelpText lists what the assistant understands.
const HelpText = `Text me things to remember, like "call mom friday" or "waiting on Sam for the report".
Ask "what's on today?", "what am I waiting on from Sam?", or "stats".
Say "done with X", "move X to next week", or "delete X".
"undo" reverses the last change.`

// CancelledText confirms an abandoned multi-step flow.
const CancelledText = "OK, dropped it."

// WhoIsItForText asks for the person a waiting or agenda item needs.
func WhoIsItForText(title string, agenda bool) string {
	if agenda {
		return fmt.Sprintf("Who do you want to discuss %q with?", title)
	}
	return fmt.Sprintf("Who are you waiting on for %q?", title)
}

// WhatKindText asks for the type of a task the classifier could not place.
func WhatKindText(title string) string {
	return fmt.Sprintf("Is %q something to do, a project, someday/maybe, or waiting on someone?", title)
}

// UncertainActionNotice is appended when an action timed out.
func UncertainActionNotice(tool string) string {
	return fmt.Sprintf("(%s may not have completed. Check before trying again.)", humanTool(tool))
}

// ToolFailedNote is fed back to the model after a failed tool call.
func ToolFailedNote(tool, reason string) string {
	return fmt.Sprintf("%s failed: %s", tool, reason)
}

// SkippedActionNote is fed back to the model when an action was not run
// because its target was never looked up successfully.
func SkippedActionNote(tool, id string) string {
	return fmt.Sprintf("%s was not run: %q is not a known id. The earlier lookup found nothing, so tell the user instead of guessing.", tool, id)
}

func humanTool(tool string) string {
	switch tool {
	case "create_task", "batch_create_tasks":
		return "Saving that"
	case "update_task":
		return "That update"
	case "complete_task":
		return "Marking it done"
	case "delete_task":
		return "Deleting it"
	case "set_preference":
		return "That setting change"
	default:
		return "That change"
	}
}
