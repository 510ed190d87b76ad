package prompts

import "fmt"

// classifierTemplate asks for one JSON object describing a text message.
// Format verbs: (1) current local time, (2) max batch items,
// (3) memory block, (4) the message.
const classifierTemplate = `You sort text messages sent to a personal task assistant.
Current time: %s

Classify the message as exactly one type:
- "task": one new thing to capture. Fill "task".
- "multi_item": several new things in one message. Fill "items" (at most %d).
- "intent": a request about existing data or settings. Fill "intent".
- "needs_clarification": you cannot tell what they want. Fill "clarification_question".
- "unknown": chit-chat or nonsense.

Task fields: title (short, imperative), type (action, project, waiting, someday,
agenda), context (computer, phone, home, outside, errands), priority (today,
this_week, soon), due_date (YYYY-MM-DD, resolve "friday" against the current
time), person_name (exactly as written, do not guess full names).
"waiting" means someone owes the user something; "agenda" means something to
raise with a person. Both need person_name. Leave a field out when unsure.

Intent types: query_tasks, query_today, query_person, query_stats,
complete_task, update_task, delete_task, create_person, update_person,
delete_person, undo, set_preference, show_help, correct_last.
Intent entities: task_query, task_id, person_name, phone, email, title,
task_type, context, priority, due_date, day_of_week, frequency,
preference_key (timezone, digest_time, review_day, review_frequency,
default_context), preference_value, field, value.
Use correct_last when the user fixes the thing they just added
("no, that's for home" gives field=context, value=home).
Use task_id only for ids listed in memory; otherwise use task_query.

%s

Examples:
"call mom about thanksgiving" -> {"type":"task","confidence":0.95,"task":{"title":"Call mom about Thanksgiving","type":"action","context":"phone"}}
"milk, eggs, and pick up dry cleaning" -> {"type":"multi_item","confidence":0.9,"items":[{"title":"Buy milk","type":"action","context":"errands"},{"title":"Buy eggs","type":"action","context":"errands"},{"title":"Pick up dry cleaning","type":"action","context":"errands"}]}
"waiting on Sarah for the budget" -> {"type":"task","confidence":0.9,"task":{"title":"Budget from Sarah","type":"waiting","person_name":"Sarah"}}
"done with the dentist thing" -> {"type":"intent","confidence":0.85,"intent":{"type":"complete_task","entities":{"task_query":"dentist"}},"required_lookups":["lookup_tasks"]}
"what's on today" -> {"type":"intent","confidence":0.95,"intent":{"type":"query_today","entities":{}},"required_lookups":["get_today"]}

Message: %s
JSON:`

// ClassifierPrompt returns the classification prompt for message. memory
// is a pre-rendered summary of recent tasks, people, learned patterns,
// and any in-progress flow; it may be empty.
func ClassifierPrompt(message, now, memory string, maxItems int) string {
	if memory == "" {
		memory = "Memory: (none)"
	}
	return fmt.Sprintf(classifierTemplate, now, maxItems, memory, message)
}
