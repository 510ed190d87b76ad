// Package prompts contains the LLM prompt templates and canned replies
// used by errand.
//
// Prompt text is Go code rather than config files because it is program logic:
// templates use fmt.Sprintf interpolation and can be validated by tests.
//
// Convention: each prompt category gets its own file (classifier.go,
// system.go) with an exported function that accepts the dynamic parts and
// returns the fully interpolated prompt string. Fixed user-facing text
// lives in replies.go.
package prompts
