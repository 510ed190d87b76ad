// Package router selects which model handles each stage of a turn.
package router

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stage is the part of a turn a model call serves.
type Stage string

const (
	StageClassify  Stage = "classify"   // structured classification, no tools
	StageToolRound Stage = "tool_round" // tool calling and reply synthesis
)

// HintLocalOnly keeps a request on cost-tier-0 models.
const HintLocalOnly = "local_only"

// Request contains the information needed for routing decisions.
type Request struct {
	Query       string            // The user's message
	Stage       Stage             // Which call this is
	IntentType  string            // Classified intent, when known
	Lookups     int               // Required lookups named by the classifier
	ContextSize int               // Estimated prompt tokens
	NeedsTools  bool              // Whether tool calling is required
	ToolCount   int               // Number of tools offered
	Priority    Priority          // Latency requirements
	Hints       map[string]string // Additional routing hints
}

// Priority indicates latency requirements.
type Priority int

const (
	PriorityInteractive Priority = iota // Someone is waiting on an SMS reply
	PriorityBackground                  // Batch or CLI work
)

// Decision records why a model was selected.
type Decision struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`

	QueryLength    int        `json:"query_length"`
	Stage          Stage      `json:"stage"`
	ContextSize    int        `json:"context_size"`
	NeedsTools     bool       `json:"needs_tools"`
	Priority       string     `json:"priority"`
	DetectedIntent string     `json:"detected_intent,omitempty"`
	Complexity     Complexity `json:"complexity"`

	RulesEvaluated []string       `json:"rules_evaluated"`
	RulesMatched   []string       `json:"rules_matched"`
	Scores         map[string]int `json:"scores,omitempty"`

	ModelSelected string `json:"model_selected"`
	Reasoning     string `json:"reasoning"`

	// Filled in by RecordOutcome.
	LatencyMs  int64 `json:"latency_ms,omitempty"`
	TokensUsed int   `json:"tokens_used,omitempty"`
	Success    *bool `json:"success,omitempty"`
}

// Complexity categorizes how much reasoning a call needs.
type Complexity int

const (
	ComplexitySimple   Complexity = iota // Classification, single lookup
	ComplexityModerate                   // Resolve then act
	ComplexityComplex                    // Summaries, planning, comparisons
)

func (c Complexity) String() string {
	switch c {
	case ComplexitySimple:
		return "simple"
	case ComplexityModerate:
		return "moderate"
	case ComplexityComplex:
		return "complex"
	default:
		return "unknown"
	}
}

// ParseComplexity maps a config string to a Complexity. Unknown values
// are treated as simple.
func ParseComplexity(s string) Complexity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "moderate":
		return ComplexityModerate
	case "complex":
		return ComplexityComplex
	default:
		return ComplexitySimple
	}
}

// Model represents an available model with its capabilities.
type Model struct {
	Name          string
	Provider      string
	SupportsTools bool
	ContextWindow int
	Speed         int // 1-10, 10=fastest
	Quality       int // 1-10, 10=best
	CostTier      int // 0=local, 1=cheap, 2=moderate, 3=expensive
	MinComplexity Complexity
}

// Config holds router configuration.
type Config struct {
	Models          []Model
	DefaultModel    string
	ClassifierModel string // pinned model for StageClassify; empty means route it
	LocalFirst      bool
	MaxAuditLog     int
}

// Router selects models based on request characteristics.
type Router struct {
	logger *slog.Logger
	config Config

	mu       sync.RWMutex
	auditLog []Decision
	stats    Stats
}

// Stats tracks routing statistics.
type Stats struct {
	TotalRequests    int64            `json:"total_requests"`
	ModelCounts      map[string]int64 `json:"model_counts"`
	AvgLatencyMs     map[string]int64 `json:"avg_latency_ms"`
	ComplexityCounts map[string]int64 `json:"complexity_counts"`
	StageCounts      map[string]int64 `json:"stage_counts"`
}

// NewRouter creates a router with the given configuration.
func NewRouter(logger *slog.Logger, config Config) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxAuditLog <= 0 {
		config.MaxAuditLog = 1000
	}
	return &Router{
		logger:   logger.With("component", "router"),
		config:   config,
		auditLog: make([]Decision, 0, config.MaxAuditLog),
		stats: Stats{
			ModelCounts:      make(map[string]int64),
			AvgLatencyMs:     make(map[string]int64),
			ComplexityCounts: make(map[string]int64),
			StageCounts:      make(map[string]int64),
		},
	}
}

// Route selects a model for the given request.
func (r *Router) Route(ctx context.Context, req Request) (string, *Decision) {
	decision := &Decision{
		RequestID:   uuid.Must(uuid.NewV7()).String(),
		Timestamp:   time.Now(),
		QueryLength: len(req.Query),
		Stage:       req.Stage,
		ContextSize: req.ContextSize,
		NeedsTools:  req.NeedsTools,
		Priority:    priorityString(req.Priority),
	}

	decision.Complexity = r.analyzeComplexity(req)
	decision.DetectedIntent = detectIntent(req)

	var model string
	if req.Stage == StageClassify && r.config.ClassifierModel != "" {
		model = r.config.ClassifierModel
		decision.RulesMatched = []string{"pinned_classifier"}
		decision.Reasoning = "Classifier model pinned by configuration."
	} else {
		model = r.selectModel(req, decision)
	}
	decision.ModelSelected = model

	r.recordDecision(*decision)

	r.logger.Debug("model routed",
		"request_id", decision.RequestID,
		"stage", req.Stage,
		"model", model,
		"complexity", decision.Complexity.String(),
		"reasoning", decision.Reasoning,
	)

	return model, decision
}

// analyzeComplexity estimates how much reasoning a call needs.
func (r *Router) analyzeComplexity(req Request) Complexity {
	if req.Stage == StageClassify {
		return ComplexitySimple
	}

	q := strings.ToLower(req.Query)
	for _, w := range []string{"summarize", "summary", "plan", "prioritize", "compare", "why", "review", "week"} {
		if strings.Contains(q, w) {
			return ComplexityComplex
		}
	}

	switch req.IntentType {
	case "query_today", "query_stats", "query_tasks", "query_person":
		if req.Lookups <= 1 {
			return ComplexitySimple
		}
	}
	if req.Lookups > 2 {
		return ComplexityComplex
	}
	return ComplexityModerate
}

// detectIntent labels the request for the audit log.
func detectIntent(req Request) string {
	if req.IntentType != "" {
		return req.IntentType
	}
	if req.Stage == StageClassify {
		return "classify"
	}
	return "general"
}

// selectModel picks the best model based on analysis.
func (r *Router) selectModel(req Request, decision *Decision) string {
	var rulesEvaluated, rulesMatched []string
	var reasoning strings.Builder
	localOnly := req.Hints[HintLocalOnly] == "true"

	var candidates []Model
	for _, m := range r.config.Models {
		rulesEvaluated = append(rulesEvaluated, "check_"+m.Name)

		if req.NeedsTools && !m.SupportsTools {
			continue
		}
		if req.ContextSize > 0 && m.ContextWindow > 0 && req.ContextSize > m.ContextWindow {
			continue
		}

		candidates = append(candidates, m)
		rulesMatched = append(rulesMatched, "eligible_"+m.Name)
	}

	decision.RulesEvaluated = rulesEvaluated

	if len(candidates) == 0 {
		reasoning.WriteString("No eligible models, using default. ")
		decision.RulesMatched = rulesMatched
		decision.Reasoning = reasoning.String()
		return r.config.DefaultModel
	}

	scores := make(map[string]int)
	for _, m := range candidates {
		score := 0

		if decision.Complexity >= m.MinComplexity {
			score += 20
		}
		if decision.Complexity == ComplexitySimple && m.Speed >= 7 {
			score += 15
		}
		if decision.Complexity == ComplexityComplex && m.Quality >= 7 {
			score += 15
		}

		// Small models lose track of long prompts.
		if m.ContextWindow > 0 {
			contextRatio := float64(req.ContextSize) / float64(m.ContextWindow)
			if contextRatio > 0.3 && m.Quality < 7 {
				score -= 30
				rulesMatched = append(rulesMatched, "context_penalty_"+m.Name)
			}
			if contextRatio > 0.5 && m.Quality >= 7 {
				score += 10
				rulesMatched = append(rulesMatched, "context_bonus_"+m.Name)
			}
		}

		// The full catalog is a lot of schema for a weak model.
		if req.ToolCount > 8 && m.Quality < 7 {
			score -= 20
			rulesMatched = append(rulesMatched, "tools_penalty_"+m.Name)
		}

		if r.config.LocalFirst && m.CostTier == 0 {
			score += 10
		}
		if localOnly && m.CostTier > 0 {
			score -= 200
			rulesMatched = append(rulesMatched, "local_only_"+m.Name)
		}
		if req.Priority == PriorityInteractive && m.Speed >= 7 {
			score += 10
		}

		scores[m.Name] = score
	}

	decision.Scores = scores

	var best Model
	bestScore := -1 << 31
	for _, m := range candidates {
		if scores[m.Name] > bestScore {
			best = m
			bestScore = scores[m.Name]
		}
	}

	reasoning.WriteString("Selected " + best.Name)
	reasoning.WriteString(" (score=" + strconv.Itoa(bestScore) + ")")
	reasoning.WriteString(" for " + decision.Complexity.String() + " " + decision.DetectedIntent + " " + string(req.Stage) + ".")

	if r.config.LocalFirst && best.CostTier == 0 {
		reasoning.WriteString(" Local-first preference applied.")
	}

	decision.RulesMatched = rulesMatched
	decision.Reasoning = reasoning.String()

	return best.Name
}

// MaxQuality returns the highest quality rating among configured models,
// or 10 when none are configured.
func (r *Router) MaxQuality() int {
	if len(r.config.Models) == 0 {
		return 10
	}
	best := 0
	for _, m := range r.config.Models {
		if m.Quality > best {
			best = m.Quality
		}
	}
	return best
}

// RecordOutcome updates a decision with execution results.
func (r *Router) RecordOutcome(requestID string, latencyMs int64, tokensUsed int, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.auditLog) - 1; i >= 0; i-- {
		if r.auditLog[i].RequestID == requestID {
			r.auditLog[i].LatencyMs = latencyMs
			r.auditLog[i].TokensUsed = tokensUsed
			r.auditLog[i].Success = &success

			model := r.auditLog[i].ModelSelected
			if prev := r.stats.AvgLatencyMs[model]; prev == 0 {
				r.stats.AvgLatencyMs[model] = latencyMs
			} else {
				r.stats.AvgLatencyMs[model] = (prev + latencyMs) / 2
			}
			break
		}
	}
}

func (r *Router) recordDecision(d Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.auditLog) >= r.config.MaxAuditLog {
		r.auditLog = r.auditLog[1:]
	}
	r.auditLog = append(r.auditLog, d)

	r.stats.TotalRequests++
	r.stats.ModelCounts[d.ModelSelected]++
	r.stats.ComplexityCounts[d.Complexity.String()]++
	r.stats.StageCounts[string(d.Stage)]++
}

// GetAuditLog returns recent routing decisions, oldest first.
func (r *Router) GetAuditLog(limit int) []Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.auditLog) {
		limit = len(r.auditLog)
	}

	start := len(r.auditLog) - limit
	result := make([]Decision, limit)
	copy(result, r.auditLog[start:])
	return result
}

// GetStats returns a copy of the routing statistics.
func (r *Router) GetStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Stats{
		TotalRequests:    r.stats.TotalRequests,
		ModelCounts:      copyCounts(r.stats.ModelCounts),
		AvgLatencyMs:     copyCounts(r.stats.AvgLatencyMs),
		ComplexityCounts: copyCounts(r.stats.ComplexityCounts),
		StageCounts:      copyCounts(r.stats.StageCounts),
	}
}

// Explain returns the recorded decision for requestID, or nil.
func (r *Router) Explain(requestID string) *Decision {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.auditLog) - 1; i >= 0; i-- {
		if r.auditLog[i].RequestID == requestID {
			d := r.auditLog[i]
			return &d
		}
	}
	return nil
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func priorityString(p Priority) string {
	if p == PriorityInteractive {
		return "interactive"
	}
	return "background"
}
