// Package types defines core domain types for the assay validation client.
// Wire-facing shapes conform to PROTOCOL.md.
//
//nolint:revive // types is a common Go package naming convention
package types

import "time"

// AgentAction identifies which pipeline agent produced a step per PROTOCOL.md.
type AgentAction string

// Agent action constants per PROTOCOL.md.
const (
	// AgentActionLint is a lint pass over the playbook.
	AgentActionLint AgentAction = "lint"
	// AgentActionLLMFix is an LLM-applied fix between lint passes.
	AgentActionLLMFix AgentAction = "llm_fix"
)

// IsFix returns true if the action counts toward summary.fixes_applied.
// Any other action, including ones this client does not know yet, counts
// as a lint iteration so the step totals stay exhaustive.
func (a AgentAction) IsFix() bool {
	return a == AgentActionLLMFix
}

// FinalStatus values for ValidationSummary.FinalStatus.
const (
	FinalStatusPassed = "passed"
	FinalStatusFailed = "failed"
)

// ValidationStep is one finished pipeline step. Steps are immutable once
// collected; ReceivedAt is assigned by the client at receipt because the
// backend sends no timestamps.
type ValidationStep struct {
	// Index is the step ordinal, starts at 1.
	Index int `json:"step"`
	// Action is the agent that produced the step.
	Action AgentAction `json:"agent_action"`
	// Summary is a short human-readable description of what the step did.
	Summary string `json:"summary"`
	// Code is the playbook text as of this step, when the backend sends it.
	Code string `json:"code,omitempty"`
	// Message is optional detail accompanying the step.
	Message string `json:"message,omitempty"`
	// ReceivedAt is the client receipt time.
	ReceivedAt time.Time `json:"received_at"`
}

// LintIssue is a single finding from the lint agent per PROTOCOL.md.
type LintIssue struct {
	// Rule is the lint rule identifier.
	Rule string `json:"rule"`
	// Description is the human-readable finding.
	Description string `json:"description"`
	// Line is the 1-based playbook line, 0 when unknown.
	Line int `json:"line,omitempty"`
	// Severity is the backend's severity label (e.g. "error", "warning").
	Severity string `json:"severity,omitempty"`
}

// ValidationSummary is the derived step accounting for a validation.
// FixesApplied and LintIterations are always recomputed from collected
// steps, never trusted from the backend, so the UI numbers match the
// step list even when the backend disagrees with itself.
type ValidationSummary struct {
	// FixesApplied is the number of fix steps.
	FixesApplied int `json:"fixes_applied"`
	// LintIterations is the number of non-fix steps.
	LintIterations int `json:"lint_iterations"`
	// FinalStatus is "passed" or "failed".
	FinalStatus string `json:"final_status"`
}

// ValidationResult is the normalized outcome of one validation.
type ValidationResult struct {
	// Passed is the overall verdict.
	Passed bool `json:"passed"`
	// FinalPlaybook is the playbook text after fixes, when provided.
	FinalPlaybook string `json:"final_playbook,omitempty"`
	// OriginalPlaybook is the playbook text as submitted, when provided.
	OriginalPlaybook string `json:"original_playbook,omitempty"`
	// Steps are the collected pipeline steps, in receipt order.
	Steps []ValidationStep `json:"steps"`
	// Summary is the derived step accounting.
	Summary ValidationSummary `json:"summary"`
	// Issues are lint findings, populated for one-shot lint reports.
	Issues []LintIssue `json:"issues,omitempty"`
	// RawOutput is the concatenated human-readable transcript (debug aid).
	RawOutput string `json:"raw_output,omitempty"`
	// DebugInfo is the backend's free-form diagnostic bag, passed through
	// untyped because its keys drift between backend revisions.
	DebugInfo map[string]any `json:"debug_info,omitempty"`
	// ErrorMessage is populated when Passed is false or the stream ended
	// abnormally.
	ErrorMessage string `json:"error_message,omitempty"`
}

// SummaryFromSteps derives the step accounting per PROTOCOL.md.
// Every step is counted exactly once, so for step-populated results
// LintIterations + FixesApplied == len(steps).
func SummaryFromSteps(steps []ValidationStep, passed bool) ValidationSummary {
	s := ValidationSummary{FinalStatus: FinalStatusFailed}
	if passed {
		s.FinalStatus = FinalStatusPassed
	}
	for _, step := range steps {
		if step.Action.IsFix() {
			s.FixesApplied++
		} else {
			s.LintIterations++
		}
	}
	return s
}
