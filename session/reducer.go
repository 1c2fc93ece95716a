// Package session runs validation invocations: it opens the backend
// stream, folds classified frames into validation state, and exposes the
// observable lifecycle Idle, Connecting, Streaming, then Completed,
// Failed, or Cancelled.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/transcript"
	"github.com/pithecene-io/assay/types"
	"github.com/pithecene-io/assay/wire"
)

// ErrNoResult reports a stream that ended with no result frame and no
// collected steps to synthesize one from. The text is surfaced verbatim
// as the failure message.
var ErrNoResult = errors.New("stream ended without providing a validation result")

// BackendError is a fatal error declared by the backend in an error frame.
// The message is surfaced to the user verbatim.
type BackendError struct {
	Message string
}

func (e *BackendError) Error() string {
	return e.Message
}

// IsBackendError returns the BackendError if err is one.
func IsBackendError(err error) (*BackendError, bool) {
	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		return backendErr, true
	}
	return nil, false
}

// ReducerConfig configures a reducer for one invocation.
type ReducerConfig struct {
	// Logger receives reduction events.
	Logger *log.Logger
	// Collector records frame and step metrics. May be nil.
	Collector *metrics.Collector
	// Recorder receives steps and the result for the transcript store.
	// If nil, records are discarded.
	Recorder transcript.Recorder
	// Now overrides the receipt clock (for testing).
	Now func() time.Time
}

// Reducer folds classified frames into validation state for a single
// invocation. It is used from one goroutine only; the session serializes
// access and publishes snapshots.
//
// Per PROTOCOL.md:
//   - Frames are folded in arrival order
//   - Steps are immutable once collected and survive every failure path
//   - Summary counters are recomputed from steps, never trusted verbatim
//   - The first terminal frame decides the outcome
type Reducer struct {
	logger    *log.Logger
	collector *metrics.Collector
	recorder  transcript.Recorder
	now       func() time.Time

	steps    []types.ValidationStep
	current  *types.ValidationStep
	progress string
	result   *types.ValidationResult
}

// NewReducer creates a reducer with a clean state.
func NewReducer(cfg ReducerConfig) *Reducer {
	if cfg.Recorder == nil {
		cfg.Recorder = transcript.NewNoopRecorder()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Reducer{
		logger:    cfg.Logger,
		collector: cfg.Collector,
		recorder:  cfg.Recorder,
		now:       cfg.Now,
	}
}

// Apply folds one frame into the state.
//
// done reports that the invocation reached its terminal frame. Returns:
//   - done=false, nil: progress folded, keep reading
//   - done=true, nil: a result was produced (Result is set)
//   - done=true, *BackendError: the backend declared a fatal error
//   - done=true, ErrNoResult: the stream ended with nothing to report
func (r *Reducer) Apply(ctx context.Context, frame wire.Frame) (bool, error) {
	switch f := frame.(type) {
	case *wire.ProgressFrame:
		r.applyProgress(ctx, f)
		return false, nil
	case *wire.FinalResultFrame:
		r.completeWith(ctx, r.resultFromPayload(ctx, f.Data))
		return true, nil
	case *wire.DirectResultFrame:
		r.completeWith(ctx, r.resultFromPayload(ctx, f.Payload))
		return true, nil
	case *wire.SingleResultFrame:
		r.completeWith(ctx, r.resultFromLintReport(ctx, f.Data))
		return true, nil
	case *wire.ToolResultFrame:
		r.completeWith(ctx, r.resultFromToolOutput(f))
		return true, nil
	case *wire.ErrorFrame:
		r.collector.IncErrorFrame()
		r.logger.Error("backend declared error", map[string]any{
			"message": f.Message,
		})
		return true, &BackendError{Message: f.Message}
	case *wire.EndFrame:
		return true, r.Finish(ctx)
	default:
		return true, fmt.Errorf("unexpected frame type %T", frame)
	}
}

// Finish handles end of stream without a terminal frame, from either an
// end marker or natural stream closure. With collected steps the outcome
// is synthesized from the last step; with none the validation has nothing
// to report and fails with ErrNoResult.
func (r *Reducer) Finish(ctx context.Context) error {
	if r.result != nil {
		return nil
	}
	if len(r.steps) == 0 {
		r.logger.Warn("stream ended with no steps and no result", nil)
		return ErrNoResult
	}

	last := r.steps[len(r.steps)-1]
	// Inherited truncation heuristic per PROTOCOL.md: a stream that stops
	// right after a clean lint pass counts as passed even though no result
	// frame arrived. Anything else counts as failed.
	passed := last.Action == types.AgentActionLint && strings.Contains(last.Summary, "No issues")

	result := &types.ValidationResult{
		Passed:        passed,
		FinalPlaybook: r.latestCode(),
		Steps:         r.Steps(),
		DebugInfo:     map[string]any{"truncated_stream": true},
	}
	result.Summary = types.SummaryFromSteps(result.Steps, passed)
	if !passed {
		result.ErrorMessage = "stream ended before the backend sent a final result"
	}

	r.logger.Warn("stream truncated, synthesized result from last step", map[string]any{
		"passed": passed,
		"steps":  len(result.Steps),
	})
	r.completeWith(ctx, result)
	return nil
}

// Steps returns a copy of the collected steps in arrival order.
func (r *Reducer) Steps() []types.ValidationStep {
	if len(r.steps) == 0 {
		return nil
	}
	steps := make([]types.ValidationStep, len(r.steps))
	copy(steps, r.steps)
	return steps
}

// CurrentStep returns a copy of the most recent step, or nil before the
// first one.
func (r *Reducer) CurrentStep() *types.ValidationStep {
	if r.current == nil {
		return nil
	}
	step := *r.current
	return &step
}

// ProgressMessage returns the display message for the most recent step.
func (r *Reducer) ProgressMessage() string {
	return r.progress
}

// Result returns the produced result, or nil before the terminal frame.
func (r *Reducer) Result() *types.ValidationResult {
	return r.result
}

func (r *Reducer) applyProgress(ctx context.Context, f *wire.ProgressFrame) {
	index := f.Step
	if index <= 0 {
		index = len(r.steps) + 1
	}
	step := types.ValidationStep{
		Index:      index,
		Action:     types.AgentAction(f.AgentAction),
		Summary:    f.Summary,
		Code:       f.Code,
		Message:    f.Message,
		ReceivedAt: r.now().UTC(),
	}
	r.appendStep(ctx, step)
	r.progress = progressMessage(step)

	r.logger.Debug("step received", map[string]any{
		"step":    step.Index,
		"action":  string(step.Action),
		"summary": step.Summary,
	})
}

// appendStep collects one immutable step and forwards it to the recorder.
// Recorder failures never decide a verdict; they are logged and dropped.
func (r *Reducer) appendStep(ctx context.Context, step types.ValidationStep) {
	r.steps = append(r.steps, step)
	stepCopy := step
	r.current = &stepCopy
	r.collector.IncStepObserved()

	if err := r.recorder.RecordStep(ctx, &stepCopy); err != nil {
		r.logger.Warn("failed to record step", map[string]any{
			"step":  step.Index,
			"error": err.Error(),
		})
	}
}

func (r *Reducer) completeWith(ctx context.Context, result *types.ValidationResult) {
	r.result = result
	if err := r.recorder.RecordResult(ctx, result); err != nil {
		r.logger.Warn("failed to record result", map[string]any{
			"error": err.Error(),
		})
	}
}

// resultFromPayload normalizes a full result document, from a final_result
// frame, a bare direct result, or a non-streaming response body.
func (r *Reducer) resultFromPayload(ctx context.Context, p wire.ResultPayload) *types.ValidationResult {
	// A backend that sent no progress frames may still ship the step
	// history inside the result document. Adopt it only when the stream
	// itself produced nothing; streamed steps are authoritative.
	if len(r.steps) == 0 {
		for _, sp := range p.Steps {
			index := sp.Step
			if index <= 0 {
				index = len(r.steps) + 1
			}
			r.appendStep(ctx, types.ValidationStep{
				Index:      index,
				Action:     types.AgentAction(sp.AgentAction),
				Summary:    sp.Summary,
				Code:       sp.Code,
				Message:    sp.Message,
				ReceivedAt: r.now().UTC(),
			})
		}
	}

	result := &types.ValidationResult{
		Passed:           p.Passed,
		FinalPlaybook:    p.FinalPlaybookText(),
		OriginalPlaybook: p.OriginalPlaybookText(),
		Steps:            r.Steps(),
		Issues:           issuesFromPayload(p.Issues),
		RawOutput:        wire.RawOutputText(p.RawOutput),
		DebugInfo:        p.DebugInfo,
		ErrorMessage:     p.ErrorMessage,
	}
	result.Summary = types.SummaryFromSteps(result.Steps, p.Passed)
	if !p.Passed && result.ErrorMessage == "" {
		result.ErrorMessage = wire.ErrorTextFromRawOutput(p.RawOutput)
	}
	return result
}

// resultFromLintReport normalizes a one-shot lint report. Each issue
// becomes a synthetic lint step, plus one aggregate step, so the step
// surface stays uniform for backends that send a flat report instead of
// progress frames.
func (r *Reducer) resultFromLintReport(ctx context.Context, p wire.LintReportPayload) *types.ValidationResult {
	for _, issue := range p.Issues {
		r.appendStep(ctx, types.ValidationStep{
			Index:      len(r.steps) + 1,
			Action:     types.AgentActionLint,
			Summary:    issueSummary(issue),
			Message:    issueDetail(issue),
			ReceivedAt: r.now().UTC(),
		})
	}
	r.appendStep(ctx, types.ValidationStep{
		Index:      len(r.steps) + 1,
		Action:     types.AgentActionLint,
		Summary:    lintAggregateSummary(len(p.Issues)),
		ReceivedAt: r.now().UTC(),
	})

	result := &types.ValidationResult{
		Passed:           p.ValidationPassed,
		OriginalPlaybook: p.Playbook,
		Steps:            r.Steps(),
		Issues:           issuesFromPayload(p.Issues),
		RawOutput:        wire.RawOutputText(p.RawOutput),
	}
	result.Summary = types.SummaryFromSteps(result.Steps, result.Passed)
	if !result.Passed {
		result.ErrorMessage = wire.ErrorTextFromRawOutput(p.RawOutput)
	}
	return result
}

// resultFromToolOutput normalizes the legacy tool envelope. Unlike the
// one-shot lint report, issues stay issues: legacy deployments pair the
// envelope with their own progress frames.
func (r *Reducer) resultFromToolOutput(f *wire.ToolResultFrame) *types.ValidationResult {
	passed := false
	if f.Output.Summary != nil && f.Output.Summary.Passed != nil {
		passed = *f.Output.Summary.Passed
	}

	result := &types.ValidationResult{
		Passed:    passed,
		Steps:     r.Steps(),
		Issues:    issuesFromPayload(f.Output.Issues),
		RawOutput: wire.RawOutputText(f.Output.RawOutput),
		DebugInfo: f.Output.DebugInfo,
	}
	result.Summary = types.SummaryFromSteps(result.Steps, passed)
	if !passed {
		result.ErrorMessage = wire.ErrorTextFromRawOutput(f.Output.RawOutput)
	}
	return result
}

// latestCode returns the most recent playbook snapshot carried by any
// step, for synthesized results.
func (r *Reducer) latestCode() string {
	for i := len(r.steps) - 1; i >= 0; i-- {
		if r.steps[i].Code != "" {
			return r.steps[i].Code
		}
	}
	return ""
}

func issuesFromPayload(payload []wire.IssuePayload) []types.LintIssue {
	if len(payload) == 0 {
		return nil
	}
	issues := make([]types.LintIssue, len(payload))
	for i, p := range payload {
		issues[i] = types.LintIssue{
			Rule:        p.Rule,
			Description: p.Description,
			Line:        p.Line,
			Severity:    p.Severity,
		}
	}
	return issues
}

func issueSummary(issue wire.IssuePayload) string {
	if issue.Rule == "" {
		return issue.Description
	}
	return fmt.Sprintf("%s: %s", issue.Rule, issue.Description)
}

func issueDetail(issue wire.IssuePayload) string {
	parts := make([]string, 0, 2)
	if issue.Severity != "" {
		parts = append(parts, issue.Severity)
	}
	if issue.Line > 0 {
		parts = append(parts, fmt.Sprintf("line %d", issue.Line))
	}
	return strings.Join(parts, ", ")
}

func lintAggregateSummary(count int) string {
	switch count {
	case 0:
		return "No issues found"
	case 1:
		return "1 issue found"
	default:
		return fmt.Sprintf("%d issues found", count)
	}
}

func progressMessage(step types.ValidationStep) string {
	if step.Summary == "" {
		return fmt.Sprintf("step %d (%s)", step.Index, step.Action)
	}
	return fmt.Sprintf("step %d (%s): %s", step.Index, step.Action, step.Summary)
}
