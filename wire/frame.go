// Package wire classifies validation stream lines into typed frames per
// PROTOCOL.md. The backend multiplexes several generations of frame shapes
// onto one stream; classification is by type tag first, then by legacy
// shape, in a fixed precedence order.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Stream literal constants per PROTOCOL.md.
const (
	// ssePrefix is the SSE data field prefix; lines may or may not carry it.
	ssePrefix = "data: "
	// doneSentinel terminates the stream without an outcome.
	doneSentinel = "[DONE]"
)

// Type tags per PROTOCOL.md.
const (
	TypeProgress    = "progress"
	TypeFinalResult = "final_result"
	TypeResult      = "result"
	TypeEnd         = "end"
	TypeError       = "error"
)

// LintToolName discriminates the legacy tool envelope shape.
const LintToolName = "lint_ansible_playbook"

// Frame kinds as reported by Frame.Kind, used as log and metric labels.
const (
	KindProgress     = "progress"
	KindFinalResult  = "final_result"
	KindSingleResult = "single_result"
	KindEnd          = "end"
	KindError        = "error"
	KindToolResult   = "tool_result"
	KindDirectResult = "direct_result"
)

// ParseErrorKind classifies line parsing errors.
type ParseErrorKind int

const (
	// ParseErrorEmpty indicates a blank keep-alive line.
	ParseErrorEmpty ParseErrorKind = iota
	// ParseErrorBadJSON indicates a payload that is not a JSON object.
	ParseErrorBadJSON
	// ParseErrorUnrecognized indicates a JSON object matching no known shape.
	ParseErrorUnrecognized
)

// ParseError represents a line that produced no frame. Every parse error is
// skippable per PROTOCOL.md; a broken line never aborts the stream.
type ParseError struct {
	Kind ParseErrorKind
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsSkippable returns true if err means "skip this line and keep reading".
func IsSkippable(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

// Frame is one classified stream line. Concrete frames are pointer types;
// consumers type-switch on them the way the reducer does.
type Frame interface {
	// Kind returns the frame kind label.
	Kind() string
}

// ProgressFrame reports one finished pipeline step.
type ProgressFrame struct {
	// Step is the backend's step ordinal. Zero when the backend omits it;
	// the reducer assigns the next ordinal in that case.
	Step int `json:"step"`
	// AgentAction is the agent label, "lint" or "llm_fix".
	AgentAction string `json:"agent_action"`
	// Summary is a short description of the step.
	Summary string `json:"summary"`
	// Code is the playbook text as of this step, when sent.
	Code string `json:"code"`
	// Message is optional detail.
	Message string `json:"message"`
}

// Kind implements Frame.
func (f *ProgressFrame) Kind() string { return KindProgress }

// StepPayload is a backend-sent step inside a result payload.
type StepPayload struct {
	Step        int    `json:"step"`
	AgentAction string `json:"agent_action"`
	Summary     string `json:"summary"`
	Code        string `json:"code"`
	Message     string `json:"message"`
}

// IssuePayload is a lint finding inside a result payload.
type IssuePayload struct {
	Rule        string `json:"rule"`
	Description string `json:"description"`
	Line        int    `json:"line"`
	Severity    string `json:"severity"`
}

// SummaryPayload is the backend's own step accounting. The counters are
// advisory only; the reducer recomputes them from collected steps.
type SummaryPayload struct {
	Passed         *bool  `json:"passed"`
	FixesApplied   int    `json:"fixes_applied"`
	LintIterations int    `json:"lint_iterations"`
	FinalStatus    string `json:"final_status"`
}

// ResultPayload is the full result document shape, shared by final_result
// data and bare direct results. Absent fields stay zero.
type ResultPayload struct {
	Passed           bool            `json:"passed"`
	FinalPlaybook    string          `json:"final_playbook"`
	OriginalPlaybook string          `json:"original_playbook"`
	// FinalCode and OriginalCode are the older spellings of the playbook
	// fields, still sent by some backend revisions.
	FinalCode    string          `json:"final_code"`
	OriginalCode string          `json:"original_code"`
	Steps        []StepPayload   `json:"steps"`
	Summary      *SummaryPayload `json:"summary"`
	Issues       []IssuePayload  `json:"issues"`
	// RawOutput is a string or a {stdout, stderr} object depending on the
	// backend revision; see RawOutputText.
	RawOutput    json.RawMessage `json:"raw_output"`
	DebugInfo    map[string]any  `json:"debug_info"`
	ErrorMessage string          `json:"error_message"`
}

// FinalPlaybookText returns the final playbook under either field spelling.
func (p *ResultPayload) FinalPlaybookText() string {
	if p.FinalPlaybook != "" {
		return p.FinalPlaybook
	}
	return p.FinalCode
}

// OriginalPlaybookText returns the original playbook under either spelling.
func (p *ResultPayload) OriginalPlaybookText() string {
	if p.OriginalPlaybook != "" {
		return p.OriginalPlaybook
	}
	return p.OriginalCode
}

// FinalResultFrame is the authoritative outcome of a streamed validation.
type FinalResultFrame struct {
	Data ResultPayload `json:"data"`
}

// Kind implements Frame.
func (f *FinalResultFrame) Kind() string { return KindFinalResult }

// LintReportPayload is the data of a one-shot lint report.
type LintReportPayload struct {
	Issues           []IssuePayload  `json:"issues"`
	ValidationPassed bool            `json:"validation_passed"`
	Playbook         string          `json:"playbook"`
	RawOutput        json.RawMessage `json:"raw_output"`
}

// SingleResultFrame is a one-shot lint report: the backend ran a single
// lint pass and sent everything at once, no per-step progress.
type SingleResultFrame struct {
	Data LintReportPayload `json:"data"`
}

// Kind implements Frame.
func (f *SingleResultFrame) Kind() string { return KindSingleResult }

// EndFrame marks the end of the stream without an outcome. Both the tagged
// {"type":"end"} frame and the SSE [DONE] sentinel map here; they are
// indistinguishable downstream.
type EndFrame struct{}

// Kind implements Frame.
func (f *EndFrame) Kind() string { return KindEnd }

// ErrorFrame is a fatal backend-declared error.
type ErrorFrame struct {
	Message string `json:"message"`
}

// Kind implements Frame.
func (f *ErrorFrame) Kind() string { return KindError }

// ToolOutput is the payload of the legacy tool envelope.
type ToolOutput struct {
	Issues    []IssuePayload  `json:"issues"`
	Summary   *SummaryPayload `json:"summary"`
	RawOutput json.RawMessage `json:"raw_output"`
	DebugInfo map[string]any  `json:"debug_info"`
}

// ToolResultFrame is the legacy {tool, output} envelope still emitted by
// older backend deployments.
type ToolResultFrame struct {
	Tool   string     `json:"tool"`
	Output ToolOutput `json:"output"`
}

// Kind implements Frame.
func (f *ToolResultFrame) Kind() string { return KindToolResult }

// DirectResultFrame is a bare result document with no type tag, matched by
// shape (any of passed/summary/issues present).
type DirectResultFrame struct {
	Payload ResultPayload
}

// Kind implements Frame.
func (f *DirectResultFrame) Kind() string { return KindDirectResult }

// ParseLine classifies one stream line per PROTOCOL.md:
// trim, strip the SSE prefix if present, map the [DONE] sentinel to an
// EndFrame, then classify the JSON payload.
//
// Errors are always *ParseError and always skippable.
func ParseLine(line string) (Frame, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return nil, &ParseError{Kind: ParseErrorEmpty, Msg: "empty line"}
	}

	payload := trimmed
	if strings.HasPrefix(payload, ssePrefix) {
		payload = strings.TrimSpace(payload[len(ssePrefix):])
	}
	if payload == doneSentinel {
		return &EndFrame{}, nil
	}

	return ClassifyDocument([]byte(payload))
}

// ClassifyDocument classifies one JSON document. The non-streaming response
// path feeds whole bodies through here directly.
func ClassifyDocument(doc []byte) (Frame, error) {
	// Probe the top-level keys without committing to a shape.
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		return nil, &ParseError{
			Kind: ParseErrorBadJSON,
			Msg:  "payload is not a JSON object",
			Err:  err,
		}
	}

	switch stringField(fields, "type") {
	case TypeProgress:
		return decodeInto(doc, &ProgressFrame{})
	case TypeFinalResult:
		return decodeInto(doc, &FinalResultFrame{})
	case TypeResult:
		return decodeInto(doc, &SingleResultFrame{})
	case TypeEnd:
		return &EndFrame{}, nil
	case TypeError:
		return decodeInto(doc, &ErrorFrame{})
	}

	if stringField(fields, "tool") == LintToolName {
		return decodeInto(doc, &ToolResultFrame{})
	}

	if hasAnyField(fields, "passed", "summary", "issues") {
		var payload ResultPayload
		if err := json.Unmarshal(doc, &payload); err != nil {
			return nil, &ParseError{
				Kind: ParseErrorBadJSON,
				Msg:  "malformed result document",
				Err:  err,
			}
		}
		return &DirectResultFrame{Payload: payload}, nil
	}

	return nil, &ParseError{
		Kind: ParseErrorUnrecognized,
		Msg:  "object matches no known frame shape",
	}
}

// decodeInto fully decodes doc into frame. A tagged frame whose body does
// not decode is treated like any other broken line: skipped.
func decodeInto(doc []byte, frame Frame) (Frame, error) {
	if err := json.Unmarshal(doc, frame); err != nil {
		return nil, &ParseError{
			Kind: ParseErrorBadJSON,
			Msg:  fmt.Sprintf("malformed %s frame", frame.Kind()),
			Err:  err,
		}
	}
	return frame, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func hasAnyField(fields map[string]json.RawMessage, keys ...string) bool {
	for _, key := range keys {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}

// rawOutputObject is the structured raw_output variant.
type rawOutputObject struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// RawOutputText flattens a raw_output value to text for transcripts:
// the string itself, or stderr and stdout joined, whichever the backend sent.
func RawOutputText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj rawOutputObject
	if err := json.Unmarshal(raw, &obj); err == nil {
		parts := make([]string, 0, 2)
		if obj.Stdout != "" {
			parts = append(parts, obj.Stdout)
		}
		if obj.Stderr != "" {
			parts = append(parts, obj.Stderr)
		}
		return strings.Join(parts, "\n")
	}
	return string(raw)
}

// ErrorTextFromRawOutput derives a failure message from raw_output,
// preferring stderr, then stdout, then the raw string form.
func ErrorTextFromRawOutput(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var obj rawOutputObject
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Stderr != "" {
			return obj.Stderr
		}
		return obj.Stdout
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}
