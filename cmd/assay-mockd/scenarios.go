package main

// Frame shapes as the backend emits them. The client decodes with its own
// types; the mock writes the wire contract by hand so the two sides stay
// independent and a decode regression cannot hide an encode regression.

type progressFrame struct {
	Type        string `json:"type"`
	Step        int    `json:"step"`
	AgentAction string `json:"agent_action"`
	Summary     string `json:"summary"`
	Code        string `json:"code,omitempty"`
	Message     string `json:"message,omitempty"`
}

type stepPayload struct {
	Step        int    `json:"step"`
	AgentAction string `json:"agent_action"`
	Summary     string `json:"summary"`
}

type summaryPayload struct {
	Passed         *bool  `json:"passed,omitempty"`
	FixesApplied   int    `json:"fixes_applied"`
	LintIterations int    `json:"lint_iterations"`
	FinalStatus    string `json:"final_status,omitempty"`
}

type issuePayload struct {
	Rule        string `json:"rule"`
	Description string `json:"description"`
	Line        int    `json:"line"`
	Severity    string `json:"severity"`
}

type rawOutput struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

type resultPayload struct {
	Passed           bool            `json:"passed"`
	FinalPlaybook    string          `json:"final_playbook,omitempty"`
	OriginalPlaybook string          `json:"original_playbook,omitempty"`
	Steps            []stepPayload   `json:"steps,omitempty"`
	Summary          *summaryPayload `json:"summary,omitempty"`
	Issues           []issuePayload  `json:"issues,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
}

type finalResultFrame struct {
	Type string        `json:"type"`
	Data resultPayload `json:"data"`
}

type lintReportPayload struct {
	Issues           []issuePayload `json:"issues"`
	ValidationPassed bool           `json:"validation_passed"`
	Playbook         string         `json:"playbook,omitempty"`
}

type lintReportFrame struct {
	Type string            `json:"type"`
	Data lintReportPayload `json:"data"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type endFrame struct {
	Type string `json:"type"`
}

type toolOutput struct {
	Summary   *summaryPayload `json:"summary,omitempty"`
	Issues    []issuePayload  `json:"issues,omitempty"`
	RawOutput *rawOutput      `json:"raw_output,omitempty"`
}

type toolFrame struct {
	Tool   string     `json:"tool"`
	Output toolOutput `json:"output"`
}

// Scenario names, in help-text order.
const (
	scenarioPass         = "pass"
	scenarioFixLoop      = "fix-loop"
	scenarioFail         = "fail"
	scenarioError        = "error"
	scenarioTruncate     = "truncate"
	scenarioTruncatePass = "truncate-pass"
	scenarioLegacy       = "legacy"
	scenarioReport       = "report"
	scenarioDocument     = "document"
	scenarioHang         = "hang"
	scenarioReject       = "reject"
)

var scenarioOrder = []string{
	scenarioPass,
	scenarioFixLoop,
	scenarioFail,
	scenarioError,
	scenarioTruncate,
	scenarioTruncatePass,
	scenarioLegacy,
	scenarioReport,
	scenarioDocument,
	scenarioHang,
	scenarioReject,
}

func scenarioNames() []string {
	return scenarioOrder
}

func knownScenario(name string) bool {
	for _, known := range scenarioOrder {
		if name == known {
			return true
		}
	}
	return false
}

// ending selects how a streamed scenario terminates.
type ending int

const (
	endDone   ending = iota // data: [DONE] sentinel
	endMarker               // {"type":"end"} frame
	endClose                // bare connection close
)

// script is an ordered list of frames plus a termination style.
type script struct {
	frames []any
	end    ending
}

// samplePlaybook stands in when a request carries no playbook content, so
// frames still show plausible YAML in the TUI and in captures.
const samplePlaybook = `---
- name: Ensure telemetry agent is running
  hosts: all
  tasks:
    - name: Start agent
      ansible.builtin.service:
        name: telemetry-agent
        state: started
`

func playbookOrSample(req validateRequest) string {
	if req.PlaybookContent != "" {
		return req.PlaybookContent
	}
	return samplePlaybook
}

// buildScript returns the canned frame sequence for a streamed scenario.
// Callers must validate the name first; unknown names get an empty script.
func buildScript(name string, req validateRequest) script {
	playbook := playbookOrSample(req)

	switch name {
	case scenarioPass:
		steps := []stepPayload{
			{Step: 1, AgentAction: "lint", Summary: "Found 2 issue(s)"},
			{Step: 2, AgentAction: "llm_fix", Summary: "Applied fix for yaml[trailing-spaces]"},
			{Step: 3, AgentAction: "lint", Summary: "No issues found"},
		}
		return script{
			frames: []any{
				progressFrame{Type: "progress", Step: 1, AgentAction: "lint", Summary: "Found 2 issue(s)"},
				progressFrame{Type: "progress", Step: 2, AgentAction: "llm_fix", Summary: "Applied fix for yaml[trailing-spaces]", Code: playbook},
				progressFrame{Type: "progress", Step: 3, AgentAction: "lint", Summary: "No issues found"},
				finalResultFrame{Type: "final_result", Data: resultPayload{
					Passed:           true,
					FinalPlaybook:    playbook,
					OriginalPlaybook: playbook,
					Steps:            steps,
					Summary:          &summaryPayload{FixesApplied: 1, LintIterations: 2, FinalStatus: "passed"},
				}},
			},
			end: endDone,
		}

	case scenarioFixLoop:
		steps := []stepPayload{
			{Step: 1, AgentAction: "lint", Summary: "Found 2 issue(s)"},
			{Step: 2, AgentAction: "llm_fix", Summary: "Applied fix for yaml[trailing-spaces]"},
			{Step: 3, AgentAction: "lint", Summary: "Found 1 issue(s)"},
			{Step: 4, AgentAction: "llm_fix", Summary: "Applied fix for name[missing]"},
			{Step: 5, AgentAction: "lint", Summary: "No issues found"},
		}
		frames := make([]any, 0, len(steps)+1)
		for _, st := range steps {
			fr := progressFrame{Type: "progress", Step: st.Step, AgentAction: st.AgentAction, Summary: st.Summary}
			if st.AgentAction == "llm_fix" {
				fr.Code = playbook
			}
			frames = append(frames, fr)
		}
		frames = append(frames, finalResultFrame{Type: "final_result", Data: resultPayload{
			Passed:           true,
			FinalPlaybook:    playbook,
			OriginalPlaybook: playbook,
			Steps:            steps,
			Summary:          &summaryPayload{FixesApplied: 2, LintIterations: 3, FinalStatus: "passed"},
		}})
		return script{frames: frames, end: endMarker}

	case scenarioFail:
		steps := []stepPayload{
			{Step: 1, AgentAction: "lint", Summary: "Found 1 issue(s)"},
			{Step: 2, AgentAction: "llm_fix", Summary: "Attempted fix for risky-shell-pipe"},
			{Step: 3, AgentAction: "lint", Summary: "Found 1 issue(s)"},
		}
		return script{
			frames: []any{
				progressFrame{Type: "progress", Step: 1, AgentAction: "lint", Summary: "Found 1 issue(s)"},
				progressFrame{Type: "progress", Step: 2, AgentAction: "llm_fix", Summary: "Attempted fix for risky-shell-pipe", Code: playbook},
				progressFrame{Type: "progress", Step: 3, AgentAction: "lint", Summary: "Found 1 issue(s)"},
				finalResultFrame{Type: "final_result", Data: resultPayload{
					Passed:        false,
					FinalPlaybook: playbook,
					Steps:         steps,
					Summary:       &summaryPayload{FixesApplied: 1, LintIterations: 2, FinalStatus: "failed"},
					Issues: []issuePayload{
						{Rule: "risky-shell-pipe", Description: "Shells that use pipes should set the pipefail option", Line: 12, Severity: "warning"},
					},
					ErrorMessage: "1 issue could not be fixed automatically",
				}},
			},
			end: endClose,
		}

	case scenarioError:
		return script{
			frames: []any{
				progressFrame{Type: "progress", Step: 1, AgentAction: "lint", Summary: "Found 2 issue(s)"},
				errorFrame{Type: "error", Message: "ansible-lint crashed: exit status 2"},
			},
			end: endClose,
		}

	case scenarioTruncate:
		return script{
			frames: []any{
				progressFrame{Type: "progress", Step: 1, AgentAction: "lint", Summary: "Found 3 issue(s)"},
				progressFrame{Type: "progress", Step: 2, AgentAction: "llm_fix", Summary: "Applied fix for yaml[indentation]", Code: playbook},
			},
			end: endClose,
		}

	case scenarioTruncatePass:
		return script{
			frames: []any{
				progressFrame{Type: "progress", Step: 1, AgentAction: "lint", Summary: "Found 1 issue(s)"},
				progressFrame{Type: "progress", Step: 2, AgentAction: "llm_fix", Summary: "Applied fix for name[missing]", Code: playbook},
				progressFrame{Type: "progress", Step: 3, AgentAction: "lint", Summary: "No issues found"},
			},
			end: endClose,
		}

	case scenarioLegacy:
		return script{
			frames: []any{
				progressFrame{Type: "progress", Step: 1, AgentAction: "lint", Summary: "Found 1 issue(s)"},
				toolFrame{Tool: "lint_ansible_playbook", Output: toolOutput{
					Summary: &summaryPayload{Passed: boolPtr(false), LintIterations: 1, FinalStatus: "failed"},
					Issues: []issuePayload{
						{Rule: "yaml[indentation]", Description: "Wrong indentation: expected 4 but found 2", Line: 5, Severity: "warning"},
					},
					RawOutput: &rawOutput{Stdout: "1 violation(s) found", Stderr: "lint: yaml[indentation] at line 5"},
				}},
			},
			end: endDone,
		}

	case scenarioReport:
		return script{
			frames: []any{
				lintReportFrame{Type: "result", Data: lintReportPayload{
					ValidationPassed: false,
					Playbook:         playbook,
					Issues: []issuePayload{
						{Rule: "no-changed-when", Description: "Commands should not change things if nothing needs doing", Line: 8, Severity: "error"},
						{Rule: "name[missing]", Description: "All tasks should be named", Line: 14, Severity: "warning"},
					},
				}},
			},
			end: endDone,
		}
	}

	return script{}
}

// documentBody is the single-JSON-document response: the whole body is one
// bare result classified exactly like a stream line.
func documentBody(req validateRequest) resultPayload {
	playbook := playbookOrSample(req)
	return resultPayload{
		Passed:           true,
		FinalPlaybook:    playbook,
		OriginalPlaybook: playbook,
		Steps:            []stepPayload{{Step: 1, AgentAction: "lint", Summary: "No issues found"}},
		Summary:          &summaryPayload{FixesApplied: 0, LintIterations: 1, FinalStatus: "passed"},
	}
}

func boolPtr(v bool) *bool {
	return &v
}
