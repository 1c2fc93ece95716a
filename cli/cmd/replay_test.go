package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/capture"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/session"
	"github.com/pithecene-io/assay/types"
)

// buildCapture encodes lines as capture entries spaced 100ms apart.
func buildCapture(t *testing.T, lines ...string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	w := capture.NewWriter(&buf)
	for i, line := range lines {
		if err := w.Append(line, time.Duration(i+1)*100*time.Millisecond); err != nil {
			t.Fatalf("append capture line: %v", err)
		}
	}
	return &buf
}

// writeCaptureFile writes a capture file for app-level replay tests.
func writeCaptureFile(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stream.capture")
	if err := os.WriteFile(path, buildCapture(t, lines...).Bytes(), 0o644); err != nil {
		t.Fatalf("write capture file: %v", err)
	}
	return path
}

func newReplayReducer(collector *metrics.Collector) *session.Reducer {
	logger := log.NewLogger(&types.ValidationMeta{
		ValidationID: "replay-test",
		Profile:      types.ProfileBasic,
	}).WithOutput(io.Discard)
	return session.NewReducer(session.ReducerConfig{
		Logger:    logger,
		Collector: collector,
	})
}

func replayTestApp() *cli.App {
	app := newTestApp()
	app.Commands = []*cli.Command{ReplayCommand()}
	return app
}

func TestReplayCapture_Completed(t *testing.T) {
	buf := buildCapture(t,
		`data: {"type":"progress","step":1,"agent_action":"lint","summary":"Found 1 issue"}`,
		`data: {"type":"progress","step":2,"agent_action":"llm_fix","summary":"Applied fix"}`,
		`data: {"type":"final_result","data":{"passed":true,"final_code":"---\n- hosts: all"}}`,
	)
	collector := metrics.NewCollector("basic", "replay", "none", "")
	reducer := newReplayReducer(collector)

	state, errMsg, elapsed := replayCapture(context.Background(), buf, reducer, collector, io.Discard)

	if state != session.StateCompleted || errMsg != "" {
		t.Fatalf("state = %s, errMsg = %q", state, errMsg)
	}
	if elapsed != 300*time.Millisecond {
		t.Errorf("elapsed = %v, want the capture's stream span 300ms", elapsed)
	}
	result := reducer.Result()
	if result == nil || !result.Passed {
		t.Fatal("result should be a passing verdict")
	}
	if len(reducer.Steps()) != 2 {
		t.Errorf("steps = %d, want 2", len(reducer.Steps()))
	}

	snap := collector.Snapshot()
	if snap.LinesRead != 3 || snap.FramesParsed != 3 {
		t.Errorf("lines/frames = %d/%d, want 3/3", snap.LinesRead, snap.FramesParsed)
	}
}

func TestReplayCapture_BackendError(t *testing.T) {
	buf := buildCapture(t,
		`data: {"type":"progress","step":1,"agent_action":"lint","summary":"Linting"}`,
		`data: {"type":"error","message":"ansible-lint crashed"}`,
	)
	collector := metrics.NewCollector("basic", "replay", "none", "")
	reducer := newReplayReducer(collector)

	state, errMsg, _ := replayCapture(context.Background(), buf, reducer, collector, io.Discard)

	if state != session.StateFailed {
		t.Errorf("state = %s, want failed", state)
	}
	if errMsg != "ansible-lint crashed" {
		t.Errorf("errMsg = %q, want the backend message verbatim", errMsg)
	}

	snap := collector.Snapshot()
	if snap.ErrorFrames != 1 || snap.ValidationsFailed != 1 {
		t.Errorf("errorFrames/failed = %d/%d", snap.ErrorFrames, snap.ValidationsFailed)
	}
}

func TestReplayCapture_TruncationSynthesisPassed(t *testing.T) {
	// The capture stops right after a clean lint pass; the synthesized
	// verdict matches the live truncation path.
	buf := buildCapture(t,
		`data: {"type":"progress","step":1,"agent_action":"llm_fix","summary":"Applied fix","code":"---\n- hosts: all"}`,
		`data: {"type":"progress","step":2,"agent_action":"lint","summary":"No issues found"}`,
	)
	collector := metrics.NewCollector("basic", "replay", "none", "")
	reducer := newReplayReducer(collector)

	state, errMsg, elapsed := replayCapture(context.Background(), buf, reducer, collector, io.Discard)

	if state != session.StateCompleted || errMsg != "" {
		t.Fatalf("state = %s, errMsg = %q", state, errMsg)
	}
	if elapsed != 200*time.Millisecond {
		t.Errorf("elapsed = %v", elapsed)
	}
	result := reducer.Result()
	if result == nil || !result.Passed {
		t.Fatal("synthesized verdict should pass after a clean lint step")
	}
	if truncated, _ := result.DebugInfo["truncated_stream"].(bool); !truncated {
		t.Error("DebugInfo missing truncated_stream marker")
	}
}

func TestReplayCapture_TruncationSynthesisFailed(t *testing.T) {
	buf := buildCapture(t,
		`data: {"type":"progress","step":1,"agent_action":"lint","summary":"Found 3 issues"}`,
		`data: {"type":"progress","step":2,"agent_action":"llm_fix","summary":"Applied fix"}`,
	)
	collector := metrics.NewCollector("basic", "replay", "none", "")
	reducer := newReplayReducer(collector)

	state, errMsg, _ := replayCapture(context.Background(), buf, reducer, collector, io.Discard)

	// Synthesis is not an error; the failure lives on the verdict.
	if state != session.StateCompleted || errMsg != "" {
		t.Fatalf("state = %s, errMsg = %q", state, errMsg)
	}
	result := reducer.Result()
	if result == nil || result.Passed {
		t.Fatal("synthesized verdict should fail when the last step is a fix")
	}
	if result.ErrorMessage == "" || !strings.Contains(result.ErrorMessage, "before the backend sent a final result") {
		t.Errorf("result.ErrorMessage = %q", result.ErrorMessage)
	}
}

func TestReplayCapture_EmptyCapture(t *testing.T) {
	collector := metrics.NewCollector("basic", "replay", "none", "")
	reducer := newReplayReducer(collector)

	state, errMsg, elapsed := replayCapture(context.Background(), &bytes.Buffer{}, reducer, collector, io.Discard)

	if state != session.StateFailed {
		t.Errorf("state = %s, want failed", state)
	}
	if errMsg != session.ErrNoResult.Error() {
		t.Errorf("errMsg = %q, want %q", errMsg, session.ErrNoResult.Error())
	}
	if elapsed != 0 {
		t.Errorf("elapsed = %v, want zero", elapsed)
	}
}

func TestReplayCapture_GarbageLineSkipped(t *testing.T) {
	buf := buildCapture(t,
		`data: this is not JSON`,
		`data: {"type":"final_result","data":{"passed":true}}`,
	)
	collector := metrics.NewCollector("basic", "replay", "none", "")
	reducer := newReplayReducer(collector)

	state, _, _ := replayCapture(context.Background(), buf, reducer, collector, io.Discard)

	if state != session.StateCompleted {
		t.Errorf("state = %s, want completed despite the garbage line", state)
	}
	snap := collector.Snapshot()
	if snap.LinesSkipped != 1 {
		t.Errorf("LinesSkipped = %d, want 1", snap.LinesSkipped)
	}
	if snap.FramesParsed != 1 {
		t.Errorf("FramesParsed = %d, want 1", snap.FramesParsed)
	}
}

func TestReplayCapture_KeepAlivesNotCountedSkipped(t *testing.T) {
	// Captures taken from a live stream include the blank keep-alive
	// lines; replay treats them exactly like the live loop does.
	buf := buildCapture(t,
		``,
		`data: {"type":"progress","step":1,"agent_action":"lint","summary":"No issues found"}`,
		``,
		`data: {"type":"final_result","data":{"passed":true}}`,
	)
	collector := metrics.NewCollector("basic", "replay", "none", "")
	reducer := newReplayReducer(collector)

	state, _, _ := replayCapture(context.Background(), buf, reducer, collector, io.Discard)

	if state != session.StateCompleted {
		t.Errorf("state = %s, want completed", state)
	}
	snap := collector.Snapshot()
	if snap.LinesRead != 4 {
		t.Errorf("LinesRead = %d, want 4", snap.LinesRead)
	}
	if snap.LinesSkipped != 0 {
		t.Errorf("LinesSkipped = %d, want 0", snap.LinesSkipped)
	}
}

func TestReplayCapture_CorruptedTrailingBytes(t *testing.T) {
	buf := buildCapture(t,
		`data: {"type":"progress","step":1,"agent_action":"lint","summary":"No issues found"}`,
	)
	// A length prefix with no payload behind it: the reader hits a
	// partial entry and the rest of the file is unreadable.
	buf.Write([]byte{0x00, 0x00, 0x00, 0x50})

	collector := metrics.NewCollector("basic", "replay", "none", "")
	reducer := newReplayReducer(collector)
	var warn bytes.Buffer

	state, errMsg, _ := replayCapture(context.Background(), buf, reducer, collector, &warn)

	if !strings.Contains(warn.String(), "capture truncated") {
		t.Errorf("warning output = %q", warn.String())
	}
	// The entries before the damage still reduce to a verdict.
	if state != session.StateCompleted || errMsg != "" {
		t.Fatalf("state = %s, errMsg = %q", state, errMsg)
	}
	result := reducer.Result()
	if result == nil || !result.Passed {
		t.Fatal("verdict should be synthesized from the surviving entries")
	}
}

func TestReplayCapture_BareJSONLines(t *testing.T) {
	// Captures written by other tooling may lack the SSE data prefix;
	// classification accepts both.
	buf := buildCapture(t,
		`{"type":"progress","step":1,"agent_action":"lint","summary":"Found 1 issue"}`,
		`{"type":"final_result","data":{"passed":true}}`,
	)
	collector := metrics.NewCollector("basic", "replay", "none", "")
	reducer := newReplayReducer(collector)

	state, errMsg, _ := replayCapture(context.Background(), buf, reducer, collector, io.Discard)

	if state != session.StateCompleted || errMsg != "" {
		t.Fatalf("state = %s, errMsg = %q", state, errMsg)
	}
}

func TestReplayAction_EndToEnd(t *testing.T) {
	path := writeCaptureFile(t,
		`data: {"type":"progress","step":1,"agent_action":"lint","summary":"Found 1 issue"}`,
		`data: {"type":"progress","step":2,"agent_action":"llm_fix","summary":"Applied fix"}`,
		`data: {"type":"final_result","data":{"passed":true}}`,
	)
	reportPath := filepath.Join(t.TempDir(), "report.json")

	err := replayTestApp().Run([]string{"assay", "replay", "--quiet", "--report", reportPath, path})
	if code := exitCodeOf(t, err); code != session.ExitPassed {
		t.Fatalf("exit code = %d, want %d (err: %v)", code, session.ExitPassed, err)
	}

	data, readErr := os.ReadFile(reportPath)
	if readErr != nil {
		t.Fatalf("read report: %v", readErr)
	}
	var report session.ValidationReport
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("unmarshal report: %v", err)
	}
	if report.State != session.StateCompleted || report.StepCount != 2 {
		t.Errorf("report state/steps = %s/%d", report.State, report.StepCount)
	}
	if report.DurationMs != 300 {
		t.Errorf("DurationMs = %d, want the capture's stream span 300", report.DurationMs)
	}
	if report.Metrics == nil || report.Metrics.Backend != "replay" {
		t.Error("report metrics should carry the replay backend dimension")
	}
}

func TestReplayAction_FailedVerdictExitCode(t *testing.T) {
	path := writeCaptureFile(t,
		`data: {"type":"final_result","data":{"passed":false,"issues":[{"rule":"no-free-form"}]}}`,
	)

	err := replayTestApp().Run([]string{"assay", "replay", "--quiet", path})
	if code := exitCodeOf(t, err); code != session.ExitFailed {
		t.Errorf("exit code = %d, want %d", code, session.ExitFailed)
	}
}

func TestReplayAction_BackendErrorExitCode(t *testing.T) {
	path := writeCaptureFile(t,
		`data: {"type":"error","message":"ansible-lint crashed"}`,
	)

	err := replayTestApp().Run([]string{"assay", "replay", "--quiet", path})
	if code := exitCodeOf(t, err); code != session.ExitError {
		t.Errorf("exit code = %d, want %d", code, session.ExitError)
	}
}

func TestReplayAction_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.capture")

	err := replayTestApp().Run([]string{"assay", "replay", missing})
	if code := exitCodeOf(t, err); code != exitConfigError {
		t.Errorf("exit code = %d, want %d", code, exitConfigError)
	}
	if !strings.Contains(err.Error(), "capture file not found") {
		t.Errorf("error = %q", err)
	}
}

func TestReplayAction_NoArgument(t *testing.T) {
	err := replayTestApp().Run([]string{"assay", "replay"})
	if code := exitCodeOf(t, err); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if !strings.Contains(err.Error(), "capture-file required") {
		t.Errorf("error = %q", err)
	}
}

func TestValidateThenReplay_SameVerdict(t *testing.T) {
	ts := httptest.NewServer(sseHandler(
		`data: {"type":"progress","step":1,"agent_action":"lint","summary":"Found 1 issue"}`,
		`data: {"type":"progress","step":2,"agent_action":"llm_fix","summary":"Applied fix"}`,
		`data: {"type":"final_result","data":{"passed":true}}`,
	))
	defer ts.Close()

	capturePath := filepath.Join(t.TempDir(), "stream.capture")
	err := validateTestApp().Run([]string{
		"assay", "validate",
		"--backend-url", ts.URL,
		"--playbook", "- hosts: all",
		"--capture", capturePath,
		"--quiet",
	})
	if code := exitCodeOf(t, err); code != session.ExitPassed {
		t.Fatalf("validate exit code = %d (err: %v)", code, err)
	}

	err = replayTestApp().Run([]string{"assay", "replay", "--quiet", capturePath})
	if code := exitCodeOf(t, err); code != session.ExitPassed {
		t.Errorf("replay exit code = %d, want the live verdict reproduced", code)
	}
}
