package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pithecene-io/assay/sse"
	"github.com/pithecene-io/assay/wire"
)

const testBody = `{"playbook_content":"---\n- hosts: all\n","profile":"basic"}`

// runScenario posts a validate request straight at the handler and returns
// the recorded response. frameDelay is zero so streams complete instantly.
func runScenario(t *testing.T, scenario, body string) *httptest.ResponseRecorder {
	t.Helper()

	srv := newServer(":0", scenarioPass, 0)
	target := "/api/validate/playbook/stream"
	if scenario != "" {
		target += "?scenario=" + scenario
	}
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.handleValidate(rec, req)
	return rec
}

// collectFrames runs the response body through the client-side line scanner
// and classifier. Blank keep-alive lines are skipped; any other parse
// failure fails the test, pinning that every emitted line is decodable.
func collectFrames(t *testing.T, body string) []wire.Frame {
	t.Helper()

	var frames []wire.Frame
	scanner := sse.NewLineScanner(strings.NewReader(body))
	for {
		line, err := scanner.ReadLine()
		if errors.Is(err, io.EOF) {
			return frames
		}
		if err != nil {
			t.Fatalf("ReadLine: %v", err)
		}

		frame, perr := wire.ParseLine(line)
		if perr != nil {
			var parseErr *wire.ParseError
			if errors.As(perr, &parseErr) && parseErr.Kind == wire.ParseErrorEmpty {
				continue
			}
			t.Fatalf("line %q does not parse: %v", line, perr)
		}
		frames = append(frames, frame)
	}
}

func TestStreamScenarios(t *testing.T) {
	tests := []struct {
		scenario string
		check    func(t *testing.T, frames []wire.Frame)
	}{
		{
			scenario: scenarioPass,
			check: func(t *testing.T, frames []wire.Frame) {
				requireKinds(t, frames, wire.KindProgress, wire.KindProgress, wire.KindProgress, wire.KindFinalResult, wire.KindEnd)
				fr := frames[3].(*wire.FinalResultFrame)
				if !fr.Data.Passed {
					t.Error("final_result should pass")
				}
				if got := fr.Data.FinalPlaybookText(); got != "---\n- hosts: all\n" {
					t.Errorf("final playbook = %q, want the submitted content", got)
				}
			},
		},
		{
			scenario: scenarioFixLoop,
			check: func(t *testing.T, frames []wire.Frame) {
				requireKinds(t, frames,
					wire.KindProgress, wire.KindProgress, wire.KindProgress, wire.KindProgress, wire.KindProgress,
					wire.KindFinalResult, wire.KindEnd)
				if fr := frames[5].(*wire.FinalResultFrame); !fr.Data.Passed {
					t.Error("final_result should pass")
				}
			},
		},
		{
			scenario: scenarioFail,
			check: func(t *testing.T, frames []wire.Frame) {
				requireKinds(t, frames, wire.KindProgress, wire.KindProgress, wire.KindProgress, wire.KindFinalResult)
				fr := frames[3].(*wire.FinalResultFrame)
				if fr.Data.Passed {
					t.Error("final_result should fail")
				}
				if len(fr.Data.Issues) != 1 {
					t.Errorf("issues = %d, want 1", len(fr.Data.Issues))
				}
				if fr.Data.ErrorMessage == "" {
					t.Error("failing result should carry error_message")
				}
			},
		},
		{
			scenario: scenarioError,
			check: func(t *testing.T, frames []wire.Frame) {
				requireKinds(t, frames, wire.KindProgress, wire.KindError)
				if fr := frames[1].(*wire.ErrorFrame); fr.Message == "" {
					t.Error("error frame should carry a message")
				}
			},
		},
		{
			scenario: scenarioTruncate,
			check: func(t *testing.T, frames []wire.Frame) {
				// No terminal frame: the stream just stops after a fix step.
				requireKinds(t, frames, wire.KindProgress, wire.KindProgress)
				if fr := frames[1].(*wire.ProgressFrame); fr.AgentAction != "llm_fix" {
					t.Errorf("last step action = %q, want llm_fix", fr.AgentAction)
				}
			},
		},
		{
			scenario: scenarioTruncatePass,
			check: func(t *testing.T, frames []wire.Frame) {
				requireKinds(t, frames, wire.KindProgress, wire.KindProgress, wire.KindProgress)
				fr := frames[2].(*wire.ProgressFrame)
				if fr.AgentAction != "lint" || !strings.Contains(fr.Summary, "No issues") {
					t.Errorf("last step = %s %q, want a clean lint step", fr.AgentAction, fr.Summary)
				}
			},
		},
		{
			scenario: scenarioLegacy,
			check: func(t *testing.T, frames []wire.Frame) {
				requireKinds(t, frames, wire.KindProgress, wire.KindToolResult, wire.KindEnd)
				fr := frames[1].(*wire.ToolResultFrame)
				if fr.Tool != "lint_ansible_playbook" {
					t.Errorf("tool = %q", fr.Tool)
				}
				if fr.Output.Summary == nil || fr.Output.Summary.Passed == nil || *fr.Output.Summary.Passed {
					t.Error("tool summary should carry passed=false")
				}
			},
		},
		{
			scenario: scenarioReport,
			check: func(t *testing.T, frames []wire.Frame) {
				requireKinds(t, frames, wire.KindSingleResult, wire.KindEnd)
				fr := frames[0].(*wire.SingleResultFrame)
				if fr.Data.ValidationPassed {
					t.Error("report should fail validation")
				}
				if len(fr.Data.Issues) != 2 {
					t.Errorf("issues = %d, want 2", len(fr.Data.Issues))
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.scenario, func(t *testing.T) {
			rec := runScenario(t, tt.scenario, testBody)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
				t.Fatalf("Content-Type = %q, want text/event-stream", ct)
			}
			tt.check(t, collectFrames(t, rec.Body.String()))
		})
	}
}

func requireKinds(t *testing.T, frames []wire.Frame, want ...string) {
	t.Helper()

	got := make([]string, len(frames))
	for i, f := range frames {
		got[i] = f.Kind()
	}
	if len(got) != len(want) {
		t.Fatalf("frame kinds = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("frame kinds = %v, want %v", got, want)
		}
	}
}

func TestHandleValidate_Document(t *testing.T) {
	rec := runScenario(t, scenarioDocument, testBody)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("Content-Type = %q, want application/json", ct)
	}

	frame, err := wire.ClassifyDocument(rec.Body.Bytes())
	if err != nil {
		t.Fatalf("ClassifyDocument: %v", err)
	}
	direct, ok := frame.(*wire.DirectResultFrame)
	if !ok {
		t.Fatalf("frame = %T, want DirectResultFrame", frame)
	}
	if !direct.Payload.Passed {
		t.Error("document result should pass")
	}
	if direct.Payload.FinalPlaybookText() != "---\n- hosts: all\n" {
		t.Error("document should echo the submitted playbook")
	}
}

func TestHandleValidate_Reject(t *testing.T) {
	rec := runScenario(t, scenarioReject, testBody)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal error body: %v", err)
	}
	if body.Detail == "" {
		t.Error("reject response should carry a detail message")
	}
}

func TestHandleValidate_BadBody(t *testing.T) {
	rec := runScenario(t, "", `{"playbook_content":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleValidate_UnknownScenario(t *testing.T) {
	rec := runScenario(t, "does-not-exist", testBody)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleValidate_DefaultScenario(t *testing.T) {
	srv := newServer(":0", scenarioError, 0)
	req := httptest.NewRequest(http.MethodPost, "/api/validate/playbook/stream", strings.NewReader(testBody))
	rec := httptest.NewRecorder()
	srv.handleValidate(rec, req)

	frames := collectFrames(t, rec.Body.String())
	requireKinds(t, frames, wire.KindProgress, wire.KindError)
}

func TestHandleValidate_EmptyPlaybookUsesSample(t *testing.T) {
	rec := runScenario(t, scenarioPass, `{"playbook_content":"","profile":"basic"}`)
	frames := collectFrames(t, rec.Body.String())

	var final *wire.FinalResultFrame
	for _, f := range frames {
		if fr, ok := f.(*wire.FinalResultFrame); ok {
			final = fr
		}
	}
	if final == nil {
		t.Fatal("no final_result frame")
	}
	if final.Data.FinalPlaybookText() != samplePlaybook {
		t.Error("empty request should fall back to the sample playbook")
	}
}

func TestHandleValidate_HangStopsOnDisconnect(t *testing.T) {
	srv := newServer(":0", scenarioPass, 0)
	req := httptest.NewRequest(http.MethodPost, "/api/validate/playbook/stream?scenario=hang", strings.NewReader(testBody))
	ctx, cancel := context.WithCancel(req.Context())
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleValidate(rec, req)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hang handler did not return after disconnect")
	}

	frames := collectFrames(t, rec.Body.String())
	requireKinds(t, frames, wire.KindProgress)
}

func TestRouting(t *testing.T) {
	srv := newServer(":0", scenarioPass, 0)
	ts := httptest.NewServer(srv.httpServer.Handler)
	defer ts.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/healthz")
		if err != nil {
			t.Fatalf("GET /healthz: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/api/validate/playbook/stream")
		if err != nil {
			t.Fatalf("GET stream path: %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status = %d, want 405", resp.StatusCode)
		}
	})

	t.Run("streamed over a real connection", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/api/validate/playbook/stream", "application/json", strings.NewReader(testBody))
		if err != nil {
			t.Fatalf("POST stream: %v", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		frames := collectFrames(t, string(body))
		if len(frames) == 0 {
			t.Fatal("no frames received")
		}
		if frames[len(frames)-1].Kind() != wire.KindEnd {
			t.Errorf("last frame = %s, want end sentinel", frames[len(frames)-1].Kind())
		}
	})
}

func TestKnownScenario(t *testing.T) {
	for _, name := range scenarioNames() {
		if !knownScenario(name) {
			t.Errorf("knownScenario(%q) = false", name)
		}
	}
	if knownScenario("bogus") {
		t.Error("knownScenario(bogus) = true")
	}
	if knownScenario("") {
		t.Error("knownScenario(\"\") = true")
	}
}

func TestBuildScript_UnknownIsEmpty(t *testing.T) {
	s := buildScript("bogus", validateRequest{})
	if len(s.frames) != 0 {
		t.Errorf("unknown scenario produced %d frames", len(s.frames))
	}
}
