// Package main provides the assay-mockd development backend.
//
// assay-mockd serves the playbook-validation stream contract from canned
// scenario scripts, so the client can be exercised end to end without a
// real validation backend:
//
//	assay-mockd serve --addr :8787
//	assay validate playbook.yml --backend-url http://localhost:8787
//
// A scenario is chosen per request with ?scenario=<name>, falling back to
// the --scenario flag:
//
//   - pass: lint/fix/lint steps, passing final_result, [DONE] sentinel
//   - fix-loop: two fix iterations before the passing final_result
//   - fail: unfixable issue, failing final_result, stream closes bare
//   - error: progress then a fatal {"type":"error"} frame
//   - truncate: progress frames, then the stream drops mid-run
//   - truncate-pass: stream drops right after a clean lint step
//   - legacy: old-style {tool, output} envelope
//   - report: one-shot {"type":"result"} lint report
//   - document: single application/json body instead of a stream
//   - hang: one progress frame, then silence until client disconnect
//   - reject: HTTP 422 with a JSON detail body
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/types"
)

func main() {
	app := &cli.App{
		Name:    "assay-mockd",
		Usage:   "Mock playbook-validation backend for assay development",
		Version: types.Version,
		Commands: []*cli.Command{
			serveCommand(),
		},
		ExitErrHandler: exitErrHandler,
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit; this branch is only
		// reached if it didn't.
		os.Exit(1)
	}
}

// exitErrHandler handles errors from the CLI, respecting cli.ExitCoder.
func exitErrHandler(c *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() returns "exit status N"; skip those
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the mock validation backend",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address",
				Value: ":8787",
			},
			&cli.StringFlag{
				Name:  "scenario",
				Usage: fmt.Sprintf("Default scenario when the request picks none (%s)", strings.Join(scenarioNames(), ", ")),
				Value: scenarioPass,
			},
			&cli.DurationFlag{
				Name:  "frame-delay",
				Usage: "Pause between stream frames",
				Value: 150 * time.Millisecond,
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	defaultScenario := c.String("scenario")
	if !knownScenario(defaultScenario) {
		return cli.Exit(fmt.Sprintf("unknown scenario %q (choose one of: %s)", defaultScenario, strings.Join(scenarioNames(), ", ")), 1)
	}

	srv := newServer(c.String("addr"), defaultScenario, c.Duration("frame-delay"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	fmt.Fprintf(os.Stderr, "assay-mockd listening on %s (default scenario %q)\n", c.String("addr"), defaultScenario)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return cli.Exit(fmt.Sprintf("serve: %v", err), 1)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return cli.Exit(fmt.Sprintf("shutdown: %v", err), 1)
		}
		return nil
	}
}

// server wraps an HTTP server with the mock backend routing.
type server struct {
	httpServer      *http.Server
	defaultScenario string
	frameDelay      time.Duration
}

func newServer(addr, defaultScenario string, frameDelay time.Duration) *server {
	s := &server{
		defaultScenario: defaultScenario,
		frameDelay:      frameDelay,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/validate/playbook/stream", s.handleValidate)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Start begins listening for HTTP connections. Blocks until the server stops.
func (s *server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// validateRequest mirrors the request body the assay client sends.
type validateRequest struct {
	PlaybookContent string `json:"playbook_content"`
	Profile         string `json:"profile"`
}

func (s *server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	name := r.URL.Query().Get("scenario")
	if name == "" {
		name = s.defaultScenario
	}
	if !knownScenario(name) {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("unknown scenario %q", name))
		return
	}

	meta := &types.ValidationMeta{
		ValidationID: types.NewValidationID(),
		Profile:      types.Profile(req.Profile),
	}
	logger := log.NewLogger(meta)
	logger.Info("request accepted", map[string]any{
		"scenario":       name,
		"remote":         r.RemoteAddr,
		"playbook_bytes": len(req.PlaybookContent),
	})

	switch name {
	case scenarioDocument:
		writeJSON(w, http.StatusOK, documentBody(req))
		return
	case scenarioReject:
		writeJSONError(w, http.StatusUnprocessableEntity, fmt.Sprintf("profile %q is not enabled on this backend", req.Profile))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if name == scenarioHang {
		writeSSEFrame(w, flusher, progressFrame{Type: "progress", Step: 1, AgentAction: "lint", Summary: "Found 2 issue(s)"})
		<-r.Context().Done()
		logger.Info("client disconnected", nil)
		return
	}

	script := buildScript(name, req)
	for i, frame := range script.frames {
		if i > 0 && !s.pause(r.Context()) {
			logger.Warn("client disconnected mid-stream", map[string]any{"frames_sent": i})
			return
		}
		writeSSEFrame(w, flusher, frame)
	}

	switch script.end {
	case endDone:
		fmt.Fprint(w, "data: [DONE]\n\n")
		flusher.Flush()
	case endMarker:
		writeSSEFrame(w, flusher, endFrame{Type: "end"})
	case endClose:
		// drop the connection without a terminal marker
	}

	logger.Info("stream complete", map[string]any{
		"scenario": name,
		"frames":   len(script.frames),
	})
}

// pause waits one frame delay, bailing out early on client disconnect.
func (s *server) pause(ctx context.Context) bool {
	if s.frameDelay <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(s.frameDelay):
		return true
	}
}

func writeSSEFrame(w http.ResponseWriter, f http.Flusher, frame any) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	f.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
