package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/pithecene-io/assay/capture"
	"github.com/pithecene-io/assay/client"
	"github.com/pithecene-io/assay/iox"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/sse"
	"github.com/pithecene-io/assay/transcript"
	"github.com/pithecene-io/assay/types"
	"github.com/pithecene-io/assay/wire"
)

// Default invocation budgets per PROTOCOL.md.
const (
	// DefaultOverallTimeout is the whole-invocation budget, from Start to
	// terminal state.
	DefaultOverallTimeout = 120 * time.Second
	// DefaultStreamTimeout is the budget from the first stream line to the
	// terminal frame.
	DefaultStreamTimeout = 90 * time.Second

	// recorderFlushTimeout bounds the best-effort transcript flush after an
	// invocation reaches a terminal state.
	recorderFlushTimeout = 30 * time.Second
)

// ErrValidationActive is returned by Start while an invocation is in
// flight. The caller must Cancel or Reset first; Start never restarts
// implicitly.
var ErrValidationActive = errors.New("a validation is already in flight")

// State is the observable machine state.
type State string

// Machine states. Idle, Connecting, and Streaming are live; the rest are
// terminal for the invocation.
const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether the state ends an invocation.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Snapshot is a consistent copy of the observable state. Steps are copied;
// Result and CurrentStep are immutable once published and must be treated
// as read-only.
type Snapshot struct {
	State           State
	ValidationID    string
	Profile         types.Profile
	Steps           []types.ValidationStep
	CurrentStep     *types.ValidationStep
	ProgressMessage string
	Result          *types.ValidationResult
	ErrorMessage    string
	StartedAt       time.Time
	// FinishedAt is set when the state turns terminal, zero before.
	FinishedAt time.Time
}

// Config configures a session.
type Config struct {
	// Client opens validation streams. Required.
	Client *client.Client
	// Recorder receives steps and results for the transcript store. May be
	// nil. The session flushes it after each invocation; the caller owns
	// Close.
	Recorder transcript.Recorder
	// Collector receives invocation metrics. May be nil.
	Collector *metrics.Collector
	// Capture appends every raw stream line for later replay. May be nil.
	Capture *capture.Writer
	// OnUpdate is invoked with a fresh snapshot after every observable
	// change, outside the session lock. May be nil.
	OnUpdate func(Snapshot)
	// OverallTimeout overrides DefaultOverallTimeout.
	OverallTimeout time.Duration
	// StreamTimeout overrides DefaultStreamTimeout.
	StreamTimeout time.Duration
	// LogOutput redirects invocation logs (for testing).
	LogOutput io.Writer
}

// Request is one validation submission.
type Request struct {
	// Playbook is the playbook text to validate.
	Playbook string
	// Profile selects the lint profile. Empty means types.DefaultProfile.
	Profile types.Profile
	// ValidationID overrides the generated identifier, for correlation
	// with externally created collectors and transcripts.
	ValidationID string
}

// abortReason distinguishes why an invocation's transport was aborted.
// Whoever aborts first wins; finish honors the recorded reason over the
// raw context error.
type abortReason int

const (
	abortNone abortReason = iota
	abortUserCancel
	abortStreamTimeout
)

// invocation is the per-Start machine instance: identity, budgets, abort
// bookkeeping. The invocation pointer doubles as the staleness token; any
// update carrying a pointer the session no longer holds is discarded.
type invocation struct {
	meta     *types.ValidationMeta
	logger   *log.Logger
	recorder transcript.Recorder

	overallBudget time.Duration
	streamBudget  time.Duration

	cancel context.CancelFunc
	done   chan struct{}

	// Guarded by the session mutex.
	reason      abortReason
	streamTimer *time.Timer
}

// Session drives validation invocations one at a time and exposes their
// observable state. All methods are safe for concurrent use.
type Session struct {
	config    Config
	client    *client.Client
	collector *metrics.Collector

	mu              sync.Mutex
	state           State
	inv             *invocation
	steps           []types.ValidationStep
	currentStep     *types.ValidationStep
	progressMessage string
	result          *types.ValidationResult
	errorMessage    string
	finishedAt      time.Time
}

// New creates an idle session.
func New(cfg Config) (*Session, error) {
	if cfg.Client == nil {
		return nil, errors.New("session: client is required")
	}
	if cfg.OverallTimeout <= 0 {
		cfg.OverallTimeout = DefaultOverallTimeout
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = DefaultStreamTimeout
	}
	return &Session{
		config:    cfg,
		client:    cfg.Client,
		collector: cfg.Collector,
		state:     StateIdle,
	}, nil
}

// Start begins one invocation and returns its identity. Exactly one
// invocation may be in flight; Start returns ErrValidationActive while
// one is. ctx bounds the whole invocation in addition to the overall
// budget; cancelling it cancels the validation.
func (s *Session) Start(ctx context.Context, req Request) (*types.ValidationMeta, error) {
	if req.Playbook == "" {
		return nil, errors.New("playbook content is empty")
	}
	if req.Profile == "" {
		req.Profile = types.DefaultProfile
	}
	if req.ValidationID == "" {
		req.ValidationID = types.NewValidationID()
	}

	meta := &types.ValidationMeta{
		ValidationID:  req.ValidationID,
		Profile:       req.Profile,
		PlaybookBytes: len(req.Playbook),
		StartedAt:     time.Now().UTC(),
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid validation metadata: %w", err)
	}

	logger := log.NewLogger(meta)
	if s.config.LogOutput != nil {
		logger = logger.WithOutput(s.config.LogOutput)
	}

	recorder := s.config.Recorder
	if recorder == nil {
		recorder = transcript.NewNoopRecorder()
	}

	inv := &invocation{
		meta:          meta,
		logger:        logger,
		recorder:      recorder,
		overallBudget: s.config.OverallTimeout,
		streamBudget:  s.config.StreamTimeout,
		done:          make(chan struct{}),
	}

	s.mu.Lock()
	if s.inv != nil && !s.state.Terminal() {
		s.mu.Unlock()
		return nil, ErrValidationActive
	}
	// Fresh machine instance: prior history never leaks into a new run.
	s.clearLocked()
	runCtx, cancel := context.WithTimeout(ctx, inv.overallBudget)
	inv.cancel = cancel
	s.inv = inv
	s.state = StateConnecting
	update := s.snapshotLocked()
	s.mu.Unlock()

	s.collector.IncValidationStarted()
	logger.Info("starting validation", map[string]any{
		"playbook_bytes": meta.PlaybookBytes,
		"profile":        string(meta.Profile),
	})
	s.notify(update)

	go s.run(runCtx, cancel, inv, client.ValidationRequest{
		PlaybookContent: req.Playbook,
		Profile:         req.Profile,
	})
	return meta, nil
}

// Cancel aborts the active invocation. The session transitions to
// Cancelled once the transport has been released; cancelling an idle or
// finished session is a no-op.
func (s *Session) Cancel() {
	s.mu.Lock()
	inv := s.inv
	if inv == nil || s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	if inv.reason == abortNone {
		inv.reason = abortUserCancel
	}
	s.mu.Unlock()

	inv.logger.Info("cancelling validation", nil)
	inv.cancel()
}

// Reset cancels any active invocation and returns to Idle with cleared
// history. Reset is idempotent; resetting an idle session changes nothing.
func (s *Session) Reset() {
	s.mu.Lock()
	inv := s.inv
	if inv != nil && !s.state.Terminal() && inv.reason == abortNone {
		inv.reason = abortUserCancel
	}
	if inv != nil && inv.streamTimer != nil {
		inv.streamTimer.Stop()
	}
	// Detach the invocation: its goroutine still releases resources, but
	// every update it publishes is stale and discarded.
	s.inv = nil
	s.clearLocked()
	s.state = StateIdle
	update := s.snapshotLocked()
	s.mu.Unlock()

	if inv != nil {
		inv.cancel()
	}
	s.notify(update)
}

// Snapshot returns a consistent copy of the observable state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// State returns the current machine state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// closedDone is returned by Done when no invocation has ever started.
var closedDone = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Done returns a channel closed when the current invocation's goroutine
// has finished and released its resources. With no invocation the channel
// is already closed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inv == nil {
		return closedDone
	}
	return s.inv.done
}

// run consumes one invocation end to end. It owns the response body and
// releases it on every exit path before publishing the terminal state.
func (s *Session) run(ctx context.Context, cancel context.CancelFunc, inv *invocation, req client.ValidationRequest) {
	defer close(inv.done)
	defer cancel()

	reducer := NewReducer(ReducerConfig{
		Logger:    inv.logger,
		Collector: s.collector,
		Recorder:  inv.recorder,
	})

	consumeErr := s.consume(ctx, inv, reducer, req)

	// Best-effort transcript flush on every termination path. WithoutCancel
	// so a cancelled invocation still lands its collected records.
	flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), recorderFlushTimeout)
	if err := inv.recorder.Flush(flushCtx); err != nil {
		inv.logger.Warn("transcript flush failed (best effort)", map[string]any{
			"error": err.Error(),
		})
	}
	flushCancel()

	st := inv.recorder.Stats()
	s.collector.AbsorbRecorderStats(st.TotalRecords, st.RecordsPersisted, st.RecordsDropped, st.DroppedByKind)

	s.finish(ctx, inv, reducer, consumeErr)
}

// consume opens the stream and folds it into the reducer. The returned
// error is nil only when the reducer produced a result.
func (s *Session) consume(ctx context.Context, inv *invocation, reducer *Reducer, req client.ValidationRequest) error {
	stream, err := s.client.OpenValidationStream(ctx, req)
	if err != nil {
		return fmt.Errorf("open validation stream: %w", err)
	}
	defer iox.DiscardClose(stream)

	switch {
	case stream.IsEventStream():
		return s.consumeStream(ctx, inv, reducer, stream)
	case stream.IsJSONDocument():
		return s.consumeDocument(ctx, inv, reducer, stream)
	default:
		return fmt.Errorf("unexpected response content type %q", stream.ContentType)
	}
}

// consumeStream folds an SSE response line by line.
func (s *Session) consumeStream(ctx context.Context, inv *invocation, reducer *Reducer, stream *client.Stream) error {
	scanner := sse.NewLineScanner(stream.Body)
	first := true

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line, err := scanner.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				// Natural closure without a terminal frame: same handling
				// as an explicit end marker.
				return reducer.Finish(ctx)
			}
			return err
		}

		if first {
			first = false
			s.toStreaming(inv)
		}
		s.collector.IncLineRead()
		s.captureLine(inv, line)

		frame, err := wire.ParseLine(line)
		if err != nil {
			var parseErr *wire.ParseError
			if errors.As(err, &parseErr) {
				// Empty lines are keep-alives, not skips.
				if parseErr.Kind != wire.ParseErrorEmpty {
					s.collector.IncLineSkipped()
					inv.logger.Warn("skipping unparseable line", map[string]any{
						"error": err.Error(),
					})
				}
				continue
			}
			return err
		}
		s.collector.IncFrameParsed(frame.Kind())

		done, err := reducer.Apply(ctx, frame)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		s.publishProgress(inv, reducer)
	}
}

// consumeDocument handles a non-streaming response: the whole body is one
// JSON document, classified exactly like one stream line.
func (s *Session) consumeDocument(ctx context.Context, inv *invocation, reducer *Reducer, stream *client.Stream) error {
	body, err := io.ReadAll(io.LimitReader(stream.Body, sse.MaxLineSize+1))
	if err != nil {
		return fmt.Errorf("read response document: %w", err)
	}
	if len(body) > sse.MaxLineSize {
		return fmt.Errorf("response document exceeds %d bytes", sse.MaxLineSize)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errors.New("response document is empty")
	}

	inv.logger.Debug("non-streaming response", map[string]any{
		"bytes": len(body),
	})
	s.captureLine(inv, string(body))

	frame, err := wire.ClassifyDocument(body)
	if err != nil {
		// A whole-body document that does not classify is a transport
		// failure, not a skippable line.
		return fmt.Errorf("classify response document: %w", err)
	}
	s.collector.IncFrameParsed(frame.Kind())

	done, err := reducer.Apply(ctx, frame)
	if err != nil {
		return err
	}
	if !done {
		// A lone progress document carries no outcome.
		return reducer.Finish(ctx)
	}
	return nil
}

// captureLine appends one raw line to the capture file, if configured.
func (s *Session) captureLine(inv *invocation, line string) {
	cw := s.config.Capture
	if cw == nil {
		return
	}
	if err := cw.Append(line, time.Since(inv.meta.StartedAt)); err != nil {
		inv.logger.Warn("failed to capture line", map[string]any{
			"error": err.Error(),
		})
	}
}

// toStreaming transitions Connecting to Streaming on the first stream line
// and arms the stream budget timer.
func (s *Session) toStreaming(inv *invocation) {
	s.mu.Lock()
	if s.inv != inv || s.state != StateConnecting {
		s.mu.Unlock()
		return
	}
	s.state = StateStreaming
	inv.streamTimer = time.AfterFunc(inv.streamBudget, func() {
		s.onStreamTimeout(inv)
	})
	update := s.snapshotLocked()
	s.mu.Unlock()

	inv.logger.Debug("streaming started", nil)
	s.notify(update)
}

// onStreamTimeout fires when no terminal frame arrived within the stream
// budget. Firing after the invocation reached a terminal state is a no-op.
func (s *Session) onStreamTimeout(inv *invocation) {
	s.mu.Lock()
	if s.inv != inv || s.state.Terminal() || inv.reason != abortNone {
		s.mu.Unlock()
		return
	}
	inv.reason = abortStreamTimeout
	s.mu.Unlock()

	inv.logger.Warn("stream budget exceeded, aborting transport", map[string]any{
		"budget": inv.streamBudget.String(),
	})
	inv.cancel()
}

// publishProgress copies the reducer's observables into the session state.
// Stale invocations publish nothing.
func (s *Session) publishProgress(inv *invocation, reducer *Reducer) {
	s.mu.Lock()
	if s.inv != inv {
		s.mu.Unlock()
		return
	}
	s.steps = reducer.Steps()
	s.currentStep = reducer.CurrentStep()
	s.progressMessage = reducer.ProgressMessage()
	update := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(update)
}

// finish classifies the consume outcome into a terminal state and
// publishes it. Classification order: a recorded abort reason wins over
// the raw context error, which wins over the error type.
func (s *Session) finish(ctx context.Context, inv *invocation, reducer *Reducer, consumeErr error) {
	s.mu.Lock()
	if s.inv != inv {
		// Reset detached this invocation; nothing left to publish.
		s.mu.Unlock()
		return
	}
	if inv.streamTimer != nil {
		inv.streamTimer.Stop()
	}
	reason := inv.reason

	s.steps = reducer.Steps()
	s.currentStep = reducer.CurrentStep()
	s.progressMessage = reducer.ProgressMessage()

	var backendErr *BackendError
	timedOut := false
	switch {
	case consumeErr == nil:
		s.state = StateCompleted
		s.result = reducer.Result()
		s.errorMessage = ""
	case reason == abortUserCancel:
		s.state = StateCancelled
		s.errorMessage = ""
	case reason == abortStreamTimeout:
		s.state = StateFailed
		s.errorMessage = fmt.Sprintf("validation stream timed out after %s", humanDuration(inv.streamBudget))
		timedOut = true
	case errors.Is(consumeErr, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		s.state = StateFailed
		s.errorMessage = fmt.Sprintf("validation timed out after %s", humanDuration(inv.overallBudget))
		timedOut = true
	case errors.Is(consumeErr, context.Canceled):
		// The caller cancelled the Start context directly.
		s.state = StateCancelled
		s.errorMessage = ""
	case errors.As(consumeErr, &backendErr):
		s.state = StateFailed
		s.errorMessage = backendErr.Message
	default:
		s.state = StateFailed
		s.errorMessage = consumeErr.Error()
	}
	s.finishedAt = time.Now().UTC()
	state := s.state
	update := s.snapshotLocked()
	s.mu.Unlock()

	duration := update.FinishedAt.Sub(inv.meta.StartedAt)
	switch state {
	case StateCompleted:
		s.collector.IncValidationCompleted()
		inv.logger.Info("validation completed", map[string]any{
			"passed":   update.Result.Passed,
			"steps":    len(update.Steps),
			"duration": duration.String(),
		})
	case StateCancelled:
		s.collector.IncValidationCancelled()
		inv.logger.Info("validation cancelled", map[string]any{
			"steps":    len(update.Steps),
			"duration": duration.String(),
		})
	default:
		if timedOut {
			s.collector.IncValidationTimedOut()
		} else {
			s.collector.IncValidationFailed()
		}
		inv.logger.Error("validation failed", map[string]any{
			"error":    update.ErrorMessage,
			"steps":    len(update.Steps),
			"duration": duration.String(),
		})
	}

	s.notify(update)
}

func (s *Session) clearLocked() {
	s.steps = nil
	s.currentStep = nil
	s.progressMessage = ""
	s.result = nil
	s.errorMessage = ""
	s.finishedAt = time.Time{}
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:           s.state,
		ProgressMessage: s.progressMessage,
		Result:          s.result,
		ErrorMessage:    s.errorMessage,
		CurrentStep:     s.currentStep,
		FinishedAt:      s.finishedAt,
	}
	if s.inv != nil {
		snap.ValidationID = s.inv.meta.ValidationID
		snap.Profile = s.inv.meta.Profile
		snap.StartedAt = s.inv.meta.StartedAt
	}
	if len(s.steps) > 0 {
		snap.Steps = make([]types.ValidationStep, len(s.steps))
		copy(snap.Steps, s.steps)
	}
	return snap
}

func (s *Session) notify(snap Snapshot) {
	if s.config.OnUpdate != nil {
		s.config.OnUpdate(snap)
	}
}

// humanDuration renders a budget the way the failure messages spell it:
// whole minutes as minutes, everything else as seconds.
func humanDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	seconds := int(d / time.Second)
	if seconds == 1 {
		return "1 second"
	}
	return fmt.Sprintf("%d seconds", seconds)
}
