package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/adapter"
	"github.com/pithecene-io/assay/adapter/redis"
	"github.com/pithecene-io/assay/adapter/webhook"
	"github.com/pithecene-io/assay/capture"
	"github.com/pithecene-io/assay/cli/config"
	"github.com/pithecene-io/assay/cli/tui"
	"github.com/pithecene-io/assay/client"
	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/session"
	"github.com/pithecene-io/assay/transcript"
	"github.com/pithecene-io/assay/types"
)

// exitConfigError is the exit code for configuration and flag errors.
// It matches session.ExitError: the validation never started, so the
// pass/fail codes do not apply.
const exitConfigError = session.ExitError

// defaultSource is the transcript source partition for validations
// started from this CLI. CI runners and services override it with
// --source so their transcripts stay distinguishable.
const defaultSource = "cli"

// ValidateCommand creates the validate command, the write path of the
// CLI: it submits a playbook to the streaming backend and follows the
// validation to its verdict.
func ValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Validate an Ansible playbook against the streaming backend",
		UsageText: "assay validate --playbook-file site.yml [options]\n" +
			"   assay validate --playbook '<yaml>' --profile production --storage-backend fs --storage-path ./data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "playbook",
				Usage: "Inline playbook YAML content",
			},
			&cli.StringFlag{
				Name:  "playbook-file",
				Usage: "Path to a playbook YAML file",
			},
			&cli.StringFlag{
				Name:  "profile",
				Usage: "Validation profile: minimal, basic, safety, test, production",
				Value: string(types.DefaultProfile),
			},
			&cli.StringFlag{
				Name:  "validation-id",
				Usage: "Override the generated validation ID (for correlation with external systems)",
			},
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to an assay.yaml config file",
			},
			&cli.StringFlag{
				Name:  "backend-url",
				Usage: "Validation backend base URL (e.g. http://localhost:8000)",
			},
			&cli.StringSliceFlag{
				Name:  "header",
				Usage: "Extra backend HTTP header as key=value (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "connect-timeout",
				Usage: "Timeout waiting for backend response headers",
				Value: 10 * time.Second,
			},
			&cli.DurationFlag{
				Name:  "overall-timeout",
				Usage: "Overall validation deadline (0 = default 2m)",
			},
			&cli.DurationFlag{
				Name:  "stream-timeout",
				Usage: "Stream inactivity deadline (0 = default 90s)",
			},
			&cli.StringFlag{
				Name:  "storage-backend",
				Usage: "Transcript storage backend: fs or s3 (empty disables storage)",
			},
			&cli.StringFlag{
				Name:  "storage-path",
				Usage: "Storage root: a directory (fs) or bucket-name[/prefix] (s3)",
			},
			&cli.StringFlag{
				Name:  "storage-dataset",
				Usage: "Lode dataset name for transcripts",
				Value: transcript.DefaultDataset,
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "Source partition tag for transcripts",
				Value: defaultSource,
			},
			&cli.StringFlag{
				Name:  "storage-region",
				Usage: "AWS region for S3 storage",
			},
			&cli.StringFlag{
				Name:  "storage-endpoint",
				Usage: "Custom S3 endpoint URL (e.g. MinIO, Cloudflare R2)",
			},
			&cli.BoolFlag{
				Name:  "storage-s3-path-style",
				Usage: "Use path-style S3 addressing (required by most S3-compatible providers)",
			},
			&cli.StringFlag{
				Name:  "capture",
				Usage: "Write the raw stream to a capture file for later replay",
			},
			&cli.StringFlag{
				Name:  "report",
				Usage: "Write a JSON validation report to a file (- for stderr)",
			},
			&cli.BoolFlag{
				Name:    "quiet",
				Aliases: []string{"q"},
				Usage:   "Suppress the result summary on stdout",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Emit structured invocation logs on stderr",
			},
			&cli.BoolFlag{
				Name:  "tui",
				Usage: "Show a live progress panel while the validation runs",
			},
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Publish a completion event: redis or webhook",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Adapter endpoint URL (redis:// or http(s)://)",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis pub/sub channel for completion events",
			},
			&cli.StringSliceFlag{
				Name:  "adapter-header",
				Usage: "Webhook HTTP header as key=value (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Per-publish adapter timeout (0 = adapter default)",
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Adapter retry attempts",
				Value: 3,
			},
		},
		Action: validateAction,
	}
}

func validateAction(c *cli.Context) error {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
		}
		cfg = loaded
	}

	playbook, err := resolvePlaybook(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
	}

	profile := types.Profile(resolveString(c, "profile", configVal(cfg, func(c *config.Config) string { return c.Profile })))
	if !profile.IsKnown() {
		fmt.Fprintf(os.Stderr, "Warning: unknown profile %q; the backend may reject it\n", profile)
	}

	backend, err := parseBackendConfigWithPrecedence(c, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
	}

	storage := parseStorageConfigWithPrecedence(c, cfg)
	if storage.enabled {
		if err := validateStorageConfig(storage); err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
		}
	} else if storage.path != "" {
		return cli.Exit("Error: --storage-backend is required when --storage-path is set\nValid options: fs, s3", exitConfigError)
	}

	// Adapter misconfiguration is caught before the validation starts; a
	// publish failure afterwards only warns.
	var adapterSel *adapterChoice
	if adapterType := resolveString(c, "adapter", configVal(cfg, func(c *config.Config) string { return c.Adapter.Type })); adapterType != "" {
		choice, err := parseAdapterConfigWithPrecedence(c, cfg, adapterType)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
		}
		adapterSel = &choice
	}

	validationID := c.String("validation-id")
	if validationID == "" {
		validationID = types.NewValidationID()
	}

	// Derive the day partition once so a validation that crosses midnight
	// stores and reports under a single day.
	startTime := time.Now()
	day := transcript.DeriveDay(startTime)

	collector := metrics.NewCollector(string(profile), backendLabel(backend.url), storageLabel(storage), validationID)

	recorder, lodeSink, err := buildRecorder(storage, string(profile), day, validationID, collector)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
	}
	defer recorder.Close()

	var captureWriter *capture.Writer
	if path := resolveString(c, "capture", configVal(cfg, func(c *config.Config) string { return c.Capture })); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return cli.Exit(fmt.Sprintf("Error: cannot open capture file: %v", err), exitConfigError)
		}
		defer f.Close()
		captureWriter = capture.NewWriter(f)
	}

	backendClient, err := client.New(client.Config{
		BaseURL: backend.url,
		Headers: backend.headers,
		Timeout: backend.connectTimeout,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
	}

	sessCfg := session.Config{
		Client:         backendClient,
		Recorder:       recorder,
		Collector:      collector,
		Capture:        captureWriter,
		OverallTimeout: backend.overallTimeout,
		StreamTimeout:  backend.streamTimeout,
		LogOutput:      logOutput(c.Bool("verbose")),
	}

	// The panel's cancel closure reads sess, which is assigned before the
	// panel event loop starts.
	var sess *session.Session
	var panel *tui.LivePanel
	if c.Bool("tui") {
		panel = tui.NewLivePanel(func() {
			if sess != nil {
				sess.Cancel()
			}
		})
		sessCfg.OnUpdate = panel.Send
	}

	sess, err = session.New(sessCfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		sess.Cancel()
	}()

	req := session.Request{
		Playbook:     playbook,
		Profile:      profile,
		ValidationID: validationID,
	}

	ctx := context.Background()
	if panel != nil {
		// Start must not run on this goroutine: its synchronous snapshot
		// notification blocks until the panel event loop is consuming.
		startErr := make(chan error, 1)
		go func() {
			_, err := sess.Start(ctx, req)
			if err != nil {
				panel.Quit()
			}
			startErr <- err
		}()
		if err := panel.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: live panel failed: %v\n", err)
		}
		if err := <-startErr; err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
		}
	} else {
		if _, err := sess.Start(ctx, req); err != nil {
			return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
		}
	}
	<-sess.Done()

	duration := time.Since(startTime)
	snap := sess.Snapshot()

	if lodeSink != nil {
		mctx, mcancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := lodeSink.WriteMetrics(mctx, collector.Snapshot()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to persist metrics: %v\n", err)
		}
		mcancel()
	}

	exitCode := session.ExitCodeFor(snap)

	if reportPath := resolveString(c, "report", configVal(cfg, func(c *config.Config) string { return c.Report })); reportPath != "" {
		report := session.BuildValidationReport(snap, collector.Snapshot(), recorder.Stats(), exitCode)
		if err := session.WriteValidationReport(report, reportPath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to write report: %v\n", err)
		}
	}

	if adapterSel != nil {
		publishCompletionEvent(*adapterSel, buildValidationCompletedEvent(snap, storage, day, duration))
	}

	if !c.Bool("quiet") && panel == nil {
		printValidationResult(os.Stdout, snap, duration)
	}

	return cli.Exit("", exitCode)
}

// backendChoice is the resolved backend connection configuration.
type backendChoice struct {
	url            string
	headers        map[string]string
	connectTimeout time.Duration
	overallTimeout time.Duration
	streamTimeout  time.Duration
}

// storageChoice is the resolved transcript storage configuration.
// enabled is false when no storage backend was selected; the validation
// then runs with a no-op recorder.
type storageChoice struct {
	enabled   bool
	backend   string
	path      string
	dataset   string
	source    string
	region    string
	endpoint  string
	pathStyle bool
}

// adapterChoice is the resolved completion adapter configuration.
type adapterChoice struct {
	adapterType string
	url         string
	channel     string
	headers     map[string]string
	timeout     time.Duration
	retries     int
}

// configVal reads a field from an optional config. A nil config yields
// the zero value, so call sites do not nil-check.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return get(cfg)
}

// The resolve helpers apply flag precedence: an explicitly set CLI flag
// wins, then a non-zero config file value, then the flag's default.

func resolveString(c *cli.Context, name, configValue string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if configValue != "" {
		return configValue
	}
	return c.String(name)
}

func resolveInt(c *cli.Context, name string, configValue int) int {
	if c.IsSet(name) {
		return c.Int(name)
	}
	if configValue != 0 {
		return configValue
	}
	return c.Int(name)
}

func resolveBool(c *cli.Context, name string, configValue bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	if configValue {
		return true
	}
	return c.Bool(name)
}

func resolveDuration(c *cli.Context, name string, configValue time.Duration) time.Duration {
	if c.IsSet(name) {
		return c.Duration(name)
	}
	if configValue != 0 {
		return configValue
	}
	return c.Duration(name)
}

// resolvePlaybook loads the playbook content from --playbook or
// --playbook-file. Exactly one of the two must be provided.
func resolvePlaybook(c *cli.Context) (string, error) {
	inline := c.String("playbook")
	file := c.String("playbook-file")

	switch {
	case inline != "" && file != "":
		return "", fmt.Errorf("cannot use both --playbook and --playbook-file; provide ONE of them")
	case inline != "":
		return inline, nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			if os.IsNotExist(err) {
				return "", fmt.Errorf("playbook file not found: %s\nCheck the path (ls -la %s)", file, filepath.Dir(file))
			}
			return "", fmt.Errorf("cannot read playbook file %q: %w", file, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return "", fmt.Errorf("playbook file is empty: %s", file)
		}
		return string(data), nil
	default:
		return "", fmt.Errorf("a playbook is required: pass --playbook '<yaml>' or --playbook-file <path>")
	}
}

// parseHeaders converts repeated key=value flags into a header map.
func parseHeaders(raw []string, flagName string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		key, value, ok := strings.Cut(h, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid --%s %q: expected key=value (e.g. Authorization=Bearer xyz)", flagName, h)
		}
		headers[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return headers, nil
}

func parseBackendConfigWithPrecedence(c *cli.Context, cfg *config.Config) (backendChoice, error) {
	backendURL := resolveString(c, "backend-url", configVal(cfg, func(c *config.Config) string { return c.Backend.URL }))
	if backendURL == "" {
		return backendChoice{}, fmt.Errorf("--backend-url is required (or set backend.url in the config file)")
	}

	headers, err := parseHeaders(c.StringSlice("header"), "header")
	if err != nil {
		return backendChoice{}, err
	}
	// Config headers fill in anything the CLI did not set.
	for k, v := range configVal(cfg, func(c *config.Config) map[string]string { return c.Backend.Headers }) {
		if _, ok := headers[k]; !ok {
			if headers == nil {
				headers = make(map[string]string)
			}
			headers[k] = v
		}
	}

	return backendChoice{
		url:            backendURL,
		headers:        headers,
		connectTimeout: resolveDuration(c, "connect-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Backend.ConnectTimeout.Duration })),
		overallTimeout: resolveDuration(c, "overall-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Backend.OverallTimeout.Duration })),
		streamTimeout:  resolveDuration(c, "stream-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Backend.StreamTimeout.Duration })),
	}, nil
}

func parseStorageConfigWithPrecedence(c *cli.Context, cfg *config.Config) storageChoice {
	backend := resolveString(c, "storage-backend", configVal(cfg, func(c *config.Config) string { return c.Storage.Backend }))
	return storageChoice{
		enabled:   backend != "",
		backend:   backend,
		path:      resolveString(c, "storage-path", configVal(cfg, func(c *config.Config) string { return c.Storage.Path })),
		dataset:   resolveString(c, "storage-dataset", configVal(cfg, func(c *config.Config) string { return c.Storage.Dataset })),
		source:    c.String("source"),
		region:    resolveString(c, "storage-region", configVal(cfg, func(c *config.Config) string { return c.Storage.Region })),
		endpoint:  resolveString(c, "storage-endpoint", configVal(cfg, func(c *config.Config) string { return c.Storage.Endpoint })),
		pathStyle: resolveBool(c, "storage-s3-path-style", configVal(cfg, func(c *config.Config) bool { return c.Storage.S3PathStyle })),
	}
}

// validateStorageConfig checks a selected storage backend before the
// validation starts, so storage mistakes fail fast instead of after the
// backend round trip.
func validateStorageConfig(sc storageChoice) error {
	switch sc.backend {
	case "fs":
		if sc.path == "" {
			return fmt.Errorf("--storage-path is required when --storage-backend=fs")
		}
		info, err := os.Stat(sc.path)
		if err != nil {
			if os.IsNotExist(err) {
				return fmt.Errorf("storage path %s does not exist\nCreate it first: mkdir -p %s", sc.path, sc.path)
			}
			return fmt.Errorf("cannot stat storage path %q: %w", sc.path, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("storage path %s is not a directory", sc.path)
		}
		return nil
	case "s3":
		if sc.path == "" {
			return fmt.Errorf("--storage-path required for S3 storage\nFormat: bucket-name or bucket-name/prefix")
		}
		return nil
	default:
		return fmt.Errorf("invalid --storage-backend %q\nValid options: fs, s3", sc.backend)
	}
}

func parseAdapterConfigWithPrecedence(c *cli.Context, cfg *config.Config, adapterType string) (adapterChoice, error) {
	switch adapterType {
	case "redis", "webhook":
	default:
		return adapterChoice{}, fmt.Errorf("unknown adapter type %q (valid: redis, webhook)", adapterType)
	}

	choice := adapterChoice{adapterType: adapterType}

	choice.url = resolveString(c, "adapter-url", configVal(cfg, func(c *config.Config) string { return c.Adapter.URL }))
	if choice.url == "" {
		if adapterType == "redis" {
			return adapterChoice{}, fmt.Errorf("--adapter-url is required when --adapter=redis (e.g. redis://localhost:6379)")
		}
		return adapterChoice{}, fmt.Errorf("--adapter-url is required when --adapter=webhook (e.g. https://hooks.example.com/assay)")
	}

	headers, err := parseHeaders(c.StringSlice("adapter-header"), "adapter-header")
	if err != nil {
		return adapterChoice{}, err
	}
	for k, v := range configVal(cfg, func(c *config.Config) map[string]string { return c.Adapter.Headers }) {
		if _, ok := headers[k]; !ok {
			if headers == nil {
				headers = make(map[string]string)
			}
			headers[k] = v
		}
	}
	choice.headers = headers

	choice.channel = resolveString(c, "adapter-channel", configVal(cfg, func(c *config.Config) string { return c.Adapter.Channel }))
	choice.timeout = resolveDuration(c, "adapter-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Adapter.Timeout.Duration }))

	// Retries come from a pointer in the config so an explicit zero there
	// is distinguishable from unset.
	choice.retries = c.Int("adapter-retries")
	if !c.IsSet("adapter-retries") {
		if r := configVal(cfg, func(c *config.Config) *int { return c.Adapter.Retries }); r != nil {
			choice.retries = *r
		}
	}

	return choice, nil
}

// buildRecorder constructs the transcript recorder for the selected
// storage. The returned LodeSink is nil when storage is disabled; the
// caller uses it to persist the metrics record after the validation.
func buildRecorder(sc storageChoice, profile, day, validationID string, collector *metrics.Collector) (transcript.Recorder, *transcript.LodeSink, error) {
	if !sc.enabled {
		return transcript.NewNoopRecorder(), nil, nil
	}

	tcfg := transcript.Config{
		Dataset:      sc.dataset,
		Source:       sc.source,
		Profile:      profile,
		Day:          day,
		ValidationID: validationID,
	}

	var (
		sink *transcript.LodeSink
		err  error
	)
	switch sc.backend {
	case "fs":
		sink, err = transcript.NewLodeSink(tcfg, sc.path)
	case "s3":
		bucket, prefix := transcript.ParseS3Path(sc.path)
		sink, err = transcript.NewLodeS3Sink(tcfg, transcript.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       sc.region,
			Endpoint:     sc.endpoint,
			UsePathStyle: sc.pathStyle,
		})
	default:
		return nil, nil, fmt.Errorf("invalid --storage-backend %q\nValid options: fs, s3", sc.backend)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("cannot open transcript storage: %w", err)
	}

	recorder, err := transcript.NewBufferedRecorder(transcript.NewInstrumentedSink(sink, collector), transcript.DefaultBufferedConfig())
	if err != nil {
		return nil, nil, err
	}
	return recorder, sink, nil
}

// buildStoragePath renders the partition URI recorded in completion
// events. It mirrors the Lode hive layout so event consumers can locate
// the transcript without querying.
func buildStoragePath(sc storageChoice, profile, day, validationID string) string {
	partition := fmt.Sprintf("datasets/%s/partitions/source=%s/profile=%s/day=%s/validation_id=%s",
		sc.dataset, sc.source, profile, day, validationID)

	switch sc.backend {
	case "fs":
		abs, err := filepath.Abs(sc.path)
		if err != nil {
			abs = sc.path
		}
		return "file://" + filepath.Join(abs, partition)
	case "s3":
		bucket, prefix := transcript.ParseS3Path(sc.path)
		if prefix != "" {
			return fmt.Sprintf("s3://%s/%s/%s", bucket, prefix, partition)
		}
		return fmt.Sprintf("s3://%s/%s", bucket, partition)
	default:
		return partition
	}
}

func buildAdapter(choice adapterChoice) (adapter.Adapter, error) {
	switch choice.adapterType {
	case "redis":
		return redis.New(redis.Config{
			URL:     choice.url,
			Channel: choice.channel,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     choice.url,
			Headers: choice.headers,
			Timeout: choice.timeout,
			Retries: choice.retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q", choice.adapterType)
	}
}

// buildValidationCompletedEvent assembles the completion event from the
// terminal snapshot.
func buildValidationCompletedEvent(snap session.Snapshot, sc storageChoice, day string, duration time.Duration) *adapter.ValidationCompletedEvent {
	event := &adapter.ValidationCompletedEvent{
		SchemaVersion: adapter.EventSchemaVersion,
		EventType:     adapter.EventTypeValidationCompleted,
		ValidationID:  snap.ValidationID,
		Profile:       string(snap.Profile),
		State:         string(snap.State),
		StepCount:     len(snap.Steps),
		ErrorMessage:  snap.ErrorMessage,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		DurationMs:    duration.Milliseconds(),
	}
	if snap.Result != nil {
		passed := snap.Result.Passed
		event.Passed = &passed
		event.FixesApplied = snap.Result.Summary.FixesApplied
	}
	if sc.enabled {
		event.StoragePath = buildStoragePath(sc, string(snap.Profile), day, snap.ValidationID)
	}
	return event
}

// publishCompletionEvent publishes the event and warns on failure. The
// validation verdict is already decided; a downstream outage never
// changes the exit code.
func publishCompletionEvent(choice adapterChoice, event *adapter.ValidationCompletedEvent) {
	a, err := buildAdapter(choice)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: completion adapter disabled: %v\n", err)
		return
	}
	defer a.Close()

	// Outer bound across all retry attempts; per-attempt timeouts live
	// in the adapter config.
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if err := a.Publish(ctx, event); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to publish completion event: %v\n", err)
	}
}

// logOutput selects the invocation log destination. Logs are JSON on
// stderr and would interleave with the live panel, so they stay off
// unless asked for.
func logOutput(verbose bool) io.Writer {
	if verbose {
		return os.Stderr
	}
	return io.Discard
}

// backendLabel extracts the host for the metrics backend dimension. The
// full URL would work but the host reads better in stored metrics.
func backendLabel(backendURL string) string {
	if u, err := url.Parse(backendURL); err == nil && u.Host != "" {
		return u.Host
	}
	return backendURL
}

// storageLabel names the transcript store for the metrics dimension.
func storageLabel(sc storageChoice) string {
	if !sc.enabled {
		return "none"
	}
	return sc.backend
}

// printValidationResult writes the human-readable summary for the
// non-TUI path.
func printValidationResult(w io.Writer, snap session.Snapshot, duration time.Duration) {
	fmt.Fprintf(w, "Validation ID: %s\n", snap.ValidationID)
	fmt.Fprintf(w, "Profile:       %s\n", snap.Profile)
	fmt.Fprintf(w, "State:         %s\n", snap.State)
	fmt.Fprintf(w, "Steps:         %d\n", len(snap.Steps))
	fmt.Fprintf(w, "Duration:      %s\n", duration.Round(time.Millisecond))

	if snap.Result != nil {
		if snap.Result.Passed {
			fmt.Fprintf(w, "Verdict:       passed\n")
		} else {
			fmt.Fprintf(w, "Verdict:       failed (%d issues)\n", len(snap.Result.Issues))
		}
		s := snap.Result.Summary
		fmt.Fprintf(w, "Summary:       %d lint passes, %d fixes applied, final status %s\n",
			s.LintIterations, s.FixesApplied, s.FinalStatus)
		if resultTruncated(snap.Result) {
			fmt.Fprintf(w, "Note:          stream ended early; verdict synthesized from collected steps\n")
		}
	}
	if snap.ErrorMessage != "" {
		fmt.Fprintf(w, "Error:         %s\n", snap.ErrorMessage)
	}
}

// resultTruncated reports whether the result was synthesized from a
// truncated stream.
func resultTruncated(result *types.ValidationResult) bool {
	if result == nil || result.DebugInfo == nil {
		return false
	}
	v, ok := result.DebugInfo["truncated_stream"].(bool)
	return ok && v
}
