package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/justapithecus/canv/cli/config"
	"github.com/justapithecus/canv/container"
	"github.com/justapithecus/canv/iox"
	"github.com/justapithecus/canv/lode"
	"github.com/justapithecus/canv/log"
	"github.com/justapithecus/canv/metrics"
	"github.com/justapithecus/canv/registrator"
	"github.com/justapithecus/canv/server"
	"github.com/justapithecus/canv/types"
)

// ReferenceExt is the required suffix of reference datasets.
const ReferenceExt = ".r3db"

// maxInFlight is the largest --in-flight the command accepts.
const maxInFlight = 14

// RegisterCommand returns the register command.
// This is the only command that talks to the registration service.
func RegisterCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to a YAML or TOML config file providing flag defaults",
		},
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "tcp://host:port of a running service, or the path to a service binary to start",
		},
		&cli.StringSliceFlag{
			Name:    "reference",
			Aliases: []string{"r"},
			Usage:   "Reference dataset (" + ReferenceExt + ", repeatable)",
		},
		&cli.StringFlag{
			Name:    "out-dir",
			Aliases: []string{"o"},
			Usage:   "Directory for the registered Canv",
		},
		&cli.StringFlag{
			Name:    "out-name",
			Aliases: []string{"n"},
			Usage:   "Name of the registered Canv (default: the input name)",
		},
		&cli.IntFlag{
			Name:    "in-flight",
			Aliases: []string{"w"},
			Usage:   "Maximum frames in flight (1-14)",
			Value:   registrator.DefaultWindow,
		},
		&cli.StringFlag{
			Name:  "server-log",
			Usage: "Managed service log severity: debug, info, warning, error",
			Value: "warning",
		},
		&cli.DurationFlag{
			Name:  "receive-timeout",
			Usage: "Per-call send/receive timeout",
		},
		&cli.IntFlag{
			Name:  "startup-attempts",
			Usage: "Managed service address poll budget",
		},
		&cli.DurationFlag{
			Name:  "startup-interval",
			Usage: "Spacing between managed service address polls",
		},
		&cli.IntFlag{
			Name:  "idle-timeouts",
			Usage: "Consecutive result timeouts tolerated with frames in flight",
		},
		&cli.StringFlag{
			Name:  "metrics-addr",
			Usage: "Serve Prometheus metrics on this address during the run (e.g. :9464)",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress result output",
		},
	}
	flags = append(flags, StorageFlags()...)
	flags = append(flags, AdapterFlags()...)

	return &cli.Command{
		Name:      "register",
		Usage:     "Register a Canv against reference datasets, writing a new Canv",
		ArgsUsage: "<input.canv>",
		Flags:     flags,
		Action:    registerAction,
	}
}

// registerOptions is the fully resolved and checked register invocation.
type registerOptions struct {
	input           string
	output          string
	server          string
	references      []string
	inFlight        int
	serverLog       string
	receiveTimeout  time.Duration
	startupAttempts int
	startupInterval time.Duration
	idleTimeouts    int
	metricsAddr     string
	storage         storageChoice
	adapter         adapterChoice
}

func registerAction(c *cli.Context) error {
	var cfg *config.Config
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to load config: %v", err), exitConfigError)
		}
		cfg = loaded
	}

	opts, err := resolveRegisterOptions(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfigError)
	}

	meta := types.NewRunMeta(opts.input, opts.output)
	logger := newLogger(c, meta)
	defer func() { _ = logger.Sync() }()

	ctx, cancel := signalContext()
	defer cancel()

	summary, runErr := register(ctx, opts, meta, logger)
	if !c.Bool("quiet") && summary != nil {
		printRegisterResult(summary)
	}
	if runErr == nil {
		return nil
	}

	var startErr *serviceError
	if errors.As(runErr, &startErr) {
		return cli.Exit(runErr.Error(), exitServiceError)
	}
	return cli.Exit(fmt.Sprintf("registration failed: %v", runErr), exitRunFailed)
}

// serviceError marks a failure to reach or start the registration service.
type serviceError struct{ err error }

func (e *serviceError) Error() string { return e.err.Error() }
func (e *serviceError) Unwrap() error { return e.err }

// register performs one run and its reporting. The returned summary is
// non-nil once the output was created.
func register(ctx context.Context, opts registerOptions, meta *types.RunMeta, logger *log.Logger) (*lode.RunSummary, error) {
	start := time.Now()

	collector := metrics.NewCollector(serverMode(opts.server), opts.storage.backendName(), meta.RunID, opts.inFlight)
	if opts.metricsAddr != "" {
		stop, err := serveMetrics(opts.metricsAddr, collector, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to serve metrics: %w", err)
		}
		defer stop()
	}

	notifier, err := opts.adapter.build()
	if err != nil {
		return nil, fmt.Errorf("failed to create adapter: %w", err)
	}
	if notifier != nil {
		defer iox.DiscardClose(notifier)
	}

	var report *lode.Report
	if opts.storage.enabled() {
		client, err := opts.storage.buildClient(ctx, filepath.Base(opts.input), meta.RunID, start)
		if err != nil {
			return nil, fmt.Errorf("failed to create run report client: %w", err)
		}
		defer iox.DiscardClose(client)
		report = lode.NewReport(context.WithoutCancel(ctx), lode.NewInstrumentedClient(client, collector), lode.ReportOptions{Logger: logger})
	}

	src, err := container.OpenPlayback(opts.input, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}
	defer iox.DiscardClose(src)

	out, err := createOutput(src, opts.output, logger)
	if err != nil {
		return nil, err
	}

	result, runErr := runRegistration(ctx, opts, src, out, collector, report, logger)

	if err := out.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close output: %w", err)
	}
	if runErr != nil {
		// A partial output has frames without registered metadata.
		if rmErr := os.Remove(opts.output); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Warn("failed to remove partial output", map[string]any{"error": rmErr.Error()})
		}
	}

	duration := time.Since(start)
	summary := &lode.RunSummary{
		Input:       opts.input,
		Output:      opts.output,
		Status:      lode.RunStatusCompleted,
		Err:         runErr,
		Duration:    duration,
		CompletedAt: time.Now(),
		Metrics:     collector.Snapshot(),
	}
	if runErr != nil {
		summary.Status = lode.RunStatusFailed
	}

	// Reporting must not change the run outcome.
	if report != nil {
		if err := report.Finish(context.WithoutCancel(ctx), *summary); err != nil {
			logger.Warn("run report incomplete", map[string]any{"error": err.Error()})
		}
	}
	if notifier != nil {
		if err := publish(notifier, completionEvent(meta, result, runErr, duration)); err != nil {
			logger.Warn("completion notification failed", map[string]any{"error": err.Error()})
		}
	}

	return summary, runErr
}

// runRegistration connects to the service and drives the registrator.
func runRegistration(ctx context.Context, opts registerOptions, src *container.Playback, out *container.Canv, collector *metrics.Collector, report *lode.Report, logger *log.Logger) (*registrator.RunResult, error) {
	svc, err := connect(ctx, opts, logger)
	if err != nil {
		return nil, &serviceError{err: err}
	}
	defer iox.DiscardErr(svc.Shutdown)

	regOpts := registrator.Options{
		Window:          opts.inFlight,
		MaxIdleTimeouts: opts.idleTimeouts,
		Logger:          logger,
		Collector:       collector,
	}
	if report != nil {
		regOpts.OnOutcome = report.Record
	}

	reg, err := registrator.New(svc, regOpts)
	if err != nil {
		return nil, &serviceError{err: err}
	}

	if isStderrTTY() {
		fmt.Fprintf(os.Stderr, "registering %d frames against %s (window %d)\n", src.FrameCount(), svc.URL(), reg.Window())
	}
	return reg.Run(ctx, src, out, opts.references)
}

// connect dials a tcp:// service or starts a managed one from a binary path.
func connect(ctx context.Context, opts registerOptions, logger *log.Logger) (*server.Client, error) {
	if addr, ok := tcpAddress(opts.server); ok {
		return server.Dial(ctx, addr, server.Options{
			Timeout: opts.receiveTimeout,
			Logger:  logger,
		})
	}
	return server.StartManaged(ctx, server.ManagedOptions{
		Binary:          opts.server,
		LogLevel:        opts.serverLog,
		Timeout:         opts.receiveTimeout,
		StartupAttempts: opts.startupAttempts,
		StartupInterval: opts.startupInterval,
		Logger:          logger,
	})
}

// tcpAddress extracts host:port from a tcp://host:port URL. Anything else is
// treated as a service binary path.
func tcpAddress(s string) (string, bool) {
	u, err := url.Parse(s)
	if err != nil || u.Scheme != "tcp" || u.Hostname() == "" || u.Port() == "" {
		return "", false
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return "", false
	}
	return server.HostPort(u.Hostname(), port), true
}

func serverMode(s string) string {
	if _, ok := tcpAddress(s); ok {
		return "remote"
	}
	return "managed"
}

// createOutput creates the registered Canv. Frame count and image size come
// from the source; the companion path points back at the source Ims
// relative to the output directory.
func createOutput(src *container.Playback, output string, logger *log.Logger) (*container.Canv, error) {
	companion, err := filepath.Rel(filepath.Dir(output), src.Canv().ImsPath())
	if err != nil {
		return nil, fmt.Errorf("failed to relate %s to the output directory: %w", src.Canv().ImsPath(), err)
	}

	history := src.Canv().History()
	history.Append(commandLine(), types.Version)

	out, err := container.CreateCanv(output, src.FrameCount(), src.Canv().ImageSize(), companion, history, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}
	return out, nil
}

// serveMetrics exposes the run collector over HTTP until the returned stop
// function is called.
func serveMetrics(addr string, collector *metrics.Collector, logger *log.Logger) (func(), error) {
	reg := prometheus.NewRegistry()
	prom, err := metrics.NewPrometheus(reg)
	if err != nil {
		return nil, err
	}
	collector.Attach(prom)

	srv, err := metrics.Serve(addr, reg)
	if err != nil {
		return nil, err
	}
	logger.Info("serving metrics", map[string]any{"addr": srv.Addr(), "path": metrics.DefaultPath})

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("metrics server shutdown failed", map[string]any{"error": err.Error()})
		}
	}, nil
}

// resolveRegisterOptions merges flags over the config file and checks every
// input before anything is opened or started.
func resolveRegisterOptions(c *cli.Context, cfg *config.Config) (registerOptions, error) {
	if c.NArg() != 1 {
		return registerOptions{}, errors.New("exactly one input .canv file is required")
	}
	input, err := filepath.Abs(c.Args().First())
	if err != nil {
		return registerOptions{}, err
	}
	if info, err := os.Stat(input); err != nil || !info.Mode().IsRegular() {
		return registerOptions{}, fmt.Errorf("'%s' is a non-existing input file", input)
	}

	opts := registerOptions{
		input:           input,
		server:          resolveString(c, "server", configVal(cfg, func(c *config.Config) string { return c.Server })),
		references:      resolveStrings(c, "reference", configVal(cfg, func(c *config.Config) []string { return c.References })),
		inFlight:        resolveInt(c, "in-flight", configVal(cfg, func(c *config.Config) int { return c.InFlight })),
		serverLog:       resolveString(c, "server-log", configVal(cfg, func(c *config.Config) string { return c.ServerLog })),
		receiveTimeout:  resolveDuration(c, "receive-timeout", configVal(cfg, func(c *config.Config) time.Duration { return c.Timeouts.Receive.Duration })),
		startupAttempts: resolveInt(c, "startup-attempts", configVal(cfg, func(c *config.Config) int { return c.Timeouts.StartupAttempts })),
		startupInterval: resolveDuration(c, "startup-interval", configVal(cfg, func(c *config.Config) time.Duration { return c.Timeouts.StartupInterval.Duration })),
		idleTimeouts:    resolveInt(c, "idle-timeouts", configVal(cfg, func(c *config.Config) int { return c.Timeouts.IdleTimeouts })),
		metricsAddr:     resolveString(c, "metrics-addr", configVal(cfg, func(c *config.Config) string { return c.Metrics.Listen })),
		storage:         resolveStorage(c, cfg),
	}

	if opts.server == "" {
		return registerOptions{}, errors.New("--server is required (flag or config file)")
	}

	if len(opts.references) == 0 {
		return registerOptions{}, errors.New("at least one --reference is required (flag or config file)")
	}
	if opts.references, err = checkReferences(opts.references); err != nil {
		return registerOptions{}, err
	}

	outDir := resolveString(c, "out-dir", configVal(cfg, func(c *config.Config) string { return c.OutDir }))
	if outDir == "" {
		return registerOptions{}, errors.New("--out-dir is required (flag or config file)")
	}
	if info, err := os.Stat(outDir); err != nil || !info.IsDir() {
		return registerOptions{}, fmt.Errorf("'%s' is not a valid output directory", outDir)
	}
	name := c.String("out-name")
	if name == "" {
		name = filepath.Base(input)
	}
	if opts.output, err = filepath.Abs(filepath.Join(outDir, name)); err != nil {
		return registerOptions{}, err
	}
	if filepath.Ext(opts.output) != container.CanvExt {
		return registerOptions{}, fmt.Errorf("output file '%s' must have the suffix '%s'", opts.output, container.CanvExt)
	}
	if opts.output == input {
		return registerOptions{}, errors.New("output file cannot be the same as the input file")
	}

	if opts.inFlight < 1 || opts.inFlight > maxInFlight {
		return registerOptions{}, fmt.Errorf("--in-flight must be in [1, %d], got %d", maxInFlight, opts.inFlight)
	}
	if !slices.Contains(config.ServerLogLevels, opts.serverLog) {
		return registerOptions{}, fmt.Errorf("--server-log must be one of %v, got %q", config.ServerLogLevels, opts.serverLog)
	}
	if err := opts.storage.validate(); err != nil {
		return registerOptions{}, err
	}
	if opts.adapter, err = resolveAdapter(c, cfg); err != nil {
		return registerOptions{}, err
	}
	return opts, nil
}

// checkReferences requires every reference to be an existing .r3db file and
// returns their absolute paths.
func checkReferences(refs []string) ([]string, error) {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		info, err := os.Stat(ref)
		if filepath.Ext(ref) != ReferenceExt || err != nil || !info.Mode().IsRegular() {
			return nil, fmt.Errorf("reference '%s' does not exist or does not have the suffix '%s'", ref, ReferenceExt)
		}
		abs, err := filepath.Abs(ref)
		if err != nil {
			return nil, err
		}
		out = append(out, abs)
	}
	return out, nil
}

func printRegisterResult(s *lode.RunSummary) {
	fmt.Printf("\nrun_id=%s, status=%s, frames=%d, registered=%d, failed=%d, unsubmitted=%d, duration=%s\n",
		s.Metrics.RunID,
		s.Status,
		s.Metrics.FramesWritten,
		s.Metrics.FramesRegistered,
		s.Metrics.FramesFailed,
		s.Metrics.EncodingFailures,
		s.Duration.Round(time.Millisecond),
	)
	if s.Err == nil {
		fmt.Printf("output: %s\n", s.Output)
	}
}
