package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/volley/internal/config"
	"github.com/wesleyorama2/volley/internal/load"
	"github.com/wesleyorama2/volley/internal/observe"
	"github.com/wesleyorama2/volley/internal/report"
	"github.com/wesleyorama2/volley/internal/workload"
)

// runFlags holds every flag of the run command.
type runFlags struct {
	configFile string

	url       string
	method    string
	body      string
	headers   []string
	vus       int
	duration  string
	stages    string
	rate      float64
	burst     int
	pause     string
	pauseMax  string
	timeout   string
	grace     string
	retention int
	snapshot  string

	successStatus []int
	checkStatus   []int
	checkBody     string

	jsonOutput  string
	htmlOutput  string
	metricsAddr string
	quiet       bool
	noColor     bool
	interval    time.Duration
	cpuProfile  string
}

func newRunCmd(a *app) *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test",
		Long: `Run a load test from a config file or from command line flags.

Examples:
  # From a config file
  volley run --config examples/deal-api.yaml

  # Quick test against a single URL
  volley run --url http://localhost:8080/health --vus 10 --duration 30s

  # Staged ramp: up to 20 VUs linearly, hold, then down
  volley run --url http://localhost:8080/health --stages "30s:20:linear,1m:20,10s:0"

Exit status is 0 on success, 99 when a threshold fails and 1 on error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.testConfig()
			if err != nil {
				return err
			}
			return runLoad(cmd, a.logger, cfg, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configFile, "config", "c", "", "Path to a YAML or JSON test file")

	flags.StringVar(&f.url, "url", "", "Target URL (quick mode)")
	flags.StringVarP(&f.method, "method", "X", "GET", "HTTP method")
	flags.StringVarP(&f.body, "body", "d", "", "Request body (supports {{placeholders}})")
	flags.StringArrayVarP(&f.headers, "header", "H", nil, "Request header as 'Name: value' (repeatable)")
	flags.IntVar(&f.vus, "vus", 1, "Number of virtual users")
	flags.StringVar(&f.duration, "duration", "30s", "Test duration")
	flags.StringVar(&f.stages, "stages", "", "Stages as 'duration:target[:ramp],...' (e.g., '30s:10:linear,1m:10,10s:0')")
	flags.Float64Var(&f.rate, "rate", 0, "Cap on iteration starts per second (0 = unlimited)")
	flags.IntVar(&f.burst, "burst", 0, "Burst size for the rate cap")
	flags.StringVar(&f.pause, "pause", "", "Pause after each iteration")
	flags.StringVar(&f.pauseMax, "pause-max", "", "Upper bound for a random pause between --pause and this value")
	flags.StringVar(&f.timeout, "timeout", "", "Iteration timeout")
	flags.StringVar(&f.grace, "grace", "", "Grace period for in-flight iterations at the end of the run")
	flags.IntVar(&f.retention, "retention", 0, "Raw outcomes to retain (0 = all, -1 = streaming only)")
	flags.StringVar(&f.snapshot, "snapshot-interval", "", "Emit periodic snapshots to the log and metrics")
	flags.IntSliceVar(&f.successStatus, "success-status", nil, "Status codes that count as success (default: < 400)")
	flags.IntSliceVar(&f.checkStatus, "check-status", nil, "Add a check that the status is one of these codes")
	flags.StringVar(&f.checkBody, "check-body", "", "Add a check that the body contains this text")

	flags.StringVar(&f.jsonOutput, "json", "", "Write a JSON report to this file")
	flags.StringVar(&f.htmlOutput, "html", "", "Write an HTML report to this file")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g., ':9090')")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "Only print the final result")
	flags.BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	flags.DurationVar(&f.interval, "progress-interval", time.Second, "How often live progress is printed")

	flags.StringVar(&f.cpuProfile, "cpuprofile", "", "Write a CPU profile of the run to this file")

	cmd.MarkFlagsMutuallyExclusive("config", "url")
	return cmd
}

// testConfig loads the config file or builds one from the quick-mode flags.
func (f *runFlags) testConfig() (*config.TestConfig, error) {
	if f.configFile != "" {
		return config.LoadConfig(f.configFile)
	}
	if f.url == "" {
		return nil, errors.New("either --config or --url is required")
	}
	return f.buildConfig()
}

// buildConfig builds a TestConfig from the quick-mode flags.
func (f *runFlags) buildConfig() (*config.TestConfig, error) {
	headers, err := parseHeaders(f.headers)
	if err != nil {
		return nil, err
	}

	cfg := &config.TestConfig{
		Name: "Quick Test",
		Load: config.LoadProfile{
			Rate:             f.rate,
			Burst:            f.burst,
			IterationTimeout: f.timeout,
			GracePeriod:      f.grace,
			Retention:        f.retention,
			SnapshotInterval: f.snapshot,
		},
		Request: config.RequestConfig{
			Method:        strings.ToUpper(f.method),
			URL:           f.url,
			Headers:       headers,
			Body:          f.body,
			SuccessStatus: f.successStatus,
		},
	}

	if f.stages != "" {
		stages, err := parseStages(f.stages)
		if err != nil {
			return nil, err
		}
		cfg.Load.Stages = stages
	} else {
		cfg.Load.VUs = f.vus
		cfg.Load.Duration = f.duration
	}

	switch {
	case f.pause != "" && f.pauseMax != "":
		cfg.Load.Pacing = &config.PacingConfig{Type: string(load.PacingRandom), Min: f.pause, Max: f.pauseMax}
	case f.pause != "":
		cfg.Load.Pacing = &config.PacingConfig{Type: string(load.PacingConstant), Duration: f.pause}
	case f.pauseMax != "":
		return nil, errors.New("--pause-max requires --pause")
	}

	if len(f.checkStatus) > 0 {
		cfg.Request.Checks = append(cfg.Request.Checks, workload.Check{
			Name:   "status is " + joinInts(f.checkStatus, " or "),
			Type:   workload.CheckStatus,
			Status: f.checkStatus,
		})
	}
	if f.checkBody != "" {
		cfg.Request.Checks = append(cfg.Request.Checks, workload.Check{
			Name:     fmt.Sprintf("body contains %q", f.checkBody),
			Type:     workload.CheckBodyContains,
			Contains: f.checkBody,
		})
	}

	return cfg, nil
}

// parseStages parses "30s:10,1m:10:linear,30s:0" into stage configs.
// The optional third field is the ramp mode.
func parseStages(s string) ([]config.StageConfig, error) {
	parts := strings.Split(s, ",")
	stages := make([]config.StageConfig, 0, len(parts))

	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		fields := strings.Split(part, ":")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("invalid stage format %q (expected duration:target[:ramp])", part)
		}

		duration := strings.TrimSpace(fields[0])
		if _, err := config.ParseDurationString(duration); err != nil || duration == "" {
			return nil, fmt.Errorf("invalid duration in stage %q", part)
		}

		target, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid target in stage %q: %w", part, err)
		}

		stage := config.StageConfig{
			Duration: duration,
			Target:   target,
			Name:     fmt.Sprintf("stage-%d", i+1),
		}
		if len(fields) == 3 {
			stage.Ramp = strings.ToLower(strings.TrimSpace(fields[2]))
		}
		stages = append(stages, stage)
	}

	if len(stages) == 0 {
		return nil, errors.New("no stages given")
	}
	return stages, nil
}

// parseHeaders parses "Name: value" pairs.
func parseHeaders(hs []string) (map[string]string, error) {
	if len(hs) == 0 {
		return nil, nil
	}
	headers := make(map[string]string, len(hs))
	for _, h := range hs {
		name, value, ok := strings.Cut(h, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid header %q (expected 'Name: value')", h)
		}
		headers[name] = strings.TrimSpace(value)
	}
	return headers, nil
}

func joinInts(ns []int, sep string) string {
	s := make([]string, len(ns))
	for i, n := range ns {
		s[i] = strconv.Itoa(n)
	}
	return strings.Join(s, sep)
}

// runLoad validates cfg, runs the test and prints the results.
func runLoad(cmd *cobra.Command, logger *zap.Logger, cfg *config.TestConfig, f *runFlags) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	plan, err := cfg.ToPlan()
	if err != nil {
		return err
	}
	opts, err := cfg.ToOptions()
	if err != nil {
		return err
	}

	w, err := workload.NewHTTP(cfg.ToHTTPConfig())
	if err != nil {
		return fmt.Errorf("failed to build workload: %w", err)
	}
	defer w.Close()

	opts.Logger = logger
	opts.Observers = append(opts.Observers,
		observe.NewLogObserver(logger, load.EventStageStarted, load.EventSnapshot))

	var timeline *report.Timeline
	if f.htmlOutput != "" {
		timeline = report.NewTimeline()
		opts.Observers = append(opts.Observers, timeline)
		if opts.SnapshotInterval == 0 {
			opts.SnapshotInterval = time.Second
		}
	}

	var (
		listener net.Listener
		server   *http.Server
	)
	if f.metricsAddr != "" {
		prom := observe.NewPrometheus()
		opts.Observers = append(opts.Observers, prom)

		mux := http.NewServeMux()
		mux.Handle("/metrics", prom.Handler())
		listener, err = net.Listen("tcp", f.metricsAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on metrics address: %w", err)
		}
		defer listener.Close()
		server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		logger.Info("Serving metrics", zap.String("addr", listener.Addr().String()))
	}

	orch, err := load.New(plan, w, opts)
	if err != nil {
		return err
	}

	if f.cpuProfile != "" {
		stop, err := startCPUProfile(f.cpuProfile)
		if err != nil {
			return err
		}
		defer stop()
	}

	console := report.NewConsole(report.ConsoleConfig{
		TestName: cfg.Name,
		Writer:   cmd.OutOrStdout(),
		Quiet:    f.quiet,
		NoColor:  f.noColor,
	})
	console.PrintHeader(plan)

	g, gctx := errgroup.WithContext(cmd.Context())
	done := make(chan struct{})
	var result *load.Result

	if server != nil {
		g.Go(func() error {
			if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(done)
		var runErr error
		result, runErr = orch.Run(gctx)
		if server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}
		return runErr
	})

	g.Go(func() error {
		if f.quiet || f.interval <= 0 {
			return nil
		}
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return nil
			case <-ticker.C:
				console.Update(report.StatsFromLive(orch.Live(), orch.Progress(), plan.TotalDuration(), len(plan.Stages)))
			}
		}
	})

	runErr := g.Wait()
	if result == nil {
		return runErr
	}

	summary := &report.Summary{
		Name:       cfg.Name,
		Result:     result,
		Thresholds: report.Evaluate(cfg.Thresholds, result.Snapshot),
	}
	console.PrintSummary(summary)

	if f.jsonOutput != "" {
		if err := report.WriteJSONFile(f.jsonOutput, summary); err != nil {
			return fmt.Errorf("failed to write JSON report: %w", err)
		}
	}

	if timeline != nil {
		if err := report.GenerateHTML(summary, timeline.Points(), f.htmlOutput); err != nil {
			return err
		}
	}

	if runErr != nil {
		return runErr
	}
	if !summary.Passed() {
		return ErrThresholdsFailed
	}
	return nil
}

func startCPUProfile(path string) (func(), error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("could not start CPU profile: %w", err)
	}
	return func() {
		pprof.StopCPUProfile()
		file.Close()
	}, nil
}
