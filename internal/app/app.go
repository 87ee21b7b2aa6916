package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"twrevenue/internal/config"
	"twrevenue/internal/infrastructure"
	"twrevenue/pkg/contracts"
)

// Application wires configuration, telemetry and the Runner for one process
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Runner        *Runner
}

// AppOption customizes NewApplication
type AppOption func(*appOptions)

type appOptions struct {
	traceWriter   io.Writer
	runnerOptions []Option
}

// WithTraceWriter sends stdout spans to w instead of os.Stdout
func WithTraceWriter(w io.Writer) AppOption {
	return func(o *appOptions) { o.traceWriter = w }
}

// WithRunnerOptions passes options through to NewRunner
func WithRunnerOptions(opts ...Option) AppOption {
	return func(o *appOptions) { o.runnerOptions = append(o.runnerOptions, opts...) }
}

// NewApplication creates a new application instance from cfg. The logger is
// expected to be initialized by the caller.
func NewApplication(cfg *config.Config, logger *slog.Logger, opts ...AppOption) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration is required")
	}
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	otelCfg := infrastructure.DefaultOTelConfig()
	otelCfg.TraceExporter = cfg.Telemetry.TraceExporter
	otelCfg.TraceWriter = o.traceWriter
	if cfg.Output.MetricsFile != "" {
		otelCfg.MetricExporter = "prometheus"
	}

	providers, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	runnerOpts := append([]Option{WithTelemetry(providers)}, o.runnerOptions...)
	runner, err := NewRunner(cfg, logger, runnerOpts...)
	if err != nil {
		_ = providers.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to create runner: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", contracts.Version))

	return &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: providers,
		Runner:        runner,
	}, nil
}

// Run performs one export into csvFile (empty selects the date default) and
// flushes telemetry. Per-source failures are reported, not returned.
func (a *Application) Run(ctx context.Context, csvFile string) *Report {
	ctx = infrastructure.EnsureTraceID(ctx)

	report := a.Runner.Run(ctx, csvFile)

	// spans of an interrupted run are still flushed
	if err := a.OTelProviders.Shutdown(context.WithoutCancel(ctx)); err != nil {
		a.Logger.WarnContext(ctx, "Failed to flush telemetry", slog.String("error", err.Error()))
	}
	return report
}
