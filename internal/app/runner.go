package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"twrevenue/internal/config"
	"twrevenue/internal/exporter"
	"twrevenue/internal/fetcher"
	"twrevenue/internal/infrastructure"
	"twrevenue/internal/sources"
	"twrevenue/pkg/contracts/domain"
)

// BatchFetcher retrieves the records published at a source URL. Implementations
// return an empty batch alongside any error.
type BatchFetcher interface {
	Fetch(ctx context.Context, url string) (domain.RecordBatch, error)
}

// SourceResult is the outcome of one source in a run
type SourceResult struct {
	Source     sources.Source
	Count      int
	Mode       exporter.WriteMode
	FetchErr   error
	CSVErr     error
	SummaryErr error
}

// Report describes a finished run
type Report struct {
	RunID    string
	Paths    config.Paths
	Results  []SourceResult
	Duration time.Duration
	// Err is the cancellation cause when the run stopped before every source
	// was exported. Results then covers only the completed sources; the rest
	// keep their previous files.
	Err error
}

// Total returns the number of records fetched across all sources
func (r *Report) Total() int {
	total := 0
	for _, res := range r.Results {
		total += res.Count
	}
	return total
}

// Runner processes the source table in order: fetch, append to the CSV, then
// write the source's summary.
type Runner struct {
	cfg       *config.Config
	sources   []sources.Source
	fetcher   BatchFetcher
	csv       *exporter.CSVWriter
	summaries *exporter.SummaryWriter
	logger    *slog.Logger
	base      *slog.Logger
	tracer    trace.Tracer
	metrics   *infrastructure.RunMetrics
	gatherer  prometheus.Gatherer
	now       func() time.Time
}

// Option customizes a Runner
type Option func(*Runner)

// WithSources replaces the built-in source table
func WithSources(table []sources.Source) Option {
	return func(r *Runner) { r.sources = table }
}

// WithFetcher replaces the HTTP fetcher
func WithFetcher(f BatchFetcher) Option {
	return func(r *Runner) { r.fetcher = f }
}

// WithClock sets the time source used for the default CSV name and durations
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithTelemetry records spans and metrics through providers
func WithTelemetry(providers *infrastructure.OTelProviders) Option {
	return func(r *Runner) {
		if providers == nil {
			return
		}
		r.tracer = providers.Tracer
		if providers.Meter != nil {
			if m, err := infrastructure.CreateRunMetrics(providers.Meter); err == nil {
				r.metrics = m
			} else {
				r.logger.Warn("Failed to create run metrics", slog.String("error", err.Error()))
			}
		}
		if providers.Registry != nil {
			r.gatherer = providers.Registry
		}
	}
}

// NewRunner creates a Runner for cfg. The source table is validated before use.
func NewRunner(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}

	r := &Runner{
		cfg:     cfg,
		sources: sources.Default(),
		logger:  logger,
		tracer:  tracenoop.NewTracerProvider().Tracer(config.AppName),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	if err := sources.Validate(r.sources); err != nil {
		return nil, err
	}
	if r.metrics == nil {
		m, err := infrastructure.CreateRunMetrics(metricnoop.NewMeterProvider().Meter(config.AppName))
		if err != nil {
			return nil, err
		}
		r.metrics = m
	}
	if r.fetcher == nil {
		r.fetcher = fetcher.New(cfg.HTTP, fetcher.WithLogger(logger), fetcher.WithTracer(r.tracer))
	}
	r.csv = exporter.NewCSVWriter(exporter.CSVOptions{
		BlockHeaders: cfg.Output.BlockHeaders,
		CRLF:         cfg.Output.CRLF,
	}, logger)
	r.summaries = exporter.NewSummaryWriter(logger)
	r.base = logger
	r.logger = infrastructure.WithComponent(logger, "runner")

	return r, nil
}

// Run exports every source into csvFile, or the date-derived default when
// csvFile is empty. The first source creates the file and later sources
// append to it. A failing source contributes no rows and a count of zero;
// it never stops the remaining sources.
//
// Cancelling ctx is the exception: the run stops before the next write, the
// interrupted and remaining sources keep their previous CSV block and summary,
// no workbook or metrics file is written and Report.Err is set.
func (r *Runner) Run(ctx context.Context, csvFile string) *Report {
	start := r.now()
	ctx = infrastructure.EnsureTraceID(ctx)
	ctx, span := r.tracer.Start(ctx, "runner.Run")
	defer span.End()

	paths := r.cfg.ResolvePaths(csvFile, start)
	report := &Report{
		RunID: infrastructure.GetTraceID(ctx),
		Paths: paths,
	}

	if csvFile == "" {
		r.logger.InfoContext(ctx, "No file name provided, using default", slog.String("file_path", paths.CSVFile))
	}
	if r.cfg.Output.BlockHeaders {
		r.logger.WarnContext(ctx, "Per-block CSV headers enabled, appended blocks will carry their own header row")
	}

	var workbook *exporter.Workbook
	if paths.WorkbookFile != "" {
		workbook = exporter.NewWorkbook(r.base)
	}

	for i, src := range r.sources {
		if ctx.Err() != nil {
			r.interrupt(ctx, report, src)
			break
		}

		mode := exporter.ModeAppend
		if i == 0 {
			mode = exporter.ModeCreate
		}
		res := r.processSource(ctx, src, paths, mode)
		if res.interrupted {
			r.interrupt(ctx, report, src)
			break
		}
		report.Results = append(report.Results, res.SourceResult)

		if workbook != nil {
			if err := workbook.AddSheet(string(src.Name), res.batch); err != nil {
				r.exportFailed(ctx, src, "workbook", err)
			}
		}
	}

	if report.Err != nil {
		report.Duration = r.now().Sub(start)
		return report
	}

	if workbook != nil {
		if err := workbook.Save(ctx, paths.WorkbookFile); err != nil {
			r.metrics.ExportFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("target", "workbook")))
		}
	}

	report.Duration = r.now().Sub(start)
	r.metrics.RunDuration.Record(ctx, report.Duration.Seconds())
	r.writeMetrics(ctx, paths.MetricsFile)

	r.logger.InfoContext(ctx, "Run completed",
		slog.String("file_path", paths.CSVFile),
		slog.Int("sources", len(report.Results)),
		slog.Int("records", report.Total()),
		slog.Duration("duration", report.Duration))
	return report
}

// interrupt records the cancellation cause on report
func (r *Runner) interrupt(ctx context.Context, report *Report, src sources.Source) {
	report.Err = context.Cause(ctx)
	infrastructure.RecordError(ctx, report.Err)
	r.logger.WarnContext(ctx, "Run interrupted, remaining sources left untouched",
		slog.String("source", string(src.Name)),
		slog.Int("sources_done", len(report.Results)),
		slog.String("cause", report.Err.Error()))
}

type sourceOutcome struct {
	SourceResult
	batch domain.RecordBatch
	// interrupted is set when the fetch failed because ctx was cancelled;
	// nothing was written for the source.
	interrupted bool
}

func (r *Runner) processSource(ctx context.Context, src sources.Source, paths config.Paths, mode exporter.WriteMode) sourceOutcome {
	ctx, span := r.tracer.Start(ctx, "runner.processSource",
		trace.WithAttributes(attribute.String("source", string(src.Name))))
	defer span.End()

	r.logger.InfoContext(ctx, "Processing API", slog.String("source", string(src.Name)))

	out := sourceOutcome{SourceResult: SourceResult{Source: src, Mode: mode}}
	sourceAttr := metric.WithAttributes(attribute.String("source", string(src.Name)))

	batch, err := r.fetcher.Fetch(ctx, src.URL)
	if err != nil && ctx.Err() != nil {
		out.FetchErr = err
		out.interrupted = true
		return out
	}
	if err != nil {
		out.FetchErr = err
		r.metrics.FetchFailures.Add(ctx, 1, sourceAttr)
	}
	out.batch = batch
	out.Count = len(batch)
	r.metrics.Records.Record(ctx, int64(out.Count), sourceAttr)

	if err := r.csv.WriteBatch(ctx, paths.CSVFile, batch, mode); err != nil {
		out.CSVErr = err
		r.exportFailed(ctx, src, "csv", err)
	}

	if err := r.summaries.Write(ctx, paths.SummaryPath(src.SummaryFile), src.Label, out.Count); err != nil {
		out.SummaryErr = err
		r.exportFailed(ctx, src, "summary", err)
	}

	return out
}

func (r *Runner) exportFailed(ctx context.Context, src sources.Source, target string, err error) {
	infrastructure.RecordError(ctx, err)
	r.metrics.ExportFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", string(src.Name)),
		attribute.String("target", target)))
}

func (r *Runner) writeMetrics(ctx context.Context, path string) {
	if path == "" {
		return
	}
	if err := infrastructure.WriteMetricsTextfile(path, r.gatherer); err != nil {
		r.logger.ErrorContext(ctx, "Failed to write metrics file",
			slog.String("file_path", path),
			slog.String("error", err.Error()))
		return
	}
	r.logger.InfoContext(ctx, "Metrics written", slog.String("file_path", path))
}
