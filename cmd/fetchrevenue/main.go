// Command fetchrevenue downloads the monthly revenue disclosures of companies
// listed on the Taiwan exchanges and writes them to one CSV file plus a
// summary badge per exchange.
//
// Usage:
//
//	fetchrevenue [<output_csv_file>]
//
// Without an argument the CSV is named after today's date (YYYYMMDD.csv).
// A file name starting with "-" must follow "--".
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"twrevenue/internal/app"
	"twrevenue/internal/config"
	apperrors "twrevenue/internal/errors"
	"twrevenue/internal/infrastructure"
	"twrevenue/pkg/contracts"
)

const usage = "Usage: fetchrevenue [<output_csv_file>]"

// interruptedError is the cancellation cause installed by the signal handler
type interruptedError struct {
	sig os.Signal
}

func (e interruptedError) Error() string {
	return fmt.Sprintf("interrupted by %s", e.sig)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// commandLine holds the parsed arguments
type commandLine struct {
	csvFile     string
	showVersion bool
}

// parseCommandLine parses flags and the optional CSV path
func parseCommandLine(args []string, stderr io.Writer) (commandLine, error) {
	fs := flag.NewFlagSet(config.AppName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	showVersion := fs.Bool("version", false, "print version information and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return commandLine{}, err
	}
	if *showVersion {
		return commandLine{showVersion: true}, nil
	}

	csvFile, err := parseArgs(fs.Args())
	if err != nil {
		return commandLine{}, err
	}
	return commandLine{csvFile: csvFile}, nil
}

// run executes the command and returns the process exit code. runnerOpts are
// passed to the Runner.
func run(args []string, stdout, stderr io.Writer, runnerOpts ...app.Option) int {
	// usage errors are reported before configuration is read
	bootstrap := slog.New(slog.NewTextHandler(stderr, nil))

	cl, err := parseCommandLine(args, stderr)
	switch {
	case errors.Is(err, flag.ErrHelp):
		return 0
	case apperrors.IsType(err, apperrors.ErrTypeUsage):
		bootstrap.Error(usage, slog.String("error", err.Error()))
		return 1
	case err != nil:
		// the flag package already printed the problem and usage
		return 1
	}

	if cl.showVersion {
		fmt.Fprintln(stdout, contracts.GetFullVersionString())
		return 0
	}

	cfg, err := config.Load()
	if err != nil {
		bootstrap.Error("Failed to load configuration", slog.String("error", err.Error()))
		return 1
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		bootstrap.Error("Failed to initialize logger", slog.String("error", err.Error()))
		return 1
	}
	defer infrastructure.CloseLogFile()

	ctx, stop := notifyContext(context.Background())
	defer stop()
	ctx = infrastructure.ContextWithTraceID(ctx)

	application, err := app.NewApplication(cfg, logger, app.WithRunnerOptions(runnerOpts...))
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize application", slog.String("error", err.Error()))
		return 1
	}

	report := application.Run(ctx, cl.csvFile)
	return exitCode(report.Err)
}

// notifyContext returns a context cancelled with an interruptedError on
// SIGINT or SIGTERM.
func notifyContext(parent context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(parent)
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigs:
			cancel(interruptedError{sig: sig})
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigs)
		cancel(nil)
	}
}

// exitCode maps the run's interruption cause to a shell exit status:
// 0 for a completed run, 128+signal for SIGINT and SIGTERM, 1 otherwise.
func exitCode(cause error) int {
	if cause == nil {
		return 0
	}
	var ie interruptedError
	if errors.As(cause, &ie) {
		if sig, ok := ie.sig.(syscall.Signal); ok {
			return 128 + int(sig)
		}
	}
	return 1
}

// parseArgs returns the CSV path given on the command line, or "" when the
// date-derived default should be used.
func parseArgs(args []string) (string, error) {
	switch len(args) {
	case 0:
		return "", nil
	case 1:
		if args[0] == "" {
			return "", apperrors.NewUsageError("output file name must not be empty")
		}
		return args[0], nil
	default:
		return "", apperrors.NewUsageError(fmt.Sprintf("expected at most one argument, got %d", len(args)))
	}
}
