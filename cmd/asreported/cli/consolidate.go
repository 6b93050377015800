package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/odyssey-erp/asreported/internal/consol"
	"github.com/odyssey-erp/asreported/internal/consol/xlsx"
)

// Exit codes returned by ConsolidateCommand.
const (
	ExitOK      = 0
	ExitUsage   = 1
	ExitFailure = 2
)

// ConsolidateOptions defines the flags of the consolidate command.
type ConsolidateOptions struct {
	Input           string
	Output          string
	Debug           string
	Irreconcilable  bool
	SearchWarnItems int
	Logger          *slog.Logger
	Stdout          io.Writer
	Stderr          io.Writer
}

// ConsolidateCommand consolidates the workbook at opts.Input into opts.Output.
// When the run fails and opts.Debug is set, the in-flight iteration is written
// there for inspection.
func ConsolidateCommand(ctx context.Context, opts ConsolidateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if strings.TrimSpace(opts.Input) == "" || strings.TrimSpace(opts.Output) == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "consolidate: --input and --output are required")
		return ExitUsage
	}
	if opts.Input == opts.Output {
		_, _ = fmt.Fprintln(opts.Stderr, "consolidate: --output must differ from --input")
		return ExitUsage
	}

	file, err := os.Open(opts.Input)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consolidate: %v\n", err)
		return ExitUsage
	}
	input, err := xlsx.Decode(file)
	_ = file.Close()
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consolidate: read %s: %v\n", opts.Input, err)
		return exitFor(err)
	}

	engine, err := consol.NewEngine(input, consol.Config{
		Irreconcilable:  opts.Irreconcilable,
		SearchWarnItems: opts.SearchWarnItems,
	}, opts.Logger, nil)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consolidate: %v\n", err)
		return exitFor(err)
	}
	result, err := engine.Run(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consolidate: %v\n", err)
		writeDebug(engine, opts)
		return exitFor(err)
	}

	var buf bytes.Buffer
	if err := xlsx.EncodeResult(&buf, result); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consolidate: encode result: %v\n", err)
		return ExitUsage
	}
	if err := os.WriteFile(opts.Output, buf.Bytes(), 0o644); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consolidate: %v\n", err)
		return ExitUsage
	}

	warnings := 0
	for _, entry := range result.Journal {
		if entry.Warning {
			warnings++
			_, _ = fmt.Fprintf(opts.Stderr, "warning: %s:%s\n", entry.Source, entry.Message)
		}
	}
	_, _ = fmt.Fprintf(opts.Stdout, "consolidated %d sources into %s: %d rows, %d periods, %d rules, %d warnings\n",
		len(result.Sources), opts.Output, len(result.Rows), len(result.Periods), len(result.Rules), warnings)
	return ExitOK
}

func writeDebug(engine *consol.Engine, opts ConsolidateOptions) {
	if opts.Debug == "" {
		return
	}
	view, ok := engine.DebugView()
	if !ok {
		_, _ = fmt.Fprintln(opts.Stderr, "consolidate: no iteration in progress, debug workbook skipped")
		return
	}
	var buf bytes.Buffer
	if err := xlsx.EncodeDebug(&buf, view); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consolidate: encode debug workbook: %v\n", err)
		return
	}
	if err := os.WriteFile(opts.Debug, buf.Bytes(), 0o644); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "consolidate: write debug workbook: %v\n", err)
		return
	}
	_, _ = fmt.Fprintf(opts.Stderr, "debug workbook for source %s written to %s\n", view.Source, opts.Debug)
}

func exitFor(err error) int {
	if xlsx.IsInputError(err) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ExitFailure
	}
	return ExitUsage
}
