// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/smo-cookie/detect-and-match2/internal/config"
	"github.com/smo-cookie/detect-and-match2/internal/core"
	"github.com/smo-cookie/detect-and-match2/internal/formatters"
	_ "github.com/smo-cookie/detect-and-match2/internal/formatters/csv"
	_ "github.com/smo-cookie/detect-and-match2/internal/formatters/json"
	_ "github.com/smo-cookie/detect-and-match2/internal/formatters/text"
	_ "github.com/smo-cookie/detect-and-match2/internal/formatters/yaml"
	"github.com/smo-cookie/detect-and-match2/internal/help"
	"github.com/smo-cookie/detect-and-match2/internal/logger"
	"github.com/smo-cookie/detect-and-match2/internal/observability"
	"github.com/smo-cookie/detect-and-match2/internal/redactors"
	"github.com/smo-cookie/detect-and-match2/internal/version"
)

// cliFlags holds command line flag values
type cliFlags struct {
	file        string
	docType     string
	extra       string
	configFile  string
	patternOnly bool
	placeholder string
	outputDir   string
	dryRun      bool
	format      string
	jsonOutput  bool
	showMatch   bool
	verbose     bool
	debug       bool
	quiet       bool
	noColor     bool
	metricsFile string
	showVersion bool
	showHelp    bool
}

func newFlagSet(stderr io.Writer) (*flag.FlagSet, *cliFlags) {
	fs := flag.NewFlagSet("docmask", flag.ContinueOnError)
	fs.SetOutput(stderr)

	f := &cliFlags{}
	fs.StringVar(&f.file, "file", "", "Path to the document to mask (more documents may follow as arguments)")
	fs.StringVar(&f.docType, "type", "", "Declared document type: word or excel (default: inferred from the extension)")
	fs.StringVar(&f.extra, "extra", "", "Extra terms to mask: JSON list or comma separated")
	fs.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML)")
	fs.BoolVar(&f.patternOnly, "pattern-only", false, "Skip the semantic detector")
	fs.StringVar(&f.placeholder, "placeholder", "", "Replacement text for masked values (default from config: ****)")
	fs.StringVar(&f.outputDir, "output-dir", "", "Directory for masked copies (default: next to the input)")
	fs.BoolVar(&f.dryRun, "dry-run", false, "Run detection without writing masked copies")
	fs.StringVar(&f.format, "format", "text", "Output format: text, json, csv, yaml")
	fs.BoolVar(&f.jsonOutput, "json", false, "Shorthand for --format json")
	fs.BoolVar(&f.showMatch, "show-match", false, "Print detected values in the report")
	fs.BoolVar(&f.verbose, "verbose", false, "List categories, modified parts and detectors per document")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logging and step tracing")
	fs.BoolVar(&f.quiet, "quiet", false, "Only print masked file paths")
	fs.BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "Write prometheus metrics in text format to this path")
	fs.BoolVar(&f.showVersion, "version", false, "Show version information")
	fs.BoolVar(&f.showHelp, "help", false, "Show help information")
	return fs, f
}

// loadConfiguration loads the configuration file from the flag or a standard location
func loadConfiguration(configFile string) (*config.Config, error) {
	configPath := configFile
	if configPath == "" {
		configPath = config.FindConfigFile()
	}
	return config.LoadConfig(configPath)
}

// applyFlags overrides configuration values with explicitly set flags
func applyFlags(cfg *config.Config, fs *flag.FlagSet, f *cliFlags) {
	set := make(map[string]bool)
	fs.Visit(func(fl *flag.Flag) { set[fl.Name] = true })

	if f.patternOnly {
		cfg.Detection.Mode = config.ModePatternOnly
	}
	if set["placeholder"] {
		cfg.Masking.Placeholder = f.placeholder
	}
	if set["output-dir"] {
		cfg.Masking.OutputDir = f.outputDir
	}
	if f.debug {
		cfg.Logging.Level = "debug"
	} else if f.quiet {
		cfg.Logging.Level = "error"
	}
}

// isTerminal checks if the writer is a terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs, f := newFlagSet(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	noColor := f.noColor || !isTerminal(stdout)

	if f.showVersion {
		fmt.Fprintln(stdout, version.Info())
		return 0
	}

	if f.showHelp {
		h := help.NewSystem(stdout, nil, noColor)
		switch topic := fs.Arg(0); topic {
		case "":
			h.ShowGeneralHelp()
		case "categories":
			h.ShowCategoriesHelp()
		default:
			if !h.ShowCategoryHelp(topic) {
				fmt.Fprintf(stderr, "Error: unknown help topic %q\n", topic)
				return 1
			}
		}
		return 0
	}

	files := fs.Args()
	if f.file != "" {
		files = append([]string{f.file}, files...)
	}
	if len(files) == 0 {
		fmt.Fprintln(stderr, "Error: no input document given (use --file or pass paths as arguments)")
		fmt.Fprintln(stderr, "Run 'docmask --help' for usage")
		return 1
	}

	extraTerms, err := core.ParseExtraTerms(f.extra)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	format := f.format
	if f.jsonOutput {
		format = "json"
	}
	if _, ok := formatters.Get(format); !ok && !f.quiet {
		fmt.Fprintf(stderr, "Error: unsupported format %q\n", format)
		return 1
	}

	cfg, err := loadConfiguration(f.configFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading configuration: %v\n", err)
		return 1
	}
	applyFlags(cfg, fs, f)

	log, err := logger.New(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "Error creating logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	var observer *observability.StandardObserver
	if f.debug {
		observer = observability.NewDebugObserver(stderr, log).StandardObserver
	} else {
		observer = observability.NewStandardObserver(observability.ObservabilityMetrics, log)
	}

	engine, err := core.BuildEngine(ctx, cfg, log, observer)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return redactors.ExitCode(err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn("closing detection report store", zap.Error(err))
		}
	}()

	requests := make([]core.Request, len(files))
	for i, path := range files {
		requests[i] = core.Request{Path: path, DocType: f.docType, ExtraTerms: extraTerms, DryRun: f.dryRun}
	}

	results, _ := engine.MaskBatch(ctx, requests)

	if f.metricsFile != "" {
		if err := engine.Metrics().WriteToTextfile(f.metricsFile); err != nil {
			log.Warn("failed to write metrics file", zap.String("path", f.metricsFile), zap.Error(err))
		}
	}

	if f.quiet {
		for _, r := range results {
			if r.Err == nil && r.Result.OutputPath != "" {
				fmt.Fprintln(stdout, r.Result.OutputPath)
			}
		}
	} else {
		out, err := formatters.Export(format, results, formatters.FormatterOptions{
			Verbose:   f.verbose,
			NoColor:   noColor,
			ShowMatch: f.showMatch,
		})
		if err != nil {
			fmt.Fprintf(stderr, "Error formatting results: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, out)
	}

	return exitCode(results)
}

// exitCode returns the code of the first failed document in input order
func exitCode(results []core.BatchResult) int {
	for _, r := range results {
		if r.Err != nil {
			return redactors.ExitCode(r.Err)
		}
	}
	return 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
