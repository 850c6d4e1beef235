// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/smo-cookie/detect-and-match2/internal/config"
	"github.com/smo-cookie/detect-and-match2/internal/detector"
	"github.com/smo-cookie/detect-and-match2/internal/logger"
	"github.com/smo-cookie/detect-and-match2/internal/metrics"
	"github.com/smo-cookie/detect-and-match2/internal/observability"
	"github.com/smo-cookie/detect-and-match2/internal/ooxml"
	textextract "github.com/smo-cookie/detect-and-match2/internal/preprocessors/text-extractors/text-extract-officetextlib"
	"github.com/smo-cookie/detect-and-match2/internal/redactors"
	"github.com/smo-cookie/detect-and-match2/internal/redactors/office"
	"github.com/smo-cookie/detect-and-match2/internal/store"
	"github.com/smo-cookie/detect-and-match2/internal/validators/pattern"
	"github.com/smo-cookie/detect-and-match2/internal/version"
)

// Request describes one document to mask
type Request struct {
	// Path is the input document
	Path string

	// DocType is "word", "excel" or an extension. Empty infers it from Path.
	DocType string

	// ExtraTerms are caller supplied literals that are always masked
	ExtraTerms []string

	// DryRun runs detection without writing a masked copy
	DryRun bool
}

// MaskResult is the outcome of a successful pass
type MaskResult struct {
	InputPath     string
	OutputPath    string
	Kind          ooxml.Kind
	Detected      detector.Result
	Echoed        detector.Result
	Literals      []string
	Replacements  int
	ModifiedParts []string
	Sources       []string
	Stored        bool
	DryRun        bool
	Duration      time.Duration
}

// Options wires an Engine. Nil fields get defaults, except Semantic which
// is required unless detection runs pattern only.
type Options struct {
	Config   *config.Config
	Pattern  detector.Detector
	Semantic detector.Detector
	Store    store.Store
	Metrics  *metrics.Registry
	Logger   *logger.Logger
	Observer *observability.StandardObserver
}

// Engine runs masking passes. It keeps no state between passes apart from
// the per-path locks and metrics, and is safe for concurrent use.
type Engine struct {
	cfg      *config.Config
	pattern  detector.Detector
	semantic detector.Detector
	store    store.Store
	metrics  *metrics.Registry
	log      *logger.Logger
	observer *observability.StandardObserver

	outputs  *redactors.OutputStructureManager
	redactor redactors.Redactor
	locks    *pathLocks
}

// NewEngine builds an engine from opts
func NewEngine(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	observer := opts.Observer
	if observer == nil {
		observer = observability.NewStandardObserver(observability.ObservabilityMetrics, log)
	}

	e := &Engine{
		cfg:      cfg,
		pattern:  opts.Pattern,
		store:    opts.Store,
		metrics:  opts.Metrics,
		log:      log.WithComponent("engine"),
		observer: observer,
		locks:    newPathLocks(),
	}

	if e.pattern == nil {
		e.pattern = pattern.NewValidator(nil)
	}
	if cfg.Detection.Mode != config.ModePatternOnly {
		if opts.Semantic == nil {
			return nil, redactors.NewRedactionError(redactors.ErrorConfiguration,
				"semantic detector is required in "+config.ModeCombined+" mode", "", "engine", nil)
		}
		e.semantic = opts.Semantic
	}
	if e.store == nil {
		e.store = store.NopStore{}
	}
	if e.metrics == nil {
		e.metrics = metrics.NewRegistry()
	}

	outputs, err := redactors.NewOutputStructureManager(cfg.Masking.OutputDir, cfg.Masking.Marker, observer)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorConfiguration,
			"invalid output settings", "", "engine", err)
	}
	e.outputs = outputs
	e.redactor = office.NewOfficeRedactor(outputs, observer)

	return e, nil
}

// Metrics returns the engine's metrics registry
func (e *Engine) Metrics() *metrics.Registry {
	return e.metrics
}

// Close releases the report store
func (e *Engine) Close() error {
	return e.store.Close()
}

// Mask runs one pass: extract, detect, merge, rewrite, report. Any failure
// is returned as a *redactors.RedactionError and leaves no masked copy.
func (e *Engine) Mask(ctx context.Context, req Request) (*MaskResult, error) {
	start := time.Now()
	log := e.log.WithFile(req.Path)

	result, err := e.mask(ctx, req, log)

	kind := ooxml.KindUnknown
	if result != nil {
		kind = result.Kind
		result.Duration = time.Since(start)
	} else if k, kindErr := ooxml.ResolveKind(req.Path, req.DocType); kindErr == nil {
		kind = k
	}

	switch {
	case err != nil:
		e.metrics.RecordPass(metrics.OutcomeFailed, kind.String(), time.Since(start))
		log.Error("masking failed", zap.Error(err))
	case result.DryRun:
		e.metrics.RecordPass(metrics.OutcomeDryRun, kind.String(), result.Duration)
		log.Info("dry run finished",
			zap.Int("literals", len(result.Literals)),
			zap.Duration("duration", result.Duration))
	default:
		e.metrics.RecordPass(metrics.OutcomeMasked, kind.String(), result.Duration)
		log.Info("document masked",
			zap.String("output_path", result.OutputPath),
			zap.Int("literals", len(result.Literals)),
			zap.Int("replacements", result.Replacements),
			zap.Duration("duration", result.Duration))
	}

	return result, err
}

func (e *Engine) mask(ctx context.Context, req Request, log *logger.Logger) (*MaskResult, error) {
	kind, err := ooxml.ResolveKind(req.Path, req.DocType)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorUnsupportedFormat,
			"unsupported document", req.Path, "engine", err)
	}

	outputPath := ""
	if !req.DryRun {
		outputPath, err = e.outputs.OutputPath(req.Path)
		if err != nil {
			return nil, redactors.NewRedactionError(redactors.ErrorRewrite,
				"cannot resolve output path", req.Path, e.outputs.GetComponentName(), err)
		}
	}

	unlock := e.locks.lock(req.Path, outputPath)
	defer unlock()

	info, err := os.Stat(req.Path)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorExtraction,
			"cannot read input", req.Path, "text_extractor", err)
	}
	if info.IsDir() {
		return nil, redactors.NewRedactionError(redactors.ErrorExtraction,
			"input is a directory", req.Path, "text_extractor", nil)
	}

	pkg, err := ooxml.OpenPackage(req.Path, kind)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorExtraction,
			"cannot open package", req.Path, "text_extractor", err)
	}
	defer pkg.Close()

	content, err := textextract.ExtractPackageText(pkg, kind, filepath.Base(req.Path))
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorExtraction,
			"text extraction failed", req.Path, "text_extractor", err)
	}
	log.Debug("text extracted",
		zap.Strings("parts", content.Parts),
		zap.Int("paragraphs", content.Paragraphs),
		zap.Int("chars", content.CharCount))

	extraTerms := cleanTerms(req.ExtraTerms)

	detections, err := e.detect(ctx, req.Path, content.Text, extraTerms)
	if err != nil {
		return nil, err
	}

	var findings, echoed []detector.Result
	var results []detector.Result
	sources := make([]string, 0, len(detections))
	for _, d := range detections {
		sources = append(sources, d.Source)
		findings = append(findings, d.Findings)
		echoed = append(echoed, d.ExtraTerms)
		results = append(results, d.Results()...)
	}

	placeholder := e.cfg.Masking.Placeholder
	masks := detector.NewMaskSet(placeholder, results, extraTerms)
	merged := detector.Merge(findings...)
	e.metrics.RecordFindings(merged, masks.Len())

	result := &MaskResult{
		InputPath: req.Path,
		Kind:      kind,
		Detected:  merged,
		Echoed:    detector.Merge(echoed...),
		Literals:  masks.Literals(),
		Sources:   sources,
		DryRun:    req.DryRun,
	}

	if req.DryRun {
		result.Stored = e.report(ctx, req.Path, kind, store.StatusDryRun, result, extraTerms, log)
		return result, nil
	}

	rewrite, err := e.redactor.Rewrite(pkg, masks, placeholder, outputPath)
	if err != nil {
		e.report(ctx, req.Path, kind, store.StatusFailed, result, extraTerms, log)
		errorType := redactors.ErrorRewrite
		if errors.Is(err, ooxml.ErrNoTextParts) {
			errorType = redactors.ErrorExtraction
		}
		return nil, redactors.NewRedactionError(errorType,
			"rewrite failed", req.Path, e.redactor.GetComponentName(), err)
	}
	e.metrics.RecordReplacements(rewrite.Replacements)

	result.OutputPath = rewrite.OutputPath
	result.Replacements = rewrite.Replacements
	result.ModifiedParts = rewrite.ModifiedParts
	result.Stored = e.report(ctx, req.Path, kind, store.StatusMasked, result, extraTerms, log)
	return result, nil
}

// detect runs the pattern and semantic detectors concurrently. The first
// failure cancels the other detector.
func (e *Engine) detect(ctx context.Context, path, text string, extraTerms []string) ([]*detector.Detection, error) {
	detectors := []detector.Detector{e.pattern}
	if e.semantic != nil {
		detectors = append(detectors, e.semantic)
	}

	detections := make([]*detector.Detection, len(detectors))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range detectors {
		i, d := i, d
		g.Go(func() error {
			detection, err := d.Detect(gctx, text, extraTerms)
			// semantic attempts are counted by the client, once per retry
			if d.Name() == pattern.Name {
				e.metrics.RecordDetectorAttempt(d.Name(), err == nil)
			}
			if err != nil {
				return redactors.NewRedactionError(redactors.ErrorDetection,
					d.Name()+" detector failed", path, d.Name()+"_detector", err)
			}
			if detection == nil {
				detection = &detector.Detection{}
			}
			if detection.Source == "" {
				detection.Source = d.Name()
			}
			detections[i] = detection
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return detections, nil
}

// report saves the detection record once the pass outcome is known. Only
// masked records carry an output path. Store failures are logged and never
// fail the pass.
func (e *Engine) report(ctx context.Context, path string, kind ooxml.Kind, status string, result *MaskResult, extraTerms []string, log *logger.Logger) bool {
	if _, ok := e.store.(store.NopStore); ok {
		return false
	}

	record := store.NewRecord(path, kind.String(), version.Short())
	if err := record.SetFileInfo(); err != nil {
		log.Warn("cannot hash input for detection report", zap.Error(err))
	}
	record.Status = status
	if status == store.StatusMasked {
		record.File.OutputPath = result.OutputPath
	}
	record.Detected = result.Detected
	record.Additional = store.AdditionalInfo{ExtraTerms: extraTerms, Echoed: result.Echoed}
	record.Sources = result.Sources

	ok := store.SaveWithTimeout(ctx, e.store, record, e.cfg.Store, log)
	e.metrics.RecordStoreWrite(e.store.Name(), ok)
	return ok
}

// BatchResult pairs a request with its outcome
type BatchResult struct {
	Request Request
	Result  *MaskResult
	Err     error
}

// MaskBatch masks every request with at most engine.max_parallel passes in
// flight. A failing document never affects the others; failures are also
// gathered in the returned collection.
func (e *Engine) MaskBatch(ctx context.Context, reqs []Request) ([]BatchResult, *redactors.RedactionErrorCollection) {
	results := make([]BatchResult, len(reqs))
	collection := redactors.NewRedactionErrorCollection()

	limit := e.cfg.Engine.MaxParallel
	if limit < 1 {
		limit = 1
	}

	collisions := e.outputCollisions(reqs)

	var g errgroup.Group
	g.SetLimit(limit)
	for i, req := range reqs {
		i, req := i, req
		if err, ok := collisions[i]; ok {
			results[i] = BatchResult{Request: req, Err: err}
			collection.Add(req.Path, err)
			e.metrics.RecordPass(metrics.OutcomeFailed, collisionKind(req).String(), 0)
			e.log.WithFile(req.Path).Error("masking failed", zap.Error(err))
			continue
		}
		g.Go(func() error {
			result, err := e.Mask(ctx, req)
			results[i] = BatchResult{Request: req, Result: result, Err: err}
			if err != nil {
				collection.Add(req.Path, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results, collection
}

// outputCollisions finds requests whose masked copy would land on the
// output of an earlier request for a different input. The first request
// keeps the path; later ones fail with a rewrite error.
func (e *Engine) outputCollisions(reqs []Request) map[int]error {
	owners := make(map[string]string)
	collisions := make(map[int]error)
	for i, req := range reqs {
		if req.DryRun {
			continue
		}
		if _, err := ooxml.ResolveKind(req.Path, req.DocType); err != nil {
			continue
		}
		outputPath, err := e.outputs.OutputPath(req.Path)
		if err != nil {
			continue
		}
		input, output := lockKey(req.Path), lockKey(outputPath)
		owner, taken := owners[output]
		switch {
		case !taken:
			owners[output] = input
		case owner != input:
			collisions[i] = redactors.NewRedactionError(redactors.ErrorRewrite,
				fmt.Sprintf("masked copy %s is already produced by %s in this batch", outputPath, owner),
				req.Path, e.outputs.GetComponentName(), nil)
		}
	}
	return collisions
}

func collisionKind(req Request) ooxml.Kind {
	kind, err := ooxml.ResolveKind(req.Path, req.DocType)
	if err != nil {
		return ooxml.KindUnknown
	}
	return kind
}

// ParseExtraTerms accepts a JSON list of strings or a comma separated list
func ParseExtraTerms(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if strings.HasPrefix(raw, "[") {
		var terms []string
		if err := json.Unmarshal([]byte(raw), &terms); err != nil {
			return nil, fmt.Errorf("extra terms must be a JSON list of strings: %w", err)
		}
		return cleanTerms(terms), nil
	}
	return cleanTerms(strings.Split(raw, ",")), nil
}

// cleanTerms trims terms and drops blanks and duplicates, keeping first occurrence order
func cleanTerms(terms []string) []string {
	if len(terms) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(terms))
	out := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		out = append(out, term)
	}
	return out
}
