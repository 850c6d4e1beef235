// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package core

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/smo-cookie/detect-and-match2/internal/config"
	"github.com/smo-cookie/detect-and-match2/internal/logger"
	"github.com/smo-cookie/detect-and-match2/internal/metrics"
	"github.com/smo-cookie/detect-and-match2/internal/observability"
	"github.com/smo-cookie/detect-and-match2/internal/redactors"
	"github.com/smo-cookie/detect-and-match2/internal/resilience"
	"github.com/smo-cookie/detect-and-match2/internal/store"
	"github.com/smo-cookie/detect-and-match2/internal/validators/pattern"
	"github.com/smo-cookie/detect-and-match2/internal/validators/semantic"
)

// BuildPatternValidator compiles the catalog selected by cfg. Invalid or
// duplicate patterns are configuration errors.
func BuildPatternValidator(cfg *config.Config, observer *observability.StandardObserver) (*pattern.Validator, error) {
	overrides := make([]pattern.Definition, 0, len(cfg.Detection.Patterns))
	for _, p := range cfg.Detection.Patterns {
		overrides = append(overrides, pattern.Definition{Category: p.Category, Label: p.Label, Expr: p.Regex})
	}

	catalog, err := pattern.BuildCatalog(cfg.Detection.Disabled, overrides)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorConfiguration,
			"invalid pattern catalog", "", "pattern_validator", err)
	}

	v := pattern.NewValidator(catalog)
	v.SetObserver(observer)
	return v, nil
}

// BuildSemanticClient builds the remote detector client with retries, the
// optional circuit breaker and rate limiting from cfg. httpClient may be nil.
func BuildSemanticClient(cfg config.SemanticConfig, httpClient *http.Client, reg *metrics.Registry, log *logger.Logger, observer *observability.StandardObserver) (*semantic.Client, error) {
	if log == nil {
		log = logger.Nop()
	}
	var breaker *resilience.CircuitBreaker
	if cfg.CircuitBreaker.Enabled {
		breakerCfg := resilience.DefaultCircuitBreakerConfig(semantic.Name)
		breakerCfg.FailureThreshold = cfg.CircuitBreaker.FailureThreshold
		breakerCfg.Timeout = cfg.CircuitBreaker.OpenTimeout
		breakerCfg.OnStateChange = func(name string, from, to resilience.CircuitBreakerState) {
			log.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		}
		breaker = resilience.NewCircuitBreaker(breakerCfg)
	}

	opts := semantic.Options{
		Backend:           cfg.Backend,
		Endpoint:          cfg.Endpoint,
		Model:             cfg.Model,
		APIKey:            cfg.APIKey(),
		Timeout:           cfg.Timeout,
		Retry:             resilience.AttemptsRetryConfig(cfg.MaxAttempts, cfg.InitialBackoff, cfg.MaxBackoff),
		CircuitBreaker:    breaker,
		RequestsPerMinute: cfg.RequestsPerMinute,
		FindingsKey:       cfg.FindingsKey,
		ExtraKey:          cfg.ExtraKey,
		HTTPClient:        httpClient,
		Logger:            log,
	}
	if reg != nil {
		opts.OnAttempt = func(success bool) {
			reg.RecordDetectorAttempt(semantic.Name, success)
		}
	}

	client, err := semantic.NewClient(opts)
	if err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorConfiguration,
			"invalid semantic detector settings", "", "semantic_detector", err)
	}
	client.SetObserver(observer)
	return client, nil
}

// BuildEngine wires an engine from cfg. A report store that cannot be reached
// is logged and replaced by a no-op store; reports are best effort.
func BuildEngine(ctx context.Context, cfg *config.Config, log *logger.Logger, observer *observability.StandardObserver) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.Nop()
	}
	if observer == nil {
		observer = observability.NewStandardObserver(observability.ObservabilityMetrics, log)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, redactors.NewRedactionError(redactors.ErrorConfiguration,
			"invalid configuration", "", "engine", err)
	}

	reg := metrics.NewRegistry()

	patternValidator, err := BuildPatternValidator(cfg, observer)
	if err != nil {
		return nil, err
	}

	opts := Options{
		Config:   cfg,
		Pattern:  patternValidator,
		Metrics:  reg,
		Logger:   log,
		Observer: observer,
	}

	if cfg.Detection.Mode != config.ModePatternOnly {
		client, err := BuildSemanticClient(cfg.Semantic, nil, reg, log, observer)
		if err != nil {
			return nil, err
		}
		opts.Semantic = client
	}

	reportStore, err := store.New(ctx, cfg.Store, log)
	if err != nil {
		log.Warn("detection report store unavailable, reports disabled",
			zap.String("backend", cfg.Store.Backend),
			zap.Error(err))
		reportStore = store.NopStore{}
	}
	opts.Store = reportStore

	engine, err := NewEngine(opts)
	if err != nil {
		_ = reportStore.Close()
		return nil, err
	}
	return engine, nil
}
