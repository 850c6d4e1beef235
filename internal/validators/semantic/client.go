// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package semantic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/smo-cookie/detect-and-match2/internal/detector"
	"github.com/smo-cookie/detect-and-match2/internal/logger"
	"github.com/smo-cookie/detect-and-match2/internal/observability"
	"github.com/smo-cookie/detect-and-match2/internal/resilience"
)

// Name is the detector name reported in logs, metrics and stored reports
const Name = "semantic"

// Wire backends
const (
	BackendService = "service"
	BackendChat    = "chat"
)

const maxReplyBytes = 8 << 20

// Options configures a Client
type Options struct {
	Backend  string
	Endpoint string
	Model    string
	APIKey   string

	// Timeout bounds each attempt
	Timeout time.Duration
	Retry   resilience.RetryConfig

	// CircuitBreaker is optional
	CircuitBreaker *resilience.CircuitBreaker

	// RequestsPerMinute of zero disables client-side rate limiting
	RequestsPerMinute int

	FindingsKey string
	ExtraKey    string

	HTTPClient *http.Client
	Logger     *logger.Logger

	// OnAttempt is called after every attempt with its outcome
	OnAttempt func(success bool)
}

// Client calls a remote semantic detector over HTTP
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter
	log     *logger.Logger

	// Observability
	observer *observability.StandardObserver
}

// NewClient validates options and builds a client
func NewClient(opts Options) (*Client, error) {
	if opts.Endpoint == "" {
		return nil, fmt.Errorf("semantic detector endpoint is required")
	}
	switch opts.Backend {
	case "":
		opts.Backend = BackendService
	case BackendService, BackendChat:
	default:
		return nil, fmt.Errorf("unknown semantic backend %q", opts.Backend)
	}
	if opts.FindingsKey == "" {
		opts.FindingsKey = DefaultFindingsKey
	}
	if opts.ExtraKey == "" {
		opts.ExtraKey = DefaultExtraKey
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Retry.Multiplier == 0 && opts.Retry.InitialInterval == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}

	c := &Client{
		opts: opts,
		http: opts.HTTPClient,
		log:  opts.Logger,
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.log == nil {
		c.log = logger.Nop()
	}
	c.log = c.log.WithComponent("semantic_detector")

	if opts.RequestsPerMinute > 0 {
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RequestsPerMinute)), 1)
	}

	return c, nil
}

// SetObserver sets the observability component
func (c *Client) SetObserver(observer *observability.StandardObserver) {
	c.observer = observer
}

// Name implements detector.Detector
func (c *Client) Name() string {
	return Name
}

// Detect implements detector.Detector. Transient failures and malformed
// replies are retried; the last error is returned once attempts run out.
func (c *Client) Detect(ctx context.Context, text string, extraTerms []string) (*detector.Detection, error) {
	var finishTiming func(bool, map[string]interface{})
	var finishStep func(bool, string)
	if c.observer != nil {
		finishTiming = c.observer.StartTiming("semantic_detector", "detect", "")
		if c.observer.DebugObserver != nil {
			finishStep = c.observer.DebugObserver.StartStep("semantic_detector", "detect", c.opts.Backend)
		}
	}

	attempts := 0
	retry := c.opts.Retry
	onRetry := retry.OnRetry
	retry.OnRetry = func(attempt int, err error) {
		c.log.Warn("retrying semantic detector",
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", retry.MaxRetries+1),
			zap.Error(err))
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}

	envelope, err := resilience.RetryWithResult(ctx, retry, c.opts.CircuitBreaker, func(ctx context.Context) (*Envelope, error) {
		attempts++
		envelope, err := c.attempt(ctx, text, extraTerms)
		if c.opts.OnAttempt != nil {
			c.opts.OnAttempt(err == nil)
		}
		return envelope, err
	})

	if err != nil {
		metadata := map[string]interface{}{"attempts": attempts, "error": err.Error()}
		if breaker := c.opts.CircuitBreaker; breaker != nil {
			metadata["breaker_state"] = breaker.GetState().String()
			if resilience.IsCircuitBreakerError(err) {
				stats := breaker.GetStats()
				c.log.Warn("semantic detector skipped, circuit breaker open",
					zap.String("breaker", stats.Name),
					zap.Int("consecutive_failures", stats.FailureCount),
					zap.Time("last_failure", stats.LastFailureTime))
			}
		}
		if finishTiming != nil {
			finishTiming(false, metadata)
		}
		if finishStep != nil {
			finishStep(false, err.Error())
		}
		return nil, fmt.Errorf("semantic detector failed after %d attempt(s): %w", attempts, err)
	}

	if finishTiming != nil {
		finishTiming(true, map[string]interface{}{
			"attempts":    attempts,
			"match_count": envelope.Findings.Count(),
			"extra_count": envelope.ExtraTerms.Count(),
		})
	}
	if finishStep != nil {
		finishStep(true, fmt.Sprintf("%d finding(s)", envelope.Findings.Count()))
	}

	return &detector.Detection{
		Source:     Name,
		Findings:   envelope.Findings,
		ExtraTerms: envelope.ExtraTerms,
	}, nil
}

func (c *Client) attempt(ctx context.Context, text string, extraTerms []string) (*Envelope, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	switch c.opts.Backend {
	case BackendChat:
		content, err := c.callChat(attemptCtx, text, extraTerms)
		if err != nil {
			return nil, err
		}
		return ParseChatEnvelope([]byte(content), c.opts.FindingsKey, c.opts.ExtraKey)
	default:
		body, err := c.post(attemptCtx, c.opts.Endpoint, serviceRequest{Text: text, ExtraTerms: nonNil(extraTerms)})
		if err != nil {
			return nil, err
		}
		return ParseEnvelope(body, c.opts.FindingsKey, c.opts.ExtraKey)
	}
}

type serviceRequest struct {
	Text       string   `json:"text"`
	ExtraTerms []string `json:"extra_terms"`
}

// post sends a JSON body and returns the reply body of a 2xx response
func (c *Client) post(ctx context.Context, url string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, resilience.NewPermanentError("encode detector request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, resilience.NewPermanentError("build detector request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return nil, resilience.NewTransientError("read detector reply", err)
	}

	if err := statusError(resp.StatusCode, reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// statusError maps a non-2xx status to a classified error
func statusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	message := fmt.Sprintf("detector returned HTTP %d: %s", status, snippet)

	switch {
	case status == http.StatusTooManyRequests:
		return &resilience.ClassifiedError{Type: resilience.ErrorTypeRateLimit, Message: message, Retryable: true}
	case status == http.StatusRequestTimeout:
		return resilience.NewTimeoutError(message, nil)
	case status >= 500:
		return &resilience.ClassifiedError{Type: resilience.ErrorTypeServiceUnavailable, Message: message, Retryable: true}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return resilience.NewPermanentError(message, nil)
	default:
		return &resilience.ClassifiedError{Type: resilience.ErrorTypeInvalidInput, Message: message, Retryable: false}
	}
}

func nonNil(terms []string) []string {
	if terms == nil {
		return []string{}
	}
	return terms
}
