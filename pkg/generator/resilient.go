package generator

import (
	"context"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"

	"github.com/makemykankotri/kankotri/pkg/config"
	"github.com/makemykankotri/kankotri/pkg/observability"
)

// Resilient wraps a Generator with per-attempt timeouts, retries and a
// circuit breaker.
type Resilient struct {
	next       Generator
	breaker    *gobreaker.CircuitBreaker
	timeout    time.Duration
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     observability.Logger
	metrics    observability.MetricsClient
}

// NewResilient wraps next
func NewResilient(next Generator, timeout time.Duration, maxRetries uint64, logger observability.Logger, metrics observability.MetricsClient) *Resilient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	r := &Resilient{
		next:       next,
		timeout:    timeout,
		maxRetries: maxRetries,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		logger:     logger,
		metrics:    metrics,
	}
	r.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generator",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidRequest)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", map[string]interface{}{
				"name": name,
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})
	return r
}

// State returns the breaker state
func (r *Resilient) State() gobreaker.State {
	return r.breaker.State()
}

// Generate implements Generator
func (r *Resilient) Generate(ctx context.Context, req Request) (*Content, error) {
	if _, err := req.Normalize(); err != nil {
		return nil, err
	}

	done := r.metrics.StartTimer("generator_request_duration_seconds", map[string]string{"kind": string(req.Kind)})
	defer done()

	var content *Content
	attempt := 0
	op := func() error {
		attempt++
		res, err := r.breaker.Execute(func() (interface{}, error) {
			attemptCtx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()
			return r.next.Generate(attemptCtx, req)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) ||
				errors.Is(err, ErrInvalidRequest) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			r.logger.Warn("Generation attempt failed", map[string]interface{}{
				"attempt": attempt,
				"error":   err.Error(),
			})
			return err
		}
		content = res.(*Content)
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.maxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		r.metrics.RecordCounter("generator_failures_total", 1, map[string]string{"kind": string(req.Kind)})
		return nil, errors.Wrap(err, "content generation failed")
	}
	return content, nil
}

// New builds the configured generator. Without a model id, or with the
// "mock" provider, it returns a MockGenerator.
func New(ctx context.Context, cfg config.AIConfig, logger observability.Logger, metrics observability.MetricsClient) (Generator, error) {
	if cfg.Provider == "mock" || cfg.ModelID == "" {
		logger.Info("Using mock content generator", map[string]interface{}{"provider": cfg.Provider})
		return NewMockGenerator(), nil
	}
	if cfg.Provider != "bedrock" {
		return nil, errors.Errorf("unsupported ai provider %q", cfg.Provider)
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load AWS config")
	}

	// retries are handled by Resilient
	client := bedrockruntime.NewFromConfig(awsCfg, func(o *bedrockruntime.Options) {
		o.RetryMaxAttempts = 1
	})
	bedrock := NewBedrockGenerator(client, cfg.ModelID, cfg.MaxTokens, cfg.Temperature, logger)

	logger.Info("Using Bedrock content generator", map[string]interface{}{
		"model":  cfg.ModelID,
		"region": cfg.Region,
	})
	return NewResilient(bedrock, cfg.Timeout, cfg.MaxRetries, logger, metrics), nil
}
