package services

import (
	"context"
	"time"

	"github.com/makemykankotri/kankotri/internal/plugins"
	"github.com/makemykankotri/kankotri/pkg/generator"
	"github.com/makemykankotri/kankotri/pkg/observability"
	"github.com/makemykankotri/kankotri/pkg/plugin"
)

// AssistService writes invitation copy while the ai-assist plugin is installed
type AssistService struct {
	generator generator.Generator
	registry  *plugin.Registry
	logger    observability.Logger
	metrics   observability.MetricsClient
}

// NewAssistService creates an AssistService
func NewAssistService(gen generator.Generator, registry *plugin.Registry, logger observability.Logger, metrics observability.MetricsClient) *AssistService {
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}
	return &AssistService{
		generator: gen,
		registry:  registry,
		logger:    logger.WithPrefix("assist-service"),
		metrics:   metrics,
	}
}

// Enabled reports whether generation is available
func (s *AssistService) Enabled() bool {
	return s.generator != nil && s.registry.IsInstalled(plugins.AIAssistName)
}

// Generate writes copy for req
func (s *AssistService) Generate(ctx context.Context, req generator.Request) (*generator.Content, error) {
	if !s.Enabled() {
		return nil, ErrPluginDisabled
	}

	start := time.Now()
	content, err := s.generator.Generate(ctx, req)
	s.metrics.RecordAPIOperation("generator", string(req.Kind), err == nil, time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn("Content generation failed", map[string]interface{}{
			"kind":  string(req.Kind),
			"error": err.Error(),
		})
		return nil, err
	}
	return content, nil
}
