package generator

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/pkg/errors"

	"github.com/makemykankotri/kankotri/pkg/observability"
)

const (
	// DefaultModelID is used when no model is configured
	DefaultModelID = "anthropic.claude-3-haiku-20240307-v1:0"

	anthropicVersion = "bedrock-2023-05-31"
	systemPrompt     = "You write elegant, culturally aware copy for Indian wedding invitations."
)

// ModelInvoker is the subset of the Bedrock runtime client used here
type ModelInvoker interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockGenerator generates copy with an Anthropic model on AWS Bedrock
type BedrockGenerator struct {
	client      ModelInvoker
	modelID     string
	maxTokens   int
	temperature float64
	logger      observability.Logger
}

// NewBedrockGenerator creates a generator for modelID
func NewBedrockGenerator(client ModelInvoker, modelID string, maxTokens int, temperature float64, logger observability.Logger) *BedrockGenerator {
	if modelID == "" {
		modelID = DefaultModelID
	}
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &BedrockGenerator{
		client:      client,
		modelID:     modelID,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

type claudeMessage struct {
	Role    string          `json:"role"`
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	Temperature      float64         `json:"temperature"`
	System           string          `json:"system"`
	Messages         []claudeMessage `json:"messages"`
}

type claudeResponse struct {
	Content    []claudeContent `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate implements Generator
func (g *BedrockGenerator) Generate(ctx context.Context, req Request) (*Content, error) {
	req, err := req.Normalize()
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(claudeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        g.maxTokens,
		Temperature:      g.temperature,
		System:           systemPrompt,
		Messages: []claudeMessage{{
			Role:    "user",
			Content: []claudeContent{{Type: "text", Text: Prompt(req)}},
		}},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode model request")
	}

	resp, err := g.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(g.modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to invoke model")
	}

	var out claudeResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return nil, errors.Wrap(err, "failed to parse model response")
	}

	var text strings.Builder
	for _, c := range out.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}
	if strings.TrimSpace(text.String()) == "" {
		return nil, errors.New("model returned no text")
	}

	g.logger.Debug("Generated content", map[string]interface{}{
		"kind":          string(req.Kind),
		"model":         g.modelID,
		"stop_reason":   out.StopReason,
		"output_tokens": out.Usage.OutputTokens,
	})

	return &Content{
		Kind:   req.Kind,
		Text:   strings.TrimSpace(text.String()),
		Model:  g.modelID,
		Tokens: out.Usage.InputTokens + out.Usage.OutputTokens,
	}, nil
}
