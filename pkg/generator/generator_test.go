package generator

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/makemykankotri/kankotri/pkg/config"
	"github.com/makemykankotri/kankotri/pkg/observability"
)

func TestRequestNormalize(t *testing.T) {
	req, err := Request{Kind: KindWelcome, Details: map[string]string{" bride ": " Asha ", "empty": " "}}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"bride": "Asha"}, req.Details)
	assert.Equal(t, DefaultTone, req.Tone)
	assert.Equal(t, DefaultLanguage, req.Language)

	_, err = Request{Kind: "poem", Details: map[string]string{"a": "b"}}.Normalize()
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = Request{Kind: KindStory}.Normalize()
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestPrompt(t *testing.T) {
	req, err := Request{
		Kind:     KindInvitation,
		Details:  map[string]string{"venue": "Udaipur", "bride": "Asha"},
		Language: "Gujarati",
	}.Normalize()
	require.NoError(t, err)

	p := Prompt(req)
	assert.Contains(t, p, "wedding invitation card")
	assert.Contains(t, p, "Language: Gujarati.")
	assert.Less(t, strings.Index(p, "- bride: Asha"), strings.Index(p, "- venue: Udaipur"))
}

func TestMockGenerator(t *testing.T) {
	g := NewMockGenerator()
	req := Request{Kind: KindInvitation, Details: map[string]string{
		"bride": "Asha", "groom": "Vikram", "date": "5 December", "venue": "Jaipur", "dress": "ethnic",
	}}

	first, err := g.Generate(context.Background(), req)
	require.NoError(t, err)
	second, err := g.Generate(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, MockModelID, first.Model)
	assert.Contains(t, first.Text, "Asha & Vikram")
	assert.Contains(t, first.Text, "5 December at Jaipur")
	assert.Contains(t, first.Text, "dress: ethnic")

	_, err = g.Generate(context.Background(), Request{Kind: KindInvitation})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

type mockInvoker struct {
	mock.Mock
}

func (m *mockInvoker) InvokeModel(ctx context.Context, in *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	args := m.Called(ctx, in)
	if out := args.Get(0); out != nil {
		return out.(*bedrockruntime.InvokeModelOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestBedrockGenerator(t *testing.T) {
	invoker := new(mockInvoker)
	invoker.On("InvokeModel", mock.Anything, mock.MatchedBy(func(in *bedrockruntime.InvokeModelInput) bool {
		var body claudeRequest
		if err := json.Unmarshal(in.Body, &body); err != nil {
			return false
		}
		return *in.ModelId == "anthropic.test" &&
			body.AnthropicVersion == anthropicVersion &&
			body.MaxTokens == 256 &&
			len(body.Messages) == 1 &&
			body.Messages[0].Role == "user"
	})).Return(&bedrockruntime.InvokeModelOutput{
		Body: []byte(`{"content":[{"type":"text","text":"  Dear guests, join us.  "}],"stop_reason":"end_turn","usage":{"input_tokens":40,"output_tokens":8}}`),
	}, nil).Once()

	g := NewBedrockGenerator(invoker, "anthropic.test", 256, 0.5, observability.NewNoopLogger())
	content, err := g.Generate(context.Background(), Request{Kind: KindWelcome, Details: map[string]string{"bride": "Asha"}})
	require.NoError(t, err)

	assert.Equal(t, "Dear guests, join us.", content.Text)
	assert.Equal(t, 48, content.Tokens)
	assert.Equal(t, "anthropic.test", content.Model)
	invoker.AssertExpectations(t)
}

func TestBedrockGenerator_EmptyResponse(t *testing.T) {
	invoker := new(mockInvoker)
	invoker.On("InvokeModel", mock.Anything, mock.Anything).
		Return(&bedrockruntime.InvokeModelOutput{Body: []byte(`{"content":[]}`)}, nil)

	g := NewBedrockGenerator(invoker, "", 0, 0, observability.NewNoopLogger())
	_, err := g.Generate(context.Background(), Request{Kind: KindStory, Details: map[string]string{"bride": "Asha"}})
	assert.ErrorContains(t, err, "no text")
}

type flakyGenerator struct {
	failures int32
	calls    int32
}

func (f *flakyGenerator) Generate(ctx context.Context, req Request) (*Content, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if n <= atomic.LoadInt32(&f.failures) {
		return nil, errors.New("throttled")
	}
	return &Content{Kind: req.Kind, Text: "ok", Model: "flaky"}, nil
}

func newTestResilient(next Generator, retries uint64) *Resilient {
	r := NewResilient(next, time.Second, retries, observability.NewNoopLogger(), observability.NewNoopMetricsClient())
	r.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return r
}

func TestResilient_RetriesTransientFailures(t *testing.T) {
	next := &flakyGenerator{failures: 2}
	r := newTestResilient(next, 3)

	content, err := r.Generate(context.Background(), Request{Kind: KindWelcome, Details: map[string]string{"bride": "Asha"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", content.Text)
	assert.Equal(t, int32(3), atomic.LoadInt32(&next.calls))
}

func TestResilient_InvalidRequestIsNotRetried(t *testing.T) {
	next := &flakyGenerator{}
	r := newTestResilient(next, 3)

	_, err := r.Generate(context.Background(), Request{Kind: KindWelcome})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
	assert.Equal(t, int32(0), atomic.LoadInt32(&next.calls))
}

func TestResilient_BreakerOpens(t *testing.T) {
	next := &flakyGenerator{failures: 100}
	r := newTestResilient(next, 0)
	req := Request{Kind: KindWelcome, Details: map[string]string{"bride": "Asha"}}

	for i := 0; i < 3; i++ {
		_, err := r.Generate(context.Background(), req)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, r.State())

	_, err := r.Generate(context.Background(), req)
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(3), atomic.LoadInt32(&next.calls))
}

func TestNew_FallsBackToMock(t *testing.T) {
	g, err := New(context.Background(), config.AIConfig{Provider: "bedrock"}, observability.NewNoopLogger(), observability.NewNoopMetricsClient())
	require.NoError(t, err)
	assert.IsType(t, &MockGenerator{}, g)

	_, err = New(context.Background(), config.AIConfig{Provider: "openai", ModelID: "gpt"}, observability.NewNoopLogger(), observability.NewNoopMetricsClient())
	assert.Error(t, err)
}
