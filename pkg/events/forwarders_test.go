package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/makemykankotri/kankotri/pkg/observability"
)

func TestRedisStreamForwarder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	bus := newTestBus()
	forwarder := NewRedisStreamForwarder(client, "kankotri:events", 100, observability.NewNoopLogger())
	forwarder.Attach(bus)

	bus.Emit(context.Background(), TemplatePublished, TemplatePayload{TemplateID: "t1", Slug: "royal"})

	entries, err := client.XRange(context.Background(), "kankotri:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	assert.Equal(t, TemplatePublished, entries[0].Values["event"])
	assert.JSONEq(t, `{"templateId":"t1","slug":"royal"}`, entries[0].Values["payload"].(string))
}

func TestRedisStreamForwarder_ErrorIsSwallowedByBus(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	bus := newTestBus()
	NewRedisStreamForwarder(client, "kankotri:events", 0, observability.NewNoopLogger()).Attach(bus)

	assert.Equal(t, 1, bus.Emit(context.Background(), TemplateViewed, nil))
}

type mockSQS struct {
	mock.Mock
}

func (m *mockSQS) SendMessage(ctx context.Context, input *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	args := m.Called(ctx, input)
	if out := args.Get(0); out != nil {
		return out.(*sqs.SendMessageOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestSQSForwarder(t *testing.T) {
	client := new(mockSQS)
	client.On("SendMessage", mock.Anything, mock.MatchedBy(func(in *sqs.SendMessageInput) bool {
		var e Event
		if err := json.Unmarshal([]byte(*in.MessageBody), &e); err != nil {
			return false
		}
		return *in.QueueUrl == "https://sqs.local/events" &&
			e.Name == InvitationPublished &&
			*in.MessageAttributes["event"].StringValue == InvitationPublished
	})).Return(&sqs.SendMessageOutput{}, nil).Once()

	bus := newTestBus()
	NewSQSForwarder(client, "https://sqs.local/events", observability.NewNoopLogger()).Attach(bus)

	bus.Emit(context.Background(), InvitationPublished, InvitationPayload{InvitationID: "i1"})
	client.AssertExpectations(t)
}

func TestSQSForwarder_Error(t *testing.T) {
	client := new(mockSQS)
	client.On("SendMessage", mock.Anything, mock.Anything).Return(nil, errors.New("throttled"))

	f := NewSQSForwarder(client, "q", observability.NewNoopLogger())
	err := f.Forward(context.Background(), Event{Name: TemplateUsed})
	assert.ErrorContains(t, err, "throttled")
}
