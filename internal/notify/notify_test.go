package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func sampleIntent() Intent {
	return Intent{
		Recipient: uuid.New(),
		Kind:      KindCancelledDueToLeave,
		Payload: map[string]any{
			"appointmentId": uuid.NewString(),
			"doctorName":    "Dr. Rao",
			"date":          "2025-07-15",
		},
	}
}

func TestRecorderFailsWholeBatch(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	r.FailWith(errors.New("broker down"))
	assert.Error(t, r.Publish(ctx, sampleIntent(), sampleIntent()))
	assert.Empty(t, r.Intents())

	r.FailWith(nil)
	require.NoError(t, r.Publish(ctx, sampleIntent(), sampleIntent()))
	assert.Len(t, r.Intents(), 2)
}

func TestLogPublisherWritesOneEntryPerIntent(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	in := sampleIntent()
	require.NoError(t, p.Publish(context.Background(), in, sampleIntent()))

	entries := logs.FilterMessage("notification intent").All()
	require.Len(t, entries, 2)
	assert.Equal(t, in.Recipient.String(), entries[0].ContextMap()["recipient"])
	assert.Equal(t, KindCancelledDueToLeave, entries[0].ContextMap()["kind"])
}

func TestKafkaMessageKeyedByRecipient(t *testing.T) {
	in := sampleIntent()
	m, err := toMessage(in)
	require.NoError(t, err)

	assert.Equal(t, in.Recipient.String(), string(m.Key))
	require.Len(t, m.Headers, 1)
	assert.Equal(t, KindCancelledDueToLeave, string(m.Headers[0].Value))

	var decoded Intent
	require.NoError(t, json.Unmarshal(m.Value, &decoded))
	assert.Equal(t, in.Recipient, decoded.Recipient)
	assert.Equal(t, "Dr. Rao", decoded.Payload["doctorName"])
}

func TestNewKafkaPublisherRequiresBrokers(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaOptions{Topic: "t"}, zap.NewNop())
	assert.Error(t, err)

	p, err := NewKafkaPublisher(KafkaOptions{Brokers: []string{"localhost:9092"}, Topic: "notifications"}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
