package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaOptions struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaPublisher writes one message per intent, keyed by recipient so a
// patient's notices stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewKafkaPublisher(opts KafkaOptions, log *zap.Logger) (*KafkaPublisher, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: no brokers configured")
	}
	if opts.Topic == "" {
		return nil, fmt.Errorf("kafka publisher: topic is required")
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(opts.Brokers...),
		Topic:                  opts.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		WriteTimeout:           opts.WriteTimeout,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w, log: log}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, intents ...Intent) error {
	if len(intents) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(intents))
	for _, in := range intents {
		m, err := toMessage(in)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d intents: %w", len(msgs), err)
	}
	p.log.Debug("published notification intents", zap.Int("count", len(msgs)), zap.String("topic", p.writer.Topic))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func toMessage(in Intent) (kafka.Message, error) {
	value, err := json.Marshal(in)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode intent %s: %w", in.Kind, err)
	}
	return kafka.Message{
		Key:   []byte(in.Recipient.String()),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(in.Kind)},
		},
	}, nil
}
