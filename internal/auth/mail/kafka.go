package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/contacts/internal/auth/domain"
	"github.com/aussiebroadwan/contacts/pkg/slogx"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender publishes emails as JSON records for an external mailer to
// deliver. Records are keyed by recipient so one address stays on one
// partition.
type KafkaSender struct {
	w     messageWriter
	topic string
	log   *slog.Logger
}

func NewKafkaSender(brokers []string, topic string, logger *slog.Logger) (*KafkaSender, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("mail: at least one kafka broker is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("mail: kafka topic is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSender(w, topic, logger), nil
}

func newKafkaSender(w messageWriter, topic string, logger *slog.Logger) *KafkaSender {
	return &KafkaSender{
		w:     w,
		topic: topic,
		log:   logger.With(slog.String("component", "mail.kafka"), slog.String("topic", topic)),
	}
}

func (k *KafkaSender) Send(ctx context.Context, msg domain.EmailMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mail: marshal: %w", err)
	}

	record := kafka.Message{
		Key:   []byte(msg.To),
		Value: value,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(msg.Kind)},
		},
	}
	if err := k.w.WriteMessages(ctx, record); err != nil {
		k.log.Error("kafka write failed", slog.Any("error", err))
		return fmt.Errorf("mail: publish: %w", err)
	}
	k.log.Debug("email published", slog.String("kind", string(msg.Kind)), slogx.Email(msg.To))
	return nil
}

func (k *KafkaSender) Close() error { return k.w.Close() }
