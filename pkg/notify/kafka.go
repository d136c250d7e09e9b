package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaNotifier publishes messages for an external mail relay to deliver.
type KafkaNotifier struct {
	writer *kafka.Writer
	from   string
}

func NewKafkaNotifier(brokers []string, topic, from string) *KafkaNotifier {
	return &KafkaNotifier{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 50 * time.Millisecond,
		},
		from: from,
	}
}

type outboundMail struct {
	From     string    `json:"from"`
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	QueuedAt time.Time `json:"queued_at"`
}

func (n *KafkaNotifier) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(outboundMail{
		From:     n.from,
		To:       msg.To,
		Subject:  msg.Subject,
		Body:     msg.Body,
		QueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encoding mail: %w", err)
	}

	// Keyed by recipient so one inbox's mail stays ordered on a partition.
	if err := n.writer.WriteMessages(ctx, kafka.Message{Key: []byte(msg.To), Value: payload}); err != nil {
		return fmt.Errorf("publishing mail: %w", err)
	}
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
