package movement

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fekuna/omnipos-commerce-service/internal/model"
	"github.com/segmentio/kafka-go"
	"go.uber.org/multierr"
)

// Publisher journals stock movements produced by applied mutations.
type Publisher interface {
	Publish(ctx context.Context, movements []model.InventoryMovement) error
	Close() error
}

// kafkaMessageWriter abstracts kafka.Writer for tests.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes one message per movement keyed by owner and item, so
// all movements of an item land on the same partition in order.
type KafkaPublisher struct {
	writer kafkaMessageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

func NewKafkaPublisherWith(w kafkaMessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, movements []model.InventoryMovement) error {
	if len(movements) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, 0, len(movements))
	for i := range movements {
		b, err := json.Marshal(&movements[i])
		if err != nil {
			return fmt.Errorf("marshal movement: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(movements[i].OwnerID + ":" + movements[i].Item),
			Value: b,
		})
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write movements: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.writer.Close() }

// PublishFunc adapts a movement log such as the record store journal.
type PublishFunc func(ctx context.Context, movements []model.InventoryMovement) error

func (f PublishFunc) Publish(ctx context.Context, movements []model.InventoryMovement) error {
	return f(ctx, movements)
}

func (f PublishFunc) Close() error { return nil }

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, []model.InventoryMovement) error { return nil }
func (NopPublisher) Close() error                                             { return nil }

// Multi fans out to several publishers and reports every failure.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, movements []model.InventoryMovement) error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Publish(ctx, movements))
	}
	return err
}

func (m Multi) Close() error {
	var err error
	for _, p := range m {
		err = multierr.Append(err, p.Close())
	}
	return err
}
