package relayhook

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/segmentio/kafka-go"
)

// Publisher delivers one message to the broker. Publish must be
// synchronous: a nil error means the broker acknowledged the message.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

// KafkaWriter publishes with segmentio/kafka-go.
type KafkaWriter struct {
	writer *kafka.Writer
}

// NewKafkaWriter creates a synchronous writer acknowledged by all replicas.
func NewKafkaWriter(brokers []string, topic string) *KafkaWriter {
	return &KafkaWriter{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

// Publish implements Publisher.
func (w *KafkaWriter) Publish(ctx context.Context, key, value []byte) error {
	return w.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: value})
}

// Close implements Publisher.
func (w *KafkaWriter) Close() error { return w.writer.Close() }

// SaramaProducer publishes with an IBM/sarama SyncProducer.
type SaramaProducer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewSaramaProducer dials brokers with a WaitForAll sync producer.
func NewSaramaProducer(brokers []string, topic string) (*SaramaProducer, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Partitioner = sarama.NewHashPartitioner

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("relayhook: sarama producer: %w", err)
	}
	return NewSaramaProducerFrom(producer, topic), nil
}

// NewSaramaProducerFrom wraps an existing SyncProducer.
func NewSaramaProducerFrom(p sarama.SyncProducer, topic string) *SaramaProducer {
	return &SaramaProducer{producer: p, topic: topic}
}

// Publish implements Publisher.
func (p *SaramaProducer) Publish(_ context.Context, key, value []byte) error {
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(value),
	})
	return err
}

// Close implements Publisher.
func (p *SaramaProducer) Close() error { return p.producer.Close() }
