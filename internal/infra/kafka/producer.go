package kafka

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/tenant-access/internal/core/domain"
	"github.com/arklim/tenant-access/internal/core/port"
	"github.com/arklim/tenant-access/internal/infra/config"
)

const (
	headerTenant    = "tenant"
	headerEventName = "event_name"
)

// Producer delivers outbox envelopes through a Sarama SyncProducer.
// A message counts as delivered only once every in-sync replica acknowledged it.
type Producer struct {
	producer sarama.SyncProducer
	logger   *zap.Logger
	cfg      config.KafkaSettings
}

// NewProducer dials the configured brokers.
func NewProducer(cfg config.KafkaSettings, logger *zap.Logger) (*Producer, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	if cfg.ClientID != "" {
		saramaConfig.ClientID = cfg.ClientID
	}

	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true

	saramaConfig.Metadata.Retry.Max = 3
	saramaConfig.Metadata.Retry.Backoff = 250 * time.Millisecond

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	logger.Info("Kafka producer initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic_prefix", cfg.TopicPrefix),
	)

	return NewProducerWith(producer, cfg, logger), nil
}

// NewProducerWith wraps an existing SyncProducer.
func NewProducerWith(producer sarama.SyncProducer, cfg config.KafkaSettings, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{producer: producer, logger: logger, cfg: cfg}
}

// Publish sends the envelope keyed by its id so consumers can deduplicate redeliveries.
func (p *Producer) Publish(ctx context.Context, message domain.OutboxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: p.TopicName(message.EventName),
		Key:   sarama.StringEncoder(message.ID),
		Value: sarama.ByteEncoder(message.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerTenant), Value: []byte(message.Tenant.String())},
			{Key: []byte(headerEventName), Value: []byte(message.EventName)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("send %s to %s: %w", message.ID, msg.Topic, err)
	}

	p.logger.Debug("outbox message delivered",
		zap.String("id", message.ID),
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)
	return nil
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	p.logger.Info("Closing Kafka producer")
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

// TopicName returns the full topic name with prefix
func (p *Producer) TopicName(eventType string) string {
	if p.cfg.TopicPrefix == "" {
		return eventType
	}

	prefix := fmt.Sprintf("%s.", p.cfg.TopicPrefix)
	if strings.HasPrefix(eventType, prefix) {
		return eventType
	}

	return fmt.Sprintf("%s%s", prefix, eventType)
}

var _ port.OutboxChannel = (*Producer)(nil)
