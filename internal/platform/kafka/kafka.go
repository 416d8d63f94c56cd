// Package kafka builds the franz-go client used to fan out compliance audit entries.
package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/config"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/outbox"
)

// NewClient connects to the configured brokers with the audit topic as the default
// produce target. Returns nil when no brokers are configured.
func NewClient(ctx context.Context, cfg config.KafkaConfig) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.AuditTopic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression(), kgo.NoCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping kafka: %w", err)
	}
	return client, nil
}

// EnsureTopics creates the audit and background check topics when missing.
func EnsureTopics(ctx context.Context, client *kgo.Client, cfg config.KafkaConfig) error {
	adm := kadm.NewClient(client)
	topics := []string{cfg.AuditTopic}
	if cfg.BackgroundCheckTopic != "" {
		topics = append(topics, cfg.BackgroundCheckTopic)
	}
	resps, err := adm.CreateTopics(ctx, cfg.TopicPartitions, cfg.ReplicationFactor, nil, topics...)
	if err != nil {
		return fmt.Errorf("create topics: %w", err)
	}
	for _, resp := range resps.Sorted() {
		if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", resp.Topic, resp.Err)
		}
	}
	return nil
}

// Producer publishes outbox messages synchronously.
type Producer struct {
	client *kgo.Client
	topic  string
}

// NewProducer wraps client for the given topic.
func NewProducer(client *kgo.Client, topic string) *Producer {
	return &Producer{client: client, topic: topic}
}

// Publish produces msgs keyed by resource id and waits for every acknowledgement.
func (p *Producer) Publish(ctx context.Context, msgs []outbox.Message) error {
	records := make([]*kgo.Record, len(msgs))
	for i, m := range msgs {
		records[i] = &kgo.Record{
			Topic: p.topic,
			Key:   []byte(m.Key),
			Value: m.Payload,
		}
	}
	return p.client.ProduceSync(ctx, records...).FirstErr()
}
