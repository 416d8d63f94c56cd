//go:build integration

package kafka_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/config"
	"github.com/mindhelpbyus/ataraxia-next-sub003/internal/platform/kafka"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/outbox"
	auditpostgres "github.com/mindhelpbyus/ataraxia-next-sub003/pkg/platform/audit/store/postgres"
	"github.com/mindhelpbyus/ataraxia-next-sub003/pkg/testutil/containers"
)

type RelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	cfg      config.KafkaConfig
	client   *kgo.Client
	store    *auditpostgres.Store
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	ctx := context.Background()
	s.postgres = containers.GetManager().GetPostgres(s.T())
	broker := containers.GetManager().GetRedpanda(s.T())
	s.store = auditpostgres.New(s.postgres.DB)

	s.cfg = config.KafkaConfig{
		Brokers:              broker.Brokers,
		AuditTopic:           fmt.Sprintf("compliance-%d", time.Now().UnixNano()),
		BackgroundCheckTopic: fmt.Sprintf("bgcheck-%d", time.Now().UnixNano()),
		TopicPartitions:      1,
		ReplicationFactor:    1,
	}
	var err error
	s.client, err = kafka.NewClient(ctx, s.cfg)
	s.Require().NoError(err)
	s.Require().NotNil(s.client)
	s.Require().NoError(kafka.EnsureTopics(ctx, s.client, s.cfg))
}

func (s *RelaySuite) TearDownSuite() {
	if s.client != nil {
		s.client.Close()
	}
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "audit_outbox", "compliance_audit_log"))
}

func (s *RelaySuite) TestEnsureTopicsIsIdempotent() {
	s.NoError(kafka.EnsureTopics(context.Background(), s.client, s.cfg))
}

func (s *RelaySuite) TestRelayPublishesQueuedEntries() {
	ctx := context.Background()
	for _, resourceID := range []string{"identity-1", "identity-2", "identity-3"} {
		s.Require().NoError(s.store.AppendCompliance(ctx, &audit.ComplianceEntry{
			Action:          audit.ComplianceIdentityActivated,
			ResourceType:    audit.ResourceIdentity,
			ResourceID:      resourceID,
			ComplianceLevel: audit.LevelPII,
			CreatedAt:       time.Now().UTC(),
		}))
	}

	relay := outbox.NewRelay(s.store, kafka.NewProducer(s.client, s.cfg.AuditTopic), outbox.WithBatchSize(10))
	n, err := relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Equal(3, n)

	pending, err := s.store.FetchPending(ctx, 10)
	s.Require().NoError(err)
	s.Empty(pending)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.cfg.Brokers...),
		kgo.ConsumeTopics(s.cfg.AuditTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var keys []string
	for len(keys) < 3 && pollCtx.Err() == nil {
		fetches := consumer.PollFetches(pollCtx)
		fetches.EachRecord(func(rec *kgo.Record) {
			var payload outbox.Payload
			s.Require().NoError(json.Unmarshal(rec.Value, &payload))
			s.Equal(string(rec.Key), payload.ResourceID)
			s.NotZero(payload.ID)
			keys = append(keys, string(rec.Key))
		})
	}
	s.ElementsMatch([]string{"identity-1", "identity-2", "identity-3"}, keys)
}
