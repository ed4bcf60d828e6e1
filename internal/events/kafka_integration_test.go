//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"cdigit/internal/events"
	"cdigit/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	redpanda  *containers.RedpandaContainer
	publisher *events.KafkaPublisher
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
	p, err := events.NewKafkaPublisher(s.redpanda.Brokers, "test.workflow-events")
	s.Require().NoError(err)
	s.publisher = p

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(s.publisher.EnsureTopic(ctx, 1, 1))
	s.Require().NoError(s.publisher.EnsureTopic(ctx, 1, 1), "existing topic is not an error")
}

func (s *KafkaPublisherSuite) TearDownSuite() {
	s.publisher.Close()
}

func (s *KafkaPublisherSuite) TestPublishKeyedByVoucher() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sent := events.Event{
		ID:         "evt-1",
		Type:       events.TypeWorkflowApproved,
		VoucherID:  "V-42",
		Status:     "approved",
		OccurredAt: time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(s.publisher.Publish(ctx, sent))
	s.Require().NoError(s.publisher.Flush(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics("test.workflow-events"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	s.Require().Empty(fetches.Errors())
	records := fetches.Records()
	s.Require().NotEmpty(records)

	s.Equal("V-42", string(records[0].Key))
	var got events.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &got))
	s.Equal(sent.Type, got.Type)
	s.True(sent.OccurredAt.Equal(got.OccurredAt))
}
