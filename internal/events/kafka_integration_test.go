//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"kindergarten/internal/events"
	"kindergarten/pkg/testutil/containers"
)

func TestKafkaSinkProducesEvents(t *testing.T) {
	broker := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topic := "kindergarten.events." + uuid.NewString()[:8]
	sink, err := events.NewKafkaSink(broker.Brokers, topic)
	require.NoError(t, err)
	defer func() { _ = sink.Close(context.Background()) }()

	require.NoError(t, sink.EnsureTopic(ctx, 1, 1))
	require.NoError(t, sink.EnsureTopic(ctx, 1, 1))

	publisher := events.NewPublisher(sink, events.WithAsync(8))
	publisher.Emit(ctx, events.Event{Type: events.TypeChildRegistered, GardenName: "Sunflower", ChildID: "c1"})
	require.NoError(t, publisher.Close(ctx))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	fetches := consumer.PollFetches(ctx)
	require.Empty(t, fetches.Errors())
	records := fetches.Records()
	require.Len(t, records, 1)
	require.Equal(t, "Sunflower", string(records[0].Key))

	var got events.Event
	require.NoError(t, json.Unmarshal(records[0].Value, &got))
	require.Equal(t, events.TypeChildRegistered, got.Type)
	require.Equal(t, "c1", got.ChildID)
}
