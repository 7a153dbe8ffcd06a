package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"chain-of-agents-be/internal/dto"
	"chain-of-agents-be/internal/pkg/logger"
	"chain-of-agents-be/pkg/coa"
	"chain-of-agents-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingEventPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingEventPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingEventPublisher) snapshot() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func TestConsumerService_CachesAndForwards(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	defer pubSub.Close()

	answers := newFakeCache()
	bus := &recordingEventPublisher{}
	consumer := NewConsumerService(pubSub, "chain.run.finished", answers, bus, logger.NewNopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, consumer.Consume(ctx))

	publisher := NewPublisherService("chain.run.finished", pubSub)

	done := dto.RunFinishedMessage{RunId: uuid.New(), State: string(coa.StateDone), Answer: "yes", CacheKey: "key-1", TotalChunks: 3}
	failed := dto.RunFinishedMessage{RunId: uuid.New(), State: string(coa.StateFailed), Error: "backend down", CacheKey: "key-2"}
	for _, msg := range []dto.RunFinishedMessage{done, failed} {
		payload, err := json.Marshal(msg)
		require.NoError(t, err)
		require.NoError(t, publisher.Publish(ctx, payload))
	}

	require.Eventually(t, func() bool { return len(bus.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)

	byType := map[string]events.Event{}
	for _, e := range bus.snapshot() {
		byType[e.EventType()] = e
	}
	require.Contains(t, byType, events.RunCompleted)
	require.Contains(t, byType, events.RunFailed)
	assert.Equal(t, 3, byType[events.RunCompleted].Payload()["total_chunks"])
	assert.Equal(t, "backend down", byType[events.RunFailed].Payload()["error"])

	answer, ok, err := answers.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "yes", answer)

	_, ok, _ = answers.Get(ctx, "key-2")
	assert.False(t, ok, "failed runs are not cached")
}
