package service

import (
	"context"
	"encoding/json"
	"time"

	"chain-of-agents-be/internal/dto"
	"chain-of-agents-be/internal/pkg/logger"
	"chain-of-agents-be/pkg/cache"
	"chain-of-agents-be/pkg/coa"
	"chain-of-agents-be/pkg/events"

	"github.com/ThreeDotsLabs/watermill/message"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService handles finished runs off the request path: it caches
// successful answers and forwards the outcome to the external event bus.
type consumerService struct {
	subscriber     message.Subscriber
	topicName      string
	answerCache    cache.AnswerCache
	eventPublisher events.Publisher
	logger         logger.ILogger
}

func NewConsumerService(
	subscriber message.Subscriber,
	topicName string,
	answerCache cache.AnswerCache,
	eventPublisher events.Publisher,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		subscriber:     subscriber,
		topicName:      topicName,
		answerCache:    answerCache,
		eventPublisher: eventPublisher,
		logger:         log,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.subscriber.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.RunFinishedMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("CONSUMER", "Failed to unmarshal run message", map[string]interface{}{"error": err.Error()})
		msg.Ack() // invalid messages are never retried
		return
	}

	if payload.State == string(coa.StateDone) && payload.CacheKey != "" {
		if err := cs.answerCache.Set(ctx, payload.CacheKey, payload.Answer); err != nil {
			cs.logger.Warn("CONSUMER", "Failed to cache answer", map[string]interface{}{
				"run_id": payload.RunId.String(),
				"error":  err.Error(),
			})
		}
	}

	if cs.eventPublisher != nil {
		if err := cs.eventPublisher.Publish(ctx, runEvent(payload)); err != nil {
			cs.logger.Warn("CONSUMER", "Failed to publish run event", map[string]interface{}{
				"run_id": payload.RunId.String(),
				"error":  err.Error(),
			})
		}
	}

	msg.Ack()
}

func runEvent(payload dto.RunFinishedMessage) events.Event {
	eventType := events.RunCompleted
	if payload.State != string(coa.StateDone) {
		eventType = events.RunFailed
	}

	data := map[string]interface{}{
		"run_id":       payload.RunId.String(),
		"query":        payload.Query,
		"total_chunks": payload.TotalChunks,
		"total_pages":  payload.TotalPages,
		"duration_ms":  payload.DurationMs,
	}
	if payload.Error != "" {
		data["error"] = payload.Error
	}

	occurredAt := payload.FinishedAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return events.BaseEvent{Type: eventType, Data: data, OccurredAt: occurredAt}
}
