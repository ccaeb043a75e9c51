package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/koios/sensor-bridge/pkg/models"
)

// Handler produces a result for an observe request. On failure it may still
// return a result envelope, which is published so the agent is not left waiting.
type Handler interface {
	Handle(ctx context.Context, request *models.ObserveRequest) (*models.ObserveResult, error)
}

// Consumer reads observe requests from the stream and publishes their results
type Consumer struct {
	client  *Client
	handler Handler
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc

	// block is how long a stream read waits for new messages
	block time.Duration
	// minIdle is how long a delivered message stays unacknowledged before
	// it is reclaimed; reclaimEvery spaces out the reclaim passes
	minIdle      time.Duration
	reclaimEvery time.Duration
	lastReclaim  time.Time
}

// NewConsumer creates a new Redis consumer
func NewConsumer(client *Client, handler Handler, logger *zap.Logger) *Consumer {
	ctx, cancel := context.WithCancel(context.Background())

	return &Consumer{
		client:  client,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		block:   5 * time.Second,

		minIdle:      30 * time.Second,
		reclaimEvery: 30 * time.Second,
	}
}

// Start consumes observe requests until Stop is called
func (c *Consumer) Start() error {
	c.logger.Info("Starting Redis consumer for observe requests", zap.String("stream", StreamKey))

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Info("Redis consumer stopped")
			return nil
		default:
			if err := c.consumeMessages(); err != nil {
				c.logger.Error("Error consuming messages, will retry",
					zap.Error(err),
					zap.Duration("retry_delay", 5*time.Second))
				c.sleep(5 * time.Second)
			}
		}
	}
}

// Stop stops the consumer
func (c *Consumer) Stop() {
	c.logger.Info("Stopping Redis consumer")
	c.cancel()
}

func (c *Consumer) sleep(d time.Duration) {
	select {
	case <-c.ctx.Done():
	case <-time.After(d):
	}
}

func (c *Consumer) consumeMessages() error {
	for {
		select {
		case <-c.ctx.Done():
			return nil
		default:
		}

		if time.Since(c.lastReclaim) >= c.reclaimEvery {
			c.lastReclaim = time.Now()
			if _, err := c.reclaim(10); err != nil {
				c.logger.Warn("Failed to reclaim pending messages", zap.Error(err))
			}
		}

		if _, err := c.consumeOnce(10); err != nil {
			if c.ctx.Err() != nil {
				return nil
			}
			if !c.client.IsHealthy() {
				return fmt.Errorf("Redis connection unhealthy: %w", err)
			}
			c.logger.Error("Error reading from stream", zap.Error(err))
			c.sleep(time.Second)
		}
	}
}

// consumeOnce reads at most count messages and handles them in order
func (c *Consumer) consumeOnce(count int64) (int, error) {
	streams, err := c.client.ReadFromStream(c.ctx, count, c.block)
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, stream := range streams {
		for _, message := range stream.Messages {
			c.handleStreamMessage(message)
			handled++
		}
	}
	return handled, nil
}

// reclaim retries messages whose handling stalled or whose result could not
// be published, up to count at a time
func (c *Consumer) reclaim(count int64) (int, error) {
	messages, err := c.client.ClaimPending(c.ctx, c.minIdle, count)
	if err != nil {
		return 0, err
	}

	for _, message := range messages {
		c.logger.Info("Retrying pending observe request", zap.String("message_id", message.ID))
		c.handleStreamMessage(message)
	}
	return len(messages), nil
}

// handleStreamMessage processes a single Redis Stream message
func (c *Consumer) handleStreamMessage(msg redis.XMessage) {
	c.logger.Debug("Received observe request from stream",
		zap.String("message_id", msg.ID),
		zap.Int("fields_count", len(msg.Values)))

	payload, ok := msg.Values["payload"].(string)
	if !ok {
		c.logger.Error("Failed to extract payload from stream message",
			zap.String("message_id", msg.ID))
		// unreadable messages are acked so they are not redelivered
		_ = c.client.AcknowledgeMessage(c.ctx, msg.ID)
		return
	}

	var request models.ObserveRequest
	if err := json.Unmarshal([]byte(payload), &request); err != nil {
		c.logger.Error("Failed to unmarshal observe request",
			zap.Error(err),
			zap.String("message_id", msg.ID))
		_ = c.client.AcknowledgeMessage(c.ctx, msg.ID)
		return
	}

	result, err := c.handler.Handle(c.ctx, &request)
	if err != nil {
		c.logger.Error("Failed to handle observe request",
			zap.Error(err),
			zap.String("message_id", msg.ID),
			zap.String("sensor_id", request.SensorID),
			zap.String("agent_id", request.AgentID))

		if result == nil {
			result = &models.ObserveResult{
				Type:        models.ObserveResultType,
				UUID:        request.UUID,
				SensorID:    request.SensorID,
				AgentID:     request.AgentID,
				ProcessedAt: time.Now(),
			}
		}
	}

	if result.AgentID == "" {
		c.logger.Warn("Observe request has no agent, result dropped", zap.String("message_id", msg.ID))
		_ = c.client.AcknowledgeMessage(c.ctx, msg.ID)
		return
	}

	if err := c.client.PublishObserveResult(result); err != nil {
		c.logger.Error("Failed to publish observe result",
			zap.Error(err),
			zap.String("message_id", msg.ID),
			zap.String("agent_id", request.AgentID))
		// left pending for the next reclaim pass
		return
	}

	if err := c.client.AcknowledgeMessage(c.ctx, msg.ID); err != nil {
		c.logger.Error("Failed to acknowledge message",
			zap.Error(err),
			zap.String("message_id", msg.ID))
		return
	}

	c.logger.Debug("Message processed and acknowledged",
		zap.String("message_id", msg.ID),
		zap.String("sensor_id", request.SensorID),
		zap.String("agent_id", request.AgentID))
}
