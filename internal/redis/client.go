package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/koios/sensor-bridge/internal/config"
	"github.com/koios/sensor-bridge/pkg/models"
)

// StreamKey is the stream observe requests are read from
const StreamKey = "sensors:observe_requests"

// Client wraps the Redis client for stream and pub/sub operations
type Client struct {
	client *redis.Client
	config config.RedisConfig
	logger *zap.Logger
	ctx    context.Context
}

// NewClient creates a new Redis client
func NewClient(cfg config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewClientFromRedis(rdb, cfg, logger), nil
}

// NewClientFromRedis wraps an existing connection and ensures the consumer group exists
func NewClientFromRedis(rdb *redis.Client, cfg config.RedisConfig, logger *zap.Logger) *Client {
	if cfg.ConsumerName == "" {
		cfg.ConsumerName = consumerName()
	}

	client := &Client{
		client: rdb,
		config: cfg,
		logger: logger,
		ctx:    context.Background(),
	}

	logger.Info("Connected to Redis",
		zap.String("addr", rdb.Options().Addr),
		zap.String("consumer_group", cfg.ConsumerGroup),
		zap.String("consumer_name", cfg.ConsumerName))

	if err := client.initializeConsumerGroup(); err != nil {
		logger.Warn("Failed to initialize consumer group", zap.Error(err))
	}

	return client
}

func consumerName() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d", hostname, time.Now().UnixNano())
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// ConsumerName is the name this client reads the stream as
func (c *Client) ConsumerName() string {
	return c.config.ConsumerName
}

// ResultChannel is the pub/sub channel results for an agent are published on
func ResultChannel(agentID string) string {
	return "agent:" + agentID
}

// PublishObserveResult publishes an observe result to the agent's channel
func (c *Client) PublishObserveResult(result *models.ObserveResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal observe result: %w", err)
	}

	channel := ResultChannel(result.AgentID)
	if err := c.client.Publish(c.ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis channel %s: %w", channel, err)
	}

	c.logger.Debug("Published observe result",
		zap.String("channel", channel),
		zap.String("agent_id", result.AgentID),
		zap.String("sensor_id", result.SensorID),
		zap.String("uuid", result.UUID))

	return nil
}

// initializeConsumerGroup creates the consumer group for the observe requests stream.
// Starting at "0" delivers requests queued before the group existed.
func (c *Client) initializeConsumerGroup() error {
	err := c.client.XGroupCreateMkStream(c.ctx, StreamKey, c.config.ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("Consumer group initialized",
		zap.String("stream", StreamKey),
		zap.String("group", c.config.ConsumerGroup))

	return nil
}

// ReadFromStream reads new messages from the observe requests stream for this consumer
func (c *Client) ReadFromStream(ctx context.Context, count int64, block time.Duration) ([]redis.XStream, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.config.ConsumerGroup,
		Consumer: c.config.ConsumerName,
		Streams:  []string{StreamKey, ">"},
		Count:    count,
		Block:    block,
	}).Result()

	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	return streams, nil
}

// ClaimPending takes over messages of the consumer group that were delivered
// but not acknowledged for at least minIdle, including this consumer's own.
func (c *Client) ClaimPending(ctx context.Context, minIdle time.Duration, count int64) ([]redis.XMessage, error) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    c.config.ConsumerGroup,
		Consumer: c.config.ConsumerName,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    count,
	}).Result()

	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to claim pending messages: %w", err)
	}

	return messages, nil
}

// AcknowledgeMessage acknowledges a message from the stream
func (c *Client) AcknowledgeMessage(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, StreamKey, c.config.ConsumerGroup, messageID).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge message %s: %w", messageID, err)
	}
	return nil
}

// IsHealthy checks if Redis connection is healthy
func (c *Client) IsHealthy() bool {
	return c.client.Ping(c.ctx).Err() == nil
}
