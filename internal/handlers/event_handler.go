package handlers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/koios/sensor-bridge/internal/config"
	"github.com/koios/sensor-bridge/internal/sensor"
	"github.com/koios/sensor-bridge/pkg/models"
)

type EventHandler struct {
	processor *sensor.Processor
	logger    *zap.Logger
	config    *config.Config
}

// NewEventHandler creates a new event handler
func NewEventHandler(logger *zap.Logger, cfg *config.Config) *EventHandler {
	var processor *sensor.Processor

	// Check if Redis is configured
	if cfg.Redis.Addr != "" {
		logger.Info("Initializing sensor processor with Redis cache",
			zap.String("redis_addr", cfg.Redis.Addr),
			zap.Int("redis_db", cfg.Redis.DB))
		processor = sensor.NewProcessorWithRedis(&cfg.Sensor, &cfg.Redis, logger)
	} else {
		logger.Info("Initializing sensor processor without cache")
		processor = sensor.NewProcessor(&cfg.Sensor, logger)
	}

	return NewEventHandlerWithProcessor(processor, logger, cfg)
}

// NewEventHandlerWithProcessor creates an event handler around an existing processor
func NewEventHandlerWithProcessor(processor *sensor.Processor, logger *zap.Logger, cfg *config.Config) *EventHandler {
	return &EventHandler{
		processor: processor,
		logger:    logger,
		config:    cfg,
	}
}

// Handle processes an observe request event. On failure it still returns a
// result envelope without an observation so the agent is not left waiting.
func (h *EventHandler) Handle(ctx context.Context, request *models.ObserveRequest) (*models.ObserveResult, error) {
	h.logger.Info("Processing observe request",
		zap.String("sensor_id", request.SensorID),
		zap.String("agent_id", request.AgentID),
		zap.String("type", request.Type))

	if request.Type != models.ObserveRequestType {
		h.logger.Error("Invalid request type", zap.String("type", request.Type))
		return nil, fmt.Errorf("invalid request type: %s", request.Type)
	}

	if request.SensorID == "" {
		h.logger.Error("Missing sensor_id")
		return nil, fmt.Errorf("sensor_id is required")
	}

	if request.AgentID == "" {
		h.logger.Error("Missing agent_id")
		return nil, fmt.Errorf("agent_id is required")
	}

	result, err := h.processor.Observe(ctx, request)
	if err != nil {
		h.logger.Error("Observe request failed",
			zap.Error(err),
			zap.String("sensor_id", request.SensorID),
			zap.String("agent_id", request.AgentID))

		return &models.ObserveResult{
			Type:        models.ObserveResultType,
			UUID:        request.UUID,
			SensorID:    request.SensorID,
			AgentID:     request.AgentID,
			ProcessedAt: time.Now(),
		}, err
	}

	h.logger.Info("Observe request completed successfully",
		zap.String("sensor_id", request.SensorID),
		zap.String("agent_id", request.AgentID),
		zap.Stringer("shape", result.Shape))

	return result, nil
}

// GetProcessor returns the sensor processor for HTTP handlers
func (h *EventHandler) GetProcessor() *sensor.Processor {
	return h.processor
}
