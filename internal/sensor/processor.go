package sensor

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/koios/sensor-bridge/internal/cache"
	"github.com/koios/sensor-bridge/internal/config"
	"github.com/koios/sensor-bridge/internal/pixels"
	"github.com/koios/sensor-bridge/internal/wire"
	"github.com/koios/sensor-bridge/pkg/models"
)

var (
	// ErrSensorNotFound is returned when a request names an unregistered sensor.
	ErrSensorNotFound = errors.New("sensor not found")
	// ErrInvalidRequest is returned for requests that can never succeed as sent.
	ErrInvalidRequest = errors.New("invalid observe request")
)

// anonymousAgent scopes cache entries of requests without an agent id
const anonymousAgent = "anonymous"

// Processor turns observe requests into encoded observations through the
// registered sensors
type Processor struct {
	config     *config.SensorConfig
	logger     *zap.Logger
	registry   *models.SensorRegistry
	redisCache *cache.RedisCache
	cacheTTL   time.Duration
	pool       *WorkerPool
}

// NewProcessor creates a processor without a cache
func NewProcessor(cfg *config.SensorConfig, logger *zap.Logger) *Processor {
	p := &Processor{
		config:   cfg,
		logger:   logger,
		registry: models.NewSensorRegistry(),
		cacheTTL: cfg.CacheExpiration(),
	}
	p.pool = NewWorkerPool(cfg.Workers, logger, p.observe, cfg.ObserveTimeout())

	if _, err := p.RefreshRegistry(); err != nil {
		logger.Error("Failed to load sensors", zap.Error(err))
	}
	return p
}

// NewProcessorWithRedis creates a processor that caches encoded observations in Redis
func NewProcessorWithRedis(cfg *config.SensorConfig, redisConfig *config.RedisConfig, logger *zap.Logger) *Processor {
	p := NewProcessor(cfg, logger)
	p.redisCache = cache.NewRedisCache(redisConfig)
	return p
}

// Start launches the worker pool. Until then Observe runs on the caller's goroutine.
func (p *Processor) Start() {
	p.pool.Start()
}

// Stop drains the worker pool
func (p *Processor) Stop() {
	p.pool.Stop()
}

// Observe produces the observation for a request
func (p *Processor) Observe(ctx context.Context, req *models.ObserveRequest) (*models.ObserveResult, error) {
	if p.pool.Running() {
		return p.pool.Submit(ctx, req)
	}
	return p.observe(ctx, req)
}

func (p *Processor) observe(ctx context.Context, req *models.ObserveRequest) (*models.ObserveResult, error) {
	// security: sensor ids map to directories
	if req.SensorID == "" || strings.Contains(req.SensorID, "..") || strings.Contains(req.SensorID, "/") {
		return nil, fmt.Errorf("%w: invalid sensor ID: %q", ErrInvalidRequest, req.SensorID)
	}

	manifest, exists := p.registry.GetSensor(req.SensorID)
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrSensorNotFound, req.SensorID)
	}

	raw, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: image is not valid base64: %v", ErrInvalidRequest, err)
	}

	grayscale := manifest.Grayscale
	if req.Grayscale != nil {
		grayscale = *req.Grayscale
	}
	compression := manifest.Compression
	if req.Compression != nil {
		compression = *req.Compression
	}

	agentID := req.AgentID
	if agentID == "" {
		agentID = anonymousAgent
	}

	var scoped *cache.ScopedCache
	sum := sha256.Sum256(raw)
	cacheKey := fmt.Sprintf("%s-%t-%d", hex.EncodeToString(sum[:]), grayscale, compression)
	if p.redisCache != nil {
		scoped = p.redisCache.WithContext(manifest.ID, agentID)
		if data, found, err := scoped.Get(ctx, cacheKey); err != nil {
			p.logger.Warn("Observation cache lookup failed", zap.String("sensor_id", manifest.ID), zap.Error(err))
		} else if found {
			obs, err := wire.UnmarshalObservation(data)
			if err == nil {
				p.logger.Debug("Observation served from cache",
					zap.String("sensor_id", manifest.ID),
					zap.String("agent_id", agentID))
				return p.newResult(req, obs, data), nil
			}
			p.logger.Warn("Dropping corrupt cache entry", zap.String("sensor_id", manifest.ID), zap.Error(err))
		}
	}

	img, format, err := pixels.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	if manifest.Width > 0 && manifest.Height > 0 {
		if img, err = pixels.Resize(img, manifest.Width, manifest.Height); err != nil {
			return nil, fmt.Errorf("failed to resize frame for sensor %s: %w", manifest.ID, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s := NewRenderTextureSensor(img, grayscale, manifest.ID, compression)
	obs, err := s.Observation()
	if err != nil {
		return nil, fmt.Errorf("sensor %s: %w", manifest.ID, err)
	}
	data := wire.MarshalObservation(obs)

	if scoped != nil {
		if err := scoped.Set(ctx, cacheKey, data, p.cacheTTL); err != nil {
			p.logger.Warn("Failed to cache observation", zap.String("sensor_id", manifest.ID), zap.Error(err))
		}
	}

	p.logger.Debug("Observation completed",
		zap.String("sensor_id", manifest.ID),
		zap.String("agent_id", agentID),
		zap.String("format", format),
		zap.Stringer("shape", obs.Shape),
		zap.Int("output_size", len(data)))

	return p.newResult(req, obs, data), nil
}

func (p *Processor) newResult(req *models.ObserveRequest, obs *models.Observation, data []byte) *models.ObserveResult {
	id := req.UUID
	if id == "" {
		id = uuid.NewString()
	}

	return &models.ObserveResult{
		Type:        models.ObserveResultType,
		UUID:        id,
		SensorID:    req.SensorID,
		AgentID:     req.AgentID,
		Compression: obs.CompressionType,
		Shape:       obs.Shape,
		Observation: base64.StdEncoding.EncodeToString(data),
		ProcessedAt: time.Now(),
	}
}

// ListSensors returns the public view of every registered sensor ordered by ID
func (p *Processor) ListSensors() []models.SensorInfo {
	manifests := p.registry.GetSensorsList()

	sensors := make([]models.SensorInfo, 0, len(manifests))
	for _, m := range manifests {
		sensors = append(sensors, m.Info())
	}
	return sensors
}

// Registry returns the sensor registry for HTTP endpoints
func (p *Processor) Registry() *models.SensorRegistry {
	return p.registry
}

// RefreshRegistry reloads every manifest from the sensors path and returns the
// number of sensors loaded
func (p *Processor) RefreshRegistry() (int, error) {
	skipped, err := p.registry.LoadSensors(p.config.SensorsPath)
	if err != nil {
		return 0, err
	}

	for dir, err := range skipped {
		p.logger.Warn("Skipping sensor directory", zap.String("dir", dir), zap.Error(err))
	}

	count := len(p.registry.GetAllSensors())
	p.logger.Info("Sensor registry loaded",
		zap.String("path", p.config.SensorsPath),
		zap.Int("sensors", count),
		zap.Int("skipped", len(skipped)))
	return count, nil
}

// Close stops the workers and closes any associated resources
func (p *Processor) Close() error {
	p.Stop()
	if p.redisCache != nil {
		return p.redisCache.Close()
	}
	return nil
}
