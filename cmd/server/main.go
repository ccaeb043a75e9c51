package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/koios/sensor-bridge/internal/config"
	"github.com/koios/sensor-bridge/internal/handlers"
	"github.com/koios/sensor-bridge/internal/redis"
)

func newLogger(level string) (*zap.Logger, error) {
	if level == "debug" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventHandler := handlers.NewEventHandler(logger, cfg)
	processor := eventHandler.GetProcessor()
	processor.Start()

	// Stream consumer; the HTTP API keeps serving when Redis is down
	var consumer *redis.Consumer
	redisClient, err := redis.NewClient(cfg.Redis, logger)
	if err != nil {
		logger.Warn("Redis unavailable, stream consumer disabled", zap.Error(err))
	} else {
		consumer = redis.NewConsumer(redisClient, eventHandler, logger)
		go func() {
			if err := consumer.Start(); err != nil {
				logger.Error("Redis consumer failed", zap.Error(err))
			}
		}()
	}

	mux := http.NewServeMux()
	sensorHandler := handlers.NewSensorHandler(processor, logger)
	sensorHandler.RegisterRoutes(mux)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	logger.Info("Server started",
		zap.Int("port", cfg.Server.Port),
		zap.String("sensors_path", cfg.Sensor.SensorsPath),
		zap.Int("workers", cfg.Sensor.Workers),
		zap.Bool("stream_consumer", consumer != nil))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", zap.Error(err))
	}

	if consumer != nil {
		consumer.Stop()
		if err := redisClient.Close(); err != nil {
			logger.Warn("Failed to close Redis client", zap.Error(err))
		}
	}

	// Drains the worker pool and closes the observation cache
	if err := processor.Close(); err != nil {
		logger.Warn("Failed to close processor", zap.Error(err))
	}

	logger.Info("Server shutdown complete")
}
