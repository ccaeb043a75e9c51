package handlers

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/koios/sensor-bridge/internal/config"
	"github.com/koios/sensor-bridge/internal/sensor"
	"github.com/koios/sensor-bridge/pkg/models"
)

func setupEventHandler(t *testing.T) *EventHandler {
	t.Helper()
	return NewEventHandlerWithProcessor(setupTestProcessor(t), zap.NewNop(), &config.Config{})
}

func TestEventHandle(t *testing.T) {
	h := setupEventHandler(t)

	result, err := h.Handle(context.Background(), &models.ObserveRequest{
		Type:     models.ObserveRequestType,
		UUID:     "evt-1",
		SensorID: "front-camera",
		AgentID:  "agent-1",
		Image:    testImage(t, 24, 16),
	})
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if result.Type != models.ObserveResultType || result.UUID != "evt-1" {
		t.Errorf("unexpected envelope: %+v", result)
	}
	if result.Observation == "" {
		t.Error("Expected an observation payload")
	}
	if !result.Shape.Equal(models.Shape{16, 24, 1}) {
		t.Errorf("Expected shape (16, 24, 1), got %s", result.Shape)
	}
}

func TestEventHandle_Invalid(t *testing.T) {
	h := setupEventHandler(t)

	tests := []struct {
		name    string
		request models.ObserveRequest
	}{
		{"wrong type", models.ObserveRequest{Type: "render_request", SensorID: "front-camera", AgentID: "a"}},
		{"missing sensor", models.ObserveRequest{Type: models.ObserveRequestType, AgentID: "a"}},
		{"missing agent", models.ObserveRequest{Type: models.ObserveRequestType, SensorID: "front-camera"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.Handle(context.Background(), &tt.request)
			if err == nil {
				t.Fatal("Expected error")
			}
			if result != nil {
				t.Errorf("Expected nil result, got %+v", result)
			}
		})
	}
}

func TestEventHandle_FailureEnvelope(t *testing.T) {
	h := setupEventHandler(t)

	result, err := h.Handle(context.Background(), &models.ObserveRequest{
		Type:     models.ObserveRequestType,
		UUID:     "evt-2",
		SensorID: "missing",
		AgentID:  "agent-1",
		Image:    testImage(t, 2, 2),
	})
	if !errors.Is(err, sensor.ErrSensorNotFound) {
		t.Fatalf("Expected ErrSensorNotFound, got %v", err)
	}
	if result == nil || result.UUID != "evt-2" || result.AgentID != "agent-1" {
		t.Fatalf("Expected failure envelope, got %+v", result)
	}
	if result.Observation != "" {
		t.Error("Failure envelope must not carry an observation")
	}
}

func TestNewEventHandler_WithoutRedis(t *testing.T) {
	cfg := &config.Config{Sensor: config.SensorConfig{SensorsPath: t.TempDir(), Workers: 1, Timeout: 1}}
	h := NewEventHandler(zap.NewNop(), cfg)
	if h.GetProcessor() == nil {
		t.Fatal("Expected processor")
	}
	if n := len(h.GetProcessor().ListSensors()); n != 0 {
		t.Errorf("Expected no sensors, got %d", n)
	}
}
