package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/koios/sensor-bridge/internal/pixels"
	"github.com/koios/sensor-bridge/internal/rpc"
	"github.com/koios/sensor-bridge/internal/sensor"
	"github.com/koios/sensor-bridge/internal/wire"
	"github.com/koios/sensor-bridge/pkg/models"
)

// SensorHandler handles HTTP requests for sensors and observations
type SensorHandler struct {
	processor *sensor.Processor
	validator *Validator
	logger    *zap.Logger
}

// NewSensorHandler creates a new sensor handler
func NewSensorHandler(processor *sensor.Processor, logger *zap.Logger) *SensorHandler {
	return &SensorHandler{
		processor: processor,
		validator: NewValidator(logger),
		logger:    logger,
	}
}

// RegisterRoutes registers the sensor routes
func (h *SensorHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/sensors", h.handleSensors)
	mux.HandleFunc("/sensors/refresh", h.handleSensorsRefresh)
	mux.HandleFunc("/sensors/", h.handleSensorDetails)
	mux.HandleFunc("/steps/decode", h.handleDecodeStep)
}

// handleHealth handles GET /health
func (h *SensorHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "sensor-bridge",
		"version": "1.0.0",
	})
}

// handleSensors handles GET /sensors - returns all registered sensors
func (h *SensorHandler) handleSensors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sensors := h.processor.ListSensors()
	if err := writeJSON(w, http.StatusOK, sensors); err != nil {
		h.logger.Error("Failed to encode sensors response", zap.Error(err))
		return
	}

	h.logger.Debug("Served sensors list", zap.Int("count", len(sensors)))
}

// handleSensorsRefresh handles POST /sensors/refresh - reloads the registry
func (h *SensorHandler) handleSensorsRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.logger.Info("Refreshing sensor registry...")

	count, err := h.processor.RefreshRegistry()
	if err != nil {
		h.logger.Error("Failed to refresh sensor registry", zap.Error(err))
		http.Error(w, "Failed to refresh sensors", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "success",
		"message":      "Sensor registry refreshed successfully",
		"sensor_count": count,
	})
}

// SensorDetails is the response of GET /sensors/{id}
type SensorDetails struct {
	*models.SensorManifest
	Descriptor models.ObservationDescriptor `json:"descriptor"`
}

// handleSensorDetails handles:
// - GET /sensors/{id}
// - POST /sensors/{id}/observe
func (h *SensorHandler) handleSensorDetails(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/sensors/")
	pathParts := strings.Split(path, "/")

	if len(pathParts) == 0 || pathParts[0] == "" {
		http.Error(w, "Sensor ID required", http.StatusBadRequest)
		return
	}

	sensorID := pathParts[0]
	manifest, exists := h.processor.Registry().GetSensor(sensorID)
	if !exists {
		http.Error(w, "Sensor not found", http.StatusNotFound)
		return
	}

	if len(pathParts) > 1 {
		if pathParts[1] == "observe" && len(pathParts) == 2 {
			if r.Method != http.MethodPost {
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
				return
			}
			h.handleObserve(w, r, sensorID)
			return
		}
		http.Error(w, "Endpoint not found", http.StatusNotFound)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	details := SensorDetails{SensorManifest: manifest, Descriptor: manifest.Descriptor()}
	if err := writeJSON(w, http.StatusOK, details); err != nil {
		h.logger.Error("Failed to encode sensor response", zap.Error(err))
		return
	}

	h.logger.Debug("Served sensor details", zap.String("sensor_id", sensorID))
}

// handleObserve handles POST /sensors/{id}/observe
func (h *SensorHandler) handleObserve(w http.ResponseWriter, r *http.Request, sensorID string) {
	var body ObserveRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.logger.Debug("Failed to decode observe request",
			zap.String("sensor_id", sensorID),
			zap.Error(err))
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	request, validationErrors := h.validator.ValidateObserveRequest(sensorID, &body)
	if len(validationErrors) > 0 {
		writeJSON(w, http.StatusBadRequest, ValidationResponse{Valid: false, Errors: validationErrors})
		return
	}

	result, err := h.processor.Observe(r.Context(), request)
	if err != nil {
		h.logger.Error("Observe request failed",
			zap.String("sensor_id", sensorID),
			zap.String("agent_id", request.AgentID),
			zap.Error(err))
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	if err := writeJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to encode observe response", zap.Error(err))
		return
	}

	h.logger.Debug("Served observation",
		zap.String("sensor_id", sensorID),
		zap.String("agent_id", request.AgentID),
		zap.String("uuid", result.UUID))
}

// DecodeStepRequest carries base64 encoded BrainParametersProto and AgentInfoProto messages
type DecodeStepRequest struct {
	BrainParameters string   `json:"brain_parameters"`
	AgentInfos      []string `json:"agent_infos"`
}

// DecodeStepResponse summarizes a batched step
type DecodeStepResponse struct {
	BrainName         string         `json:"brain_name"`
	ActionType        string         `json:"action_type"`
	ActionShape       []int          `json:"action_shape"`
	ObservationShapes []models.Shape `json:"observation_shapes"`
	BatchShapes       [][]int        `json:"batch_shapes"`
	AgentID           []int32        `json:"agent_id"`
	Reward            []float32      `json:"reward"`
	Done              []bool         `json:"done"`
	MaxStep           []bool         `json:"max_step"`
	ActionMask        [][][]bool     `json:"action_mask,omitempty"`
}

// handleDecodeStep handles POST /steps/decode - batches encoded agent infos
func (h *SensorHandler) handleDecodeStep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var request DecodeStepRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	params, err := base64.StdEncoding.DecodeString(request.BrainParameters)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ValidationResponse{Errors: []ValidationError{{
			Field:   "brain_parameters",
			Message: "Field 'brain_parameters' must be base64",
			Code:    "invalid_base64",
		}}})
		return
	}

	infos := make([][]byte, len(request.AgentInfos))
	for i, s := range request.AgentInfos {
		if infos[i], err = base64.StdEncoding.DecodeString(s); err != nil {
			writeJSON(w, http.StatusBadRequest, ValidationResponse{Errors: []ValidationError{{
				Field:   "agent_infos",
				Message: "Field 'agent_infos' must contain base64 messages",
				Code:    "invalid_base64",
			}}})
			return
		}
	}

	step, err := rpc.DecodeStep(params, infos)
	if err != nil {
		h.logger.Warn("Failed to decode step", zap.Int("agents", len(infos)), zap.Error(err))
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	result := step.Result
	response := DecodeStepResponse{
		BrainName:         step.Brain.BrainName,
		ActionType:        step.Spec.ActionType.String(),
		ActionShape:       step.Spec.ActionShape,
		ObservationShapes: step.Spec.ObservationShapes,
		AgentID:           result.AgentID,
		Reward:            result.Reward,
		Done:              result.Done,
		MaxStep:           result.MaxStep,
		ActionMask:        result.ActionMask,
	}
	for _, batch := range result.Obs {
		if batch.Visual != nil {
			response.BatchShapes = append(response.BatchShapes, batch.Visual.Shape)
			continue
		}
		rows, cols := batch.Vector.Dims()
		response.BatchShapes = append(response.BatchShapes, []int{rows, cols})
	}

	writeJSON(w, http.StatusOK, response)
}

// statusForError maps processing errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, sensor.ErrInvalidRequest),
		errors.Is(err, sensor.ErrInvalidDimension),
		errors.Is(err, pixels.ErrImageTooLarge),
		errors.Is(err, wire.ErrMalformed):
		return http.StatusBadRequest
	case errors.Is(err, sensor.ErrSensorNotFound):
		return http.StatusNotFound
	case errors.Is(err, rpc.ErrObservation),
		errors.Is(err, rpc.ErrNaNOrInf),
		errors.Is(err, rpc.ErrActionSpec),
		errors.Is(err, sensor.ErrUnsupportedCompression):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
