package handlers

import (
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/koios/sensor-bridge/internal/pixels"
	"github.com/koios/sensor-bridge/pkg/models"
)

// ValidationError represents a validation error for a specific field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResponse is returned with 400 when a request fails validation
type ValidationResponse struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// ObserveRequestBody is the JSON body of POST /sensors/{id}/observe.
// Compression is kept as a string so an unknown name becomes a field error
// instead of a decode failure.
type ObserveRequestBody struct {
	UUID        string  `json:"uuid"`
	AgentID     string  `json:"agent_id"`
	Image       string  `json:"image"`
	Grayscale   *bool   `json:"grayscale,omitempty"`
	Compression *string `json:"compression,omitempty"`
}

// Validator checks observe requests before they reach the processor
type Validator struct {
	logger *zap.Logger
}

// NewValidator creates a validator
func NewValidator(logger *zap.Logger) *Validator {
	return &Validator{logger: logger}
}

// ValidateObserveRequest validates body for the given sensor and returns the
// normalized request. The request is nil when there are validation errors.
func (v *Validator) ValidateObserveRequest(sensorID string, body *ObserveRequestBody) (*models.ObserveRequest, []ValidationError) {
	var errors []ValidationError

	if !isValidSensorID(sensorID) {
		errors = append(errors, ValidationError{
			Field:   "sensor_id",
			Message: fmt.Sprintf("Sensor ID '%s' is not valid", sensorID),
			Code:    "invalid_sensor_id",
		})
	}

	var image string
	if strings.TrimSpace(body.Image) == "" {
		errors = append(errors, ValidationError{
			Field:   "image",
			Message: "Field 'image' is required",
			Code:    "required",
		})
	} else if data, err := decodeBase64Payload(body.Image); err != nil {
		errors = append(errors, ValidationError{
			Field:   "image",
			Message: "Field 'image' must be a valid base64 encoded image",
			Code:    "invalid_base64",
		})
	} else if width, height, err := imageSize(data); err != nil {
		errors = append(errors, ValidationError{
			Field:   "image",
			Message: "Field 'image' is not a supported image format (png, webp, jpeg, gif)",
			Code:    "invalid_image",
		})
	} else if width <= 0 || height <= 0 {
		errors = append(errors, ValidationError{
			Field:   "image",
			Message: fmt.Sprintf("Image dimensions %dx%d must be positive", width, height),
			Code:    "invalid_dimension",
		})
	} else if width > pixels.MaxDimension || height > pixels.MaxDimension {
		errors = append(errors, ValidationError{
			Field:   "image",
			Message: fmt.Sprintf("Image dimensions %dx%d exceed %d pixels per side", width, height, pixels.MaxDimension),
			Code:    "image_too_large",
		})
	} else {
		image = base64.StdEncoding.EncodeToString(data)
	}

	var compression *models.CompressionType
	if body.Compression != nil {
		c, err := models.ParseCompressionType(*body.Compression)
		if err != nil {
			names := make([]string, len(models.CompressionTypes))
			for i, t := range models.CompressionTypes {
				names[i] = t.String()
			}
			errors = append(errors, ValidationError{
				Field:   "compression",
				Message: fmt.Sprintf("Field 'compression' must be one of: %s", strings.Join(names, ", ")),
				Code:    "invalid_option",
			})
		} else {
			compression = &c
		}
	}

	if len(errors) > 0 {
		v.logger.Debug("Observe request failed validation",
			zap.String("sensor_id", sensorID),
			zap.Int("error_count", len(errors)))
		return nil, errors
	}

	return &models.ObserveRequest{
		Type:        models.ObserveRequestType,
		UUID:        body.UUID,
		SensorID:    sensorID,
		AgentID:     body.AgentID,
		Image:       image,
		Grayscale:   body.Grayscale,
		Compression: compression,
	}, nil
}

func isValidSensorID(id string) bool {
	return id != "" && !strings.Contains(id, "..") && !strings.ContainsAny(id, "/\\")
}

// imageSize reads only the image header
func imageSize(data []byte) (int, int, error) {
	width, height, _, err := pixels.DecodeConfig(data)
	return width, height, err
}

func decodeBase64Payload(data string) ([]byte, error) {
	clean := sanitizeBase64Payload(data)
	if clean == "" {
		return nil, fmt.Errorf("empty payload")
	}
	if b, err := base64.StdEncoding.DecodeString(clean); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(clean)
}

func sanitizeBase64Payload(data string) string {
	trimmed := strings.TrimSpace(data)
	if trimmed == "" {
		return ""
	}
	if strings.HasPrefix(trimmed, "data:") {
		if idx := strings.Index(trimmed, ","); idx >= 0 {
			trimmed = trimmed[idx+1:]
		}
	}
	trimmed = strings.ReplaceAll(trimmed, "\n", "")
	trimmed = strings.ReplaceAll(trimmed, "\r", "")
	return trimmed
}
