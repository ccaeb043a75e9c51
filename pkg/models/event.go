package models

import "time"

const (
	ObserveRequestType = "observe_request"
	ObserveResultType  = "observe_result"
)

// ObserveRequest asks for an observation of an uploaded frame through a registered sensor
type ObserveRequest struct {
	Type     string `json:"type"`
	UUID     string `json:"uuid"`
	SensorID string `json:"sensor_id"`
	AgentID  string `json:"agent_id"`
	Image    string `json:"image"` // base64 encoded PNG, WebP, JPEG or GIF

	// Optional overrides of the sensor manifest
	Grayscale   *bool            `json:"grayscale,omitempty"`
	Compression *CompressionType `json:"compression,omitempty"`
}

// ObserveResult carries an encoded observation back to the requesting agent
type ObserveResult struct {
	Type        string          `json:"type"`
	UUID        string          `json:"uuid"`
	SensorID    string          `json:"sensor_id"`
	AgentID     string          `json:"agent_id"`
	Compression CompressionType `json:"compression"`
	Shape       Shape           `json:"shape"`
	Observation string          `json:"observation"` // base64 encoded ObservationProto
	ProcessedAt time.Time       `json:"processed_at"`
}

// SensorInfo is the public view of a registered sensor
type SensorInfo struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Descriptor  ObservationDescriptor `json:"descriptor"`
}
