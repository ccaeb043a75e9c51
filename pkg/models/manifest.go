package models

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// ManifestFileName is the file each sensor directory must contain
const ManifestFileName = "sensor.yaml"

// SensorManifest represents the sensor.yaml structure for a sensor
type SensorManifest struct {
	ID          string          `yaml:"id" json:"id"`
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description"`
	Width       int             `yaml:"width" json:"width"`   // 0 keeps the uploaded frame width
	Height      int             `yaml:"height" json:"height"` // 0 keeps the uploaded frame height
	Grayscale   bool            `yaml:"grayscale" json:"grayscale"`
	Compression CompressionType `yaml:"compression" json:"compression"`

	// Runtime fields (not in manifest)
	DirectoryPath string `yaml:"-" json:"directoryPath"`
}

// Descriptor returns the observation descriptor the sensor produces for frames of
// its declared size.
func (m *SensorManifest) Descriptor() ObservationDescriptor {
	channels := 3
	if m.Grayscale {
		channels = 1
	}
	return ObservationDescriptor{
		CompressionType: m.Compression,
		Shape:           Shape{m.Height, m.Width, channels},
	}
}

// Info returns the public view of the manifest
func (m *SensorManifest) Info() SensorInfo {
	return SensorInfo{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Descriptor:  m.Descriptor(),
	}
}

// LoadManifest loads a sensor.yaml file from the given directory
func LoadManifest(sensorDir string) (*SensorManifest, error) {
	manifestPath := filepath.Join(sensorDir, ManifestFileName)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var manifest SensorManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest file: %w", err)
	}

	if manifest.ID == "" {
		return nil, fmt.Errorf("manifest %s has no id", manifestPath)
	}
	if manifest.Width < 0 || manifest.Height < 0 {
		return nil, fmt.Errorf("manifest %s has negative dimensions %dx%d", manifestPath, manifest.Width, manifest.Height)
	}
	if (manifest.Width == 0) != (manifest.Height == 0) {
		return nil, fmt.Errorf("manifest %s must declare both width and height or neither", manifestPath)
	}

	manifest.DirectoryPath = sensorDir
	return &manifest, nil
}

// SensorRegistry manages the collection of available sensors
type SensorRegistry struct {
	mu      sync.RWMutex
	sensors map[string]*SensorManifest
}

// NewSensorRegistry creates a new sensor registry
func NewSensorRegistry() *SensorRegistry {
	return &SensorRegistry{
		sensors: make(map[string]*SensorManifest),
	}
}

// LoadSensors scans the sensors directory and loads all manifests.
// Directories without a valid manifest are skipped and returned in skipped.
func (r *SensorRegistry) LoadSensors(sensorsDir string) (skipped map[string]error, err error) {
	// Structure: {sensorsDir}/{sensor_id}/sensor.yaml
	entries, err := os.ReadDir(sensorsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read sensors directory: %w", err)
	}

	loaded := make(map[string]*SensorManifest)
	skipped = make(map[string]error)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		manifest, err := LoadManifest(filepath.Join(sensorsDir, entry.Name()))
		if err != nil {
			skipped[entry.Name()] = err
			continue
		}
		loaded[manifest.ID] = manifest
	}

	r.mu.Lock()
	r.sensors = loaded
	r.mu.Unlock()

	return skipped, nil
}

// Register adds or replaces a single manifest
func (r *SensorRegistry) Register(m *SensorManifest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sensors[m.ID] = m
}

// GetSensor returns a sensor by ID
func (r *SensorRegistry) GetSensor(id string) (*SensorManifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sensor, exists := r.sensors[id]
	return sensor, exists
}

// GetAllSensors returns all loaded sensors
func (r *SensorRegistry) GetAllSensors() map[string]*SensorManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Return a copy to prevent external modification
	result := make(map[string]*SensorManifest, len(r.sensors))
	for k, v := range r.sensors {
		result[k] = v
	}
	return result
}

// GetSensorsList returns all sensor manifests ordered by ID
func (r *SensorRegistry) GetSensorsList() []*SensorManifest {
	r.mu.RLock()
	sensors := make([]*SensorManifest, 0, len(r.sensors))
	for _, sensor := range r.sensors {
		sensors = append(sensors, sensor)
	}
	r.mu.RUnlock()

	sort.Slice(sensors, func(i, j int) bool { return sensors[i].ID < sensors[j].ID })
	return sensors
}
