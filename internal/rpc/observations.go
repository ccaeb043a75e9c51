// Package rpc converts agent protocol messages into batched training tensors and back.
package rpc

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/koios/sensor-bridge/internal/pixels"
	"github.com/koios/sensor-bridge/pkg/models"
)

var (
	// ErrObservation is returned when an observation does not match its expected shape or cannot be decoded.
	ErrObservation = errors.New("observation error")
	// ErrNaNOrInf is returned when rewards or vector observations contain NaN or infinite values.
	ErrNaNOrInf = errors.New("nan or inf")
)

const (
	// MaxObservationSize bounds the number of elements in one agent's observation.
	MaxObservationSize = 1 << 24
	// MaxBatchSize bounds the number of elements in one batched observation slot.
	MaxBatchSize = 1 << 25
)

// checkShape returns the element count of shape. Every dimension must be positive
// and the count must not exceed MaxObservationSize.
func checkShape(shape models.Shape) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("%w: observation has an empty shape", ErrObservation)
	}
	size := 1
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: observation shape %s has a non-positive dimension", ErrObservation, shape)
		}
		if size > MaxObservationSize/d {
			return 0, fmt.Errorf("%w: observation shape %s exceeds %d elements", ErrObservation, shape, MaxObservationSize)
		}
		size *= d
	}
	return size, nil
}

func checkBatch(n, size int, shape models.Shape) error {
	if n > MaxBatchSize/size {
		return fmt.Errorf("%w: %d agents of shape %s exceed %d batched elements", ErrObservation, n, shape, MaxBatchSize)
	}
	return nil
}

// ObservationToTensor converts one visual observation to a [height, width, channels]
// tensor. When expected is non-nil the observation must declare exactly that shape.
func ObservationToTensor(obs *models.Observation, expected models.Shape) (*pixels.Tensor, error) {
	if expected != nil && !obs.Shape.Equal(expected) {
		return nil, fmt.Errorf("%w: observation did not have the expected shape - got %s but expected %s",
			ErrObservation, obs.Shape, expected)
	}
	if !obs.Shape.IsVisual() {
		return nil, fmt.Errorf("%w: visual observation needs 3 dimensions, got %s", ErrObservation, obs.Shape)
	}
	if _, err := checkShape(obs.Shape); err != nil {
		return nil, err
	}

	if obs.CompressionType == models.CompressionNone {
		data := append([]float32(nil), obs.FloatData...)
		t, err := pixels.Reshape(data, obs.Shape...)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrObservation, err)
		}
		return t, nil
	}

	width, height, _, err := pixels.DecodeConfig(obs.CompressedData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrObservation, err)
	}
	if height != obs.Shape[0] || width != obs.Shape[1] {
		return nil, fmt.Errorf("%w: compressed observation is %dx%d but the shape declares %s",
			ErrObservation, width, height, obs.Shape)
	}

	grayscale := obs.Shape[2] == 1
	t, err := pixels.ProcessPixels(obs.CompressedData, grayscale)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrObservation, err)
	}
	if !models.Shape(t.Shape).Equal(obs.Shape) {
		return nil, fmt.Errorf("%w: decompressed observation did not have the expected shape - decompressed had %s but expected %s",
			ErrObservation, models.Shape(t.Shape), obs.Shape)
	}
	return t, nil
}

// ProcessVisualObservation batches the obsIndex-th observation of every agent into
// a [n_agents, height, width, channels] tensor. Every agent's observation is
// checked before the batch is allocated.
func ProcessVisualObservation(obsIndex int, shape models.Shape, infos []*models.AgentInfo) (*pixels.Tensor, error) {
	if !shape.IsVisual() {
		return nil, fmt.Errorf("%w: visual observation needs 3 dimensions, got %s", ErrObservation, shape)
	}
	size, err := checkShape(shape)
	if err != nil {
		return nil, err
	}
	if err := checkBatch(len(infos), size, shape); err != nil {
		return nil, err
	}

	tensors := make([]*pixels.Tensor, len(infos))
	for i, info := range infos {
		obs, err := observationAt(info, obsIndex)
		if err != nil {
			return nil, err
		}
		if tensors[i], err = ObservationToTensor(obs, shape); err != nil {
			return nil, err
		}
	}

	out := pixels.NewTensor(append([]int{len(infos)}, shape...)...)
	for i, t := range tensors {
		copy(out.Data[i*size:(i+1)*size], t.Data)
	}
	return out, nil
}

// ProcessVectorObservation batches the obsIndex-th observation of every agent into
// an n_agents x size matrix. It returns an empty matrix when there are no agents.
func ProcessVectorObservation(obsIndex int, shape models.Shape, infos []*models.AgentInfo) (*mat.Dense, error) {
	if len(infos) == 0 {
		return &mat.Dense{}, nil
	}
	size, err := checkShape(shape)
	if err != nil {
		return nil, err
	}
	if err := checkBatch(len(infos), size, shape); err != nil {
		return nil, err
	}

	for _, info := range infos {
		obs, err := observationAt(info, obsIndex)
		if err != nil {
			return nil, err
		}
		if len(obs.FloatData) != size {
			return nil, fmt.Errorf("%w: agent %d vector observation has %d values, expected %d",
				ErrObservation, info.ID, len(obs.FloatData), size)
		}
	}

	data := make([]float64, 0, len(infos)*size)
	for _, info := range infos {
		for _, v := range info.Observations[obsIndex].FloatData {
			data = append(data, float64(v))
		}
	}

	if err := raiseOnNaNAndInf(data, "observations"); err != nil {
		return nil, err
	}
	return mat.NewDense(len(infos), size, data), nil
}

func observationAt(info *models.AgentInfo, obsIndex int) (*models.Observation, error) {
	if obsIndex < 0 || obsIndex >= len(info.Observations) {
		return nil, fmt.Errorf("%w: agent %d has no observation at index %d", ErrObservation, info.ID, obsIndex)
	}
	return &info.Observations[obsIndex], nil
}

func raiseOnNaNAndInf(data []float64, field string) error {
	if len(data) == 0 {
		return nil
	}
	if floats.HasNaN(data) {
		return fmt.Errorf("%w: the %s provided had NaN values", ErrNaNOrInf, field)
	}
	if math.IsInf(floats.Max(data), 1) || math.IsInf(floats.Min(data), -1) {
		return fmt.Errorf("%w: the %s provided had infinite values", ErrNaNOrInf, field)
	}
	return nil
}
