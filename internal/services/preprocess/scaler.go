package preprocess

import (
	"fmt"
	"math"

	"ModelHub/internal/domain/models"

	"gonum.org/v1/gonum/floats"
)

// ScalerState is a fitted min-max transform. Each training request owns its own instance.
type ScalerState struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// FitScale computes the min-max range of series.
func FitScale(series []float64) (*ScalerState, error) {
	if len(series) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 points to fit a scale, got %d", models.ErrEmptyInput, len(series))
	}
	for i, v := range series {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite value at index %d", models.ErrInvalidParameter, i)
		}
	}
	return &ScalerState{Min: floats.Min(series), Max: floats.Max(series)}, nil
}

// FitScaleFor is FitScale that also rejects a horizon or window longer than the series.
func FitScaleFor(series []float64, horizon int) (*ScalerState, error) {
	if horizon > len(series) {
		return nil, fmt.Errorf("%w: horizon %d exceeds series length %d", models.ErrEmptyInput, horizon, len(series))
	}
	return FitScale(series)
}

// scale is the divisor; a flat series uses 1 so the transform stays invertible.
func (s *ScalerState) scale() float64 {
	if r := s.Max - s.Min; r > 0 {
		return r
	}
	return 1
}

// Transform maps values into [0,1] relative to the fitted range.
func (s *ScalerState) Transform(values []float64) []float64 {
	out := make([]float64, len(values))
	sc := s.scale()
	for i, v := range values {
		out[i] = (v - s.Min) / sc
	}
	return out
}

// Inverse maps normalised values back into the original units.
func (s *ScalerState) Inverse(values []float64) []float64 {
	out := make([]float64, len(values))
	sc := s.scale()
	for i, v := range values {
		out[i] = v*sc + s.Min
	}
	return out
}

// InverseOne is Inverse for a single value.
func (s *ScalerState) InverseOne(v float64) float64 { return v*s.scale() + s.Min }
