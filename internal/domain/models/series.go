package models

import (
	"fmt"
	"sort"
	"time"
)

// Point is a single observation of a time series.
type Point struct {
	Timestamp time.Time `json:"ds"`
	Value     float64   `json:"y"`
}

// TimeSeries is an ordered sequence of observations with strictly increasing timestamps.
type TimeSeries struct {
	Points []Point `json:"points"`
}

// NewTimeSeries builds a series from parallel timestamp and value slices.
func NewTimeSeries(ts []time.Time, values []float64) (TimeSeries, error) {
	if len(ts) != len(values) {
		return TimeSeries{}, fmt.Errorf("%w: %d timestamps for %d values", ErrInvalidParameter, len(ts), len(values))
	}
	pts := make([]Point, len(values))
	for i := range values {
		pts[i] = Point{Timestamp: ts[i], Value: values[i]}
	}
	return TimeSeries{Points: pts}, nil
}

// RegularSeries builds a series from values spaced step apart starting at start.
func RegularSeries(start time.Time, step time.Duration, values []float64) TimeSeries {
	pts := make([]Point, len(values))
	for i, v := range values {
		pts[i] = Point{Timestamp: start.Add(time.Duration(i) * step), Value: v}
	}
	return TimeSeries{Points: pts}
}

func (s TimeSeries) Len() int { return len(s.Points) }

// Values returns a copy of the observation values.
func (s TimeSeries) Values() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Value
	}
	return out
}

// Timestamps returns a copy of the observation timestamps.
func (s TimeSeries) Timestamps() []time.Time {
	out := make([]time.Time, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Timestamp
	}
	return out
}

// Validate checks that timestamps are strictly increasing.
func (s TimeSeries) Validate() error {
	for i := 1; i < len(s.Points); i++ {
		if !s.Points[i].Timestamp.After(s.Points[i-1].Timestamp) {
			return fmt.Errorf("%w: timestamps not strictly increasing at index %d", ErrInvalidParameter, i)
		}
	}
	return nil
}

// Split cuts the series into a head and the trailing fraction frac.
func (s TimeSeries) Split(frac float64) (TimeSeries, TimeSeries, error) {
	if frac <= 0 || frac >= 1 {
		return TimeSeries{}, TimeSeries{}, fmt.Errorf("%w: validation split %.3f outside (0,1)", ErrInvalidParameter, frac)
	}
	n := len(s.Points)
	hold := int(float64(n)*frac + 0.5)
	if hold < 1 || n-hold < 2 {
		return TimeSeries{}, TimeSeries{}, fmt.Errorf("%w: %d points cannot be split by %.3f", ErrEmptyInput, n, frac)
	}
	return TimeSeries{Points: s.Points[:n-hold]}, TimeSeries{Points: s.Points[n-hold:]}, nil
}

// Step returns the median spacing between consecutive timestamps, or zero for fewer than two points.
func (s TimeSeries) Step() time.Duration {
	if len(s.Points) < 2 {
		return 0
	}
	deltas := make([]time.Duration, 0, len(s.Points)-1)
	for i := 1; i < len(s.Points); i++ {
		deltas = append(deltas, s.Points[i].Timestamp.Sub(s.Points[i-1].Timestamp))
	}
	sort.Slice(deltas, func(i, j int) bool { return deltas[i] < deltas[j] })
	return deltas[len(deltas)/2]
}

// Last returns the final observation and false when the series is empty.
func (s TimeSeries) Last() (Point, bool) {
	if len(s.Points) == 0 {
		return Point{}, false
	}
	return s.Points[len(s.Points)-1], true
}
