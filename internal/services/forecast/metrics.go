package forecast

import (
	"fmt"
	"math"

	"ModelHub/internal/domain/models"

	"gonum.org/v1/gonum/floats"
)

// Score computes RMSE, MAE and MAPE of predicted against actual.
// MAPE only counts points whose actual value is non-zero and is nil when there are none.
func Score(actual, predicted []float64) (*models.EvaluationMetrics, error) {
	if len(actual) != len(predicted) {
		return nil, fmt.Errorf("%w: %d actual vs %d predicted", models.ErrAlignment, len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return nil, fmt.Errorf("%w: nothing to score", models.ErrEmptyInput)
	}
	for i, p := range predicted {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("%w: non-finite prediction at index %d", models.ErrConvergence, i)
		}
	}

	n := float64(len(actual))
	m := &models.EvaluationMetrics{
		RMSE:   floats.Distance(actual, predicted, 2) / math.Sqrt(n),
		MAE:    floats.Distance(actual, predicted, 1) / n,
		Points: len(actual),
	}

	var sum float64
	var counted int
	for i, a := range actual {
		if a == 0 {
			continue
		}
		sum += math.Abs((a - predicted[i]) / a)
		counted++
	}
	if counted > 0 {
		mape := sum / float64(counted) * 100
		m.MAPE = &mape
	}
	return m, nil
}
