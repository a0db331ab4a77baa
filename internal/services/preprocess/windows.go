package preprocess

import (
	"fmt"

	"ModelHub/internal/domain/models"
)

// Window is one supervised pair: X is a contiguous slice, Y the value after it.
type Window struct {
	X []float64
	Y float64
}

// MakeWindows slides a window of the given length over series and returns len(series)-window pairs.
func MakeWindows(series []float64, window int) ([]Window, error) {
	if window < 1 || window >= len(series) {
		return nil, fmt.Errorf("%w: window %d for series of length %d", models.ErrInvalidWindow, window, len(series))
	}
	out := make([]Window, 0, len(series)-window)
	for i := 0; i+window < len(series); i++ {
		x := make([]float64, window)
		copy(x, series[i:i+window])
		out = append(out, Window{X: x, Y: series[i+window]})
	}
	return out, nil
}

// Preparer turns raw series into scaled supervised windows for sequence models.
// It is stateless: every call fits a fresh ScalerState.
type Preparer struct{}

// Prepare fits a scaler on series, scales it and windows the result.
func (Preparer) Prepare(series []float64, window int) (*ScalerState, []Window, error) {
	sc, err := FitScaleFor(series, window)
	if err != nil {
		return nil, nil, err
	}
	ws, err := MakeWindows(sc.Transform(series), window)
	if err != nil {
		return nil, nil, err
	}
	return sc, ws, nil
}

// Rewindow scales series with an existing scaler and windows it, used for held-out evaluation.
func (Preparer) Rewindow(sc *ScalerState, series []float64, window int) ([]Window, error) {
	return MakeWindows(sc.Transform(series), window)
}
