package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"ModelHub/internal/domain/models"

	"github.com/sartorproj/goarima/arima"
	"github.com/sartorproj/goarima/sarima"
	"github.com/sartorproj/goarima/timeseries"
)

// seriesModel is the part of goarima's ARIMA and SARIMA models the trainer drives.
type seriesModel interface {
	Fit(series *timeseries.Series) error
	Predict(steps int) ([]float64, error)
}

// arimaTrainer fits ARIMA(p,d,q) and, when seasonal is set, SARIMA(p,d,q)(P,D,Q,s).
type arimaTrainer struct {
	seasonal bool
	// newModel builds an unfitted model. Nil uses goarima.
	newModel func(models.Order, models.SeasonalOrder) seriesModel
}

// arimaModel is the fitted state. Only the orders and the training values are
// saved; restore refits them.
type arimaModel struct {
	Order    models.Order         `json:"order"`
	Seasonal models.SeasonalOrder `json:"seasonal"`
	Values   []float64            `json:"values"`

	mu    sync.Mutex
	model seriesModel
}

func (t *arimaTrainer) orders(p models.FamilyParams) (models.Order, models.SeasonalOrder, error) {
	switch v := p.(type) {
	case models.ARIMAParams:
		if !t.seasonal {
			return v.OrderOrDefault(), models.SeasonalOrder{}, nil
		}
	case models.SARIMAParams:
		if t.seasonal {
			return v.OrderOrDefault(), v.SeasonalOrDefault(), nil
		}
	}
	return models.Order{}, models.SeasonalOrder{}, fmt.Errorf("%w: unexpected parameters %T", models.ErrInvalidParameter, p)
}

func (t *arimaTrainer) build(order models.Order, seasonal models.SeasonalOrder) seriesModel {
	if t.newModel != nil {
		return t.newModel(order, seasonal)
	}
	if t.seasonal && seasonal.P+seasonal.D+seasonal.Q > 0 {
		return sarima.New(order.P, order.D, order.Q, seasonal.P, seasonal.D, seasonal.Q, seasonal.Period)
	}
	return arima.New(order.P, order.D, order.Q)
}

// checkLength rejects series too short to difference and still leave enough
// observations for every coefficient.
func checkLength(n int, order models.Order, seasonal models.SeasonalOrder) error {
	lost := order.D + seasonal.D*seasonal.Period
	if n <= lost {
		return fmt.Errorf("%w: %d points cannot be differenced by order %s%s", models.ErrEmptyInput, n, order, seasonal)
	}
	start := order.P + seasonal.P*seasonal.Period
	coeffs := order.P + order.Q + seasonal.P + seasonal.Q
	if n-lost-start < coeffs+3 {
		return fmt.Errorf("%w: %d points are too few for order %s%s", models.ErrEmptyInput, n, order, seasonal)
	}
	return nil
}

func (t *arimaTrainer) fit(ctx context.Context, params models.FamilyParams, train models.TimeSeries) (predictor, error) {
	order, seasonal, err := t.orders(params)
	if err != nil {
		return nil, err
	}
	values := train.Values()
	if err := checkLength(len(values), order, seasonal); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m := &arimaModel{Order: order, Seasonal: seasonal, Values: values}
	if err := m.refit(t); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// refit fits a fresh model on m.Values and checks that it forecasts finite values.
func (m *arimaModel) refit(t *arimaTrainer) error {
	model := t.build(m.Order, m.Seasonal)
	if err := model.Fit(timeseries.New(append([]float64(nil), m.Values...))); err != nil {
		return fmt.Errorf("%w: fit %s%s: %v", models.ErrConvergence, m.Order, m.Seasonal, err)
	}
	m.model = model
	if _, err := m.project(1); err != nil {
		return err
	}
	return nil
}

// project forecasts h steps past the training data.
func (m *arimaModel) project(h int) ([]float64, error) {
	m.mu.Lock()
	out, err := m.model.Predict(h)
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: predict: %v", models.ErrConvergence, err)
	}
	if len(out) != h {
		return nil, fmt.Errorf("%w: model returned %d values for %d steps", models.ErrAlignment, len(out), h)
	}
	for i, v := range out {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: non-finite forecast at step %d", models.ErrConvergence, i+1)
		}
	}
	return out, nil
}

func (m *arimaModel) backtest(ctx context.Context, heldOut models.TimeSeries) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.project(heldOut.Len())
}

func (m *arimaModel) forecast(ctx context.Context, at []time.Time) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.project(len(at))
}

func (t *arimaTrainer) restore(params models.FamilyParams, state []byte) (predictor, error) {
	order, seasonal, err := t.orders(params)
	if err != nil {
		return nil, err
	}
	var m arimaModel
	if err := json.Unmarshal(state, &m); err != nil {
		return nil, fmt.Errorf("%w: arima state: %v", models.ErrInvalidParameter, err)
	}
	if m.Order != order || m.Seasonal != seasonal {
		return nil, fmt.Errorf("%w: saved order %s%s does not match parameters", models.ErrInvalidParameter, m.Order, m.Seasonal)
	}
	if err := checkLength(len(m.Values), order, seasonal); err != nil {
		return nil, fmt.Errorf("%w: arima state: %v", models.ErrInvalidParameter, err)
	}
	if err := m.refit(t); err != nil {
		return nil, err
	}
	return &m, nil
}
