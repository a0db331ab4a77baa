package forecast

import (
	"context"
	"fmt"
	"time"

	"ModelHub/internal/domain/models"
)

// predictor is the family-native half of a fitted model.
type predictor interface {
	// backtest returns exactly one prediction per held-out point.
	backtest(ctx context.Context, heldOut models.TimeSeries) ([]float64, error)
	// forecast predicts the values at timestamps that follow the training window.
	forecast(ctx context.Context, at []time.Time) ([]float64, error)
}

// familyTrainer fits one family and rebuilds its predictors from saved state.
type familyTrainer interface {
	fit(ctx context.Context, params models.FamilyParams, train models.TimeSeries) (predictor, error)
	restore(params models.FamilyParams, state []byte) (predictor, error)
}

// FittedModel is the opaque result of a successful Train call.
type FittedModel struct {
	family   models.Family
	params   models.FamilyParams
	lastSeen time.Time
	step     time.Duration
	trainLen int
	pred     predictor
}

// Family reports which model family produced m.
func (m *FittedModel) Family() models.Family { return m.family }

// Params returns the family parameters m was trained with, defaults applied.
func (m *FittedModel) Params() models.FamilyParams { return m.params }

// TrainedThrough is the timestamp of the last training observation.
func (m *FittedModel) TrainedThrough() time.Time { return m.lastSeen }

// Step is the sampling interval inferred from the training data.
func (m *FittedModel) Step() time.Duration { return m.step }

// Forecast predicts h points past the training window without retraining.
func (m *FittedModel) Forecast(ctx context.Context, h int) ([]models.Point, error) {
	if h < 1 {
		return nil, fmt.Errorf("%w: horizon must be >= 1, got %d", models.ErrInvalidParameter, h)
	}
	at := make([]time.Time, h)
	for i := range at {
		at[i] = m.lastSeen.Add(time.Duration(i+1) * m.step)
	}
	values, err := m.pred.forecast(ctx, at)
	if err != nil {
		return nil, err
	}
	pts := make([]models.Point, h)
	for i := range pts {
		pts[i] = models.Point{Timestamp: at[i], Value: values[i]}
	}
	return pts, nil
}

// Engine dispatches training to the registered family trainer. It holds no
// mutable state after construction and is safe for concurrent use.
type Engine struct {
	trainers map[models.Family]familyTrainer
}

// NewEngine creates an Engine with a trainer for every supported family.
func NewEngine() *Engine {
	return &Engine{trainers: newTrainers()}
}

func newTrainers() map[models.Family]familyTrainer {
	return map[models.Family]familyTrainer{
		models.FamilyARIMA:    &arimaTrainer{},
		models.FamilySARIMA:   &arimaTrainer{seasonal: true},
		models.FamilyProphet:  prophetTrainer{},
		models.FamilySequence: sequenceTrainer{},
	}
}

func (e *Engine) trainer(f models.Family) (familyTrainer, error) {
	t, ok := e.trainers[f]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedFamily, f)
	}
	return t, nil
}

// Train fits the family named by req. Unknown families are rejected before any data is read.
func (e *Engine) Train(ctx context.Context, req *models.TrainingRequest) (*FittedModel, error) {
	if err := req.CheckFamily(); err != nil {
		return nil, err
	}
	t, err := e.trainer(req.Family)
	if err != nil {
		return nil, err
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Train.Len() < 2 {
		return nil, fmt.Errorf("%w: %d training points", models.ErrEmptyInput, req.Train.Len())
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pred, err := t.fit(ctx, req.Params, req.Train)
	if err != nil {
		return nil, fmt.Errorf("train %s: %w", req.Family, err)
	}
	last, _ := req.Train.Last()
	return &FittedModel{
		family:   req.Family,
		params:   req.Params,
		lastSeen: last.Timestamp,
		step:     req.Train.Step(),
		trainLen: req.Train.Len(),
		pred:     pred,
	}, nil
}

// Predict returns the model's prediction for every held-out point.
func (e *Engine) Predict(ctx context.Context, m *FittedModel, heldOut models.TimeSeries) ([]float64, error) {
	if m == nil || m.pred == nil {
		return nil, fmt.Errorf("%w: nil model", models.ErrInvalidParameter)
	}
	if heldOut.Len() == 0 {
		return nil, fmt.Errorf("%w: held-out series is empty", models.ErrEmptyInput)
	}
	if err := heldOut.Validate(); err != nil {
		return nil, fmt.Errorf("held-out data: %w", err)
	}
	predicted, err := m.pred.backtest(ctx, heldOut)
	if err != nil {
		return nil, fmt.Errorf("evaluate %s: %w", m.family, err)
	}
	if len(predicted) != heldOut.Len() {
		return nil, fmt.Errorf("%w: %s produced %d predictions for %d held-out points",
			models.ErrAlignment, m.family, len(predicted), heldOut.Len())
	}
	return predicted, nil
}

// Evaluate scores m against heldOut in original units.
func (e *Engine) Evaluate(ctx context.Context, m *FittedModel, heldOut models.TimeSeries) (*models.EvaluationMetrics, error) {
	predicted, err := e.Predict(ctx, m, heldOut)
	if err != nil {
		return nil, err
	}
	return Score(heldOut.Values(), predicted)
}
