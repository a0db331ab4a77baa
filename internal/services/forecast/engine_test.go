package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"ModelHub/internal/domain/models"

	"github.com/sartorproj/goarima/timeseries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func series(values []float64, step time.Duration) models.TimeSeries {
	return models.RegularSeries(epoch, step, values)
}

func monthly(values []float64) models.TimeSeries { return series(values, 30*24*time.Hour) }

func split(s models.TimeSeries, hold int) (models.TimeSeries, models.TimeSeries) {
	n := s.Len()
	return models.TimeSeries{Points: s.Points[:n-hold]}, models.TimeSeries{Points: s.Points[n-hold:]}
}

func seasonalSeries(n int, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for t := range out {
		out[t] = 50 + 0.5*float64(t) + 5*math.Sin(2*math.Pi*float64(t)/12) + rng.NormFloat64()*0.2
	}
	return out
}

func smallSequence(seed int64) models.SequenceParams {
	return models.SequenceParams{
		Window: 4, Epochs: 5, Seed: seed, Units: 6, Dropout: 0.2,
		BatchSize: 32, LearningRate: 0.01, Activation: "tanh",
	}
}

func TestScoreMAPEExcludesZeroActuals(t *testing.T) {
	m, err := Score([]float64{0, 2, 4}, []float64{0, 2, 6})
	require.NoError(t, err)
	require.NotNil(t, m.MAPE)
	assert.InDelta(t, 25.0, *m.MAPE, 1e-9)
	assert.Equal(t, 3, m.Points)
}

func TestScoreRMSEAndMAE(t *testing.T) {
	m, err := Score([]float64{1, 2, 3}, []float64{1, 2, 5})
	require.NoError(t, err)
	assert.InDelta(t, 0.667, m.MAE, 1e-3)
	assert.InDelta(t, 1.155, m.RMSE, 1e-3)
}

func TestScoreMAPEUndefinedForZeroActuals(t *testing.T) {
	m, err := Score([]float64{0, 0}, []float64{1, -1})
	require.NoError(t, err)
	assert.Nil(t, m.MAPE)
	assert.False(t, m.MAPEDefined())
	assert.NotContains(t, m.Map(), "mape")
	assert.InDelta(t, 1.0, m.RMSE, 1e-12)
}

func TestScoreErrors(t *testing.T) {
	_, err := Score([]float64{1, 2}, []float64{1})
	assert.ErrorIs(t, err, models.ErrAlignment)
	_, err = Score(nil, nil)
	assert.ErrorIs(t, err, models.ErrEmptyInput)
	_, err = Score([]float64{1}, []float64{math.NaN()})
	assert.ErrorIs(t, err, models.ErrConvergence)
}

func TestTrainRejectsUnknownFamilyBeforeData(t *testing.T) {
	e := NewEngine()
	// the data is deliberately invalid; the family check must win
	bad := models.TimeSeries{Points: []models.Point{{Timestamp: epoch.Add(time.Hour)}, {Timestamp: epoch}}}
	_, err := e.Train(context.Background(), &models.TrainingRequest{Family: "xgboost", Train: bad})
	assert.ErrorIs(t, err, models.ErrUnsupportedFamily)

	_, err = models.ParseFamily("xgboost")
	assert.ErrorIs(t, err, models.ErrUnsupportedFamily)
}

func TestTrainRejectsMismatchedParams(t *testing.T) {
	e := NewEngine()
	_, err := e.Train(context.Background(), &models.TrainingRequest{
		Family: models.FamilyARIMA,
		Params: models.SARIMAParams{},
		Train:  monthly(seasonalSeries(40, 1)),
	})
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	_, err = models.DecodeParams(models.FamilyARIMA, json.RawMessage(`{"order":[1,1,1],"seasonal_order":[1,1,1,12]}`))
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestProphetRejectsUnknownSeasonalityMode(t *testing.T) {
	_, err := models.DecodeParams(models.FamilyProphet, json.RawMessage(`{"seasonality_mode":"logistic"}`))
	assert.ErrorIs(t, err, models.ErrInvalidParameter)

	e := NewEngine()
	p, err := models.DefaultParams(models.FamilyProphet)
	require.NoError(t, err)
	pp := p.(models.ProphetParams)
	pp.SeasonalityMode = "seasonal"
	_, err = e.Train(context.Background(), &models.TrainingRequest{
		Family: models.FamilyProphet, Params: pp, Train: series([]float64{1, 2, 3}, 24*time.Hour),
	})
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}

func TestSARIMAFallsBackToDefaultSeasonalOrder(t *testing.T) {
	e := NewEngine()
	full := monthly(seasonalSeries(84, 7))
	train, held := split(full, 12)

	params, err := models.DecodeParams(models.FamilySARIMA, nil)
	require.NoError(t, err)
	m, err := e.Train(context.Background(), &models.TrainingRequest{Family: models.FamilySARIMA, Params: params, Train: train})
	require.NoError(t, err)

	am := m.pred.(*arimaModel)
	assert.Equal(t, models.DefaultSeasonalOrder, am.Seasonal)
	assert.Equal(t, models.DefaultOrder, am.Order)

	predicted, err := e.Predict(context.Background(), m, held)
	require.NoError(t, err)
	assert.Len(t, predicted, held.Len())

	metrics, err := e.Evaluate(context.Background(), m, held)
	require.NoError(t, err)
	assert.Less(t, metrics.RMSE, 2.0)
	require.NotNil(t, metrics.MAPE)
}

func TestARIMAOneStepFollowsAutoregression(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	values := make([]float64, 300)
	for i := 1; i < len(values); i++ {
		values[i] = 0.7*values[i-1] + rng.NormFloat64()
	}
	order := models.Order{P: 1, D: 0, Q: 0}
	e := NewEngine()
	m, err := e.Train(context.Background(), &models.TrainingRequest{
		Family: models.FamilyARIMA,
		Params: models.ARIMAParams{Order: &order},
		Train:  series(values, time.Hour),
	})
	require.NoError(t, err)

	pts, err := m.Forecast(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, pts, 5)
	assert.True(t, pts[0].Timestamp.Equal(epoch.Add(300*time.Hour)))
	last := values[len(values)-1]
	assert.InDelta(t, 0.7*last, pts[0].Value, 0.12*math.Abs(last)+0.3)
}

func TestARIMANeedsEnoughPoints(t *testing.T) {
	e := NewEngine()
	params, err := models.DefaultParams(models.FamilySARIMA)
	require.NoError(t, err)
	_, err = e.Train(context.Background(), &models.TrainingRequest{
		Family: models.FamilySARIMA, Params: params, Train: monthly(seasonalSeries(20, 1)),
	})
	assert.ErrorIs(t, err, models.ErrEmptyInput)
}

func TestSARIMARejectsPeriodLongerThanSeries(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = 100 + float64(i)
	}
	seasonal := models.SeasonalOrder{D: 1, Period: 50}
	order := models.Order{}
	_, err := NewEngine().Train(context.Background(), &models.TrainingRequest{
		Family: models.FamilySARIMA,
		Params: models.SARIMAParams{Order: &order, Seasonal: &seasonal},
		Train:  monthly(values),
	})
	assert.ErrorIs(t, err, models.ErrEmptyInput)
}

type stubSeriesModel struct {
	fitErr error
	value  float64
}

func (s stubSeriesModel) Fit(*timeseries.Series) error { return s.fitErr }

func (s stubSeriesModel) Predict(steps int) ([]float64, error) {
	out := make([]float64, steps)
	for i := range out {
		out[i] = s.value
	}
	return out, nil
}

func TestARIMAFitFailuresAreConvergenceErrors(t *testing.T) {
	cases := map[string]stubSeriesModel{
		"fit error":           {fitErr: errors.New("optimizer did not converge")},
		"non-finite forecast": {value: math.NaN()},
	}
	for name, stub := range cases {
		e := NewEngine()
		e.trainers[models.FamilyARIMA] = &arimaTrainer{
			newModel: func(models.Order, models.SeasonalOrder) seriesModel { return stub },
		}
		_, err := e.Train(context.Background(), &models.TrainingRequest{
			Family: models.FamilyARIMA,
			Params: mustDefault(t, models.FamilyARIMA),
			Train:  monthly(seasonalSeries(40, 1)),
		})
		require.Error(t, err, name)
		assert.ErrorIs(t, err, models.ErrConvergence, name)
		assert.Equal(t, "convergence", models.ErrorKind(err), name)
	}
}

func TestProphetFollowsLinearTrend(t *testing.T) {
	values := make([]float64, 70)
	for i := range values {
		values[i] = 100 + 2*float64(i)
	}
	train, held := split(series(values, 24*time.Hour), 10)
	e := NewEngine()
	for _, mode := range []string{models.SeasonalityAdditive, models.SeasonalityMultiplicative} {
		p, err := models.DecodeParams(models.FamilyProphet, json.RawMessage(`{"seasonality_mode":"`+mode+`"}`))
		require.NoError(t, err)
		m, err := e.Train(context.Background(), &models.TrainingRequest{Family: models.FamilyProphet, Params: p, Train: train})
		require.NoError(t, err, mode)

		pm := m.pred.(*prophetModel)
		require.Len(t, pm.Seasonality, 1)
		assert.Equal(t, "weekly", pm.Seasonality[0].Name)

		metrics, err := e.Evaluate(context.Background(), m, held)
		require.NoError(t, err, mode)
		require.NotNil(t, metrics.MAPE)
		assert.Less(t, *metrics.MAPE, 5.0, mode)
	}
}

func TestSequenceEvaluateAlignsWithHeldOut(t *testing.T) {
	e := NewEngine()
	full := series(seasonalSeries(48, 5), time.Hour)
	train, held := split(full, 8)
	m, err := e.Train(context.Background(), &models.TrainingRequest{
		Family: models.FamilySequence, Params: smallSequence(1), Train: train,
	})
	require.NoError(t, err)

	predicted, err := e.Predict(context.Background(), m, held)
	require.NoError(t, err)
	assert.Len(t, predicted, held.Len())

	metrics, err := e.Evaluate(context.Background(), m, held)
	require.NoError(t, err)
	assert.Equal(t, held.Len(), metrics.Points)
	assert.GreaterOrEqual(t, metrics.RMSE, 0.0)
}

func TestSequenceSeedIsDeterministic(t *testing.T) {
	e := NewEngine()
	train := series(seasonalSeries(30, 9), time.Hour)
	req := func(seed int64) *models.TrainingRequest {
		return &models.TrainingRequest{Family: models.FamilySequence, Params: smallSequence(seed), Train: train}
	}

	a, err := e.Train(context.Background(), req(11))
	require.NoError(t, err)
	b, err := e.Train(context.Background(), req(11))
	require.NoError(t, err)
	c, err := e.Train(context.Background(), req(12))
	require.NoError(t, err)

	fa, err := a.Forecast(context.Background(), 3)
	require.NoError(t, err)
	fb, err := b.Forecast(context.Background(), 3)
	require.NoError(t, err)
	fc, err := c.Forecast(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.NotEqual(t, fa, fc)
}

func TestConcurrentSequenceTrainsKeepOwnScaler(t *testing.T) {
	e := NewEngine()
	inputs := [][]float64{
		{0, 0.5, 1, 0.25, 0.75, 0.1, 0.9, 0.3, 0.6, 0.2},
		{100, 600, 250, 400, 350, 500, 150, 450, 300, 200},
	}
	fitted := make([]*FittedModel, len(inputs))
	errs := make([]error, len(inputs))

	var wg sync.WaitGroup
	for i := range inputs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			fitted[i], errs[i] = e.Train(context.Background(), &models.TrainingRequest{
				Family: models.FamilySequence, Params: smallSequence(int64(i)), Train: series(inputs[i], time.Minute),
			})
		}(i)
	}
	wg.Wait()

	for i := range inputs {
		require.NoError(t, errs[i])
		sm := fitted[i].pred.(*sequenceModel)
		assert.Equal(t, minOf(inputs[i]), sm.Scaler.Min)
		assert.Equal(t, maxOf(inputs[i]), sm.Scaler.Max)
	}
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs {
		m = math.Min(m, v)
	}
	return m
}

func maxOf(xs []float64) float64 {
	m := xs[0]
	for _, v := range xs {
		m = math.Max(m, v)
	}
	return m
}

func TestSequenceWindowErrors(t *testing.T) {
	e := NewEngine()
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8}

	p := smallSequence(0)
	p.Window = 8
	_, err := e.Train(context.Background(), &models.TrainingRequest{Family: models.FamilySequence, Params: p, Train: series(values, time.Hour)})
	assert.ErrorIs(t, err, models.ErrInvalidWindow)

	p.Window = 9
	_, err = e.Train(context.Background(), &models.TrainingRequest{Family: models.FamilySequence, Params: p, Train: series(values, time.Hour)})
	assert.ErrorIs(t, err, models.ErrEmptyInput)
}

func TestTrainHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEngine().Train(ctx, &models.TrainingRequest{
		Family: models.FamilySequence, Params: smallSequence(0), Train: series(seasonalSeries(20, 1), time.Hour),
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEvaluateEmptyHeldOut(t *testing.T) {
	e := NewEngine()
	m, err := e.Train(context.Background(), &models.TrainingRequest{
		Family: models.FamilyProphet, Params: mustDefault(t, models.FamilyProphet), Train: series([]float64{1, 2, 3, 4}, time.Hour),
	})
	require.NoError(t, err)
	_, err = e.Evaluate(context.Background(), m, models.TimeSeries{})
	assert.ErrorIs(t, err, models.ErrEmptyInput)
}

func mustDefault(t *testing.T, f models.Family) models.FamilyParams {
	t.Helper()
	p, err := models.DefaultParams(f)
	require.NoError(t, err)
	return p
}

func TestModelBlobRoundTrip(t *testing.T) {
	e := NewEngine()
	ctx := context.Background()
	order := models.Order{P: 2, D: 1, Q: 1}
	cases := []*models.TrainingRequest{
		{Family: models.FamilyARIMA, Params: models.ARIMAParams{Order: &order}, Train: monthly(seasonalSeries(60, 2))},
		{Family: models.FamilyProphet, Params: mustDefault(t, models.FamilyProphet), Train: series(seasonalSeries(40, 2), 24*time.Hour)},
		{Family: models.FamilySequence, Params: smallSequence(4), Train: series(seasonalSeries(30, 2), time.Hour)},
	}
	for _, req := range cases {
		m, err := e.Train(ctx, req)
		require.NoError(t, err, req.Family)
		want, err := m.Forecast(ctx, 6)
		require.NoError(t, err)

		blob, err := m.MarshalBinary()
		require.NoError(t, err)
		restored, err := UnmarshalModel(blob)
		require.NoError(t, err, req.Family)
		assert.Equal(t, req.Family, restored.Family())
		assert.True(t, m.TrainedThrough().Equal(restored.TrainedThrough()))

		got, err := restored.Forecast(ctx, 6)
		require.NoError(t, err)
		require.Len(t, got, len(want))
		for i := range want {
			assert.InDelta(t, want[i].Value, got[i].Value, 1e-9, req.Family)
			assert.True(t, want[i].Timestamp.Equal(got[i].Timestamp))
		}
	}
}

func TestUnmarshalModelRejectsUnknownVersion(t *testing.T) {
	_, err := UnmarshalModel([]byte(`{"version":7,"family":"arima"}`))
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
	_, err = UnmarshalModel([]byte(`{"version":1,"family":"xgboost"}`))
	assert.ErrorIs(t, err, models.ErrUnsupportedFamily)
}

func TestForecastRejectsNonPositiveHorizon(t *testing.T) {
	m, err := NewEngine().Train(context.Background(), &models.TrainingRequest{
		Family: models.FamilyProphet, Params: mustDefault(t, models.FamilyProphet), Train: series([]float64{1, 2, 3}, time.Hour),
	})
	require.NoError(t, err)
	_, err = m.Forecast(context.Background(), 0)
	assert.ErrorIs(t, err, models.ErrInvalidParameter)
}
