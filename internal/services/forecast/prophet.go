package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"ModelHub/internal/domain/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	day = 24 * time.Hour
	// noiseVariance converts prior scales into ridge penalties on the scaled target.
	noiseVariance = 0.01
	// trendPriorScale loosely regularises the intercept and base growth rate.
	trendPriorScale = 10.0
)

// prophetTrainer fits a piecewise-linear trend with changepoints plus Fourier
// seasonalities, in additive or multiplicative mode, by ridge least squares.
type prophetTrainer struct{}

type seasonality struct {
	Name   string  `json:"name"`
	Period float64 `json:"period_days"`
	Order  int     `json:"order"`
}

type prophetModel struct {
	Mode         string        `json:"mode"`
	Start        time.Time     `json:"start"`
	Span         float64       `json:"span_seconds"`
	YScale       float64       `json:"y_scale"`
	Changepoints []float64     `json:"changepoints"`
	Seasonality  []seasonality `json:"seasonality"`
	Trend        []float64     `json:"trend"`
	Seasonal     []float64     `json:"seasonal"`
}

func (prophetTrainer) fit(ctx context.Context, params models.FamilyParams, train models.TimeSeries) (predictor, error) {
	p, ok := params.(models.ProphetParams)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected parameters %T", models.ErrInvalidParameter, params)
	}
	// the (ds, y) frame
	ds, y := train.Timestamps(), train.Values()
	n := len(y)

	m := &prophetModel{
		Mode:   p.SeasonalityMode,
		Start:  ds[0],
		Span:   ds[n-1].Sub(ds[0]).Seconds(),
		YScale: floats.Norm(y, math.Inf(1)),
	}
	if m.YScale == 0 {
		m.YScale = 1
	}
	ys := make([]float64, n)
	floats.ScaleTo(ys, 1/m.YScale, y)

	t := make([]float64, n)
	for i, ts := range ds {
		t[i] = m.scaledTime(ts)
	}
	m.Changepoints = changepoints(t, p.ChangepointCount, p.ChangepointRange)
	m.Seasonality = autoSeasonality(train, p)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trendX := m.trendMatrix(ds)
	seasX := m.seasonalMatrix(ds)
	trendPen := make([]float64, 2+len(m.Changepoints))
	trendPen[0] = noiseVariance / (trendPriorScale * trendPriorScale)
	trendPen[1] = trendPen[0]
	for j := 2; j < len(trendPen); j++ {
		trendPen[j] = noiseVariance / (p.ChangepointPriorScale * p.ChangepointPriorScale)
	}
	seasPen := make([]float64, seasonalColumns(m.Seasonality))
	for j := range seasPen {
		seasPen[j] = noiseVariance / (p.SeasonalityPriorScale * p.SeasonalityPriorScale)
	}

	switch m.Mode {
	case models.SeasonalityAdditive:
		x := trendX
		if len(seasPen) > 0 {
			x = hstack(trendX, seasX)
		}
		beta, err := ridge(x, ys, append(append([]float64(nil), trendPen...), seasPen...))
		if err != nil {
			return nil, err
		}
		m.Trend, m.Seasonal = beta[:len(trendPen)], beta[len(trendPen):]
	case models.SeasonalityMultiplicative:
		trend, err := ridge(trendX, ys, trendPen)
		if err != nil {
			return nil, err
		}
		m.Trend = trend
		m.Seasonal = []float64{}
		if len(seasPen) > 0 {
			// seasonality explains the relative deviation from trend
			fitted := mulVec(trendX, trend)
			rel := make([]float64, n)
			for i := range rel {
				if math.Abs(fitted[i]) > 1e-9 {
					rel[i] = ys[i]/fitted[i] - 1
				}
			}
			seas, err := ridge(seasX, rel, seasPen)
			if err != nil {
				return nil, err
			}
			m.Seasonal = seas
		}
	default:
		return nil, fmt.Errorf("%w: seasonality_mode %q", models.ErrInvalidParameter, m.Mode)
	}
	return m, nil
}

func (m *prophetModel) scaledTime(ts time.Time) float64 {
	if m.Span <= 0 {
		return 0
	}
	return ts.Sub(m.Start).Seconds() / m.Span
}

// changepoints places up to n changepoints uniformly over the first frac of the history.
func changepoints(t []float64, n int, frac float64) []float64 {
	hist := int(math.Floor(float64(len(t)) * frac))
	if n > hist-1 {
		n = hist - 1
	}
	if n <= 0 {
		return []float64{}
	}
	out := make([]float64, n)
	for j := 1; j <= n; j++ {
		idx := int(math.Round(float64(j) * float64(hist-1) / float64(n)))
		out[j-1] = t[idx]
	}
	return out
}

// autoSeasonality enables yearly, weekly and daily terms when the history is long
// enough to see two cycles and fine enough to resolve them.
func autoSeasonality(train models.TimeSeries, p models.ProphetParams) []seasonality {
	first, last := train.Points[0].Timestamp, train.Points[train.Len()-1].Timestamp
	span, step := last.Sub(first), train.Step()
	out := []seasonality{}
	if p.YearlyOrder > 0 && span >= 2*365*day {
		out = append(out, seasonality{Name: "yearly", Period: 365.25, Order: p.YearlyOrder})
	}
	if p.WeeklyOrder > 0 && span >= 14*day && step < 7*day {
		out = append(out, seasonality{Name: "weekly", Period: 7, Order: p.WeeklyOrder})
	}
	if p.DailyOrder > 0 && span >= 2*day && step < day {
		out = append(out, seasonality{Name: "daily", Period: 1, Order: p.DailyOrder})
	}
	return out
}

func seasonalColumns(s []seasonality) int {
	n := 0
	for _, term := range s {
		n += 2 * term.Order
	}
	return n
}

func (m *prophetModel) trendMatrix(ds []time.Time) *mat.Dense {
	cols := 2 + len(m.Changepoints)
	x := mat.NewDense(len(ds), cols, nil)
	for i, ts := range ds {
		t := m.scaledTime(ts)
		x.Set(i, 0, 1)
		x.Set(i, 1, t)
		for j, cp := range m.Changepoints {
			x.Set(i, 2+j, math.Max(0, t-cp))
		}
	}
	return x
}

func (m *prophetModel) seasonalMatrix(ds []time.Time) *mat.Dense {
	cols := seasonalColumns(m.Seasonality)
	if cols == 0 {
		return nil
	}
	x := mat.NewDense(len(ds), cols, nil)
	for i, ts := range ds {
		days := float64(ts.UnixNano()) / float64(day)
		c := 0
		for _, term := range m.Seasonality {
			for k := 1; k <= term.Order; k++ {
				arg := 2 * math.Pi * float64(k) * days / term.Period
				x.Set(i, c, math.Sin(arg))
				x.Set(i, c+1, math.Cos(arg))
				c += 2
			}
		}
	}
	return x
}

func (m *prophetModel) predict(ctx context.Context, at []time.Time) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(at) == 0 {
		return []float64{}, nil
	}
	trend := mulVec(m.trendMatrix(at), m.Trend)
	seas := make([]float64, len(at))
	if x := m.seasonalMatrix(at); x != nil && len(m.Seasonal) > 0 {
		seas = mulVec(x, m.Seasonal)
	}
	out := make([]float64, len(at))
	for i := range out {
		if m.Mode == models.SeasonalityMultiplicative {
			out[i] = trend[i] * (1 + seas[i]) * m.YScale
		} else {
			out[i] = (trend[i] + seas[i]) * m.YScale
		}
	}
	return out, nil
}

// backtest predicts at the held-out timestamps, the trailing rows of the extended future frame.
func (m *prophetModel) backtest(ctx context.Context, heldOut models.TimeSeries) ([]float64, error) {
	return m.predict(ctx, heldOut.Timestamps())
}

func (m *prophetModel) forecast(ctx context.Context, at []time.Time) ([]float64, error) {
	return m.predict(ctx, at)
}

func (prophetTrainer) restore(params models.FamilyParams, state []byte) (predictor, error) {
	p, ok := params.(models.ProphetParams)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected parameters %T", models.ErrInvalidParameter, params)
	}
	var m prophetModel
	if err := json.Unmarshal(state, &m); err != nil {
		return nil, fmt.Errorf("%w: prophet state: %v", models.ErrInvalidParameter, err)
	}
	if m.Mode != p.SeasonalityMode {
		return nil, fmt.Errorf("%w: saved mode %q does not match parameters", models.ErrInvalidParameter, m.Mode)
	}
	if len(m.Trend) != 2+len(m.Changepoints) || len(m.Seasonal) != seasonalColumns(m.Seasonality) {
		return nil, fmt.Errorf("%w: prophet state coefficient count mismatch", models.ErrInvalidParameter)
	}
	return &m, nil
}

// ridge solves (X'X + diag(lambda)) b = X'y.
func ridge(x *mat.Dense, y []float64, lambda []float64) ([]float64, error) {
	_, c := x.Dims()
	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	for j := 0; j < c; j++ {
		xtx.Set(j, j, xtx.At(j, j)+lambda[j])
	}
	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(len(y), y))

	var beta mat.VecDense
	if err := beta.SolveVec(&xtx, &xty); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("%w: least squares: %v", models.ErrConvergence, err)
		}
	}
	out := make([]float64, c)
	for j := range out {
		out[j] = beta.AtVec(j)
		if math.IsNaN(out[j]) || math.IsInf(out[j], 0) {
			return nil, fmt.Errorf("%w: non-finite coefficient", models.ErrConvergence)
		}
	}
	return out, nil
}

func hstack(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Augment(a, b)
	return &out
}

func mulVec(x *mat.Dense, beta []float64) []float64 {
	r, _ := x.Dims()
	var v mat.VecDense
	v.MulVec(x, mat.NewVecDense(len(beta), beta))
	out := make([]float64, r)
	for i := range out {
		out[i] = v.AtVec(i)
	}
	return out
}
