package forecast

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"time"

	"ModelHub/internal/domain/models"
	"ModelHub/internal/services/preprocess"
)

// sequenceTrainer fits the stacked LSTM on scaled sliding windows.
type sequenceTrainer struct{}

// sequenceModel owns its ScalerState; nothing is shared between models.
type sequenceModel struct {
	Window int                    `json:"window"`
	Scaler preprocess.ScalerState `json:"scaler"`
	Tail   []float64              `json:"tail"`
	Net    *network               `json:"network"`
	Loss   float64                `json:"loss"`
}

func (sequenceTrainer) fit(ctx context.Context, params models.FamilyParams, train models.TimeSeries) (predictor, error) {
	p, ok := params.(models.SequenceParams)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected parameters %T", models.ErrInvalidParameter, params)
	}
	values := train.Values()
	sc, windows, err := preprocess.Preparer{}.Prepare(values, p.Window)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(p.Seed))
	net := newNetwork(p.Units, p.Activation, rng)
	opt := newAdam(net, p.LearningRate)
	g := newGrads(net)

	order := make([]int, len(windows))
	for i := range order {
		order[i] = i
	}
	var loss float64
	for epoch := 0; epoch < p.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("epoch %d: %w", epoch, err)
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		loss = 0
		for start := 0; start < len(order); start += p.BatchSize {
			end := min(start+p.BatchSize, len(order))
			g.reset()
			weight := 1 / float64(end-start)
			for _, idx := range order[start:end] {
				loss += net.accumulate(windows[idx].X, windows[idx].Y, p.Dropout, weight, rng, g)
			}
			opt.step(net, g)
		}
		loss /= float64(len(order))
		if math.IsNaN(loss) || math.IsInf(loss, 0) {
			return nil, fmt.Errorf("%w: loss diverged at epoch %d", models.ErrConvergence, epoch)
		}
	}

	return &sequenceModel{
		Window: p.Window,
		Scaler: *sc,
		Tail:   tail(values, p.Window),
		Net:    net,
		Loss:   loss,
	}, nil
}

// backtest prefixes the held-out values with the last training window so every
// held-out point gets exactly one one-step-ahead prediction.
func (m *sequenceModel) backtest(ctx context.Context, heldOut models.TimeSeries) ([]float64, error) {
	input := append(append([]float64(nil), m.Tail...), heldOut.Values()...)
	windows, err := preprocess.Preparer{}.Rewindow(&m.Scaler, input, m.Window)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(windows))
	for i, w := range windows {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		out[i] = m.Scaler.InverseOne(m.Net.predict(w.X))
	}
	return out, nil
}

// forecast feeds each prediction back as the next input.
func (m *sequenceModel) forecast(ctx context.Context, at []time.Time) ([]float64, error) {
	buf := m.Scaler.Transform(m.Tail)
	out := make([]float64, len(at))
	for i := range at {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next := m.Net.predict(buf[len(buf)-m.Window:])
		buf = append(buf, next)
		out[i] = m.Scaler.InverseOne(next)
	}
	return out, nil
}

func (sequenceTrainer) restore(params models.FamilyParams, state []byte) (predictor, error) {
	p, ok := params.(models.SequenceParams)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected parameters %T", models.ErrInvalidParameter, params)
	}
	var m sequenceModel
	if err := json.Unmarshal(state, &m); err != nil {
		return nil, fmt.Errorf("%w: sequence state: %v", models.ErrInvalidParameter, err)
	}
	switch {
	case m.Net == nil || m.Net.L1 == nil || m.Net.L2 == nil:
		return nil, fmt.Errorf("%w: sequence state has no network", models.ErrInvalidParameter)
	case m.Window != p.Window || len(m.Tail) != m.Window:
		return nil, fmt.Errorf("%w: sequence state window mismatch", models.ErrInvalidParameter)
	case len(m.Net.Dense) != m.Net.L2.Hidden:
		return nil, fmt.Errorf("%w: sequence state layer sizes mismatch", models.ErrInvalidParameter)
	}
	if _, ok := activations[m.Net.Activation]; !ok {
		return nil, fmt.Errorf("%w: activation %q", models.ErrInvalidParameter, m.Net.Activation)
	}
	return &m, nil
}

func tail(xs []float64, n int) []float64 {
	if n <= 0 {
		return []float64{}
	}
	if n > len(xs) {
		n = len(xs)
	}
	return append([]float64(nil), xs[len(xs)-n:]...)
}
