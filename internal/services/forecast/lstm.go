package forecast

import (
	"math"
	"math/rand"
)

type activation struct {
	name string
	f    func(float64) float64
	// df is the derivative expressed through the activation's output.
	df func(y float64) float64
}

var activations = map[string]activation{
	"tanh": {
		name: "tanh",
		f:    math.Tanh,
		df:   func(y float64) float64 { return 1 - y*y },
	},
	"relu": {
		name: "relu",
		f:    func(x float64) float64 { return math.Max(0, x) },
		df: func(y float64) float64 {
			if y > 0 {
				return 1
			}
			return 0
		},
	},
}

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

// lstmLayer holds one recurrent layer. W is 4H x (In+H) row-major with gate
// blocks in input, forget, candidate, output order.
type lstmLayer struct {
	In     int       `json:"in"`
	Hidden int       `json:"hidden"`
	W      []float64 `json:"w"`
	B      []float64 `json:"b"`
}

func newLSTMLayer(in, hidden int, rng *rand.Rand) *lstmLayer {
	l := &lstmLayer{In: in, Hidden: hidden, W: make([]float64, 4*hidden*(in+hidden)), B: make([]float64, 4*hidden)}
	limit := math.Sqrt(6 / float64(in+hidden+hidden))
	for i := range l.W {
		l.W[i] = (rng.Float64()*2 - 1) * limit
	}
	for j := hidden; j < 2*hidden; j++ {
		l.B[j] = 1
	}
	return l
}

type lstmStep struct {
	z, i, f, g, o, cPrev, c, hc, h []float64
}

// forward runs the layer over xs and returns the per-step cache.
func (l *lstmLayer) forward(xs [][]float64, act activation) []lstmStep {
	H, width := l.Hidden, l.In+l.Hidden
	steps := make([]lstmStep, len(xs))
	hPrev, cPrev := make([]float64, H), make([]float64, H)
	for t, x := range xs {
		s := lstmStep{
			z: make([]float64, width), i: make([]float64, H), f: make([]float64, H), g: make([]float64, H),
			o: make([]float64, H), cPrev: cPrev, c: make([]float64, H), hc: make([]float64, H), h: make([]float64, H),
		}
		copy(s.z, x)
		copy(s.z[l.In:], hPrev)
		for j := 0; j < H; j++ {
			var ai, af, ag, ao float64
			ri, rf, rg, ro := l.W[j*width:(j+1)*width], l.W[(H+j)*width:(H+j+1)*width],
				l.W[(2*H+j)*width:(2*H+j+1)*width], l.W[(3*H+j)*width:(3*H+j+1)*width]
			for k, v := range s.z {
				ai += ri[k] * v
				af += rf[k] * v
				ag += rg[k] * v
				ao += ro[k] * v
			}
			s.i[j] = sigmoid(ai + l.B[j])
			s.f[j] = sigmoid(af + l.B[H+j])
			s.g[j] = act.f(ag + l.B[2*H+j])
			s.o[j] = sigmoid(ao + l.B[3*H+j])
			s.c[j] = s.f[j]*cPrev[j] + s.i[j]*s.g[j]
			s.hc[j] = act.f(s.c[j])
			s.h[j] = s.o[j] * s.hc[j]
		}
		steps[t] = s
		hPrev, cPrev = s.h, s.c
	}
	return steps
}

// backward accumulates gradients into gW, gB given dh, the loss gradient
// w.r.t. each step's output, and returns the gradient w.r.t. each input.
func (l *lstmLayer) backward(steps []lstmStep, dh [][]float64, act activation, gW, gB []float64) [][]float64 {
	H, width := l.Hidden, l.In+l.Hidden
	dx := make([][]float64, len(steps))
	dhNext, dcNext := make([]float64, H), make([]float64, H)
	da := make([]float64, 4*H)
	for t := len(steps) - 1; t >= 0; t-- {
		s := steps[t]
		for j := 0; j < H; j++ {
			g := dhNext[j]
			if dh[t] != nil {
				g += dh[t][j]
			}
			do := g * s.hc[j]
			dc := dcNext[j] + g*s.o[j]*act.df(s.hc[j])
			da[j] = dc * s.g[j] * s.i[j] * (1 - s.i[j])
			da[H+j] = dc * s.cPrev[j] * s.f[j] * (1 - s.f[j])
			da[2*H+j] = dc * s.i[j] * act.df(s.g[j])
			da[3*H+j] = do * s.o[j] * (1 - s.o[j])
			dcNext[j] = dc * s.f[j]
		}
		dz := make([]float64, width)
		for r := 0; r < 4*H; r++ {
			if da[r] == 0 {
				continue
			}
			row, grow := l.W[r*width:(r+1)*width], gW[r*width:(r+1)*width]
			for k := 0; k < width; k++ {
				grow[k] += da[r] * s.z[k]
				dz[k] += row[k] * da[r]
			}
			gB[r] += da[r]
		}
		dx[t] = dz[:l.In]
		dhNext = dz[l.In:]
	}
	return dx
}

// network is two stacked LSTM layers with dropout after each and a dense linear output.
type network struct {
	L1         *lstmLayer `json:"l1"`
	L2         *lstmLayer `json:"l2"`
	Dense      []float64  `json:"dense"`
	DenseBias  float64    `json:"dense_bias"`
	Activation string     `json:"activation"`
}

func newNetwork(units int, act string, rng *rand.Rand) *network {
	n := &network{
		L1:         newLSTMLayer(1, units, rng),
		L2:         newLSTMLayer(units, units, rng),
		Dense:      make([]float64, units),
		Activation: act,
	}
	limit := math.Sqrt(6 / float64(units+1))
	for i := range n.Dense {
		n.Dense[i] = (rng.Float64()*2 - 1) * limit
	}
	return n
}

func (n *network) act() activation { return activations[n.Activation] }

func sequenceInput(window []float64) [][]float64 {
	xs := make([][]float64, len(window))
	for i, v := range window {
		xs[i] = []float64{v}
	}
	return xs
}

// predict runs inference without dropout.
func (n *network) predict(window []float64) float64 {
	act := n.act()
	s1 := n.L1.forward(sequenceInput(window), act)
	h1 := make([][]float64, len(s1))
	for t := range s1 {
		h1[t] = s1[t].h
	}
	s2 := n.L2.forward(h1, act)
	h2 := s2[len(s2)-1].h
	out := n.DenseBias
	for j, w := range n.Dense {
		out += w * h2[j]
	}
	return out
}

// grads mirrors the trainable tensors of a network.
type grads struct {
	w1, b1, w2, b2, dense []float64
	denseBias             float64
}

func newGrads(n *network) *grads {
	return &grads{
		w1: make([]float64, len(n.L1.W)), b1: make([]float64, len(n.L1.B)),
		w2: make([]float64, len(n.L2.W)), b2: make([]float64, len(n.L2.B)),
		dense: make([]float64, len(n.Dense)),
	}
}

func (g *grads) reset() {
	for _, s := range [][]float64{g.w1, g.b1, g.w2, g.b2, g.dense} {
		for i := range s {
			s[i] = 0
		}
	}
	g.denseBias = 0
}

// dropoutMask returns inverted-dropout multipliers.
func dropoutMask(size int, rate float64, rng *rand.Rand) []float64 {
	m := make([]float64, size)
	keep := 1 - rate
	for i := range m {
		if rate == 0 || rng.Float64() < keep {
			m[i] = 1 / keep
		}
	}
	return m
}

// accumulate runs one training example forward and backward, adding MSE
// gradients scaled by weight into g, and returns the squared error.
func (n *network) accumulate(window []float64, target, dropout, weight float64, rng *rand.Rand, g *grads) float64 {
	act := n.act()
	H := n.L1.Hidden

	s1 := n.L1.forward(sequenceInput(window), act)
	masks1 := make([][]float64, len(s1))
	h1 := make([][]float64, len(s1))
	for t := range s1 {
		masks1[t] = dropoutMask(H, dropout, rng)
		h1[t] = make([]float64, H)
		for j := range h1[t] {
			h1[t][j] = s1[t].h[j] * masks1[t][j]
		}
	}
	s2 := n.L2.forward(h1, act)
	last := s2[len(s2)-1].h
	mask2 := dropoutMask(n.L2.Hidden, dropout, rng)
	out := n.DenseBias
	for j, w := range n.Dense {
		out += w * last[j] * mask2[j]
	}

	diff := out - target
	dOut := 2 * diff * weight
	g.denseBias += dOut
	dh2 := make([][]float64, len(s2))
	dh2[len(s2)-1] = make([]float64, n.L2.Hidden)
	for j, w := range n.Dense {
		g.dense[j] += dOut * last[j] * mask2[j]
		dh2[len(s2)-1][j] = dOut * w * mask2[j]
	}

	dx2 := n.L2.backward(s2, dh2, act, g.w2, g.b2)
	dh1 := make([][]float64, len(s1))
	for t := range dx2 {
		dh1[t] = make([]float64, H)
		for j := range dh1[t] {
			dh1[t][j] = dx2[t][j] * masks1[t][j]
		}
	}
	n.L1.backward(s1, dh1, act, g.w1, g.b1)
	return diff * diff
}

// adam is the Adam optimiser over the network's tensors.
type adam struct {
	lr, beta1, beta2, eps float64
	t                     int
	m, v                  [][]float64
}

func newAdam(n *network, lr float64) *adam {
	a := &adam{lr: lr, beta1: 0.9, beta2: 0.999, eps: 1e-7}
	for _, p := range n.tensors() {
		a.m = append(a.m, make([]float64, len(p)))
		a.v = append(a.v, make([]float64, len(p)))
	}
	return a
}

func (n *network) tensors() [][]float64 {
	return [][]float64{n.L1.W, n.L1.B, n.L2.W, n.L2.B, n.Dense, {n.DenseBias}}
}

func (a *adam) step(n *network, g *grads) {
	a.t++
	c1 := 1 - math.Pow(a.beta1, float64(a.t))
	c2 := 1 - math.Pow(a.beta2, float64(a.t))
	params := n.tensors()
	gs := [][]float64{g.w1, g.b1, g.w2, g.b2, g.dense, {g.denseBias}}
	for k, p := range params {
		m, v, gk := a.m[k], a.v[k], gs[k]
		for i := range p {
			m[i] = a.beta1*m[i] + (1-a.beta1)*gk[i]
			v[i] = a.beta2*v[i] + (1-a.beta2)*gk[i]*gk[i]
			p[i] -= a.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + a.eps)
		}
	}
	// the bias lives in a scalar field, not a shared slice
	n.DenseBias = params[5][0]
}
