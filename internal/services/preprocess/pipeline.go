package preprocess

import (
	"encoding/json"
	"fmt"
	"io"

	"ModelHub/internal/domain/models"
)

// State is the fit lifecycle of a pipeline.
type State string

const (
	StateUnfitted State = "UNFITTED"
	StateFitted   State = "FITTED"
)

// SnapshotVersion is the current snapshot schema.
const SnapshotVersion = 1

// Pipeline is the fit/transform contract shared by the series, text and image preprocessors.
// Transform on an unfitted pipeline is a programming error and panics.
type Pipeline[In, Out any] interface {
	Fit(data In) error
	Transform(data In) Out
	State() State
	Snapshot() (Snapshot, error)
}

// FitTransform fits p on data and transforms the same data.
func FitTransform[In, Out any](p Pipeline[In, Out], data In) (Out, error) {
	if err := p.Fit(data); err != nil {
		var zero Out
		return zero, err
	}
	return p.Transform(data), nil
}

// Snapshot is the portable saved state of a pipeline.
type Snapshot struct {
	Version int             `json:"version"`
	Kind    string          `json:"kind"`
	Fitted  bool            `json:"fitted"`
	Params  json.RawMessage `json:"params,omitempty"`
	Scaler  *ScalerState    `json:"scaler,omitempty"`
}

// Save writes the snapshot of p to w as JSON.
func Save[In, Out any](w io.Writer, p Pipeline[In, Out]) error {
	s, err := p.Snapshot()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Load reads a snapshot and checks its version.
func Load(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: decode snapshot: %v", models.ErrInvalidParameter, err)
	}
	if s.Version != SnapshotVersion {
		return Snapshot{}, fmt.Errorf("%w: snapshot version %d not supported", models.ErrInvalidParameter, s.Version)
	}
	return s, nil
}

func (s Snapshot) expect(kind string) error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("%w: snapshot version %d not supported", models.ErrInvalidParameter, s.Version)
	}
	if s.Kind != kind {
		return fmt.Errorf("%w: snapshot kind %q, want %q", models.ErrInvalidParameter, s.Kind, kind)
	}
	return nil
}

type lifecycle struct {
	fitted bool
}

func (l *lifecycle) State() State {
	if l.fitted {
		return StateFitted
	}
	return StateUnfitted
}

func (l *lifecycle) mustBeFitted(kind string) {
	if !l.fitted {
		panic(fmt.Sprintf("preprocess: %s Transform called before Fit", kind))
	}
}

const kindMinMax = "minmax"

// MinMaxPipeline exposes the series scaler through the Pipeline contract.
type MinMaxPipeline struct {
	lifecycle
	scaler *ScalerState
}

func NewMinMaxPipeline() *MinMaxPipeline { return &MinMaxPipeline{} }

func (p *MinMaxPipeline) Fit(data []float64) error {
	sc, err := FitScale(data)
	if err != nil {
		return err
	}
	p.scaler = sc
	p.fitted = true
	return nil
}

func (p *MinMaxPipeline) Transform(data []float64) []float64 {
	p.mustBeFitted(kindMinMax)
	return p.scaler.Transform(data)
}

// Inverse undoes Transform.
func (p *MinMaxPipeline) Inverse(data []float64) []float64 {
	p.mustBeFitted(kindMinMax)
	return p.scaler.Inverse(data)
}

func (p *MinMaxPipeline) Snapshot() (Snapshot, error) {
	s := Snapshot{Version: SnapshotVersion, Kind: kindMinMax, Fitted: p.fitted}
	if p.scaler != nil {
		sc := *p.scaler
		s.Scaler = &sc
	}
	return s, nil
}

// RestoreMinMax rebuilds a MinMaxPipeline from a snapshot.
func RestoreMinMax(s Snapshot) (*MinMaxPipeline, error) {
	if err := s.expect(kindMinMax); err != nil {
		return nil, err
	}
	p := &MinMaxPipeline{}
	if s.Fitted {
		if s.Scaler == nil {
			return nil, fmt.Errorf("%w: fitted minmax snapshot without scaler", models.ErrInvalidParameter)
		}
		sc := *s.Scaler
		p.scaler = &sc
		p.fitted = true
	}
	return p, nil
}

var _ Pipeline[[]float64, []float64] = (*MinMaxPipeline)(nil)
