package forecast

import (
	"encoding"
	"encoding/json"
	"fmt"
	"time"

	"ModelHub/internal/domain/models"
)

// ModelFormatVersion is the current fitted-model blob schema.
const ModelFormatVersion = 1

type envelope struct {
	Version  int             `json:"version"`
	Family   models.Family   `json:"family"`
	Params   json.RawMessage `json:"params"`
	LastSeen time.Time       `json:"trained_through"`
	Step     time.Duration   `json:"step"`
	TrainLen int             `json:"train_len"`
	State    json.RawMessage `json:"state"`
}

// MarshalBinary encodes the model as a versioned JSON envelope.
func (m *FittedModel) MarshalBinary() ([]byte, error) {
	params, err := json.Marshal(m.params)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", m.family, err)
	}
	state, err := json.Marshal(m.pred)
	if err != nil {
		return nil, fmt.Errorf("encode %s state: %w", m.family, err)
	}
	return json.Marshal(envelope{
		Version:  ModelFormatVersion,
		Family:   m.family,
		Params:   params,
		LastSeen: m.lastSeen,
		Step:     m.step,
		TrainLen: m.trainLen,
		State:    state,
	})
}

// UnmarshalModel restores a model written by MarshalBinary.
func UnmarshalModel(data []byte) (*FittedModel, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: decode model: %v", models.ErrInvalidParameter, err)
	}
	if env.Version != ModelFormatVersion {
		return nil, fmt.Errorf("%w: model format version %d not supported", models.ErrInvalidParameter, env.Version)
	}
	t, ok := newTrainers()[env.Family]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedFamily, env.Family)
	}
	params, err := models.DecodeParams(env.Family, env.Params)
	if err != nil {
		return nil, err
	}
	pred, err := t.restore(params, env.State)
	if err != nil {
		return nil, err
	}
	if env.Step <= 0 {
		return nil, fmt.Errorf("%w: model step %s", models.ErrInvalidParameter, env.Step)
	}
	return &FittedModel{
		family:   env.Family,
		params:   params,
		lastSeen: env.LastSeen,
		step:     env.Step,
		trainLen: env.TrainLen,
		pred:     pred,
	}, nil
}

var _ encoding.BinaryMarshaler = (*FittedModel)(nil)
