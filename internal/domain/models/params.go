package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/creasty/defaults"
)

// Order is the non-seasonal (p, d, q) order of an autoregressive integrated model.
type Order struct {
	P int `json:"p"`
	D int `json:"d"`
	Q int `json:"q"`
}

// SeasonalOrder is the seasonal (P, D, Q, s) order of a SARIMA model.
type SeasonalOrder struct {
	P      int `json:"p"`
	D      int `json:"d"`
	Q      int `json:"q"`
	Period int `json:"s"`
}

var (
	// DefaultOrder is used when an ARIMA or SARIMA request omits its order.
	DefaultOrder = Order{P: 1, D: 1, Q: 1}
	// DefaultSeasonalOrder is used when a SARIMA request omits seasonal_order.
	DefaultSeasonalOrder = SeasonalOrder{P: 1, D: 1, Q: 1, Period: 12}
)

const (
	SeasonalityAdditive       = "additive"
	SeasonalityMultiplicative = "multiplicative"
)

// UnmarshalJSON accepts either [p, d, q] or {"p":..,"d":..,"q":..}.
func (o *Order) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte("[")) {
		var xs []int
		if err := json.Unmarshal(b, &xs); err != nil {
			return err
		}
		if len(xs) != 3 {
			return fmt.Errorf("order needs 3 values, got %d", len(xs))
		}
		*o = Order{P: xs[0], D: xs[1], Q: xs[2]}
		return nil
	}
	type plain Order
	return json.Unmarshal(b, (*plain)(o))
}

func (o Order) MarshalJSON() ([]byte, error) {
	return json.Marshal([]int{o.P, o.D, o.Q})
}

func (o Order) String() string { return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q) }

func (o Order) validate() error {
	if o.P < 0 || o.D < 0 || o.Q < 0 {
		return fmt.Errorf("%w: order %s has negative terms", ErrInvalidParameter, o)
	}
	if o.D > 2 {
		return fmt.Errorf("%w: differencing order %d exceeds 2", ErrInvalidParameter, o.D)
	}
	if o.P > 10 || o.Q > 10 {
		return fmt.Errorf("%w: order %s exceeds 10 lags", ErrInvalidParameter, o)
	}
	return nil
}

// UnmarshalJSON accepts either [P, D, Q, s] or {"p":..,"d":..,"q":..,"s":..}.
func (o *SeasonalOrder) UnmarshalJSON(b []byte) error {
	if bytes.HasPrefix(bytes.TrimSpace(b), []byte("[")) {
		var xs []int
		if err := json.Unmarshal(b, &xs); err != nil {
			return err
		}
		if len(xs) != 4 {
			return fmt.Errorf("seasonal_order needs 4 values, got %d", len(xs))
		}
		*o = SeasonalOrder{P: xs[0], D: xs[1], Q: xs[2], Period: xs[3]}
		return nil
	}
	type plain SeasonalOrder
	return json.Unmarshal(b, (*plain)(o))
}

func (o SeasonalOrder) MarshalJSON() ([]byte, error) {
	return json.Marshal([]int{o.P, o.D, o.Q, o.Period})
}

func (o SeasonalOrder) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", o.P, o.D, o.Q, o.Period)
}

func (o SeasonalOrder) validate() error {
	if o.P < 0 || o.D < 0 || o.Q < 0 || o.Period < 0 {
		return fmt.Errorf("%w: seasonal order %s has negative terms", ErrInvalidParameter, o)
	}
	if o.D > 1 || o.P > 3 || o.Q > 3 {
		return fmt.Errorf("%w: seasonal order %s out of range", ErrInvalidParameter, o)
	}
	if (o.P > 0 || o.D > 0 || o.Q > 0) && o.Period < 2 {
		return fmt.Errorf("%w: seasonal period must be >= 2, got %d", ErrInvalidParameter, o.Period)
	}
	return nil
}

// FamilyParams is the family-specific half of a training request.
type FamilyParams interface {
	Family() Family
	Validate() error
}

// ARIMAParams configures an ARIMA(p,d,q) fit.
type ARIMAParams struct {
	Order *Order `json:"order,omitempty"`
}

func (ARIMAParams) Family() Family { return FamilyARIMA }

// OrderOrDefault returns the requested order or DefaultOrder.
func (p ARIMAParams) OrderOrDefault() Order {
	if p.Order == nil {
		return DefaultOrder
	}
	return *p.Order
}

func (p ARIMAParams) Validate() error { return p.OrderOrDefault().validate() }

// SARIMAParams configures a SARIMA(p,d,q)(P,D,Q,s) fit.
type SARIMAParams struct {
	Order    *Order         `json:"order,omitempty"`
	Seasonal *SeasonalOrder `json:"seasonal_order,omitempty"`
}

func (SARIMAParams) Family() Family { return FamilySARIMA }

func (p SARIMAParams) OrderOrDefault() Order {
	if p.Order == nil {
		return DefaultOrder
	}
	return *p.Order
}

// SeasonalOrDefault returns the requested seasonal order or DefaultSeasonalOrder.
func (p SARIMAParams) SeasonalOrDefault() SeasonalOrder {
	if p.Seasonal == nil {
		return DefaultSeasonalOrder
	}
	return *p.Seasonal
}

func (p SARIMAParams) Validate() error {
	if err := p.OrderOrDefault().validate(); err != nil {
		return err
	}
	return p.SeasonalOrDefault().validate()
}

// ProphetParams configures the additive/multiplicative trend plus seasonality model.
type ProphetParams struct {
	SeasonalityMode       string  `json:"seasonality_mode" default:"additive"`
	ChangepointCount      int     `json:"n_changepoints" default:"25"`
	ChangepointRange      float64 `json:"changepoint_range" default:"0.8"`
	ChangepointPriorScale float64 `json:"changepoint_prior_scale" default:"0.05"`
	SeasonalityPriorScale float64 `json:"seasonality_prior_scale" default:"10"`
	YearlyOrder           int     `json:"yearly_fourier_order" default:"10"`
	WeeklyOrder           int     `json:"weekly_fourier_order" default:"3"`
	DailyOrder            int     `json:"daily_fourier_order" default:"4"`
}

func (ProphetParams) Family() Family { return FamilyProphet }

func (p ProphetParams) Validate() error {
	if p.SeasonalityMode != SeasonalityAdditive && p.SeasonalityMode != SeasonalityMultiplicative {
		return fmt.Errorf("%w: seasonality_mode %q must be additive or multiplicative", ErrInvalidParameter, p.SeasonalityMode)
	}
	if p.ChangepointCount < 0 {
		return fmt.Errorf("%w: n_changepoints must be >= 0", ErrInvalidParameter)
	}
	if p.ChangepointRange <= 0 || p.ChangepointRange > 1 {
		return fmt.Errorf("%w: changepoint_range must be in (0,1]", ErrInvalidParameter)
	}
	if p.ChangepointPriorScale <= 0 || p.SeasonalityPriorScale <= 0 {
		return fmt.Errorf("%w: prior scales must be > 0", ErrInvalidParameter)
	}
	if p.YearlyOrder < 0 || p.WeeklyOrder < 0 || p.DailyOrder < 0 {
		return fmt.Errorf("%w: fourier orders must be >= 0", ErrInvalidParameter)
	}
	return nil
}

// SequenceParams configures the stacked recurrent network.
// Seed is always explicit; the same seed and data give the same weights.
type SequenceParams struct {
	Window       int     `json:"sequence_length" default:"10"`
	Epochs       int     `json:"epochs" default:"50"`
	Seed         int64   `json:"seed"`
	Units        int     `json:"units" default:"50"`
	Dropout      float64 `json:"dropout" default:"0.2"`
	BatchSize    int     `json:"batch_size" default:"32"`
	LearningRate float64 `json:"learning_rate" default:"0.001"`
	Activation   string  `json:"activation" default:"tanh"`
}

func (SequenceParams) Family() Family { return FamilySequence }

func (p SequenceParams) Validate() error {
	switch {
	case p.Window < 1:
		return fmt.Errorf("%w: sequence_length must be >= 1", ErrInvalidParameter)
	case p.Epochs < 1:
		return fmt.Errorf("%w: epochs must be >= 1", ErrInvalidParameter)
	case p.Units < 1 || p.Units > 512:
		return fmt.Errorf("%w: units must be in [1,512]", ErrInvalidParameter)
	case p.Dropout < 0 || p.Dropout >= 1:
		return fmt.Errorf("%w: dropout must be in [0,1)", ErrInvalidParameter)
	case p.BatchSize < 1:
		return fmt.Errorf("%w: batch_size must be >= 1", ErrInvalidParameter)
	case p.LearningRate <= 0:
		return fmt.Errorf("%w: learning_rate must be > 0", ErrInvalidParameter)
	case p.Activation != "tanh" && p.Activation != "relu":
		return fmt.Errorf("%w: activation %q must be tanh or relu", ErrInvalidParameter, p.Activation)
	}
	return nil
}

// DefaultParams returns the defaulted parameter set for f.
func DefaultParams(f Family) (FamilyParams, error) {
	return DecodeParams(f, nil)
}

// DecodeParams decodes raw JSON into the parameter type of f, applies defaults and validates.
// Fields that do not belong to f (seasonal_order for arima, for example) are rejected.
func DecodeParams(f Family, raw json.RawMessage) (FamilyParams, error) {
	var p FamilyParams
	switch f {
	case FamilyARIMA:
		p = &ARIMAParams{}
	case FamilySARIMA:
		p = &SARIMAParams{}
	case FamilyProphet:
		p = &ProphetParams{}
	case FamilySequence:
		p = &SequenceParams{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFamily, f)
	}

	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(p); err != nil {
			return nil, fmt.Errorf("%w: %s parameters: %v", ErrInvalidParameter, f, err)
		}
	}
	if err := defaults.Set(p); err != nil {
		return nil, fmt.Errorf("%w: %s defaults: %v", ErrInvalidParameter, f, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	// hand back values, not pointers, so type switches stay simple
	switch v := p.(type) {
	case *ARIMAParams:
		return *v, nil
	case *SARIMAParams:
		return *v, nil
	case *ProphetParams:
		return *v, nil
	case *SequenceParams:
		return *v, nil
	}
	return p, nil
}
