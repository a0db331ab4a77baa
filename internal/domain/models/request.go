package models

import "fmt"

// TrainingRequest carries everything a single training run needs.
// HeldOut may be empty; the host then carves it from Train using ValidationSplit.
type TrainingRequest struct {
	Family          Family
	Params          FamilyParams
	Train           TimeSeries
	HeldOut         TimeSeries
	ValidationSplit float64
	ForecastHorizon int
}

// CheckFamily fails fast on unsupported tags without touching data.
func (r *TrainingRequest) CheckFamily() error {
	if !r.Family.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedFamily, r.Family)
	}
	return nil
}

// Validate checks the family, the parameter union and the series ordering.
func (r *TrainingRequest) Validate() error {
	if err := r.CheckFamily(); err != nil {
		return err
	}
	if r.Params == nil {
		return fmt.Errorf("%w: missing %s parameters", ErrInvalidParameter, r.Family)
	}
	if r.Params.Family() != r.Family {
		return fmt.Errorf("%w: %s parameters supplied for %s", ErrInvalidParameter, r.Params.Family(), r.Family)
	}
	if err := r.Params.Validate(); err != nil {
		return err
	}
	if r.ForecastHorizon < 0 {
		return fmt.Errorf("%w: forecast_horizon must be >= 0", ErrInvalidParameter)
	}
	if err := r.Train.Validate(); err != nil {
		return fmt.Errorf("training data: %w", err)
	}
	if err := r.HeldOut.Validate(); err != nil {
		return fmt.Errorf("held-out data: %w", err)
	}
	return nil
}
