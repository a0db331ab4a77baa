package models

// EvaluationMetrics is the uniform accuracy report for every family.
// MAPE is nil when no held-out actual was non-zero.
type EvaluationMetrics struct {
	RMSE   float64  `json:"rmse"`
	MAE    float64  `json:"mae"`
	MAPE   *float64 `json:"mape"`
	Points int      `json:"points"`
}

// MAPEDefined reports whether MAPE could be computed.
func (m EvaluationMetrics) MAPEDefined() bool { return m.MAPE != nil }

// Map flattens the metrics for storage and gauges; an undefined MAPE is omitted.
func (m EvaluationMetrics) Map() map[string]float64 {
	out := map[string]float64{"rmse": m.RMSE, "mae": m.MAE}
	if m.MAPE != nil {
		out["mape"] = *m.MAPE
	}
	return out
}
