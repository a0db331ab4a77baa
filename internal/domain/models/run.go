package models

import (
	"fmt"
	"time"
)

// RunState is the lifecycle state of a training run.
type RunState string

const (
	RunRequested  RunState = "REQUESTED"
	RunFitting    RunState = "FITTING"
	RunFitted     RunState = "FITTED"
	RunEvaluating RunState = "EVALUATING"
	RunEvaluated  RunState = "EVALUATED"
	RunFailed     RunState = "FAILED"
)

var runTransitions = map[RunState][]RunState{
	RunRequested:  {RunFitting},
	RunFitting:    {RunFitted, RunFailed},
	RunFitted:     {RunEvaluating},
	RunEvaluating: {RunEvaluated, RunFailed},
}

// Terminal reports whether no further transition is possible.
func (s RunState) Terminal() bool {
	return s == RunEvaluated || s == RunFailed
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to RunState) bool {
	for _, s := range runTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TrainingRun tracks one request through the state machine.
type TrainingRun struct {
	ID        string    `json:"id"`
	ModelID   string    `json:"model_id"`
	Family    Family    `json:"family"`
	State     RunState  `json:"state"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"error_kind,omitempty"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewTrainingRun starts a run in REQUESTED.
func NewTrainingRun(id, modelID string, f Family, now time.Time) *TrainingRun {
	return &TrainingRun{ID: id, ModelID: modelID, Family: f, State: RunRequested, StartedAt: now, UpdatedAt: now}
}

// Transition moves the run to next, rejecting illegal edges.
func (r *TrainingRun) Transition(next RunState, now time.Time) error {
	if !CanTransition(r.State, next) {
		return fmt.Errorf("run %s: illegal transition %s -> %s", r.ID, r.State, next)
	}
	r.State = next
	r.UpdatedAt = now
	return nil
}

// Fail moves the run to FAILED and records the cause.
func (r *TrainingRun) Fail(cause error, now time.Time) error {
	if err := r.Transition(RunFailed, now); err != nil {
		return err
	}
	r.Error = cause.Error()
	r.ErrorKind = ErrorKind(cause)
	return nil
}

// RunEvent is published on every state transition.
type RunEvent struct {
	RunID     string             `json:"run_id"`
	ModelID   string             `json:"model_id"`
	Family    Family             `json:"family"`
	State     RunState           `json:"state"`
	Error     string             `json:"error,omitempty"`
	ErrorKind string             `json:"error_kind,omitempty"`
	Metrics   *EvaluationMetrics `json:"metrics,omitempty"`
	At        time.Time          `json:"at"`
}

// Event snapshots the run as a RunEvent.
func (r *TrainingRun) Event(m *EvaluationMetrics) RunEvent {
	return RunEvent{
		RunID:     r.ID,
		ModelID:   r.ModelID,
		Family:    r.Family,
		State:     r.State,
		Error:     r.Error,
		ErrorKind: r.ErrorKind,
		Metrics:   m,
		At:        r.UpdatedAt,
	}
}
