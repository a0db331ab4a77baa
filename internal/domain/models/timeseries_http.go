package models

import (
	"encoding/json"
	"time"
)

// Requests and responses for the time-series HTTP endpoints.

type TrainHTTPRequest struct {
	Name            string          `json:"name" validate:"omitempty,max=128"`
	Type            string          `json:"type" validate:"required_without=Family"`
	Family          string          `json:"family"`
	Parameters      json.RawMessage `json:"parameters"`
	Data            []Point         `json:"data" validate:"required,min=2"`
	TestData        []Point         `json:"test_data"`
	ForecastHorizon int             `json:"forecast_horizon" default:"12" validate:"gte=0,lte=10000"`
	ValidationSplit float64         `json:"validation_split" default:"0.2" validate:"gt=0,lt=1"`
}

// FamilyTag prefers the explicit family over the legacy type field.
func (r *TrainHTTPRequest) FamilyTag() string {
	if r.Family != "" {
		return r.Family
	}
	return r.Type
}

type TrainBatchHTTPRequest struct {
	Requests []TrainHTTPRequest `json:"requests" validate:"required,min=1,max=32,dive"`
}

type ForecastHTTPRequest struct {
	ID      string `param:"id" validate:"required"`
	Horizon int    `json:"horizon" query:"horizon" validate:"omitempty,gte=1,lte=10000"`
}

type ListModelsHTTPRequest struct {
	Family string `query:"family" validate:"omitempty,oneof=arima sarima prophet sequence lstm"`
	Limit  int    `query:"limit" default:"50" validate:"gte=1,lte=500"`
	Offset int    `query:"offset" validate:"gte=0"`
}

type UploadSummary struct {
	Rows         int       `json:"rows"`
	TargetColumn string    `json:"target_column"`
	TimeColumn   string    `json:"time_column,omitempty"`
	Columns      []string  `json:"columns"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Data         []Point   `json:"data"`
}

// PlotSeries aligns held-out timestamps with actual and predicted values.
type PlotSeries struct {
	Dates     []time.Time `json:"dates"`
	Actual    []float64   `json:"actual"`
	Predicted []float64   `json:"predicted"`
}

type TextPreprocessHTTPRequest struct {
	Texts           []string `json:"texts" validate:"required,min=1,max=1000"`
	RemoveStopwords *bool    `json:"remove_stopwords"`
	Lemmatize       *bool    `json:"lemmatize"`
	ExtraStopwords  []string `json:"extra_stopwords"`
}
