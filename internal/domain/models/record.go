package models

import (
	"encoding/json"
	"time"
)

// ModelRecord is the persisted form of a trained time-series model.
// Blob is the serialized fitted model and is never introspected by storage.
type ModelRecord struct {
	ID              string             `json:"id"`
	Name            string             `json:"name"`
	Family          Family             `json:"family"`
	Parameters      json.RawMessage    `json:"parameters"`
	Blob            []byte             `json:"-"`
	Metrics         *EvaluationMetrics `json:"metrics,omitempty"`
	ForecastHorizon int                `json:"forecast_horizon"`
	ValidationSplit float64            `json:"validation_split"`
	Status          RunState           `json:"status"`
	Error           string             `json:"error,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
}

// ModelFilter narrows ModelRecord listings.
type ModelFilter struct {
	Family Family
	Limit  int
	Offset int
}

// RegistryEntry is generic model metadata registered by users.
type RegistryEntry struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	Framework   string                 `json:"framework"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Accuracy    float64                `json:"accuracy"`
	Description string                 `json:"description,omitempty"`
	Status      string                 `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// RegistryFilter narrows registry listings; zero values match everything.
type RegistryFilter struct {
	Type        string
	Status      string
	MinAccuracy *float64
	MaxAccuracy *float64
	Limit       int
	Offset      int
}

// RegistryPatch holds optional registry updates; nil fields are left untouched.
type RegistryPatch struct {
	Name        *string
	Type        *string
	Parameters  map[string]interface{}
	Accuracy    *float64
	Description *string
	Status      *string
}

// Apply writes the non-nil fields of p onto e.
func (p RegistryPatch) Apply(e *RegistryEntry) {
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Type != nil {
		e.Type = *p.Type
	}
	if p.Parameters != nil {
		e.Parameters = p.Parameters
	}
	if p.Accuracy != nil {
		e.Accuracy = *p.Accuracy
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
}
