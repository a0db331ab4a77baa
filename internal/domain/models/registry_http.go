package models

type CreateRegistryHTTPRequest struct {
	Name        string                 `json:"name" validate:"required,max=128"`
	Type        string                 `json:"type" validate:"required,max=64"`
	Framework   string                 `json:"framework" default:"gonum" validate:"required,max=64"`
	Parameters  map[string]interface{} `json:"parameters"`
	Description string                 `json:"description" validate:"max=1024"`
}

type UpdateRegistryHTTPRequest struct {
	ID          string                 `param:"id" validate:"required"`
	Name        *string                `json:"name" validate:"omitempty,max=128"`
	Type        *string                `json:"type" validate:"omitempty,max=64"`
	Parameters  map[string]interface{} `json:"parameters"`
	Accuracy    *float64               `json:"accuracy" validate:"omitempty,gte=0,lte=1"`
	Description *string                `json:"description" validate:"omitempty,max=1024"`
	Status      *string                `json:"status" validate:"omitempty,oneof=draft active archived"`
}

func (r *UpdateRegistryHTTPRequest) Patch() RegistryPatch {
	return RegistryPatch{
		Name:        r.Name,
		Type:        r.Type,
		Parameters:  r.Parameters,
		Accuracy:    r.Accuracy,
		Description: r.Description,
		Status:      r.Status,
	}
}

type ListRegistryHTTPRequest struct {
	Type        string   `query:"type" validate:"omitempty,max=64"`
	Status      string   `query:"status" validate:"omitempty,oneof=draft active archived"`
	MinAccuracy *float64 `query:"min_accuracy" validate:"omitempty,gte=0,lte=1"`
	MaxAccuracy *float64 `query:"max_accuracy" validate:"omitempty,gte=0,lte=1"`
	Limit       int      `query:"limit" default:"50" validate:"gte=1,lte=500"`
	Offset      int      `query:"offset" validate:"gte=0"`
}

func (r *ListRegistryHTTPRequest) Filter() RegistryFilter {
	return RegistryFilter{
		Type:        r.Type,
		Status:      r.Status,
		MinAccuracy: r.MinAccuracy,
		MaxAccuracy: r.MaxAccuracy,
		Limit:       r.Limit,
		Offset:      r.Offset,
	}
}
