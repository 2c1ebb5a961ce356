package authzhttp

import (
	"github.com/lyceum-edu/lyceum/internal/authz"
)

// businessPayload carries the optional business context of a decision
// request. The decision clock is never caller-supplied; the engine uses
// its own.
type businessPayload struct {
	HoursUntilEvent   *float64          `json:"hours_until_event"`
	PolicyWindowHours *float64          `json:"policy_window_hours" validate:"omitempty,gt=0"`
	Params            map[string]string `json:"params" validate:"omitempty,max=16"`
}

func (p businessPayload) toDomain() authz.BusinessContext {
	return authz.BusinessContext{
		HoursUntilEvent:   p.HoursUntilEvent,
		PolicyWindowHours: p.PolicyWindowHours,
		Params:            p.Params,
	}
}

type evaluateRequest struct {
	ResourceType string          `json:"resource_type" validate:"required"`
	ResourceID   string          `json:"resource_id" validate:"required"`
	Action       string          `json:"action" validate:"required"`
	Business     businessPayload `json:"business"`
}

type batchRequest struct {
	ResourceType string          `json:"resource_type" validate:"required"`
	ResourceIDs  []string        `json:"resource_ids" validate:"required,min=1,max=100,dive,required"`
	Action       string          `json:"action" validate:"required"`
	Business     businessPayload `json:"business"`
}

type filterRequest struct {
	ResourceType string `json:"resource_type" validate:"required"`
	Permission   string `json:"permission" validate:"required"`
}
