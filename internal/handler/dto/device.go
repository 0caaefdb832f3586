package dto

// InviteDeviceRequest represents the request body for inviting a child device.
type InviteDeviceRequest struct {
	ChildID   string `json:"child_id" validate:"required"`
	ChildName string `json:"child_name,omitempty" validate:"max=100"`
}

// UpdateLimitsRequest replaces screen time and the approved app list.
type UpdateLimitsRequest struct {
	ScreenTimeLimit *int     `json:"screen_time_limit" validate:"required"`
	ApprovedApps    []string `json:"approved_apps" validate:"dive,omitempty,app_id"`
}
