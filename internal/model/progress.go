package model

// ModuleProgress summarizes how much of a module a learner has completed.
type ModuleProgress struct {
	ModuleID       string `json:"module_id"`
	Slug           string `json:"slug"`
	Title          string `json:"title"`
	Hours          int    `json:"hours"`
	TotalItems     int    `json:"total_items"`
	CompletedItems int    `json:"completed_items"`
	Progress       int    `json:"progress"`
	Completed      bool   `json:"completed"`
}

// JourneyProgress rolls module progress up to the journey.
type JourneyProgress struct {
	JourneyID      string           `json:"journey_id"`
	Slug           string           `json:"slug"`
	Title          string           `json:"title"`
	UserID         string           `json:"user_id"`
	TotalHours     int              `json:"total_hours"`
	TotalModules   int              `json:"total_modules"`
	TotalItems     int              `json:"total_items"`
	CompletedItems int              `json:"completed_items"`
	Progress       int              `json:"progress"`
	Completed      bool             `json:"completed"`
	Modules        []ModuleProgress `json:"modules"`
}
