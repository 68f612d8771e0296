package models

// Progress summarises activity completion for a project, either overall
// or scoped to one volunteer.
type Progress struct {
	CompletedActivityCount int     `json:"completed_activity_count"`
	TotalActivityCount     int     `json:"total_activity_count"`
	CompletedHours         float64 `json:"completed_hours"`
	TotalHours             float64 `json:"total_hours"`
	PercentComplete        float64 `json:"percent_complete"`
}

// ProjectHours is one project's contribution to a volunteer's totals.
type ProjectHours struct {
	ProjectID        string           `json:"project_id"`
	ProjectName      string           `json:"project_name,omitempty"`
	EnrollmentStatus EnrollmentStatus `json:"enrollment_status"`
	EarnedHours      float64          `json:"earned_hours"`
	// Counted reports whether EarnedHours contributes to the total.
	// Hours accrue only under an approved enrollment.
	Counted bool `json:"counted"`
}

// HourSummary is the derived view of a volunteer's accrued hours.
// Never stored; recomputed from enrollments and activities on every query.
type HourSummary struct {
	VolunteerID string         `json:"volunteer_id"`
	TotalHours  float64        `json:"total_hours"`
	Projects    []ProjectHours `json:"projects"`
}
