package models

import "time"

// Activity is a discrete, hour-valued unit of work belonging to a project.
// The project enforces that the sum of its activities' hours never
// exceeds the project's total duration.
type Activity struct {
	ID          string     `db:"id" json:"id"`
	ProjectID   string     `db:"project_id" json:"project_id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	HoursValue  float64    `db:"hours_value" json:"hours_value"`
	Certified   bool       `db:"certified" json:"certified"`
	CertifiedBy *string    `db:"certified_by" json:"certified_by,omitempty"`
	CertifiedAt *time.Time `db:"certified_at" json:"certified_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`

	// CompletedBy is the set of volunteer IDs recorded by the latest
	// certification pass. Loaded from activity_completions, not a column.
	CompletedBy []string `db:"-" json:"completed_by"`
}

// Completed reports whether the volunteer is in the activity's
// completion set.
func (a *Activity) Completed(volunteerID string) bool {
	for _, id := range a.CompletedBy {
		if id == volunteerID {
			return true
		}
	}
	return false
}

// ActivityCompletion is one row of the completion set for an activity.
type ActivityCompletion struct {
	ActivityID  string    `db:"activity_id" json:"activity_id"`
	VolunteerID string    `db:"volunteer_id" json:"volunteer_id"`
	RecordedAt  time.Time `db:"recorded_at" json:"recorded_at"`
}
