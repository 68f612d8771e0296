package models

import "time"

// Project represents a community-service project volunteers can join.
type Project struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	Description       string    `db:"description" json:"description"`
	Location          string    `db:"location" json:"location"`
	TotalHours        float64   `db:"total_hours" json:"total_hours"`
	OpenForEnrollment bool      `db:"open_for_enrollment" json:"open_for_enrollment"`
	CoordinatorID     string    `db:"coordinator_id" json:"coordinator_id"`
	StartsOn          *time.Time `db:"starts_on" json:"starts_on,omitempty"`
	EndsOn            *time.Time `db:"ends_on" json:"ends_on,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// ProjectFilter provides filters for listing projects.
type ProjectFilter struct {
	Search            string
	OpenForEnrollment *bool
	CoordinatorID     string
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}
