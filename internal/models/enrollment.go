package models

import (
	"time"

	"github.com/lib/pq"
)

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. The state machine is
// pending -> approved | rejected; withdrawal deletes the record.
const (
	EnrollmentStatusPending  EnrollmentStatus = "PENDING"
	EnrollmentStatusApproved EnrollmentStatus = "APPROVED"
	EnrollmentStatusRejected EnrollmentStatus = "REJECTED"
)

// ApplicationPayload holds the volunteer's submission details.
// Captured once at submission time and immutable thereafter.
type ApplicationPayload struct {
	ContactEmail     string         `db:"contact_email" json:"contact_email"`
	ContactPhone     string         `db:"contact_phone" json:"contact_phone"`
	Motivation       string         `db:"motivation" json:"motivation"`
	AvailabilityTags pq.StringArray `db:"availability_tags" json:"availability_tags"`
	IdentityDocRef   string         `db:"identity_doc_ref" json:"identity_doc_ref"`
	SignatureDocRef  string         `db:"signature_doc_ref" json:"signature_doc_ref"`
}

// Enrollment links one volunteer to one project. At most one record
// exists per (project, volunteer) pair at any time.
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	ProjectID       string           `db:"project_id" json:"project_id"`
	VolunteerID     string           `db:"volunteer_id" json:"volunteer_id"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	SubmittedAt     time.Time        `db:"submitted_at" json:"submitted_at"`
	ReviewedAt      *time.Time       `db:"reviewed_at" json:"reviewed_at,omitempty"`
	ReviewedBy      *string          `db:"reviewed_by" json:"reviewed_by,omitempty"`
	RejectionReason *string          `db:"rejection_reason" json:"rejection_reason,omitempty"`

	ApplicationPayload
}

// EnrollmentDetail enriches Enrollment with volunteer and project info.
type EnrollmentDetail struct {
	Enrollment
	VolunteerName string `db:"volunteer_name" json:"volunteer_name"`
	ProjectName   string `db:"project_name" json:"project_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	ProjectID   string
	VolunteerID string
	Status      EnrollmentStatus
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}
