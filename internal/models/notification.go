package models

import (
	"encoding/json"
	"time"
)

// NotificationType identifies the kind of event a notification carries.
type NotificationType string

const (
	NotificationEnrollmentApproved NotificationType = "ENROLLMENT_APPROVED"
	NotificationEnrollmentRejected NotificationType = "ENROLLMENT_REJECTED"
	NotificationGoalCompleted      NotificationType = "GOAL_COMPLETED"
)

// Event is the typed payload the core pushes to the dispatcher. The core
// decides that an event must fire and with what payload; delivery is a
// collaborator concern.
type Event struct {
	Type        NotificationType       `json:"type"`
	RecipientID string                 `json:"recipient_id"`
	Payload     map[string]interface{} `json:"payload"`
}

// Notification is a persisted event, listable by its recipient.
type Notification struct {
	ID          string           `db:"id" json:"id"`
	RecipientID string           `db:"recipient_id" json:"recipient_id"`
	Type        NotificationType `db:"type" json:"type"`
	Payload     json.RawMessage  `db:"payload" json:"payload"`
	ReadAt      *time.Time       `db:"read_at" json:"read_at,omitempty"`
	CreatedAt   time.Time        `db:"created_at" json:"created_at"`
}

// NotificationFilter provides filters for listing notifications.
type NotificationFilter struct {
	RecipientID string
	Unread      bool
	Page        int
	PageSize    int
}
