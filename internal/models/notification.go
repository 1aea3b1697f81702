package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// NotificationTypeEnrollmentStatus tags enrollment decision notifications.
const NotificationTypeEnrollmentStatus = "enrollment_status"

// Notification is an in-app record stored by the database channel.
type Notification struct {
	ID        string         `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"user_id"`
	Type      string         `db:"type" json:"type"`
	Data      types.JSONText `db:"data" json:"data"`
	ReadAt    *time.Time     `db:"read_at" json:"read_at"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}

// NotificationData is the payload stored for enrollment decisions.
type NotificationData struct {
	Status  EnrollmentStatus `json:"status"`
	Course  string           `json:"course"`
	Message string           `json:"message"`
}

// NotificationFilter narrows a user's notification listing.
type NotificationFilter struct {
	UnreadOnly bool
	Page       int
	PageSize   int
}

// EnrollmentStatusEvent is emitted after an admin decision commits.
type EnrollmentStatusEvent struct {
	EventID      string           `json:"event_id"`
	EnrollmentID string           `json:"enrollment_id"`
	UserID       string           `json:"user_id"`
	UserName     string           `json:"user_name"`
	UserEmail    string           `json:"user_email"`
	CourseID     string           `json:"course_id"`
	CourseTitle  string           `json:"course_title"`
	Status       EnrollmentStatus `json:"status"`
	OccurredAt   time.Time        `json:"occurred_at"`
}

// NotificationDelivery is one event bound for one channel. Channels are
// queued and retried independently.
type NotificationDelivery struct {
	Channel string                `json:"channel"`
	Event   EnrollmentStatusEvent `json:"event"`
}
