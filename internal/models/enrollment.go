package models

import "time"

// EnrollmentStatus is the lifecycle state of an enrollment.
type EnrollmentStatus string

const (
	EnrollmentStatusPending  EnrollmentStatus = "pending"
	EnrollmentStatusApproved EnrollmentStatus = "approved"
	EnrollmentStatusRejected EnrollmentStatus = "rejected"
)

// Valid reports whether s is a known status.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusPending, EnrollmentStatusApproved, EnrollmentStatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s is an admin decision.
func (s EnrollmentStatus) Terminal() bool {
	return s == EnrollmentStatusApproved || s == EnrollmentStatusRejected
}

// Enrollment links a student to a course.
type Enrollment struct {
	ID        string           `db:"id" json:"id"`
	UserID    string           `db:"user_id" json:"user_id"`
	CourseID  string           `db:"course_id" json:"course_id"`
	Status    EnrollmentStatus `db:"status" json:"status"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt time.Time        `db:"updated_at" json:"updated_at"`

	User   *UserInfo `db:"-" json:"user,omitempty"`
	Course *Course   `db:"-" json:"course,omitempty"`
}

// EnrollRequest is the student payload for requesting a seat in a course.
type EnrollRequest struct {
	CourseID string `json:"course_id" validate:"required,uuid"`
}

// EnrollmentFilter narrows admin listings.
type EnrollmentFilter struct {
	Status   EnrollmentStatus
	CourseID string
	UserID   string
}
