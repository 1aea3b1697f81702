package models

import "time"

// Course is an offering students can enroll in.
type Course struct {
	ID          string    `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	Schedule    string    `db:"schedule" json:"schedule"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// CourseRequest is the payload for creating or updating a course.
type CourseRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Description string `json:"description" validate:"required"`
	Schedule    string `json:"schedule" validate:"required"`
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	Search string
}
