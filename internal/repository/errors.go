package repository

import (
	"errors"

	"github.com/lib/pq"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

var (
	// ErrDuplicate signals a unique constraint violation.
	ErrDuplicate = errors.New("duplicate record")
	// ErrQuotaReached signals the per-student enrollment limit was hit inside the enroll transaction.
	ErrQuotaReached = errors.New("enrollment quota reached")
	// ErrMissingReference signals a foreign key pointing at a row that does not exist.
	ErrMissingReference = errors.New("referenced record does not exist")
	// ErrUnknownStudent signals an enrollment for a user row that no longer exists.
	ErrUnknownStudent = errors.New("student does not exist")
	// ErrInUse signals a delete blocked by rows that still reference the record.
	ErrInUse = errors.New("record is still referenced")
	// ErrStatusChanged signals a conditional status update lost to a concurrent writer.
	ErrStatusChanged = errors.New("enrollment status changed concurrently")
)

func pqCode(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pqCode(err) == pgUniqueViolation
}

func isForeignKeyViolation(err error) bool {
	return pqCode(err) == pgForeignKeyViolation
}
