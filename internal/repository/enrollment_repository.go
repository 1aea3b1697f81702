package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/uni-enrollment-api/internal/models"
)

const enrollmentDetailSelect = `SELECT e.id, e.user_id, e.course_id, e.status, e.created_at, e.updated_at,
        u.name AS user_name, u.email AS user_email, u.role AS user_role,
        c.title AS course_title, c.description AS course_description, c.schedule AS course_schedule,
        c.created_at AS course_created_at, c.updated_at AS course_updated_at
        FROM enrollments e
        JOIN users u ON u.id = e.user_id
        JOIN courses c ON c.id = e.course_id`

// enrollmentRow is the flattened result of enrollmentDetailSelect.
type enrollmentRow struct {
	models.Enrollment
	UserName          string      `db:"user_name"`
	UserEmail         string      `db:"user_email"`
	UserRole          models.Role `db:"user_role"`
	CourseTitle       string      `db:"course_title"`
	CourseDescription string      `db:"course_description"`
	CourseSchedule    string      `db:"course_schedule"`
	CourseCreatedAt   time.Time   `db:"course_created_at"`
	CourseUpdatedAt   time.Time   `db:"course_updated_at"`
}

func (row enrollmentRow) toModel(withUser bool) models.Enrollment {
	e := row.Enrollment
	e.Course = &models.Course{
		ID:          row.CourseID,
		Title:       row.CourseTitle,
		Description: row.CourseDescription,
		Schedule:    row.CourseSchedule,
		CreatedAt:   row.CourseCreatedAt,
		UpdatedAt:   row.CourseUpdatedAt,
	}
	if withUser {
		e.User = &models.UserInfo{ID: row.UserID, Name: row.UserName, Email: row.UserEmail, Role: row.UserRole}
	}
	return e
}

func rowsToModels(rows []enrollmentRow, withUser bool) []models.Enrollment {
	out := make([]models.Enrollment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toModel(withUser))
	}
	return out
}

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

// CreateWithinQuota inserts a pending enrollment if the student holds fewer
// than quota enrollments (any status) and none for the same course. The
// student's user row is locked for the duration of the transaction so
// concurrent requests for one student are serialised.
func (r *EnrollmentRepository) CreateWithinQuota(ctx context.Context, enrollment *models.Enrollment, quota int) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrollment transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var lockedID string
	if err = tx.GetContext(ctx, &lockedID, `SELECT id FROM users WHERE id = $1 FOR UPDATE`, enrollment.UserID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = ErrUnknownStudent
			return err
		}
		return fmt.Errorf("lock student: %w", err)
	}

	var count int
	if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM enrollments WHERE user_id = $1`, enrollment.UserID); err != nil {
		return fmt.Errorf("count student enrollments: %w", err)
	}
	if count >= quota {
		err = ErrQuotaReached
		return err
	}

	var exists bool
	if err = tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM enrollments WHERE user_id = $1 AND course_id = $2)`, enrollment.UserID, enrollment.CourseID); err != nil {
		return fmt.Errorf("check duplicate enrollment: %w", err)
	}
	if exists {
		err = ErrDuplicate
		return err
	}

	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	enrollment.Status = models.EnrollmentStatusPending

	const insert = `INSERT INTO enrollments (id, user_id, course_id, status, created_at, updated_at) VALUES (:id, :user_id, :course_id, :status, :created_at, :updated_at)`
	if _, err = tx.NamedExecContext(ctx, insert, enrollment); err != nil {
		switch {
		case isUniqueViolation(err):
			err = ErrDuplicate
		case isForeignKeyViolation(err):
			err = ErrMissingReference
		default:
			err = fmt.Errorf("insert enrollment: %w", err)
		}
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit enrollment: %w", err)
	}
	return nil
}

// FindByID returns an enrollment with its user and course populated.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	var row enrollmentRow
	if err := r.db.GetContext(ctx, &row, enrollmentDetailSelect+` WHERE e.id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	enrollment := row.toModel(true)
	return &enrollment, nil
}

// List returns enrollments with user and course populated.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, error) {
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.UserID != "" {
		conditions = append(conditions, fmt.Sprintf("e.user_id = $%d", len(args)+1))
		args = append(args, filter.UserID)
	}

	query := enrollmentDetailSelect
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY e.created_at ASC"

	var rows []enrollmentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list enrollments: %w", err)
	}
	return rowsToModels(rows, true), nil
}

// ListByUser returns a student's enrollments with the course populated.
func (r *EnrollmentRepository) ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error) {
	var rows []enrollmentRow
	if err := r.db.SelectContext(ctx, &rows, enrollmentDetailSelect+` WHERE e.user_id = $1 ORDER BY e.created_at ASC`, userID); err != nil {
		return nil, fmt.Errorf("list user enrollments: %w", err)
	}
	return rowsToModels(rows, false), nil
}

// UpdateStatus moves an enrollment from one status to another. The update is
// conditional on the current status so that of two concurrent decisions only
// one succeeds; the loser gets ErrStatusChanged.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) (time.Time, error) {
	now := time.Now().UTC()
	const query = `UPDATE enrollments SET status = $2, updated_at = $3 WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, id, to, now, from)
	if err != nil {
		return time.Time{}, fmt.Errorf("update enrollment status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return time.Time{}, fmt.Errorf("update enrollment status rows affected: %w", err)
	}
	if affected == 0 {
		return time.Time{}, ErrStatusChanged
	}
	return now, nil
}
