package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enrollment-api/internal/models"
	"github.com/noah-isme/uni-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/uni-enrollment-api/pkg/errors"
	"github.com/noah-isme/uni-enrollment-api/pkg/validation"
)

const defaultMaxEnrollments = 3

type enrollmentRepository interface {
	CreateWithinQuota(ctx context.Context, enrollment *models.Enrollment, quota int) error
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, error)
	ListByUser(ctx context.Context, userID string) ([]models.Enrollment, error)
	UpdateStatus(ctx context.Context, id string, from, to models.EnrollmentStatus) (time.Time, error)
}

type enrollmentCourseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type enrollmentUserReader interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// EventPublisher hands committed status changes to the notifier.
type EventPublisher interface {
	Publish(ctx context.Context, event models.EnrollmentStatusEvent) error
}

// EnrollmentPolicy holds the tunable workflow rules.
type EnrollmentPolicy struct {
	// MaxPerStudent caps enrollments per student across every status.
	MaxPerStudent int
	// AllowDecisionReversal lets an admin flip approved to rejected and back.
	AllowDecisionReversal bool
}

// EnrollmentService implements the enrollment workflow.
type EnrollmentService struct {
	repo      enrollmentRepository
	courses   enrollmentCourseReader
	users     enrollmentUserReader
	publisher EventPublisher
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	policy    EnrollmentPolicy
}

// NewEnrollmentService wires the enrollment workflow.
func NewEnrollmentService(repo enrollmentRepository, courses enrollmentCourseReader, users enrollmentUserReader, publisher EventPublisher, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, policy EnrollmentPolicy) *EnrollmentService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if policy.MaxPerStudent <= 0 {
		policy.MaxPerStudent = defaultMaxEnrollments
	}
	return &EnrollmentService{
		repo:      repo,
		courses:   courses,
		users:     users,
		publisher: publisher,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		policy:    policy,
	}
}

// Enroll files a pending enrollment for the calling student.
func (s *EnrollmentService) Enroll(ctx context.Context, actor models.Actor, req models.EnrollRequest) (*models.Enrollment, error) {
	if !actor.IsStudent() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Only students can enroll")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	course, err := s.courses.FindByID(ctx, req.CourseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fieldError("course_id", "The selected course id is invalid.")
		}
		return nil, internalError(err, "failed to load course")
	}

	enrollment := &models.Enrollment{UserID: actor.ID, CourseID: course.ID}
	start := time.Now()
	err = s.repo.CreateWithinQuota(ctx, enrollment, s.policy.MaxPerStudent)
	s.metrics.ObserveDBQuery("enrollment_create", time.Since(start))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrQuotaReached):
			s.metrics.RecordRuleViolation("quota")
			return nil, appErrors.Clone(appErrors.ErrQuotaExceeded, fmt.Sprintf("Max %d courses allowed", s.policy.MaxPerStudent))
		case errors.Is(err, repository.ErrDuplicate):
			s.metrics.RecordRuleViolation("duplicate")
			return nil, appErrors.Clone(appErrors.ErrDuplicateEnrollment, "Already enrolled in this course")
		case errors.Is(err, repository.ErrMissingReference):
			return nil, fieldError("course_id", "The selected course id is invalid.")
		case errors.Is(err, repository.ErrUnknownStudent):
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		}
		return nil, internalError(err, "failed to create enrollment")
	}

	enrollment.Course = course
	s.metrics.RecordTransition(models.EnrollmentStatusPending)
	s.logger.Info("enrollment requested",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("user_id", actor.ID),
		zap.String("course_id", course.ID),
	)
	return enrollment, nil
}

// Approve marks an enrollment approved and notifies the student.
func (s *EnrollmentService) Approve(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error) {
	return s.decide(ctx, actor, id, models.EnrollmentStatusApproved)
}

// Reject marks an enrollment rejected and notifies the student.
func (s *EnrollmentService) Reject(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error) {
	return s.decide(ctx, actor, id, models.EnrollmentStatusRejected)
}

func (s *EnrollmentService) decide(ctx context.Context, actor models.Actor, id string, target models.EnrollmentStatus) (*models.Enrollment, error) {
	verb := decisionVerb(target)
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Only admin can "+verb)
	}

	enrollment, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkTransition(enrollment.Status, target); err != nil {
		return nil, err
	}

	start := time.Now()
	updatedAt, err := s.repo.UpdateStatus(ctx, enrollment.ID, enrollment.Status, target)
	s.metrics.ObserveDBQuery("enrollment_update_status", time.Since(start))
	if err != nil {
		if errors.Is(err, repository.ErrStatusChanged) {
			return nil, s.resolveLostUpdate(ctx, id, target)
		}
		return nil, internalError(err, "failed to update enrollment")
	}

	previous := enrollment.Status
	enrollment.Status = target
	enrollment.UpdatedAt = updatedAt
	s.metrics.RecordTransition(target)
	s.logger.Info("enrollment decided",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("admin_id", actor.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(target)),
	)

	s.notify(ctx, enrollment)
	return enrollment, nil
}

// checkTransition enforces the state machine: pending may move to either
// decision, a decision may move to the other one only when reversal is allowed.
func (s *EnrollmentService) checkTransition(current, target models.EnrollmentStatus) error {
	if current == target {
		return appErrors.Clone(appErrors.ErrAlreadyInState, "Already "+string(target))
	}
	if current.Terminal() && !s.policy.AllowDecisionReversal {
		return appErrors.Clone(appErrors.ErrTransitionNotAllowed,
			fmt.Sprintf("Enrollment is already %s and cannot be %s", current, target))
	}
	return nil
}

// resolveLostUpdate explains why a conditional update matched no row.
func (s *EnrollmentService) resolveLostUpdate(ctx context.Context, id string, target models.EnrollmentStatus) error {
	current, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := s.checkTransition(current.Status, target); err != nil {
		return err
	}
	return appErrors.Clone(appErrors.ErrConflict, "enrollment was modified concurrently, retry the request")
}

// notify publishes the status event. Publishing is decoupled from the
// request: failures are logged and never undo the committed decision.
func (s *EnrollmentService) notify(ctx context.Context, enrollment *models.Enrollment) {
	if s.publisher == nil {
		return
	}
	event := models.EnrollmentStatusEvent{
		EventID:      uuid.NewString(),
		EnrollmentID: enrollment.ID,
		UserID:       enrollment.UserID,
		CourseID:     enrollment.CourseID,
		Status:       enrollment.Status,
		OccurredAt:   enrollment.UpdatedAt,
	}
	if enrollment.User != nil {
		event.UserName = enrollment.User.Name
		event.UserEmail = enrollment.User.Email
	}
	if enrollment.Course != nil {
		event.CourseTitle = enrollment.Course.Title
	}

	if err := s.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error("failed to publish enrollment status event",
			zap.String("enrollment_id", enrollment.ID),
			zap.String("event_id", event.EventID),
			zap.Error(err),
		)
	}
}

// ListAll returns every enrollment with student and course populated.
func (s *EnrollmentService) ListAll(ctx context.Context, actor models.Actor, filter models.EnrollmentFilter) ([]models.Enrollment, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Only admin can view all enrollments")
	}
	if err := validateEnrollmentFilter(filter); err != nil {
		return nil, err
	}
	list, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list enrollments")
	}
	return list, nil
}

// ListMine returns the caller's own enrollments.
func (s *EnrollmentService) ListMine(ctx context.Context, actor models.Actor) ([]models.Enrollment, error) {
	list, err := s.repo.ListByUser(ctx, actor.ID)
	if err != nil {
		return nil, internalError(err, "failed to list enrollments")
	}
	return list, nil
}

// ListByUser returns the enrollments of any user. An unknown user is a
// validation failure; a user without enrollments yields an empty list.
func (s *EnrollmentService) ListByUser(ctx context.Context, actor models.Actor, userID string) ([]models.Enrollment, error) {
	if !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "Only admin can view user enrollments")
	}
	if _, err := uuid.Parse(userID); err != nil {
		return nil, fieldError("user_id", "The selected user id is invalid.")
	}
	exists, err := s.users.Exists(ctx, userID)
	if err != nil {
		return nil, internalError(err, "failed to check user")
	}
	if !exists {
		return nil, fieldError("user_id", "The selected user id is invalid.")
	}

	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, internalError(err, "failed to list enrollments")
	}
	return list, nil
}

func (s *EnrollmentService) load(ctx context.Context, id string) (*models.Enrollment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
	}
	enrollment, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, internalError(err, "failed to load enrollment")
	}
	return enrollment, nil
}

// validateEnrollmentFilter rejects filter values no enrollment can match.
func validateEnrollmentFilter(filter models.EnrollmentFilter) error {
	if filter.Status != "" && !filter.Status.Valid() {
		return fieldError("status", "The selected status is invalid.")
	}
	if filter.CourseID != "" {
		if _, err := uuid.Parse(filter.CourseID); err != nil {
			return fieldError("course_id", "The selected course id is invalid.")
		}
	}
	return nil
}

func decisionVerb(target models.EnrollmentStatus) string {
	switch target {
	case models.EnrollmentStatusApproved:
		return "approve"
	case models.EnrollmentStatusRejected:
		return "reject"
	default:
		return "update enrollments"
	}
}
