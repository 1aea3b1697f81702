package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/uni-enrollment-api/internal/models"
	"github.com/noah-isme/uni-enrollment-api/internal/repository"
	appErrors "github.com/noah-isme/uni-enrollment-api/pkg/errors"
	"github.com/noah-isme/uni-enrollment-api/pkg/validation"
)

type courseRepository interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error)
	FindByID(ctx context.Context, id string) (*models.Course, error)
	Create(ctx context.Context, course *models.Course) error
	Update(ctx context.Context, course *models.Course) error
	Delete(ctx context.Context, id string) error
	CountEnrollments(ctx context.Context, id string) (int, error)
}

// CourseService handles the course registry.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService creates a new course service.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns every course matching the filter.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, error) {
	courses, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, internalError(err, "failed to list courses")
	}
	return courses, nil
}

// Get returns a course by identifier. Ids that are not UUIDs name no course.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
	}
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, internalError(err, "failed to load course")
	}
	return course, nil
}

// Create adds a new course.
func (s *CourseService) Create(ctx context.Context, req models.CourseRequest) (*models.Course, error) {
	req = normaliseCourse(req)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	course := &models.Course{Title: req.Title, Description: req.Description, Schedule: req.Schedule}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, internalError(err, "failed to create course")
	}
	s.logger.Info("course created", zap.String("course_id", course.ID))
	return course, nil
}

// Update replaces the editable fields of a course.
func (s *CourseService) Update(ctx context.Context, id string, req models.CourseRequest) (*models.Course, error) {
	req = normaliseCourse(req)
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	course, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	course.Title = req.Title
	course.Description = req.Description
	course.Schedule = req.Schedule

	if err := s.repo.Update(ctx, course); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, internalError(err, "failed to update course")
	}
	return course, nil
}

// Delete removes a course that no enrollment references.
func (s *CourseService) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	count, err := s.repo.CountEnrollments(ctx, id)
	if err != nil {
		return internalError(err, "failed to check course enrollments")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "course has enrollments and cannot be deleted")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		case errors.Is(err, repository.ErrInUse):
			return appErrors.Clone(appErrors.ErrConflict, "course has enrollments and cannot be deleted")
		}
		return internalError(err, "failed to delete course")
	}
	s.logger.Info("course deleted", zap.String("course_id", id))
	return nil
}

func normaliseCourse(req models.CourseRequest) models.CourseRequest {
	req.Title = strings.TrimSpace(req.Title)
	req.Description = strings.TrimSpace(req.Description)
	req.Schedule = strings.TrimSpace(req.Schedule)
	return req
}
