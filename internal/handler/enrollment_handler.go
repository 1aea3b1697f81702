package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-enrollment-api/internal/models"
	"github.com/noah-isme/uni-enrollment-api/internal/service"
	"github.com/noah-isme/uni-enrollment-api/pkg/response"
)

type enrollmentService interface {
	Enroll(ctx context.Context, actor models.Actor, req models.EnrollRequest) (*models.Enrollment, error)
	Approve(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error)
	Reject(ctx context.Context, actor models.Actor, id string) (*models.Enrollment, error)
	ListAll(ctx context.Context, actor models.Actor, filter models.EnrollmentFilter) ([]models.Enrollment, error)
	ListMine(ctx context.Context, actor models.Actor) ([]models.Enrollment, error)
	ListByUser(ctx context.Context, actor models.Actor, userID string) ([]models.Enrollment, error)
}

type rosterExporter interface {
	Roster(ctx context.Context, actor models.Actor, filter models.EnrollmentFilter, format string) (*service.ExportFile, error)
}

// EnrollmentHandler exposes the enrollment workflow.
type EnrollmentHandler struct {
	service  enrollmentService
	exporter rosterExporter
}

// NewEnrollmentHandler constructs the handler.
func NewEnrollmentHandler(svc enrollmentService, exporter rosterExporter) *EnrollmentHandler {
	return &EnrollmentHandler{service: svc, exporter: exporter}
}

// Create godoc
// @Summary Request enrollment in a course
// @Tags Enrollments
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.EnrollRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req models.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid enrollment payload"))
		return
	}

	enrollment, err := h.service.Enroll(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, "Enrollment request submitted successfully.", enrollment)
}

// Approve godoc
// @Summary Approve an enrollment
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/approve [post]
func (h *EnrollmentHandler) Approve(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	enrollment, err := h.service.Approve(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Enrollment approved successfully and student notified.", enrollment)
}

// Reject godoc
// @Summary Reject an enrollment
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id}/reject [post]
func (h *EnrollmentHandler) Reject(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	enrollment, err := h.service.Reject(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Message(c, http.StatusOK, "Enrollment rejected and student notified.", enrollment)
}

// List godoc
// @Summary List every enrollment
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param status query string false "pending, approved or rejected"
// @Param course_id query string false "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	list, err := h.service.ListAll(c.Request.Context(), actor, enrollmentFilter(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, nil)
}

// Mine godoc
// @Summary List the caller's enrollments
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /my-enrollments [get]
func (h *EnrollmentHandler) Mine(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	list, err := h.service.ListMine(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list, nil)
}

// ListByUser godoc
// @Summary List a user's enrollments
// @Tags Enrollments
// @Produce json
// @Security BearerAuth
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /users/{id}/enrollments [get]
func (h *EnrollmentHandler) ListByUser(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	list, err := h.service.ListByUser(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	message := "Enrollments retrieved successfully."
	if len(list) == 0 {
		message = "No enrollments found for this user."
	}
	response.Message(c, http.StatusOK, message, list)
}

// Export godoc
// @Summary Export the enrollment roster
// @Tags Enrollments
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param format query string false "csv or pdf"
// @Param status query string false "pending, approved or rejected"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /enrollments/export [get]
func (h *EnrollmentHandler) Export(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	file, err := h.exporter.Roster(c.Request.Context(), actor, enrollmentFilter(c), c.Query("format"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Content)
}

func enrollmentFilter(c *gin.Context) models.EnrollmentFilter {
	return models.EnrollmentFilter{
		Status:   models.EnrollmentStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		CourseID: strings.TrimSpace(c.Query("course_id")),
	}
}
