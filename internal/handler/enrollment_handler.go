package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/volunhub/volunhub-api/internal/models"
	"github.com/volunhub/volunhub-api/internal/service"
	appErrors "github.com/volunhub/volunhub-api/pkg/errors"
	"github.com/volunhub/volunhub-api/pkg/response"
)

// EnrollmentHandler exposes enrollment lifecycle endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	metrics     *service.MetricsService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, metrics *service.MetricsService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, metrics: metrics}
}

// List godoc
// @Summary List enrollments
// @Tags Enrollments
// @Produce json
// @Param projectId query string false "Filter by project"
// @Param volunteerId query string false "Filter by volunteer"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /enrollments [get]
func (h *EnrollmentHandler) List(c *gin.Context) {
	var filter models.EnrollmentFilter
	filter.ProjectID = c.Query("projectId")
	filter.VolunteerID = c.Query("volunteerId")
	filter.Status = models.EnrollmentStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}

// Submit godoc
// @Summary Submit an enrollment application
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body service.SubmitEnrollmentRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Submit(c *gin.Context) {
	var req service.SubmitEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Submit(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, enrollment)
}

// Withdraw godoc
// @Summary Withdraw an enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Project ID"
// @Param volunteerId path string true "Volunteer ID"
// @Success 204 {object} response.Envelope
// @Router /projects/{id}/enrollments/{volunteerId} [delete]
func (h *EnrollmentHandler) Withdraw(c *gin.Context) {
	err := h.enrollments.Withdraw(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("volunteerId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Approve godoc
// @Summary Approve a pending enrollment
// @Tags Enrollments
// @Produce json
// @Param id path string true "Project ID"
// @Param volunteerId path string true "Volunteer ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects/{id}/enrollments/{volunteerId}/approve [put]
func (h *EnrollmentHandler) Approve(c *gin.Context) {
	enrollment, err := h.enrollments.Approve(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("volunteerId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordEnrollmentDecision("approved")
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Reject godoc
// @Summary Reject a pending enrollment
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param id path string true "Project ID"
// @Param volunteerId path string true "Volunteer ID"
// @Param payload body service.RejectEnrollmentRequest true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /projects/{id}/enrollments/{volunteerId}/reject [put]
func (h *EnrollmentHandler) Reject(c *gin.Context) {
	var req service.RejectEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	enrollment, err := h.enrollments.Reject(c.Request.Context(), actorFromContext(c), c.Param("id"), c.Param("volunteerId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordEnrollmentDecision("rejected")
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Status godoc
// @Summary Enrollment status for a volunteer on a project
// @Tags Enrollments
// @Produce json
// @Param id path string true "Project ID"
// @Param volunteerId path string true "Volunteer ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/enrollments/{volunteerId}/status [get]
func (h *EnrollmentHandler) Status(c *gin.Context) {
	status, err := h.enrollments.Status(c.Request.Context(), c.Param("id"), c.Param("volunteerId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"status": status}, nil)
}
