package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/volunhub/volunhub-api/internal/service"
	appErrors "github.com/volunhub/volunhub-api/pkg/errors"
	"github.com/volunhub/volunhub-api/pkg/response"
)

// ActivityHandler exposes the project activity ledger.
type ActivityHandler struct {
	activities *service.ActivityService
	metrics    *service.MetricsService
}

// NewActivityHandler constructs ActivityHandler.
func NewActivityHandler(activities *service.ActivityService, metrics *service.MetricsService) *ActivityHandler {
	return &ActivityHandler{activities: activities, metrics: metrics}
}

// ListByProject godoc
// @Summary List a project's activities
// @Tags Activities
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/activities [get]
func (h *ActivityHandler) ListByProject(c *gin.Context) {
	activities, err := h.activities.ListByProject(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activities, nil)
}

// Add godoc
// @Summary Register an activity on a project
// @Tags Activities
// @Accept json
// @Produce json
// @Param payload body service.AddActivityRequest true "Activity payload"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /activities [post]
func (h *ActivityHandler) Add(c *gin.Context) {
	var req service.AddActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	activity, err := h.activities.Add(c.Request.Context(), actorFromContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, activity)
}

// Edit godoc
// @Summary Edit an activity
// @Tags Activities
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body service.EditActivityRequest true "Patch payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /activities/{id} [put]
func (h *ActivityHandler) Edit(c *gin.Context) {
	var req service.EditActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	activity, err := h.activities.Edit(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, activity, nil)
}

// Remove godoc
// @Summary Remove an activity
// @Tags Activities
// @Produce json
// @Param id path string true "Activity ID"
// @Success 204 {object} response.Envelope
// @Router /activities/{id} [delete]
func (h *ActivityHandler) Remove(c *gin.Context) {
	if err := h.activities.Remove(c.Request.Context(), actorFromContext(c), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Certify godoc
// @Summary Certify an activity's completion set
// @Description Replaces the full list of volunteers certified as having completed the activity.
// @Tags Activities
// @Accept json
// @Produce json
// @Param id path string true "Activity ID"
// @Param payload body service.CertifyActivityRequest true "Completion set"
// @Success 200 {object} response.Envelope
// @Router /activities/{id}/certify [put]
func (h *ActivityHandler) Certify(c *gin.Context) {
	var req service.CertifyActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	activity, err := h.activities.Certify(c.Request.Context(), actorFromContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordCertification()
	response.JSON(c, http.StatusOK, activity, nil)
}
