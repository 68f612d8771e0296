package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/volunhub/volunhub-api/internal/service"
	"github.com/volunhub/volunhub-api/pkg/response"
)

// HoursHandler exposes the derived hour and progress views.
type HoursHandler struct {
	hours *service.HoursService
}

// NewHoursHandler constructs HoursHandler.
func NewHoursHandler(hours *service.HoursService) *HoursHandler {
	return &HoursHandler{hours: hours}
}

// Summary godoc
// @Summary A volunteer's accrued hours across all projects
// @Description Hours are derived on read. A project's hours count toward the total only while the enrollment is approved.
// @Tags Hours
// @Produce json
// @Param volunteerId path string true "Volunteer ID"
// @Success 200 {object} response.Envelope
// @Router /volunteers/{volunteerId}/hours [get]
func (h *HoursHandler) Summary(c *gin.Context) {
	summary, err := h.hours.Summary(c.Request.Context(), c.Param("volunteerId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// ProjectProgress godoc
// @Summary Certified progress for a project
// @Tags Hours
// @Produce json
// @Param id path string true "Project ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/progress [get]
func (h *HoursHandler) ProjectProgress(c *gin.Context) {
	progress, cacheHit, err := h.hours.ProjectProgress(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	source := "computed"
	if cacheHit {
		source = "cache"
	}
	response.JSON(c, http.StatusOK, progress, nil, map[string]interface{}{"source": source})
}

// VolunteerProgress godoc
// @Summary One volunteer's progress on a project
// @Tags Hours
// @Produce json
// @Param id path string true "Project ID"
// @Param volunteerId path string true "Volunteer ID"
// @Success 200 {object} response.Envelope
// @Router /projects/{id}/progress/{volunteerId} [get]
func (h *HoursHandler) VolunteerProgress(c *gin.Context) {
	progress, err := h.hours.VolunteerProgress(c.Request.Context(), c.Param("id"), c.Param("volunteerId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}
