package handler

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	internalmiddleware "github.com/volunhub/volunhub-api/internal/middleware"
	"github.com/volunhub/volunhub-api/internal/models"
	"github.com/volunhub/volunhub-api/internal/service"
)

type fakeEnrollmentStore struct {
	enrollments map[string]*models.Enrollment
}

func enrollmentStoreKey(projectID, volunteerID string) string {
	return projectID + "/" + volunteerID
}

func (f *fakeEnrollmentStore) FindByKey(ctx context.Context, projectID, volunteerID string) (*models.Enrollment, error) {
	if e, ok := f.enrollments[enrollmentStoreKey(projectID, volunteerID)]; ok {
		copied := *e
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeEnrollmentStore) FindDetailByKey(ctx context.Context, projectID, volunteerID string) (*models.EnrollmentDetail, error) {
	e, err := f.FindByKey(ctx, projectID, volunteerID)
	if err != nil {
		return nil, err
	}
	return &models.EnrollmentDetail{Enrollment: *e, ProjectName: "Riverside Cleanup"}, nil
}

func (f *fakeEnrollmentStore) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range f.enrollments {
		out = append(out, models.EnrollmentDetail{Enrollment: *e})
	}
	return out, len(out), nil
}

func (f *fakeEnrollmentStore) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if f.enrollments == nil {
		f.enrollments = make(map[string]*models.Enrollment)
	}
	enrollment.ID = "e1"
	copied := *enrollment
	f.enrollments[enrollmentStoreKey(enrollment.ProjectID, enrollment.VolunteerID)] = &copied
	return nil
}

func (f *fakeEnrollmentStore) Replace(ctx context.Context, enrollment *models.Enrollment) error {
	enrollment.Status = models.EnrollmentStatusPending
	return f.Create(ctx, enrollment)
}

func (f *fakeEnrollmentStore) Review(ctx context.Context, projectID, volunteerID string, status models.EnrollmentStatus, reviewerID string, reason *string, reviewedAt time.Time) (bool, error) {
	e, ok := f.enrollments[enrollmentStoreKey(projectID, volunteerID)]
	if !ok || e.Status != models.EnrollmentStatusPending {
		return false, nil
	}
	e.Status = status
	e.ReviewedBy = &reviewerID
	e.ReviewedAt = &reviewedAt
	e.RejectionReason = reason
	return true, nil
}

func (f *fakeEnrollmentStore) DeleteByKey(ctx context.Context, projectID, volunteerID string) (bool, error) {
	key := enrollmentStoreKey(projectID, volunteerID)
	if _, ok := f.enrollments[key]; !ok {
		return false, nil
	}
	delete(f.enrollments, key)
	return true, nil
}

func (f *fakeEnrollmentStore) StatusByKey(ctx context.Context, projectID, volunteerID string) (models.EnrollmentStatus, error) {
	e, ok := f.enrollments[enrollmentStoreKey(projectID, volunteerID)]
	if !ok {
		return "", sql.ErrNoRows
	}
	return e.Status, nil
}

type fakeProjectStore struct{}

func (f *fakeProjectStore) FindByID(ctx context.Context, id string) (*models.Project, error) {
	if id != "p1" {
		return nil, sql.ErrNoRows
	}
	return &models.Project{ID: "p1", Name: "Riverside Cleanup", TotalHours: 40, OpenForEnrollment: true}, nil
}

func buildEnrollmentRouter(store *fakeEnrollmentStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		if role := c.GetHeader("X-Test-Role"); role != "" {
			c.Set(internalmiddleware.ContextUserKey, &models.JWTClaims{
				UserID: c.GetHeader("X-Test-User"),
				Role:   models.UserRole(role),
			})
		}
		c.Next()
	})

	svc := service.NewEnrollmentService(service.EnrollmentServiceParams{
		Repo:     store,
		Projects: &fakeProjectStore{},
	})
	h := NewEnrollmentHandler(svc, service.NewMetricsService())

	adminOnly := internalmiddleware.RBAC(string(models.RoleAdmin), string(models.RoleSuperAdmin))
	router.POST("/enrollments", internalmiddleware.RBAC(string(models.RoleVolunteer), string(models.RoleAdmin), string(models.RoleSuperAdmin)), h.Submit)
	router.GET("/enrollments", adminOnly, h.List)
	router.GET("/projects/:id/enrollments/:volunteerId/status", h.Status)
	router.PUT("/projects/:id/enrollments/:volunteerId/approve", adminOnly, h.Approve)
	router.PUT("/projects/:id/enrollments/:volunteerId/reject", adminOnly, h.Reject)
	router.DELETE("/projects/:id/enrollments/:volunteerId", h.Withdraw)
	return router
}

func performRequest(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

const submitPayload = `{
	"project_id": "p1",
	"volunteer_id": "v1",
	"contact_email": "ana@example.org",
	"motivation": "I want to help",
	"identity_doc_ref": "doc://identity/1",
	"signature_doc_ref": "doc://signature/1"
}`

func TestEnrollmentRoutes(t *testing.T) {
	store := &fakeEnrollmentStore{}
	router := buildEnrollmentRouter(store)

	t.Run("submit requires authentication", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/enrollments", bytes.NewBufferString(submitPayload))
		req.Header.Set("Content-Type", "application/json")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusUnauthorized, resp.Code)
	})

	t.Run("submit creates pending enrollment", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/enrollments", bytes.NewBufferString(submitPayload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleVolunteer))
		req.Header.Set("X-Test-User", "v1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusCreated, resp.Code)
		require.Contains(t, resp.Body.String(), `"status":"PENDING"`)
	})

	t.Run("duplicate submit conflicts", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPost, "/enrollments", bytes.NewBufferString(submitPayload))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleVolunteer))
		req.Header.Set("X-Test-User", "v1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("approve forbidden for volunteers", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, "/projects/p1/enrollments/v1/approve", nil)
		req.Header.Set("X-Test-Role", string(models.RoleVolunteer))
		req.Header.Set("X-Test-User", "v1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusForbidden, resp.Code)
	})

	t.Run("approve as admin", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, "/projects/p1/enrollments/v1/approve", nil)
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		req.Header.Set("X-Test-User", "a1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"status":"APPROVED"`)
	})

	t.Run("approve again conflicts", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodPut, "/projects/p1/enrollments/v1/approve", nil)
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		req.Header.Set("X-Test-User", "a1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("status endpoint reflects decision", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "/projects/p1/enrollments/v1/status", nil)
		resp := performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"status":"APPROVED"`)
	})

	t.Run("withdraw own enrollment", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, "/projects/p1/enrollments/v1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleVolunteer))
		req.Header.Set("X-Test-User", "v1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusNoContent, resp.Code)
	})

	t.Run("withdraw is idempotent", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, "/projects/p1/enrollments/v1", nil)
		req.Header.Set("X-Test-Role", string(models.RoleVolunteer))
		req.Header.Set("X-Test-User", "v1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusNoContent, resp.Code)
	})

	t.Run("reject requires a reason", func(t *testing.T) {
		submit, _ := http.NewRequest(http.MethodPost, "/enrollments", bytes.NewBufferString(submitPayload))
		submit.Header.Set("Content-Type", "application/json")
		submit.Header.Set("X-Test-Role", string(models.RoleVolunteer))
		submit.Header.Set("X-Test-User", "v1")
		require.Equal(t, http.StatusCreated, performRequest(router, submit).Code)

		req, _ := http.NewRequest(http.MethodPut, "/projects/p1/enrollments/v1/reject", bytes.NewBufferString(`{"reason":""}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		req.Header.Set("X-Test-User", "a1")
		resp := performRequest(router, req)
		require.Equal(t, http.StatusBadRequest, resp.Code)

		req, _ = http.NewRequest(http.MethodPut, "/projects/p1/enrollments/v1/reject", bytes.NewBufferString(`{"reason":"incomplete documents"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Test-Role", string(models.RoleAdmin))
		req.Header.Set("X-Test-User", "a1")
		resp = performRequest(router, req)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Contains(t, resp.Body.String(), `"status":"REJECTED"`)
	})
}
