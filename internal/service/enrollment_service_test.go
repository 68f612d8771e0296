package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volunhub/volunhub-api/internal/models"
	"github.com/volunhub/volunhub-api/internal/repository"
	appErrors "github.com/volunhub/volunhub-api/pkg/errors"
)

type mockEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	replaced    bool
	reviewOK    *bool
	createErr   error
}

func enrollKey(projectID, volunteerID string) string {
	return projectID + "/" + volunteerID
}

func (m *mockEnrollmentRepo) FindByKey(ctx context.Context, projectID, volunteerID string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[enrollKey(projectID, volunteerID)]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindDetailByKey(ctx context.Context, projectID, volunteerID string) (*models.EnrollmentDetail, error) {
	if e, ok := m.enrollments[enrollKey(projectID, volunteerID)]; ok {
		return &models.EnrollmentDetail{Enrollment: e}, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	var out []models.EnrollmentDetail
	for _, e := range m.enrollments {
		out = append(out, models.EnrollmentDetail{Enrollment: e})
	}
	return out, len(out), nil
}

func (m *mockEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.createErr != nil {
		return m.createErr
	}
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	m.enrollments[enrollKey(enrollment.ProjectID, enrollment.VolunteerID)] = *enrollment
	return nil
}

func (m *mockEnrollmentRepo) Replace(ctx context.Context, enrollment *models.Enrollment) error {
	m.replaced = true
	m.enrollments[enrollKey(enrollment.ProjectID, enrollment.VolunteerID)] = *enrollment
	return nil
}

func (m *mockEnrollmentRepo) Review(ctx context.Context, projectID, volunteerID string, status models.EnrollmentStatus, reviewerID string, reason *string, reviewedAt time.Time) (bool, error) {
	if m.reviewOK != nil {
		return *m.reviewOK, nil
	}
	key := enrollKey(projectID, volunteerID)
	e, ok := m.enrollments[key]
	if !ok || e.Status != models.EnrollmentStatusPending {
		return false, nil
	}
	e.Status = status
	e.ReviewedBy = &reviewerID
	e.ReviewedAt = &reviewedAt
	e.RejectionReason = reason
	m.enrollments[key] = e
	return true, nil
}

func (m *mockEnrollmentRepo) DeleteByKey(ctx context.Context, projectID, volunteerID string) (bool, error) {
	key := enrollKey(projectID, volunteerID)
	if _, ok := m.enrollments[key]; !ok {
		return false, nil
	}
	delete(m.enrollments, key)
	return true, nil
}

func (m *mockEnrollmentRepo) StatusByKey(ctx context.Context, projectID, volunteerID string) (models.EnrollmentStatus, error) {
	if e, ok := m.enrollments[enrollKey(projectID, volunteerID)]; ok {
		return e.Status, nil
	}
	return "", sql.ErrNoRows
}

type mockProjectReader struct {
	projects map[string]*models.Project
}

func (m *mockProjectReader) FindByID(ctx context.Context, id string) (*models.Project, error) {
	if p, ok := m.projects[id]; ok {
		return p, nil
	}
	return nil, sql.ErrNoRows
}

type mockDispatcher struct {
	events []models.Event
	err    error
}

func (m *mockDispatcher) Dispatch(ctx context.Context, event models.Event) error {
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

type mockInvalidator struct {
	projects []string
}

func (m *mockInvalidator) InvalidateProject(ctx context.Context, projectID string) {
	m.projects = append(m.projects, projectID)
}

func openProject(id string) *models.Project {
	return &models.Project{ID: id, Name: "Riverside Cleanup", TotalHours: 40, OpenForEnrollment: true}
}

func submitRequest(projectID, volunteerID string) SubmitEnrollmentRequest {
	return SubmitEnrollmentRequest{
		ProjectID:       projectID,
		VolunteerID:     volunteerID,
		ContactEmail:    "ana@example.org",
		Motivation:      "I want to help",
		IdentityDocRef:  "doc://identity/1",
		SignatureDocRef: "doc://signature/1",
	}
}

func newEnrollmentServiceForTest(repo *mockEnrollmentRepo, projects *mockProjectReader, dispatcher *mockDispatcher, allowResubmit bool) (*EnrollmentService, *mockInvalidator) {
	invalidator := &mockInvalidator{}
	svc := NewEnrollmentService(EnrollmentServiceParams{
		Repo:          repo,
		Projects:      projects,
		Dispatcher:    dispatcher,
		Progress:      invalidator,
		Gate:          NewGate(false),
		AllowResubmit: allowResubmit,
	})
	return svc, invalidator
}

func TestSubmitCreatesPendingEnrollment(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc, invalidator := newEnrollmentServiceForTest(repo, projects, &mockDispatcher{}, false)

	actor := models.Actor{ID: "v1", Role: models.RoleVolunteer}
	detail, err := svc.Submit(context.Background(), actor, submitRequest("p1", "v1"))

	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusPending, detail.Status)
	assert.Equal(t, "v1", detail.VolunteerID)
	assert.Nil(t, detail.ReviewedAt)
	assert.Contains(t, invalidator.projects, "p1")
}

func TestSubmitOnBehalfOfAnotherVolunteerIsUnauthorized(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc, _ := newEnrollmentServiceForTest(repo, projects, &mockDispatcher{}, false)

	admin := models.Actor{ID: "a1", Role: models.RoleAdmin}
	_, err := svc.Submit(context.Background(), admin, submitRequest("p1", "v1"))

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestSubmitClosedProject(t *testing.T) {
	project := openProject("p1")
	project.OpenForEnrollment = false
	repo := &mockEnrollmentRepo{}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": project}}
	svc, _ := newEnrollmentServiceForTest(repo, projects, &mockDispatcher{}, false)

	actor := models.Actor{ID: "v1", Role: models.RoleVolunteer}
	_, err := svc.Submit(context.Background(), actor, submitRequest("p1", "v1"))

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrEnrollmentsClosed.Code, appErr.Code)
}

func TestSubmitDuplicateIsRejected(t *testing.T) {
	for _, status := range []models.EnrollmentStatus{
		models.EnrollmentStatusPending,
		models.EnrollmentStatusApproved,
		models.EnrollmentStatusRejected,
	} {
		repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
			enrollKey("p1", "v1"): {ProjectID: "p1", VolunteerID: "v1", Status: status},
		}}
		projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
		svc, _ := newEnrollmentServiceForTest(repo, projects, &mockDispatcher{}, false)

		actor := models.Actor{ID: "v1", Role: models.RoleVolunteer}
		_, err := svc.Submit(context.Background(), actor, submitRequest("p1", "v1"))

		appErr := appErrors.FromError(err)
		require.NotNil(t, appErr, "status %s", status)
		assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, appErr.Code, "status %s", status)
	}
}

func TestSubmitLostInsertRaceIsAlreadyEnrolled(t *testing.T) {
	// The existence check sees nothing, then the insert hits the
	// unique index because another submit landed first.
	repo := &mockEnrollmentRepo{createErr: repository.ErrDuplicateEnrollment}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc, _ := newEnrollmentServiceForTest(repo, projects, &mockDispatcher{}, false)

	actor := models.Actor{ID: "v1", Role: models.RoleVolunteer}
	_, err := svc.Submit(context.Background(), actor, submitRequest("p1", "v1"))

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, appErr.Code)
}

func TestSubmitResubmitReplacesRejectedRecord(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		enrollKey("p1", "v1"): {ProjectID: "p1", VolunteerID: "v1", Status: models.EnrollmentStatusRejected},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc, _ := newEnrollmentServiceForTest(repo, projects, &mockDispatcher{}, true)

	actor := models.Actor{ID: "v1", Role: models.RoleVolunteer}
	detail, err := svc.Submit(context.Background(), actor, submitRequest("p1", "v1"))

	require.NoError(t, err)
	assert.True(t, repo.replaced)
	assert.Equal(t, models.EnrollmentStatusPending, detail.Status)
}

func TestApproveEmitsEventToVolunteer(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		enrollKey("p1", "v1"): {ProjectID: "p1", VolunteerID: "v1", Status: models.EnrollmentStatusPending},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	dispatcher := &mockDispatcher{}
	svc, invalidator := newEnrollmentServiceForTest(repo, projects, dispatcher, false)

	admin := models.Actor{ID: "a1", Role: models.RoleAdmin}
	detail, err := svc.Approve(context.Background(), admin, "p1", "v1")

	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApproved, detail.Status)
	require.Len(t, dispatcher.events, 1)
	assert.Equal(t, models.NotificationEnrollmentApproved, dispatcher.events[0].Type)
	assert.Equal(t, "v1", dispatcher.events[0].RecipientID)
	assert.Contains(t, invalidator.projects, "p1")
}

func TestApproveSurvivesDispatcherFailure(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		enrollKey("p1", "v1"): {ProjectID: "p1", VolunteerID: "v1", Status: models.EnrollmentStatusPending},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	dispatcher := &mockDispatcher{err: errors.New("broker unavailable")}
	svc, _ := newEnrollmentServiceForTest(repo, projects, dispatcher, false)

	admin := models.Actor{ID: "a1", Role: models.RoleAdmin}
	detail, err := svc.Approve(context.Background(), admin, "p1", "v1")

	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusApproved, detail.Status)
	assert.Equal(t, models.EnrollmentStatusApproved, repo.enrollments[enrollKey("p1", "v1")].Status)
}

func TestRejectSurvivesDispatcherFailure(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		enrollKey("p1", "v1"): {ProjectID: "p1", VolunteerID: "v1", Status: models.EnrollmentStatusPending},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	dispatcher := &mockDispatcher{err: errors.New("broker unavailable")}
	svc, _ := newEnrollmentServiceForTest(repo, projects, dispatcher, false)

	admin := models.Actor{ID: "a1", Role: models.RoleAdmin}
	detail, err := svc.Reject(context.Background(), admin, "p1", "v1", RejectEnrollmentRequest{Reason: "incomplete documents"})

	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusRejected, detail.Status)
	assert.Equal(t, models.EnrollmentStatusRejected, repo.enrollments[enrollKey("p1", "v1")].Status)
}

func TestApproveRequiresAdmin(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		enrollKey("p1", "v1"): {ProjectID: "p1", VolunteerID: "v1", Status: models.EnrollmentStatusPending},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc, _ := newEnrollmentServiceForTest(repo, projects, &mockDispatcher{}, false)

	volunteer := models.Actor{ID: "v1", Role: models.RoleVolunteer}
	_, err := svc.Approve(context.Background(), volunteer, "p1", "v1")

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestReviewOnNonPendingEnrollment(t *testing.T) {
	for _, status := range []models.EnrollmentStatus{
		models.EnrollmentStatusApproved,
		models.EnrollmentStatusRejected,
	} {
		repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
			enrollKey("p1", "v1"): {ProjectID: "p1", VolunteerID: "v1", Status: status},
		}}
		projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
		dispatcher := &mockDispatcher{}
		svc, _ := newEnrollmentServiceForTest(repo, projects, dispatcher, false)

		admin := models.Actor{ID: "a1", Role: models.RoleAdmin}
		_, err := svc.Approve(context.Background(), admin, "p1", "v1")

		appErr := appErrors.FromError(err)
		require.NotNil(t, appErr, "status %s", status)
		assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code, "status %s", status)
		assert.Empty(t, dispatcher.events, "no event on failed review")
	}
}

func TestReviewLosingRaceFailsCleanly(t *testing.T) {
	lost := false
	repo := &mockEnrollmentRepo{
		enrollments: map[string]models.Enrollment{
			enrollKey("p1", "v1"): {ProjectID: "p1", VolunteerID: "v1", Status: models.EnrollmentStatusPending},
		},
		reviewOK: &lost,
	}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	dispatcher := &mockDispatcher{}
	svc, _ := newEnrollmentServiceForTest(repo, projects, dispatcher, false)

	admin := models.Actor{ID: "a1", Role: models.RoleAdmin}
	_, err := svc.Approve(context.Background(), admin, "p1", "v1")

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErr.Code)
	assert.Empty(t, dispatcher.events)
}

func TestRejectRequiresReason(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		enrollKey("p1", "v1"): {ProjectID: "p1", VolunteerID: "v1", Status: models.EnrollmentStatusPending},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc, _ := newEnrollmentServiceForTest(repo, projects, &mockDispatcher{}, false)

	admin := models.Actor{ID: "a1", Role: models.RoleAdmin}
	_, err := svc.Reject(context.Background(), admin, "p1", "v1", RejectEnrollmentRequest{Reason: "   "})

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrReasonRequired.Code, appErr.Code)
	assert.Equal(t, models.EnrollmentStatusPending, repo.enrollments[enrollKey("p1", "v1")].Status)
}

func TestRejectCarriesReasonInEvent(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		enrollKey("p1", "v1"): {ProjectID: "p1", VolunteerID: "v1", Status: models.EnrollmentStatusPending},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	dispatcher := &mockDispatcher{}
	svc, _ := newEnrollmentServiceForTest(repo, projects, dispatcher, false)

	admin := models.Actor{ID: "a1", Role: models.RoleAdmin}
	detail, err := svc.Reject(context.Background(), admin, "p1", "v1", RejectEnrollmentRequest{Reason: "incomplete documents"})

	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusRejected, detail.Status)
	require.NotNil(t, detail.RejectionReason)
	assert.Equal(t, "incomplete documents", *detail.RejectionReason)
	require.Len(t, dispatcher.events, 1)
	assert.Equal(t, models.NotificationEnrollmentRejected, dispatcher.events[0].Type)
	assert.Equal(t, "incomplete documents", dispatcher.events[0].Payload["reason"])
}

func TestWithdrawIsIdempotent(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		enrollKey("p1", "v1"): {ProjectID: "p1", VolunteerID: "v1", Status: models.EnrollmentStatusApproved},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc, invalidator := newEnrollmentServiceForTest(repo, projects, &mockDispatcher{}, false)

	actor := models.Actor{ID: "v1", Role: models.RoleVolunteer}
	require.NoError(t, svc.Withdraw(context.Background(), actor, "p1", "v1"))
	assert.Empty(t, repo.enrollments)
	assert.Len(t, invalidator.projects, 1)

	// Second withdrawal of a record that no longer exists is a no-op.
	require.NoError(t, svc.Withdraw(context.Background(), actor, "p1", "v1"))
	assert.Len(t, invalidator.projects, 1)
}

func TestWithdrawByAdminRequiresPolicy(t *testing.T) {
	repo := &mockEnrollmentRepo{enrollments: map[string]models.Enrollment{
		enrollKey("p1", "v1"): {ProjectID: "p1", VolunteerID: "v1", Status: models.EnrollmentStatusApproved},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc, _ := newEnrollmentServiceForTest(repo, projects, &mockDispatcher{}, false)

	admin := models.Actor{ID: "a1", Role: models.RoleAdmin}
	err := svc.Withdraw(context.Background(), admin, "p1", "v1")

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestStatusNilWhenNoRecord(t *testing.T) {
	repo := &mockEnrollmentRepo{}
	projects := &mockProjectReader{}
	svc, _ := newEnrollmentServiceForTest(repo, projects, &mockDispatcher{}, false)

	status, err := svc.Status(context.Background(), "p1", "v1")

	require.NoError(t, err)
	assert.Nil(t, status)
}
