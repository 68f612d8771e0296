package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volunhub/volunhub-api/internal/models"
	appErrors "github.com/volunhub/volunhub-api/pkg/errors"
)

type mockActivityRepo struct {
	activities map[string]models.Activity
	nextID     int
}

func (m *mockActivityRepo) FindByID(ctx context.Context, id string) (*models.Activity, error) {
	if a, ok := m.activities[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockActivityRepo) ListByProject(ctx context.Context, projectID string) ([]models.Activity, error) {
	var out []models.Activity
	for _, a := range m.activities {
		if a.ProjectID == projectID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockActivityRepo) SumHoursByProject(ctx context.Context, projectID, excludeID string) (float64, error) {
	var sum float64
	for _, a := range m.activities {
		if a.ProjectID == projectID && a.ID != excludeID {
			sum += a.HoursValue
		}
	}
	return sum, nil
}

func (m *mockActivityRepo) Create(ctx context.Context, activity *models.Activity) error {
	if m.activities == nil {
		m.activities = make(map[string]models.Activity)
	}
	if activity.ID == "" {
		m.nextID++
		activity.ID = "act-" + strconv.Itoa(m.nextID)
	}
	m.activities[activity.ID] = *activity
	return nil
}

func (m *mockActivityRepo) Update(ctx context.Context, activity *models.Activity) error {
	m.activities[activity.ID] = *activity
	return nil
}

func (m *mockActivityRepo) Delete(ctx context.Context, id string) error {
	delete(m.activities, id)
	return nil
}

func (m *mockActivityRepo) ReplaceCompletions(ctx context.Context, activityID string, volunteerIDs []string, certifierID string, at time.Time) error {
	a := m.activities[activityID]
	a.CompletedBy = volunteerIDs
	a.Certified = len(volunteerIDs) > 0
	if a.Certified {
		a.CertifiedBy = &certifierID
		a.CertifiedAt = &at
	} else {
		a.CertifiedBy = nil
		a.CertifiedAt = nil
	}
	m.activities[activityID] = a
	return nil
}

func (m *mockActivityRepo) EarnedHoursByVolunteer(ctx context.Context, volunteerID string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, a := range m.activities {
		for _, v := range a.CompletedBy {
			if v == volunteerID {
				out[a.ProjectID] += a.HoursValue
			}
		}
	}
	return out, nil
}

func (m *mockActivityRepo) EarnedHoursByProjectVolunteers(ctx context.Context, projectID string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, a := range m.activities {
		if a.ProjectID != projectID {
			continue
		}
		for _, v := range a.CompletedBy {
			out[v] += a.HoursValue
		}
	}
	return out, nil
}

type mockApprovedLister struct {
	approved map[string][]string
}

func (m *mockApprovedLister) ListApprovedVolunteers(ctx context.Context, projectID string) ([]string, error) {
	return m.approved[projectID], nil
}

func newActivityServiceForTest(repo *mockActivityRepo, projects *mockProjectReader, lister *mockApprovedLister, dispatcher *mockDispatcher) *ActivityService {
	return NewActivityService(ActivityServiceParams{
		Repo:        repo,
		Projects:    projects,
		Enrollments: lister,
		Dispatcher:  dispatcher,
		Progress:    &mockInvalidator{},
		Gate:        NewGate(false),
	})
}

func adminActor() models.Actor {
	return models.Actor{ID: "a1", Role: models.RoleAdmin}
}

func TestAddActivityWithinCapacity(t *testing.T) {
	repo := &mockActivityRepo{}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc := newActivityServiceForTest(repo, projects, &mockApprovedLister{}, &mockDispatcher{})

	activity, err := svc.Add(context.Background(), adminActor(), AddActivityRequest{
		ProjectID:  "p1",
		Name:       "Morning shift",
		HoursValue: 4,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, activity.ID)
	assert.False(t, activity.Certified)
}

func TestAddActivityExceedingCapacityLeavesLedgerUntouched(t *testing.T) {
	repo := &mockActivityRepo{activities: map[string]models.Activity{
		"a1": {ID: "a1", ProjectID: "p1", HoursValue: 38},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc := newActivityServiceForTest(repo, projects, &mockApprovedLister{}, &mockDispatcher{})

	_, err := svc.Add(context.Background(), adminActor(), AddActivityRequest{
		ProjectID:  "p1",
		Name:       "Long shift",
		HoursValue: 3,
	})

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrHoursExceedCapacity.Code, appErr.Code)
	assert.Len(t, repo.activities, 1)
}

func TestAddActivityRequiresAdmin(t *testing.T) {
	repo := &mockActivityRepo{}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc := newActivityServiceForTest(repo, projects, &mockApprovedLister{}, &mockDispatcher{})

	volunteer := models.Actor{ID: "v1", Role: models.RoleVolunteer}
	_, err := svc.Add(context.Background(), volunteer, AddActivityRequest{
		ProjectID:  "p1",
		Name:       "Shift",
		HoursValue: 2,
	})

	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErr.Code)
}

func TestEditActivityHoursExcludesSelfFromCapacityCheck(t *testing.T) {
	repo := &mockActivityRepo{activities: map[string]models.Activity{
		"a1": {ID: "a1", ProjectID: "p1", Name: "Shift", HoursValue: 30},
		"a2": {ID: "a2", ProjectID: "p1", Name: "Other", HoursValue: 5},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc := newActivityServiceForTest(repo, projects, &mockApprovedLister{}, &mockDispatcher{})

	// 5 (other) + 35 (new value) = 40, exactly the project total.
	newHours := 35.0
	activity, err := svc.Edit(context.Background(), adminActor(), "a1", EditActivityRequest{HoursValue: &newHours})
	require.NoError(t, err)
	assert.Equal(t, 35.0, activity.HoursValue)

	// 5 + 36 would breach the total.
	tooMany := 36.0
	_, err = svc.Edit(context.Background(), adminActor(), "a1", EditActivityRequest{HoursValue: &tooMany})
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrHoursExceedCapacity.Code, appErr.Code)
}

func TestCertifyReplacesCompletionSetWholesale(t *testing.T) {
	repo := &mockActivityRepo{activities: map[string]models.Activity{
		"a1": {ID: "a1", ProjectID: "p1", Name: "Shift", HoursValue: 4, CompletedBy: []string{"v1", "v2"}},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc := newActivityServiceForTest(repo, projects, &mockApprovedLister{}, &mockDispatcher{})

	activity, err := svc.Certify(context.Background(), adminActor(), "a1", CertifyActivityRequest{
		VolunteerIDs: []string{"v3", "v3", ""},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"v3"}, activity.CompletedBy)
	assert.True(t, activity.Certified)
	require.NotNil(t, activity.CertifiedBy)
	assert.Equal(t, "a1", *activity.CertifiedBy)
}

func TestCertifyEmptySetClearsCertification(t *testing.T) {
	repo := &mockActivityRepo{activities: map[string]models.Activity{
		"a1": {ID: "a1", ProjectID: "p1", Name: "Shift", HoursValue: 4, CompletedBy: []string{"v1"}, Certified: true},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc := newActivityServiceForTest(repo, projects, &mockApprovedLister{}, &mockDispatcher{})

	activity, err := svc.Certify(context.Background(), adminActor(), "a1", CertifyActivityRequest{VolunteerIDs: nil})

	require.NoError(t, err)
	assert.Empty(t, activity.CompletedBy)
	assert.False(t, activity.Certified)
	assert.Nil(t, activity.CertifiedBy)
}

func TestCertifyFiresGoalCompletedForNewlyAtGoalVolunteers(t *testing.T) {
	project := openProject("p1")
	project.TotalHours = 8
	repo := &mockActivityRepo{activities: map[string]models.Activity{
		"a1": {ID: "a1", ProjectID: "p1", Name: "First", HoursValue: 4, CompletedBy: []string{"v1"}},
		"a2": {ID: "a2", ProjectID: "p1", Name: "Second", HoursValue: 4},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": project}}
	lister := &mockApprovedLister{approved: map[string][]string{"p1": {"v1", "v2"}}}
	dispatcher := &mockDispatcher{}
	svc := newActivityServiceForTest(repo, projects, lister, dispatcher)

	// v1 reaches 8 of 8 hours; v2 only has 4.
	_, err := svc.Certify(context.Background(), adminActor(), "a2", CertifyActivityRequest{
		VolunteerIDs: []string{"v1", "v2"},
	})

	require.NoError(t, err)
	require.Len(t, dispatcher.events, 1)
	assert.Equal(t, models.NotificationGoalCompleted, dispatcher.events[0].Type)
	assert.Equal(t, "v1", dispatcher.events[0].RecipientID)
	assert.Equal(t, "p1", dispatcher.events[0].Payload["project_id"])
}

func TestCertifySurvivesGoalDispatcherFailure(t *testing.T) {
	project := openProject("p1")
	project.TotalHours = 4
	repo := &mockActivityRepo{activities: map[string]models.Activity{
		"a1": {ID: "a1", ProjectID: "p1", Name: "Shift", HoursValue: 4},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": project}}
	lister := &mockApprovedLister{approved: map[string][]string{"p1": {"v1"}}}
	dispatcher := &mockDispatcher{err: errors.New("broker unavailable")}
	svc := newActivityServiceForTest(repo, projects, lister, dispatcher)

	activity, err := svc.Certify(context.Background(), adminActor(), "a1", CertifyActivityRequest{VolunteerIDs: []string{"v1"}})

	require.NoError(t, err)
	assert.True(t, activity.Certified)
	assert.Equal(t, []string{"v1"}, activity.CompletedBy)
}

func TestCertifySameSetTwiceFiresGoalOnce(t *testing.T) {
	project := openProject("p1")
	project.TotalHours = 4
	repo := &mockActivityRepo{activities: map[string]models.Activity{
		"a1": {ID: "a1", ProjectID: "p1", Name: "Shift", HoursValue: 4},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": project}}
	lister := &mockApprovedLister{approved: map[string][]string{"p1": {"v1"}}}
	dispatcher := &mockDispatcher{}
	svc := newActivityServiceForTest(repo, projects, lister, dispatcher)

	_, err := svc.Certify(context.Background(), adminActor(), "a1", CertifyActivityRequest{VolunteerIDs: []string{"v1"}})
	require.NoError(t, err)
	_, err = svc.Certify(context.Background(), adminActor(), "a1", CertifyActivityRequest{VolunteerIDs: []string{"v1"}})
	require.NoError(t, err)

	assert.Len(t, dispatcher.events, 1)
}

func TestCertifyIgnoresUnapprovedVolunteersForGoal(t *testing.T) {
	project := openProject("p1")
	project.TotalHours = 4
	repo := &mockActivityRepo{activities: map[string]models.Activity{
		"a1": {ID: "a1", ProjectID: "p1", Name: "Shift", HoursValue: 4},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": project}}
	lister := &mockApprovedLister{approved: map[string][]string{"p1": {}}}
	dispatcher := &mockDispatcher{}
	svc := newActivityServiceForTest(repo, projects, lister, dispatcher)

	activity, err := svc.Certify(context.Background(), adminActor(), "a1", CertifyActivityRequest{VolunteerIDs: []string{"v9"}})

	require.NoError(t, err)
	// The completion fact is recorded even without an approved enrollment.
	assert.Equal(t, []string{"v9"}, activity.CompletedBy)
	assert.Empty(t, dispatcher.events)
}

func TestRemoveActivity(t *testing.T) {
	repo := &mockActivityRepo{activities: map[string]models.Activity{
		"a1": {ID: "a1", ProjectID: "p1", Name: "Shift", HoursValue: 4, CompletedBy: []string{"v1"}},
	}}
	projects := &mockProjectReader{projects: map[string]*models.Project{"p1": openProject("p1")}}
	svc := newActivityServiceForTest(repo, projects, &mockApprovedLister{}, &mockDispatcher{})

	require.NoError(t, svc.Remove(context.Background(), adminActor(), "a1"))
	assert.Empty(t, repo.activities)

	err := svc.Remove(context.Background(), adminActor(), "a1")
	appErr := appErrors.FromError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErr.Code)
}
