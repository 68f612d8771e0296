package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/volunhub/volunhub-api/internal/models"
	appErrors "github.com/volunhub/volunhub-api/pkg/errors"
)

type activityRepository interface {
	FindByID(ctx context.Context, id string) (*models.Activity, error)
	ListByProject(ctx context.Context, projectID string) ([]models.Activity, error)
	SumHoursByProject(ctx context.Context, projectID, excludeID string) (float64, error)
	Create(ctx context.Context, activity *models.Activity) error
	Update(ctx context.Context, activity *models.Activity) error
	Delete(ctx context.Context, id string) error
	ReplaceCompletions(ctx context.Context, activityID string, volunteerIDs []string, certifierID string, at time.Time) error
	EarnedHoursByProjectVolunteers(ctx context.Context, projectID string) (map[string]float64, error)
}

type approvedVolunteerLister interface {
	ListApprovedVolunteers(ctx context.Context, projectID string) ([]string, error)
}

// AddActivityRequest describes activity creation.
type AddActivityRequest struct {
	ProjectID   string  `json:"project_id" validate:"required"`
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	HoursValue  float64 `json:"hours_value" validate:"required,gt=0"`
}

// EditActivityRequest patches an existing activity. A nil field leaves
// the current value untouched.
type EditActivityRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	HoursValue  *float64 `json:"hours_value"`
}

// CertifyActivityRequest carries the full replacement completion set.
type CertifyActivityRequest struct {
	VolunteerIDs []string `json:"volunteer_ids"`
}

// ActivityService owns the per-project activity ledger: hour-valued work
// units and their administrator-certified completion sets. Certification
// records fact of performance; accrual eligibility is checked by the
// hours service, not here.
type ActivityService struct {
	repo        activityRepository
	projects    projectReader
	enrollments approvedVolunteerLister
	dispatcher  eventDispatcher
	progress    progressInvalidator
	gate        *Gate
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// ActivityServiceParams groups constructor dependencies.
type ActivityServiceParams struct {
	Repo        activityRepository
	Projects    projectReader
	Enrollments approvedVolunteerLister
	Dispatcher  eventDispatcher
	Progress    progressInvalidator
	Gate        *Gate
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewActivityService constructs ActivityService.
func NewActivityService(params ActivityServiceParams) *ActivityService {
	v := params.Validator
	if v == nil {
		v = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gate := params.Gate
	if gate == nil {
		gate = NewGate(false)
	}
	return &ActivityService{
		repo:        params.Repo,
		projects:    params.Projects,
		enrollments: params.Enrollments,
		dispatcher:  params.Dispatcher,
		progress:    params.Progress,
		gate:        gate,
		validator:   v,
		logger:      logger,
		now:         time.Now,
	}
}

// ListByProject returns a project's activities with completion sets.
func (s *ActivityService) ListByProject(ctx context.Context, projectID string) ([]models.Activity, error) {
	activities, err := s.repo.ListByProject(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
	}
	return activities, nil
}

// Add creates an activity after checking that the project's activity
// hours stay within its advertised total. A failed check leaves the
// ledger untouched.
func (s *ActivityService) Add(ctx context.Context, actor models.Actor, req AddActivityRequest) (*models.Activity, error) {
	if err := s.gate.CanManageLedger(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid activity payload")
	}
	project, err := s.loadProject(ctx, req.ProjectID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCapacity(ctx, project, req.HoursValue, ""); err != nil {
		return nil, err
	}

	activity := &models.Activity{
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Description: req.Description,
		HoursValue:  req.HoursValue,
	}
	if err := s.repo.Create(ctx, activity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create activity")
	}
	s.invalidate(ctx, req.ProjectID)
	return activity, nil
}

// Edit patches an activity. Changing hours re-runs the capacity check
// with the activity's own current hours excluded from the existing sum.
func (s *ActivityService) Edit(ctx context.Context, actor models.Actor, activityID string, req EditActivityRequest) (*models.Activity, error) {
	if err := s.gate.CanManageLedger(actor); err != nil {
		return nil, err
	}
	activity, err := s.loadActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		activity.Name = *req.Name
	}
	if req.Description != nil {
		activity.Description = *req.Description
	}
	if req.HoursValue != nil {
		if *req.HoursValue <= 0 {
			return nil, appErrors.Clone(appErrors.ErrValidation, "hours value must be positive")
		}
		project, err := s.loadProject(ctx, activity.ProjectID)
		if err != nil {
			return nil, err
		}
		if err := s.checkCapacity(ctx, project, *req.HoursValue, activity.ID); err != nil {
			return nil, err
		}
		activity.HoursValue = *req.HoursValue
	}

	if err := s.repo.Update(ctx, activity); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update activity")
	}
	s.invalidate(ctx, activity.ProjectID)
	return activity, nil
}

// Remove deletes an activity unconditionally. Hour totals are always
// recomputed live, so removal simply stops future accrual.
func (s *ActivityService) Remove(ctx context.Context, actor models.Actor, activityID string) error {
	if err := s.gate.CanManageLedger(actor); err != nil {
		return err
	}
	activity, err := s.loadActivity(ctx, activityID)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, activityID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete activity")
	}
	s.invalidate(ctx, activity.ProjectID)
	return nil
}

// Certify replaces the activity's completion set wholesale and stamps
// the certification. Certifying the same set twice is idempotent. For
// every approved volunteer whose certified hours now reach the project
// total, a GoalCompleted event fires.
func (s *ActivityService) Certify(ctx context.Context, actor models.Actor, activityID string, req CertifyActivityRequest) (*models.Activity, error) {
	if err := s.gate.CanReview(actor); err != nil {
		return nil, err
	}
	activity, err := s.loadActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	project, err := s.loadProject(ctx, activity.ProjectID)
	if err != nil {
		return nil, err
	}

	volunteerIDs := dedupe(req.VolunteerIDs)
	previouslyAtGoal, err := s.volunteersAtGoal(ctx, project)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.repo.ReplaceCompletions(ctx, activityID, volunteerIDs, actor.ID, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to certify activity")
	}

	nowAtGoal, err := s.volunteersAtGoal(ctx, project)
	if err != nil {
		return nil, err
	}
	for _, volunteerID := range nowAtGoal {
		if containsString(previouslyAtGoal, volunteerID) {
			continue
		}
		event := models.Event{
			Type:        models.NotificationGoalCompleted,
			RecipientID: volunteerID,
			Payload: map[string]interface{}{
				"project_id":   project.ID,
				"project_name": project.Name,
				"total_hours":  project.TotalHours,
			},
		}
		// The completion set is already committed; goal delivery is
		// best effort.
		if s.dispatcher != nil {
			if err := s.dispatcher.Dispatch(ctx, event); err != nil {
				s.logger.Warn("goal notification dispatch failed",
					zap.String("volunteer_id", volunteerID),
					zap.String("project_id", project.ID),
					zap.Error(err))
			}
		}
	}

	s.invalidate(ctx, activity.ProjectID)
	updated, err := s.repo.FindByID(ctx, activityID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload activity")
	}
	return updated, nil
}

// volunteersAtGoal returns approved volunteers whose certified hours on
// the project meet or exceed its advertised total.
func (s *ActivityService) volunteersAtGoal(ctx context.Context, project *models.Project) ([]string, error) {
	if project.TotalHours <= 0 || s.enrollments == nil {
		return nil, nil
	}
	approved, err := s.enrollments.ListApprovedVolunteers(ctx, project.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list approved volunteers")
	}
	if len(approved) == 0 {
		return nil, nil
	}
	earned, err := s.repo.EarnedHoursByProjectVolunteers(ctx, project.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum project hours")
	}
	var atGoal []string
	for _, volunteerID := range approved {
		if earned[volunteerID] >= project.TotalHours {
			atGoal = append(atGoal, volunteerID)
		}
	}
	sort.Strings(atGoal)
	return atGoal, nil
}

func (s *ActivityService) checkCapacity(ctx context.Context, project *models.Project, hoursValue float64, excludeID string) error {
	existing, err := s.repo.SumHoursByProject(ctx, project.ID, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum activity hours")
	}
	if existing+hoursValue > project.TotalHours {
		return appErrors.ErrHoursExceedCapacity
	}
	return nil
}

func (s *ActivityService) loadActivity(ctx context.Context, id string) (*models.Activity, error) {
	activity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	return activity, nil
}

func (s *ActivityService) loadProject(ctx context.Context, id string) (*models.Project, error) {
	project, err := s.projects.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	return project, nil
}

func (s *ActivityService) invalidate(ctx context.Context, projectID string) {
	if s.progress != nil {
		s.progress.InvalidateProject(ctx, projectID)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func containsString(list []string, target string) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
