package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/volunhub/volunhub-api/internal/models"
	appErrors "github.com/volunhub/volunhub-api/pkg/errors"
)

type activityReader interface {
	ListByProject(ctx context.Context, projectID string) ([]models.Activity, error)
	EarnedHoursByVolunteer(ctx context.Context, volunteerID string) (map[string]float64, error)
}

type enrollmentStatusReader interface {
	StatusesByVolunteer(ctx context.Context, volunteerID string) (map[string]models.EnrollmentStatus, error)
	StatusByKey(ctx context.Context, projectID, volunteerID string) (models.EnrollmentStatus, error)
}

type projectNameReader interface {
	FindByID(ctx context.Context, id string) (*models.Project, error)
}

// HoursService is the single source of truth for derived hour totals.
// It holds no state of its own: every query re-derives from the
// enrollment store and the activity ledger. Project-level progress may
// be cached, but every ledger or enrollment mutation invalidates it.
type HoursService struct {
	activities  activityReader
	enrollments enrollmentStatusReader
	projects    projectNameReader
	cache       *CacheService
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewHoursService constructs HoursService.
func NewHoursService(activities activityReader, enrollments enrollmentStatusReader, projects projectNameReader, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *HoursService {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HoursService{
		activities:  activities,
		enrollments: enrollments,
		projects:    projects,
		cache:       cache,
		cacheTTL:    cacheTTL,
		logger:      logger,
	}
}

func progressCacheKey(projectID string) string {
	return fmt.Sprintf("progress:project:%s", projectID)
}

// InvalidateProject drops cached progress for a project. Called by the
// enrollment and activity services after every mutation.
func (s *HoursService) InvalidateProject(ctx context.Context, projectID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, progressCacheKey(projectID)); err != nil {
		s.logger.Warn("progress cache invalidation failed", zap.String("project_id", projectID), zap.Error(err))
	}
}

// EarnedHours returns the volunteer's certified hours on one project.
// This is the activity-level fact: it counts completion regardless of
// enrollment status.
func (s *HoursService) EarnedHours(ctx context.Context, volunteerID, projectID string) (float64, error) {
	activities, err := s.activities.ListByProject(ctx, projectID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
	}
	var earned float64
	for i := range activities {
		if activities[i].Completed(volunteerID) {
			earned += activities[i].HoursValue
		}
	}
	return earned, nil
}

// Summary derives the volunteer's hour totals across all projects.
// Hours accrue only under an approved enrollment: certified completion
// under a pending or rejected enrollment is reported per project but
// excluded from the total until approval.
func (s *HoursService) Summary(ctx context.Context, volunteerID string) (*models.HourSummary, error) {
	earned, err := s.activities.EarnedHoursByVolunteer(ctx, volunteerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum earned hours")
	}
	statuses, err := s.enrollments.StatusesByVolunteer(ctx, volunteerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment statuses")
	}

	projectIDs := make([]string, 0, len(earned)+len(statuses))
	seen := make(map[string]struct{})
	for projectID := range earned {
		projectIDs = append(projectIDs, projectID)
		seen[projectID] = struct{}{}
	}
	for projectID := range statuses {
		if _, ok := seen[projectID]; !ok {
			projectIDs = append(projectIDs, projectID)
		}
	}
	sort.Strings(projectIDs)

	summary := &models.HourSummary{VolunteerID: volunteerID, Projects: make([]models.ProjectHours, 0, len(projectIDs))}
	for _, projectID := range projectIDs {
		status := statuses[projectID]
		counted := status == models.EnrollmentStatusApproved
		hours := earned[projectID]
		if counted {
			summary.TotalHours += hours
		}
		entry := models.ProjectHours{
			ProjectID:        projectID,
			EnrollmentStatus: status,
			EarnedHours:      hours,
			Counted:          counted,
		}
		if project, err := s.projects.FindByID(ctx, projectID); err == nil {
			entry.ProjectName = project.Name
		}
		summary.Projects = append(summary.Projects, entry)
	}
	return summary, nil
}

// TotalHours returns the volunteer's accrued total across approved
// enrollments only.
func (s *HoursService) TotalHours(ctx context.Context, volunteerID string) (float64, error) {
	summary, err := s.Summary(ctx, volunteerID)
	if err != nil {
		return 0, err
	}
	return summary.TotalHours, nil
}

// ProjectProgress summarises certified completion across the whole
// project, independent of any single volunteer. Returns cache-hit info
// alongside the payload.
func (s *HoursService) ProjectProgress(ctx context.Context, projectID string) (*models.Progress, bool, error) {
	key := progressCacheKey(projectID)
	if s.cache != nil {
		var cached models.Progress
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, true, nil
		}
	}

	activities, err := s.activities.ListByProject(ctx, projectID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
	}

	progress := &models.Progress{TotalActivityCount: len(activities)}
	for i := range activities {
		progress.TotalHours += activities[i].HoursValue
		if activities[i].Certified {
			progress.CompletedActivityCount++
			progress.CompletedHours += activities[i].HoursValue
		}
	}
	progress.PercentComplete = percent(progress.CompletedHours, progress.TotalHours)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, progress, s.cacheTTL); err != nil {
			s.logger.Warn("progress cache set failed", zap.String("project_id", projectID), zap.Error(err))
		}
	}
	return progress, false, nil
}

// VolunteerProgress summarises one volunteer's completion within a
// project, scoped to their membership in each activity's completion set.
func (s *HoursService) VolunteerProgress(ctx context.Context, projectID, volunteerID string) (*models.Progress, error) {
	activities, err := s.activities.ListByProject(ctx, projectID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
	}

	progress := &models.Progress{TotalActivityCount: len(activities)}
	for i := range activities {
		progress.TotalHours += activities[i].HoursValue
		if activities[i].Completed(volunteerID) {
			progress.CompletedActivityCount++
			progress.CompletedHours += activities[i].HoursValue
		}
	}
	progress.PercentComplete = percent(progress.CompletedHours, progress.TotalHours)
	return progress, nil
}

// percent guards against a zero denominator: no hours defined means 0%,
// never an error.
func percent(completed, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(completed/total*10000) / 100
}
