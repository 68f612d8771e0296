package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/volunhub/volunhub-api/internal/models"
	appErrors "github.com/volunhub/volunhub-api/pkg/errors"
)

type projectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Project, error)
	List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, int, error)
	Create(ctx context.Context, project *models.Project) error
	Update(ctx context.Context, project *models.Project) error
	Delete(ctx context.Context, id string) error
}

type ledgerHoursReader interface {
	SumHoursByProject(ctx context.Context, projectID, excludeActivityID string) (float64, error)
}

// CreateProjectRequest is the payload for registering a project.
type CreateProjectRequest struct {
	Name          string     `json:"name" validate:"required,min=3,max=200"`
	Description   string     `json:"description" validate:"max=2000"`
	Location      string     `json:"location" validate:"max=200"`
	TotalHours    float64    `json:"total_hours" validate:"required,gt=0"`
	CoordinatorID string     `json:"coordinator_id" validate:"required,uuid4"`
	StartsOn      *time.Time `json:"starts_on"`
	EndsOn        *time.Time `json:"ends_on"`
}

// UpdateProjectRequest patches an existing project. Nil fields are left
// untouched.
type UpdateProjectRequest struct {
	Name              *string    `json:"name" validate:"omitempty,min=3,max=200"`
	Description       *string    `json:"description" validate:"omitempty,max=2000"`
	Location          *string    `json:"location" validate:"omitempty,max=200"`
	TotalHours        *float64   `json:"total_hours" validate:"omitempty,gt=0"`
	OpenForEnrollment *bool      `json:"open_for_enrollment"`
	StartsOn          *time.Time `json:"starts_on"`
	EndsOn            *time.Time `json:"ends_on"`
}

// ProjectService manages the project catalogue.
type ProjectService struct {
	repo        projectRepository
	ledger      ledgerHoursReader
	gate        *Gate
	invalidator progressInvalidator
	validator   *validator.Validate
	logger      *zap.Logger
}

// ProjectServiceParams bundles ProjectService dependencies.
type ProjectServiceParams struct {
	Repo        projectRepository
	Ledger      ledgerHoursReader
	Gate        *Gate
	Invalidator progressInvalidator
	Validator   *validator.Validate
	Logger      *zap.Logger
}

// NewProjectService constructs ProjectService.
func NewProjectService(params ProjectServiceParams) *ProjectService {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	return &ProjectService{
		repo:        params.Repo,
		ledger:      params.Ledger,
		gate:        params.Gate,
		invalidator: params.Invalidator,
		validator:   params.Validator,
		logger:      params.Logger,
	}
}

// Get returns a single project.
func (s *ProjectService) Get(ctx context.Context, id string) (*models.Project, error) {
	project, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	return project, nil
}

// List returns projects matching the filter.
func (s *ProjectService) List(ctx context.Context, filter models.ProjectFilter) ([]models.Project, *models.Pagination, error) {
	projects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list projects")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return projects, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Create registers a new project. New projects start closed for
// enrollment until an administrator opens them.
func (s *ProjectService) Create(ctx context.Context, actor models.Actor, req CreateProjectRequest) (*models.Project, error) {
	if err := s.gate.CanManageProjects(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}

	project := &models.Project{
		Name:          req.Name,
		Description:   req.Description,
		Location:      req.Location,
		TotalHours:    req.TotalHours,
		CoordinatorID: req.CoordinatorID,
		StartsOn:      req.StartsOn,
		EndsOn:        req.EndsOn,
	}
	if err := s.repo.Create(ctx, project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create project")
	}

	s.logger.Info("project created",
		zap.String("project_id", project.ID),
		zap.String("actor_id", actor.ID))
	return project, nil
}

// Update patches a project. Shrinking total_hours below the hours
// already registered on the ledger is rejected.
func (s *ProjectService) Update(ctx context.Context, actor models.Actor, id string, req UpdateProjectRequest) (*models.Project, error) {
	if err := s.gate.CanManageProjects(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid project payload")
	}

	project, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.Location != nil {
		project.Location = *req.Location
	}
	if req.TotalHours != nil {
		registered, err := s.ledger.SumHoursByProject(ctx, id, "")
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum registered hours")
		}
		if *req.TotalHours < registered {
			return nil, appErrors.Clone(appErrors.ErrHoursExceedCapacity, "total hours cannot drop below hours already registered")
		}
		project.TotalHours = *req.TotalHours
	}
	if req.OpenForEnrollment != nil {
		project.OpenForEnrollment = *req.OpenForEnrollment
	}
	if req.StartsOn != nil {
		project.StartsOn = req.StartsOn
	}
	if req.EndsOn != nil {
		project.EndsOn = req.EndsOn
	}

	if err := s.repo.Update(ctx, project); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update project")
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateProject(ctx, id)
	}
	return project, nil
}

// SetEnrollmentOpen flips whether the project accepts new enrollments.
func (s *ProjectService) SetEnrollmentOpen(ctx context.Context, actor models.Actor, id string, open bool) (*models.Project, error) {
	return s.Update(ctx, actor, id, UpdateProjectRequest{OpenForEnrollment: &open})
}

// Delete removes a project and everything hanging off it.
func (s *ProjectService) Delete(ctx context.Context, actor models.Actor, id string) error {
	if err := s.gate.CanManageProjects(actor); err != nil {
		return err
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete project")
	}
	if s.invalidator != nil {
		s.invalidator.InvalidateProject(ctx, id)
	}
	s.logger.Info("project deleted",
		zap.String("project_id", id),
		zap.String("actor_id", actor.ID))
	return nil
}
