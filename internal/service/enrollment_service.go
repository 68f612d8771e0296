package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/volunhub/volunhub-api/internal/models"
	"github.com/volunhub/volunhub-api/internal/repository"
	appErrors "github.com/volunhub/volunhub-api/pkg/errors"
)

type enrollmentRepository interface {
	FindByKey(ctx context.Context, projectID, volunteerID string) (*models.Enrollment, error)
	FindDetailByKey(ctx context.Context, projectID, volunteerID string) (*models.EnrollmentDetail, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Replace(ctx context.Context, enrollment *models.Enrollment) error
	Review(ctx context.Context, projectID, volunteerID string, status models.EnrollmentStatus, reviewerID string, reason *string, reviewedAt time.Time) (bool, error)
	DeleteByKey(ctx context.Context, projectID, volunteerID string) (bool, error)
	StatusByKey(ctx context.Context, projectID, volunteerID string) (models.EnrollmentStatus, error)
}

type projectReader interface {
	FindByID(ctx context.Context, id string) (*models.Project, error)
}

type eventDispatcher interface {
	Dispatch(ctx context.Context, event models.Event) error
}

type progressInvalidator interface {
	InvalidateProject(ctx context.Context, projectID string)
}

// SubmitEnrollmentRequest describes a volunteer's enrollment submission.
type SubmitEnrollmentRequest struct {
	ProjectID        string   `json:"project_id" validate:"required"`
	VolunteerID      string   `json:"volunteer_id" validate:"required"`
	ContactEmail     string   `json:"contact_email" validate:"required,email"`
	ContactPhone     string   `json:"contact_phone"`
	Motivation       string   `json:"motivation" validate:"required"`
	AvailabilityTags []string `json:"availability_tags"`
	IdentityDocRef   string   `json:"identity_doc_ref" validate:"required"`
	SignatureDocRef  string   `json:"signature_doc_ref" validate:"required"`
}

// RejectEnrollmentRequest carries the mandatory rejection reason.
type RejectEnrollmentRequest struct {
	Reason string `json:"reason"`
}

// EnrollmentService owns the enrollment state machine: a volunteer
// submits a pending record, an administrator approves or rejects it,
// and withdrawal deletes it from any status.
type EnrollmentService struct {
	repo          enrollmentRepository
	projects      projectReader
	dispatcher    eventDispatcher
	progress      progressInvalidator
	gate          *Gate
	allowResubmit bool
	validator     *validator.Validate
	logger        *zap.Logger
	now           func() time.Time
}

// EnrollmentServiceParams groups constructor dependencies.
type EnrollmentServiceParams struct {
	Repo          enrollmentRepository
	Projects      projectReader
	Dispatcher    eventDispatcher
	Progress      progressInvalidator
	Gate          *Gate
	AllowResubmit bool
	Validator     *validator.Validate
	Logger        *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(params EnrollmentServiceParams) *EnrollmentService {
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
	return &EnrollmentService{
		repo:          params.Repo,
		projects:      params.Projects,
		dispatcher:    params.Dispatcher,
		progress:      params.Progress,
		gate:          gate,
		allowResubmit: params.AllowResubmit,
		validator:     v,
		logger:        logger,
		now:           time.Now,
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

// Submit creates a pending enrollment for the (project, volunteer) pair.
func (s *EnrollmentService) Submit(ctx context.Context, actor models.Actor, req SubmitEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.gate.CanSubmit(actor, req.VolunteerID); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	project, err := s.projects.FindByID(ctx, req.ProjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "project not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load project")
	}
	if !project.OpenForEnrollment {
		return nil, appErrors.ErrEnrollmentsClosed
	}

	enrollment := &models.Enrollment{
		ProjectID:   req.ProjectID,
		VolunteerID: req.VolunteerID,
		Status:      models.EnrollmentStatusPending,
		SubmittedAt: s.now().UTC(),
		ApplicationPayload: models.ApplicationPayload{
			ContactEmail:     req.ContactEmail,
			ContactPhone:     req.ContactPhone,
			Motivation:       req.Motivation,
			AvailabilityTags: req.AvailabilityTags,
			IdentityDocRef:   req.IdentityDocRef,
			SignatureDocRef:  req.SignatureDocRef,
		},
	}

	existing, err := s.repo.FindByKey(ctx, req.ProjectID, req.VolunteerID)
	switch {
	case err == nil:
		if s.allowResubmit && existing.Status == models.EnrollmentStatusRejected {
			if err := s.repo.Replace(ctx, enrollment); err != nil {
				if errors.Is(err, repository.ErrDuplicateEnrollment) {
					return nil, appErrors.ErrAlreadyEnrolled
				}
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resubmit enrollment")
			}
		} else {
			return nil, appErrors.ErrAlreadyEnrolled
		}
	case errors.Is(err, sql.ErrNoRows):
		if err := s.repo.Create(ctx, enrollment); err != nil {
			// A concurrent submit can win the race between the existence
			// check and the insert; the unique index reports it.
			if errors.Is(err, repository.ErrDuplicateEnrollment) {
				return nil, appErrors.ErrAlreadyEnrolled
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create enrollment")
		}
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}

	s.invalidate(ctx, req.ProjectID)
	detail, err := s.repo.FindDetailByKey(ctx, req.ProjectID, req.VolunteerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Withdraw deletes the enrollment regardless of status. Withdrawing a
// nonexistent record is an idempotent no-op.
func (s *EnrollmentService) Withdraw(ctx context.Context, actor models.Actor, projectID, volunteerID string) error {
	if err := s.gate.CanWithdraw(actor, volunteerID); err != nil {
		return err
	}
	deleted, err := s.repo.DeleteByKey(ctx, projectID, volunteerID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw enrollment")
	}
	if deleted {
		s.invalidate(ctx, projectID)
		s.logger.Info("enrollment withdrawn",
			zap.String("project_id", projectID),
			zap.String("volunteer_id", volunteerID),
			zap.String("actor_id", actor.ID))
	}
	return nil
}

// Approve transitions a pending enrollment to approved and emits the
// EnrollmentApproved event to the volunteer.
func (s *EnrollmentService) Approve(ctx context.Context, actor models.Actor, projectID, volunteerID string) (*models.EnrollmentDetail, error) {
	if err := s.gate.CanReview(actor); err != nil {
		return nil, err
	}
	if err := s.review(ctx, actor, projectID, volunteerID, models.EnrollmentStatusApproved, nil); err != nil {
		return nil, err
	}

	event := models.Event{
		Type:        models.NotificationEnrollmentApproved,
		RecipientID: volunteerID,
		Payload: map[string]interface{}{
			"project_id":  projectID,
			"reviewed_by": actor.ID,
		},
	}
	s.dispatch(ctx, event)

	s.invalidate(ctx, projectID)
	detail, err := s.repo.FindDetailByKey(ctx, projectID, volunteerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Reject transitions a pending enrollment to rejected. A non-empty
// reason is mandatory and travels with the EnrollmentRejected event.
func (s *EnrollmentService) Reject(ctx context.Context, actor models.Actor, projectID, volunteerID string, req RejectEnrollmentRequest) (*models.EnrollmentDetail, error) {
	if err := s.gate.CanReview(actor); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, appErrors.ErrReasonRequired
	}
	if err := s.review(ctx, actor, projectID, volunteerID, models.EnrollmentStatusRejected, &reason); err != nil {
		return nil, err
	}

	event := models.Event{
		Type:        models.NotificationEnrollmentRejected,
		RecipientID: volunteerID,
		Payload: map[string]interface{}{
			"project_id":  projectID,
			"reviewed_by": actor.ID,
			"reason":      reason,
		},
	}
	s.dispatch(ctx, event)

	s.invalidate(ctx, projectID)
	detail, err := s.repo.FindDetailByKey(ctx, projectID, volunteerID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Status returns the enrollment status for the pair, or nil when no
// record exists.
func (s *EnrollmentService) Status(ctx context.Context, projectID, volunteerID string) (*models.EnrollmentStatus, error) {
	status, err := s.repo.StatusByKey(ctx, projectID, volunteerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment status")
	}
	return &status, nil
}

func (s *EnrollmentService) review(ctx context.Context, actor models.Actor, projectID, volunteerID string, status models.EnrollmentStatus, reason *string) error {
	current, err := s.repo.FindByKey(ctx, projectID, volunteerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	if current.Status != models.EnrollmentStatusPending {
		return appErrors.ErrInvalidTransition
	}

	ok, err := s.repo.Review(ctx, projectID, volunteerID, status, actor.ID, reason, s.now().UTC())
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to review enrollment")
	}
	// The guarded update lost a race with a concurrent writer.
	if !ok {
		return appErrors.ErrInvalidTransition
	}
	return nil
}

// dispatch hands the event to the dispatcher. By the time an event
// fires the status change is already committed, so delivery is best
// effort: a dispatcher failure is logged, never surfaced as a
// partial-failure error to the caller.
func (s *EnrollmentService) dispatch(ctx context.Context, event models.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, event); err != nil {
		s.logger.Warn("notification dispatch failed",
			zap.String("type", string(event.Type)),
			zap.String("recipient_id", event.RecipientID),
			zap.Error(err))
	}
}

func (s *EnrollmentService) invalidate(ctx context.Context, projectID string) {
	if s.progress != nil {
		s.progress.InvalidateProject(ctx, projectID)
	}
}
