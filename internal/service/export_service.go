package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/volunhub/volunhub-api/internal/models"
	"github.com/volunhub/volunhub-api/internal/repository"
	appErrors "github.com/volunhub/volunhub-api/pkg/errors"
	"github.com/volunhub/volunhub-api/pkg/export"
	"github.com/volunhub/volunhub-api/pkg/jobs"
	"github.com/volunhub/volunhub-api/pkg/storage"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	Update(ctx context.Context, id string, params repository.UpdateExportJobParams) error
	ListQueued(ctx context.Context, limit int) ([]models.ExportJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ExportJob, error)
}

type hourSummarizer interface {
	Summary(ctx context.Context, volunteerID string) (*models.HourSummary, error)
	EarnedHours(ctx context.Context, volunteerID, projectID string) (float64, error)
}

type accountReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// CreateExportRequest is the payload for requesting an export job.
type CreateExportRequest struct {
	Type      models.ExportType   `json:"type" validate:"required,oneof=hour_statement service_certificate"`
	Format    models.ExportFormat `json:"format" validate:"required,oneof=csv pdf"`
	ProjectID *string             `json:"project_id" validate:"omitempty,uuid4"`
}

// ExportService coordinates asynchronous generation of hour statements
// and service certificates. Files land in local storage and are served
// through signed, expiring download tokens.
type ExportService struct {
	jobsRepo  exportJobStore
	hours     hourSummarizer
	users     accountReader
	projects  projectReader
	store     *storage.LocalStorage
	signer    *storage.SignedURLSigner
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	queue     jobEnqueuer
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	resultTTL time.Duration
	now       func() time.Time
}

// ExportServiceParams bundles ExportService dependencies.
type ExportServiceParams struct {
	JobsRepo  exportJobStore
	Hours     hourSummarizer
	Users     accountReader
	Projects  projectReader
	Store     *storage.LocalStorage
	Signer    *storage.SignedURLSigner
	Queue     jobEnqueuer
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	ResultTTL time.Duration
}

// NewExportService constructs ExportService.
func NewExportService(params ExportServiceParams) *ExportService {
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	if params.Validator == nil {
		params.Validator = validator.New()
	}
	return &ExportService{
		jobsRepo:  params.JobsRepo,
		hours:     params.Hours,
		users:     params.Users,
		projects:  params.Projects,
		store:     params.Store,
		signer:    params.Signer,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		queue:     params.Queue,
		metrics:   params.Metrics,
		validator: params.Validator,
		logger:    params.Logger,
		resultTTL: params.ResultTTL,
		now:       time.Now,
	}
}

// CreateJob registers an export job for the acting volunteer and queues it.
func (s *ExportService) CreateJob(ctx context.Context, actor models.Actor, req CreateExportRequest) (*models.ExportJob, error) {
	if actor.ID == "" {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid export request")
	}
	if req.Type == models.ExportTypeServiceCertificate {
		if req.ProjectID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "service certificates require a project")
		}
		if req.Format != models.ExportFormatPDF {
			return nil, appErrors.Clone(appErrors.ErrValidation, "service certificates are only issued as PDF")
		}
	}

	job := &models.ExportJob{
		ID:     uuid.NewString(),
		Type:   req.Type,
		Status: models.ExportStatusQueued,
		Params: models.ExportJobParams{
			VolunteerID: actor.ID,
			ProjectID:   req.ProjectID,
			Format:      req.Format,
		},
		CreatedBy: actor.ID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.jobsRepo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
		s.failJob(ctx, job.ID, err)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue export job")
	}

	s.logger.Info("export job queued",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("volunteer_id", actor.ID))
	return job, nil
}

// GetJob returns a job visible to the actor. Volunteers only see their
// own jobs; administrators see all.
func (s *ExportService) GetJob(ctx context.Context, actor models.Actor, id string) (*models.ExportJob, error) {
	job, err := s.jobsRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.CreatedBy != actor.ID && !actor.IsAdmin() {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export job belongs to another user")
	}
	return job, nil
}

// Download resolves a signed token to the stored file.
func (s *ExportService) Download(ctx context.Context, token string) (*os.File, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired download token")
	}
	job, err := s.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.Status != models.ExportStatusFinished {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export result is not available")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "export file no longer exists")
	}
	return file, relPath, nil
}

// Process is the queue handler generating the export artifact.
func (s *ExportService) Process(ctx context.Context, job jobs.Job) error {
	record, err := s.jobsRepo.GetByID(ctx, job.ID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", job.ID, err)
	}
	if record.Status == models.ExportStatusFinished {
		return nil
	}

	processing := models.ExportStatusProcessing
	if err := s.jobsRepo.Update(ctx, record.ID, repository.UpdateExportJobParams{Status: &processing}); err != nil {
		return fmt.Errorf("mark job processing: %w", err)
	}

	filename, data, err := s.render(ctx, record)
	if err != nil {
		s.failJob(ctx, record.ID, err)
		if s.metrics != nil {
			s.metrics.RecordExportJob(string(models.ExportStatusFailed))
		}
		// The failure is terminal for this job; retrying the render
		// would fail the same way.
		return nil
	}

	relPath, err := s.store.Save(filename, data)
	if err != nil {
		return fmt.Errorf("store export artifact: %w", err)
	}

	token, _, err := s.signer.Generate(record.ID, relPath)
	if err != nil {
		return fmt.Errorf("sign export url: %w", err)
	}

	finished := models.ExportStatusFinished
	resultURL := "/api/v1/exports/download/" + token
	finishedAt := s.now().UTC()
	if err := s.jobsRepo.Update(ctx, record.ID, repository.UpdateExportJobParams{
		Status:     &finished,
		ResultURL:  &resultURL,
		FinishedAt: &finishedAt,
	}); err != nil {
		return fmt.Errorf("mark job finished: %w", err)
	}
	if s.metrics != nil {
		s.metrics.RecordExportJob(string(models.ExportStatusFinished))
	}

	s.logger.Info("export job finished",
		zap.String("job_id", record.ID),
		zap.String("file", relPath))
	return nil
}

// Requeue pushes persisted queued jobs back onto the worker queue.
// Called at startup: job records survive a restart, the in-memory
// queue does not.
func (s *ExportService) Requeue(ctx context.Context) error {
	queued, err := s.jobsRepo.ListQueued(ctx, 100)
	if err != nil {
		return fmt.Errorf("list queued export jobs: %w", err)
	}
	for _, job := range queued {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			return fmt.Errorf("requeue export job %s: %w", job.ID, err)
		}
	}
	if len(queued) > 0 {
		s.logger.Info("export jobs requeued", zap.Int("count", len(queued)))
	}
	return nil
}

// Cleanup removes artifacts whose result TTL has lapsed.
func (s *ExportService) Cleanup(ctx context.Context) error {
	if s.resultTTL <= 0 {
		return nil
	}
	cutoff := s.now().UTC().Add(-s.resultTTL)
	stale, err := s.jobsRepo.ListFinishedBefore(ctx, cutoff, 100)
	if err != nil {
		return fmt.Errorf("list stale export jobs: %w", err)
	}
	var removed int
	for _, job := range stale {
		if job.ResultURL == nil {
			continue
		}
		token := lastPathSegment(*job.ResultURL)
		_, relPath, _, err := s.signer.Parse(token, true)
		if err != nil {
			s.logger.Warn("export cleanup could not resolve artifact",
				zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		if err := s.store.Delete(relPath); err != nil {
			s.logger.Warn("export cleanup failed to delete artifact",
				zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("export artifacts removed", zap.Int("count", removed))
	}
	return nil
}

func lastPathSegment(p string) string {
	if idx := strings.LastIndex(p, "/"); idx >= 0 {
		return p[idx+1:]
	}
	return p
}

func (s *ExportService) render(ctx context.Context, job *models.ExportJob) (string, []byte, error) {
	switch job.Type {
	case models.ExportTypeHourStatement:
		return s.renderStatement(ctx, job)
	case models.ExportTypeServiceCertificate:
		return s.renderCertificate(ctx, job)
	default:
		return "", nil, fmt.Errorf("unknown export type %q", job.Type)
	}
}

func (s *ExportService) renderStatement(ctx context.Context, job *models.ExportJob) (string, []byte, error) {
	summary, err := s.hours.Summary(ctx, job.Params.VolunteerID)
	if err != nil {
		return "", nil, fmt.Errorf("build hour summary: %w", err)
	}

	dataset := export.Dataset{
		Headers: []string{"Project", "Enrollment Status", "Earned Hours", "Counted"},
	}
	for _, project := range summary.Projects {
		if job.Params.ProjectID != nil && project.ProjectID != *job.Params.ProjectID {
			continue
		}
		dataset.Rows = append(dataset.Rows, map[string]string{
			"Project":           project.ProjectName,
			"Enrollment Status": string(project.EnrollmentStatus),
			"Earned Hours":      strconv.FormatFloat(project.EarnedHours, 'f', 1, 64),
			"Counted":           strconv.FormatBool(project.Counted),
		})
	}
	dataset.Rows = append(dataset.Rows, map[string]string{
		"Project":      "TOTAL",
		"Earned Hours": strconv.FormatFloat(summary.TotalHours, 'f', 1, 64),
	})

	stamp := s.now().UTC().Format("20060102T150405")
	switch job.Params.Format {
	case models.ExportFormatCSV:
		data, err := s.csv.Render(dataset)
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("hour-statement-%s-%s.csv", job.Params.VolunteerID, stamp), data, nil
	case models.ExportFormatPDF:
		data, err := s.pdf.Render(dataset, "Volunteer Hour Statement")
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("hour-statement-%s-%s.pdf", job.Params.VolunteerID, stamp), data, nil
	default:
		return "", nil, fmt.Errorf("unknown export format %q", job.Params.Format)
	}
}

func (s *ExportService) renderCertificate(ctx context.Context, job *models.ExportJob) (string, []byte, error) {
	if job.Params.ProjectID == nil {
		return "", nil, fmt.Errorf("certificate job missing project")
	}
	projectID := *job.Params.ProjectID

	volunteer, err := s.users.FindByID(ctx, job.Params.VolunteerID)
	if err != nil {
		return "", nil, fmt.Errorf("load volunteer: %w", err)
	}
	project, err := s.projects.FindByID(ctx, projectID)
	if err != nil {
		return "", nil, fmt.Errorf("load project: %w", err)
	}

	earned, err := s.hours.EarnedHours(ctx, job.Params.VolunteerID, projectID)
	if err != nil {
		return "", nil, fmt.Errorf("compute earned hours: %w", err)
	}
	if earned < project.TotalHours {
		return "", nil, fmt.Errorf("service not complete: %.1f of %.1f hours", earned, project.TotalHours)
	}

	data, err := s.pdf.RenderCertificate(export.Certificate{
		VolunteerName: volunteer.FullName,
		ProjectName:   project.Name,
		TotalHours:    earned,
		CertifiedBy:   "VolunHub Community Portal",
		IssuedOn:      s.now().UTC().Format("2 January 2006"),
		Lines:         []string{project.Location},
	})
	if err != nil {
		return "", nil, err
	}
	stamp := s.now().UTC().Format("20060102T150405")
	return fmt.Sprintf("certificate-%s-%s.pdf", job.Params.VolunteerID, stamp), data, nil
}

func (s *ExportService) failJob(ctx context.Context, id string, cause error) {
	failed := models.ExportStatusFailed
	message := cause.Error()
	finishedAt := s.now().UTC()
	if err := s.jobsRepo.Update(ctx, id, repository.UpdateExportJobParams{
		Status:       &failed,
		ErrorMessage: &message,
		FinishedAt:   &finishedAt,
	}); err != nil {
		s.logger.Error("failed to mark export job failed", zap.String("job_id", id), zap.Error(err))
	}
}
