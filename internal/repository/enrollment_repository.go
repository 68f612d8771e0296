package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/volunhub/volunhub-api/internal/models"
)

// ErrDuplicateEnrollment reports a unique-index violation on
// (project_id, volunteer_id): a concurrent writer created the record
// between the caller's existence check and the insert.
var ErrDuplicateEnrollment = errors.New("enrollment already exists for this project and volunteer")

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `id, project_id, volunteer_id, status, submitted_at, reviewed_at, reviewed_by, rejection_reason,
        contact_email, contact_phone, motivation, availability_tags, identity_doc_ref, signature_doc_ref`

// FindByKey returns the enrollment for a (project, volunteer) pair.
func (r *EnrollmentRepository) FindByKey(ctx context.Context, projectID, volunteerID string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments WHERE project_id = $1 AND volunteer_id = $2`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, projectID, volunteerID); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// FindDetailByKey returns an enrollment with volunteer and project names.
func (r *EnrollmentRepository) FindDetailByKey(ctx context.Context, projectID, volunteerID string) (*models.EnrollmentDetail, error) {
	query := `SELECT e.id, e.project_id, e.volunteer_id, e.status, e.submitted_at, e.reviewed_at, e.reviewed_by, e.rejection_reason,
        e.contact_email, e.contact_phone, e.motivation, e.availability_tags, e.identity_doc_ref, e.signature_doc_ref,
        u.full_name AS volunteer_name, p.name AS project_name
        FROM enrollments e
        LEFT JOIN users u ON u.id = e.volunteer_id
        LEFT JOIN projects p ON p.id = e.project_id
        WHERE e.project_id = $1 AND e.volunteer_id = $2`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, projectID, volunteerID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN users u ON u.id = e.volunteer_id
LEFT JOIN projects p ON p.id = e.project_id`
	var conditions []string
	var args []interface{}

	if filter.ProjectID != "" {
		conditions = append(conditions, fmt.Sprintf("e.project_id = $%d", len(args)+1))
		args = append(args, filter.ProjectID)
	}
	if filter.VolunteerID != "" {
		conditions = append(conditions, fmt.Sprintf("e.volunteer_id = $%d", len(args)+1))
		args = append(args, filter.VolunteerID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"submitted_at":   "e.submitted_at",
		"volunteer_name": "u.full_name",
		"project_name":   "p.name",
		"status":         "e.status",
	}
	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "submitted_at"
	}
	orderBy := allowedSorts[sortBy]
	if orderBy == "" {
		orderBy = "e.submitted_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.project_id, e.volunteer_id, e.status, e.submitted_at, e.reviewed_at, e.reviewed_by, e.rejection_reason,
        e.contact_email, e.contact_phone, e.motivation, e.availability_tags, e.identity_doc_ref, e.signature_doc_ref,
        u.full_name AS volunteer_name, p.name AS project_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// Create persists a new pending enrollment record. The unique index on
// (project_id, volunteer_id) backs the one-record-per-pair invariant.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.SubmittedAt.IsZero() {
		enrollment.SubmittedAt = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusPending
	}
	const query = `INSERT INTO enrollments (id, project_id, volunteer_id, status, submitted_at,
        contact_email, contact_phone, motivation, availability_tags, identity_doc_ref, signature_doc_ref)
        VALUES (:id, :project_id, :volunteer_id, :status, :submitted_at,
        :contact_email, :contact_phone, :motivation, :availability_tags, :identity_doc_ref, :signature_doc_ref)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEnrollment
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Replace deletes any existing record for the pair and inserts a fresh
// one atomically. Used by the resubmit-after-rejection policy.
func (r *EnrollmentRepository) Replace(ctx context.Context, enrollment *models.Enrollment) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace enrollment: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE project_id = $1 AND volunteer_id = $2`,
		enrollment.ProjectID, enrollment.VolunteerID); err != nil {
		return fmt.Errorf("replace enrollment delete: %w", err)
	}

	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.SubmittedAt.IsZero() {
		enrollment.SubmittedAt = time.Now().UTC()
	}
	enrollment.Status = models.EnrollmentStatusPending
	const insert = `INSERT INTO enrollments (id, project_id, volunteer_id, status, submitted_at,
        contact_email, contact_phone, motivation, availability_tags, identity_doc_ref, signature_doc_ref)
        VALUES (:id, :project_id, :volunteer_id, :status, :submitted_at,
        :contact_email, :contact_phone, :motivation, :availability_tags, :identity_doc_ref, :signature_doc_ref)`
	if _, err := tx.NamedExecContext(ctx, insert, enrollment); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateEnrollment
		}
		return fmt.Errorf("replace enrollment insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace enrollment: %w", err)
	}
	return nil
}

// Review transitions a pending enrollment to approved or rejected.
// The status guard in the WHERE clause makes the transition a per-row
// compare-and-set; zero affected rows means the record was no longer
// pending (or no longer there).
func (r *EnrollmentRepository) Review(ctx context.Context, projectID, volunteerID string, status models.EnrollmentStatus, reviewerID string, reason *string, reviewedAt time.Time) (bool, error) {
	const query = `UPDATE enrollments
        SET status = $3, reviewed_by = $4, reviewed_at = $5, rejection_reason = $6
        WHERE project_id = $1 AND volunteer_id = $2 AND status = $7`
	res, err := r.db.ExecContext(ctx, query, projectID, volunteerID, status, reviewerID, reviewedAt, reason, models.EnrollmentStatusPending)
	if err != nil {
		return false, fmt.Errorf("review enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("review enrollment rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteByKey removes the enrollment for the pair. Returns false when no
// record existed; withdrawal treats that as an idempotent no-op.
func (r *EnrollmentRepository) DeleteByKey(ctx context.Context, projectID, volunteerID string) (bool, error) {
	const query = `DELETE FROM enrollments WHERE project_id = $1 AND volunteer_id = $2`
	res, err := r.db.ExecContext(ctx, query, projectID, volunteerID)
	if err != nil {
		return false, fmt.Errorf("delete enrollment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete enrollment rows: %w", err)
	}
	return affected > 0, nil
}

// StatusByKey returns the status for the pair, or sql.ErrNoRows.
func (r *EnrollmentRepository) StatusByKey(ctx context.Context, projectID, volunteerID string) (models.EnrollmentStatus, error) {
	const query = `SELECT status FROM enrollments WHERE project_id = $1 AND volunteer_id = $2`
	var status models.EnrollmentStatus
	if err := r.db.GetContext(ctx, &status, query, projectID, volunteerID); err != nil {
		return "", err
	}
	return status, nil
}

// StatusesByVolunteer returns the volunteer's enrollment status per project.
func (r *EnrollmentRepository) StatusesByVolunteer(ctx context.Context, volunteerID string) (map[string]models.EnrollmentStatus, error) {
	const query = `SELECT project_id, status FROM enrollments WHERE volunteer_id = $1`
	rows, err := r.db.QueryxContext(ctx, query, volunteerID)
	if err != nil {
		return nil, fmt.Errorf("list volunteer statuses: %w", err)
	}
	defer rows.Close()

	statuses := make(map[string]models.EnrollmentStatus)
	for rows.Next() {
		var projectID string
		var status models.EnrollmentStatus
		if err := rows.Scan(&projectID, &status); err != nil {
			return nil, fmt.Errorf("scan volunteer status: %w", err)
		}
		statuses[projectID] = status
	}
	return statuses, rows.Err()
}

// ListApprovedVolunteers returns the volunteer IDs with an approved
// enrollment on the project.
func (r *EnrollmentRepository) ListApprovedVolunteers(ctx context.Context, projectID string) ([]string, error) {
	const query = `SELECT volunteer_id FROM enrollments WHERE project_id = $1 AND status = $2`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, projectID, models.EnrollmentStatusApproved); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("list approved volunteers: %w", err)
	}
	return ids, nil
}
