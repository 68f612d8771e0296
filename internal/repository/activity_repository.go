package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/volunhub/volunhub-api/internal/models"
)

// ActivityRepository handles persistence of activities and their
// completion sets.
type ActivityRepository struct {
	db *sqlx.DB
}

// NewActivityRepository constructs the repository.
func NewActivityRepository(db *sqlx.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

const activityColumns = `id, project_id, name, description, hours_value, certified, certified_by, certified_at, created_at, updated_at`

// FindByID returns an activity with its completion set loaded.
func (r *ActivityRepository) FindByID(ctx context.Context, id string) (*models.Activity, error) {
	query := fmt.Sprintf(`SELECT %s FROM activities WHERE id = $1`, activityColumns)
	var activity models.Activity
	if err := r.db.GetContext(ctx, &activity, query, id); err != nil {
		return nil, err
	}
	completed, err := r.completionsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	activity.CompletedBy = completed
	return &activity, nil
}

// ListByProject returns all activities of a project with completion sets.
func (r *ActivityRepository) ListByProject(ctx context.Context, projectID string) ([]models.Activity, error) {
	query := fmt.Sprintf(`SELECT %s FROM activities WHERE project_id = $1 ORDER BY created_at ASC`, activityColumns)
	var activities []models.Activity
	if err := r.db.SelectContext(ctx, &activities, query, projectID); err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	if len(activities) == 0 {
		return activities, nil
	}

	const completionsQuery = `SELECT c.activity_id, c.volunteer_id FROM activity_completions c
        JOIN activities a ON a.id = c.activity_id
        WHERE a.project_id = $1`
	rows, err := r.db.QueryxContext(ctx, completionsQuery, projectID)
	if err != nil {
		return nil, fmt.Errorf("list activity completions: %w", err)
	}
	defer rows.Close()

	byActivity := make(map[string][]string)
	for rows.Next() {
		var activityID, volunteerID string
		if err := rows.Scan(&activityID, &volunteerID); err != nil {
			return nil, fmt.Errorf("scan activity completion: %w", err)
		}
		byActivity[activityID] = append(byActivity[activityID], volunteerID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range activities {
		activities[i].CompletedBy = byActivity[activities[i].ID]
	}
	return activities, nil
}

// SumHoursByProject returns the total hours of a project's activities,
// optionally excluding one activity (used by the edit capacity check).
func (r *ActivityRepository) SumHoursByProject(ctx context.Context, projectID, excludeID string) (float64, error) {
	query := `SELECT COALESCE(SUM(hours_value), 0) FROM activities WHERE project_id = $1`
	args := []interface{}{projectID}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var sum float64
	if err := r.db.GetContext(ctx, &sum, query, args...); err != nil {
		return 0, fmt.Errorf("sum activity hours: %w", err)
	}
	return sum, nil
}

// Create persists a new activity record.
func (r *ActivityRepository) Create(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = now
	}
	activity.UpdatedAt = now
	const query = `INSERT INTO activities (id, project_id, name, description, hours_value, certified, created_at, updated_at)
        VALUES (:id, :project_id, :name, :description, :hours_value, :certified, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, activity); err != nil {
		return fmt.Errorf("create activity: %w", err)
	}
	return nil
}

// Update persists name, description and hours changes. Callers revalidate
// project capacity before changing hours_value.
func (r *ActivityRepository) Update(ctx context.Context, activity *models.Activity) error {
	const query = `UPDATE activities SET name = $2, description = $3, hours_value = $4, updated_at = $5 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, activity.ID, activity.Name, activity.Description, activity.HoursValue, time.Now().UTC()); err != nil {
		return fmt.Errorf("update activity: %w", err)
	}
	return nil
}

// Delete removes an activity and its completion rows.
func (r *ActivityRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete activity: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM activity_completions WHERE activity_id = $1`, id); err != nil {
		return fmt.Errorf("delete activity completions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete activity: %w", err)
	}
	return tx.Commit()
}

// ReplaceCompletions swaps the whole completion set for an activity and
// stamps the certification in one transaction. Passing an empty set
// clears the certified flag.
func (r *ActivityRepository) ReplaceCompletions(ctx context.Context, activityID string, volunteerIDs []string, certifierID string, at time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin certify activity: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM activity_completions WHERE activity_id = $1`, activityID); err != nil {
		return fmt.Errorf("clear activity completions: %w", err)
	}
	for _, volunteerID := range volunteerIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO activity_completions (activity_id, volunteer_id, recorded_at) VALUES ($1, $2, $3)`,
			activityID, volunteerID, at); err != nil {
			return fmt.Errorf("insert activity completion: %w", err)
		}
	}

	certified := len(volunteerIDs) > 0
	if _, err := tx.ExecContext(ctx,
		`UPDATE activities SET certified = $2, certified_by = $3, certified_at = $4, updated_at = $4 WHERE id = $1`,
		activityID, certified, certifierID, at); err != nil {
		return fmt.Errorf("stamp certification: %w", err)
	}

	return tx.Commit()
}

// EarnedHoursByVolunteer returns the volunteer's certified hours grouped
// by project, regardless of enrollment status. Accrual gating happens in
// the hours service.
func (r *ActivityRepository) EarnedHoursByVolunteer(ctx context.Context, volunteerID string) (map[string]float64, error) {
	const query = `SELECT a.project_id, COALESCE(SUM(a.hours_value), 0)
        FROM activities a
        JOIN activity_completions c ON c.activity_id = a.id
        WHERE c.volunteer_id = $1
        GROUP BY a.project_id`
	rows, err := r.db.QueryxContext(ctx, query, volunteerID)
	if err != nil {
		return nil, fmt.Errorf("earned hours by volunteer: %w", err)
	}
	defer rows.Close()

	earned := make(map[string]float64)
	for rows.Next() {
		var projectID string
		var hours float64
		if err := rows.Scan(&projectID, &hours); err != nil {
			return nil, fmt.Errorf("scan earned hours: %w", err)
		}
		earned[projectID] = hours
	}
	return earned, rows.Err()
}

// EarnedHoursByProjectVolunteers returns certified hours per volunteer
// for one project. Used to detect volunteers reaching the project goal.
func (r *ActivityRepository) EarnedHoursByProjectVolunteers(ctx context.Context, projectID string) (map[string]float64, error) {
	const query = `SELECT c.volunteer_id, COALESCE(SUM(a.hours_value), 0)
        FROM activities a
        JOIN activity_completions c ON c.activity_id = a.id
        WHERE a.project_id = $1
        GROUP BY c.volunteer_id`
	rows, err := r.db.QueryxContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("earned hours by project: %w", err)
	}
	defer rows.Close()

	earned := make(map[string]float64)
	for rows.Next() {
		var volunteerID string
		var hours float64
		if err := rows.Scan(&volunteerID, &hours); err != nil {
			return nil, fmt.Errorf("scan project earned hours: %w", err)
		}
		earned[volunteerID] = hours
	}
	return earned, rows.Err()
}

func (r *ActivityRepository) completionsFor(ctx context.Context, activityID string) ([]string, error) {
	const query = `SELECT volunteer_id FROM activity_completions WHERE activity_id = $1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, activityID); err != nil {
		return nil, fmt.Errorf("list completions: %w", err)
	}
	return ids, nil
}
