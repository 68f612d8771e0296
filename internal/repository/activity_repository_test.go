package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/volunhub/volunhub-api/internal/models"
)

func newActivityRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestActivityRepositoryCreateAndFind(t *testing.T) {
	db, mock, cleanup := newActivityRepoMock(t)
	defer cleanup()

	repo := NewActivityRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activities")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	activity := &models.Activity{
		ProjectID:  "p1",
		Name:       "Morning shift",
		HoursValue: 4,
	}
	require.NoError(t, repo.Create(context.Background(), activity))
	require.NotEmpty(t, activity.ID)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "project_id", "name", "description", "hours_value", "certified", "certified_by", "certified_at", "created_at", "updated_at"}).
		AddRow(activity.ID, "p1", "Morning shift", "", 4.0, false, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, project_id, name")).
		WithArgs(activity.ID).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT volunteer_id FROM activity_completions")).
		WithArgs(activity.ID).
		WillReturnRows(sqlmock.NewRows([]string{"volunteer_id"}).AddRow("v1"))

	found, err := repo.FindByID(context.Background(), activity.ID)
	require.NoError(t, err)
	require.Equal(t, activity.ID, found.ID)
	require.Equal(t, []string{"v1"}, found.CompletedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositorySumHoursExcludesOneActivity(t *testing.T) {
	db, mock, cleanup := newActivityRepoMock(t)
	defer cleanup()

	repo := NewActivityRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(hours_value), 0) FROM activities")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(12.5))
	sum, err := repo.SumHoursByProject(context.Background(), "p1", "")
	require.NoError(t, err)
	require.Equal(t, 12.5, sum)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(hours_value), 0) FROM activities")).
		WithArgs("p1", "a1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(8.0))
	sum, err = repo.SumHoursByProject(context.Background(), "p1", "a1")
	require.NoError(t, err)
	require.Equal(t, 8.0, sum)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryReplaceCompletionsStampsCertification(t *testing.T) {
	db, mock, cleanup := newActivityRepoMock(t)
	defer cleanup()

	repo := NewActivityRepository(db)
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM activity_completions")).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activity_completions")).
		WithArgs("a1", "v1", at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO activity_completions")).
		WithArgs("a1", "v2", at).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE activities SET certified")).
		WithArgs("a1", true, "admin-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceCompletions(context.Background(), "a1", []string{"v1", "v2"}, "admin-1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryReplaceCompletionsEmptySetClearsFlag(t *testing.T) {
	db, mock, cleanup := newActivityRepoMock(t)
	defer cleanup()

	repo := NewActivityRepository(db)
	at := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM activity_completions")).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE activities SET certified")).
		WithArgs("a1", false, "admin-1", at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.ReplaceCompletions(context.Background(), "a1", nil, "admin-1", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryEarnedHoursByVolunteer(t *testing.T) {
	db, mock, cleanup := newActivityRepoMock(t)
	defer cleanup()

	repo := NewActivityRepository(db)
	rows := sqlmock.NewRows([]string{"project_id", "coalesce"}).
		AddRow("p1", 10.0).
		AddRow("p2", 2.5)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT a.project_id, COALESCE(SUM(a.hours_value), 0)")).
		WithArgs("v1").
		WillReturnRows(rows)

	earned, err := repo.EarnedHoursByVolunteer(context.Background(), "v1")
	require.NoError(t, err)
	require.Equal(t, 10.0, earned["p1"])
	require.Equal(t, 2.5, earned["p2"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityRepositoryDeleteRemovesCompletions(t *testing.T) {
	db, mock, cleanup := newActivityRepoMock(t)
	defer cleanup()

	repo := NewActivityRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM activity_completions")).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM activities")).
		WithArgs("a1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Delete(context.Background(), "a1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
