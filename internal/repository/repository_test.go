package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stemsi/exam-portal/internal/model"
	"github.com/stemsi/exam-portal/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var examCols = []string{"id", "name", "date", "is_active", "created_at"}

func TestExamRepository_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repository.NewExamRepository(mock)
	ctx := context.Background()
	now := time.Now()
	date := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, date, is_active, created_at FROM exams WHERE id").
			WithArgs(int64(7)).
			WillReturnRows(pgxmock.NewRows(examCols).AddRow(int64(7), "Finals", &date, true, now))

		e, err := r.GetByID(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "Finals", e.Name)
		assert.True(t, e.IsActive)
		require.NotNil(t, e.Date)
		assert.True(t, date.Equal(*e.Date))
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, name, date, is_active, created_at FROM exams WHERE id").
			WithArgs(int64(8)).
			WillReturnError(pgx.ErrNoRows)

		_, err := r.GetByID(ctx, 8)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepository_SetActive(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repository.NewExamRepository(mock)
	ctx := context.Background()

	t.Run("swaps in one transaction", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE exams SET is_active = FALSE WHERE is_active = TRUE").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("UPDATE exams SET is_active = TRUE WHERE id").
			WithArgs(int64(3)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectCommit()

		require.NoError(t, r.SetActive(ctx, 3))
	})

	t.Run("unknown exam rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE exams SET is_active = FALSE WHERE is_active = TRUE").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec("UPDATE exams SET is_active = TRUE WHERE id").
			WithArgs(int64(99)).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		assert.ErrorIs(t, r.SetActive(ctx, 99), repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamRepository_Stats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repository.NewExamRepository(mock)
	mock.ExpectQuery("SELECT e.id, e.name, e.date, e.is_active").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "date", "is_active", "total", "used"}).
			AddRow(int64(2), "B", (*time.Time)(nil), true, 10, 4).
			AddRow(int64(1), "A", (*time.Time)(nil), false, 0, 0))

	stats, err := r.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, 10, stats[0].TotalCredentials)
	assert.Equal(t, 4, stats[0].UsedCredentials)
	assert.Nil(t, stats[1].Date)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_MarkUsed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repository.NewCredentialRepository(mock)
	ctx := context.Background()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE credentials SET is_used = TRUE").
		WithArgs(at, int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	ok, err := r.MarkUsed(ctx, 5, at)
	require.NoError(t, err)
	assert.True(t, ok)

	// The guarded update matches nothing once the credential is used.
	mock.ExpectExec("UPDATE credentials SET is_used = TRUE").
		WithArgs(at, int64(5)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	ok, err = r.MarkUsed(ctx, 5, at)
	require.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectExec("UPDATE credentials SET is_used = TRUE").
		WithArgs(at, int64(5)).
		WillReturnError(errors.New("conn reset"))
	_, err = r.MarkUsed(ctx, 5, at)
	assert.Error(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_InsertBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repository.NewCredentialRepository(mock)
	ctx := context.Background()
	now := time.Now()

	t.Run("success", func(t *testing.T) {
		creds := []model.Credential{
			{ExamID: 1, Username: "A001", Password: "AAAA-BBBB"},
			{ExamID: 1, Username: "A002", Password: "CCCC-DDDD"},
		}
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO credentials").
			WithArgs(int64(1), "A001", "AAAA-BBBB", (*string)(nil)).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(10), now))
		mock.ExpectQuery("INSERT INTO credentials").
			WithArgs(int64(1), "A002", "CCCC-DDDD", (*string)(nil)).
			WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), now))
		mock.ExpectCommit()

		require.NoError(t, r.InsertBatch(ctx, creds))
		assert.Equal(t, int64(10), creds[0].ID)
		assert.Equal(t, int64(11), creds[1].ID)
	})

	t.Run("duplicate aborts the batch", func(t *testing.T) {
		creds := []model.Credential{
			{ExamID: 1, Username: "A001", Password: "X"},
		}
		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO credentials").
			WithArgs(int64(1), "A001", "X", (*string)(nil)).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()

		assert.ErrorIs(t, r.InsertBatch(ctx, creds), repository.ErrDuplicate)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_GetByUsername(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repository.NewCredentialRepository(mock)
	name := "Dana"
	now := time.Now()
	cols := []string{"id", "exam_id", "name", "username", "password", "examinee_name", "is_used", "used_at", "created_at"}

	mock.ExpectQuery("SELECT c.id, c.exam_id, e.name").
		WithArgs("A001").
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(1), int64(2), "Finals", "A001", "PASS", &name, false, (*time.Time)(nil), now))

	c, err := r.GetByUsername(context.Background(), "A001")
	require.NoError(t, err)
	assert.Equal(t, "Finals", c.ExamName)
	assert.Equal(t, "Dana", *c.ExamineeName)
	assert.Nil(t, c.UsedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCredentialRepository_ResetNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repository.NewCredentialRepository(mock)
	mock.ExpectExec("UPDATE credentials SET is_used = FALSE").
		WithArgs(int64(4)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, r.Reset(context.Background(), 4), repository.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAdminRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repository.NewAdminRepository(mock)
	ctx := context.Background()

	mock.ExpectQuery("INSERT INTO admins").
		WithArgs("root", "hash").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), time.Now()))
	a := &model.Admin{Username: "root", PasswordHash: "hash"}
	require.NoError(t, r.Create(ctx, a))
	assert.Equal(t, int64(1), a.ID)

	mock.ExpectQuery("INSERT INTO admins").
		WithArgs("root", "hash").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	assert.ErrorIs(t, r.Create(ctx, &model.Admin{Username: "root", PasswordHash: "hash"}), repository.ErrDuplicate)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFileRepository_ListByExam(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	r := repository.NewFileRepository(mock)
	now := time.Now()
	cols := []string{"id", "exam_id", "display_name", "filename", "content_ref", "file_type", "sort_order", "created_at"}

	mock.ExpectQuery("SELECT id, exam_id, display_name").
		WithArgs(int64(3)).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(1), int64(3), "Booklet", "booklet.pdf", "a.pdf", model.FileTypePDF, 1, now).
			AddRow(int64(2), int64(3), "Map", "map.png", "b.png", model.FileTypeImage, 2, now))

	files, err := r.ListByExam(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "Booklet", files[0].DisplayName)
	assert.Equal(t, model.FileTypeImage, files[1].FileType)
	assert.NoError(t, mock.ExpectationsWereMet())
}
