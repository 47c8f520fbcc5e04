package service

import (
	"context"
	"io"
	"time"

	"github.com/stemsi/exam-portal/internal/model"
)

// ExamStore persists exams. Implemented by the Postgres and SQLite repositories.
type ExamStore interface {
	GetByID(ctx context.Context, id int64) (*model.Exam, error)
	GetActive(ctx context.Context) (*model.Exam, error)
	List(ctx context.Context) ([]model.Exam, error)
	Create(ctx context.Context, e *model.Exam) error
	Update(ctx context.Context, e *model.Exam) error
	SetActive(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) error
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) ([]model.ExamStats, error)
}

// CredentialStore persists examinee credentials.
type CredentialStore interface {
	CountByExam(ctx context.Context, examID int64) (int, error)
	InsertBatch(ctx context.Context, creds []model.Credential) error
	Create(ctx context.Context, c *model.Credential) error
	GetByUsername(ctx context.Context, username string) (*model.Credential, error)
	MarkUsed(ctx context.Context, id int64, at time.Time) (bool, error)
	Reset(ctx context.Context, id int64) error
	UpdateExamineeName(ctx context.Context, id int64, name *string) error
	Delete(ctx context.Context, id int64) error
	DeleteByExam(ctx context.Context, examID int64) (int64, error)
	ListByExam(ctx context.Context, examID int64) ([]model.Credential, error)
}

// AdminStore persists administrators.
type AdminStore interface {
	GetByID(ctx context.Context, id int64) (*model.Admin, error)
	GetByUsername(ctx context.Context, username string) (*model.Admin, error)
	Create(ctx context.Context, a *model.Admin) error
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error
	Count(ctx context.Context) (int, error)
}

// FileStore persists exam material metadata.
type FileStore interface {
	Create(ctx context.Context, f *model.File) error
	GetByID(ctx context.Context, id int64) (*model.File, error)
	ListByExam(ctx context.Context, examID int64) ([]model.File, error)
	Update(ctx context.Context, f *model.File) error
	Delete(ctx context.Context, id int64) error
	ContentRefsByExam(ctx context.Context, examID int64) ([]string, error)
}

// MaterialStorage holds material bytes behind opaque content references.
type MaterialStorage interface {
	Save(ctx context.Context, body io.Reader, ext string) (string, error)
	Path(ref string) (string, error)
	Remove(ctx context.Context, ref string) error
}
