package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/stemsi/exam-portal/internal/model"
)

// FileRepository stores exam material metadata in SQLite.
type FileRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewFileRepository creates a new FileRepository.
func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db, now: time.Now}
}

const fileColumns = `id, exam_id, display_name, filename, content_ref, file_type, sort_order, created_at`

func scanFile(row rowScanner) (*model.File, error) {
	var (
		f       model.File
		created int64
	)
	if err := row.Scan(&f.ID, &f.ExamID, &f.DisplayName, &f.Filename, &f.ContentRef,
		&f.FileType, &f.SortOrder, &created); err != nil {
		return nil, err
	}
	f.CreatedAt = fromMillis(created)
	return &f, nil
}

func (r *FileRepository) Create(ctx context.Context, f *model.File) error {
	f.CreatedAt = fromMillis(toMillis(r.now()))
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO files (exam_id, display_name, filename, content_ref, file_type, sort_order, created_at)
		 VALUES (?1, ?2, ?3, ?4, ?5,
		         (SELECT COALESCE(MAX(sort_order), 0) + 1 FROM files WHERE exam_id = ?1), ?6)
		 RETURNING id, sort_order`,
		f.ExamID, f.DisplayName, f.Filename, f.ContentRef, string(f.FileType), toMillis(f.CreatedAt),
	).Scan(&f.ID, &f.SortOrder)
	return mapErr(err)
}

func (r *FileRepository) GetByID(ctx context.Context, id int64) (*model.File, error) {
	f, err := scanFile(r.db.QueryRowContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = ?`, id))
	return f, mapErr(err)
}

func (r *FileRepository) ListByExam(ctx context.Context, examID int64) ([]model.File, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+fileColumns+` FROM files WHERE exam_id = ? ORDER BY sort_order, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []model.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, *f)
	}
	return files, rows.Err()
}

func (r *FileRepository) Update(ctx context.Context, f *model.File) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE files SET display_name = ?, sort_order = ? WHERE id = ?`,
		f.DisplayName, f.SortOrder, f.ID))
}

func (r *FileRepository) Delete(ctx context.Context, id int64) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, id))
}

func (r *FileRepository) ContentRefsByExam(ctx context.Context, examID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT content_ref FROM files WHERE exam_id = ?`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []string
	for rows.Next() {
		var ref string
		if err := rows.Scan(&ref); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}
