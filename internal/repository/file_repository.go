package repository

import (
	"context"

	"github.com/stemsi/exam-portal/internal/model"
)

// FileRepository handles exam material metadata.
type FileRepository struct {
	db DBTX
}

// NewFileRepository creates a new FileRepository.
func NewFileRepository(db DBTX) *FileRepository {
	return &FileRepository{db: db}
}

const fileColumns = `id, exam_id, display_name, filename, content_ref, file_type, sort_order, created_at`

// Create inserts a file at the end of its exam's ordering.
func (r *FileRepository) Create(ctx context.Context, f *model.File) error {
	return mapErr(r.db.QueryRow(ctx,
		`INSERT INTO files (exam_id, display_name, filename, content_ref, file_type, sort_order)
		 VALUES ($1, $2, $3, $4, $5,
		         (SELECT COALESCE(MAX(sort_order), 0) + 1 FROM files WHERE exam_id = $1))
		 RETURNING id, sort_order, created_at`,
		f.ExamID, f.DisplayName, f.Filename, f.ContentRef, f.FileType,
	).Scan(&f.ID, &f.SortOrder, &f.CreatedAt))
}

// GetByID retrieves a file by ID.
func (r *FileRepository) GetByID(ctx context.Context, id int64) (*model.File, error) {
	f := &model.File{}
	err := r.db.QueryRow(ctx,
		`SELECT `+fileColumns+` FROM files WHERE id = $1`, id,
	).Scan(&f.ID, &f.ExamID, &f.DisplayName, &f.Filename, &f.ContentRef, &f.FileType, &f.SortOrder, &f.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return f, nil
}

// ListByExam returns an exam's files in display order.
func (r *FileRepository) ListByExam(ctx context.Context, examID int64) ([]model.File, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+fileColumns+` FROM files WHERE exam_id = $1 ORDER BY sort_order, id`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []model.File
	for rows.Next() {
		var f model.File
		if err := rows.Scan(&f.ID, &f.ExamID, &f.DisplayName, &f.Filename, &f.ContentRef, &f.FileType, &f.SortOrder, &f.CreatedAt); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Update changes a file's display name and position.
func (r *FileRepository) Update(ctx context.Context, f *model.File) error {
	return expectOne(r.db.Exec(ctx,
		`UPDATE files SET display_name = $1, sort_order = $2 WHERE id = $3`,
		f.DisplayName, f.SortOrder, f.ID))
}

// Delete removes a file row.
func (r *FileRepository) Delete(ctx context.Context, id int64) error {
	return expectOne(r.db.Exec(ctx, `DELETE FROM files WHERE id = $1`, id))
}

// ContentRefsByExam lists the stored content references of an exam's files.
func (r *FileRepository) ContentRefsByExam(ctx context.Context, examID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT content_ref FROM files WHERE exam_id = $1`, examID)
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
