package repository

import (
	"context"
	"fmt"

	"github.com/stemsi/exam-portal/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	db DBTX
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(db DBTX) *ExamRepository {
	return &ExamRepository{db: db}
}

const examColumns = `id, name, date, is_active, created_at`

// GetByID retrieves an exam by ID.
func (r *ExamRepository) GetByID(ctx context.Context, id int64) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.db.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Name, &e.Date, &e.IsActive, &e.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return e, nil
}

// GetActive retrieves the active exam, or ErrNotFound when none is active.
func (r *ExamRepository) GetActive(ctx context.Context) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.db.QueryRow(ctx,
		`SELECT `+examColumns+` FROM exams WHERE is_active = TRUE LIMIT 1`,
	).Scan(&e.ID, &e.Name, &e.Date, &e.IsActive, &e.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return e, nil
}

// List returns all exams, newest first.
func (r *ExamRepository) List(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+examColumns+` FROM exams ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Name, &e.Date, &e.IsActive, &e.CreatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// Create inserts a new, inactive exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	e.IsActive = false
	return mapErr(r.db.QueryRow(ctx,
		`INSERT INTO exams (name, date) VALUES ($1, $2)
		 RETURNING id, created_at`,
		e.Name, e.Date,
	).Scan(&e.ID, &e.CreatedAt))
}

// Update changes an exam's name and date.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	return expectOne(r.db.Exec(ctx,
		`UPDATE exams SET name = $1, date = $2 WHERE id = $3`,
		e.Name, e.Date, e.ID))
}

// SetActive makes id the only active exam. Both updates run in one
// transaction so no reader observes two active exams.
func (r *ExamRepository) SetActive(ctx context.Context, id int64) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `UPDATE exams SET is_active = FALSE WHERE is_active = TRUE`); err != nil {
		return fmt.Errorf("deactivate exams: %w", err)
	}
	if err := expectOne(tx.Exec(ctx, `UPDATE exams SET is_active = TRUE WHERE id = $1`, id)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Deactivate clears the active flag on a single exam.
func (r *ExamRepository) Deactivate(ctx context.Context, id int64) error {
	return expectOne(r.db.Exec(ctx,
		`UPDATE exams SET is_active = FALSE WHERE id = $1`, id))
}

// Delete removes an exam. Credentials and files cascade.
func (r *ExamRepository) Delete(ctx context.Context, id int64) error {
	return expectOne(r.db.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id))
}

// Stats returns per-exam credential totals for the dashboard.
func (r *ExamRepository) Stats(ctx context.Context) ([]model.ExamStats, error) {
	rows, err := r.db.Query(ctx,
		`SELECT e.id, e.name, e.date, e.is_active,
		        COUNT(c.id)::int,
		        COUNT(c.id) FILTER (WHERE c.is_used)::int
		 FROM exams e
		 LEFT JOIN credentials c ON c.exam_id = e.id
		 GROUP BY e.id
		 ORDER BY e.created_at DESC, e.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []model.ExamStats
	for rows.Next() {
		var s model.ExamStats
		if err := rows.Scan(&s.ExamID, &s.Name, &s.Date, &s.IsActive,
			&s.TotalCredentials, &s.UsedCredentials); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
