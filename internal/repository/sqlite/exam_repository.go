package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stemsi/exam-portal/internal/model"
)

// ExamRepository stores exams in SQLite.
type ExamRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(db *sql.DB) *ExamRepository {
	return &ExamRepository{db: db, now: time.Now}
}

const examColumns = `id, name, date, is_active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExam(row rowScanner) (*model.Exam, error) {
	var (
		e       model.Exam
		date    sql.NullString
		created int64
	)
	if err := row.Scan(&e.ID, &e.Name, &date, &e.IsActive, &created); err != nil {
		return nil, err
	}
	e.Date = datePtr(date)
	e.CreatedAt = fromMillis(created)
	return &e, nil
}

func (r *ExamRepository) GetByID(ctx context.Context, id int64) (*model.Exam, error) {
	e, err := scanExam(r.db.QueryRowContext(ctx,
		`SELECT `+examColumns+` FROM exams WHERE id = ?`, id))
	return e, mapErr(err)
}

func (r *ExamRepository) GetActive(ctx context.Context) (*model.Exam, error) {
	e, err := scanExam(r.db.QueryRowContext(ctx,
		`SELECT `+examColumns+` FROM exams WHERE is_active = 1 LIMIT 1`))
	return e, mapErr(err)
}

func (r *ExamRepository) List(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+examColumns+` FROM exams ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}

func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	e.IsActive = false
	e.CreatedAt = fromMillis(toMillis(r.now()))
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO exams (name, date, is_active, created_at) VALUES (?, ?, 0, ?)`,
		e.Name, nullDate(e.Date), toMillis(e.CreatedAt))
	if err != nil {
		return mapErr(err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE exams SET name = ?, date = ? WHERE id = ?`,
		e.Name, nullDate(e.Date), e.ID))
}

// SetActive deactivates every exam and activates id inside one transaction.
func (r *ExamRepository) SetActive(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE exams SET is_active = 0 WHERE is_active = 1`); err != nil {
		return fmt.Errorf("deactivate exams: %w", err)
	}
	if err := expectOne(tx.ExecContext(ctx, `UPDATE exams SET is_active = 1 WHERE id = ?`, id)); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *ExamRepository) Deactivate(ctx context.Context, id int64) error {
	return expectOne(r.db.ExecContext(ctx, `UPDATE exams SET is_active = 0 WHERE id = ?`, id))
}

func (r *ExamRepository) Delete(ctx context.Context, id int64) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM exams WHERE id = ?`, id))
}

func (r *ExamRepository) Stats(ctx context.Context) ([]model.ExamStats, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT e.id, e.name, e.date, e.is_active,
		        COUNT(c.id),
		        COALESCE(SUM(CASE WHEN c.is_used = 1 THEN 1 ELSE 0 END), 0)
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
		var (
			s    model.ExamStats
			date sql.NullString
		)
		if err := rows.Scan(&s.ExamID, &s.Name, &date, &s.IsActive,
			&s.TotalCredentials, &s.UsedCredentials); err != nil {
			return nil, err
		}
		s.Date = datePtr(date)
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
