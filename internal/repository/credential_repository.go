package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/stemsi/exam-portal/internal/model"
)

// CredentialRepository handles examinee credential data access.
type CredentialRepository struct {
	db DBTX
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db DBTX) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// CountByExam returns how many credentials exist for an exam.
func (r *CredentialRepository) CountByExam(ctx context.Context, examID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM credentials WHERE exam_id = $1`, examID,
	).Scan(&n)
	return n, err
}

// InsertBatch inserts every credential in one transaction. A single
// duplicate username aborts the whole batch with ErrDuplicate.
func (r *CredentialRepository) InsertBatch(ctx context.Context, creds []model.Credential) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range creds {
		c := &creds[i]
		err := tx.QueryRow(ctx,
			`INSERT INTO credentials (exam_id, username, password, examinee_name)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at`,
			c.ExamID, c.Username, c.Password, c.ExamineeName,
		).Scan(&c.ID, &c.CreatedAt)
		if err != nil {
			return mapErr(err)
		}
	}
	return tx.Commit(ctx)
}

// Create inserts a single credential.
func (r *CredentialRepository) Create(ctx context.Context, c *model.Credential) error {
	return mapErr(r.db.QueryRow(ctx,
		`INSERT INTO credentials (exam_id, username, password, examinee_name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		c.ExamID, c.Username, c.Password, c.ExamineeName,
	).Scan(&c.ID, &c.CreatedAt))
}

// GetByUsername retrieves a credential together with its exam name.
func (r *CredentialRepository) GetByUsername(ctx context.Context, username string) (*model.Credential, error) {
	c := &model.Credential{}
	err := r.db.QueryRow(ctx,
		`SELECT c.id, c.exam_id, e.name, c.username, c.password, c.examinee_name,
		        c.is_used, c.used_at, c.created_at
		 FROM credentials c JOIN exams e ON e.id = c.exam_id
		 WHERE c.username = $1`, username,
	).Scan(&c.ID, &c.ExamID, &c.ExamName, &c.Username, &c.Password, &c.ExamineeName,
		&c.IsUsed, &c.UsedAt, &c.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return c, nil
}

// MarkUsed flips an unused credential to used. It reports false when the
// credential was already used or does not exist, so concurrent callers
// racing on the same row see exactly one true.
func (r *CredentialRepository) MarkUsed(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE credentials SET is_used = TRUE, used_at = $1
		 WHERE id = $2 AND is_used = FALSE`, at, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Reset makes a credential usable again.
func (r *CredentialRepository) Reset(ctx context.Context, id int64) error {
	return expectOne(r.db.Exec(ctx,
		`UPDATE credentials SET is_used = FALSE, used_at = NULL WHERE id = $1`, id))
}

// UpdateExamineeName sets or clears the examinee name.
func (r *CredentialRepository) UpdateExamineeName(ctx context.Context, id int64, name *string) error {
	return expectOne(r.db.Exec(ctx,
		`UPDATE credentials SET examinee_name = $1 WHERE id = $2`, name, id))
}

// Delete removes one credential.
func (r *CredentialRepository) Delete(ctx context.Context, id int64) error {
	return expectOne(r.db.Exec(ctx, `DELETE FROM credentials WHERE id = $1`, id))
}

// DeleteByExam removes every credential of an exam and returns the count.
func (r *CredentialRepository) DeleteByExam(ctx context.Context, examID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM credentials WHERE exam_id = $1`, examID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListByExam returns an exam's credentials ordered by username.
func (r *CredentialRepository) ListByExam(ctx context.Context, examID int64) ([]model.Credential, error) {
	rows, err := r.db.Query(ctx,
		`SELECT c.id, c.exam_id, e.name, c.username, c.password, c.examinee_name,
		        c.is_used, c.used_at, c.created_at
		 FROM credentials c JOIN exams e ON e.id = c.exam_id
		 WHERE c.exam_id = $1
		 ORDER BY c.username`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		var c model.Credential
		if err := rows.Scan(&c.ID, &c.ExamID, &c.ExamName, &c.Username, &c.Password, &c.ExamineeName,
			&c.IsUsed, &c.UsedAt, &c.CreatedAt); err != nil {
			return nil, err
		}
		creds = append(creds, c)
	}
	return creds, rows.Err()
}
