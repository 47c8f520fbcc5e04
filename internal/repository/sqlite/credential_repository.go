package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/stemsi/exam-portal/internal/model"
)

// CredentialRepository stores examinee credentials in SQLite.
type CredentialRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db *sql.DB) *CredentialRepository {
	return &CredentialRepository{db: db, now: time.Now}
}

const credentialSelect = `SELECT c.id, c.exam_id, e.name, c.username, c.password, c.examinee_name,
        c.is_used, c.used_at, c.created_at
 FROM credentials c JOIN exams e ON e.id = c.exam_id`

func scanCredential(row rowScanner) (*model.Credential, error) {
	var (
		c       model.Credential
		name    sql.NullString
		usedAt  sql.NullInt64
		created int64
	)
	if err := row.Scan(&c.ID, &c.ExamID, &c.ExamName, &c.Username, &c.Password, &name,
		&c.IsUsed, &usedAt, &created); err != nil {
		return nil, err
	}
	c.ExamineeName = stringPtr(name)
	c.UsedAt = timePtr(usedAt)
	c.CreatedAt = fromMillis(created)
	return &c, nil
}

func (r *CredentialRepository) CountByExam(ctx context.Context, examID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM credentials WHERE exam_id = ?`, examID).Scan(&n)
	return n, err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *CredentialRepository) insert(ctx context.Context, ex execer, c *model.Credential) error {
	c.CreatedAt = fromMillis(toMillis(r.now()))
	res, err := ex.ExecContext(ctx,
		`INSERT INTO credentials (exam_id, username, password, examinee_name, is_used, created_at)
		 VALUES (?, ?, ?, ?, 0, ?)`,
		c.ExamID, c.Username, c.Password, nullString(c.ExamineeName), toMillis(c.CreatedAt))
	if err != nil {
		return mapErr(err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

// InsertBatch inserts all credentials atomically.
func (r *CredentialRepository) InsertBatch(ctx context.Context, creds []model.Credential) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	for i := range creds {
		if err := r.insert(ctx, tx, &creds[i]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *CredentialRepository) Create(ctx context.Context, c *model.Credential) error {
	return r.insert(ctx, r.db, c)
}

func (r *CredentialRepository) GetByUsername(ctx context.Context, username string) (*model.Credential, error) {
	c, err := scanCredential(r.db.QueryRowContext(ctx, credentialSelect+` WHERE c.username = ?`, username))
	return c, mapErr(err)
}

// MarkUsed is a single conditional update; false means someone else got there first.
func (r *CredentialRepository) MarkUsed(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE credentials SET is_used = 1, used_at = ? WHERE id = ? AND is_used = 0`,
		toMillis(at), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CredentialRepository) Reset(ctx context.Context, id int64) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE credentials SET is_used = 0, used_at = NULL WHERE id = ?`, id))
}

func (r *CredentialRepository) UpdateExamineeName(ctx context.Context, id int64, name *string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE credentials SET examinee_name = ? WHERE id = ?`, nullString(name), id))
}

func (r *CredentialRepository) Delete(ctx context.Context, id int64) error {
	return expectOne(r.db.ExecContext(ctx, `DELETE FROM credentials WHERE id = ?`, id))
}

func (r *CredentialRepository) DeleteByExam(ctx context.Context, examID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE exam_id = ?`, examID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *CredentialRepository) ListByExam(ctx context.Context, examID int64) ([]model.Credential, error) {
	rows, err := r.db.QueryContext(ctx,
		credentialSelect+` WHERE c.exam_id = ? ORDER BY c.username`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []model.Credential
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, *c)
	}
	return creds, rows.Err()
}
