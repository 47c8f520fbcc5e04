package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/stemsi/exam-portal/internal/model"
)

// AdminRepository stores admins in SQLite.
type AdminRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewAdminRepository creates a new AdminRepository.
func NewAdminRepository(db *sql.DB) *AdminRepository {
	return &AdminRepository{db: db, now: time.Now}
}

func scanAdmin(row rowScanner) (*model.Admin, error) {
	var (
		a       model.Admin
		created int64
	)
	if err := row.Scan(&a.ID, &a.Username, &a.PasswordHash, &created); err != nil {
		return nil, err
	}
	a.CreatedAt = fromMillis(created)
	return &a, nil
}

func (r *AdminRepository) GetByID(ctx context.Context, id int64) (*model.Admin, error) {
	a, err := scanAdmin(r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM admins WHERE id = ?`, id))
	return a, mapErr(err)
}

func (r *AdminRepository) GetByUsername(ctx context.Context, username string) (*model.Admin, error) {
	a, err := scanAdmin(r.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, created_at FROM admins WHERE username = ?`, username))
	return a, mapErr(err)
}

func (r *AdminRepository) Create(ctx context.Context, a *model.Admin) error {
	a.CreatedAt = fromMillis(toMillis(r.now()))
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO admins (username, password_hash, created_at) VALUES (?, ?, ?)`,
		a.Username, a.PasswordHash, toMillis(a.CreatedAt))
	if err != nil {
		return mapErr(err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (r *AdminRepository) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	return expectOne(r.db.ExecContext(ctx,
		`UPDATE admins SET password_hash = ? WHERE id = ?`, hash, id))
}

func (r *AdminRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n)
	return n, err
}
