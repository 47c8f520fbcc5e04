package database

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/stemsi/exam-portal/internal/config"
	"github.com/stemsi/exam-portal/internal/repository"
	"github.com/stemsi/exam-portal/internal/repository/sqlite"
	"github.com/stemsi/exam-portal/internal/service"
)

// Stores bundles the repositories for the configured DB_DRIVER.
type Stores struct {
	Exams       service.ExamStore
	Credentials service.CredentialStore
	Admins      service.AdminStore
	Files       service.FileStore

	closeFn func()
}

// Close releases the underlying database handle.
func (s *Stores) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

// OpenStores connects to PostgreSQL or SQLite depending on cfg.DBDriver.
// PostgreSQL schemas are managed by cmd/migrate; SQLite applies its own.
func OpenStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Stores, error) {
	switch cfg.DBDriver {
	case config.DriverPostgres:
		pool, err := NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Exams:       repository.NewExamRepository(pool),
			Credentials: repository.NewCredentialRepository(pool),
			Admins:      repository.NewAdminRepository(pool),
			Files:       repository.NewFileRepository(pool),
			closeFn:     pool.Close,
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		return &Stores{
			Exams:       sqlite.NewExamRepository(db),
			Credentials: sqlite.NewCredentialRepository(db),
			Admins:      sqlite.NewAdminRepository(db),
			Files:       sqlite.NewFileRepository(db),
			closeFn:     func() { _ = db.Close() },
		}, nil

	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
}
