package postgres

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// pgx5 driver registers the "pgx5" scheme for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every pending embedded migration to the database at dsn.
func Migrate(dsn string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, pgx5DSN(dsn))
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("migration source close failed", zap.Error(srcErr))
		}
		if dbErr != nil {
			logger.Warn("migration db close failed", zap.Error(dbErr))
		}
	}()
	m.Log = &migrateLogger{logger: logger}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is dirty at migration version %d", version)
	}
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("schema up to date", zap.Uint("version", version))
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	newVersion, _, _ := m.Version()
	logger.Info("schema migrated", zap.Uint("from", version), zap.Uint("to", newVersion))
	return nil
}

// pgx5DSN rewrites postgres:// URLs to the pgx5:// scheme golang-migrate expects.
func pgx5DSN(dsn string) string {
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

type migrateLogger struct {
	logger *zap.Logger
}

func (l *migrateLogger) Printf(format string, args ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, args...)))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
