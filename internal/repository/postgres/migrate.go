package postgres

import (
	"context"
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/jwalitptl/notification-service/pkg/logger"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsTable = "notification_schema_migrations"

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, db *sqlx.DB, log *logger.Logger) error {
	goose.SetBaseFS(migrations)
	goose.SetLogger(&gooseLogger{log: log})
	goose.SetTableName(migrationsTable)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

type gooseLogger struct {
	log *logger.Logger
}

func (g *gooseLogger) Fatalf(format string, v ...interface{}) {
	g.log.Error(fmt.Errorf(format, v...), "Migration failed")
}

func (g *gooseLogger) Printf(format string, v ...interface{}) {
	g.log.Info(fmt.Sprintf(format, v...))
}
