package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"regexp"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"madgrades-sync/internal/logger"
)

// Open connects to Postgres.
func Open(dsn string, logg *logger.Logger) (*gorm.DB, error) {
	if logg != nil {
		logg.Info("connecting to postgres")
	}
	return OpenDialector(postgres.Open(dsn))
}

// OpenDialector opens any gorm dialector with the pipeline's gorm settings.
func OpenDialector(d gorm.Dialector) (*gorm.DB, error) {
	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(d, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", d.Name(), err)
	}
	return db, nil
}

// Migrate creates or updates every table the pipeline uses, except staging,
// which the rewriter manages itself.
func Migrate(ctx context.Context, db *gorm.DB) error {
	if err := db.WithContext(ctx).AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("store: auto migrate: %w", err)
	}
	return nil
}

// ErrSchemaMissing is returned by CheckSchema when a table has not been created.
var ErrSchemaMissing = errors.New("store: schema missing")

// CheckSchema verifies every table from AllModels exists without changing
// anything.
func CheckSchema(ctx context.Context, db *gorm.DB) error {
	m := db.WithContext(ctx).Migrator()
	var missing []string
	for _, model := range AllModels() {
		if m.HasTable(model) {
			continue
		}
		name, err := TableName(db, model)
		if err != nil {
			return err
		}
		missing = append(missing, name)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrSchemaMissing, strings.Join(missing, ", "))
	}
	return nil
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}

var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkIdent(name string) error {
	if !identRe.MatchString(name) {
		return fmt.Errorf("store: refusing unsafe table name %q", name)
	}
	return nil
}

// Truncate empties table. Postgres gets TRUNCATE; other dialects fall back to DELETE.
func Truncate(tx *gorm.DB, table string) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	stmt := "DELETE FROM " + table
	if isPostgres(tx) {
		stmt = "TRUNCATE TABLE " + table
	}
	if err := tx.Exec(stmt).Error; err != nil {
		return fmt.Errorf("store: truncate %s: %w", table, err)
	}
	return nil
}

// SetLocalStatementTimeout extends the statement timeout for the current
// transaction. It is a no-op outside Postgres.
func SetLocalStatementTimeout(tx *gorm.DB, d time.Duration) error {
	if !isPostgres(tx) || d <= 0 {
		return nil
	}
	if err := tx.Exec(fmt.Sprintf("SET LOCAL statement_timeout = %d", d.Milliseconds())).Error; err != nil {
		return fmt.Errorf("store: set statement_timeout: %w", err)
	}
	return nil
}

// BackupTable copies table into <table>_backup_<suffix> and returns the new name.
func BackupTable(ctx context.Context, db *gorm.DB, table, suffix string) (string, error) {
	backup := table + "_backup_" + suffix
	if err := checkIdent(table); err != nil {
		return "", err
	}
	if err := checkIdent(backup); err != nil {
		return "", err
	}
	if err := db.WithContext(ctx).Exec("CREATE TABLE " + backup + " AS SELECT * FROM " + table).Error; err != nil {
		return "", fmt.Errorf("store: backup %s: %w", table, err)
	}
	return backup, nil
}

// TableName resolves the physical table name gorm uses for model.
func TableName(db *gorm.DB, model any) (string, error) {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(model); err != nil {
		return "", fmt.Errorf("store: parse model: %w", err)
	}
	return stmt.Schema.Table, nil
}
