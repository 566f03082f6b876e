package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	changelogdomain "github.com/smallbiznis/stockledger/internal/changelog/domain"
	inventorydomain "github.com/smallbiznis/stockledger/internal/inventory/domain"
	"gorm.io/gorm"
)

// RunMigrations applies the embedded postgres schema.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	migrator, err := newMigrator(db)
	if err != nil {
		return err
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// Version reports the applied schema version and whether the last run left it dirty.
func Version(db *sql.DB) (uint, bool, error) {
	if db == nil {
		return 0, false, errors.New("migration database handle is required")
	}
	migrator, err := newMigrator(db)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := migrator.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return migrator, nil
}

var sqliteAppendOnlyTriggers = []string{
	`CREATE TRIGGER IF NOT EXISTS trg_stock_change_logs_no_update
	 BEFORE UPDATE ON stock_change_logs
	 BEGIN SELECT RAISE(ABORT, 'stock_change_logs is append-only'); END`,
	`CREATE TRIGGER IF NOT EXISTS trg_stock_change_logs_no_delete
	 BEFORE DELETE ON stock_change_logs
	 BEGIN SELECT RAISE(ABORT, 'stock_change_logs is append-only'); END`,
}

// AutoMigrate builds the schema from the gorm models for non-postgres databases.
// On sqlite it also installs the append-only triggers.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&inventorydomain.Item{}, &changelogdomain.ChangeRecord{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if db.Dialector.Name() != "sqlite" {
		return nil
	}
	for _, stmt := range sqliteAppendOnlyTriggers {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("install append-only trigger: %w", err)
		}
	}
	return nil
}
